package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rowanvale/substratum/internal/routing"
	"github.com/rowanvale/substratum/pkg/authz"
)

func loadAuthorizer() (*authz.Authorizer, error) {
	modelPath := os.Getenv("AUTHZ_MODEL_PATH")
	if modelPath == "" {
		p, err := defaultAuthzModelPath()
		if err != nil {
			return nil, err
		}
		modelPath = p
	}

	policyPath := os.Getenv("AUTHZ_POLICY_PATH")
	if policyPath == "" {
		p, err := defaultAuthzPolicyPath()
		if err != nil {
			return nil, err
		}
		policyPath = p
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}

	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

func defaultAuthzModelPath() (string, error) {
	path := "config/access/model.conf"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: authz model not found")
}

func defaultAuthzPolicyPath() (string, error) {
	path := "config/access/policy.csv"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: authz policy not found")
}

type authorizer interface {
	Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error)
}

func withAuthz(classifier *routing.Classifier, a authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassInternalAPI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		switch path {
		case "/health", "/healthz":
			next.ServeHTTP(w, r)
			return
		}

		workspace, ok := currentWorkspace(r.Context())
		if !ok {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "workspace_missing", "workspace missing")
			return
		}

		roleSlug := authz.RoleAnonymous
		if p, ok := currentPrincipal(r.Context()); ok {
			roleSlug = p.RoleSlug
		}

		subject := authz.SubjectFromRoleSlug(roleSlug)
		domain := authz.DomainFromWorkspaceID(workspace.ID)

		object, action, shouldCheck := authzRequirementForRoute(r.Method, path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		allowed, enforced, err := a.Authorize(subject, domain, object, action)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if enforced && !allowed {
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	if pathMatchRouteTemplate(path, "/api/proposals/{id}/approve") ||
		pathMatchRouteTemplate(path, "/api/proposals/{id}/reject") ||
		pathMatchRouteTemplate(path, "/api/proposals/{id}/review") {
		if method == http.MethodPost {
			return authz.ObjectGovernanceProposals, authz.ActionReview, true
		}
		return "", "", false
	}
	if pathMatchRouteTemplate(path, "/api/proposals/{id}") {
		if method == http.MethodGet {
			return authz.ObjectGovernanceProposals, authz.ActionRead, true
		}
		return "", "", false
	}

	switch path {
	case "/api/changes":
		if method == http.MethodPost {
			return authz.ObjectGovernanceChanges, authz.ActionWrite, true
		}
		return "", "", false
	case "/api/proposals":
		if method == http.MethodGet {
			return authz.ObjectGovernanceProposals, authz.ActionRead, true
		}
		return "", "", false
	case "/api/governance/status":
		if method == http.MethodGet {
			return authz.ObjectGovernanceStatus, authz.ActionRead, true
		}
		return "", "", false
	case "/api/captures":
		if method == http.MethodPost {
			return authz.ObjectGovernanceCaptures, authz.ActionWrite, true
		}
		return "", "", false
	}
	return "", "", false
}

// pathMatchRouteTemplate matches a concrete path against a template whose
// {name} segments match any single non-empty segment.
func pathMatchRouteTemplate(path string, template string) bool {
	pathParts := strings.Split(strings.Trim(path, "/"), "/")
	templateParts := strings.Split(strings.Trim(template, "/"), "/")
	if len(pathParts) != len(templateParts) {
		return false
	}
	for i, tp := range templateParts {
		if strings.HasPrefix(tp, "{") && strings.HasSuffix(tp, "}") {
			if pathParts[i] == "" {
				return false
			}
			continue
		}
		if tp != pathParts[i] {
			return false
		}
	}
	return true
}
