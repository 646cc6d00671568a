package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rowanvale/substratum/internal/routing"
	"github.com/rowanvale/substratum/modules/governance/domain/ports"
	"github.com/rowanvale/substratum/modules/governance/infrastructure/agent"
	governancepersistence "github.com/rowanvale/substratum/modules/governance/infrastructure/persistence"
	governanceservices "github.com/rowanvale/substratum/modules/governance/services"
	"github.com/rowanvale/substratum/pkg/authz"
)

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

type HandlerOptions struct {
	WorkspaceResolver WorkspaceResolver
	PolicyStore       ports.PolicyStore
	ProposalStore     ports.ProposalStore
	SubstrateStore    ports.SubstrateStore
	Timeline          ports.TimelineSink
	CaptureStore      ports.CaptureStore
	Validator         ports.ValidatorAgent
	Scorer            governanceservices.RiskScorer
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	allowlistPath := os.Getenv("ALLOWLIST_PATH")
	if allowlistPath == "" {
		p, err := defaultAllowlistPath()
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}

	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}

	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	policyStore := opts.PolicyStore
	proposalStore := opts.ProposalStore
	substrateStore := opts.SubstrateStore
	timeline := opts.Timeline
	captureStore := opts.CaptureStore

	if policyStore == nil || proposalStore == nil || substrateStore == nil || timeline == nil || captureStore == nil {
		if getenvDefault("PERSISTENCE_MODE", "postgres") == "memory" {
			if policyStore == nil {
				policyStore = newPolicyMemoryStore()
			}
			if proposalStore == nil {
				proposalStore = newProposalMemoryStore()
			}
			if substrateStore == nil {
				substrateStore = newSubstrateMemoryStore()
			}
			if timeline == nil {
				timeline = newTimelineMemorySink()
			}
			if captureStore == nil {
				captureStore = newCaptureMemoryStore()
			}
		} else {
			dsn := dbDSNFromEnv()
			pool, err := pgxpool.New(context.Background(), dsn)
			if err != nil {
				return nil, err
			}
			if policyStore == nil {
				policyStore = governancepersistence.NewPolicyPGStore(pool)
			}
			if proposalStore == nil {
				proposalStore = governancepersistence.NewProposalPGStore(pool)
			}
			if substrateStore == nil {
				substrateStore = governancepersistence.NewSubstratePGStore(pool)
			}
			if timeline == nil {
				timeline = governancepersistence.NewTimelinePGStore(pool)
			}
			if captureStore == nil {
				captureStore = governancepersistence.NewCapturePGStore(pool)
			}
		}
	}

	validator := opts.Validator
	if validator == nil {
		v, err := agent.New(getenvDefault("GOVERNANCE_VALIDATOR_URL", "http://127.0.0.1:8091"), validatorTimeoutFromEnv())
		if err != nil {
			return nil, err
		}
		validator = v
	}

	loader := governanceservices.NewPolicyLoader(policyStore, policyCacheTTLFromEnv())

	gateway, err := governanceservices.NewDecisionGateway(governanceservices.GatewayOptions{
		Policies:  loader,
		Proposals: proposalStore,
		Substrate: substrateStore,
		Timeline:  timeline,
		Validator: validator,
		Scorer:    opts.Scorer,
	})
	if err != nil {
		return nil, err
	}

	workspaces := opts.WorkspaceResolver
	if workspaces == nil {
		registry, err := loadWorkspaceRegistry()
		if err != nil {
			return nil, err
		}
		workspaces = registry
	}

	authorizer, err := loadAuthorizer()
	if err != nil {
		return nil, err
	}

	router := routing.NewRouter(classifier)

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/api/changes", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleChangesAPI(w, r, gateway)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/api/governance/status", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleGovernanceStatusAPI(w, r, loader)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/api/proposals", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleProposalsListAPI(w, r, proposalStore)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/api/proposals/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleProposalGetAPI(w, r, proposalStore)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/api/proposals/{id}/review", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleProposalReviewAPI(w, r, gateway)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/api/proposals/{id}/approve", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleProposalApproveAPI(w, r, gateway)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/api/proposals/{id}/reject", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleProposalRejectAPI(w, r, gateway)
	}))
	router.Handle(routing.RouteClassCapture, http.MethodPost, "/api/captures", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCaptureAPI(w, r, captureStore)
	}))

	return withWorkspaceAndIdentity(classifier, workspaces, withAuthz(classifier, authorizer, router)), nil
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(errors.New("server: failed to build handler: " + err.Error()))
	}
	return h
}

func defaultAllowlistPath() (string, error) {
	path := "config/routing/allowlist.yaml"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: allowlist not found")
}

func validatorTimeoutFromEnv() time.Duration {
	raw := strings.TrimSpace(os.Getenv("GOVERNANCE_VALIDATOR_TIMEOUT"))
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

func policyCacheTTLFromEnv() time.Duration {
	raw := strings.TrimSpace(os.Getenv("GOVERNANCE_POLICY_CACHE_TTL"))
	if raw == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}

// withWorkspaceAndIdentity resolves the request host to a workspace and the
// actor headers to a principal. Health endpoints skip resolution so probes
// work without a registered host.
func withWorkspaceAndIdentity(classifier *routing.Classifier, workspaces WorkspaceResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassInternalAPI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		if path == "/health" || path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		workspace, ok := workspaces.Resolve(effectiveHost(r))
		if !ok {
			routing.WriteError(w, r, rc, http.StatusNotFound, "workspace_not_found", "workspace not found")
			return
		}
		ctx := withWorkspace(r.Context(), workspace)

		principal := Principal{
			ID:       strings.TrimSpace(r.Header.Get("X-Actor-ID")),
			RoleSlug: strings.ToLower(strings.TrimSpace(r.Header.Get("X-Actor-Role"))),
		}
		if principal.RoleSlug == "" {
			principal.RoleSlug = authz.RoleAnonymous
		}
		ctx = withPrincipal(ctx, principal)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
