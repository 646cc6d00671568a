// Package authz gates API routes with a casbin RBAC model. Subjects are
// role slugs, domains are workspace ids, objects and actions come from the
// registry in this package.
package authz

import (
	"errors"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

// ModeFromEnv reads AUTHZ_MODE. Disabling enforcement needs an explicit
// second flag so a typo cannot open the API.
func ModeFromEnv() (Mode, error) {
	switch raw := Mode(strings.TrimSpace(strings.ToLower(os.Getenv("AUTHZ_MODE")))); raw {
	case "":
		return ModeEnforce, nil
	case ModeEnforce, ModeShadow:
		return raw, nil
	case ModeDisabled:
		if os.Getenv("AUTHZ_UNSAFE_ALLOW_DISABLED") != "1" {
			return "", errors.New("authz: AUTHZ_MODE=disabled requires AUTHZ_UNSAFE_ALLOW_DISABLED=1")
		}
		return ModeDisabled, nil
	default:
		return "", errors.New("authz: invalid AUTHZ_MODE (expected enforce|shadow|disabled)")
	}
}

type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

func NewAuthorizer(modelPath string, policyPath string, mode Mode) (*Authorizer, error) {
	enforcer, err := casbin.NewEnforcer(modelPath, policyPath)
	if err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: enforcer, mode: mode}, nil
}

func SubjectFromRoleSlug(roleSlug string) string {
	roleSlug = strings.TrimSpace(strings.ToLower(roleSlug))
	if roleSlug == "" {
		roleSlug = RoleAnonymous
	}
	return "role:" + roleSlug
}

func DomainFromWorkspaceID(workspaceID string) string {
	return strings.ToLower(strings.TrimSpace(workspaceID))
}

// Authorize evaluates one tuple. enforced reports whether a deny is binding;
// in shadow mode the verdict is computed but never blocks the request.
func (a *Authorizer) Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error) {
	switch a.mode {
	case ModeDisabled:
		return true, false, nil
	case ModeShadow, ModeEnforce:
		ok, err := a.enforcer.Enforce(subject, domain, object, action)
		if err != nil {
			return false, a.mode == ModeEnforce, err
		}
		return ok, a.mode == ModeEnforce, nil
	default:
		return false, false, errors.New("authz: unknown mode")
	}
}
