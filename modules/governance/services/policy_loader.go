package services

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rowanvale/substratum/modules/governance/domain/ports"
	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

// PolicyLoader resolves the effective workspace policy through the fallback
// chain: workspace database, then process environment, then hard defaults.
// The chain is total: a loaded policy always covers every entry point, and a
// degraded policy store downgrades to the environment rather than failing
// the call. An optional bounded-TTL cache serves repeat loads; policy
// changes are rare and non-adversarial, so bounded staleness is acceptable.
type PolicyLoader struct {
	store    ports.PolicyStore
	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPolicy
}

type cachedPolicy struct {
	policy    types.WorkspacePolicy
	expiresAt time.Time
}

func NewPolicyLoader(store ports.PolicyStore, cacheTTL time.Duration) *PolicyLoader {
	return &PolicyLoader{
		store:    store,
		cacheTTL: cacheTTL,
		now:      time.Now,
		cache:    make(map[string]cachedPolicy),
	}
}

func (l *PolicyLoader) Load(ctx context.Context, workspaceID string) (types.WorkspacePolicy, error) {
	if l.cacheTTL > 0 {
		l.mu.Lock()
		if entry, ok := l.cache[workspaceID]; ok && l.now().Before(entry.expiresAt) {
			l.mu.Unlock()
			return entry.policy, nil
		}
		l.mu.Unlock()
	}

	policy := l.resolve(ctx, workspaceID)

	if l.cacheTTL > 0 {
		l.mu.Lock()
		l.cache[workspaceID] = cachedPolicy{policy: policy, expiresAt: l.now().Add(l.cacheTTL)}
		l.mu.Unlock()
	}
	return policy, nil
}

func (l *PolicyLoader) resolve(ctx context.Context, workspaceID string) types.WorkspacePolicy {
	if l.store != nil {
		policy, err := l.store.Load(ctx, workspaceID)
		if err == nil {
			policy.WorkspaceID = workspaceID
			policy.Source = types.PolicySourceWorkspaceDatabase
			return policy.Normalize()
		}
		// Not-found and store failures both fall through to the environment:
		// governance decisions stay available when the backing store is
		// degraded.
	}
	policy := PolicyFromEnv()
	policy.WorkspaceID = workspaceID
	return policy
}

// PolicyFromEnv builds the process-wide fallback policy. Unset or malformed
// values resolve to hard defaults, so the result is always total.
func PolicyFromEnv() types.WorkspacePolicy {
	policy := types.WorkspacePolicy{
		GovernanceEnabled:   envBool("GOVERNANCE_ENABLED", true),
		ValidatorRequired:   envBool("GOVERNANCE_VALIDATOR_REQUIRED", false),
		DirectWritesAllowed: envBool("GOVERNANCE_DIRECT_WRITES_ALLOWED", true),
		EntryPoints:         map[types.EntryPoint]types.EntryPointPolicy{},
		Source:              types.PolicySourceEnvironmentFallback,
	}
	for _, ep := range types.KnownEntryPoints() {
		key := "GOVERNANCE_EP_" + strings.ToUpper(string(ep))
		if parsed, ok := types.ParseEntryPointPolicy(os.Getenv(key)); ok {
			policy.EntryPoints[ep] = parsed
		}
	}
	if radius, ok := types.ParseBlastRadius(os.Getenv("GOVERNANCE_DEFAULT_BLAST_RADIUS")); ok {
		policy.DefaultBlastRadius = radius
	}
	if raw := strings.TrimSpace(os.Getenv("GOVERNANCE_HYBRID_RISK_THRESHOLD")); raw != "" {
		if threshold, err := strconv.ParseFloat(raw, 64); err == nil {
			policy.HybridRiskThreshold = threshold
		}
	}
	return policy.Normalize()
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch raw {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
