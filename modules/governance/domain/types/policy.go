package types

import "strings"

type EntryPointPolicy string

const (
	EntryPointPolicyDirect   EntryPointPolicy = "direct"
	EntryPointPolicyProposal EntryPointPolicy = "proposal"
	EntryPointPolicyHybrid   EntryPointPolicy = "hybrid"
)

func ParseEntryPointPolicy(raw string) (EntryPointPolicy, bool) {
	switch EntryPointPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case EntryPointPolicyDirect:
		return EntryPointPolicyDirect, true
	case EntryPointPolicyProposal:
		return EntryPointPolicyProposal, true
	case EntryPointPolicyHybrid:
		return EntryPointPolicyHybrid, true
	default:
		return "", false
	}
}

type PolicySource string

const (
	PolicySourceWorkspaceDatabase   PolicySource = "workspace_database"
	PolicySourceEnvironmentFallback PolicySource = "environment_fallback"
)

// WorkspacePolicy is one workspace's governance configuration, loaded
// atomically per decision. The EntryPoints map is total over
// KnownEntryPoints once normalized; onboarding_capture is pinned to direct
// and not configurable (capture must never block on review).
type WorkspacePolicy struct {
	WorkspaceID         string
	GovernanceEnabled   bool
	ValidatorRequired   bool
	DirectWritesAllowed bool
	EntryPoints         map[EntryPoint]EntryPointPolicy
	DefaultBlastRadius  BlastRadius
	HybridRiskThreshold float64
	Source              PolicySource
}

// Normalize fills the policy so no entry point is ever left undefined and
// re-pins the capture entry point. Unset entry points default to proposal,
// the safest route.
func (p WorkspacePolicy) Normalize() WorkspacePolicy {
	out := p
	out.EntryPoints = make(map[EntryPoint]EntryPointPolicy, len(KnownEntryPoints()))
	for _, ep := range KnownEntryPoints() {
		if pol, ok := p.EntryPoints[ep]; ok {
			out.EntryPoints[ep] = pol
		} else {
			out.EntryPoints[ep] = EntryPointPolicyProposal
		}
	}
	out.EntryPoints[EntryPointOnboardingCapture] = EntryPointPolicyDirect
	if out.DefaultBlastRadius == "" {
		out.DefaultBlastRadius = BlastRadiusLocal
	}
	if out.HybridRiskThreshold <= 0 || out.HybridRiskThreshold > 1 {
		out.HybridRiskThreshold = 0.5
	}
	return out
}
