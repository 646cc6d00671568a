package services

import (
	"fmt"

	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

// Decide computes the route for one descriptor. Pure: no I/O, no clock; the
// same policy, descriptor, and risk signal always yield the same decision.
// The risk signal is only consulted for hybrid entry points; pass nil to let
// the built-in weighted scorer derive it.
func Decide(policy types.WorkspacePolicy, descriptor types.ChangeDescriptor, risk *RiskSignal) (types.Decision, error) {
	policy = policy.Normalize()
	ep := descriptor.EntryPoint
	epPolicy, ok := policy.EntryPoints[ep]
	if !ok {
		return types.Decision{}, fmt.Errorf("decider: no policy for entry point %q", ep)
	}

	if !policy.GovernanceEnabled {
		return types.Decision{
			Route:                types.RouteDirect,
			RequireValidator:     false,
			ValidatorMode:        types.ValidatorModeLenient,
			EffectiveBlastRadius: effectiveBlastRadius(policy, descriptor),
			Reason:               fmt.Sprintf("governance_disabled:%s", ep),
		}, nil
	}

	switch epPolicy {
	case types.EntryPointPolicyDirect:
		return types.Decision{
			Route:                types.RouteDirect,
			RequireValidator:     policy.ValidatorRequired,
			ValidatorMode:        types.ValidatorModeLenient,
			EffectiveBlastRadius: effectiveBlastRadius(policy, descriptor),
			Reason:               fmt.Sprintf("ep_policy_direct:%s", ep),
		}, nil

	case types.EntryPointPolicyProposal:
		return types.Decision{
			Route:                types.RouteProposal,
			RequireValidator:     true,
			ValidatorMode:        types.ValidatorModeStrict,
			EffectiveBlastRadius: proposalBlastRadius(policy, descriptor),
			Reason:               fmt.Sprintf("ep_policy_proposal:%s", ep),
		}, nil

	case types.EntryPointPolicyHybrid:
		// A promote-to-global op forces the proposal branch regardless of
		// the computed risk.
		if promotesToGlobal(descriptor) {
			return types.Decision{
				Route:                types.RouteProposal,
				RequireValidator:     true,
				ValidatorMode:        types.ValidatorModeStrict,
				EffectiveBlastRadius: types.BlastRadiusGlobal,
				Reason:               fmt.Sprintf("ep_policy_hybrid:%s:%s", ep, riskTagHigh),
			}, nil
		}
		signal := RiskSignal{}
		if risk != nil {
			signal = *risk
		} else {
			computed, err := WeightedRiskScorer{}.Score(descriptor)
			if err != nil {
				return types.Decision{}, err
			}
			signal = computed
		}
		if signal.Score >= policy.HybridRiskThreshold {
			return types.Decision{
				Route:                types.RouteProposal,
				RequireValidator:     true,
				ValidatorMode:        types.ValidatorModeStrict,
				EffectiveBlastRadius: proposalBlastRadius(policy, descriptor),
				Reason:               fmt.Sprintf("ep_policy_hybrid:%s:%s", ep, riskTagHigh),
			}, nil
		}
		return types.Decision{
			Route:                types.RouteDirect,
			RequireValidator:     policy.ValidatorRequired,
			ValidatorMode:        types.ValidatorModeLenient,
			EffectiveBlastRadius: effectiveBlastRadius(policy, descriptor),
			Reason:               fmt.Sprintf("ep_policy_hybrid:%s:%s", ep, riskTagLow),
		}, nil

	default:
		return types.Decision{}, fmt.Errorf("decider: unknown entry point policy %q", epPolicy)
	}
}

func promotesToGlobal(descriptor types.ChangeDescriptor) bool {
	for _, op := range descriptor.Ops {
		if op.PromotesToGlobal() {
			return true
		}
	}
	return false
}

func promotesScope(descriptor types.ChangeDescriptor) bool {
	for _, op := range descriptor.Ops {
		if op.Kind == types.OpPromoteScope {
			return true
		}
	}
	return false
}

// effectiveBlastRadius is the wider of the requested and default radii, with
// the promote-to-global tie-break applied on every route.
func effectiveBlastRadius(policy types.WorkspacePolicy, descriptor types.ChangeDescriptor) types.BlastRadius {
	if promotesToGlobal(descriptor) {
		return types.BlastRadiusGlobal
	}
	radius := policy.DefaultBlastRadius
	if descriptor.BlastRadius != "" {
		radius = types.MaxBlastRadius(descriptor.BlastRadius, policy.DefaultBlastRadius)
	}
	return radius
}

// proposalBlastRadius escalates to Global when any op promotes scope.
func proposalBlastRadius(policy types.WorkspacePolicy, descriptor types.ChangeDescriptor) types.BlastRadius {
	if promotesScope(descriptor) {
		return types.BlastRadiusGlobal
	}
	return effectiveBlastRadius(policy, descriptor)
}
