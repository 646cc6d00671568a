package types

type Route string

const (
	RouteDirect   Route = "direct"
	RouteProposal Route = "proposal"
)

type ValidatorMode string

const (
	ValidatorModeLenient ValidatorMode = "lenient"
	ValidatorModeStrict  ValidatorMode = "strict"
)

// Decision is the pure output of the policy decider for one descriptor.
// Reason is a stable string of the form ep_policy_<p>:<entry_point>[:<risk_tag>]
// used for audit events and test assertions.
type Decision struct {
	Route                Route
	RequireValidator     bool
	ValidatorMode        ValidatorMode
	EffectiveBlastRadius BlastRadius
	Reason               string
}
