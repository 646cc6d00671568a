package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rowanvale/substratum/modules/governance/domain/ports"
	"github.com/rowanvale/substratum/modules/governance/domain/types"
	"github.com/rowanvale/substratum/pkg/httperr"
	"github.com/rowanvale/substratum/pkg/uuidv7"
)

var newGatewayUUID = uuidv7.NewString

// ShapeError rejects a malformed descriptor before any side effect.
type ShapeError struct {
	Violations []DescriptorViolation
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %d violation(s)", errShapeValidationFailed, len(e.Violations))
}

// ExecutionSummary describes one transactional apply of an op batch.
type ExecutionSummary struct {
	OperationsExecuted int      `json:"operations_executed"`
	SubstrateIDs       []string `json:"substrate_ids"`
}

// RouteChangeResult is the gateway's answer for one descriptor: either a
// committed execution or a pending proposal, never both.
type RouteChangeResult struct {
	Committed        bool
	ProposalID       string
	Execution        *ExecutionSummary
	ValidationReport *types.ValidationReport
	Decision         types.Decision
}

// DecisionGateway mediates every substrate mutation: it validates the
// descriptor, loads policy, decides the route, and either applies the batch
// transactionally or persists a proposal for review. Each call is
// request-scoped; calls for the same basket serialize, calls for different
// baskets are independent.
type DecisionGateway struct {
	policies  *PolicyLoader
	proposals ports.ProposalStore
	substrate ports.SubstrateStore
	timeline  ports.TimelineSink
	validator ports.ValidatorAgent
	guard     *PipelineGuard
	scorer    RiskScorer
	now       func() time.Time

	baskets sync.Map // "workspace/basket" -> *sync.Mutex
}

type GatewayOptions struct {
	Policies  *PolicyLoader
	Proposals ports.ProposalStore
	Substrate ports.SubstrateStore
	Timeline  ports.TimelineSink
	Validator ports.ValidatorAgent
	Guard     *PipelineGuard
	Scorer    RiskScorer
}

func NewDecisionGateway(opts GatewayOptions) (*DecisionGateway, error) {
	if opts.Policies == nil || opts.Proposals == nil || opts.Substrate == nil || opts.Timeline == nil || opts.Validator == nil {
		return nil, fmt.Errorf("gateway: missing collaborator")
	}
	guard := opts.Guard
	if guard == nil {
		g, err := NewPipelineGuard()
		if err != nil {
			return nil, err
		}
		guard = g
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = WeightedRiskScorer{}
	}
	return &DecisionGateway{
		policies:  opts.Policies,
		proposals: opts.Proposals,
		substrate: opts.Substrate,
		timeline:  opts.Timeline,
		validator: opts.Validator,
		guard:     guard,
		scorer:    scorer,
		now:       time.Now,
	}, nil
}

// RouteChange runs one descriptor through the decision state machine. Before
// EXECUTE_OPS or PERSIST_PROPOSAL everything is pure computation over
// already-loaded data; a failure earlier leaves no side effect.
func (g *DecisionGateway) RouteChange(ctx context.Context, descriptor types.ChangeDescriptor) (RouteChangeResult, error) {
	if validation := ValidateDescriptor(descriptor); !validation.Valid {
		return RouteChangeResult{}, &ShapeError{Violations: validation.Violations}
	}

	policy, err := g.policies.Load(ctx, descriptor.WorkspaceID)
	if err != nil {
		return RouteChangeResult{}, fmt.Errorf("%s: %w", errPolicyLoadFailed, err)
	}

	var risk *RiskSignal
	if policy.Normalize().EntryPoints[descriptor.EntryPoint] == types.EntryPointPolicyHybrid {
		signal, err := g.scorer.Score(descriptor)
		if err != nil {
			return RouteChangeResult{}, err
		}
		risk = &signal
	}

	decision, err := Decide(policy, descriptor, risk)
	if err != nil {
		return RouteChangeResult{}, err
	}

	var report *types.ValidationReport
	if decision.Route == types.RouteProposal || decision.RequireValidator {
		r, err := g.validator.Validate(ctx, descriptor, decision.ValidatorMode)
		if err != nil {
			return RouteChangeResult{}, httperr.NewUnavailable(errValidatorUnavailable)
		}
		report = &r
	}

	if decision.Route == types.RouteDirect {
		summary, err := g.executeOps(ctx, descriptor.WorkspaceID, descriptor.BasketID, descriptor.ActorID, descriptor.Ops, decision)
		if err != nil {
			return RouteChangeResult{}, err
		}
		return RouteChangeResult{Committed: true, Execution: summary, ValidationReport: report, Decision: decision}, nil
	}

	proposalID, err := newGatewayUUID()
	if err != nil {
		return RouteChangeResult{}, err
	}
	proposal := types.Proposal{
		ID:              proposalID,
		WorkspaceID:     descriptor.WorkspaceID,
		BasketID:        descriptor.BasketID,
		EntryPoint:      descriptor.EntryPoint,
		ActorID:         descriptor.ActorID,
		Ops:             descriptor.Ops,
		Status:          types.ProposalStatusProposed,
		ValidatorReport: report,
		Reason:          decision.Reason,
		CreatedAt:       g.now().UTC(),
	}
	id, err := g.proposals.Create(ctx, proposal)
	if err != nil {
		return RouteChangeResult{}, err
	}
	return RouteChangeResult{Committed: false, ProposalID: id, ValidationReport: report, Decision: decision}, nil
}

// ApproveProposal transitions an eligible proposal to APPROVED and executes
// its frozen ops exactly as a direct route would, including the audit event.
func (g *DecisionGateway) ApproveProposal(ctx context.Context, workspaceID string, proposalID string, reviewer string) (*ExecutionSummary, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, httperr.NewBadRequest("reviewer required")
	}

	proposal, err := g.proposals.Get(ctx, workspaceID, proposalID)
	if err != nil {
		return nil, httperr.NewNotFound(errProposalNotFound)
	}

	unlock := g.lockBasket(proposal.WorkspaceID, proposal.BasketID)
	defer unlock()

	if !proposal.Status.Eligible() {
		return nil, httperr.NewConflict(errProposalStateInvalid)
	}
	if err := g.proposals.Transition(ctx, workspaceID, proposalID, proposal.Status, types.ProposalStatusApproved, reviewer, ""); err != nil {
		return nil, httperr.NewConflict(errProposalStateInvalid)
	}

	if err := g.guard.GuardOps(ctx, proposal.Ops); err != nil {
		return nil, err
	}
	ids, err := g.substrate.ApplyOps(ctx, proposal.WorkspaceID, proposal.BasketID, reviewer, proposal.Ops)
	if err != nil {
		return nil, err
	}
	execution := types.ProposalExecution{
		ProposalID:      proposalID,
		OperationsCount: len(proposal.Ops),
		SubstrateIDs:    ids,
		ExecutedAt:      g.now().UTC(),
	}
	if err := g.proposals.RecordExecution(ctx, workspaceID, execution); err != nil {
		return nil, err
	}
	if err := g.emitCommit(ctx, proposal.WorkspaceID, proposal.BasketID, reviewer, len(proposal.Ops), ids, proposal.Reason); err != nil {
		return nil, err
	}
	return &ExecutionSummary{OperationsExecuted: len(proposal.Ops), SubstrateIDs: ids}, nil
}

// StartReview marks a proposal UNDER_REVIEW. Only PROPOSED proposals qualify.
func (g *DecisionGateway) StartReview(ctx context.Context, workspaceID string, proposalID string, reviewer string) error {
	proposal, err := g.proposals.Get(ctx, workspaceID, proposalID)
	if err != nil {
		return httperr.NewNotFound(errProposalNotFound)
	}
	if proposal.Status != types.ProposalStatusProposed {
		return httperr.NewConflict(errProposalStateInvalid)
	}
	if err := g.proposals.Transition(ctx, workspaceID, proposalID, types.ProposalStatusProposed, types.ProposalStatusUnderReview, strings.TrimSpace(reviewer), ""); err != nil {
		return httperr.NewConflict(errProposalStateInvalid)
	}
	return nil
}

// RejectProposal transitions to REJECTED with no substrate mutation.
func (g *DecisionGateway) RejectProposal(ctx context.Context, workspaceID string, proposalID string, reviewer string, reason string) error {
	proposal, err := g.proposals.Get(ctx, workspaceID, proposalID)
	if err != nil {
		return httperr.NewNotFound(errProposalNotFound)
	}
	if !proposal.Status.Eligible() {
		return httperr.NewConflict(errProposalStateInvalid)
	}
	if err := g.proposals.Transition(ctx, workspaceID, proposalID, proposal.Status, types.ProposalStatusRejected, strings.TrimSpace(reviewer), strings.TrimSpace(reason)); err != nil {
		return httperr.NewConflict(errProposalStateInvalid)
	}
	return nil
}

func (g *DecisionGateway) executeOps(ctx context.Context, workspaceID string, basketID string, actorID string, ops []types.Operation, decision types.Decision) (*ExecutionSummary, error) {
	unlock := g.lockBasket(workspaceID, basketID)
	defer unlock()

	if err := g.guard.GuardOps(ctx, ops); err != nil {
		return nil, err
	}
	ids, err := g.substrate.ApplyOps(ctx, workspaceID, basketID, actorID, ops)
	if err != nil {
		return nil, err
	}
	if err := g.emitCommit(ctx, workspaceID, basketID, actorID, len(ops), ids, decision.Reason); err != nil {
		return nil, err
	}
	return &ExecutionSummary{OperationsExecuted: len(ops), SubstrateIDs: ids}, nil
}

// emitCommit appends the one audit event per committed change. The shape is
// identical for a direct write and an approved proposal.
func (g *DecisionGateway) emitCommit(ctx context.Context, workspaceID string, basketID string, actorID string, opsCount int, substrateIDs []string, reason string) error {
	commitID, err := newGatewayUUID()
	if err != nil {
		return err
	}
	return g.timeline.Append(ctx, ports.TimelineEvent{
		Kind:        "substrate.change.committed",
		RefID:       commitID,
		WorkspaceID: workspaceID,
		BasketID:    basketID,
		ActorID:     actorID,
		Summary: map[string]any{
			"operations_executed": opsCount,
			"substrate_ids":       substrateIDs,
			"reason":              reason,
		},
		OccurredAt: g.now().UTC(),
	})
}

func (g *DecisionGateway) lockBasket(workspaceID string, basketID string) func() {
	key := workspaceID + "/" + basketID
	actual, _ := g.baskets.LoadOrStore(key, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GovernanceStatus derives the workspace's reviewable posture from policy
// flags: disabled, testing (all entry points direct), full (every
// non-capture entry point requires a proposal), otherwise partial.
func GovernanceStatus(policy types.WorkspacePolicy) string {
	policy = policy.Normalize()
	if !policy.GovernanceEnabled {
		return "disabled"
	}
	allDirect := true
	allProposal := true
	for ep, p := range policy.EntryPoints {
		if p != types.EntryPointPolicyDirect {
			allDirect = false
		}
		if ep != types.EntryPointOnboardingCapture && p == types.EntryPointPolicyDirect {
			allProposal = false
		}
	}
	switch {
	case allDirect:
		return "testing"
	case allProposal:
		return "full"
	default:
		return "partial"
	}
}
