package ports

import (
	"context"
	"errors"
	"time"

	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

// ErrPolicyNotFound is returned by PolicyStore.Load when a workspace has no
// stored governance configuration.
var ErrPolicyNotFound = errors.New("workspace policy not found")

// PolicyStore reads per-workspace governance configuration. Load returns
// ErrPolicyNotFound when the workspace has no stored configuration; any other
// error means the backing store is degraded and the caller falls back to the
// environment chain.
type PolicyStore interface {
	Load(ctx context.Context, workspaceID string) (types.WorkspacePolicy, error)
}

// ProposalStore owns proposals after the gateway creates them.
type ProposalStore interface {
	Create(ctx context.Context, proposal types.Proposal) (string, error)
	Get(ctx context.Context, workspaceID string, proposalID string) (types.Proposal, error)
	ListOpen(ctx context.Context, workspaceID string, basketID string) ([]types.Proposal, error)
	// Transition moves a proposal between lifecycle states. It must fail when
	// the stored status differs from expected, so two reviewers cannot both
	// win the same transition.
	Transition(ctx context.Context, workspaceID string, proposalID string, expected types.ProposalStatus, next types.ProposalStatus, reviewer string, reason string) error
	RecordExecution(ctx context.Context, workspaceID string, execution types.ProposalExecution) error
}

// SubstrateStore applies an ordered operation batch in one transaction.
// Either every operation applies or none do; the returned ids identify the
// substrate rows created or touched, in op order.
type SubstrateStore interface {
	ApplyOps(ctx context.Context, workspaceID string, basketID string, actorID string, ops []types.Operation) ([]string, error)
}

// TimelineEvent is one append-only audit record. A downstream consumer
// cannot distinguish a direct write from an approved proposal by the event
// shape alone.
type TimelineEvent struct {
	Kind        string
	RefID       string
	WorkspaceID string
	BasketID    string
	ActorID     string
	Summary     map[string]any
	OccurredAt  time.Time
}

type TimelineSink interface {
	Append(ctx context.Context, event TimelineEvent) error
}

// CaptureStore deposits immutable raw input. Raw capture is never governed
// by the decision gateway.
type CaptureStore interface {
	Deposit(ctx context.Context, workspaceID string, basketID string, actorID string, mime string, body []byte) (string, error)
}
