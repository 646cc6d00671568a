package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rowanvale/substratum/modules/governance/domain/ports"
	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

type pgPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PolicyPGStore struct {
	pool pgPool
}

func NewPolicyPGStore(pool pgPool) ports.PolicyStore {
	return &PolicyPGStore{pool: pool}
}

func (s *PolicyPGStore) Load(ctx context.Context, workspaceID string) (types.WorkspacePolicy, error) {
	row := s.pool.QueryRow(ctx, `
SELECT governance_enabled,
       validator_required,
       direct_writes_allowed,
       ep_manual_edit,
       ep_onboarding_capture,
       ep_document_edit,
       ep_agent_suggestion,
       ep_timeline_backfill,
       default_blast_radius,
       hybrid_risk_threshold
FROM governance.workspace_policies
WHERE workspace_id = $1::uuid
`, workspaceID)

	var policy types.WorkspacePolicy
	var manualEdit, capture, docEdit, agentSuggestion, backfill string
	var defaultRadius string
	err := row.Scan(
		&policy.GovernanceEnabled,
		&policy.ValidatorRequired,
		&policy.DirectWritesAllowed,
		&manualEdit,
		&capture,
		&docEdit,
		&agentSuggestion,
		&backfill,
		&defaultRadius,
		&policy.HybridRiskThreshold,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.WorkspacePolicy{}, ports.ErrPolicyNotFound
		}
		return types.WorkspacePolicy{}, err
	}

	policy.WorkspaceID = workspaceID
	policy.EntryPoints = map[types.EntryPoint]types.EntryPointPolicy{}
	for ep, raw := range map[types.EntryPoint]string{
		types.EntryPointManualEdit:        manualEdit,
		types.EntryPointOnboardingCapture: capture,
		types.EntryPointDocumentEdit:      docEdit,
		types.EntryPointAgentSuggestion:   agentSuggestion,
		types.EntryPointTimelineBackfill:  backfill,
	} {
		if parsed, ok := types.ParseEntryPointPolicy(raw); ok {
			policy.EntryPoints[ep] = parsed
		}
	}
	if radius, ok := types.ParseBlastRadius(defaultRadius); ok {
		policy.DefaultBlastRadius = radius
	}
	return policy, nil
}
