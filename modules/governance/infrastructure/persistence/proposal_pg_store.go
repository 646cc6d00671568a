package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rowanvale/substratum/modules/governance/domain/ports"
	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

var errTransitionConflict = errors.New("proposal transition conflict")

type ProposalPGStore struct {
	pool pgPool
}

func NewProposalPGStore(pool pgPool) ports.ProposalStore {
	return &ProposalPGStore{pool: pool}
}

func (s *ProposalPGStore) Create(ctx context.Context, proposal types.Proposal) (string, error) {
	ops, err := encodeOps(proposal.Ops)
	if err != nil {
		return "", err
	}
	var report []byte
	if proposal.ValidatorReport != nil {
		report, err = json.Marshal(proposal.ValidatorReport)
		if err != nil {
			return "", err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_workspace', $1, true);`, proposal.WorkspaceID); err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO governance.proposals
  (proposal_id, workspace_id, basket_id, entry_point, actor_id, ops, status, validator_report, reason, created_at)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6::jsonb, $7, $8::jsonb, $9, $10)
`, proposal.ID, proposal.WorkspaceID, proposal.BasketID, string(proposal.EntryPoint), proposal.ActorID,
		ops, string(proposal.Status), report, proposal.Reason, proposal.CreatedAt); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return proposal.ID, nil
}

func (s *ProposalPGStore) Get(ctx context.Context, workspaceID string, proposalID string) (types.Proposal, error) {
	row := s.pool.QueryRow(ctx, `
SELECT proposal_id, workspace_id, basket_id, entry_point, actor_id, ops, status,
       validator_report, reason, COALESCE(reject_reason, ''), created_at,
       COALESCE(reviewed_by, ''), COALESCE(reviewed_at, 'epoch'::timestamptz)
FROM governance.proposals
WHERE workspace_id = $1::uuid AND proposal_id = $2::uuid
`, workspaceID, proposalID)
	return scanProposal(row)
}

func (s *ProposalPGStore) ListOpen(ctx context.Context, workspaceID string, basketID string) ([]types.Proposal, error) {
	rows, err := s.pool.Query(ctx, `
SELECT proposal_id, workspace_id, basket_id, entry_point, actor_id, ops, status,
       validator_report, reason, COALESCE(reject_reason, ''), created_at,
       COALESCE(reviewed_by, ''), COALESCE(reviewed_at, 'epoch'::timestamptz)
FROM governance.proposals
WHERE workspace_id = $1::uuid
  AND ($2 = '' OR basket_id = $2::uuid)
  AND status IN ('PROPOSED', 'UNDER_REVIEW')
ORDER BY created_at
`, workspaceID, basketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Proposal
	for rows.Next() {
		proposal, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, proposal)
	}
	return out, rows.Err()
}

func (s *ProposalPGStore) Transition(ctx context.Context, workspaceID string, proposalID string, expected types.ProposalStatus, next types.ProposalStatus, reviewer string, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_workspace', $1, true);`, workspaceID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE governance.proposals
SET status = $1,
    reviewed_by = NULLIF($2, ''),
    reviewed_at = now(),
    reject_reason = NULLIF($3, '')
WHERE workspace_id = $4::uuid AND proposal_id = $5::uuid AND status = $6
`, string(next), reviewer, reason, workspaceID, proposalID, string(expected))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errTransitionConflict
	}
	return tx.Commit(ctx)
}

func (s *ProposalPGStore) RecordExecution(ctx context.Context, workspaceID string, execution types.ProposalExecution) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_workspace', $1, true);`, workspaceID); err != nil {
		return err
	}
	ids, err := json.Marshal(execution.SubstrateIDs)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO governance.proposal_executions
  (proposal_id, workspace_id, operations_count, substrate_ids, executed_at)
VALUES ($1::uuid, $2::uuid, $3, $4::jsonb, $5)
`, execution.ProposalID, workspaceID, execution.OperationsCount, ids, execution.ExecutedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func encodeOps(ops []types.Operation) ([]byte, error) {
	wire := make([]json.RawMessage, 0, len(ops))
	for _, op := range ops {
		encoded, err := types.EncodeOperation(op)
		if err != nil {
			return nil, err
		}
		wire = append(wire, encoded)
	}
	return json.Marshal(wire)
}

func decodeOps(raw []byte) ([]types.Operation, error) {
	var wire []json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	ops := make([]types.Operation, 0, len(wire))
	for _, item := range wire {
		op, err := types.DecodeOperation(item)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func scanProposal(row pgx.Row) (types.Proposal, error) {
	var proposal types.Proposal
	var entryPoint, status string
	var ops, report []byte
	if err := row.Scan(
		&proposal.ID,
		&proposal.WorkspaceID,
		&proposal.BasketID,
		&entryPoint,
		&proposal.ActorID,
		&ops,
		&status,
		&report,
		&proposal.Reason,
		&proposal.RejectReason,
		&proposal.CreatedAt,
		&proposal.ReviewedBy,
		&proposal.ReviewedAt,
	); err != nil {
		return types.Proposal{}, err
	}
	proposal.EntryPoint = types.EntryPoint(entryPoint)
	if parsed, ok := types.ParseProposalStatus(status); ok {
		proposal.Status = parsed
	} else {
		return types.Proposal{}, errors.New("proposal status corrupt")
	}
	decoded, err := decodeOps(ops)
	if err != nil {
		return types.Proposal{}, err
	}
	proposal.Ops = decoded
	if len(report) > 0 {
		var validatorReport types.ValidationReport
		if err := json.Unmarshal(report, &validatorReport); err != nil {
			return types.Proposal{}, err
		}
		proposal.ValidatorReport = &validatorReport
	}
	return proposal, nil
}
