package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rowanvale/substratum/modules/governance/domain/ports"
	"github.com/rowanvale/substratum/modules/governance/domain/types"
	"github.com/rowanvale/substratum/pkg/uuidv7"
)

var newSubstrateUUID = uuidv7.NewString

// SubstratePGStore applies operation batches to the substrate tables. The
// whole batch runs in one transaction; a failing op rolls everything back.
type SubstratePGStore struct {
	pool pgPool
}

func NewSubstratePGStore(pool pgPool) ports.SubstrateStore {
	return &SubstratePGStore{pool: pool}
}

func (s *SubstratePGStore) ApplyOps(ctx context.Context, workspaceID string, basketID string, actorID string, ops []types.Operation) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_workspace', $1, true);`, workspaceID); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(ops))
	for i, op := range ops {
		id, err := s.applyOp(ctx, tx, workspaceID, basketID, actorID, op)
		if err != nil {
			return nil, fmt.Errorf("substrate: ops[%d] %s: %w", i, op.Kind, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SubstratePGStore) applyOp(ctx context.Context, tx pgx.Tx, workspaceID string, basketID string, actorID string, op types.Operation) (string, error) {
	switch op.Kind {
	case types.OpCreateRecord:
		return s.insertRecord(ctx, tx, workspaceID, basketID, actorID, types.CategorySubstrateRecord,
			op.CreateRecord.RecordType, op.CreateRecord.Title, op.CreateRecord.Body, op.CreateRecord.Metadata)

	case types.OpReviseRecord:
		metadata, err := marshalMetadata(op.ReviseRecord.Metadata)
		if err != nil {
			return "", err
		}
		tag, err := tx.Exec(ctx, `
UPDATE governance.substrate_records
SET title = COALESCE($1, title),
    body = COALESCE($2, body),
    metadata = CASE WHEN $3::jsonb IS NULL THEN metadata ELSE metadata || $3::jsonb END,
    updated_at = now()
WHERE workspace_id = $4::uuid AND record_id = $5::uuid AND category = 'substrate_record'
`, op.ReviseRecord.Title, op.ReviseRecord.Body, metadata, workspaceID, op.ReviseRecord.RecordID)
		if err != nil {
			return "", err
		}
		if tag.RowsAffected() == 0 {
			return "", fmt.Errorf("record %s not found", op.ReviseRecord.RecordID)
		}
		return op.ReviseRecord.RecordID, nil

	case types.OpCreateContextItem:
		return s.insertRecord(ctx, tx, workspaceID, basketID, actorID, types.CategoryContextItem,
			op.CreateContextItem.ItemType, op.CreateContextItem.Label, op.CreateContextItem.Content, nil)

	case types.OpAttachContextItem:
		id, err := newSubstrateUUID()
		if err != nil {
			return "", err
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO governance.substrate_relationships
  (relationship_id, workspace_id, basket_id, from_id, to_id, kind, state, created_by)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4::uuid, $5::uuid, COALESCE(NULLIF($6, ''), 'related'), 'attached', $7)
`, id, workspaceID, basketID, op.AttachContextItem.ContextItemID, op.AttachContextItem.TargetID,
			op.AttachContextItem.Relationship, actorID); err != nil {
			return "", err
		}
		return id, nil

	case types.OpMergeContextItems:
		for _, fromID := range op.MergeContextItems.FromIDs {
			tag, err := tx.Exec(ctx, `
UPDATE governance.substrate_records
SET state = 'merged', merged_into = $1::uuid, updated_at = now()
WHERE workspace_id = $2::uuid AND record_id = $3::uuid AND category = 'context_item' AND state = 'active'
`, op.MergeContextItems.IntoID, workspaceID, fromID)
			if err != nil {
				return "", err
			}
			if tag.RowsAffected() == 0 {
				return "", fmt.Errorf("context item %s not mergeable", fromID)
			}
		}
		return op.MergeContextItems.IntoID, nil

	case types.OpPromoteScope:
		tag, err := tx.Exec(ctx, `
UPDATE governance.substrate_records
SET scope = $1, updated_at = now()
WHERE workspace_id = $2::uuid AND record_id = $3::uuid AND category = 'context_item'
`, string(op.PromoteScope.ToScope), workspaceID, op.PromoteScope.ContextItemID)
		if err != nil {
			return "", err
		}
		if tag.RowsAffected() == 0 {
			return "", fmt.Errorf("context item %s not found", op.PromoteScope.ContextItemID)
		}
		return op.PromoteScope.ContextItemID, nil

	case types.OpDetach:
		tag, err := tx.Exec(ctx, `
UPDATE governance.substrate_relationships
SET state = 'detached'
WHERE workspace_id = $1::uuid AND from_id = $2::uuid AND to_id = $3::uuid AND state = 'attached'
`, workspaceID, op.Detach.ContextItemID, op.Detach.TargetID)
		if err != nil {
			return "", err
		}
		if tag.RowsAffected() == 0 {
			return "", fmt.Errorf("relationship %s -> %s not found", op.Detach.ContextItemID, op.Detach.TargetID)
		}
		return op.Detach.ContextItemID, nil

	case types.OpRename:
		tag, err := tx.Exec(ctx, `
UPDATE governance.substrate_records
SET title = $1, updated_at = now()
WHERE workspace_id = $2::uuid AND record_id = $3::uuid
`, op.Rename.NewLabel, workspaceID, op.Rename.TargetID)
		if err != nil {
			return "", err
		}
		if tag.RowsAffected() == 0 {
			return "", fmt.Errorf("target %s not found", op.Rename.TargetID)
		}
		return op.Rename.TargetID, nil

	case types.OpAlias:
		id, err := newSubstrateUUID()
		if err != nil {
			return "", err
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO governance.substrate_aliases (alias_id, workspace_id, target_id, alias, created_by)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5)
`, id, workspaceID, op.Alias.TargetID, op.Alias.Alias, actorID); err != nil {
			return "", err
		}
		return id, nil

	case types.OpDocumentEdit:
		id, err := newSubstrateUUID()
		if err != nil {
			return "", err
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO governance.document_edits (edit_id, workspace_id, basket_id, document_id, patch, created_by)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4::uuid, $5, $6)
`, id, workspaceID, basketID, op.DocumentEdit.DocumentID, op.DocumentEdit.Patch, actorID); err != nil {
			return "", err
		}
		return id, nil

	default:
		return "", fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (s *SubstratePGStore) insertRecord(ctx context.Context, tx pgx.Tx, workspaceID string, basketID string, actorID string, category types.RecordCategory, recordType string, title string, body string, metadata map[string]any) (string, error) {
	id, err := newSubstrateUUID()
	if err != nil {
		return "", err
	}
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO governance.substrate_records
  (record_id, workspace_id, basket_id, category, record_type, title, body, metadata, scope, state, created_by)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6, $7, COALESCE($8::jsonb, '{}'::jsonb), 'LOCAL', 'active', $9)
`, id, workspaceID, basketID, string(category), recordType, title, body, meta, actorID); err != nil {
		return "", err
	}
	return id, nil
}

func marshalMetadata(metadata map[string]any) (*string, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}
