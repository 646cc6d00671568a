package persistence

import (
	"context"

	"github.com/rowanvale/substratum/modules/governance/domain/ports"
	"github.com/rowanvale/substratum/pkg/uuidv7"
)

var newCaptureUUID = uuidv7.NewString

// CapturePGStore deposits immutable raw input. Rows are never updated; the
// structuring stage reads them and the capture path never waits on review.
type CapturePGStore struct {
	pool pgPool
}

func NewCapturePGStore(pool pgPool) ports.CaptureStore {
	return &CapturePGStore{pool: pool}
}

func (s *CapturePGStore) Deposit(ctx context.Context, workspaceID string, basketID string, actorID string, mime string, body []byte) (string, error) {
	id, err := newCaptureUUID()
	if err != nil {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_workspace', $1, true);`, workspaceID); err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO governance.raw_captures (capture_id, workspace_id, basket_id, actor_id, mime, body)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6)
`, id, workspaceID, basketID, actorID, mime, body); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}
