package persistence

import (
	"context"
	"encoding/json"

	"github.com/rowanvale/substratum/modules/governance/domain/ports"
)

// TimelinePGStore appends audit events. The table is append-only; nothing in
// this store updates or deletes.
type TimelinePGStore struct {
	pool pgPool
}

func NewTimelinePGStore(pool pgPool) ports.TimelineSink {
	return &TimelinePGStore{pool: pool}
}

func (s *TimelinePGStore) Append(ctx context.Context, event ports.TimelineEvent) error {
	summary, err := json.Marshal(event.Summary)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_workspace', $1, true);`, event.WorkspaceID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO governance.timeline_events
  (kind, ref_id, workspace_id, basket_id, actor_id, summary, occurred_at)
VALUES ($1, $2::uuid, $3::uuid, $4::uuid, $5, $6::jsonb, $7)
`, event.Kind, event.RefID, event.WorkspaceID, event.BasketID, event.ActorID, summary, event.OccurredAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
