package ledger

import (
	"context"
	"time"

	"github.com/mmynk/sharedledger/internal/clock"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

// ModLog is the append-only audit trail of who changed which record.
type ModLog struct {
	store storage.Store
	clock clock.Clock
}

func NewModLog(store storage.Store, clk clock.Clock) *ModLog {
	return &ModLog{store: store, clock: clk}
}

// Record appends one audit record. It only fails when storage does.
func (m *ModLog) Record(ctx context.Context, actorID string, target models.TargetRef, action models.Action) (*models.ModificationRecord, error) {
	return record(ctx, m.store, actorID, target, action, m.clock.Now())
}

// History lists the records of one target, newest first.
func (m *ModLog) History(ctx context.Context, target models.TargetRef) ([]*models.ModificationRecord, error) {
	return m.store.ListModifications(ctx, target)
}

// Orphaned lists the records whose target has since been removed.
func (m *ModLog) Orphaned(ctx context.Context) ([]*models.ModificationRecord, error) {
	return m.store.ListOrphanedModifications(ctx)
}

// record writes an audit row through q, which is usually the transaction of
// the mutation being recorded.
func record(ctx context.Context, q storage.ModificationQueries, actorID string, target models.TargetRef, action models.Action, at time.Time) (*models.ModificationRecord, error) {
	rec := &models.ModificationRecord{
		ActorID:   actorID,
		Target:    target,
		Action:    action,
		Timestamp: at,
	}
	if err := q.CreateModification(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
