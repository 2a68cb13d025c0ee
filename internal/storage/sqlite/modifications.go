package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/sharedledger/internal/models"
)

// CreateModification appends an audit record.
func (q *queries) CreateModification(ctx context.Context, rec *models.ModificationRecord) error {
	if err := rec.Target.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO modifications (id, actor_id, action, target_kind, target_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ActorID, string(rec.Action), string(rec.Target.Kind), rec.Target.ID, toNanos(rec.Timestamp),
	)
	if err != nil {
		return storageErr("failed to insert modification", err)
	}
	return nil
}

// ListModifications returns the audit records of one target, newest first.
func (q *queries) ListModifications(ctx context.Context, target models.TargetRef) ([]*models.ModificationRecord, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return q.listModifications(ctx,
		`SELECT id, actor_id, action, target_kind, target_id, created_at FROM modifications
		 WHERE target_kind = ? AND target_id = ? ORDER BY created_at DESC, id`,
		string(target.Kind), target.ID)
}

// ListOrphanedModifications returns the audit records whose target is gone.
func (q *queries) ListOrphanedModifications(ctx context.Context) ([]*models.ModificationRecord, error) {
	return q.listModifications(ctx,
		`SELECT id, actor_id, action, target_kind, target_id, created_at FROM modifications
		 WHERE target_kind IS NULL ORDER BY created_at DESC, id`)
}

func (q *queries) listModifications(ctx context.Context, query string, args ...any) ([]*models.ModificationRecord, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to list modifications", err)
	}
	defer rows.Close()

	var records []*models.ModificationRecord
	for rows.Next() {
		rec := &models.ModificationRecord{}
		var action string
		var kind, id sql.NullString
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.ActorID, &action, &kind, &id, &createdAt); err != nil {
			return nil, storageErr("failed to scan modification", err)
		}
		rec.Action = models.Action(action)
		rec.Timestamp = fromNanos(createdAt)
		if rec.Target, err = models.ParseTargetRef(kind.String, id.String); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate modifications", err)
	}
	return records, nil
}
