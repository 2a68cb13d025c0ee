package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/sharedledger/internal/models"
)

const settlementColumns = `id, group_id, sender_id, receiver_id, amount, comment, occurred_at, created_at, last_modified_at`

func scanSettlement(sc rowScanner) (*models.Settlement, error) {
	s := &models.Settlement{}
	var comment sql.NullString
	var occurredAt, createdAt, modifiedAt int64

	if err := sc.Scan(&s.ID, &s.GroupID, &s.SenderID, &s.ReceiverID, &s.Amount, &comment,
		&occurredAt, &createdAt, &modifiedAt); err != nil {
		return nil, err
	}
	if comment.Valid {
		s.Comment = comment.String
	}
	s.OccurredAt = fromNanos(occurredAt)
	s.CreatedAt = fromNanos(createdAt)
	s.LastModifiedAt = fromNanos(modifiedAt)
	return s, nil
}

// CreateSettlement persists a new settlement to the database.
func (q *queries) CreateSettlement(ctx context.Context, s *models.Settlement) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.LastModifiedAt.IsZero() {
		s.LastModifiedAt = s.CreatedAt
	}
	if s.OccurredAt.IsZero() {
		s.OccurredAt = s.CreatedAt
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO settlements (`+settlementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.GroupID, s.SenderID, s.ReceiverID, s.Amount, nullableString(s.Comment),
		toNanos(s.OccurredAt), toNanos(s.CreatedAt), toNanos(s.LastModifiedAt),
	)
	if isForeignKeyViolation(err) {
		return notFound("group or participant", s.GroupID)
	}
	if err != nil {
		return storageErr("failed to insert settlement", err)
	}
	return nil
}

// GetSettlement retrieves a settlement by ID.
func (q *queries) GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	s, err := scanSettlement(q.db.QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE id = ?`, settlementID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("settlement", settlementID)
	}
	if err != nil {
		return nil, storageErr("failed to get settlement", err)
	}
	return s, nil
}

// ListSettlementsBySender returns the settlements a participant sent.
func (q *queries) ListSettlementsBySender(ctx context.Context, participantID string) ([]*models.Settlement, error) {
	return q.listSettlements(ctx,
		`SELECT `+settlementColumns+` FROM settlements
		 WHERE sender_id = ? ORDER BY last_modified_at DESC, id`, participantID)
}

// ListSettlementsByReceiver returns the settlements a participant received.
func (q *queries) ListSettlementsByReceiver(ctx context.Context, participantID string) ([]*models.Settlement, error) {
	return q.listSettlements(ctx,
		`SELECT `+settlementColumns+` FROM settlements
		 WHERE receiver_id = ? ORDER BY last_modified_at DESC, id`, participantID)
}

// ListSettlementsByGroup retrieves all settlements for a group.
func (q *queries) ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	return q.listSettlements(ctx,
		`SELECT `+settlementColumns+` FROM settlements
		 WHERE group_id = ? ORDER BY last_modified_at DESC, id`, groupID)
}

func (q *queries) listSettlements(ctx context.Context, query string, args ...any) ([]*models.Settlement, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to list settlements", err)
	}
	defer rows.Close()

	var settlements []*models.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, storageErr("failed to scan settlement", err)
		}
		settlements = append(settlements, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate settlements", err)
	}
	return settlements, nil
}

// DeleteSettlement removes a settlement by ID. Audit records that pointed
// at it keep existing with a cleared target.
func (q *queries) DeleteSettlement(ctx context.Context, settlementID string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM settlements WHERE id = ?`, settlementID)
	if err != nil {
		return storageErr("failed to delete settlement", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storageErr("failed to delete settlement", err)
	} else if n == 0 {
		return notFound("settlement", settlementID)
	}
	return nil
}
