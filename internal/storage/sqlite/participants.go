package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/sharedledger/internal/models"
)

// CreateParticipant inserts a new participant into the database.
func (q *queries) CreateParticipant(ctx context.Context, p *models.Participant) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO participants (id, display_name, created_at) VALUES (?, ?, ?)`,
		p.ID, p.DisplayName, toNanos(p.CreatedAt),
	)
	if err != nil {
		return storageErr("failed to create participant", err)
	}
	return nil
}

// GetParticipant retrieves a participant by their ID.
func (q *queries) GetParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	p := &models.Participant{}
	var createdAt int64
	err := q.db.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM participants WHERE id = ?`,
		participantID,
	).Scan(&p.ID, &p.DisplayName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("participant", participantID)
	}
	if err != nil {
		return nil, storageErr("failed to get participant", err)
	}
	p.CreatedAt = fromNanos(createdAt)
	return p, nil
}

// participantReferences lists every place a participant can be referenced
// from ledger records.
var participantReferences = []string{
	`SELECT 1 FROM ledger_entries WHERE payer_id = ? LIMIT 1`,
	`SELECT 1 FROM entry_splits WHERE participant_id = ? LIMIT 1`,
	`SELECT 1 FROM settlements WHERE sender_id = ?1 OR receiver_id = ?1 LIMIT 1`,
	`SELECT 1 FROM recurring_templates WHERE payer_id = ? LIMIT 1`,
	`SELECT 1 FROM template_splits WHERE participant_id = ? LIMIT 1`,
}

// DeleteParticipant removes a participant who is not referenced by any
// ledger record. Group memberships go with them.
func (q *queries) DeleteParticipant(ctx context.Context, participantID string) error {
	if _, err := q.GetParticipant(ctx, participantID); err != nil {
		return err
	}

	for _, query := range participantReferences {
		var one int
		err := q.db.QueryRowContext(ctx, query, participantID).Scan(&one)
		if err == nil {
			return fmt.Errorf("participant %s: %w", participantID, models.ErrParticipantReferenced)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return storageErr("failed to check participant references", err)
		}
	}

	_, err := q.db.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, participantID)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("participant %s: %w", participantID, models.ErrParticipantReferenced)
	}
	if err != nil {
		return storageErr("failed to delete participant", err)
	}
	return nil
}
