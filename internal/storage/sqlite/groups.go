package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/models"
)

// CreateGroup persists a new group with its initial members.
func (q *queries) CreateGroup(ctx context.Context, g *models.Group) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	if g.ReminderThreshold.IsZero() {
		g.ReminderThreshold = models.DefaultReminderThreshold
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, reminder_threshold, created_at) VALUES (?, ?, ?, ?)`,
		g.ID, g.Name, g.ReminderThreshold, toNanos(g.CreatedAt),
	)
	if err != nil {
		return storageErr("failed to insert group", err)
	}

	for _, member := range g.Members {
		if err := q.AddMember(ctx, g.ID, member); err != nil {
			return err
		}
	}
	return nil
}

// GetGroup retrieves a group by ID, including its members.
func (q *queries) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	g := &models.Group{}
	var threshold decimal.Decimal
	var createdAt int64
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, reminder_threshold, created_at FROM groups WHERE id = ?`,
		groupID,
	).Scan(&g.ID, &g.Name, &threshold, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("group", groupID)
	}
	if err != nil {
		return nil, storageErr("failed to get group", err)
	}
	g.ReminderThreshold = threshold
	g.CreatedAt = fromNanos(createdAt)

	g.Members, err = q.MembersOf(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// AddMember adds a participant to a group. Adding an existing member is a no-op.
func (q *queries) AddMember(ctx context.Context, groupID, participantID string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, participant_id) VALUES (?, ?)`,
		groupID, participantID,
	)
	if isForeignKeyViolation(err) {
		return notFound("group or participant", groupID+"/"+participantID)
	}
	if err != nil {
		return storageErr("failed to add group member", err)
	}
	return nil
}

// RemoveMember removes a participant from a group. Past entries keep
// referencing them.
func (q *queries) RemoveMember(ctx context.Context, groupID, participantID string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND participant_id = ?`,
		groupID, participantID,
	)
	if err != nil {
		return storageErr("failed to remove group member", err)
	}
	return nil
}

// MembersOf returns the sorted participant IDs of a group.
func (q *queries) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT participant_id FROM group_members WHERE group_id = ? ORDER BY participant_id`,
		groupID,
	)
	if err != nil {
		return nil, storageErr("failed to get group members", err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("failed to scan group member", err)
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate group members", err)
	}
	return members, nil
}
