package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/models"
)

const entryColumns = `e.id, e.description, e.amount, e.group_id, e.payer_id, e.total_weight,
	e.occurred_at, e.created_at, e.last_modified_at, e.recurring_template_id, e.occurrence_date`

// entryRow is an entry as scanned, before its split rows are attached.
type entryRow struct {
	entry       *models.LedgerEntry
	totalWeight decimal.Decimal
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc rowScanner) (entryRow, error) {
	e := &models.LedgerEntry{}
	var total decimal.Decimal
	var occurredAt, createdAt, modifiedAt int64
	var templateID, occurrence sql.NullString

	if err := sc.Scan(&e.ID, &e.Description, &e.Amount, &e.GroupID, &e.PayerID, &total,
		&occurredAt, &createdAt, &modifiedAt, &templateID, &occurrence); err != nil {
		return entryRow{}, err
	}

	e.OccurredAt = fromNanos(occurredAt)
	e.CreatedAt = fromNanos(createdAt)
	e.LastModifiedAt = fromNanos(modifiedAt)
	if templateID.Valid {
		e.RecurringTemplateID = templateID.String
	}
	if occurrence.Valid {
		date, err := parseDate(occurrence.String)
		if err != nil {
			return entryRow{}, err
		}
		e.OccurrenceDate = date
	}
	return entryRow{entry: e, totalWeight: total}, nil
}

// CreateEntry persists a new ledger entry with its split rows.
func (q *queries) CreateEntry(ctx context.Context, e *models.LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.LastModifiedAt.IsZero() {
		e.LastModifiedAt = e.CreatedAt
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = e.CreatedAt
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, description, amount, group_id, payer_id, total_weight,
			occurred_at, created_at, last_modified_at, recurring_template_id, occurrence_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Description, e.Amount, e.GroupID, e.PayerID, e.TotalWeight(),
		toNanos(e.OccurredAt), toNanos(e.CreatedAt), toNanos(e.LastModifiedAt),
		nullableString(e.RecurringTemplateID), nullableDate(e.OccurrenceDate),
	)
	if isUniqueViolation(err) && e.RecurringTemplateID != "" {
		return fmt.Errorf("template %s on %s: %w", e.RecurringTemplateID, formatDate(e.OccurrenceDate), models.ErrAlreadyMaterialized)
	}
	if isForeignKeyViolation(err) {
		return notFound("group or payer", e.GroupID+"/"+e.PayerID)
	}
	if err != nil {
		return storageErr("failed to insert entry", err)
	}

	return q.insertSplits(ctx, entrySplits, e.ID, e.Shares)
}

// GetEntry retrieves an entry by ID, including its split rows.
func (q *queries) GetEntry(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	row, err := scanEntry(q.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries e WHERE e.id = ?`, entryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("entry", entryID)
	}
	if err != nil {
		return nil, storageErr("failed to get entry", err)
	}

	row.entry.Shares, err = q.loadShares(ctx, entrySplits, entryID, row.totalWeight)
	if err != nil {
		return nil, err
	}
	return row.entry, nil
}

// UpdateEntry writes the editable scalar fields of an entry.
func (q *queries) UpdateEntry(ctx context.Context, e *models.LedgerEntry) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE ledger_entries SET description = ?, amount = ?, occurred_at = ?, last_modified_at = ?
		 WHERE id = ?`,
		e.Description, e.Amount, toNanos(e.OccurredAt), toNanos(e.LastModifiedAt), e.ID,
	)
	if err != nil {
		return storageErr("failed to update entry", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storageErr("failed to update entry", err)
	} else if n == 0 {
		return notFound("entry", e.ID)
	}
	return nil
}

// ReplaceShares swaps the split rows of an entry and rewrites its cached
// total weight. The total is written last.
func (q *queries) ReplaceShares(ctx context.Context, entryID string, shares models.Shares, modifiedAt time.Time) error {
	if err := q.deleteSplits(ctx, entrySplits, entryID); err != nil {
		return err
	}
	if err := q.insertSplits(ctx, entrySplits, entryID, shares); err != nil {
		return err
	}

	res, err := q.db.ExecContext(ctx,
		`UPDATE ledger_entries SET total_weight = ?, last_modified_at = ? WHERE id = ?`,
		shares.TotalWeight(), toNanos(modifiedAt), entryID,
	)
	if err != nil {
		return storageErr("failed to update total weight", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storageErr("failed to update total weight", err)
	} else if n == 0 {
		return notFound("entry", entryID)
	}
	return nil
}

// ListEntriesByPayer returns the entries paid by a participant.
func (q *queries) ListEntriesByPayer(ctx context.Context, participantID string) ([]*models.LedgerEntry, error) {
	return q.listEntries(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries e
		 WHERE e.payer_id = ? ORDER BY e.last_modified_at DESC, e.id`,
		participantID)
}

// ListEntriesByConsumer returns the entries a participant consumes.
func (q *queries) ListEntriesByConsumer(ctx context.Context, participantID string) ([]*models.LedgerEntry, error) {
	return q.listEntries(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries e
		 JOIN entry_splits s ON s.entry_id = e.id
		 WHERE s.participant_id = ? ORDER BY e.last_modified_at DESC, e.id`,
		participantID)
}

// ListEntriesByGroup returns every entry of a group.
func (q *queries) ListEntriesByGroup(ctx context.Context, groupID string) ([]*models.LedgerEntry, error) {
	return q.listEntries(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries e
		 WHERE e.group_id = ? ORDER BY e.last_modified_at DESC, e.id`,
		groupID)
}

// ListEntriesByTemplate returns the occurrences materialized from a template,
// oldest occurrence first.
func (q *queries) ListEntriesByTemplate(ctx context.Context, templateID string) ([]*models.LedgerEntry, error) {
	return q.listEntries(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries e
		 WHERE e.recurring_template_id = ? ORDER BY e.occurrence_date`,
		templateID)
}

// listEntries reads all matching rows first and only then loads split rows,
// so no two result sets are open on one connection.
func (q *queries) listEntries(ctx context.Context, query string, args ...any) ([]*models.LedgerEntry, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to list entries", err)
	}

	var scanned []entryRow
	for rows.Next() {
		row, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, storageErr("failed to scan entry", err)
		}
		scanned = append(scanned, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("failed to iterate entries", err)
	}
	rows.Close()

	entries := make([]*models.LedgerEntry, 0, len(scanned))
	for _, row := range scanned {
		row.entry.Shares, err = q.loadShares(ctx, entrySplits, row.entry.ID, row.totalWeight)
		if err != nil {
			return nil, err
		}
		entries = append(entries, row.entry)
	}
	return entries, nil
}
