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

const templateColumns = `id, description, amount, group_id, payer_id, total_weight,
	start_date, rule, last_materialized, created_at, last_modified_at`

type templateRow struct {
	tmpl        *models.RecurringTemplate
	totalWeight decimal.Decimal
}

func scanTemplate(sc rowScanner) (templateRow, error) {
	t := &models.RecurringTemplate{}
	var total decimal.Decimal
	var start string
	var last sql.NullString
	var createdAt, modifiedAt int64

	if err := sc.Scan(&t.ID, &t.Description, &t.Amount, &t.GroupID, &t.PayerID, &total,
		&start, &t.Rule, &last, &createdAt, &modifiedAt); err != nil {
		return templateRow{}, err
	}

	var err error
	if t.StartDate, err = parseDate(start); err != nil {
		return templateRow{}, err
	}
	if last.Valid {
		if t.LastMaterialized, err = parseDate(last.String); err != nil {
			return templateRow{}, err
		}
	}
	t.CreatedAt = fromNanos(createdAt)
	t.LastModifiedAt = fromNanos(modifiedAt)
	return templateRow{tmpl: t, totalWeight: total}, nil
}

// CreateTemplate persists a recurring template with its split rows.
func (q *queries) CreateTemplate(ctx context.Context, t *models.RecurringTemplate) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.LastModifiedAt.IsZero() {
		t.LastModifiedAt = t.CreatedAt
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO recurring_templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Description, t.Amount, t.GroupID, t.PayerID, t.Shares.TotalWeight(),
		formatDate(t.StartDate), t.Rule, nullableDate(t.LastMaterialized),
		toNanos(t.CreatedAt), toNanos(t.LastModifiedAt),
	)
	if isForeignKeyViolation(err) {
		return notFound("group or payer", t.GroupID+"/"+t.PayerID)
	}
	if err != nil {
		return storageErr("failed to insert template", err)
	}

	return q.insertSplits(ctx, templateSplits, t.ID, t.Shares)
}

// GetTemplate retrieves a template by ID, including its split rows.
func (q *queries) GetTemplate(ctx context.Context, templateID string) (*models.RecurringTemplate, error) {
	row, err := scanTemplate(q.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE id = ?`, templateID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("template", templateID)
	}
	if err != nil {
		return nil, storageErr("failed to get template", err)
	}

	row.tmpl.Shares, err = q.loadShares(ctx, templateSplits, templateID, row.totalWeight)
	if err != nil {
		return nil, err
	}
	return row.tmpl, nil
}

// ListTemplates returns every recurring template, ordered by ID.
func (q *queries) ListTemplates(ctx context.Context) ([]*models.RecurringTemplate, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates ORDER BY id`)
	if err != nil {
		return nil, storageErr("failed to list templates", err)
	}

	var scanned []templateRow
	for rows.Next() {
		row, err := scanTemplate(rows)
		if err != nil {
			rows.Close()
			return nil, storageErr("failed to scan template", err)
		}
		scanned = append(scanned, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("failed to iterate templates", err)
	}
	rows.Close()

	templates := make([]*models.RecurringTemplate, 0, len(scanned))
	for _, row := range scanned {
		row.tmpl.Shares, err = q.loadShares(ctx, templateSplits, row.tmpl.ID, row.totalWeight)
		if err != nil {
			return nil, err
		}
		templates = append(templates, row.tmpl)
	}
	return templates, nil
}

// DeleteTemplate removes a template. Entries it produced stay, detached.
func (q *queries) DeleteTemplate(ctx context.Context, templateID string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM recurring_templates WHERE id = ?`, templateID)
	if err != nil {
		return storageErr("failed to delete template", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storageErr("failed to delete template", err)
	} else if n == 0 {
		return notFound("template", templateID)
	}
	return nil
}

// AdvanceWatermark moves last_materialized forward to date. Dates compare
// correctly as ISO strings.
func (q *queries) AdvanceWatermark(ctx context.Context, templateID string, date time.Time) error {
	day := formatDate(date)
	res, err := q.db.ExecContext(ctx,
		`UPDATE recurring_templates SET last_materialized = ?
		 WHERE id = ? AND (last_materialized IS NULL OR last_materialized < ?)`,
		day, templateID, day,
	)
	if err != nil {
		return storageErr("failed to advance watermark", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("failed to advance watermark", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := q.GetTemplate(ctx, templateID); err != nil {
		return err
	}
	return fmt.Errorf("template %s on %s: %w", templateID, day, models.ErrAlreadyMaterialized)
}
