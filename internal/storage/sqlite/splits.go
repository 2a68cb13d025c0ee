package sqlite

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/models"
)

// splitTable describes one of the participant → weight tables.
type splitTable struct {
	name     string
	ownerCol string
}

var (
	entrySplits    = splitTable{name: "entry_splits", ownerCol: "entry_id"}
	templateSplits = splitTable{name: "template_splits", ownerCol: "template_id"}
)

func (q *queries) insertSplits(ctx context.Context, t splitTable, ownerID string, shares models.Shares) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, participant_id, weight) VALUES (?, ?, ?)`, t.name, t.ownerCol)
	for _, p := range shares.Consumers() {
		w, _ := shares.Weight(p)
		if _, err := q.db.ExecContext(ctx, query, ownerID, p, w); err != nil {
			if isForeignKeyViolation(err) {
				return notFound("participant", p)
			}
			return storageErr("failed to insert split", err)
		}
	}
	return nil
}

func (q *queries) deleteSplits(ctx context.Context, t splitTable, ownerID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, t.name, t.ownerCol)
	if _, err := q.db.ExecContext(ctx, query, ownerID); err != nil {
		return storageErr("failed to delete splits", err)
	}
	return nil
}

// loadShares reads the split rows of one owner and checks them against the
// cached total weight stored on the owner row.
func (q *queries) loadShares(ctx context.Context, t splitTable, ownerID string, cachedTotal decimal.Decimal) (models.Shares, error) {
	query := fmt.Sprintf(`SELECT participant_id, weight FROM %s WHERE %s = ?`, t.name, t.ownerCol)
	rows, err := q.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return models.Shares{}, storageErr("failed to get splits", err)
	}
	defer rows.Close()

	weights := make(map[string]decimal.Decimal)
	for rows.Next() {
		var p string
		var w decimal.Decimal
		if err := rows.Scan(&p, &w); err != nil {
			return models.Shares{}, storageErr("failed to scan split", err)
		}
		weights[p] = w
	}
	if err := rows.Err(); err != nil {
		return models.Shares{}, storageErr("failed to iterate splits", err)
	}

	shares, err := models.RestoreShares(weights, cachedTotal)
	if err != nil {
		return models.Shares{}, fmt.Errorf("%s %s: %w", t.ownerCol, ownerID, err)
	}
	return shares, nil
}
