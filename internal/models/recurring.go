package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurringTemplate describes an expense that is materialized into a new
// LedgerEntry every time its rule comes due.
type RecurringTemplate struct {
	ID          string
	Description string
	Amount      decimal.Decimal
	GroupID     string
	PayerID     string
	Shares      Shares

	// StartDate is the first possible occurrence (UTC midnight).
	StartDate time.Time

	// Rule is the stored recurrence rule text, e.g.
	// "RRULE:FREQ=MONTHLY;INTERVAL=1" or "CRON:0 0 1 * *".
	Rule string

	// LastMaterialized is the watermark: the date of the newest occurrence
	// already turned into an entry. The zero value means none yet.
	LastMaterialized time.Time

	CreatedAt      time.Time
	LastModifiedAt time.Time
}

// HasMaterialized reports whether any occurrence was materialized yet.
func (t *RecurringTemplate) HasMaterialized() bool {
	return !t.LastMaterialized.IsZero()
}

// Occurrence builds the entry snapshot for one occurrence date. The copy is
// taken at materialization time so later template edits do not rewrite
// history.
func (t *RecurringTemplate) Occurrence(date, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		Description:         t.Description,
		Amount:              t.Amount,
		GroupID:             t.GroupID,
		PayerID:             t.PayerID,
		Shares:              t.Shares,
		OccurredAt:          date,
		CreatedAt:           now,
		LastModifiedAt:      now,
		RecurringTemplateID: t.ID,
		OccurrenceDate:      date,
	}
}
