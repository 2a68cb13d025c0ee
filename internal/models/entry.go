package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/calculator"
)

// LedgerEntry is one shared expense: the payer fronted Amount and the
// consumers in Shares owe it back in proportion to their weights.
type LedgerEntry struct {
	// ID is the unique identifier for the entry (UUID format).
	ID string

	Description string

	// Amount is positive with at most two decimal places.
	Amount decimal.Decimal

	GroupID string
	PayerID string

	// Shares holds the consumer weights and their cached total. It is
	// replaced as a whole; there is no way to edit single weights in place.
	Shares Shares

	// OccurredAt is when the expense happened (UTC). For materialized
	// occurrences this is the occurrence date.
	OccurredAt time.Time

	CreatedAt      time.Time
	LastModifiedAt time.Time

	// RecurringTemplateID and OccurrenceDate are set when the entry was
	// materialized from a recurring template.
	RecurringTemplateID string
	OccurrenceDate      time.Time
}

// TotalWeight is the cached sum of the consumer weights.
func (e *LedgerEntry) TotalWeight() decimal.Decimal {
	return e.Shares.TotalWeight()
}

// AmountOwedBy is the rounded part of the entry owed by a consumer.
func (e *LedgerEntry) AmountOwedBy(participantID string) (decimal.Decimal, error) {
	return e.Shares.AmountOwed(e.Amount, participantID)
}

// Effects returns the signed balance effect of the entry per participant:
// the payer gets +Amount and every consumer gets -AmountOwedBy. A payer who
// also consumes gets both.
func (e *LedgerEntry) Effects() (map[string]decimal.Decimal, error) {
	return calculator.EntryEffects(e.ForBalance())
}

// ForBalance strips the entry down to what balance arithmetic needs.
func (e *LedgerEntry) ForBalance() calculator.EntryForBalance {
	return calculator.EntryForBalance{
		Amount:      e.Amount,
		PayerID:     e.PayerID,
		Weights:     e.Shares.Weights(),
		TotalWeight: e.Shares.TotalWeight(),
	}
}

// Participants returns the payer and every consumer, without duplicates.
func (e *LedgerEntry) Participants() []string {
	out := []string{e.PayerID}
	for _, p := range e.Shares.Consumers() {
		if p != e.PayerID {
			out = append(out, p)
		}
	}
	return out
}
