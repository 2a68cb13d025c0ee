package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/calculator"
)

// Settlement is a direct transfer between two group members. The whole
// amount counts for the receiver and against the sender.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	GroupID    string
	SenderID   string
	ReceiverID string

	// Amount is positive with at most two decimal places.
	Amount decimal.Decimal

	// Comment is optional free text (e.g., "Paid via bank transfer").
	Comment string

	OccurredAt     time.Time
	CreatedAt      time.Time
	LastModifiedAt time.Time
}

// Effects returns the signed balance effect per party: +Amount for the
// receiver and -Amount for the sender.
func (s *Settlement) Effects() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		s.ReceiverID: s.Amount,
		s.SenderID:   s.Amount.Neg(),
	}
}

// ForBalance strips the settlement down to what balance arithmetic needs.
func (s *Settlement) ForBalance() calculator.SettlementForBalance {
	return calculator.SettlementForBalance{SenderID: s.SenderID, ReceiverID: s.ReceiverID, Amount: s.Amount}
}
