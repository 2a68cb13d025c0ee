package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/calculator"
	"github.com/mmynk/sharedledger/internal/models"
)

// ValidateAmount checks that amount is positive with at most two decimal places.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", models.ErrValidationFailed, amount)
	}
	if !amount.Equal(amount.Truncate(calculator.CurrencyPlaces)) {
		return fmt.Errorf("%w: amount %s has more than %d decimal places", models.ErrValidationFailed, amount, calculator.CurrencyPlaces)
	}
	return nil
}

// ValidateEntry checks every invariant an entry must hold before it is
// committed: a valid amount, a non-empty split, and a payer and consumers
// who all belong to the entry's group.
func ValidateEntry(ctx context.Context, dir MembershipDirectory, e *models.LedgerEntry) error {
	if err := ValidateAmount(e.Amount); err != nil {
		return err
	}
	if e.GroupID == "" || e.PayerID == "" {
		return fmt.Errorf("%w: group and payer are required", models.ErrValidationFailed)
	}
	if e.Shares.IsEmpty() {
		return models.ErrEmptySplit
	}
	return requireMembers(ctx, dir, e.GroupID, e.Participants()...)
}
