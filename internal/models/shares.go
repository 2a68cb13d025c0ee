package models

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/calculator"
)

// Shares is a validated consumer → weight mapping together with its cached
// total weight. The zero value is an empty split and is not valid for a
// committed entry.
type Shares struct {
	weights map[string]decimal.Decimal
	total   decimal.Decimal
}

// NewShares validates raw weights and computes their total.
func NewShares(raw map[string]decimal.Decimal) (Shares, error) {
	weights, err := calculator.Normalize(raw)
	if err != nil {
		return Shares{}, err
	}
	return Shares{weights: weights, total: calculator.TotalWeight(weights)}, nil
}

// RestoreShares rebuilds persisted shares and checks the persisted total
// against the sum of the weights.
func RestoreShares(weights map[string]decimal.Decimal, cachedTotal decimal.Decimal) (Shares, error) {
	s, err := NewShares(weights)
	if err != nil {
		return Shares{}, err
	}
	if !s.total.Equal(cachedTotal) {
		return Shares{}, fmt.Errorf("%w: cached total weight %s does not match sum %s", ErrValidationFailed, cachedTotal, s.total)
	}
	return s, nil
}

// Weights returns a copy of the consumer → weight mapping.
func (s Shares) Weights() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.weights))
	for p, w := range s.weights {
		out[p] = w
	}
	return out
}

// Weight returns the weight of one consumer.
func (s Shares) Weight(participantID string) (decimal.Decimal, bool) {
	w, ok := s.weights[participantID]
	return w, ok
}

// TotalWeight is the cached sum of all weights.
func (s Shares) TotalWeight() decimal.Decimal {
	return s.total
}

// Len is the number of consumers.
func (s Shares) Len() int {
	return len(s.weights)
}

// IsEmpty reports whether there are no consumers.
func (s Shares) IsEmpty() bool {
	return len(s.weights) == 0
}

// Consumers returns the consumer IDs in sorted order.
func (s Shares) Consumers() []string {
	return calculator.SortedParticipants(s.weights)
}

// AmountOwed is the rounded part of amount owed by participantID.
func (s Shares) AmountOwed(amount decimal.Decimal, participantID string) (decimal.Decimal, error) {
	return calculator.AmountOwed(amount, participantID, s.weights, s.total)
}
