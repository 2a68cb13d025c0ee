package calculator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const (
	// CurrencyPlaces is the fixed-point precision of amounts.
	CurrencyPlaces = 2
	// WeightPlaces is the fixed-point precision of share weights.
	WeightPlaces = 4
)

var (
	ErrEmptySplit          = errors.New("split has no consumers")
	ErrInvalidWeight       = errors.New("share weight must be positive")
	ErrParticipantNotFound = errors.New("participant not found in split")
)

// Normalize validates a participant → weight mapping and returns a copy of it.
// Weights are proportional shares: they are not required to sum to 1.
func Normalize(raw map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	if len(raw) == 0 {
		return nil, ErrEmptySplit
	}

	out := make(map[string]decimal.Decimal, len(raw))
	for participant, weight := range raw {
		if participant == "" {
			return nil, fmt.Errorf("%w: empty participant id", ErrInvalidWeight)
		}
		if !weight.IsPositive() {
			return nil, fmt.Errorf("%w: %s has weight %s", ErrInvalidWeight, participant, weight)
		}
		if !weight.Equal(weight.Round(WeightPlaces)) {
			return nil, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidWeight, participant, WeightPlaces)
		}
		out[participant] = weight
	}
	return out, nil
}

// TotalWeight sums the weights of a split.
func TotalWeight(weights map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, w := range weights {
		total = total.Add(w)
	}
	return total
}

// ShareOf returns the fraction of the split owed by participant.
func ShareOf(participant string, weights map[string]decimal.Decimal, totalWeight decimal.Decimal) (decimal.Decimal, error) {
	w, ok := weights[participant]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrParticipantNotFound, participant)
	}
	if !totalWeight.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: total weight %s", ErrInvalidWeight, totalWeight)
	}
	return w.Div(totalWeight), nil
}

// AmountOwed computes participant's part of amount, rounded half-even to
// currency precision.
//
// The rounded parts of all consumers are not adjusted to add up to amount;
// their sum may be off by up to one cent per consumer.
func AmountOwed(amount decimal.Decimal, participant string, weights map[string]decimal.Decimal, totalWeight decimal.Decimal) (decimal.Decimal, error) {
	w, ok := weights[participant]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrParticipantNotFound, participant)
	}
	if !totalWeight.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: total weight %s", ErrInvalidWeight, totalWeight)
	}
	return quoRoundBank(amount.Mul(w), totalWeight, CurrencyPlaces), nil
}

// quoRoundBank divides num by a positive den and rounds the exact quotient
// half-even to places. Rounding an intermediate quotient first would turn
// values just above a half into exact halves.
func quoRoundBank(num, den decimal.Decimal, places int32) decimal.Decimal {
	q, r := num.QuoRem(den, places)
	if r.IsZero() {
		return q
	}

	unit := decimal.New(1, -places)
	twice := r.Abs().Add(r.Abs())
	half := den.Mul(unit)
	cmp := twice.Cmp(half)
	odd := q.Abs().Shift(places).BigInt().Bit(0) == 1
	if cmp > 0 || (cmp == 0 && odd) {
		if num.IsNegative() {
			return q.Sub(unit)
		}
		return q.Add(unit)
	}
	return q
}

// SplitAmounts returns AmountOwed for every participant of the split.
func SplitAmounts(amount decimal.Decimal, weights map[string]decimal.Decimal, totalWeight decimal.Decimal) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(weights))
	for p := range weights {
		owed, err := AmountOwed(amount, p, weights, totalWeight)
		if err != nil {
			return nil, err
		}
		out[p] = owed
	}
	return out, nil
}

// EqualWeights gives every participant a weight of 1.
func EqualWeights(participants []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(participants))
	for _, p := range participants {
		out[p] = decimal.NewFromInt(1)
	}
	return out
}

// SortedParticipants returns the keys of a split in a stable order.
func SortedParticipants(weights map[string]decimal.Decimal) []string {
	out := make([]string, 0, len(weights))
	for p := range weights {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
