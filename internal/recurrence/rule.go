// Package recurrence turns recurring templates into ledger entries.
//
// A template carries a Rule (stored as text) and a watermark, the date of
// the newest occurrence already materialized. NextDue finds the first
// occurrence after the watermark and Engine.MaterializeDue creates entries
// for every occurrence up to a given date, advancing the watermark together
// with each entry.
//
// All dates are UTC midnights.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmynk/sharedledger/internal/clock"
	"github.com/mmynk/sharedledger/internal/models"
)

// ErrInvalidRule is returned for rule text that cannot be parsed.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Rule yields the occurrence dates of a series anchored at a start date.
type Rule interface {
	// Next returns the earliest occurrence on or after from, or false when
	// the series has no such occurrence.
	Next(start, from time.Time) (time.Time, bool)

	// String returns the canonical stored form of the rule.
	String() string
}

// Frequency is the unit an IntervalRule steps by.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// stepFunc returns the n-th occurrence of a series anchored at start,
// stepping interval units at a time.
type stepFunc func(start time.Time, n, interval int) time.Time

// frequencySteps maps each frequency to its date arithmetic.
var frequencySteps = map[Frequency]stepFunc{
	Daily: func(start time.Time, n, interval int) time.Time {
		return start.AddDate(0, 0, n*interval)
	},
	Weekly: func(start time.Time, n, interval int) time.Time {
		return start.AddDate(0, 0, 7*n*interval)
	},
	Monthly: func(start time.Time, n, interval int) time.Time {
		return addMonthsClamped(start, n*interval)
	},
	Yearly: func(start time.Time, n, interval int) time.Time {
		return addMonthsClamped(start, 12*n*interval)
	},
}

// addMonthsClamped moves start by months, keeping its day of month where the
// target month has it and using the last day otherwise. Always computed from
// the anchor, so Jan 31 gives Feb 29 (leap) and then Mar 31.
func addMonthsClamped(start time.Time, months int) time.Time {
	first := time.Date(start.Year(), start.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	day := start.Day()
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IntervalRule repeats every Interval units of Freq, optionally bounded by
// a number of occurrences (Count) or a last date (Until).
type IntervalRule struct {
	Freq     Frequency
	Interval int

	// Count limits the series to this many occurrences; 0 means unbounded.
	Count int

	// Until is the last permitted date, inclusive; zero means unbounded.
	Until time.Time
}

// Every builds an unbounded interval rule.
func Every(interval int, freq Frequency) IntervalRule {
	return IntervalRule{Freq: freq, Interval: interval}
}

// Validate checks the rule's fields.
func (r IntervalRule) Validate() error {
	if _, ok := frequencySteps[r.Freq]; !ok {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, r.Freq)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1, got %d", ErrInvalidRule, r.Interval)
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: count must not be negative", ErrInvalidRule)
	}
	if r.Count > 0 && !r.Until.IsZero() {
		return fmt.Errorf("%w: COUNT and UNTIL are mutually exclusive", ErrInvalidRule)
	}
	return nil
}

func (r IntervalRule) Next(start, from time.Time) (time.Time, bool) {
	step, ok := frequencySteps[r.Freq]
	if !ok || r.Interval < 1 {
		return time.Time{}, false
	}
	start = clock.Date(start)
	from = clock.Date(from)
	if from.Before(start) {
		from = start
	}

	for n := r.firstCandidate(start, from); ; n++ {
		if r.Count > 0 && n >= r.Count {
			return time.Time{}, false
		}
		occ := step(start, n, r.Interval)
		if !r.Until.IsZero() && occ.After(clock.Date(r.Until)) {
			return time.Time{}, false
		}
		if !occ.Before(from) {
			return occ, true
		}
	}
}

// firstCandidate skips ahead to an occurrence index at or just before from,
// so the scan in Next stays short for long-running series.
func (r IntervalRule) firstCandidate(start, from time.Time) int {
	switch r.Freq {
	case Daily, Weekly:
		days := int(from.Sub(start).Hours() / 24)
		unit := r.Interval
		if r.Freq == Weekly {
			unit *= 7
		}
		return days / unit
	case Monthly, Yearly:
		months := (from.Year()-start.Year())*12 + int(from.Month()-start.Month())
		unit := r.Interval
		if r.Freq == Yearly {
			unit *= 12
		}
		if n := months/unit - 1; n > 0 {
			return n
		}
	}
	return 0
}

func (r IntervalRule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sFREQ=%s;INTERVAL=%d", rrulePrefix, r.Freq, r.Interval)
	if r.Count > 0 {
		fmt.Fprintf(&b, ";COUNT=%d", r.Count)
	}
	if !r.Until.IsZero() {
		fmt.Fprintf(&b, ";UNTIL=%s", r.Until.UTC().Format(untilLayout))
	}
	return b.String()
}

// NextDue returns the first occurrence of a template not yet materialized:
// the earliest date permitted by its rule on or after
// max(watermark + 1 day, start date + 1 day). The start date itself is the
// template's own occurrence and is never materialized, and nothing on or
// before the watermark is produced again. It reports false once a bounded
// rule is exhausted.
func NextDue(t *models.RecurringTemplate) (time.Time, bool, error) {
	rule, err := Parse(t.Rule)
	if err != nil {
		return time.Time{}, false, err
	}
	due, ok := nextDue(rule, t)
	return due, ok, nil
}

func nextDue(rule Rule, t *models.RecurringTemplate) (time.Time, bool) {
	start := clock.Date(t.StartDate)
	from := start.AddDate(0, 0, 1)
	if t.HasMaterialized() {
		if next := clock.Date(t.LastMaterialized).AddDate(0, 0, 1); next.After(from) {
			from = next
		}
	}
	return rule.Next(start, from)
}
