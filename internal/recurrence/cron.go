package recurrence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mmynk/sharedledger/internal/clock"
)

// CronRule fires on the days matched by a standard five-field cron
// expression. Only the date of each firing counts.
type CronRule struct {
	Spec     string
	schedule cron.Schedule
}

// ParseCron builds a CronRule from a five-field expression or a descriptor
// such as "@monthly". "@every" is rejected: its firings count from whatever
// time it is asked about, not from the template's start date.
func ParseCron(spec string) (CronRule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return CronRule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if _, ok := schedule.(cron.ConstantDelaySchedule); ok {
		return CronRule{}, fmt.Errorf("%w: %q is not anchored to a start date, use RRULE:FREQ=DAILY;INTERVAL=n", ErrInvalidRule, spec)
	}
	return CronRule{Spec: spec, schedule: schedule}, nil
}

func (r CronRule) Next(start, from time.Time) (time.Time, bool) {
	if r.schedule == nil {
		return time.Time{}, false
	}
	start = clock.Date(start)
	from = clock.Date(from)
	if from.Before(start) {
		from = start
	}

	// cron looks strictly after its argument; step back so a firing at
	// midnight on from itself counts.
	next := r.schedule.Next(from.Add(-time.Nanosecond))
	if next.IsZero() {
		return time.Time{}, false
	}
	return clock.Date(next), true
}

func (r CronRule) String() string {
	return cronPrefix + r.Spec
}
