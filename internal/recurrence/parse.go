package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	rrulePrefix = "RRULE:"
	cronPrefix  = "CRON:"
	untilLayout = "20060102"
)

// Parse decodes stored rule text. Two forms are accepted:
//
//	RRULE:FREQ=MONTHLY;INTERVAL=1;COUNT=12
//	RRULE:FREQ=DAILY;INTERVAL=30;UNTIL=20241231
//	CRON:0 0 1 * *
func Parse(text string) (Rule, error) {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, rrulePrefix):
		return parseRRule(strings.TrimPrefix(text, rrulePrefix))
	case strings.HasPrefix(text, cronPrefix):
		return ParseCron(strings.TrimPrefix(text, cronPrefix))
	default:
		return nil, fmt.Errorf("%w: %q has no RRULE: or CRON: prefix", ErrInvalidRule, text)
	}
}

func parseRRule(body string) (Rule, error) {
	r := IntervalRule{Interval: 1}
	for _, part := range strings.Split(body, ";") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: malformed part %q", ErrInvalidRule, part)
		}

		var err error
		switch strings.ToUpper(key) {
		case "FREQ":
			r.Freq = Frequency(strings.ToUpper(value))
		case "INTERVAL":
			r.Interval, err = strconv.Atoi(value)
		case "COUNT":
			r.Count, err = strconv.Atoi(value)
		case "UNTIL":
			r.Until, err = time.ParseInLocation(untilLayout, value, time.UTC)
		default:
			return nil, fmt.Errorf("%w: unsupported key %q", ErrInvalidRule, key)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: bad %s value %q", ErrInvalidRule, key, value)
		}
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Describe renders a rule for people, e.g. "every 30 days" or
// "every month, 12 times".
func Describe(rule Rule) string {
	switch r := rule.(type) {
	case IntervalRule:
		unit := map[Frequency]string{Daily: "day", Weekly: "week", Monthly: "month", Yearly: "year"}[r.Freq]
		s := "every " + unit
		if r.Interval > 1 {
			s = fmt.Sprintf("every %d %ss", r.Interval, unit)
		}
		if r.Count > 0 {
			s += fmt.Sprintf(", %d times", r.Count)
		}
		if !r.Until.IsZero() {
			s += ", until " + r.Until.Format(time.DateOnly)
		}
		return s
	case CronRule:
		return "on schedule " + r.Spec
	default:
		return rule.String()
	}
}
