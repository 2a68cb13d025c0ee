package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/sharedledger/internal/models"
)

func day(s string) time.Time {
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{name: "monthly", text: "RRULE:FREQ=MONTHLY;INTERVAL=1", want: "RRULE:FREQ=MONTHLY;INTERVAL=1"},
		{name: "interval defaults to 1", text: "RRULE:FREQ=weekly", want: "RRULE:FREQ=WEEKLY;INTERVAL=1"},
		{name: "count", text: "RRULE:FREQ=DAILY;INTERVAL=30;COUNT=3", want: "RRULE:FREQ=DAILY;INTERVAL=30;COUNT=3"},
		{name: "until", text: "RRULE:FREQ=YEARLY;UNTIL=20301231", want: "RRULE:FREQ=YEARLY;INTERVAL=1;UNTIL=20301231"},
		{name: "cron", text: "CRON:0 0 1 * *", want: "CRON:0 0 1 * *"},
		{name: "cron descriptor", text: "CRON:@weekly", want: "CRON:@weekly"},
		{name: "no prefix", text: "FREQ=DAILY", wantErr: true},
		{name: "unknown frequency", text: "RRULE:FREQ=HOURLY", wantErr: true},
		{name: "zero interval", text: "RRULE:FREQ=DAILY;INTERVAL=0", wantErr: true},
		{name: "count and until", text: "RRULE:FREQ=DAILY;COUNT=2;UNTIL=20240101", wantErr: true},
		{name: "unknown key", text: "RRULE:FREQ=DAILY;BYDAY=MO", wantErr: true},
		{name: "bad count", text: "RRULE:FREQ=DAILY;COUNT=x", wantErr: true},
		{name: "bad cron", text: "CRON:every day", wantErr: true},
		{name: "cron every is unanchored", text: "CRON:@every 72h", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Parse(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRule)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rule.String())
		})
	}
}

func TestIntervalRuleNext(t *testing.T) {
	tests := []struct {
		name   string
		rule   IntervalRule
		start  string
		from   string
		want   string
		exists bool
	}{
		{"start is the first occurrence", Every(30, Daily), "2024-01-01", "2024-01-01", "2024-01-01", true},
		{"from before start", Every(1, Weekly), "2024-01-10", "2024-01-01", "2024-01-10", true},
		{"every 30 days", Every(30, Daily), "2024-01-01", "2024-01-02", "2024-01-31", true},
		{"every 30 days across leap day", Every(30, Daily), "2024-01-01", "2024-02-01", "2024-03-01", true},
		{"fortnightly", Every(2, Weekly), "2024-01-01", "2024-01-02", "2024-01-15", true},
		{"month end clamps in leap February", Every(1, Monthly), "2024-01-31", "2024-02-01", "2024-02-29", true},
		{"month end recovers after February", Every(1, Monthly), "2024-01-31", "2024-03-01", "2024-03-31", true},
		{"month end clamps in April", Every(1, Monthly), "2024-01-31", "2024-04-01", "2024-04-30", true},
		{"quarterly far ahead", Every(3, Monthly), "2020-01-15", "2024-05-01", "2024-07-15", true},
		{"leap day yearly", Every(1, Yearly), "2024-02-29", "2024-03-01", "2025-02-28", true},
		{"count exhausted", IntervalRule{Freq: Daily, Interval: 1, Count: 2}, "2024-01-01", "2024-01-03", "", false},
		{"count last occurrence", IntervalRule{Freq: Daily, Interval: 1, Count: 2}, "2024-01-01", "2024-01-02", "2024-01-02", true},
		{"until inclusive", IntervalRule{Freq: Weekly, Interval: 1, Until: day("2024-01-15")}, "2024-01-01", "2024-01-09", "2024-01-15", true},
		{"until passed", IntervalRule{Freq: Weekly, Interval: 1, Until: day("2024-01-15")}, "2024-01-01", "2024-01-16", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rule.Next(day(tt.start), day(tt.from))
			require.Equal(t, tt.exists, ok)
			if tt.exists {
				assert.Equal(t, tt.want, got.Format(time.DateOnly))
			}
		})
	}
}

func TestCronRuleNext(t *testing.T) {
	monthly, err := ParseCron("0 0 1 * *")
	require.NoError(t, err)
	got, ok := monthly.Next(day("2024-01-15"), day("2024-01-15"))
	require.True(t, ok)
	assert.Equal(t, "2024-02-01", got.Format(time.DateOnly))

	got, ok = monthly.Next(day("2024-01-01"), day("2024-01-01"))
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", got.Format(time.DateOnly), "a midnight firing on from counts")

	// 2024-01-01 is a Monday; the 09:00 firing falls on that date.
	mondays, err := ParseCron("0 9 * * 1")
	require.NoError(t, err)
	got, ok = mondays.Next(day("2024-01-01"), day("2024-01-01"))
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", got.Format(time.DateOnly))

	got, ok = mondays.Next(day("2024-01-01"), day("2024-01-02"))
	require.True(t, ok)
	assert.Equal(t, "2024-01-08", got.Format(time.DateOnly))
}

func TestDescribe(t *testing.T) {
	cron, err := ParseCron("0 0 1 * *")
	require.NoError(t, err)

	assert.Equal(t, "every 30 days", Describe(Every(30, Daily)))
	assert.Equal(t, "every month", Describe(Every(1, Monthly)))
	assert.Equal(t, "every month, 12 times", Describe(IntervalRule{Freq: Monthly, Interval: 1, Count: 12}))
	assert.Equal(t, "every 2 weeks, until 2024-12-31", Describe(IntervalRule{Freq: Weekly, Interval: 2, Until: day("2024-12-31")}))
	assert.Equal(t, "on schedule 0 0 1 * *", Describe(cron))
}

func TestNextDue(t *testing.T) {
	tmpl := &models.RecurringTemplate{StartDate: day("2024-01-01"), Rule: "RRULE:FREQ=DAILY;INTERVAL=30"}

	due, ok, err := NextDue(tmpl)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-01-31", due.Format(time.DateOnly), "the start date itself is not an occurrence to materialize")

	tmpl.LastMaterialized = day("2024-01-01")
	due, ok, err = NextDue(tmpl)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-01-31", due.Format(time.DateOnly))

	daily := &models.RecurringTemplate{StartDate: day("2024-01-01"), Rule: "RRULE:FREQ=DAILY", LastMaterialized: day("2024-01-05")}
	due, _, err = NextDue(daily)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-06", due.Format(time.DateOnly), "the day after the watermark is eligible")

	monthly := &models.RecurringTemplate{StartDate: day("2024-01-01"), Rule: "RRULE:FREQ=MONTHLY"}
	due, _, err = NextDue(monthly)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", due.Format(time.DateOnly))

	_, _, err = NextDue(&models.RecurringTemplate{Rule: "nonsense"})
	assert.ErrorIs(t, err, ErrInvalidRule)
}
