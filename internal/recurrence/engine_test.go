package recurrence

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/sharedledger/internal/clock"
	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage/sqlite"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
	err     error
}

func (p *recordingPublisher) PublishMaterialized(_ context.Context, e *models.LedgerEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

type engineFixture struct {
	store   *sqlite.SQLiteStore
	engine  *Engine
	metrics *Metrics
	pub     *recordingPublisher
	reg     *prometheus.Registry
}

// newEngineFixture seeds alice, bob and carol in group "flat". The engine
// reads membership straight from the store so removals apply immediately.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, store.CreateParticipant(ctx, &models.Participant{ID: id, DisplayName: id}))
	}
	require.NoError(t, store.CreateGroup(ctx, &models.Group{ID: "flat", Name: "Flat", Members: []string{"alice", "bob", "carol"}}))

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	pub := &recordingPublisher{}
	clk := clock.NewFakeClock(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	return &engineFixture{
		store:   store,
		engine:  NewEngine(store, store, clk, WithMetrics(metrics), WithPublisher(pub)),
		metrics: metrics,
		pub:     pub,
		reg:     reg,
	}
}

func (f *engineFixture) template(t *testing.T, start, rule string, consumers ...string) *models.RecurringTemplate {
	t.Helper()
	shares := make(map[string]decimal.Decimal, len(consumers))
	for _, c := range consumers {
		shares[c] = decimal.NewFromInt(1)
	}
	tmpl, err := f.engine.CreateTemplate(context.Background(), "alice", NewTemplate{
		Description: "Rent",
		Amount:      decimal.RequireFromString("900.00"),
		GroupID:     "flat",
		PayerID:     "alice",
		Shares:      shares,
		StartDate:   day(start),
		Rule:        rule,
	})
	require.NoError(t, err)
	return tmpl
}

func dates(entries []*models.LedgerEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.OccurrenceDate.Format(time.DateOnly)
	}
	return out
}

func TestCreateTemplate(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tmpl := f.template(t, "2024-01-01", "RRULE:FREQ=monthly", "alice", "bob")
	assert.Equal(t, "RRULE:FREQ=MONTHLY;INTERVAL=1", tmpl.Rule, "rule is stored in canonical form")
	assert.False(t, tmpl.HasMaterialized())

	stored, err := f.store.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.Rule, stored.Rule)
	assert.True(t, stored.Shares.TotalWeight().Equal(decimal.NewFromInt(2)))

	history, err := f.store.ListModifications(ctx, models.TemplateRef(tmpl.ID))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ActionCreate, history[0].Action)

	t.Run("shared by all", func(t *testing.T) {
		tmpl, err := f.engine.CreateTemplate(ctx, "alice", NewTemplate{
			Description: "Internet",
			Amount:      decimal.RequireFromString("45.00"),
			GroupID:     "flat",
			PayerID:     "bob",
			SharedByAll: true,
			StartDate:   day("2024-01-05"),
			Rule:        "CRON:0 0 5 * *",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob", "carol"}, tmpl.Shares.Consumers())
	})

	invalid := []struct {
		name string
		in   NewTemplate
	}{
		{"bad rule", NewTemplate{Amount: decimal.NewFromInt(1), GroupID: "flat", PayerID: "alice", Shares: map[string]decimal.Decimal{"bob": decimal.NewFromInt(1)}, Rule: "weekly"}},
		{"no consumers", NewTemplate{Amount: decimal.NewFromInt(1), GroupID: "flat", PayerID: "alice", Rule: "RRULE:FREQ=DAILY"}},
		{"zero amount", NewTemplate{GroupID: "flat", PayerID: "alice", Shares: map[string]decimal.Decimal{"bob": decimal.NewFromInt(1)}, Rule: "RRULE:FREQ=DAILY"}},
		{"consumer outside group", NewTemplate{Amount: decimal.NewFromInt(1), GroupID: "flat", PayerID: "alice", Shares: map[string]decimal.Decimal{"mallory": decimal.NewFromInt(1)}, Rule: "RRULE:FREQ=DAILY"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateTemplate(ctx, "alice", tt.in)
			require.Error(t, err)
			assert.True(t, models.IsValidationError(err), "got %v", err)
		})
	}

	all, err := f.store.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2, "rejected templates are not persisted")
}

func TestMaterializeDueEveryThirtyDays(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tmpl := f.template(t, "2024-01-01", "RRULE:FREQ=DAILY;INTERVAL=30", "alice", "bob", "carol")
	require.NoError(t, f.store.AdvanceWatermark(ctx, tmpl.ID, day("2024-01-01")))

	// 2024 is a leap year: Jan 31 plus 30 days is Mar 1, after Feb 29.
	res, err := f.engine.MaterializeDue(ctx, tmpl.ID, day("2024-02-29"))
	require.NoError(t, err)
	require.NoError(t, res.Warning)
	assert.Equal(t, []string{"2024-01-31"}, dates(res.Created))
	assert.Equal(t, "2024-01-31", res.Watermark.Format(time.DateOnly))

	// Up to 03-01 the 30-day series from 01-01 has two occurrences, 01-31 and 03-01.
	res, err = f.engine.MaterializeDue(ctx, tmpl.ID, day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01"}, dates(res.Created))

	stored, err := f.store.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", stored.LastMaterialized.Format(time.DateOnly))

	entries, err := f.store.ListEntriesByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMaterializeDueCatchesUp(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tmpl := f.template(t, "2024-01-31", "RRULE:FREQ=MONTHLY;INTERVAL=1", "alice", "bob")

	res, err := f.engine.MaterializeDue(ctx, tmpl.ID, day("2024-04-30"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02-29", "2024-03-31", "2024-04-30"}, dates(res.Created))

	e := res.Created[0]
	stored, err := f.store.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, stored.RecurringTemplateID)
	assert.Equal(t, "2024-02-29", stored.OccurrenceDate.Format(time.DateOnly))
	assert.Equal(t, "Rent", stored.Description)
	assert.True(t, stored.Amount.Equal(decimal.RequireFromString("900")))
	assert.Equal(t, []string{"alice", "bob"}, stored.Shares.Consumers())

	history, err := f.store.ListModifications(ctx, models.EntryRef(e.ID))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, SystemActor, history[0].ActorID)
	assert.Equal(t, models.ActionMaterialize, history[0].Action)

	assert.Equal(t, 3, f.pub.count())
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.materialized))
}

func TestMaterializeDueDailyRuleFillsEveryDay(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tmpl := f.template(t, "2024-01-01", "RRULE:FREQ=DAILY;INTERVAL=1", "alice", "bob")
	res, err := f.engine.MaterializeDue(ctx, tmpl.ID, day("2024-01-10"))
	require.NoError(t, err)
	require.NoError(t, res.Warning)
	assert.Equal(t, []string{
		"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-06",
		"2024-01-07", "2024-01-08", "2024-01-09", "2024-01-10",
	}, dates(res.Created))
	assert.Equal(t, "2024-01-10", res.Watermark.Format(time.DateOnly))
}

func TestMaterializeDueIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tmpl := f.template(t, "2024-01-01", "RRULE:FREQ=WEEKLY", "bob")
	asOf := day("2024-01-29")

	first, err := f.engine.MaterializeDue(ctx, tmpl.ID, asOf)
	require.NoError(t, err)
	require.Len(t, first.Created, 4)

	second, err := f.engine.MaterializeDue(ctx, tmpl.ID, asOf)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.True(t, second.Watermark.Equal(first.Watermark))

	entries, err := f.store.ListEntriesByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestMaterializeDueBeforeStart(t *testing.T) {
	f := newEngineFixture(t)

	tmpl := f.template(t, "2024-06-01", "RRULE:FREQ=MONTHLY", "bob")
	res, err := f.engine.MaterializeDue(context.Background(), tmpl.ID, day("2024-05-31"))
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.True(t, res.Watermark.IsZero())
}

func TestMaterializeDueStopsWhenCountExhausted(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tmpl := f.template(t, "2024-01-01", "RRULE:FREQ=MONTHLY;COUNT=3", "bob")
	res, err := f.engine.MaterializeDue(ctx, tmpl.ID, day("2025-01-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02-01", "2024-03-01"}, dates(res.Created), "the start date counts as the first occurrence")

	stored, err := f.store.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	_, ok, err := NextDue(stored)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMaterializeDueHaltsOnInvalidOccurrence(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tmpl := f.template(t, "2024-01-01", "RRULE:FREQ=MONTHLY", "alice", "bob")
	res, err := f.engine.MaterializeDue(ctx, tmpl.ID, day("2024-02-15"))
	require.NoError(t, err)
	require.Len(t, res.Created, 1)

	require.NoError(t, f.store.RemoveMember(ctx, "flat", "bob"))

	res, err = f.engine.MaterializeDue(ctx, tmpl.ID, day("2024-04-15"))
	require.NoError(t, err, "validation failures are warnings, not errors")
	require.Error(t, res.Warning)
	assert.ErrorIs(t, res.Warning, models.ErrParticipantNotInGroup)
	assert.Empty(t, res.Created)
	assert.Equal(t, "2024-02-01", res.Watermark.Format(time.DateOnly))

	stored, err := f.store.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", stored.LastMaterialized.Format(time.DateOnly), "watermark is not advanced past the failed occurrence")
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.skipped))

	require.NoError(t, f.store.AddMember(ctx, "flat", "bob"))
	res, err = f.engine.MaterializeDue(ctx, tmpl.ID, day("2024-04-15"))
	require.NoError(t, err)
	assert.NoError(t, res.Warning)
	assert.Equal(t, []string{"2024-03-01", "2024-04-01"}, dates(res.Created))
}

func TestMaterializeDueRechecksCachedMembership(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tmpl := f.template(t, "2024-01-01", "RRULE:FREQ=MONTHLY", "alice", "bob")
	dir := ledger.NewCachedDirectory(f.store, time.Hour)
	engine := NewEngine(f.store, dir, clock.NewFakeClock(day("2024-03-01")))

	_, err := dir.MembersOf(ctx, "flat")
	require.NoError(t, err)
	require.NoError(t, f.store.RemoveMember(ctx, "flat", "bob"))

	res, err := engine.MaterializeDue(ctx, tmpl.ID, day("2024-03-01"))
	require.NoError(t, err)
	assert.ErrorIs(t, res.Warning, models.ErrParticipantNotInGroup)
	assert.Empty(t, res.Created)

	stored, err := f.store.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasMaterialized())
}

func TestMaterializeDueAcceptsMemberMissingFromCache(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.RemoveMember(ctx, "flat", "carol"))
	dir := ledger.NewCachedDirectory(f.store, time.Hour)
	_, err := dir.MembersOf(ctx, "flat")
	require.NoError(t, err)

	require.NoError(t, f.store.AddMember(ctx, "flat", "carol"))
	tmpl := f.template(t, "2024-01-01", "RRULE:FREQ=MONTHLY", "alice", "carol")

	engine := NewEngine(f.store, dir, clock.NewFakeClock(day("2024-03-01")))
	res, err := engine.MaterializeDue(ctx, tmpl.ID, day("2024-03-01"))
	require.NoError(t, err)
	require.NoError(t, res.Warning)
	assert.Equal(t, []string{"2024-02-01", "2024-03-01"}, dates(res.Created))
}

func TestMaterializeDueMissingTemplate(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.MaterializeDue(context.Background(), "nope", day("2024-01-01"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMaterializeDuePublishFailureIsNotFatal(t *testing.T) {
	f := newEngineFixture(t)
	f.pub.err = errors.New("broker down")

	tmpl := f.template(t, "2024-01-01", "RRULE:FREQ=DAILY", "bob")
	res, err := f.engine.MaterializeDue(context.Background(), tmpl.ID, day("2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04"}, dates(res.Created))
}

func TestMaterializeDueConcurrentCallers(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tmpl := f.template(t, "2024-01-01", "RRULE:FREQ=WEEKLY", "alice", "bob")
	asOf := day("2024-03-04")

	// A second engine shares the database but not the in-process lock, like
	// a separate worker process would.
	other := NewEngine(f.store, f.store, clock.NewFakeClock(day("2024-01-10")))
	engines := []*Engine{f.engine, f.engine, other, other}

	var wg sync.WaitGroup
	created := make([]int, len(engines))
	errs := make([]error, len(engines))
	for i, eng := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := eng.MaterializeDue(ctx, tmpl.ID, asOf)
			created[i] = len(res.Created)
			errs[i] = err
		}()
	}
	wg.Wait()

	total := 0
	for i := range engines {
		require.NoError(t, errs[i])
		total += created[i]
	}
	assert.Equal(t, 9, total)

	entries, err := f.store.ListEntriesByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 9, "each occurrence is materialized exactly once")
}

func TestMaterializeAll(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	rent := f.template(t, "2024-01-01", "RRULE:FREQ=MONTHLY", "alice", "bob", "carol")
	gym := f.template(t, "2024-01-01", "CRON:0 0 * * 1", "carol")
	require.NoError(t, f.store.RemoveMember(ctx, "flat", "carol"))
	rates := f.template(t, "2023-01-15", "RRULE:FREQ=YEARLY", "alice", "bob")

	results, err := f.engine.MaterializeAll(ctx, day("2024-03-31"))
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.TemplateID] = r
	}
	assert.Error(t, byID[rent.ID].Warning, "carol left the group")
	assert.Empty(t, byID[rent.ID].Created)
	assert.Error(t, byID[gym.ID].Warning)
	assert.NoError(t, byID[rates.ID].Warning)
	assert.Equal(t, []string{"2024-01-15"}, dates(byID[rates.ID].Created))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.materialized))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.skipped))
	n, err := testutil.GatherAndCount(f.reg, "sharedledger_materialize_pass_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKeyedMutex(t *testing.T) {
	var k keyedMutex
	unlockA := k.Lock("a")

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct keys should not contend")
	}

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("same key acquired twice")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired
}
