package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/sharedledger/internal/calculator"
	"github.com/mmynk/sharedledger/internal/clock"
	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

// SystemActor is recorded as the actor of materialized entries unless
// WithActor says otherwise.
const SystemActor = "system:recurrence"

// Publisher is told about every committed occurrence.
type Publisher interface {
	PublishMaterialized(ctx context.Context, entry *models.LedgerEntry) error
}

// Result reports one MaterializeDue pass over one template.
type Result struct {
	TemplateID string

	// Created lists the entries committed during this pass, oldest first.
	Created []*models.LedgerEntry

	// Watermark is the template's last materialized date after the pass.
	Watermark time.Time

	// Warning is set when an occurrence failed validation. That occurrence
	// stays pending and the pass stopped there.
	Warning error
}

// Engine materializes recurring templates into ledger entries.
type Engine struct {
	store       storage.Store
	dir         ledger.MembershipDirectory
	clock       clock.Clock
	metrics     *Metrics
	publisher   Publisher
	actorID     string
	concurrency int
	locks       keyedMutex
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }
func WithActor(actorID string) Option { return func(e *Engine) { e.actorID = actorID } }
func WithConcurrency(n int) Option { return func(e *Engine) { e.concurrency = n } }

func NewEngine(store storage.Store, dir ledger.MembershipDirectory, clk clock.Clock, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		dir:         dir,
		clock:       clk,
		actorID:     SystemActor,
		concurrency: 4,
		logger:      slog.Default().With("component", "recurrence"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	return e
}

// NewTemplate is the input for CreateTemplate.
type NewTemplate struct {
	Description string
	Amount      decimal.Decimal
	GroupID     string
	PayerID     string
	Shares      map[string]decimal.Decimal
	SharedByAll bool
	StartDate   time.Time
	Rule        string
}

// CreateTemplate validates and stores a recurring template. The rule text is
// stored in canonical form.
func (e *Engine) CreateTemplate(ctx context.Context, actorID string, in NewTemplate) (*models.RecurringTemplate, error) {
	rule, err := Parse(in.Rule)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrValidationFailed, err)
	}

	raw := in.Shares
	if len(raw) == 0 && in.SharedByAll {
		members, err := e.store.MembersOf(ctx, in.GroupID)
		if err != nil {
			return nil, err
		}
		raw = calculator.EqualWeights(members)
	}
	shares, err := models.NewShares(raw)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	tmpl := &models.RecurringTemplate{
		Description:    in.Description,
		Amount:         in.Amount,
		GroupID:        in.GroupID,
		PayerID:        in.PayerID,
		Shares:         shares,
		StartDate:      clock.Date(in.StartDate),
		Rule:           rule.String(),
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	if err := ledger.ValidateEntry(ctx, e.dir, tmpl.Occurrence(tmpl.StartDate, now)); err != nil {
		return nil, err
	}

	err = e.store.WithTx(ctx, func(q storage.Queries) error {
		if err := ledger.ValidateEntry(ctx, q, tmpl.Occurrence(tmpl.StartDate, now)); err != nil {
			return err
		}
		if err := q.CreateTemplate(ctx, tmpl); err != nil {
			return err
		}
		return q.CreateModification(ctx, &models.ModificationRecord{
			ActorID:   actorID,
			Target:    models.TemplateRef(tmpl.ID),
			Action:    models.ActionCreate,
			Timestamp: now,
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Recurring template created",
		"template_id", tmpl.ID,
		"rule", tmpl.Rule,
		"schedule", Describe(rule),
	)
	return tmpl, nil
}

// Template loads one recurring template.
func (e *Engine) Template(ctx context.Context, templateID string) (*models.RecurringTemplate, error) {
	return e.store.GetTemplate(ctx, templateID)
}

// MaterializeDue creates an entry for every pending occurrence of a template
// dated on or before asOf. Each entry commits together with the watermark
// advance, so a later call never sees one without the other. A validation
// failure leaves that occurrence pending, stops the pass and is reported
// in Result.Warning; storage failures are returned as errors.
func (e *Engine) MaterializeDue(ctx context.Context, templateID string, asOf time.Time) (Result, error) {
	unlock := e.locks.Lock(templateID)
	defer unlock()

	res := Result{TemplateID: templateID}
	asOf = clock.Date(asOf)

	tmpl, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		if models.IsValidationError(err) {
			return e.warn(ctx, res, time.Time{}, err), nil
		}
		return res, err
	}
	res.Watermark = tmpl.LastMaterialized

	rule, err := Parse(tmpl.Rule)
	if err != nil {
		return e.warn(ctx, res, time.Time{}, err), nil
	}

	for {
		due, ok := nextDue(rule, tmpl)
		if !ok || due.After(asOf) {
			return res, nil
		}

		now := e.clock.Now()
		entry := tmpl.Occurrence(due, now)
		if err := ledger.ValidateEntry(ctx, e.dir, entry); err != nil {
			if !models.IsValidationError(err) {
				return res, err
			}
			return e.warn(ctx, res, due, err), nil
		}

		err := e.store.WithTx(ctx, func(q storage.Queries) error {
			// The directory may be a cache; membership is settled here.
			if err := ledger.ValidateEntry(ctx, q, entry); err != nil {
				return err
			}
			if err := q.AdvanceWatermark(ctx, tmpl.ID, due); err != nil {
				return err
			}
			if err := q.CreateEntry(ctx, entry); err != nil {
				return err
			}
			return q.CreateModification(ctx, &models.ModificationRecord{
				ActorID:   e.actorID,
				Target:    models.EntryRef(entry.ID),
				Action:    models.ActionMaterialize,
				Timestamp: now,
			})
		})
		if errors.Is(err, models.ErrAlreadyMaterialized) {
			// Another process got there first; pick up its watermark.
			if tmpl, err = e.reload(ctx, templateID, due); err != nil {
				return res, err
			}
			res.Watermark = tmpl.LastMaterialized
			continue
		}
		if models.IsValidationError(err) {
			return e.warn(ctx, res, due, err), nil
		}
		if err != nil {
			e.metrics.failures.Inc()
			return res, err
		}

		tmpl.LastMaterialized = due
		res.Watermark = due
		res.Created = append(res.Created, entry)
		e.metrics.materialized.Inc()

		e.logger.InfoContext(ctx, "Occurrence materialized",
			"template_id", tmpl.ID,
			"entry_id", entry.ID,
			"occurrence", due.Format(time.DateOnly),
			"amount", entry.Amount.String(),
		)
		e.publish(ctx, entry)
	}
}

// MaterializeAll runs MaterializeDue for every template, several at a time.
// Per-template warnings are collected in the results; the first storage
// error cancels the remaining work and is returned.
func (e *Engine) MaterializeAll(ctx context.Context, asOf time.Time) ([]Result, error) {
	started := time.Now()
	defer func() { e.metrics.passDuration.Observe(time.Since(started).Seconds()) }()

	templates, err := e.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(templates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, t := range templates {
		g.Go(func() error {
			res, err := e.MaterializeDue(gctx, t.ID, asOf)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.ErrorContext(ctx, "Materialization pass aborted", "error", err)
		return results, err
	}

	created, warnings := 0, 0
	for _, r := range results {
		created += len(r.Created)
		if r.Warning != nil {
			warnings++
		}
	}
	e.logger.InfoContext(ctx, "Materialization pass complete",
		"templates", len(templates),
		"created", created,
		"warnings", warnings,
		"as_of", clock.Date(asOf).Format(time.DateOnly),
	)
	return results, nil
}

func (e *Engine) warn(ctx context.Context, res Result, due time.Time, err error) Result {
	e.metrics.skipped.Inc()
	attrs := []any{"template_id", res.TemplateID, "error", err}
	if !due.IsZero() {
		attrs = append(attrs, "occurrence", due.Format(time.DateOnly))
		err = fmt.Errorf("occurrence %s: %w", due.Format(time.DateOnly), err)
	}
	e.logger.WarnContext(ctx, "Occurrence skipped, watermark not advanced", attrs...)
	res.Warning = err
	return res
}

// reload fetches a template after a lost race and makes sure its watermark
// moved past due, so the loop cannot spin.
func (e *Engine) reload(ctx context.Context, templateID string, due time.Time) (*models.RecurringTemplate, error) {
	tmpl, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl.LastMaterialized.Before(due) {
		return nil, fmt.Errorf("template %s: occurrence %s exists but watermark is %s: %w",
			templateID, due.Format(time.DateOnly), tmpl.LastMaterialized.Format(time.DateOnly), models.ErrAlreadyMaterialized)
	}
	return tmpl, nil
}

func (e *Engine) publish(ctx context.Context, entry *models.LedgerEntry) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishMaterialized(ctx, entry); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish materialized entry", "entry_id", entry.ID, "error", err)
	}
}

// keyedMutex serializes work per key; distinct keys do not contend.
type keyedMutex struct {
	locks sync.Map
}

func (k *keyedMutex) Lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
