// Command recurring-worker materializes due recurring templates on a cron
// schedule and exposes its metrics on /metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/mmynk/sharedledger/internal/clock"
	"github.com/mmynk/sharedledger/internal/config"
	"github.com/mmynk/sharedledger/internal/events"
	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/recurrence"
	"github.com/mmynk/sharedledger/internal/storage/sqlite"
	"github.com/mmynk/sharedledger/pkg/logging"
)

const passTimeout = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("Recurring worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	var dir ledger.MembershipDirectory = store
	if cfg.MembershipCacheTTL > 0 {
		dir = ledger.NewCachedDirectory(store, cfg.MembershipCacheTTL)
	}

	opts := []recurrence.Option{
		recurrence.WithMetrics(recurrence.NewMetrics(registry)),
		recurrence.WithConcurrency(cfg.MaterializeConcurrency),
	}
	if cfg.AMQPURL != "" {
		publisher, err := events.DialWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 6)
		if err != nil {
			return fmt.Errorf("connect to AMQP: %w", err)
		}
		defer publisher.Close()
		opts = append(opts, recurrence.WithPublisher(publisher))
	}

	clk := clock.System{}
	engine := recurrence.NewEngine(store, dir, clk, opts...)

	runPass := func() {
		passCtx, cancel := context.WithTimeout(ctx, passTimeout)
		defer cancel()
		if _, err := engine.MaterializeAll(passCtx, clk.Now()); err != nil {
			slog.Error("Materialization pass failed", "error", err)
		}
	}

	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := scheduler.AddFunc(cfg.RecurringSchedule, runPass); err != nil {
		return fmt.Errorf("schedule materialization %q: %w", cfg.RecurringSchedule, err)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	// Catch up once at startup instead of waiting for the first tick.
	runPass()
	scheduler.Start()
	slog.Info("Recurring worker started", "schedule", cfg.RecurringSchedule, "concurrency", cfg.MaterializeConcurrency)

	<-ctx.Done()
	slog.Info("Shutting down, waiting for the running pass")
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return metricsServer.Shutdown(shutdownCtx)
}
