package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pmak99/trading-desk-public-sub000/internal/api"
	"github.com/pmak99/trading-desk-public-sub000/internal/config"
	"github.com/pmak99/trading-desk-public-sub000/internal/logging"
	"github.com/pmak99/trading-desk-public-sub000/internal/scheduler"
	"github.com/pmak99/trading-desk-public-sub000/internal/service/cascade"
	"github.com/pmak99/trading-desk-public-sub000/internal/service/ledger"
	"github.com/pmak99/trading-desk-public-sub000/internal/service/research"
	"github.com/pmak99/trading-desk-public-sub000/internal/storage"
	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize logging
	logger := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logger.Info("starting trading desk server",
		slog.String("version", "0.1.0"),
		slog.Int("port", cfg.Server.Port))

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize database
	db, err := storage.New(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize stores
	budgetStore := storage.NewBudgetStore(db, loc)
	jobStore := storage.NewJobStore(db)

	// Initialize services
	ledgerSvc := ledger.New(budgetStore, cfg.Budgets, ledger.WithLogger(logger))

	candidates := make(map[models.Capability][]models.ProviderCandidate, len(cfg.Cascade))
	for capability, list := range cfg.Cascade {
		candidates[models.Capability(capability)] = list
	}
	selector := cascade.New(candidates, ledgerSvc, cascade.WithLogger(logger))

	// No live provider client is wired here; analyses run against the
	// dry-run executor until one is.
	logger.Warn("no provider executor configured, running in dry-run mode")
	pipeline := research.New(selector, research.NewDryRunExecutor(),
		research.WithLogger(logger),
		research.WithDeadline(cfg.Batch.Deadline),
		research.WithGracePeriod(cfg.Batch.GracePeriod),
		research.WithMaxParallel(cfg.Batch.MaxParallel))

	jobs := research.NewJobs(pipeline,
		research.StaticUniverse(cfg.Research.Tickers),
		research.NewLogSink(logger),
		ledgerSvc,
		logger)

	dispatcher, err := scheduler.NewDispatcher(loc, cfg.Scheduler.Tolerance,
		scheduleEntries(cfg.Scheduler.Schedule.Weekday),
		scheduleEntries(cfg.Scheduler.Schedule.Saturday),
		scheduleEntries(cfg.Scheduler.Schedule.Sunday))
	if err != nil {
		logger.Error("failed to build dispatcher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// A dependency cycle is fatal here, before any job ever runs.
	runner, err := scheduler.NewRunner(dispatcher, jobStore, cfg.Scheduler.Dependencies,
		scheduler.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build job runner", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runner.Register(research.JobMorningScan, jobs.MorningScan)
	runner.Register(research.JobSentimentPrecache, jobs.SentimentPrecache)
	runner.Register(research.JobOutcomeRecorder, jobs.RecordOutcomes)
	runner.Register(research.JobEveningSummary, jobs.EveningSummary)

	// Initialize API server (not ready yet)
	server := api.New(ledgerSvc, runner, pipeline,
		api.WithLogger(logger),
		api.WithHost(cfg.Server.Host),
		api.WithPort(cfg.Server.Port))

	// Mark server as ready
	server.SetReady(true)

	// Poll loop: check the schedule on a fixed cadence; the dispatcher's
	// tolerance window absorbs the poll granularity.
	pollCtx, stopPolling := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.Scheduler.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				outcome, err := runner.Tick(pollCtx)
				if err != nil {
					logger.Error("scheduler tick failed", slog.String("error", err.Error()))
					continue
				}
				if outcome.Ran {
					logger.Info("scheduled job finished",
						slog.String("job", outcome.Job),
						slog.String("status", string(outcome.Status)))
				} else if outcome.Skipped != scheduler.SkipNothingDue {
					logger.Info("scheduled job skipped",
						slog.String("job", outcome.Job),
						slog.String("reason", outcome.Skipped))
				}
			}
		}
	}()

	// Handle shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")

		// Mark server as not ready to stop accepting new requests
		server.SetReady(false)
		stopPolling()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.String("error", err.Error()))
		}
	}()

	// Start server
	if err := server.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func scheduleEntries(entries []config.ScheduleEntry) []scheduler.Entry {
	out := make([]scheduler.Entry, len(entries))
	for i, e := range entries {
		out[i] = scheduler.Entry{At: e.At, Job: e.Job}
	}
	return out
}
