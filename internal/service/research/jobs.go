package research

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// Recurring job names wired into the weekly schedule.
const (
	JobMorningScan       = "morning-scan"
	JobSentimentPrecache = "sentiment-precache"
	JobOutcomeRecorder   = "outcome-recorder"
	JobEveningSummary    = "evening-summary"
)

// Universe supplies the day's candidate tickers. Implementations own the
// earnings-calendar lookups.
type Universe interface {
	EarningsTickers(ctx context.Context) ([]string, error)
}

// OutcomeSink receives finished analyses and, after the close, the day's
// realized outcomes.
type OutcomeSink interface {
	RecordAnalyses(ctx context.Context, analyses []*Analysis) error
	RecordOutcomes(ctx context.Context) error
}

// BudgetReader is the read-only ledger view the summary job reports from.
type BudgetReader interface {
	Services() []string
	Summary(ctx context.Context, service string) (*models.BudgetSummary, error)
}

// Jobs bundles the recurring job handlers around one pipeline. Each handler
// satisfies scheduler.HandlerFunc.
type Jobs struct {
	pipeline *Pipeline
	universe Universe
	sink     OutcomeSink
	budgets  BudgetReader
	logger   *slog.Logger
}

// NewJobs creates the handler set for the weekly schedule.
func NewJobs(pipeline *Pipeline, universe Universe, sink OutcomeSink, budgets BudgetReader, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		pipeline: pipeline,
		universe: universe,
		sink:     sink,
		budgets:  budgets,
		logger:   logger,
	}
}

// MorningScan analyzes every ticker reporting earnings today. Partial
// failures are tolerated; the job fails only when no ticker produced a
// usable analysis.
func (j *Jobs) MorningScan(ctx context.Context) error {
	tickers, err := j.universe.EarningsTickers(ctx)
	if err != nil {
		return fmt.Errorf("fetching earnings tickers: %w", err)
	}
	if len(tickers) == 0 {
		j.logger.InfoContext(ctx, "no earnings tickers today")
		return nil
	}

	reqs := make([]Request, len(tickers))
	for i, t := range tickers {
		reqs[i] = Request{Ticker: t}
	}

	result := j.pipeline.AnalyzeBatch(ctx, reqs)

	analyses := make([]*Analysis, 0, result.Succeeded)
	for _, out := range result.Outcomes {
		if out.OK() {
			analyses = append(analyses, out.Value)
		}
	}

	if len(analyses) > 0 {
		if err := j.sink.RecordAnalyses(ctx, analyses); err != nil {
			return fmt.Errorf("recording analyses: %w", err)
		}
	}

	j.logger.InfoContext(ctx, "morning scan complete",
		slog.Int("tickers", len(tickers)),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("timed_out", result.TimedOut))

	if result.Succeeded == 0 {
		return fmt.Errorf("morning scan produced no analyses (%d failed, %d timed out)", result.Failed, result.TimedOut)
	}
	return nil
}

// SentimentPrecache warms sentiment for today's tickers ahead of the
// market open. A budget-exhausted cascade ends the warm-up early without
// failing the job; tomorrow's limits reset the window.
func (j *Jobs) SentimentPrecache(ctx context.Context) error {
	tickers, err := j.universe.EarningsTickers(ctx)
	if err != nil {
		return fmt.Errorf("fetching earnings tickers: %w", err)
	}

	warmed := 0
	for _, ticker := range tickers {
		analysis := &Analysis{Ticker: ticker}
		j.pipeline.enrichSentiment(ctx, analysis, Request{Ticker: ticker})
		if analysis.SentimentSkipped {
			j.logger.InfoContext(ctx, "sentiment precache stopped early",
				slog.Int("warmed", warmed),
				slog.Int("remaining", len(tickers)-warmed))
			return nil
		}
		warmed++
	}

	j.logger.InfoContext(ctx, "sentiment precache complete", slog.Int("warmed", warmed))
	return nil
}

// RecordOutcomes revisits the day's analyses and persists realized
// outcomes for audit.
func (j *Jobs) RecordOutcomes(ctx context.Context) error {
	if err := j.sink.RecordOutcomes(ctx); err != nil {
		return fmt.Errorf("recording outcomes: %w", err)
	}
	j.logger.InfoContext(ctx, "outcomes recorded")
	return nil
}

// EveningSummary logs each service's spend against its caps. Read-only;
// it never consumes budget.
func (j *Jobs) EveningSummary(ctx context.Context) error {
	for _, service := range j.budgets.Services() {
		summary, err := j.budgets.Summary(ctx, service)
		if err != nil {
			return fmt.Errorf("summarizing %s: %w", service, err)
		}
		j.logger.InfoContext(ctx, "budget summary",
			slog.String("service", summary.Service),
			slog.Int64("daily_calls", summary.DailyCalls),
			slog.Int64("daily_call_limit", summary.DailyCallLimit),
			slog.Float64("monthly_cost", summary.MonthlyCost),
			slog.Float64("monthly_budget", summary.MonthlyBudget),
			slog.Float64("budget_remaining", summary.BudgetRemaining))
	}
	return nil
}
