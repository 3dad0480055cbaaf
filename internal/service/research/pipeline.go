package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pmak99/trading-desk-public-sub000/internal/logging"
	"github.com/pmak99/trading-desk-public-sub000/internal/service/batch"
	"github.com/pmak99/trading-desk-public-sub000/internal/service/cascade"
	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// Request describes one ticker analysis to perform.
type Request struct {
	Ticker string `json:"ticker" binding:"required"`
	// Preferred names the provider to try first for the strategy call.
	// Empty means cascade order.
	Preferred string `json:"preferred,omitempty"`
	Input     string `json:"input,omitempty"`
}

// Analysis is the per-ticker result. Sentiment enrichment is best-effort:
// when every sentiment provider is budget-exhausted the strategy output is
// still returned with SentimentSkipped set.
type Analysis struct {
	Ticker    string  `json:"ticker"`
	Provider  string  `json:"provider"`
	Model     string  `json:"model"`
	Output    string  `json:"output"`
	Sentiment string  `json:"sentiment,omitempty"`
	Cost      float64 `json:"cost"`

	SentimentSkipped bool `json:"sentiment_skipped,omitempty"`
}

// CallResult is what an executor reports back after a real provider call.
type CallResult struct {
	Output string
	Cost   float64
	Usage  models.Usage
}

// Executor performs the actual provider call. Implementations own the HTTP
// clients, prompts, and response parsing; the pipeline only governs spend
// and concurrency around them.
type Executor interface {
	Execute(ctx context.Context, provider, model, input string) (*CallResult, error)
}

// ProviderSource is the slice of the cascade the pipeline needs.
type ProviderSource interface {
	Select(ctx context.Context, capability models.Capability, preferred string) (*cascade.Selection, error)
	Settle(ctx context.Context, sel *cascade.Selection, actualCost float64, usage models.Usage) error
}

// Pipeline fans per-ticker earnings analyses out to parallel workers, each
// one acquiring its provider through the cascade and settling true usage
// after the call returns.
type Pipeline struct {
	providers ProviderSource
	executor  Executor
	logger    *slog.Logger

	deadline    time.Duration
	gracePeriod time.Duration
	maxParallel int
}

// Option configures the pipeline
type Option func(*Pipeline)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithDeadline sets the single shared deadline for a batch run.
func WithDeadline(d time.Duration) Option {
	return func(p *Pipeline) {
		p.deadline = d
	}
}

// WithGracePeriod sets how long the collector waits past the deadline.
func WithGracePeriod(d time.Duration) Option {
	return func(p *Pipeline) {
		p.gracePeriod = d
	}
}

// WithMaxParallel caps concurrent ticker analyses.
func WithMaxParallel(n int) Option {
	return func(p *Pipeline) {
		p.maxParallel = n
	}
}

// New creates an earnings research pipeline.
func New(providers ProviderSource, executor Executor, opts ...Option) *Pipeline {
	p := &Pipeline{
		providers:   providers,
		executor:    executor,
		logger:      slog.Default(),
		deadline:    4 * time.Minute,
		gracePeriod: 5 * time.Second,
		maxParallel: 8,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Analyze runs one ticker end to end: strategy call first, then a
// best-effort sentiment enrichment. A budget-exhausted strategy cascade
// fails the analysis; an exhausted sentiment cascade only skips enrichment.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	ctx = logging.WithTicker(ctx, req.Ticker)

	sel, err := p.providers.Select(ctx, models.CapabilityStrategy, req.Preferred)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", req.Ticker, err)
	}

	result, err := p.executor.Execute(ctx, sel.Provider, sel.Model, req.Input)
	if err != nil {
		// The estimate was already committed; a failed call still spent
		// the attempt, so there is nothing to settle beyond it.
		return nil, fmt.Errorf("analyzing %s with %s/%s: %w", req.Ticker, sel.Provider, sel.Model, err)
	}

	if err := p.providers.Settle(ctx, sel, result.Cost, result.Usage); err != nil {
		p.logger.WarnContext(ctx, "failed to settle strategy usage",
			slog.String("provider", sel.Provider),
			slog.String("error", err.Error()))
	}

	analysis := &Analysis{
		Ticker:   req.Ticker,
		Provider: sel.Provider,
		Model:    sel.Model,
		Output:   result.Output,
		Cost:     result.Cost,
	}

	p.enrichSentiment(ctx, analysis, req)

	return analysis, nil
}

// enrichSentiment attaches a sentiment read to the analysis when budget
// allows. Exhaustion degrades to a skip; anything else is logged and
// likewise skipped so a flaky sentiment provider cannot sink the strategy
// result that was already paid for.
func (p *Pipeline) enrichSentiment(ctx context.Context, analysis *Analysis, req Request) {
	sel, err := p.providers.Select(ctx, models.CapabilitySentiment, "")
	if err != nil {
		var exhausted *cascade.ExhaustedError
		if errors.As(err, &exhausted) {
			p.logger.InfoContext(ctx, "sentiment providers exhausted, skipping enrichment",
				slog.Int("candidates_tried", len(exhausted.Attempts)))
		} else {
			p.logger.WarnContext(ctx, "sentiment selection failed, skipping enrichment",
				slog.String("error", err.Error()))
		}
		analysis.SentimentSkipped = true
		return
	}

	result, err := p.executor.Execute(ctx, sel.Provider, sel.Model, req.Input)
	if err != nil {
		p.logger.WarnContext(ctx, "sentiment call failed, skipping enrichment",
			slog.String("provider", sel.Provider),
			slog.String("error", err.Error()))
		analysis.SentimentSkipped = true
		return
	}

	if err := p.providers.Settle(ctx, sel, result.Cost, result.Usage); err != nil {
		p.logger.WarnContext(ctx, "failed to settle sentiment usage",
			slog.String("provider", sel.Provider),
			slog.String("error", err.Error()))
	}

	analysis.Sentiment = result.Output
	analysis.Cost += result.Cost
}

// AnalyzeBatch fans requests out under one shared deadline. Outcomes are
// positionally aligned with the requests; a slow ticker surfaces as a
// TimedOut slot instead of delaying the rest.
func (p *Pipeline) AnalyzeBatch(ctx context.Context, reqs []Request) batch.Result[*Analysis] {
	units := make([]batch.Unit[*Analysis], len(reqs))
	for i, req := range reqs {
		req := req
		units[i] = batch.Unit[*Analysis]{
			ID: req.Ticker,
			Run: func(ctx context.Context) (*Analysis, error) {
				return p.Analyze(ctx, req)
			},
		}
	}

	return batch.Run(ctx, units, p.deadline,
		batch.WithMaxParallel(p.maxParallel),
		batch.WithGracePeriod(p.gracePeriod),
		batch.WithLogger(p.logger))
}

// AnalyzeOne runs a single ticker under the batch deadline, returning nil
// when the deadline cuts it off.
func (p *Pipeline) AnalyzeOne(ctx context.Context, req Request) (*Analysis, error) {
	unit := batch.Unit[*Analysis]{
		ID: req.Ticker,
		Run: func(ctx context.Context) (*Analysis, error) {
			return p.Analyze(ctx, req)
		},
	}

	return batch.RunOne(ctx, unit, p.deadline, nil, batch.WithLogger(p.logger))
}
