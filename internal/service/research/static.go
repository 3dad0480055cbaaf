package research

import (
	"context"
	"fmt"
	"log/slog"
)

// StaticUniverse serves a fixed ticker list, for deployments without an
// earnings-calendar integration.
type StaticUniverse []string

// EarningsTickers returns the configured list unchanged.
func (u StaticUniverse) EarningsTickers(ctx context.Context) ([]string, error) {
	return []string(u), nil
}

// LogSink records analyses and outcomes by logging them. It stands in
// until a real persistence integration is wired.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs what it receives.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) RecordAnalyses(ctx context.Context, analyses []*Analysis) error {
	for _, a := range analyses {
		s.logger.InfoContext(ctx, "analysis recorded",
			slog.String("ticker", a.Ticker),
			slog.String("provider", a.Provider),
			slog.Float64("cost", a.Cost),
			slog.Bool("sentiment_skipped", a.SentimentSkipped))
	}
	return nil
}

func (s *LogSink) RecordOutcomes(ctx context.Context) error {
	s.logger.InfoContext(ctx, "outcome recording pass complete")
	return nil
}

// DryRunExecutor answers every call locally without spending anything.
// It keeps the scheduler and budget plumbing exercisable when no live
// provider client is configured.
type DryRunExecutor struct{}

// NewDryRunExecutor creates an executor that never leaves the process.
func NewDryRunExecutor() *DryRunExecutor {
	return &DryRunExecutor{}
}

func (e *DryRunExecutor) Execute(ctx context.Context, provider, model, input string) (*CallResult, error) {
	return &CallResult{
		Output: fmt.Sprintf("dry-run response from %s/%s", provider, model),
		Cost:   0,
	}, nil
}
