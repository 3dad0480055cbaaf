package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pmak99/trading-desk-public-sub000/internal/metrics"
	"github.com/pmak99/trading-desk-public-sub000/internal/storage"
	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

const (
	// DefaultMaxRetries bounds retries of transient storage faults
	DefaultMaxRetries = 3

	// DefaultBaseBackoff is the first retry delay; it doubles per attempt
	DefaultBaseBackoff = 50 * time.Millisecond
)

// Store defines the persistence interface the ledger needs
type Store interface {
	TryAcquire(ctx context.Context, service string, limits models.BudgetLimits, estimatedCost float64, usage models.Usage) (models.Decision, error)
	RecordUsage(ctx context.Context, service string, cost float64, usage models.Usage) error
	Summary(ctx context.Context, service string, limits models.BudgetLimits) (*models.BudgetSummary, error)
}

// Ledger enforces per-service daily-call and monthly-cost caps. It is the
// single entry point for spend mutation; every concurrent worker funnels
// through its transactional store.
type Ledger struct {
	store  Store
	limits map[string]models.BudgetLimits
	logger *slog.Logger

	maxRetries  int
	baseBackoff time.Duration
}

// Option configures the ledger
type Option func(*Ledger)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMaxRetries sets the transient-fault retry bound
func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		l.maxRetries = n
	}
}

// WithBaseBackoff sets the initial retry delay
func WithBaseBackoff(d time.Duration) Option {
	return func(l *Ledger) {
		l.baseBackoff = d
	}
}

// New creates a new ledger over the given store. limits maps service name
// to its caps; a service without an entry is refused outright (the ledger
// fails closed rather than granting unbounded spend).
func New(store Store, limits map[string]models.BudgetLimits, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		limits:      limits,
		logger:      slog.Default(),
		maxRetries:  DefaultMaxRetries,
		baseBackoff: DefaultBaseBackoff,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Services returns the names of all services with configured budgets.
func (l *Ledger) Services() []string {
	names := make([]string, 0, len(l.limits))
	for name := range l.limits {
		names = append(names, name)
	}
	return names
}

// TryAcquire asks whether one call costing estimatedCost may run against
// service, committing the spend if granted. Transient storage faults are
// retried with exponential backoff up to the bound, then surfaced as an
// error distinct from any denial; callers must treat that error as a
// refusal (fail closed), not as a cap being reached.
func (l *Ledger) TryAcquire(ctx context.Context, service string, estimatedCost float64, usage models.Usage) (models.Decision, error) {
	limits, ok := l.limits[service]
	if !ok {
		return models.Decision{}, &UnknownServiceError{Service: service}
	}

	var decision models.Decision
	err := l.withRetry(ctx, "try_acquire", func() error {
		var acquireErr error
		decision, acquireErr = l.store.TryAcquire(ctx, service, limits, estimatedCost, usage)
		return acquireErr
	})
	if err != nil {
		return models.Decision{}, fmt.Errorf("budget store unavailable for %s: %w", service, err)
	}

	if decision.Granted {
		metrics.RecordBudgetDecision(service, "granted")
		metrics.RecordBudgetCost(service, estimatedCost)
		l.logger.Debug("budget acquired",
			slog.String("service", service),
			slog.Float64("estimated_cost", estimatedCost),
			slog.Int64("daily_calls", decision.DailyCalls),
			slog.Float64("monthly_cost", decision.MonthlyCost))
	} else {
		metrics.RecordBudgetDecision(service, string(decision.Reason))
		l.logger.Info("budget denied",
			slog.String("service", service),
			slog.String("reason", string(decision.Reason)),
			slog.Int64("daily_calls", decision.DailyCalls),
			slog.Float64("monthly_cost", decision.MonthlyCost))
	}

	return decision, nil
}

// RecordUsage posts the true cost and usage of a completed call. Only the
// residual over what was already acquired should be passed; negative
// corrections are ignored so a grant is never retroactively undone.
func (l *Ledger) RecordUsage(ctx context.Context, service string, cost float64, usage models.Usage) error {
	if cost < 0 {
		cost = 0
	}
	if cost == 0 && usage == (models.Usage{}) {
		return nil
	}

	err := l.withRetry(ctx, "record_usage", func() error {
		return l.store.RecordUsage(ctx, service, cost, usage)
	})
	if err != nil {
		return fmt.Errorf("failed to record usage for %s: %w", service, err)
	}

	metrics.RecordBudgetCost(service, cost)
	return nil
}

// Summary returns the read-only spend view for a service.
func (l *Ledger) Summary(ctx context.Context, service string) (*models.BudgetSummary, error) {
	limits, ok := l.limits[service]
	if !ok {
		return nil, &UnknownServiceError{Service: service}
	}

	return l.store.Summary(ctx, service, limits)
}

// withRetry runs fn, retrying transient storage faults with exponential
// backoff. Non-transient errors surface immediately.
func (l *Ledger) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := l.baseBackoff

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !storage.IsTransient(err) {
			return err
		}
		if attempt >= l.maxRetries {
			break
		}

		metrics.RecordTransientRetry(op)
		l.logger.Warn("transient storage error, retrying",
			slog.String("operation", op),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}

	return err
}
