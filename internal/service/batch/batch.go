// Package batch fans independent task units out to parallel goroutines
// under a single shared deadline. It is the only component in the system
// that creates concurrency; everything it calls is either a pure function
// or a transactional operation on shared durable state.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pmak99/trading-desk-public-sub000/internal/metrics"
)

const (
	// DefaultGracePeriod is how long after the deadline stragglers may
	// still deliver before their slots are written off as timeouts
	DefaultGracePeriod = 5 * time.Second
)

// Unit is one opaque piece of work. The ID is used only for result
// attribution and logging, never for ordering.
type Unit[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// Outcome is the result slot for one unit: a value, an error, or a
// timeout marker.
type Outcome[T any] struct {
	ID       string
	Value    T
	Err      error
	TimedOut bool
}

// OK reports whether the unit produced a usable value.
func (o Outcome[T]) OK() bool {
	return o.Err == nil && !o.TimedOut
}

// Result aggregates a whole fan-out. Outcomes are positionally aligned
// with the input units; len(Outcomes) == len(units) always holds, even
// under timeout.
type Result[T any] struct {
	RunID    string
	Outcomes []Outcome[T]

	Succeeded int
	Failed    int
	TimedOut  int
	Duration  time.Duration
}

type options struct {
	maxParallel int
	gracePeriod time.Duration
	logger      *slog.Logger
}

// Option configures a batch run
type Option func(*options)

// WithMaxParallel caps how many units run at once. Zero means unbounded.
func WithMaxParallel(n int) Option {
	return func(o *options) {
		o.maxParallel = n
	}
}

// WithGracePeriod sets how long after the deadline late results are
// still accepted
func WithGracePeriod(d time.Duration) Option {
	return func(o *options) {
		o.gracePeriod = d
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Run launches every unit concurrently and blocks until all complete or
// the deadline (plus a short grace period) elapses. Slots for units that
// never delivered are marked TimedOut; their late results, if any, are
// discarded. A panicking or failing unit never aborts its siblings.
//
// Cancellation is cooperative only: a unit already past its last
// cancellable checkpoint may still finish and consume budget after being
// marked TimedOut. Budget correctness comes from the ledger's atomicity,
// not from this cancellation.
func Run[T any](ctx context.Context, units []Unit[T], deadline time.Duration, opts ...Option) Result[T] {
	start := time.Now()

	cfg := options{
		gracePeriod: DefaultGracePeriod,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	result := Result[T]{
		RunID:    uuid.New().String(),
		Outcomes: make([]Outcome[T], len(units)),
	}
	if len(units) == 0 {
		return result
	}

	batchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type slot struct {
		idx   int
		value T
		err   error
	}

	// Buffered for every unit so stragglers can deliver after the
	// collector stops listening and still terminate.
	results := make(chan slot, len(units))

	var sem chan struct{}
	if cfg.maxParallel > 0 {
		sem = make(chan struct{}, cfg.maxParallel)
	}

	for i, unit := range units {
		go func(idx int, u Unit[T]) {
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-batchCtx.Done():
					var zero T
					results <- slot{idx: idx, value: zero, err: batchCtx.Err()}
					return
				}
			}

			value, err := runProtected(batchCtx, u)
			results <- slot{idx: idx, value: value, err: err}
		}(i, unit)
	}

	// Collect until every slot is filled or the deadline plus grace
	// period elapses; unfilled slots degrade to Timeout rather than
	// blocking the caller indefinitely.
	graceTimer := time.NewTimer(deadline + cfg.gracePeriod)
	defer graceTimer.Stop()

	received := make([]bool, len(units))
	remaining := len(units)

collect:
	for remaining > 0 {
		select {
		case s := <-results:
			outcome := Outcome[T]{ID: units[s.idx].ID, Value: s.value, Err: s.err}
			// A unit that surfaced the batch deadline cooperatively is a
			// timeout, not a task failure.
			if s.err != nil && errors.Is(s.err, context.DeadlineExceeded) {
				outcome = Outcome[T]{ID: units[s.idx].ID, TimedOut: true}
			}
			result.Outcomes[s.idx] = outcome
			received[s.idx] = true
			remaining--
		case <-graceTimer.C:
			break collect
		}
	}

	for i := range units {
		if !received[i] {
			result.Outcomes[i] = Outcome[T]{ID: units[i].ID, TimedOut: true}
		}
	}

	for _, outcome := range result.Outcomes {
		switch {
		case outcome.TimedOut:
			result.TimedOut++
			metrics.RecordBatchUnit("timeout")
		case outcome.Err != nil:
			result.Failed++
			metrics.RecordBatchUnit("error")
		default:
			result.Succeeded++
			metrics.RecordBatchUnit("value")
		}
	}

	result.Duration = time.Since(start)
	metrics.RecordBatchDuration(result.Duration)

	cfg.logger.Info("batch completed",
		slog.String("run_id", result.RunID),
		slog.Int("units", len(units)),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("timed_out", result.TimedOut),
		slog.Duration("duration", result.Duration))

	return result
}

// RunOne applies the same deadline semantics to a single unit. On error
// or timeout the fallback value is returned alongside the cause.
func RunOne[T any](ctx context.Context, unit Unit[T], deadline time.Duration, fallback T, opts ...Option) (T, error) {
	result := Run(ctx, []Unit[T]{unit}, deadline, opts...)

	outcome := result.Outcomes[0]
	if outcome.TimedOut {
		return fallback, fmt.Errorf("unit %s: %w", unit.ID, context.DeadlineExceeded)
	}
	if outcome.Err != nil {
		return fallback, outcome.Err
	}
	return outcome.Value, nil
}

// runProtected executes a unit with a panic boundary so one bad task is
// converted to an error outcome instead of taking the process down.
func runProtected[T any](ctx context.Context, unit Unit[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", unit.ID, r)
		}
	}()

	return unit.Run(ctx)
}
