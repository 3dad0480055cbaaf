package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pmak99/trading-desk-public-sub000/internal/logging"
	"github.com/pmak99/trading-desk-public-sub000/internal/metrics"
	"github.com/pmak99/trading-desk-public-sub000/internal/storage"
	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// HandlerFunc executes one job. The returned error decides the terminal
// status recorded for (day, job).
type HandlerFunc func(ctx context.Context) error

// Store defines the job status persistence the runner needs
type Store interface {
	Get(ctx context.Context, day, job string) (*models.JobRecord, error)
	ListDay(ctx context.Context, day string) ([]*models.JobRecord, error)
	MarkRunning(ctx context.Context, day, job string) error
	MarkFinished(ctx context.Context, day, job string, status models.JobStatus, runErr string) error
}

// Outcome reports what a dispatch attempt did.
type Outcome struct {
	Job     string           `json:"job"`
	Ran     bool             `json:"ran"`
	Status  models.JobStatus `json:"status,omitempty"`
	Skipped string           `json:"skipped,omitempty"` // reason when !Ran
	Error   string           `json:"error,omitempty"`
}

// Skip reasons surfaced in Outcome.Skipped.
const (
	SkipNothingDue    = "nothing_due"
	SkipAlreadyRan    = "already_ran"
	SkipClaimedByPeer = "claimed_by_peer"
	SkipDependency    = "dependency_not_satisfied"
	SkipNoHandler     = "no_handler"
)

// Runner drives the per-(day, job) state machine: it matches wall-clock
// time to a job, verifies same-day prerequisites recorded success, claims
// the run via a compare-and-swap transition, executes the handler, and
// records the terminal status.
type Runner struct {
	dispatcher *Dispatcher
	store      Store
	deps       map[string][]string
	handlers   map[string]HandlerFunc
	logger     *slog.Logger

	// For time mocking in tests
	now func() time.Time
}

// RunnerOption configures the runner
type RunnerOption func(*Runner)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithTimeFunc sets a custom time function (for testing)
func WithTimeFunc(fn func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = fn
	}
}

// NewRunner creates a runner. The dependency graph is validated for
// cycles here, before any job can run; a cycle is a fatal configuration
// error.
func NewRunner(dispatcher *Dispatcher, store Store, deps map[string][]string, opts ...RunnerOption) (*Runner, error) {
	if err := ValidateDependencies(deps); err != nil {
		return nil, err
	}

	r := &Runner{
		dispatcher: dispatcher,
		store:      store,
		deps:       deps,
		handlers:   make(map[string]HandlerFunc),
		logger:     slog.Default(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Register binds a handler to a job name.
func (r *Runner) Register(job string, handler HandlerFunc) {
	r.handlers[job] = handler
}

// Dispatch maps now to a scheduled job name, if one is due.
func (r *Runner) Dispatch(now time.Time) (string, bool) {
	return r.dispatcher.Dispatch(now)
}

// Today lists the persisted job records for the current business day.
func (r *Runner) Today(ctx context.Context) ([]*models.JobRecord, error) {
	return r.store.ListDay(ctx, r.dispatcher.Day(r.now()))
}

// Tick is the poll entry point: it dispatches the current time and, if a
// job is due, runs it through the full prerequisite and status checks.
func (r *Runner) Tick(ctx context.Context) (*Outcome, error) {
	now := r.now()

	job, due := r.dispatcher.Dispatch(now)
	if !due {
		return &Outcome{Skipped: SkipNothingDue}, nil
	}

	return r.RunJob(ctx, job)
}

// RunJob executes a named job if its state machine and prerequisites
// allow. A skip is not an error; the reason is surfaced in the Outcome.
func (r *Runner) RunJob(ctx context.Context, job string) (*Outcome, error) {
	day := r.dispatcher.Day(r.now())
	ctx = logging.WithJob(ctx, job)

	handler, ok := r.handlers[job]
	if !ok {
		return &Outcome{Job: job, Skipped: SkipNoHandler}, &ErrUnknownJob{Job: job}
	}

	record, err := r.store.Get(ctx, day, job)
	if err != nil {
		return nil, err
	}
	if record.Status != models.JobNotRun {
		r.logger.Info("job already ran today, skipping",
			slog.String("job", job),
			slog.String("status", string(record.Status)))
		metrics.RecordJobSkip(job, SkipAlreadyRan)
		return &Outcome{Job: job, Skipped: SkipAlreadyRan, Status: record.Status}, nil
	}

	// Every same-day prerequisite must have recorded success. A missing
	// or failed prerequisite defers the job; its status is not touched so
	// a later trigger can retry once the prerequisite lands.
	for _, prereq := range r.deps[job] {
		prereqRecord, err := r.store.Get(ctx, day, prereq)
		if err != nil {
			return nil, err
		}
		if prereqRecord.Status != models.JobSuccess {
			depErr := &DependencyNotSatisfiedError{Job: job, Prerequisite: prereq, Status: prereqRecord.Status}
			r.logger.Info("job deferred",
				slog.String("job", job),
				slog.String("prerequisite", prereq),
				slog.String("prerequisite_status", string(prereqRecord.Status)))
			metrics.RecordJobSkip(job, SkipDependency)
			return &Outcome{Job: job, Skipped: SkipDependency, Error: depErr.Error()}, nil
		}
	}

	// Claim the run. Losing this race means another process got there
	// first, which is a skip, not a failure.
	if err := r.store.MarkRunning(ctx, day, job); err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			metrics.RecordJobSkip(job, SkipClaimedByPeer)
			return &Outcome{Job: job, Skipped: SkipClaimedByPeer}, nil
		}
		return nil, err
	}

	r.logger.Info("job starting", slog.String("job", job), slog.String("day", day))
	start := r.now()

	status := models.JobSuccess
	runErrMsg := ""
	if runErr := r.runProtected(ctx, handler); runErr != nil {
		status = models.JobFailed
		runErrMsg = runErr.Error()
		r.logger.Error("job failed",
			slog.String("job", job),
			slog.String("error", runErrMsg))
	}

	if err := r.store.MarkFinished(ctx, day, job, status, runErrMsg); err != nil {
		return nil, err
	}

	duration := r.now().Sub(start)
	metrics.RecordJobRun(job, string(status), duration)
	r.logger.Info("job finished",
		slog.String("job", job),
		slog.String("status", string(status)),
		slog.Duration("duration", duration))

	return &Outcome{Job: job, Ran: true, Status: status, Error: runErrMsg}, nil
}

// runProtected keeps a panicking handler from leaving the job stuck in
// running state.
func (r *Runner) runProtected(ctx context.Context, handler HandlerFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec}
		}
	}()

	return handler(ctx)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("job handler panicked: %v", e.value)
}
