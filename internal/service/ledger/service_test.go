package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmak99/trading-desk-public-sub000/internal/storage"
	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// fakeStore scripts store behavior for service-level tests.
type fakeStore struct {
	mu sync.Mutex

	acquireErrs  []error // consumed one per call before decision is returned
	decision     models.Decision
	acquireCalls int

	recordErr   error
	recordCalls int
	lastCost    float64
	lastUsage   models.Usage

	summary *models.BudgetSummary
}

func (f *fakeStore) TryAcquire(ctx context.Context, service string, limits models.BudgetLimits, estimatedCost float64, usage models.Usage) (models.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.acquireCalls++
	if len(f.acquireErrs) > 0 {
		err := f.acquireErrs[0]
		f.acquireErrs = f.acquireErrs[1:]
		if err != nil {
			return models.Decision{}, err
		}
	}
	return f.decision, nil
}

func (f *fakeStore) RecordUsage(ctx context.Context, service string, cost float64, usage models.Usage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.recordCalls++
	f.lastCost = cost
	f.lastUsage = usage
	return f.recordErr
}

func (f *fakeStore) Summary(ctx context.Context, service string, limits models.BudgetLimits) (*models.BudgetSummary, error) {
	return f.summary, nil
}

func testLimits() map[string]models.BudgetLimits {
	return map[string]models.BudgetLimits{
		"tradier": {DailyCallLimit: 40, MonthlyBudget: 25.0},
		"openai":  {DailyCallLimit: 100, MonthlyBudget: 50.0, HardCap: 75.0},
	}
}

func TestLedger_TryAcquire_Granted(t *testing.T) {
	store := &fakeStore{decision: models.Decision{Granted: true, DailyCalls: 1}}
	l := New(store, testLimits())

	decision, err := l.TryAcquire(context.Background(), "tradier", 0.01, models.Usage{})
	require.NoError(t, err)
	assert.True(t, decision.Granted)
	assert.Equal(t, 1, store.acquireCalls)
}

func TestLedger_TryAcquire_UnknownServiceFailsClosed(t *testing.T) {
	store := &fakeStore{decision: models.Decision{Granted: true}}
	l := New(store, testLimits())

	_, err := l.TryAcquire(context.Background(), "unconfigured", 0.01, models.Usage{})
	require.Error(t, err)

	var unknown *UnknownServiceError
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, "unconfigured", unknown.Service)

	// The store must never be consulted for an unconfigured service
	assert.Zero(t, store.acquireCalls)
}

func TestLedger_TryAcquire_DenialIsNotAnError(t *testing.T) {
	store := &fakeStore{decision: models.Decision{Reason: models.DenyDailyLimit, DailyCalls: 40}}
	l := New(store, testLimits())

	decision, err := l.TryAcquire(context.Background(), "tradier", 0.01, models.Usage{})
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, models.DenyDailyLimit, decision.Reason)
}

func TestLedger_TryAcquire_RetriesTransient(t *testing.T) {
	transient := &storage.TransientError{Op: "acquire", Err: errors.New("database is locked")}
	store := &fakeStore{
		acquireErrs: []error{transient, transient, nil},
		decision:    models.Decision{Granted: true},
	}
	l := New(store, testLimits(), WithBaseBackoff(time.Millisecond))

	decision, err := l.TryAcquire(context.Background(), "tradier", 0.01, models.Usage{})
	require.NoError(t, err)
	assert.True(t, decision.Granted)
	assert.Equal(t, 3, store.acquireCalls)
}

func TestLedger_TryAcquire_TransientExhaustsRetries(t *testing.T) {
	transient := &storage.TransientError{Op: "acquire", Err: errors.New("database is locked")}
	store := &fakeStore{
		acquireErrs: []error{transient, transient, transient, transient, transient},
	}
	l := New(store, testLimits(), WithMaxRetries(2), WithBaseBackoff(time.Millisecond))

	_, err := l.TryAcquire(context.Background(), "tradier", 0.01, models.Usage{})
	require.Error(t, err)

	// Surfaced as infrastructure trouble, never as a budget denial
	assert.True(t, storage.IsTransient(err))
	assert.Equal(t, 3, store.acquireCalls) // initial attempt + 2 retries
}

func TestLedger_TryAcquire_NonTransientNotRetried(t *testing.T) {
	store := &fakeStore{
		acquireErrs: []error{errors.New("table is gone")},
	}
	l := New(store, testLimits(), WithBaseBackoff(time.Millisecond))

	_, err := l.TryAcquire(context.Background(), "tradier", 0.01, models.Usage{})
	require.Error(t, err)
	assert.Equal(t, 1, store.acquireCalls)
}

func TestLedger_RecordUsage_ClampsNegativeCost(t *testing.T) {
	store := &fakeStore{}
	l := New(store, testLimits())

	// A negative correction with no usage is a no-op
	err := l.RecordUsage(context.Background(), "openai", -0.5, models.Usage{})
	require.NoError(t, err)
	assert.Zero(t, store.recordCalls)

	// A negative cost with real usage still posts the usage at zero cost
	err = l.RecordUsage(context.Background(), "openai", -0.5, models.Usage{OutputTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, 1, store.recordCalls)
	assert.Zero(t, store.lastCost)
	assert.Equal(t, int64(100), store.lastUsage.OutputTokens)
}

func TestLedger_RecordUsage_PostsResidual(t *testing.T) {
	store := &fakeStore{}
	l := New(store, testLimits())

	err := l.RecordUsage(context.Background(), "openai", 0.03, models.Usage{SearchRequests: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, store.recordCalls)
	assert.InDelta(t, 0.03, store.lastCost, 1e-9)
}

func TestLedger_Summary_UnknownService(t *testing.T) {
	store := &fakeStore{}
	l := New(store, testLimits())

	_, err := l.Summary(context.Background(), "unconfigured")
	var unknown *UnknownServiceError
	assert.ErrorAs(t, err, &unknown)
}

func TestLedger_Services(t *testing.T) {
	l := New(&fakeStore{}, testLimits())
	assert.ElementsMatch(t, []string{"tradier", "openai"}, l.Services())
}
