package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AllUnitsComplete(t *testing.T) {
	units := make([]Unit[int], 5)
	for i := range units {
		i := i
		units[i] = Unit[int]{
			ID: fmt.Sprintf("unit-%d", i),
			Run: func(ctx context.Context) (int, error) {
				return i * 10, nil
			},
		}
	}

	result := Run(context.Background(), units, time.Second)

	require.Len(t, result.Outcomes, 5)
	assert.Equal(t, 5, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.TimedOut)
	assert.NotEmpty(t, result.RunID)
	assert.Less(t, result.Duration, time.Second)
}

func TestRun_ResultsPositionallyAligned(t *testing.T) {
	// Completion order is scrambled by sleeps; slot order must not be.
	delays := []time.Duration{30 * time.Millisecond, 0, 15 * time.Millisecond}
	units := make([]Unit[string], len(delays))
	for i, d := range delays {
		i, d := i, d
		units[i] = Unit[string]{
			ID: fmt.Sprintf("unit-%d", i),
			Run: func(ctx context.Context) (string, error) {
				time.Sleep(d)
				return fmt.Sprintf("value-%d", i), nil
			},
		}
	}

	result := Run(context.Background(), units, time.Second)

	require.Len(t, result.Outcomes, 3)
	for i, outcome := range result.Outcomes {
		assert.Equal(t, fmt.Sprintf("unit-%d", i), outcome.ID)
		assert.Equal(t, fmt.Sprintf("value-%d", i), outcome.Value)
	}
}

func TestRun_FailingUnitDoesNotAbortSiblings(t *testing.T) {
	boom := errors.New("boom")
	units := []Unit[int]{
		{ID: "ok-1", Run: func(ctx context.Context) (int, error) { return 1, nil }},
		{ID: "bad", Run: func(ctx context.Context) (int, error) { return 0, boom }},
		{ID: "ok-2", Run: func(ctx context.Context) (int, error) { return 2, nil }},
	}

	result := Run(context.Background(), units, time.Second)

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.ErrorIs(t, result.Outcomes[1].Err, boom)
	assert.True(t, result.Outcomes[0].OK())
	assert.True(t, result.Outcomes[2].OK())
}

func TestRun_PanicConvertedToError(t *testing.T) {
	units := []Unit[int]{
		{ID: "panicker", Run: func(ctx context.Context) (int, error) { panic("bad math") }},
		{ID: "ok", Run: func(ctx context.Context) (int, error) { return 7, nil }},
	}

	result := Run(context.Background(), units, time.Second)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Succeeded)
	require.Error(t, result.Outcomes[0].Err)
	assert.Contains(t, result.Outcomes[0].Err.Error(), "bad math")
}

func TestRun_SlowUnitsBecomeTimeouts(t *testing.T) {
	units := []Unit[int]{
		{ID: "fast", Run: func(ctx context.Context) (int, error) { return 1, nil }},
		{ID: "slow-cooperative", Run: func(ctx context.Context) (int, error) {
			select {
			case <-time.After(5 * time.Second):
				return 2, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}},
		{ID: "slow-stubborn", Run: func(ctx context.Context) (int, error) {
			// Ignores cancellation entirely; its slot must still fill.
			time.Sleep(2 * time.Second)
			return 3, nil
		}},
	}

	result := Run(context.Background(), units, 50*time.Millisecond,
		WithGracePeriod(50*time.Millisecond))

	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.TimedOut)
	assert.True(t, result.Outcomes[1].TimedOut)
	assert.True(t, result.Outcomes[2].TimedOut)
	// The caller is never blocked for the stubborn unit's full runtime
	assert.Less(t, result.Duration, time.Second)
}

func TestRun_MaxParallelRespected(t *testing.T) {
	var running, peak atomic.Int32

	units := make([]Unit[int], 12)
	for i := range units {
		units[i] = Unit[int]{
			ID: fmt.Sprintf("unit-%d", i),
			Run: func(ctx context.Context) (int, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return 0, nil
			},
		}
	}

	result := Run(context.Background(), units, 5*time.Second, WithMaxParallel(3))

	assert.Equal(t, 12, result.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRun_EmptyBatch(t *testing.T) {
	result := Run(context.Background(), []Unit[int]{}, time.Second)

	assert.Empty(t, result.Outcomes)
	assert.Zero(t, result.Succeeded)
}

func TestRunOne_Success(t *testing.T) {
	unit := Unit[string]{
		ID:  "single",
		Run: func(ctx context.Context) (string, error) { return "done", nil },
	}

	value, err := RunOne(context.Background(), unit, time.Second, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "done", value)
}

func TestRunOne_TimeoutReturnsFallback(t *testing.T) {
	unit := Unit[string]{
		ID: "sleeper",
		Run: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	value, err := RunOne(context.Background(), unit, 20*time.Millisecond, "fallback",
		WithGracePeriod(20*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "fallback", value)
}

func TestRunOne_ErrorReturnsFallback(t *testing.T) {
	boom := errors.New("boom")
	unit := Unit[string]{
		ID:  "bad",
		Run: func(ctx context.Context) (string, error) { return "", boom },
	}

	value, err := RunOne(context.Background(), unit, time.Second, "fallback")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "fallback", value)
}
