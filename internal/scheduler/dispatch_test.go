package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(time.UTC, 8*time.Minute,
		[]Entry{
			{At: "06:30", Job: "morning-scan"},
			{At: "09:00", Job: "sentiment-precache"},
			{At: "16:30", Job: "outcome-recorder"},
			{At: "17:00", Job: "evening-summary"},
		},
		[]Entry{{At: "10:00", Job: "weekend-maintenance"}},
		[]Entry{{At: "18:00", Job: "week-ahead-scan"}},
	)
	require.NoError(t, err)
	return d
}

// 2026-03-09 is a Monday.
func weekdayAt(hour, min int) time.Time {
	return time.Date(2026, 3, 9, hour, min, 0, 0, time.UTC)
}

func TestDispatcher_ExactMatch(t *testing.T) {
	d := newTestDispatcher(t)

	job, due := d.Dispatch(weekdayAt(6, 30))
	require.True(t, due)
	assert.Equal(t, "morning-scan", job)
}

func TestDispatcher_WithinTolerance(t *testing.T) {
	d := newTestDispatcher(t)

	// 7 minutes late is inside the 8-minute window
	job, due := d.Dispatch(weekdayAt(6, 37))
	require.True(t, due)
	assert.Equal(t, "morning-scan", job)

	// 7 minutes early too
	job, due = d.Dispatch(weekdayAt(6, 23))
	require.True(t, due)
	assert.Equal(t, "morning-scan", job)
}

func TestDispatcher_OutsideTolerance(t *testing.T) {
	d := newTestDispatcher(t)

	_, due := d.Dispatch(weekdayAt(6, 45))
	assert.False(t, due)

	_, due = d.Dispatch(weekdayAt(12, 0))
	assert.False(t, due)
}

func TestDispatcher_ClosestEntryWins(t *testing.T) {
	d, err := NewDispatcher(time.UTC, 20*time.Minute,
		[]Entry{
			{At: "16:30", Job: "outcome-recorder"},
			{At: "17:00", Job: "evening-summary"},
		}, nil, nil)
	require.NoError(t, err)

	// 16:50 is within tolerance of both entries; 17:00 is nearer
	job, due := d.Dispatch(weekdayAt(16, 50))
	require.True(t, due)
	assert.Equal(t, "evening-summary", job)
}

func TestDispatcher_DayClassTables(t *testing.T) {
	d := newTestDispatcher(t)

	// 2026-03-14 is a Saturday
	job, due := d.Dispatch(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	require.True(t, due)
	assert.Equal(t, "weekend-maintenance", job)

	// 2026-03-15 is a Sunday
	job, due = d.Dispatch(time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC))
	require.True(t, due)
	assert.Equal(t, "week-ahead-scan", job)

	// The weekday table does not leak into weekends
	_, due = d.Dispatch(time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC))
	assert.False(t, due)
}

func TestDispatcher_TimezoneConversion(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	d, err := NewDispatcher(ny, 8*time.Minute,
		[]Entry{{At: "06:30", Job: "morning-scan"}}, nil, nil)
	require.NoError(t, err)

	// 10:30 UTC on 2026-03-09 is 06:30 in New York (EDT)
	job, due := d.Dispatch(time.Date(2026, 3, 9, 10, 30, 0, 0, time.UTC))
	require.True(t, due)
	assert.Equal(t, "morning-scan", job)
}

func TestNewDispatcher_RejectsBadTime(t *testing.T) {
	_, err := NewDispatcher(time.UTC, 8*time.Minute,
		[]Entry{{At: "25:99", Job: "bad"}}, nil, nil)
	assert.Error(t, err)
}

func TestDispatcher_Day(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	d, err := NewDispatcher(ny, 8*time.Minute, nil, nil, nil)
	require.NoError(t, err)

	// 03:00 UTC is still the previous day in New York
	assert.Equal(t, "2026-03-08", d.Day(time.Date(2026, 3, 9, 3, 0, 0, 0, time.UTC)))
}
