package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

func TestJobStore_Get_MissingRowIsNotRun(t *testing.T) {
	store := NewJobStore(newTestDB(t))
	ctx := context.Background()

	record, err := store.Get(ctx, "2026-03-10", "morning-scan")
	require.NoError(t, err)

	assert.Equal(t, "morning-scan", record.Job)
	assert.Equal(t, models.JobNotRun, record.Status)
	assert.True(t, record.StartedAt.IsZero())
}

func TestJobStore_MarkRunning(t *testing.T) {
	store := NewJobStore(newTestDB(t))
	ctx := context.Background()

	err := store.MarkRunning(ctx, "2026-03-10", "morning-scan")
	require.NoError(t, err)

	record, err := store.Get(ctx, "2026-03-10", "morning-scan")
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, record.Status)
	assert.False(t, record.StartedAt.IsZero())
}

func TestJobStore_MarkRunning_ClaimedLosesRace(t *testing.T) {
	store := NewJobStore(newTestDB(t))
	ctx := context.Background()

	err := store.MarkRunning(ctx, "2026-03-10", "morning-scan")
	require.NoError(t, err)

	// A second claim for the same (day, job) must lose the compare-and-swap
	err = store.MarkRunning(ctx, "2026-03-10", "morning-scan")
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestJobStore_MarkRunning_SameJobDifferentDay(t *testing.T) {
	store := NewJobStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.MarkRunning(ctx, "2026-03-10", "morning-scan"))
	assert.NoError(t, store.MarkRunning(ctx, "2026-03-11", "morning-scan"))
}

func TestJobStore_MarkFinished(t *testing.T) {
	store := NewJobStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.MarkRunning(ctx, "2026-03-10", "morning-scan"))

	err := store.MarkFinished(ctx, "2026-03-10", "morning-scan", models.JobSuccess, "")
	require.NoError(t, err)

	record, err := store.Get(ctx, "2026-03-10", "morning-scan")
	require.NoError(t, err)
	assert.Equal(t, models.JobSuccess, record.Status)
	assert.False(t, record.FinishedAt.IsZero())
}

func TestJobStore_MarkFinished_Failed(t *testing.T) {
	store := NewJobStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.MarkRunning(ctx, "2026-03-10", "outcome-recorder"))

	err := store.MarkFinished(ctx, "2026-03-10", "outcome-recorder", models.JobFailed, "upstream unavailable")
	require.NoError(t, err)

	record, err := store.Get(ctx, "2026-03-10", "outcome-recorder")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, record.Status)
	assert.Equal(t, "upstream unavailable", record.Error)
}

func TestJobStore_MarkFinished_RequiresRunning(t *testing.T) {
	store := NewJobStore(newTestDB(t))
	ctx := context.Background()

	// No running row to finish
	err := store.MarkFinished(ctx, "2026-03-10", "morning-scan", models.JobSuccess, "")
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestJobStore_MarkFinished_RejectsNonTerminal(t *testing.T) {
	store := NewJobStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.MarkRunning(ctx, "2026-03-10", "morning-scan"))

	err := store.MarkFinished(ctx, "2026-03-10", "morning-scan", models.JobRunning, "")
	assert.Error(t, err)
}

func TestJobStore_ListDay_RecoversAfterRestart(t *testing.T) {
	db := newTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	require.NoError(t, store.MarkRunning(ctx, "2026-03-10", "morning-scan"))
	require.NoError(t, store.MarkFinished(ctx, "2026-03-10", "morning-scan", models.JobSuccess, ""))
	require.NoError(t, store.MarkRunning(ctx, "2026-03-10", "sentiment-precache"))

	// A fresh store over the same database sees exactly what already ran
	restarted := NewJobStore(db)
	records, err := restarted.ListDay(ctx, "2026-03-10")
	require.NoError(t, err)
	require.Len(t, records, 2)

	byJob := make(map[string]models.JobStatus, len(records))
	for _, r := range records {
		byJob[r.Job] = r.Status
	}
	assert.Equal(t, models.JobSuccess, byJob["morning-scan"])
	assert.Equal(t, models.JobRunning, byJob["sentiment-precache"])
}
