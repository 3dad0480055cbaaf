package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// JobStore persists per-(day, job) run status so a restart mid-day can
// recover exactly which jobs already ran.
type JobStore struct {
	db *DB

	// For time mocking in tests
	now func() time.Time
}

// JobStoreOption configures the job store
type JobStoreOption func(*JobStore)

// WithJobTimeFunc sets a custom time function (for testing)
func WithJobTimeFunc(fn func() time.Time) JobStoreOption {
	return func(s *JobStore) {
		s.now = fn
	}
}

// NewJobStore creates a new job store
func NewJobStore(db *DB, opts ...JobStoreOption) *JobStore {
	s := &JobStore{
		db:  db,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get returns the record for (day, job). A missing row is reported as a
// synthetic not_run record, the lazy-creation contract of the ledger.
func (s *JobStore) Get(ctx context.Context, day, job string) (*models.JobRecord, error) {
	record := &models.JobRecord{Day: day, Job: job, Status: models.JobNotRun}

	var startedAt, finishedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT status, started_at, finished_at, error
		FROM job_status WHERE day = ? AND job = ?
	`, day, job).Scan(&record.Status, &startedAt, &finishedAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return record, nil
	}
	if err != nil {
		return nil, classify("read job status", err)
	}

	if startedAt.Valid {
		record.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		record.FinishedAt = finishedAt.Time
	}
	if errMsg.Valid {
		record.Error = errMsg.String
	}

	return record, nil
}

// ListDay returns all recorded jobs for a day.
func (s *JobStore) ListDay(ctx context.Context, day string) ([]*models.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job, status, started_at, finished_at, error
		FROM job_status WHERE day = ? ORDER BY job
	`, day)
	if err != nil {
		return nil, classify("list job status", err)
	}
	defer rows.Close()

	var records []*models.JobRecord
	for rows.Next() {
		record := &models.JobRecord{Day: day}
		var startedAt, finishedAt sql.NullTime
		var errMsg sql.NullString

		if err := rows.Scan(&record.Job, &record.Status, &startedAt, &finishedAt, &errMsg); err != nil {
			return nil, classify("scan job status", err)
		}
		if startedAt.Valid {
			record.StartedAt = startedAt.Time
		}
		if finishedAt.Valid {
			record.FinishedAt = finishedAt.Time
		}
		if errMsg.Valid {
			record.Error = errMsg.String
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// MarkRunning transitions (day, job) from not_run to running. It is a
// compare-and-swap: if another process already claimed or finished the job
// today, ErrStatusConflict is returned and the caller must not run it.
func (s *JobStore) MarkRunning(ctx context.Context, day, job string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin mark running", err)
	}
	defer tx.Rollback()

	// Lazily create the row in not_run state, then swap it to running.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO job_status (day, job, status) VALUES (?, ?, 'not_run')
		ON CONFLICT(day, job) DO NOTHING
	`, day, job)
	if err != nil {
		return classify("insert job row", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE job_status SET status = 'running', started_at = ?, finished_at = NULL, error = NULL
		WHERE day = ? AND job = ? AND status = 'not_run'
	`, s.now().UTC(), day, job)
	if err != nil {
		return classify("mark running", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classify("mark running rows", err)
	}
	if affected == 0 {
		return ErrStatusConflict
	}

	return classify("commit mark running", tx.Commit())
}

// MarkFinished transitions (day, job) from running to success or failed.
// This is the only transition the job handler itself records.
func (s *JobStore) MarkFinished(ctx context.Context, day, job string, status models.JobStatus, runErr string) error {
	if !status.Terminal() {
		return errors.New("finish status must be success or failed")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE job_status SET status = ?, finished_at = ?, error = ?
		WHERE day = ? AND job = ? AND status = 'running'
	`, status, s.now().UTC(), runErr, day, job)
	if err != nil {
		return classify("mark finished", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classify("mark finished rows", err)
	}
	if affected == 0 {
		return ErrStatusConflict
	}

	return nil
}
