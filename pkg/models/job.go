package models

import "time"

// JobStatus is the persisted state of a (day, job) pair.
type JobStatus string

const (
	JobNotRun  JobStatus = "not_run"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailed
}

// JobRecord is one row of the job status ledger, keyed by (day, job).
type JobRecord struct {
	Day        string    `json:"day"` // YYYY-MM-DD in the business timezone
	Job        string    `json:"job"`
	Status     JobStatus `json:"status"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}
