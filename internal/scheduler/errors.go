package scheduler

import (
	"fmt"
	"strings"

	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// CycleError reports a dependency cycle, naming every node on it.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("job dependency cycle: %s", strings.Join(e.Nodes, " -> "))
}

// DependencyNotSatisfiedError means a job was skipped because a same-day
// prerequisite has not recorded success. This is a legitimately deferred
// run, not a failure.
type DependencyNotSatisfiedError struct {
	Job          string
	Prerequisite string
	Status       models.JobStatus
}

func (e *DependencyNotSatisfiedError) Error() string {
	return fmt.Sprintf("job %q deferred: prerequisite %q is %s", e.Job, e.Prerequisite, e.Status)
}

// ErrUnknownJob is returned when a job name has no registered handler.
type ErrUnknownJob struct {
	Job string
}

func (e *ErrUnknownJob) Error() string {
	return fmt.Sprintf("no handler registered for job %q", e.Job)
}
