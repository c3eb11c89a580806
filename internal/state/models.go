package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExecutionMode records whether a run could replay cached chain outputs.
type ExecutionMode string

const (
	// ExecutionModeClean bypasses the cache (the full "build" task).
	ExecutionModeClean ExecutionMode = "clean"
	// ExecutionModeIncremental replays unchanged chains from cache.
	ExecutionModeIncremental ExecutionMode = "incremental"
)

// RunStatus is the outcome of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	// RunFailed means at least one chain failed.
	RunFailed RunStatus = "failed"
	// RunAborted means the build stopped on an infrastructure error or
	// cancellation.
	RunAborted RunStatus = "aborted"
)

// Run is one invocation of a named task.
type Run struct {
	ID         string
	Task       string
	Mode       ExecutionMode
	GraphHash  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus

	// Failure is set when Status is RunFailed or RunAborted.
	Failure *Failure
}

func (r Run) Validate() error {
	var errs []error
	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(r.Task) == "" {
		errs = append(errs, errors.New("task is required"))
	}
	switch r.Mode {
	case ExecutionModeClean, ExecutionModeIncremental:
	default:
		errs = append(errs, fmt.Errorf("invalid mode %q", r.Mode))
	}
	if r.StartedAt.IsZero() {
		errs = append(errs, errors.New("started_at is required"))
	}
	switch r.Status {
	case RunRunning, RunSucceeded, RunFailed, RunAborted:
	default:
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	return errors.Join(errs...)
}

// Duration returns how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ChainRecord is the terminal outcome of one chain within a run.
type ChainRecord struct {
	RunID string
	Chain string

	// State is the terminal dag state name (COMPLETED, CACHED, FAILED,
	// SKIPPED).
	State string

	Hash      string
	FromCache bool
	Changed   int

	// Error is the chain failure message, empty on success.
	Error string
}

func (c ChainRecord) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if strings.TrimSpace(c.Chain) == "" {
		errs = append(errs, errors.New("chain is required"))
	}
	if strings.TrimSpace(c.State) == "" {
		errs = append(errs, errors.New("state is required"))
	}
	if c.Changed < 0 {
		errs = append(errs, errors.New("changed must be >= 0"))
	}
	return errors.Join(errs...)
}
