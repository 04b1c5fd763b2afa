package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a job as seen by the display layer.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusTimeout  Status = "timeout"
	StatusDisabled Status = "disabled"
)

// Outcome tags one finished run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeTimeout Outcome = "timeout"
)

// MaxHistory caps per-job execution history; the oldest record beyond the
// cap is evicted.
const MaxHistory = 10

type Job struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Schedule  string `json:"schedule"`
	Command   string `json:"command"`
	TimeoutMS int64  `json:"timeout_ms"`
	Enabled   bool   `json:"enabled"`
	Status    Status `json:"status"`

	// Last firing markers. Minute/hour are -1 until the first dispatch and
	// are stamped at dispatch time, not completion time.
	LastRunMinute int        `json:"last_run_minute"`
	LastRunHour   int        `json:"last_run_hour"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`

	LastResult string `json:"last_result,omitempty"`
	LastError  string `json:"last_error,omitempty"`

	// History holds at most MaxHistory records, newest first.
	History []ExecutionRecord `json:"history"`

	CreatedAt time.Time `json:"created_at"`
}

// ExecutionRecord is an immutable log entry for one run. Records are created
// at settle time and never mutated afterwards.
type ExecutionRecord struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Outcome    Outcome   `json:"outcome"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Timeout returns the job's timeout as a duration.
func (j Job) Timeout() time.Duration { return time.Duration(j.TimeoutMS) * time.Millisecond }

// ValidationError reports a rejected job definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid job: %s %s", e.Field, e.Reason)
}
