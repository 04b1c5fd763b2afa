// Package executor runs a job's action. The engine only sees the Executor
// interface; which implementation is installed is a deployment choice.
package executor

import (
	"context"
	"time"
)

// Executor runs one action described by an opaque command string and returns
// its result payload. Errors are recorded against the job, never propagated
// into the scheduler loop.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Stub is a deterministic executor for tests: it waits Delay, then returns
// the configured result or error.
type Stub struct {
	Delay  time.Duration
	Result string
	Err    error
}

func (s Stub) Execute(ctx context.Context, command string) (string, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.Result, s.Err
}
