// Package api
// Author: momentics
//
// Executor contract for backend task dispatch with completion hand-off to a loop.

package api

import "github.com/momentics/hioload-ev/cabinet"

// TaskToken identifies a task submitted to an Executor.
type TaskToken = cabinet.Token

// Executor runs backend work off the loop thread.
type Executor interface {
	// Execute schedules backend for execution on a worker.
	Execute(backend func()) (TaskToken, error)

	// ExecuteThen schedules backend and posts completion back to the loop once it finished.
	ExecuteThen(backend, completion func()) (TaskToken, error)

	// NumWorkers returns current number of worker routines.
	NumWorkers() int

	// Cleanup stops the workers and drops queued work.
	Cleanup()
}
