// File: api/runner.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runner is the deferred-execution surface of an event loop. Collaborators that
// only need to hand work to the loop thread (thread pools, timer pools) depend on
// this instead of the concrete loop.

package api

import "github.com/momentics/hioload-ev/cabinet"

// RunID identifies a pending deferred function.
type RunID = cabinet.Token

// Runner schedules functions on a loop thread.
type Runner interface {
	// RunInLoop is safe from any goroutine.
	RunInLoop(fn func()) RunID
	// RunNext defers fn to the next cycle; loop thread only.
	RunNext(fn func()) RunID
	// Run picks RunNext or RunInLoop depending on the caller.
	Run(fn func()) RunID
	// Cancel drops a function that has not run yet.
	Cancel(id RunID) bool
	IsInLoopThread() bool
}
