// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-ev/api"
)

var (
	// ErrExecutorClosed indicates the pool has been cleaned up
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrInvalidWorkerCount indicates invalid worker count configuration
	ErrInvalidWorkerCount = fmt.Errorf("invalid worker count: %w", api.ErrInvalidArgument)

	// ErrNilTask indicates a nil backend function
	ErrNilTask = fmt.Errorf("nil task: %w", api.ErrInvalidArgument)

	// ErrAlreadyInitialized indicates Initialize without a Cleanup in between
	ErrAlreadyInitialized = fmt.Errorf("thread pool already initialized: %w", api.ErrAlreadyExists)

	// ErrNotInitialized indicates use before Initialize
	ErrNotInitialized = fmt.Errorf("thread pool: %w", api.ErrNotInitialized)
)
