// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package concurrency provides the thread pool that runs blocking backend
// work off the loop thread and posts completions back with RunInLoop.
package concurrency
