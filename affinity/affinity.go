// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// CPU affinity for loop threads and pool workers. Callers must hold the OS
// thread (runtime.LockOSThread) for the pinning to stick to their goroutine.

package affinity

import (
	"fmt"

	"github.com/momentics/hioload-ev/api"
)

// MaxCPU bounds the CPU ids accepted by SetAffinity (the kernel cpu_set_t size).
const MaxCPU = 1024

// SetAffinity pins the current OS thread to a given logical CPU.
// On unsupported platforms returns an error wrapping api.ErrNotSupported.
func SetAffinity(cpuID int) error {
	if cpuID < 0 || cpuID >= MaxCPU {
		return fmt.Errorf("affinity: cpu %d out of range: %w", cpuID, api.ErrInvalidArgument)
	}
	return setAffinityPlatform(cpuID)
}

// Current returns the CPUs the calling thread may run on.
func Current() ([]int, error) {
	return currentPlatform()
}
