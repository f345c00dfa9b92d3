// Count available host CPUs

//go:build !linux

package kernsim_internal

import (
	"runtime"
)

func GetAvailableCPUCount() int {
	return runtime.NumCPU()
}
