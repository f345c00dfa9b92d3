// Kernel invariant checks.

// An invariant violation inside the scheduler is a programming error, not a
// runtime condition; it cannot be surfaced to a caller. On real hardware the
// kernel would panic, here the Go panic serves the same purpose.

package kernsim_internal

import (
	"fmt"
)

func kernAssert(cond bool, format string, args ...any) {
	if !cond {
		kernPanic(format, args...)
	}
}

func kernPanic(format string, args ...any) {
	panic(fmt.Sprintf("kernel panic: "+format, args...))
}
