// Preemption gate.

// A process wide counter, > 0 meaning preemption disabled. On a single CPU
// disabling preemption is equivalent to masking the timer interrupt for the
// duration of a critical section, which is why the scheduler needs no locks
// around its structures: every multi-step mutation is wrapped in a
// disable/enable pair.
//
// The counter starts at 1: preemption stays disabled for the whole boot
// sequence and the boot code enables it once initialization is complete.

package kernsim_internal

import (
	"sync/atomic"
)

type preemptionGate struct {
	disableCount atomic.Int32
}

func (g *preemptionGate) init() {
	g.disableCount.Store(1)
}

func (g *preemptionGate) disable() {
	g.disableCount.Add(1)
}

func (g *preemptionGate) enable() {
	count := g.disableCount.Add(-1)
	kernAssert(count >= 0, "preemption enabled more times than disabled")
}

func (g *preemptionGate) enabled() bool {
	return g.disableCount.Load() == 0
}

func (k *Kernel) DisablePreemption() {
	k.preemption.disable()
}

func (k *Kernel) EnablePreemption() {
	k.preemption.enable()
}

func (k *Kernel) IsPreemptionEnabled() bool {
	return k.preemption.enabled()
}
