// Architecture layer contract and its simulated implementation.

package kernsim_internal

import (
	"sync/atomic"

	"github.com/docker/go-units"
)

const (
	// Sentinel passed as currIrq when the scheduler is entered from outside
	// interrupt context.
	NoIrq = -1

	// The timer IRQ line of the simulated interrupt controller.
	TimerIrq = 0
)

// Arch is the contract the scheduler core has with the architecture
// specific code: register save/restore, the halt instruction and the page
// tables are black boxes behind it.
type Arch interface {
	// NewTaskSetup prepares the architecture side of a task record (saved
	// register area, kernel stack). It returns false if the setup cannot be
	// performed.
	NewTaskSetup(ti *TaskInfo, parent *TaskInfo) bool

	// ContextSwitch resumes next. currIrq >= 0 means the switch happens
	// from the interrupt handler for that IRQ and the interrupt controller
	// must be acknowledged before resuming. On real hardware the call does
	// not return along the calling stack: the caller's context is saved
	// into the previous task and resumed later as if the call had
	// returned. The simulated implementation records the switch and does
	// return; the machine loop models the resumption.
	ContextSwitch(next *TaskInfo, currIrq int)

	// Halt idles the CPU until the next interrupt.
	Halt()

	// KernelPdir returns the kernel page directory handle.
	KernelPdir() PageDir
}

var archLog = NewCompLogger("arch")

const SIM_ARCH_KERNEL_STACK_SIZE_DEFAULT = 16 * 1024

// SimArch is the simulated single CPU architecture used by the tests and by
// the demo machine. It keeps an account of the context switches and IRQ
// acknowledgements it was asked to perform.
type SimArch struct {
	// Kernel stack size "allocated" per task.
	KernelStackSize int64

	contextSwitchCount atomic.Uint64
	irqAckCount        atomic.Uint64
	haltCount          atomic.Uint64
	stackBytesReserved atomic.Int64

	// The last context switch target, for tests.
	lastSwitchedTo atomic.Pointer[TaskInfo]

	kernelPdir PageDir
}

type simPageDir struct {
	name string
}

func NewSimArch(kernelStackSize int64) *SimArch {
	if kernelStackSize <= 0 {
		kernelStackSize = SIM_ARCH_KERNEL_STACK_SIZE_DEFAULT
	}
	arch := &SimArch{
		KernelStackSize: kernelStackSize,
		kernelPdir:      &simPageDir{name: "kernel"},
	}
	archLog.Debugf("kernel stack size: %s", units.BytesSize(float64(kernelStackSize)))
	return arch
}

func (arch *SimArch) NewTaskSetup(ti *TaskInfo, parent *TaskInfo) bool {
	arch.stackBytesReserved.Add(arch.KernelStackSize)
	return true
}

func (arch *SimArch) ContextSwitch(next *TaskInfo, currIrq int) {
	arch.contextSwitchCount.Add(1)
	arch.lastSwitchedTo.Store(next)
	if currIrq >= 0 {
		arch.irqAckCount.Add(1)
	}
}

func (arch *SimArch) Halt() {
	arch.haltCount.Add(1)
}

func (arch *SimArch) KernelPdir() PageDir {
	return arch.kernelPdir
}

func (arch *SimArch) ContextSwitchCount() uint64 {
	return arch.contextSwitchCount.Load()
}

func (arch *SimArch) IrqAckCount() uint64 {
	return arch.irqAckCount.Load()
}

func (arch *SimArch) HaltCount() uint64 {
	return arch.haltCount.Load()
}

func (arch *SimArch) LastSwitchedTo() *TaskInfo {
	return arch.lastSwitchedTo.Load()
}

func (arch *SimArch) StackBytesReserved() int64 {
	return arch.stackBytesReserved.Load()
}
