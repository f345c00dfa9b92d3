// Deferred work (tasklet) subsystem contract.

// The tasklet subsystem itself lives outside the scheduler core; the
// scheduler only ever asks it two questions: is there a ready high priority
// runner, and is a given task one of the runners. Tasklet runner tasks are
// deliberately absent from the state lists, the deferred work subsystem
// manages them on its own.

package kernsim_internal

type TaskletSubsystem interface {
	// HiPrioReadyRunner returns the highest priority tasklet runner task
	// with pending work, or nil if there is none.
	HiPrioReadyRunner() *TaskInfo

	// IsTaskletRunner reports whether ti is one of the tasklet runner
	// tasks.
	IsTaskletRunner(ti *TaskInfo) bool
}

// noTasklets is the default for kernels built without deferred work
// support.
type noTasklets struct{}

func (noTasklets) HiPrioReadyRunner() *TaskInfo      { return nil }
func (noTasklets) IsTaskletRunner(ti *TaskInfo) bool { return false }

// SetTaskletSubsystem registers the deferred work subsystem; it may be
// called during boot only, before preemption is first enabled.
func (k *Kernel) SetTaskletSubsystem(tasklets TaskletSubsystem) {
	kernAssert(!k.IsPreemptionEnabled(), "tasklet subsystem registered after boot")
	if tasklets == nil {
		tasklets = noTasklets{}
	}
	k.tasklets = tasklets
}
