// Kernel thread factory, exit path and the wait object protocol.

package kernsim_internal

import (
	"fmt"
)

var kthreadLog = NewCompLogger("kthread")

// ErrNoPidAvailable is returned when both the monotonic region and the
// holes below it are exhausted.
var ErrNoPidAvailable = fmt.Errorf("no process id available")

// KthreadCreate spawns a kernel thread. Kernel threads share the bootstrap
// process record but each one is registered as a main thread for id
// purposes, so the pid allocator keeps their ids unique among processes.
// The new thread starts runnable; it gets the CPU whenever the scheduler
// selects it.
func (k *Kernel) KthreadCreate(name string, body KthreadBody) (*TaskInfo, error) {
	kernAssert(k.kernelProcessPI != nil, "kthread %q created before the kernel process", name)

	k.DisablePreemption()
	defer k.EnablePreemption()

	tid := k.CreateNewPid()
	if tid < 0 {
		return nil, ErrNoPidAvailable
	}

	ti := k.taskPool.Get()
	ti.Tid = tid
	ti.Pid = tid
	ti.Name = name
	ti.Body = body
	ti.PI = k.kernelProcessPI
	ti.RunningInKernel = true
	ti.initTaskLists()
	ti.setState(TaskStateRunnable)

	if !k.arch.NewTaskSetup(ti, k.kernelProcess) {
		k.taskPool.Put(ti)
		return nil, fmt.Errorf("kthread %q: task setup failed", name)
	}

	k.kernelProcessPI.retain()
	k.kernelProcessPI.threadsList.AddTail(&ti.siblingNode)

	k.AddTask(ti)
	kthreadLog.Debugf("kthread %q created, tid=%d", name, tid)
	return ti, nil
}

// TaskExit turns ti into a zombie: off its state list, onto the zombie
// list, ready to be reaped with RemoveTask. If ti is the current task the
// caller must enter the scheduler right after; the exited task can never be
// selected again.
func (k *Kernel) TaskExit(ti *TaskInfo) {
	kernAssert(ti.State() != TaskStateZombie, "task %d exited twice", ti.Tid)
	kernAssert(ti != k.idleTask, "the idle task cannot exit")

	k.DisablePreemption()
	k.taskRemoveFromStateList(ti)
	ti.setState(TaskStateZombie)
	ti.WObj = nil
	k.taskAddToStateList(ti)
	k.EnablePreemption()

	kthreadLog.Debugf("task %d (%s) exited", ti.Tid, ti.Name)
}

// SleepOn blocks the current task on wobj. The caller (a blocking
// primitive) enters the scheduler right after; the task will not be
// selected again until something wakes it up.
func (k *Kernel) SleepOn(wobj WaitObj) {
	curr := k.GetCurrTask()
	kernAssert(curr != nil, "SleepOn with no current task")
	kernAssert(wobj != nil, "task %d sleeping on nothing", curr.Tid)

	k.DisablePreemption()
	curr.WObj = wobj
	k.EnablePreemption()
	k.TaskChangeState(curr, TaskStateSleeping)
}

// WakeUp makes a sleeping task runnable again, clearing its wait object.
func (k *Kernel) WakeUp(ti *TaskInfo) {
	kernAssert(ti.State() == TaskStateSleeping, "waking task %d in state %q", ti.Tid, ti.State())

	k.DisablePreemption()
	ti.WObj = nil
	k.EnablePreemption()
	k.TaskChangeState(ti, TaskStateRunnable)
}

// freeTask releases a reaped task record: unlink it from the owning
// process, drop the process reference and return the record to the pool.
// Called with preemption disabled from RemoveTask.
func (k *Kernel) freeTask(ti *TaskInfo) {
	if ti.siblingNode.Linked() {
		ti.siblingNode.Remove()
	}
	if pi := ti.PI; pi != nil {
		if pi.release() {
			kthreadLog.Debugf("process %d destroyed", pi.Pid)
		}
	}
	k.taskPool.Put(ti)
}
