// Task and process records.

package kernsim_internal

import (
	"sync/atomic"
)

type TaskState int32

const (
	TaskStateInvalid TaskState = iota
	TaskStateRunnable
	TaskStateRunning
	TaskStateSleeping
	TaskStateZombie
)

var taskStateMap = map[TaskState]string{
	TaskStateInvalid:  "invalid",
	TaskStateRunnable: "runnable",
	TaskStateRunning:  "running",
	TaskStateSleeping: "sleeping",
	TaskStateZombie:   "zombie",
}

func (state TaskState) String() string {
	if name, ok := taskStateMap[state]; ok {
		return name
	}
	return "unknown"
}

// A wait object is what a sleeping task is blocked on, e.g. a tick timer.
// The scheduler stores it on the task record but never interprets it beyond
// logging its name.
type WaitObj interface {
	WaitObjName() string
}

// An opaque page directory handle, produced and consumed by the
// architecture layer only.
type PageDir interface{}

// The body of a kernel thread. The machine invokes it once per tick while
// the thread is the running task; it returns false when the thread is done.
// See Machine.
type KthreadBody func(ti *TaskInfo) bool

// TaskInfo is the per-task record: one schedulable execution context,
// either a kernel thread or a user-space thread.
//
// The state field is read atomically from interrupt context; all writes
// happen with preemption disabled. The embedded nodes link the record into
// the task index, into at most one state list at a time and into the owning
// process' thread list.
type TaskInfo struct {
	// Unique task id. Id 0 is reserved for the kernel bootstrap task.
	Tid int
	// Process id: for the main thread of a process Pid == Tid, for
	// additional threads it is the main thread's tid.
	Pid int

	state atomic.Int32

	// Ticks consumed in the current scheduling quantum; reset to 0 every
	// time the task is selected to run.
	TimeSlotTicks int
	// Ticks ever consumed, the scheduling key.
	TotalTicks uint64
	// Subset of TotalTicks consumed while executing kernel code.
	TotalKernelTicks uint64

	// Whether the task is currently executing in kernel mode.
	RunningInKernel bool

	// The owning process record, shared by all threads of the process.
	PI *ProcessInfo

	// What the task is blocked on while sleeping, nil otherwise.
	WObj WaitObj

	// Human readable tag, used in logging only.
	Name string

	// The thread body, nil for the bootstrap task and for externally
	// managed tasks.
	Body KthreadBody

	treeByTidNode BintreeNode
	runnableNode  ListNode[*TaskInfo]
	sleepingNode  ListNode[*TaskInfo]
	zombieNode    ListNode[*TaskInfo]
	siblingNode   ListNode[*TaskInfo]
}

// ProcessInfo is the ownership group of tasks sharing an address space and
// resources. It is destroyed when its reference count drops to zero.
type ProcessInfo struct {
	Pid       int
	ParentPid int

	refCount int32

	// Current working directory.
	Cwd string

	// Controlling terminal, opaque to the scheduler.
	procTty any

	// Page directory handle, owned by the architecture layer.
	Pdir PageDir

	// Threads of this process and child processes.
	threadsList  List[*TaskInfo]
	childrenList List[*ProcessInfo]
	siblingNode  ListNode[*ProcessInfo]
}

func (ti *TaskInfo) State() TaskState {
	return TaskState(ti.state.Load())
}

func (ti *TaskInfo) setState(state TaskState) {
	ti.state.Store(int32(state))
}

func (ti *TaskInfo) IsMainThread() bool {
	return ti.Tid == ti.Pid
}

func (ti *TaskInfo) Process() *ProcessInfo {
	if ti == nil {
		return nil
	}
	return ti.PI
}

// reset clears a record before it goes back to the pool. The state cell is
// cleared in place, it must not be copied.
func (ti *TaskInfo) reset() {
	ti.Tid = 0
	ti.Pid = 0
	ti.setState(TaskStateInvalid)
	ti.TimeSlotTicks = 0
	ti.TotalTicks = 0
	ti.TotalKernelTicks = 0
	ti.RunningInKernel = false
	ti.PI = nil
	ti.WObj = nil
	ti.Name = ""
	ti.Body = nil
	ti.treeByTidNode = BintreeNode{}
	ti.runnableNode = ListNode[*TaskInfo]{}
	ti.sleepingNode = ListNode[*TaskInfo]{}
	ti.zombieNode = ListNode[*TaskInfo]{}
	ti.siblingNode = ListNode[*TaskInfo]{}
}

func (ti *TaskInfo) initTaskLists() {
	ti.runnableNode.SetOwner(ti)
	ti.sleepingNode.SetOwner(ti)
	ti.zombieNode.SetOwner(ti)
	ti.siblingNode.SetOwner(ti)
}

func (pi *ProcessInfo) initProcessLists() {
	pi.threadsList.Init()
	pi.childrenList.Init()
	pi.siblingNode.SetOwner(pi)
}

func (pi *ProcessInfo) SetTty(tty any) {
	pi.procTty = tty
}

func (pi *ProcessInfo) Tty() any {
	return pi.procTty
}

func (pi *ProcessInfo) RefCount() int {
	return int(pi.refCount)
}

// retain/release manage the process lifetime; both are called with
// preemption disabled.
func (pi *ProcessInfo) retain() {
	pi.refCount++
}

func (pi *ProcessInfo) release() bool {
	kernAssert(pi.refCount > 0, "process %d released with refCount=%d", pi.Pid, pi.refCount)
	pi.refCount--
	if pi.refCount > 0 {
		return false
	}
	kernAssert(pi.threadsList.Empty(), "process %d destroyed with live threads", pi.Pid)
	if pi.siblingNode.Linked() {
		pi.siblingNode.Remove()
	}
	return true
}
