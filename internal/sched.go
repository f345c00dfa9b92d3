// Task scheduler core.

//  Data Model
//  ==========
//
// Every task in the system is held in two kinds of structures at once:
//
//  - the task index, a binary search tree keyed by tid, used for lookup and
//    for the ascending traversal the pid allocator depends on;
//  - at most one of three state lists (runnable, sleeping, zombie),
//    according to the task's lifecycle state. The running task is in no
//    list: there is a single CPU, so the current task pointer is its sole
//    identifier. Tasklet runner tasks are managed by the deferred work
//    subsystem and skip the state lists entirely.
//
// Both kinds of links are embedded in the task record (see task.go), so
// moving a task between states is a couple of pointer updates.
//
//  Concurrency
//  ===========
//
// Single CPU, preemptive kernel: the only concurrency is the timer
// interrupt preempting kernel code. Structural mutations of the index and
// the lists happen only with preemption disabled, which keeps them atomic
// with respect to the interrupt. Only two cells need real atomic access,
// the current task pointer and each task's state, because the timer
// interrupt reads them without entering a critical section.
//
//  Policy
//  ======
//
// A ready high priority tasklet runner always wins. Otherwise the runnable
// task with the smallest total tick count runs next, approximating fair CPU
// time; the quantum (time slot) bounds how long it may keep the CPU before
// the timer interrupt reconsiders.

package kernsim_internal

import (
	"sync/atomic"
)

const (
	SCHEDULER_CONFIG_TIME_SLOT_TICKS_DEFAULT = 5
)

type SchedulerConfig struct {
	// The scheduling quantum, in timer ticks:
	TimeSlotTicks int `yaml:"time_slot_ticks"`
	// The highest allocatable process id:
	MaxPid int `yaml:"max_pid"`
}

func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		TimeSlotTicks: SCHEDULER_CONFIG_TIME_SLOT_TICKS_DEFAULT,
		MaxPid:        SCHEDULER_CONFIG_MAX_PID_DEFAULT,
	}
}

var schedLog = NewCompLogger("sched")

// Kernel is the scheduler core: the current task pointer, the task index,
// the state lists, the preemption gate and the pid high-water mark,
// packaged as one value owned by whoever boots the kernel.
type Kernel struct {
	current    atomic.Pointer[TaskInfo]
	preemption preemptionGate

	runnableTasksList  List[*TaskInfo]
	sleepingTasksList  List[*TaskInfo]
	zombieTasksList    List[*TaskInfo]
	runnableTasksCount atomic.Int32

	treeByTidRoot *TaskInfo

	currentMaxPid int
	maxPid        int
	timeSlotTicks int

	idleTicks atomic.Uint64
	idleTask  *TaskInfo

	kernelProcess   *TaskInfo
	kernelProcessPI *ProcessInfo

	arch     Arch
	tasklets TaskletSubsystem
	taskPool *TaskInfoPool
	stats    *schedStatsContainer
}

func NewKernel(schedulerCfg *SchedulerConfig, arch Arch) *Kernel {
	if schedulerCfg == nil {
		schedulerCfg = DefaultSchedulerConfig()
	}
	kernAssert(arch != nil, "kernel created without an architecture layer")

	timeSlotTicks := schedulerCfg.TimeSlotTicks
	if timeSlotTicks <= 0 {
		timeSlotTicks = SCHEDULER_CONFIG_TIME_SLOT_TICKS_DEFAULT
	}
	maxPid := schedulerCfg.MaxPid
	if maxPid <= 0 {
		maxPid = SCHEDULER_CONFIG_MAX_PID_DEFAULT
	}

	k := &Kernel{
		currentMaxPid: -1,
		maxPid:        maxPid,
		timeSlotTicks: timeSlotTicks,
		arch:          arch,
		tasklets:      noTasklets{},
		taskPool:      NewTaskInfoPool(TASK_INFO_POOL_MAX_SIZE_DEFAULT),
		stats:         newSchedStatsContainer(),
	}
	k.preemption.init()
	schedLog.Infof("time_slot_ticks=%d, max_pid=%d", timeSlotTicks, maxPid)
	return k
}

func (k *Kernel) GetCurrTask() *TaskInfo {
	return k.current.Load()
}

func (k *Kernel) GetCurrTaskTid() int {
	if curr := k.current.Load(); curr != nil {
		return curr.Tid
	}
	return 0
}

func (k *Kernel) TimeSlotTicks() int {
	return k.timeSlotTicks
}

func (k *Kernel) MaxPid() int {
	return k.maxPid
}

func (k *Kernel) IdleTask() *TaskInfo {
	return k.idleTask
}

func (k *Kernel) IdleTicks() uint64 {
	return k.idleTicks.Load()
}

func (k *Kernel) RunnableTasksCount() int {
	return int(k.runnableTasksCount.Load())
}

// IterateOverTasks visits every task in ascending tid order until visit
// returns true. Preemption must be disabled by the caller.
func (k *Kernel) IterateOverTasks(visit func(ti *TaskInfo) bool) bool {
	kernAssert(!k.IsPreemptionEnabled(), "IterateOverTasks with preemption enabled")
	return bintreeInOrderVisit(k.treeByTidRoot, visit)
}

func (k *Kernel) GetTask(tid int) *TaskInfo {
	k.DisablePreemption()
	defer k.EnablePreemption()
	return bintreeFind(k.treeByTidRoot, tid)
}

func (k *Kernel) taskAddToStateList(ti *TaskInfo) {
	if k.tasklets.IsTaskletRunner(ti) {
		return
	}

	switch ti.State() {

	case TaskStateRunnable:
		k.runnableTasksList.AddTail(&ti.runnableNode)
		k.runnableTasksCount.Add(1)

	case TaskStateSleeping:
		k.sleepingTasksList.AddTail(&ti.sleepingNode)

	case TaskStateRunning:
		// No dedicated list: without SMP there is only one running task.

	case TaskStateZombie:
		k.zombieTasksList.AddTail(&ti.zombieNode)

	default:
		kernPanic("task %d in state %q cannot be listed", ti.Tid, ti.State())
	}
}

func (k *Kernel) taskRemoveFromStateList(ti *TaskInfo) {
	if k.tasklets.IsTaskletRunner(ti) {
		return
	}

	switch ti.State() {

	case TaskStateRunnable:
		ti.runnableNode.Remove()
		count := k.runnableTasksCount.Add(-1)
		kernAssert(count >= 0, "runnable tasks count went negative")

	case TaskStateSleeping:
		ti.sleepingNode.Remove()

	case TaskStateRunning:

	case TaskStateZombie:
		ti.zombieNode.Remove()

	default:
		kernPanic("task %d in state %q cannot be unlisted", ti.Tid, ti.State())
	}
}

// TaskChangeState moves ti to newState: remove from the old state list,
// update the state field, add to the new state list, in that order and
// under the preemption gate, so the timer interrupt never observes an
// inconsistent record. Zombies are entered through the exit path, never
// through a state change.
func (k *Kernel) TaskChangeState(ti *TaskInfo, newState TaskState) {
	kernAssert(ti.State() != newState, "task %d already in state %q", ti.Tid, newState)
	kernAssert(ti.State() != TaskStateZombie, "task %d is a zombie", ti.Tid)
	kernAssert(newState != TaskStateZombie, "task %d cannot become zombie via state change", ti.Tid)

	k.DisablePreemption()
	k.taskRemoveFromStateList(ti)
	ti.setState(newState)
	k.taskAddToStateList(ti)
	k.EnablePreemption()
}

// AddTask inserts ti into its state list and into the task index.
func (k *Kernel) AddTask(ti *TaskInfo) {
	k.DisablePreemption()
	k.taskAddToStateList(ti)
	inserted := bintreeInsert(&k.treeByTidRoot, ti)
	kernAssert(inserted, "task id %d already in use", ti.Tid)
	k.EnablePreemption()
}

// RemoveTask takes a zombie task out of the scheduler and releases its
// record.
func (k *Kernel) RemoveTask(ti *TaskInfo) {
	k.DisablePreemption()

	kernAssert(ti.State() == TaskStateZombie, "removing task %d in state %q", ti.Tid, ti.State())
	kernAssert(ti != k.GetCurrTask(), "removing the current task %d", ti.Tid)

	k.taskRemoveFromStateList(ti)
	removed := bintreeRemove(&k.treeByTidRoot, ti)
	kernAssert(removed, "task %d not in the task index", ti.Tid)

	k.freeTask(ti)
	k.EnablePreemption()
}

// AccountTicks is the timer interrupt hook: charge the elapsed tick to the
// current task.
func (k *Kernel) AccountTicks() {
	curr := k.GetCurrTask()
	kernAssert(curr != nil, "tick with no current task")

	curr.TimeSlotTicks++
	curr.TotalTicks++

	if curr.RunningInKernel {
		curr.TotalKernelTicks++
	}
	k.stats.bump(SCHED_STATS_TICK_COUNT)
}

// NeedReschedule is the cheap predicate the timer interrupt uses to decide
// whether to enter the scheduler at all.
func (k *Kernel) NeedReschedule() bool {
	curr := k.GetCurrTask()
	kernAssert(curr != nil, "NeedReschedule with no current task")

	if taskletRunner := k.tasklets.HiPrioReadyRunner(); taskletRunner != nil {
		return taskletRunner != curr
	}

	if curr.TimeSlotTicks < k.timeSlotTicks && curr.State() == TaskStateRunning {
		return false
	}

	return true
}

// switchToTask hands the CPU to ti. On real hardware the context switch
// primitive does not return along this stack; with the simulated
// architecture it does, and the caller is expected to return immediately.
func (k *Kernel) switchToTask(ti *TaskInfo, currIrq int) {
	kernAssert(!k.IsPreemptionEnabled(), "context switch with preemption enabled")
	kernAssert(ti.State() != TaskStateZombie, "switching to zombie task %d", ti.Tid)

	if curr := k.GetCurrTask(); curr != nil && curr != ti && curr.State() == TaskStateRunning {
		k.TaskChangeState(curr, TaskStateRunnable)
	}
	if ti.State() != TaskStateRunning {
		k.TaskChangeState(ti, TaskStateRunning)
	}
	ti.TimeSlotTicks = 0
	k.current.Store(ti)

	k.stats.bump(SCHED_STATS_CONTEXT_SWITCH_COUNT)
	k.arch.ContextSwitch(ti, currIrq)
}

func (k *Kernel) ScheduleOutsideInterruptContext() {
	k.Schedule(NoIrq)
}

// SwitchToIdleTask forces an immediate switch to the idle task from the
// timer interrupt path. It does not return on real hardware.
func (k *Kernel) SwitchToIdleTask() {
	k.switchToTask(k.idleTask, TimerIrq)
}

func (k *Kernel) SwitchToIdleTaskOutsideInterruptContext() {
	k.switchToTask(k.idleTask, NoIrq)
}

// Schedule selects the next task to run and performs a context switch if
// needed. Preemption must be disabled on entry and stays disabled across
// the switch; the routine entering from outside interrupt context is
// responsible for that (see KernelYield).
func (k *Kernel) Schedule(currIrq int) {
	kernAssert(!k.IsPreemptionEnabled(), "Schedule with preemption enabled")

	curr := k.GetCurrTask()
	kernAssert(curr != nil, "Schedule with no current task")

	selected := k.tasklets.HiPrioReadyRunner()

	if selected == curr {
		// The ready runner already has the CPU; by design its quantum is
		// not checked, tasklet runners are cooperative.
		return
	}

	// If the current task was merely preempted, it is still runnable.
	if curr.State() == TaskStateRunning {
		k.TaskChangeState(curr, TaskStateRunnable)
		k.stats.bump(SCHED_STATS_PREEMPTION_COUNT)
	}

	if selected != nil {
		// Tasklet runners bypass the selection below.
		k.stats.bump(SCHED_STATS_TASKLET_SWITCH_COUNT)
		k.switchToTask(selected, currIrq)
		return
	}

	k.runnableTasksList.ForEach(func(pos *TaskInfo) bool {
		kernAssert(pos.State() == TaskStateRunnable,
			"task %d on the runnable list in state %q", pos.Tid, pos.State())

		if pos == k.idleTask || pos == curr {
			return false
		}
		// Ties broken by list order: first encountered wins.
		if selected == nil || pos.TotalTicks < selected.TotalTicks {
			selected = pos
		}
		return false
	})

	if selected == nil {

		if curr.State() == TaskStateRunnable {
			// Nobody better: keep the current task on the CPU with a fresh
			// time slot, no context switch needed.
			selected = curr
			k.TaskChangeState(selected, TaskStateRunning)
			selected.TimeSlotTicks = 0
			k.stats.bump(SCHED_STATS_KEEP_CURRENT_COUNT)
			return
		}

		selected = k.idleTask
		k.stats.bump(SCHED_STATS_IDLE_SWITCH_COUNT)
	}

	k.switchToTask(selected, currIrq)
}

// KernelYield gives up the CPU voluntarily from outside interrupt context.
func (k *Kernel) KernelYield() {
	k.DisablePreemption()
	k.ScheduleOutsideInterruptContext()
	// With the simulated architecture the switch returns here once the
	// task is resumed; re-balance the gate.
	k.EnablePreemption()
}

// SetCurrentTaskInKernel / SetCurrentTaskInUser track the execution mode of
// the current task for tick accounting.
func (k *Kernel) SetCurrentTaskInKernel() {
	kernAssert(!k.IsPreemptionEnabled(), "mode flip with preemption enabled")
	k.GetCurrTask().RunningInKernel = true
}

func (k *Kernel) SetCurrentTaskInUser() {
	kernAssert(!k.IsPreemptionEnabled(), "mode flip with preemption enabled")
	k.GetCurrTask().RunningInKernel = false
}

func (k *Kernel) idleBody(ti *TaskInfo) bool {
	kernAssert(k.IsPreemptionEnabled(), "idle loop with preemption disabled")

	k.idleTicks.Add(1)
	k.arch.Halt()

	if k.runnableTasksCount.Load() > 0 {
		k.KernelYield()
	}
	return true
}

// CreateKernelProcess builds the bootstrap task (tid 0) and its process
// record and makes it the current task. Called once, early in boot, with
// preemption still disabled.
func (k *Kernel) CreateKernelProcess() {
	k.runnableTasksList.Init()
	k.sleepingTasksList.Init()
	k.zombieTasksList.Init()

	pid := k.CreateNewPid()
	if pid != 0 {
		kernPanic("bootstrap pid is %d, not 0", pid)
	}

	kernelTi := &TaskInfo{Tid: 0, Pid: 0, Name: "kernel"}
	kernelPi := &ProcessInfo{Pid: 0, ParentPid: 0}

	kernelPi.refCount = 1
	kernelTi.PI = kernelPi
	kernelTi.initTaskLists()
	kernelPi.initProcessLists()
	kernelPi.threadsList.AddTail(&kernelTi.siblingNode)

	if !k.arch.NewTaskSetup(kernelTi, nil) {
		kernPanic("bootstrap task setup failed")
	}

	kernelTi.RunningInKernel = true
	kernelPi.Cwd = "/"

	kernelTi.setState(TaskStateSleeping)

	k.kernelProcess = kernelTi
	k.kernelProcessPI = kernelPi

	k.AddTask(kernelTi)
	k.current.Store(kernelTi)

	schedLog.Info("kernel process created")
}

func (k *Kernel) KernelProcess() *TaskInfo {
	return k.kernelProcess
}

// InitSched completes scheduler initialization: give the kernel process its
// page directory and create the idle task. Boot cannot continue if the
// latter fails.
func (k *Kernel) InitSched() {
	kernAssert(k.kernelProcess != nil, "InitSched before CreateKernelProcess")

	k.kernelProcess.PI.Pdir = k.arch.KernelPdir()

	idleTask, err := k.KthreadCreate("idle", k.idleBody)
	if idleTask == nil {
		kernPanic("unable to create the idle task: %v", err)
	}
	k.idleTask = idleTask

	schedLog.Info("scheduler initialized")
}
