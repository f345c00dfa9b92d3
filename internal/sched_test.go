// Tests for sched.go

package kernsim_internal

import (
	"testing"

	kernsim_testutils "github.com/bgp59/kernsim/testutils"
)

type testTaskletSubsystem struct {
	runners map[*TaskInfo]bool
	ready   *TaskInfo
}

func newTestTaskletSubsystem() *testTaskletSubsystem {
	return &testTaskletSubsystem{
		runners: make(map[*TaskInfo]bool),
	}
}

func (ts *testTaskletSubsystem) HiPrioReadyRunner() *TaskInfo {
	return ts.ready
}

func (ts *testTaskletSubsystem) IsTaskletRunner(ti *TaskInfo) bool {
	return ts.runners[ti]
}

type testWaitObj struct {
	name string
}

func (w *testWaitObj) WaitObjName() string {
	return w.name
}

// Boot a kernel all the way through InitSched; preemption stays disabled,
// as during the real boot sequence.
func newTestKernelWithIdle(t *testing.T, schedulerCfg *SchedulerConfig) (*Kernel, *SimArch) {
	arch := NewSimArch(0)
	k := NewKernel(schedulerCfg, arch)
	k.CreateKernelProcess()
	k.InitSched()
	return k, arch
}

func testTaskInList(l *List[*TaskInfo], ti *TaskInfo) bool {
	found := false
	l.ForEach(func(pos *TaskInfo) bool {
		if pos == ti {
			found = true
			return true
		}
		return false
	})
	return found
}

// Verify that every task in the index sits in the state list matching its
// state, except for tasklet runners, and that the runnable count mirrors
// the runnable list length.
func testCheckStateListConsistency(t *testing.T, k *Kernel) {
	t.Helper()
	k.IterateOverTasks(func(ti *TaskInfo) bool {
		isRunner := k.tasklets.IsTaskletRunner(ti)
		inList := map[TaskState]bool{
			TaskStateRunnable: testTaskInList(&k.runnableTasksList, ti),
			TaskStateSleeping: testTaskInList(&k.sleepingTasksList, ti),
			TaskStateZombie:   testTaskInList(&k.zombieTasksList, ti),
		}
		for state, in := range inList {
			wantIn := !isRunner && ti.State() == state
			if in != wantIn {
				t.Fatalf(
					"task %d (%s) state %q: in %q list: want %v, got %v",
					ti.Tid, ti.Name, ti.State(), state, wantIn, in,
				)
			}
		}
		return false
	})
	if want, got := k.runnableTasksList.Len(), k.RunnableTasksCount(); want != got {
		t.Fatalf("runnable count: list has %d, counter says %d", want, got)
	}
}

func TestBootstrap(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	k := newTestKernel(t, nil)
	ti := k.KernelProcess()

	if ti == nil {
		t.Fatal("no kernel process after boot")
	}
	if ti.Tid != 0 || ti.Pid != 0 {
		t.Fatalf("bootstrap ids: want 0/0, got %d/%d", ti.Tid, ti.Pid)
	}
	if got := ti.State(); got != TaskStateSleeping {
		t.Fatalf("bootstrap state: want %q, got %q", TaskStateSleeping, got)
	}
	if !ti.RunningInKernel {
		t.Fatal("bootstrap task not in kernel mode")
	}
	if got := ti.PI.Cwd; got != "/" {
		t.Fatalf("bootstrap cwd: want %q, got %q", "/", got)
	}
	if got := ti.PI.ParentPid; got != 0 {
		t.Fatalf("bootstrap parent pid: want 0, got %d", got)
	}
	if k.GetCurrTask() != ti {
		t.Fatal("bootstrap task is not the current task")
	}
	if k.GetCurrTaskTid() != 0 {
		t.Fatalf("current tid: want 0, got %d", k.GetCurrTaskTid())
	}
	if !testTaskInList(&k.sleepingTasksList, ti) {
		t.Fatal("bootstrap task not on the sleeping list")
	}
	if k.GetTask(0) != ti {
		t.Fatal("bootstrap task not in the task index")
	}
	testCheckStateListConsistency(t, k)
}

func TestInitSched(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	k, _ := newTestKernelWithIdle(t, nil)

	idleTask := k.IdleTask()
	if idleTask == nil {
		t.Fatal("no idle task after InitSched")
	}
	if got := idleTask.State(); got != TaskStateRunnable {
		t.Fatalf("idle task state: want %q, got %q", TaskStateRunnable, got)
	}
	if k.KernelProcess().PI.Pdir == nil {
		t.Fatal("kernel process has no page directory")
	}
	testCheckStateListConsistency(t, k)
}

func TestTaskChangeState(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	k := newTestKernel(t, nil)
	ti := testNewTask(7, 7, TaskStateRunnable)
	k.AddTask(ti)

	if want, got := 1, k.RunnableTasksCount(); want != got {
		t.Fatalf("runnable count: want %d, got %d", want, got)
	}

	k.TaskChangeState(ti, TaskStateSleeping)
	if got := ti.State(); got != TaskStateSleeping {
		t.Fatalf("state: want %q, got %q", TaskStateSleeping, got)
	}
	if want, got := 0, k.RunnableTasksCount(); want != got {
		t.Fatalf("runnable count: want %d, got %d", want, got)
	}
	testCheckStateListConsistency(t, k)

	k.TaskChangeState(ti, TaskStateRunnable)
	if want, got := 1, k.RunnableTasksCount(); want != got {
		t.Fatalf("runnable count: want %d, got %d", want, got)
	}
	testCheckStateListConsistency(t, k)
}

func TestTaskChangeStateToZombiePanics(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on state change to zombie")
		}
	}()
	k := newTestKernel(t, nil)
	ti := testNewTask(7, 7, TaskStateRunnable)
	k.AddTask(ti)
	k.TaskChangeState(ti, TaskStateZombie)
}

func TestAddRemoveTask(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	k := newTestKernel(t, nil)
	ti := testNewTask(3, 3, TaskStateRunnable)
	k.AddTask(ti)

	if k.GetTask(3) != ti {
		t.Fatal("added task not found")
	}

	k.TaskExit(ti)
	if got := ti.State(); got != TaskStateZombie {
		t.Fatalf("state after exit: want %q, got %q", TaskStateZombie, got)
	}
	if !testTaskInList(&k.zombieTasksList, ti) {
		t.Fatal("exited task not on the zombie list")
	}
	testCheckStateListConsistency(t, k)

	k.RemoveTask(ti)
	if k.GetTask(3) != nil {
		t.Fatal("removed task still found")
	}
	if !k.zombieTasksList.Empty() {
		t.Fatal("zombie list not empty after removal")
	}
}

func TestRemoveNonZombiePanics(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on removing a runnable task")
		}
	}()
	k := newTestKernel(t, nil)
	ti := testNewTask(3, 3, TaskStateRunnable)
	k.AddTask(ti)
	k.RemoveTask(ti)
}

func TestAccountTicks(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	k, _ := newTestKernelWithIdle(t, nil)
	worker, err := k.KthreadCreate("worker", nil)
	if err != nil {
		t.Fatal(err)
	}
	k.switchToTask(worker, NoIrq)

	k.AccountTicks()
	k.AccountTicks()
	if want, got := 2, worker.TimeSlotTicks; want != got {
		t.Fatalf("TimeSlotTicks: want %d, got %d", want, got)
	}
	if want, got := uint64(2), worker.TotalTicks; want != got {
		t.Fatalf("TotalTicks: want %d, got %d", want, got)
	}
	// Kernel threads run in kernel mode:
	if want, got := uint64(2), worker.TotalKernelTicks; want != got {
		t.Fatalf("TotalKernelTicks: want %d, got %d", want, got)
	}

	k.SetCurrentTaskInUser()
	k.AccountTicks()
	if want, got := uint64(2), worker.TotalKernelTicks; want != got {
		t.Fatalf("TotalKernelTicks after user mode tick: want %d, got %d", want, got)
	}
	k.SetCurrentTaskInKernel()
	k.AccountTicks()
	if want, got := uint64(3), worker.TotalKernelTicks; want != got {
		t.Fatalf("TotalKernelTicks after kernel mode tick: want %d, got %d", want, got)
	}
}

func TestQuantumExpiry(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	k, arch := newTestKernelWithIdle(t, nil)
	worker, err := k.KthreadCreate("worker", nil)
	if err != nil {
		t.Fatal(err)
	}
	worker.TotalTicks = 100
	k.switchToTask(worker, NoIrq)

	switchCount := arch.ContextSwitchCount()

	for i := 0; i < k.TimeSlotTicks(); i++ {
		if k.NeedReschedule() {
			t.Fatalf("NeedReschedule true after %d ticks, quantum is %d", i, k.TimeSlotTicks())
		}
		k.AccountTicks()
	}
	if !k.NeedReschedule() {
		t.Fatal("NeedReschedule false after quantum expiry")
	}

	k.Schedule(TimerIrq)

	// Only one runnable task: it is reselected, with a fresh time slot and
	// no context switch.
	if k.GetCurrTask() != worker {
		t.Fatal("current task changed with no other candidate")
	}
	if got := worker.State(); got != TaskStateRunning {
		t.Fatalf("state: want %q, got %q", TaskStateRunning, got)
	}
	if worker.TimeSlotTicks != 0 {
		t.Fatalf("TimeSlotTicks not reset: %d", worker.TimeSlotTicks)
	}
	if want, got := uint64(100+5), worker.TotalTicks; want != got {
		t.Fatalf("TotalTicks: want %d, got %d", want, got)
	}
	if got := arch.ContextSwitchCount(); got != switchCount {
		t.Fatalf("context switches: want %d, got %d", switchCount, got)
	}

	// Scheduling again with no intervening ticks or state transitions
	// causes no additional context switch:
	k.Schedule(TimerIrq)
	if got := arch.ContextSwitchCount(); got != switchCount {
		t.Fatalf("context switches after idempotent call: want %d, got %d", switchCount, got)
	}
	if k.GetCurrTask() != worker || worker.State() != TaskStateRunning {
		t.Fatal("current task disturbed by idempotent call")
	}
}

func TestScheduleLeastTotalTicks(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	k, arch := newTestKernelWithIdle(t, nil)
	workerA, _ := k.KthreadCreate("worker-a", nil)
	workerB, _ := k.KthreadCreate("worker-b", nil)
	workerC, _ := k.KthreadCreate("worker-c", nil)
	workerA.TotalTicks = 30
	workerB.TotalTicks = 10
	workerC.TotalTicks = 20

	k.switchToTask(workerA, NoIrq)
	workerA.TimeSlotTicks = k.TimeSlotTicks()

	k.Schedule(TimerIrq)
	if got := k.GetCurrTask(); got != workerB {
		t.Fatalf("selected task: want %s, got %s", workerB.Name, got.Name)
	}
	if got := workerA.State(); got != TaskStateRunnable {
		t.Fatalf("preempted task state: want %q, got %q", TaskStateRunnable, got)
	}
	if got := arch.LastSwitchedTo(); got != workerB {
		t.Fatalf("context switch target: want %s, got %s", workerB.Name, got.Name)
	}
	testCheckStateListConsistency(t, k)

	// Tie break by list order: equal counts, first encountered wins. After
	// the switch above the runnable list reads idle, worker-c, worker-a:
	workerA.TotalTicks = 40
	workerC.TotalTicks = 40
	workerB.TimeSlotTicks = k.TimeSlotTicks()
	k.Schedule(TimerIrq)
	if got := k.GetCurrTask(); got != workerC {
		t.Fatalf("tie break: want %s, got %s", workerC.Name, got.Name)
	}
}

func TestTaskletPreemption(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	arch := NewSimArch(0)
	k := NewKernel(nil, arch)
	ts := newTestTaskletSubsystem()
	k.SetTaskletSubsystem(ts)
	k.CreateKernelProcess()
	k.InitSched()

	// Tasklet runner tasks skip the state lists but are in the index:
	runner := testNewTask(50, 50, TaskStateRunnable)
	ts.runners[runner] = true
	k.AddTask(runner)
	if testTaskInList(&k.runnableTasksList, runner) {
		t.Fatal("tasklet runner on the runnable list")
	}
	if k.GetTask(50) != runner {
		t.Fatal("tasklet runner not in the task index")
	}

	worker, _ := k.KthreadCreate("worker", nil)
	worker.TotalTicks = 1
	runner.TotalTicks = 1000000
	k.switchToTask(worker, NoIrq)

	// The runner becomes ready: reschedule regardless of total ticks.
	ts.ready = runner
	if !k.NeedReschedule() {
		t.Fatal("NeedReschedule false with a ready tasklet runner")
	}
	k.Schedule(TimerIrq)
	if k.GetCurrTask() != runner {
		t.Fatal("tasklet runner not selected")
	}
	if got := runner.State(); got != TaskStateRunning {
		t.Fatalf("runner state: want %q, got %q", TaskStateRunning, got)
	}
	if got := worker.State(); got != TaskStateRunnable {
		t.Fatalf("preempted worker state: want %q, got %q", TaskStateRunnable, got)
	}
	testCheckStateListConsistency(t, k)
}

func TestTaskletRunnerFastPathIgnoresQuantum(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	arch := NewSimArch(0)
	k := NewKernel(nil, arch)
	ts := newTestTaskletSubsystem()
	k.SetTaskletSubsystem(ts)
	k.CreateKernelProcess()
	k.InitSched()

	runner := testNewTask(50, 50, TaskStateRunnable)
	ts.runners[runner] = true
	k.AddTask(runner)
	worker, _ := k.KthreadCreate("worker", nil)
	_ = worker

	ts.ready = runner
	k.switchToTask(runner, NoIrq)
	switchCount := arch.ContextSwitchCount()

	// The current task is the ready runner with an expired quantum: the
	// timer interrupt does not even enter the scheduler, and a direct
	// Schedule call returns without a switch. Tasklet runners are
	// cooperative, their quantum is deliberately not checked.
	runner.TimeSlotTicks = 10 * k.TimeSlotTicks()
	if k.NeedReschedule() {
		t.Fatal("NeedReschedule true while the ready runner has the CPU")
	}
	k.Schedule(TimerIrq)
	if k.GetCurrTask() != runner {
		t.Fatal("current task changed on the fast path")
	}
	if got := arch.ContextSwitchCount(); got != switchCount {
		t.Fatalf("context switches: want %d, got %d", switchCount, got)
	}
	if runner.TimeSlotTicks == 0 {
		t.Fatal("fast path reset the time slot")
	}
}

func TestIdleFallback(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	k, _ := newTestKernelWithIdle(t, nil)
	worker, _ := k.KthreadCreate("worker", nil)
	k.switchToTask(worker, NoIrq)

	// The only other runnable task is the idle task; block the worker:
	k.SleepOn(&testWaitObj{name: "test-timer"})
	if got := worker.State(); got != TaskStateSleeping {
		t.Fatalf("worker state: want %q, got %q", TaskStateSleeping, got)
	}
	if worker.WObj == nil {
		t.Fatal("sleeping worker has no wait object")
	}

	if !k.NeedReschedule() {
		t.Fatal("NeedReschedule false with the current task asleep")
	}
	k.Schedule(NoIrq)
	if k.GetCurrTask() != k.IdleTask() {
		t.Fatal("idle task not selected")
	}
	if got := k.IdleTask().State(); got != TaskStateRunning {
		t.Fatalf("idle state: want %q, got %q", TaskStateRunning, got)
	}
	testCheckStateListConsistency(t, k)

	// Waking the worker clears the wait object and makes it runnable:
	k.WakeUp(worker)
	if worker.WObj != nil {
		t.Fatal("woken worker still has a wait object")
	}
	if got := worker.State(); got != TaskStateRunnable {
		t.Fatalf("woken worker state: want %q, got %q", TaskStateRunnable, got)
	}
}

func TestSwitchToIdleTask(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	k, arch := newTestKernelWithIdle(t, nil)
	worker, _ := k.KthreadCreate("worker", nil)
	k.switchToTask(worker, NoIrq)
	irqAcks := arch.IrqAckCount()

	k.SwitchToIdleTask()
	if k.GetCurrTask() != k.IdleTask() {
		t.Fatal("idle task not current")
	}
	// The forced switch demotes the running task:
	if got := worker.State(); got != TaskStateRunnable {
		t.Fatalf("worker state: want %q, got %q", TaskStateRunnable, got)
	}
	// Entered from the timer IRQ, the primitive acknowledges it:
	if got := arch.IrqAckCount(); got != irqAcks+1 {
		t.Fatalf("irq acks: want %d, got %d", irqAcks+1, got)
	}
	testCheckStateListConsistency(t, k)
}

func TestIterateOverTasksAscending(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	k := newTestKernel(t, nil)
	for _, tid := range []int{5, 1, 9, 3} {
		k.AddTask(testNewTask(tid, tid, TaskStateRunnable))
	}

	gotTids := make([]int, 0)
	k.IterateOverTasks(func(ti *TaskInfo) bool {
		gotTids = append(gotTids, ti.Tid)
		return false
	})

	prev := -1
	for _, tid := range gotTids {
		if tid <= prev {
			t.Fatalf("traversal not strictly ascending: %v", gotTids)
		}
		prev = tid
	}
	if want, got := 5, len(gotTids); want != got {
		t.Fatalf("task count: want %d, got %d", want, got)
	}
}

func TestIdleBodyYields(t *testing.T) {
	tlc := kernsim_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	k, arch := newTestKernelWithIdle(t, nil)
	worker, _ := k.KthreadCreate("worker", nil)

	k.switchToTask(k.IdleTask(), NoIrq)
	k.EnablePreemption() // idle runs with preemption enabled

	idleTicks := k.IdleTicks()
	if !k.IdleTask().Body(k.IdleTask()) {
		t.Fatal("idle body wants to exit")
	}
	if got := k.IdleTicks(); got != idleTicks+1 {
		t.Fatalf("idle ticks: want %d, got %d", idleTicks+1, got)
	}
	if arch.HaltCount() == 0 {
		t.Fatal("idle body did not halt the CPU")
	}
	// With a runnable task around, the idle body yielded to it:
	if k.GetCurrTask() != worker {
		t.Fatal("idle body did not yield to the runnable worker")
	}
}
