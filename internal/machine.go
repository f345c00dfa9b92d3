// The simulated single CPU machine.

//  Principles Of Operation
//  =======================
//
// The machine owns the timer: every simulated tick it delivers a timer
// interrupt (account the tick, consult NeedReschedule, enter the scheduler
// if told to) and then lets the current task execute one step of its body.
// A body that blocks or exits inside its step simply changes the task
// state; the machine notices the current task is no longer running and
// enters the scheduler on its behalf, which is exactly the suspension
// discipline of the real kernel: timer interrupt, voluntary yield, blocking
// primitive, exit.
//
// Tick pacing comes in two flavors:
//  - real time: one tick per period of the configured tick frequency;
//  - turbo: ticks run back to back, optionally throttled by a tick budget
//    (see tick_budget.go), for long simulations and tests.
//
// Zombies are reaped by the machine at the end of every tick.

package kernsim_internal

import (
	"context"
	"sync"
	"time"

	"github.com/docker/go-units"
)

const (
	// 0 means use the host clock tick frequency:
	MACHINE_CONFIG_TICK_HZ_DEFAULT = 0
	// 0 means run until shutdown:
	MACHINE_CONFIG_RUN_TICKS_DEFAULT               = uint64(0)
	MACHINE_CONFIG_TURBO_DEFAULT                   = false
	MACHINE_CONFIG_TURBO_MAX_TICKS_PER_SEC_DEFAULT = 0
	MACHINE_CONFIG_KTHREAD_STACK_SIZE_DEFAULT      = "16KiB"

	MACHINE_TICK_HZ_FALLBACK = 100

	// Turbo mode runs ticks in batches between budget draws:
	MACHINE_TURBO_BATCH_TICKS = 64
)

type MachineConfig struct {
	// Timer interrupt frequency; 0 picks the host clock tick:
	TickHz int `yaml:"tick_hz"`
	// Stop after this many ticks, 0 to run until shutdown:
	RunTicks uint64 `yaml:"run_ticks"`
	// Run ticks back to back instead of in real time:
	Turbo bool `yaml:"turbo"`
	// Cap for turbo mode, 0 for no cap:
	TurboMaxTicksPerSec int `yaml:"turbo_max_ticks_per_sec"`
	// Kernel stack size reserved per task, human readable (e.g. "16KiB"):
	KthreadStackSize string `yaml:"kthread_stack_size"`
}

func DefaultMachineConfig() *MachineConfig {
	return &MachineConfig{
		TickHz:              MACHINE_CONFIG_TICK_HZ_DEFAULT,
		RunTicks:            MACHINE_CONFIG_RUN_TICKS_DEFAULT,
		Turbo:               MACHINE_CONFIG_TURBO_DEFAULT,
		TurboMaxTicksPerSec: MACHINE_CONFIG_TURBO_MAX_TICKS_PER_SEC_DEFAULT,
		KthreadStackSize:    MACHINE_CONFIG_KTHREAD_STACK_SIZE_DEFAULT,
	}
}

type MachineState int

var (
	MachineStateCreated MachineState = 0
	MachineStateRunning MachineState = 1
	MachineStateHalted  MachineState = 2
)

var machineStateMap = map[MachineState]string{
	MachineStateCreated: "Created",
	MachineStateRunning: "Running",
	MachineStateHalted:  "Halted",
}

func (state MachineState) String() string {
	return machineStateMap[state]
}

var machineLog = NewCompLogger("machine")

// The wait object handed to tasks sleeping on the machine's tick timer.
type TickTimerWaitObj struct {
	Ticks int
}

func (w *TickTimerWaitObj) WaitObjName() string {
	return "tick-timer"
}

type tickSleeper struct {
	ti        *TaskInfo
	remaining int
}

type Machine struct {
	kernel *Kernel

	tickHz   int
	runTicks uint64
	turbo    bool
	budget   *TickBudget

	// Tasks sleeping on the tick timer. Touched only from the machine
	// goroutine (bodies run on it too), so no lock is needed.
	sleepers []*tickSleeper

	tickCount uint64

	// The state of the machine, whether it is running or not:
	state MachineState
	mu    *sync.Mutex

	// Goroutine exit sync:
	ctx      context.Context
	cancelFn context.CancelFunc
	wg       *sync.WaitGroup
	doneCh   chan struct{}
}

// ParseKthreadStackSize resolves the configured per task stack size.
func ParseKthreadStackSize(machineCfg *MachineConfig) (int64, error) {
	spec := machineCfg.KthreadStackSize
	if spec == "" {
		spec = MACHINE_CONFIG_KTHREAD_STACK_SIZE_DEFAULT
	}
	return units.RAMInBytes(spec)
}

func NewMachine(kernel *Kernel, machineCfg *MachineConfig) (*Machine, error) {
	if machineCfg == nil {
		machineCfg = DefaultMachineConfig()
	}

	tickHz := machineCfg.TickHz
	if tickHz <= 0 {
		tickHz = int(Clktck)
	}
	if tickHz <= 0 {
		tickHz = MACHINE_TICK_HZ_FALLBACK
	}

	var budget *TickBudget
	if machineCfg.Turbo && machineCfg.TurboMaxTicksPerSec > 0 {
		budget = NewTickBudget(machineCfg.TurboMaxTicksPerSec, MACHINE_TURBO_BATCH_TICKS)
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	m := &Machine{
		kernel:   kernel,
		tickHz:   tickHz,
		runTicks: machineCfg.RunTicks,
		turbo:    machineCfg.Turbo,
		budget:   budget,
		state:    MachineStateCreated,
		mu:       &sync.Mutex{},
		ctx:      ctx,
		cancelFn: cancelFn,
		wg:       &sync.WaitGroup{},
		doneCh:   make(chan struct{}),
	}
	machineLog.Infof(
		"tick_hz=%d, run_ticks=%d, turbo=%v, turbo_cap=%s",
		m.tickHz, m.runTicks, m.turbo, m.budget,
	)
	return m, nil
}

func (m *Machine) TickHz() int {
	return m.tickHz
}

func (m *Machine) TickCount() uint64 {
	return m.tickCount
}

// SimTime is the simulated wall clock: the host boot time plus the
// simulated ticks elapsed.
func (m *Machine) SimTime() time.Time {
	elapsed := time.Duration(m.tickCount) * (time.Second / time.Duration(m.tickHz))
	return HostBootTime.Add(elapsed)
}

// SleepCurrentTicks blocks the current task on the tick timer for n ticks.
// To be called from a task body only; the body should return right after.
func (m *Machine) SleepCurrentTicks(n int) {
	curr := m.kernel.GetCurrTask()
	kernAssert(n > 0, "task %d sleeping for %d ticks", curr.Tid, n)

	m.kernel.SleepOn(&TickTimerWaitObj{Ticks: n})
	m.sleepers = append(m.sleepers, &tickSleeper{ti: curr, remaining: n})
}

func (m *Machine) wakeSleepers() {
	live := m.sleepers[:0]
	for _, sleeper := range m.sleepers {
		sleeper.remaining--
		if sleeper.remaining <= 0 {
			m.kernel.WakeUp(sleeper.ti)
		} else {
			live = append(live, sleeper)
		}
	}
	m.sleepers = live
}

func (m *Machine) reapZombies() {
	k := m.kernel
	var zombies []*TaskInfo
	k.DisablePreemption()
	k.zombieTasksList.ForEach(func(ti *TaskInfo) bool {
		if ti != k.GetCurrTask() {
			zombies = append(zombies, ti)
		}
		return false
	})
	k.EnablePreemption()
	for _, ti := range zombies {
		machineLog.Debugf("reap task %d (%s)", ti.Tid, ti.Name)
		k.RemoveTask(ti)
	}
}

// tick runs one full simulated tick: timer interrupt, then one body step
// of the current task, then zombie reaping.
func (m *Machine) tick() {
	k := m.kernel
	m.tickCount++

	m.wakeSleepers()

	// Timer interrupt. The handler runs with preemption disabled; the
	// context switch primitive acknowledges the interrupt controller.
	k.DisablePreemption()
	k.AccountTicks()
	if k.NeedReschedule() {
		k.Schedule(TimerIrq)
	}
	k.EnablePreemption()

	// Let the current task execute until the next tick. Bodies run one
	// step per tick; a step that blocks or exits gives up the CPU early.
	curr := k.GetCurrTask()
	if curr != nil && curr.Body != nil && curr.State() == TaskStateRunning {
		if !curr.Body(curr) {
			k.TaskExit(curr)
		}
		// A body that yielded switched the CPU away on its own; only a
		// task that blocked or exited while still holding the CPU needs
		// the machine to enter the scheduler for it.
		if curr.State() != TaskStateRunning && k.GetCurrTask() == curr {
			k.DisablePreemption()
			k.ScheduleOutsideInterruptContext()
			k.EnablePreemption()
		}
	}

	m.reapZombies()
}

func (m *Machine) loop() {
	machineLog.Info("start machine loop")

	var ticker *time.Ticker
	if !m.turbo {
		ticker = time.NewTicker(time.Second / time.Duration(m.tickHz))
	}

	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		machineLog.Infof("machine halted after %d ticks", m.tickCount)
		close(m.doneCh)
		m.wg.Done()
	}()

	for {
		batch := 1
		if m.turbo {
			batch = MACHINE_TURBO_BATCH_TICKS
			if m.budget != nil {
				batch = m.budget.Take(MACHINE_TURBO_BATCH_TICKS, m.ctx.Done())
			}
		} else {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
			}
		}

		for i := 0; i < batch; i++ {
			select {
			case <-m.ctx.Done():
				return
			default:
			}
			m.tick()
			if m.runTicks > 0 && m.tickCount >= m.runTicks {
				return
			}
		}
	}
}

func (m *Machine) Start() {
	m.mu.Lock()
	entryState := m.state
	canStart := entryState == MachineStateCreated
	if canStart {
		m.state = MachineStateRunning
	}
	m.mu.Unlock()

	if !canStart {
		machineLog.Warnf(
			"machine can only be started from %q state, not from %q",
			MachineStateCreated, entryState,
		)
		return
	}

	m.wg.Add(1)
	go m.loop()
	machineLog.Info("machine started")
}

// Done is closed once the machine loop exits, e.g. after run_ticks ticks.
func (m *Machine) Done() <-chan struct{} {
	return m.doneCh
}

func (m *Machine) Shutdown() {
	m.mu.Lock()
	halted := m.state == MachineStateHalted
	m.state = MachineStateHalted
	m.mu.Unlock()

	if halted {
		machineLog.Warn("machine already halted")
		return
	}

	machineLog.Info("halt machine")
	m.cancelFn()
	m.wg.Wait()
}
