// Scheduler counters.

package kernsim_internal

import (
	"sync"
)

const (
	// Indexes into SchedStats.Uint64Stats

	// How many times the context switch primitive was invoked:
	SCHED_STATS_CONTEXT_SWITCH_COUNT = iota

	// How many of those went to a ready tasklet runner, bypassing the
	// least total ticks selection:
	SCHED_STATS_TASKLET_SWITCH_COUNT

	// How many times a running task was demoted to runnable because it was
	// preempted rather than blocked:
	SCHED_STATS_PREEMPTION_COUNT

	// How many times the scheduler found no better candidate and kept the
	// current task with a fresh time slot:
	SCHED_STATS_KEEP_CURRENT_COUNT

	// How many times the idle task was selected for lack of candidates:
	SCHED_STATS_IDLE_SWITCH_COUNT

	// Timer ticks accounted to tasks:
	SCHED_STATS_TICK_COUNT

	// Must be last:
	SCHED_STATS_UINT64_LEN
)

type SchedStats struct {
	Uint64Stats []uint64
}

func NewSchedStats() *SchedStats {
	return &SchedStats{
		Uint64Stats: make([]uint64, SCHED_STATS_UINT64_LEN),
	}
}

type schedStatsContainer struct {
	stats *SchedStats
	mu    *sync.Mutex
}

func newSchedStatsContainer() *schedStatsContainer {
	return &schedStatsContainer{
		stats: NewSchedStats(),
		mu:    &sync.Mutex{},
	}
}

func (c *schedStatsContainer) bump(index int) {
	c.mu.Lock()
	c.stats.Uint64Stats[index]++
	c.mu.Unlock()
}

// SnapStats copies the current counters into to, allocating it if nil, and
// returns it.
func (k *Kernel) SnapStats(to *SchedStats) *SchedStats {
	if to == nil {
		to = NewSchedStats()
	}
	k.stats.mu.Lock()
	defer k.stats.mu.Unlock()
	copy(to.Uint64Stats, k.stats.stats.Uint64Stats)
	return to
}
