// Process id allocation.

package kernsim_internal

const (
	SCHEDULER_CONFIG_MAX_PID_DEFAULT = 8191
)

type createPidVisitCtx struct {
	lowestAvailable       int
	lowestAfterCurrentMax int
}

func (ctx *createPidVisitCtx) visit(ti *TaskInfo) bool {
	if !ti.IsMainThread() {
		return false // skip threads
	}

	// The traversal is in ascending tid order. lowestAvailable (L) starts
	// at 0; every time the current tid equals L, the real lowest must be at
	// least tid + 1, so L advances. The first time the tids skip a value,
	// say from 3 to 5, L sticks at 4, the smallest id not in use.

	if ctx.lowestAvailable == ti.Tid {
		ctx.lowestAvailable = ti.Tid + 1
	}

	// Same logic for lowestAfterCurrentMax (A), starting at
	// currentMaxPid + 1: it advances while consecutive tids cover it and
	// sticks at the first hole above the high-water mark. If no tid ever
	// reaches currentMaxPid + 1, A simply stays there.

	if ctx.lowestAfterCurrentMax == ti.Tid {
		ctx.lowestAfterCurrentMax = ti.Tid + 1
	}

	return false
}

// CreateNewPid allocates a fresh process id <= the configured max, or
// returns -1 when no id is available. Allocation is monotonic while there
// is room above the high-water mark and falls back to reusing holes only
// once that region is exhausted, all in a single ascending pass over the
// task index. Preemption must be disabled by the caller.
func (k *Kernel) CreateNewPid() int {
	kernAssert(!k.IsPreemptionEnabled(), "CreateNewPid with preemption enabled")

	ctx := createPidVisitCtx{
		lowestAvailable:       0,
		lowestAfterCurrentMax: k.currentMaxPid + 1,
	}
	k.IterateOverTasks(ctx.visit)

	newPid := -1
	switch {
	case ctx.lowestAfterCurrentMax <= k.maxPid:
		newPid = ctx.lowestAfterCurrentMax
	case ctx.lowestAvailable <= k.maxPid:
		newPid = ctx.lowestAvailable
	}

	if newPid >= 0 {
		k.currentMaxPid = newPid
	}
	return newPid
}
