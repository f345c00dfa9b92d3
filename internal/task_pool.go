// Task records come from a reusable pool; a kernel churning through short
// lived threads should not lean on the garbage collector for every spawn.

package kernsim_internal

import (
	"sync"
)

const (
	TASK_INFO_POOL_MAX_SIZE_DEFAULT = 64
	TASK_INFO_POOL_MAX_SIZE_UNBOUND = 0
)

type TaskInfoPool struct {
	// The pool of records; if the pool is empty at retrieval time, a new
	// record is created. The record is returned to the pool after the task
	// is reaped.
	pool []*TaskInfo
	// Max pool size, if > 0, unlimited otherwise. A burst of exits may
	// return more records than normal operation needs; upon return keep
	// only up to the limit to avoid memory waste.
	maxPoolSize int
	// Current pool size:
	poolSize int
	// Thread safe mu:
	mu *sync.Mutex
}

func NewTaskInfoPool(maxPoolSize int) *TaskInfoPool {
	return &TaskInfoPool{
		pool:        make([]*TaskInfo, 0),
		maxPoolSize: maxPoolSize,
		mu:          &sync.Mutex{},
	}
}

func (p *TaskInfoPool) Get() *TaskInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.poolSize > 0 {
		p.poolSize--
		ti := p.pool[p.poolSize]
		return ti
	}
	return &TaskInfo{}
}

func (p *TaskInfoPool) Put(ti *TaskInfo) {
	if ti == nil {
		return
	}
	ti.reset()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Discard if at max capacity:
	if p.maxPoolSize > 0 && p.poolSize >= p.maxPoolSize {
		return
	}

	if p.poolSize >= len(p.pool) {
		p.pool = append(p.pool, ti)
	} else {
		p.pool[p.poolSize] = ti
	}
	p.poolSize++
}

func (p *TaskInfoPool) MaxPoolSize() int {
	return p.maxPoolSize
}
