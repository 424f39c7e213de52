// Package spinlock implements mutual exclusion shorter than a scheduler
// quantum: a compare-and-set lock with a bounded spin before yielding the
// processor, directly translated from
// original_source/core/pkg/tbox.pkg/inc/tbox/platform/spinlock.h's
// tb_spinlock_enter. It exists for the AICP's hot paths (the AICO pool and
// the priority queues), which are held for only a handful of instructions
// at a time — far shorter than it would take the Go scheduler to park and
// resume a goroutine blocked on a channel or sync.Mutex.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

const spinBudget = 5

// SpinLock is a single CAS word. The zero value is unlocked, matching
// TB_SPINLOCK_INIT.
type SpinLock struct {
	state uint32
	name  string
}

// Init resets the lock to the unlocked state. Init is not required before
// first use since the zero value is already unlocked; it exists to mirror
// tb_spinlock_init and to support reuse of a previously-exited lock.
func (s *SpinLock) Init(name string) {
	atomic.StoreUint32(&s.state, 0)
	s.name = name
}

// Enter blocks until the lock is acquired, recording contention with the
// process-wide profiler when one is installed (see EnableProfiler).
func (s *SpinLock) Enter() {
	s.enter(true)
}

// EnterWithoutProfiler acquires the lock like Enter but never reports
// contention to the profiler.
func (s *SpinLock) EnterWithoutProfiler() {
	s.enter(false)
}

func (s *SpinLock) enter(profile bool) {
	tryn := spinBudget
	reported := false
	for !atomic.CompareAndSwapUint32(&s.state, 0, 1) {
		if profile && !reported {
			reportOccupied(s)
			reported = true
		}
		tryn--
		if tryn <= 0 {
			runtime.Gosched()
			tryn = spinBudget
		}
	}
}

// TryEnter attempts to acquire the lock without blocking.
func (s *SpinLock) TryEnter() bool {
	return s.tryEnter(true)
}

// TryEnterWithoutProfiler is the profiler-reentrancy-safe variant of TryEnter.
func (s *SpinLock) TryEnterWithoutProfiler() bool {
	return s.tryEnter(false)
}

func (s *SpinLock) tryEnter(profile bool) bool {
	ok := atomic.CompareAndSwapUint32(&s.state, 0, 1)
	if !ok && profile {
		reportOccupied(s)
	}
	return ok
}

// Leave releases the lock with a plain store; the CAS on the acquiring side
// provides the atomic publish, exactly as tb_spinlock_leave documents.
func (s *SpinLock) Leave() {
	atomic.StoreUint32(&s.state, 0)
}

// Exit is an alias of Leave kept for parity with the C API's distinct
// init/exit pair; releasing an unheld lock or exiting a held one is
// undefined behavior and is not checked here, matching the source.
func (s *SpinLock) Exit() {
	atomic.StoreUint32(&s.state, 0)
}
