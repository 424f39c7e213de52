// Package timer implements the high-precision timer of spec.md §4.4: a
// min-heap of tasks keyed by absolute deadline, generalized from
// socket515-gaio/watcher.go's timeout heap (timedHeap/w.timeouts,
// heap.Push/heap.Remove/w.timer.Reset) from "one aiocb deadline per fd" to a
// standalone reusable task primitive any caller (not just the AICP) can use.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// TaskFunc is invoked when a task's deadline elapses or it is killed.
// killed is true only for the final, forced callback delivered by Kill.
type TaskFunc func(t *Task, killed bool)

// Task is a single scheduled callback. Tasks are refcounted: both the
// caller and the owning heap may hold a reference (TaskInit), or only the
// heap may (TaskPost, fire-and-forget) — see TaskExit.
type Task struct {
	deadline time.Time
	period   time.Duration
	repeat   bool
	fn       TaskFunc
	priv     any
	refcount int32
	killed   bool
	index    int // heap index, maintained by container/heap
	removed  bool
}

// Priv returns the opaque user data the task was created with.
func (t *Task) Priv() any { return t.priv }

// Killed reports whether this firing is the forced final callback from
// TaskKill.
func (t *Task) Killed() bool { return t.killed }

// taskHeap implements container/heap.Interface, ordering by deadline. Ties
// break by insertion order only incidentally (container/heap does not
// guarantee stability across sift operations); callers must not depend on
// ordering among simultaneous deadlines, per spec.md §4.4.
type taskHeap []*Task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Clock selects how "now" is sampled.
type Clock int

const (
	// ClockPrecise samples time.Now() on every check.
	ClockPrecise Clock = iota
	// ClockCached uses a periodically-refreshed monotonic tick, coarser but
	// cheaper, matching the library's cached-clock singleton.
	ClockCached
)

// Timer is a min-heap scheduler of high-precision tasks.
type Timer struct {
	mu    sync.Mutex
	h     taskHeap
	wake  chan struct{}
	clock Clock

	cachedMu sync.RWMutex
	cached   time.Time
	stopRef  chan struct{}
}

// New creates a Timer using the given clock source. ClockCached starts a
// background refresh goroutine (stopped by Close) sampling time.Now() every
// 100ms, the Go analogue of the library's periodically-refreshed tick.
func New(clock Clock) *Timer {
	t := &Timer{wake: make(chan struct{}, 1), clock: clock}
	if clock == ClockCached {
		t.cached = time.Now()
		t.stopRef = make(chan struct{})
		go t.refreshCachedClock()
	}
	return t
}

func (t *Timer) refreshCachedClock() {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case now := <-tick.C:
			t.cachedMu.Lock()
			t.cached = now
			t.cachedMu.Unlock()
		case <-t.stopRef:
			return
		}
	}
}

// Close stops the cached-clock refresh goroutine, if any.
func (t *Timer) Close() {
	if t.stopRef != nil {
		close(t.stopRef)
	}
}

func (t *Timer) now() time.Time {
	if t.clock == ClockCached {
		t.cachedMu.RLock()
		defer t.cachedMu.RUnlock()
		return t.cached
	}
	return time.Now()
}

func (t *Timer) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// TaskInitAt schedules fn to run at when, optionally repeating every period.
// The returned Task carries refcount 2 (caller + heap); callers must balance
// it with TaskExit.
func (t *Timer) TaskInitAt(when time.Time, period time.Duration, repeat bool, fn TaskFunc, priv any) *Task {
	task := &Task{deadline: when, period: period, repeat: repeat, fn: fn, priv: priv, refcount: 2}
	t.insert(task)
	return task
}

// TaskInit schedules fn to run after delay, optionally repeating every
// period thereafter.
func (t *Timer) TaskInit(delay time.Duration, repeat bool, fn TaskFunc, priv any) *Task {
	return t.TaskInitAt(t.now().Add(delay), delay, repeat, fn, priv)
}

// TaskPost is TaskInit with refcount 1 (fire-and-forget): the heap holds
// the only reference, so a TaskExit on the returned task drops that
// reference and removes the task before it fires.
func (t *Timer) TaskPost(delay time.Duration, fn TaskFunc, priv any) *Task {
	task := &Task{deadline: t.now().Add(delay), fn: fn, priv: priv, refcount: 1}
	t.insert(task)
	return task
}

func (t *Timer) insert(task *Task) {
	t.mu.Lock()
	heap.Push(&t.h, task)
	isRoot := t.h[0] == task
	t.mu.Unlock()
	if isRoot {
		t.notify()
	}
}

// TaskExit releases the caller's reference. If the heap still holds the
// last reference, the callback is cleared so firing becomes a no-op;
// otherwise the task is removed from the heap outright.
func (t *Timer) TaskExit(task *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task.refcount--
	if task.refcount > 0 {
		task.fn = nil
		task.priv = nil
		return
	}
	if task.index >= 0 && task.index < len(t.h) && t.h[task.index] == task {
		heap.Remove(&t.h, task.index)
	}
	task.fn = nil
	task.priv = nil
}

// TaskKill removes task from the heap, forces its deadline to now, marks it
// killed, and re-inserts it so it fires exactly once more with killed=true.
// This is the mechanism the AICP uses to force a pending I/O operation to
// complete with state=KILLED (spec.md §4.4, §9).
func (t *Timer) TaskKill(task *Task) {
	t.mu.Lock()
	if task.index >= 0 && task.index < len(t.h) && t.h[task.index] == task {
		heap.Remove(&t.h, task.index)
	}
	task.deadline = t.now()
	task.killed = true
	task.repeat = false
	heap.Push(&t.h, task)
	isRoot := t.h[0] == task
	t.mu.Unlock()
	if isRoot {
		t.notify()
	}
}

// Spak performs a single non-blocking step: if the root task is due, it is
// popped, fired, and re-inserted if periodic; at most one callback runs.
// Returns true if a task fired.
func (t *Timer) Spak() bool {
	t.mu.Lock()
	if len(t.h) == 0 {
		t.mu.Unlock()
		return false
	}
	now := t.now()
	task := t.h[0]
	if now.Before(task.deadline) {
		t.mu.Unlock()
		return false
	}
	heap.Pop(&t.h)
	if task.repeat {
		task.deadline = task.deadline.Add(task.period)
		if task.deadline.Before(now) {
			task.deadline = now.Add(task.period)
		}
		heap.Push(&t.h, task)
	}
	fn := task.fn
	killed := task.killed
	t.mu.Unlock()
	if fn != nil {
		fn(task, killed)
	}
	return true
}

// Loop blocks, firing due tasks, until stop is closed. limit bounds the
// maximum sleep between checks even when the heap is empty.
func (t *Timer) Loop(stop <-chan struct{}, limit time.Duration) {
	for {
		t.mu.Lock()
		var wait time.Duration
		if len(t.h) == 0 {
			wait = limit
		} else {
			wait = time.Until(t.h[0].deadline)
			if wait > limit {
				wait = limit
			}
			if wait < 0 {
				wait = 0
			}
		}
		t.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-t.wake:
			timer.Stop()
		case <-timer.C:
		}
		for t.Spak() {
		}
	}
}

// Len reports the number of tasks currently scheduled.
func (t *Timer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.h)
}
