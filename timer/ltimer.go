package timer

import (
	"sync"
	"time"
)

// wheelSlots is the number of one-second buckets per revolution; it must be
// a power of two so slot indices can be computed with a mask, the same
// mask-indexed-ring trick joeycumines-go-utilpkg/catrate/ring.go uses for
// its rate-limiter event ring (ringBuffer[E].mask).
const wheelSlots = 256

// LTaskFunc is invoked when a wheel task's deadline elapses or it is
// killed. killed is true only for the final, forced callback delivered by
// TaskKill. It is a distinct type from TaskFunc (the high-precision
// timer's callback, which takes a *Task): LTask and Task are different
// types, so the two callback shapes cannot share one func type.
type LTaskFunc func(t *LTask, killed bool)

// LTask is a task scheduled on the low-precision wheel.
type LTask struct {
	fn      LTaskFunc
	priv    any
	rounds  int // revolutions remaining before this task is actually due
	repeat  bool
	period  int // seconds
	killed  bool
	slot    int
	wheel   *WheelTimer
	removed bool
}

// Priv returns the opaque user data the task was created with.
func (t *LTask) Priv() any { return t.priv }

// Killed reports whether this firing is the forced final callback from
// TaskKill.
func (t *LTask) Killed() bool { return t.killed }

// WheelTimer is a single-level timing wheel of wheelSlots one-second slots;
// it has no higher-level wheels. A task due more than one revolution out
// stays in its slot with a count of revolutions still to wait. It is sized for the AICP's common case: tens of thousands of
// in-flight sockets each with its own timeout, where paying O(log N) per
// event (as the high-precision heap does) is avoidable once the deadline
// granularity is a whole second (spec.md §4.5).
type WheelTimer struct {
	mu      sync.Mutex
	buckets [wheelSlots][]*LTask
	cursor  int
	wake    chan struct{}
}

// NewWheelTimer constructs a 1-second-tick timing wheel.
func NewWheelTimer() *WheelTimer {
	return &WheelTimer{wake: make(chan struct{}, 1)}
}

func (w *WheelTimer) mask(i int) int { return i & (wheelSlots - 1) }

// TaskInit schedules fn to fire after delaySeconds whole seconds,
// repeating every delaySeconds if repeat is true.
func (w *WheelTimer) TaskInit(delaySeconds int, repeat bool, fn LTaskFunc, priv any) *LTask {
	if delaySeconds < 0 {
		delaySeconds = 0
	}
	task := &LTask{fn: fn, priv: priv, repeat: repeat, period: delaySeconds, wheel: w}
	w.schedule(task, delaySeconds)
	return task
}

// TaskPost schedules a fire-and-forget task (no distinct refcount
// bookkeeping is needed on the wheel: LTask is never shared beyond the
// wheel and its single owner, unlike the heap timer's dual-owner Task).
func (w *WheelTimer) TaskPost(delaySeconds int, fn LTaskFunc, priv any) *LTask {
	return w.TaskInit(delaySeconds, false, fn, priv)
}

func (w *WheelTimer) schedule(task *LTask, delaySeconds int) {
	w.mu.Lock()
	task.rounds = delaySeconds / wheelSlots
	slot := w.mask(w.cursor + delaySeconds)
	task.slot = slot
	w.buckets[slot] = append(w.buckets[slot], task)
	w.mu.Unlock()
}

// TaskExit cancels task, removing it from its bucket if still pending.
func (w *WheelTimer) TaskExit(task *LTask) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(task)
}

func (w *WheelTimer) removeLocked(task *LTask) {
	bucket := w.buckets[task.slot]
	for i, t := range bucket {
		if t == task {
			w.buckets[task.slot] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// TaskKill forces task to fire on the next tick with killed=true, the same
// forced-completion contract as the high-precision timer's TaskKill. tick()
// processes the bucket at the pre-advance w.cursor before moving it, so the
// forced firing must land in that same bucket — not cursor+1, which would
// only be reached a full revolution later.
func (w *WheelTimer) TaskKill(task *LTask) {
	w.mu.Lock()
	w.removeLocked(task)
	task.killed = true
	task.repeat = false
	slot := w.cursor
	task.slot = slot
	task.rounds = 0
	w.buckets[slot] = append(w.buckets[slot], task)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// tick advances the wheel by one slot unconditionally, firing every due
// task in the current bucket. Loop calls it once per second and once more
// on every TaskKill wake.
func (w *WheelTimer) tick() {
	w.mu.Lock()
	slot := w.cursor
	bucket := w.buckets[slot]
	w.buckets[slot] = nil
	w.cursor = w.mask(w.cursor + 1)
	var due []*LTask
	var requeue []*LTask
	for _, t := range bucket {
		if t.rounds > 0 {
			t.rounds--
			requeue = append(requeue, t)
			continue
		}
		due = append(due, t)
	}
	for _, t := range requeue {
		w.buckets[slot] = append(w.buckets[slot], t)
	}
	w.mu.Unlock()

	for _, t := range due {
		if t.fn != nil {
			t.fn(t, t.killed)
		}
		if t.repeat && !t.killed {
			w.schedule(t, t.period)
		}
	}
}

// Loop ticks the wheel once per second until stop is closed.
func (w *WheelTimer) Loop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-w.wake:
			w.tick()
		case <-ticker.C:
			w.tick()
		}
	}
}

// Len reports how many tasks are currently parked in the wheel.
func (w *WheelTimer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.buckets {
		n += len(b)
	}
	return n
}
