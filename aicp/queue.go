package aicp

import (
	"github.com/tboxorg/aicp/aico"
	"github.com/tboxorg/aicp/internal/xerr"
)

// priority identifies the two spak queues of spec.md §3: higher-priority
// accept/connect/task/close, and lower-priority data I/O. Workers always
// fully drain priHigh before touching priLow so a connect or accept never
// starves behind bulk I/O.
type priority int

const (
	priHigh priority = iota
	priLow
	priCount
)

func priorityOf(code aico.OpCode) priority {
	switch code {
	case aico.OpAcpt, aico.OpConn, aico.OpRunTask, aico.OpClos:
		return priHigh
	default:
		return priLow
	}
}

// spakQueue is a bounded FIFO of *aico.AICE, a plain ring buffer in the
// shape of catrate's ringBuffer[E] (joeycumines-go-utilpkg/catrate/ring.go),
// specialized to aico.AICE and guarded by the Proactor's spinlock rather
// than an internal lock of its own.
type spakQueue struct {
	buf  []*aico.AICE
	r, w int
}

func newSpakQueue(capacity int) *spakQueue {
	if capacity <= 0 {
		capacity = 4096
	}
	// round up to a power of two for mask-indexing.
	sz := 1
	for sz < capacity {
		sz <<= 1
	}
	return &spakQueue{buf: make([]*aico.AICE, sz)}
}

func (q *spakQueue) mask(i int) int { return i & (len(q.buf) - 1) }

func (q *spakQueue) Len() int { return q.w - q.r }

func (q *spakQueue) Full() bool { return q.Len() == len(q.buf) }

func (q *spakQueue) Push(e *aico.AICE) error {
	if q.Full() {
		return xerr.ErrQueueFull
	}
	q.buf[q.mask(q.w)] = e
	q.w++
	return nil
}

func (q *spakQueue) Pop() (*aico.AICE, bool) {
	if q.Len() == 0 {
		return nil, false
	}
	e := q.buf[q.mask(q.r)]
	q.buf[q.mask(q.r)] = nil
	q.r++
	return e, true
}
