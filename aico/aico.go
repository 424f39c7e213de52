// Package aico defines the AICO (asynchronous I/O object) and AICE
// (asynchronous I/O call entry) data model of spec.md §3, generalized from
// socket515-gaio/watcher.go's single aiocb-bound-to-a-net.Conn record
// (aiocb: op/ctx/conn/err/size/buffer/deadline) into the full
// {socket, file, task} x 18-opcode matrix.
//
// Per spec.md §9's cyclic-ownership note, an AICO never holds a pointer back
// to its owning proactor: it holds Arena, a stable pool-slot handle, so the
// proactor package (which exclusively owns the AICO pool) can look the AICO
// back up without this package importing it.
package aico

import (
	"sync/atomic"
)

// Kind distinguishes the three AICO endpoint types spec.md §3 names.
type Kind int32

const (
	KindNone Kind = iota
	KindSocket
	KindFile
	KindTask
)

func (k Kind) String() string {
	switch k {
	case KindSocket:
		return "socket"
	case KindFile:
		return "file"
	case KindTask:
		return "task"
	default:
		return "none"
	}
}

// State is the AICO lifecycle state word, accessed only via atomic
// read-modify-write per spec.md §3.
type State int32

const (
	StateClosed State = iota
	StateOpened
	StatePending
	StateKilling
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpened:
		return "OPENED"
	case StatePending:
		return "PENDING"
	case StateKilling:
		return "KILLING"
	case StateKilled:
		return "KILLED"
	default:
		return "UNKNOWN"
	}
}

// TimeoutIndex selects one of the four per-operation timeout slots spec.md
// §3/§6 define.
type TimeoutIndex int

const (
	TimeoutConn TimeoutIndex = iota
	TimeoutSend
	TimeoutRecv
	TimeoutAccept
	timeoutCount
)

// NoTimeout is the sentinel value meaning "no timeout" for a TimeoutIndex
// slot; a value of 0 means "deadline already passed".
const NoTimeout int64 = -1

// AICO is a long-lived asynchronous endpoint: a socket, a file, or a task.
type AICO struct {
	Arena uint32 // stable handle into the owning proactor's pool; never a pointer back

	kind   Kind
	state  int32 // atomic State
	handle int   // fd, or a tagged timer-selector constant for KindTask

	timeouts [timeoutCount]int64 // atomic milliseconds, -1 = disabled

	// DebugFile/DebugLine/DebugFunc hold a post-site record. Nothing in this
	// module fills them in, in any build; they stay empty unless the caller
	// sets them, and Reset clears them.
	DebugFile string
	DebugLine int
	DebugFunc string
}

// New returns a freshly-constructed, CLOSED AICO. Proactor.AICOInit is the
// usual entry point; it takes records from its pool and calls Reset instead.
func New() *AICO {
	a := &AICO{kind: KindNone}
	for i := range a.timeouts {
		a.timeouts[i] = NoTimeout
	}
	atomic.StoreInt32(&a.state, int32(StateClosed))
	return a
}

// Reset restores a to its just-constructed CLOSED state, for pool reuse.
func (a *AICO) Reset() {
	a.kind = KindNone
	a.handle = 0
	for i := range a.timeouts {
		a.timeouts[i] = NoTimeout
	}
	atomic.StoreInt32(&a.state, int32(StateClosed))
	a.DebugFile, a.DebugLine, a.DebugFunc = "", 0, ""
}

// Kind returns the endpoint type.
func (a *AICO) Kind() Kind { return a.kind }

// Handle returns the underlying OS descriptor (or the task timer-selector
// tag for KindTask AICOs).
func (a *AICO) Handle() int { return a.handle }

// State atomically loads the lifecycle state.
func (a *AICO) State() State { return State(atomic.LoadInt32(&a.state)) }

// CAS atomically transitions from `from` to `to`, returning whether it
// succeeded. Apart from New and Reset, which store CLOSED directly, every
// state transition in this module goes through CAS.
func (a *AICO) CAS(from, to State) bool {
	return atomic.CompareAndSwapInt32(&a.state, int32(from), int32(to))
}

// Open transitions a CLOSED AICO to OPENED, binding it to kind/handle. It
// requires state==CLOSED, per spec.md §4.7's open_* preconditions, and
// returns false otherwise without modifying the AICO.
func (a *AICO) Open(kind Kind, handle int) bool {
	if !a.CAS(StateClosed, StateOpened) {
		return false
	}
	a.kind = kind
	a.handle = handle
	return true
}

// Timeout returns the configured timeout in milliseconds for idx.
func (a *AICO) Timeout(idx TimeoutIndex) int64 {
	return atomic.LoadInt64(&a.timeouts[idx])
}

// SetTimeout configures the timeout in milliseconds for idx; -1 disables it.
func (a *AICO) SetTimeout(idx TimeoutIndex, ms int64) {
	atomic.StoreInt64(&a.timeouts[idx], ms)
}

// TimeoutForCode resolves the correct TimeoutIndex for an operation code,
// per the mapping in spec.md §6 ("Timeout indices").
func TimeoutForCode(code OpCode) (TimeoutIndex, bool) {
	switch code {
	case OpConn:
		return TimeoutConn, true
	case OpSend, OpUSend, OpSendV, OpUSendV, OpSendF:
		return TimeoutSend, true
	case OpRecv, OpURecv, OpRecvV, OpURecvV:
		return TimeoutRecv, true
	case OpAcpt:
		return TimeoutAccept, true
	default:
		return 0, false
	}
}
