// Package aioo implements the unified readiness surface spec.md §4.6 calls
// the AIOO/AIOP reactor: a single addo/delo/sete/wait vtable over
// epoll (Linux), kqueue (BSD/macOS), and a portable poll-style fallback for
// every other GOOS. The AICP proactor reuses this package as its wait
// engine; nothing in here is proactor-specific.
package aioo

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// EventCode is a bitmask of interest/delivery flags, exactly the set
// spec.md §4.6 specifies.
type EventCode uint32

const (
	Recv EventCode = 1 << iota
	Send
	Acpt
	Conn
	// Clear requests edge-triggered delivery: notify only on a readiness
	// transition, not on standing readiness.
	Clear
	// OneShot requests the registration auto-disarm on first delivery,
	// requiring an explicit Reactor.SetE to re-arm.
	OneShot
)

func (c EventCode) String() string {
	s := ""
	for _, f := range []struct {
		bit  EventCode
		name string
	}{{Recv, "RECV"}, {Send, "SEND"}, {Acpt, "ACPT"}, {Conn, "CONN"}, {Clear, "CLEAR"}, {OneShot, "ONESHOT"}} {
		if c&f.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += f.name
		}
	}
	if s == "" {
		return "NONE"
	}
	return s
}

// Obj is a per-handle registration record, the AIOO of spec.md.
type Obj struct {
	Sock int
	Code EventCode
	Priv any
}

// Event is a single readiness notification delivered by Wait, naming the
// Obj it concerns and which of Recv/Send/Acpt/Conn fired.
type Event struct {
	Obj  *Obj
	Code EventCode
}

// Reactor is the backend-agnostic vtable every platform implementation
// satisfies; the rest of the engine dispatches only through this interface.
type Reactor interface {
	// AddO registers sock for the given interest set, returning its Obj.
	AddO(sock int, code EventCode, priv any) (*Obj, error)
	// DelO unregisters a previously-added Obj.
	DelO(o *Obj) error
	// SetE modifies the registered interest set for o. Backends that lose a
	// one-shot registration after it fires transparently fall back to an
	// Add.
	SetE(o *Obj, code EventCode) error
	// Post accepts a user-synthesized event. No backend delivers ev through
	// Wait: the poll backend only wakes a blocked Wait, and the epoll and
	// kqueue backends do nothing.
	Post(ev Event) error
	// Wait blocks up to timeout for ready events, filling list (reusing its
	// backing array) and returning the count actually delivered. A
	// cancelled ctx makes Wait return 0, ctx.Err(): at once on the poll
	// backend, and within about 100ms on epoll and kqueue, which recheck ctx
	// between bounded waits.
	Wait(ctx context.Context, list []Event, timeout time.Duration) (int, error)
	// Spak wakes a blocked Wait without delivering any particular event,
	// used to force the loop to reconsider newly posted work.
	Spak() error
	// Kill unblocks every waiter permanently; subsequent Wait calls return
	// immediately.
	Kill() error
	// Clear removes every registration.
	Clear() error
	// Close releases backend resources (epoll fd, kqueue fd, wake pipe...).
	Close() error
}

// Open selects a backend in the priority order spec.md §4.6 specifies:
// epoll (Linux) > kqueue (BSD/macOS) > portable poll fallback (everything
// else, including Windows, where a native IOCP backend is not provided by
// this module — see aicp/file.go's doc comment on the same limitation for
// file I/O). maxn sizes the backend's internal event buffers.
func Open(maxn int) (Reactor, error) {
	r, err := openBackend(maxn)
	if err != nil {
		return nil, fmt.Errorf("aioo: open backend for %s: %w", runtime.GOOS, err)
	}
	return r, nil
}
