//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package aioo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// kqueueReactor is the BSD/macOS backend, second in the priority order
// after epoll. It maps Clear/OneShot onto EV_CLEAR/EV_ONESHOT exactly as
// original_source's deprecated/aiop_kqueue.c does.
type kqueueReactor struct {
	kq int

	mu     sync.Mutex
	objs   map[int]*Obj
	closed bool
	killed bool

	wakeR, wakeW int
}

func (r *kqueueReactor) isKilled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.killed
}

func openBackend(maxn int) (Reactor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	r := &kqueueReactor{kq: kq, objs: make(map[int]*Obj, maxn)}
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		unix.Close(kq)
		return nil, err
	}
	r.wakeR, r.wakeW = fds[0], fds[1]
	unix.SetNonblock(r.wakeR, true)
	unix.SetNonblock(r.wakeW, true)
	changes := []unix.Kevent_t{{
		Ident:  uint64(r.wakeR),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}}
	if _, err := unix.Kevent(r.kq, changes, nil, nil); err != nil {
		unix.Close(r.wakeR)
		unix.Close(r.wakeW)
		unix.Close(kq)
		return nil, err
	}
	return r, nil
}

func (r *kqueueReactor) kevents(sock int, code EventCode, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if code&(Recv|Acpt) != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(sock), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if code&(Send|Conn) != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(sock), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func (r *kqueueReactor) flags(code EventCode) uint16 {
	flags := uint16(unix.EV_ADD)
	if code&Clear != 0 {
		flags |= unix.EV_CLEAR
	}
	if code&OneShot != 0 {
		flags |= unix.EV_ONESHOT
	}
	return flags
}

func (r *kqueueReactor) AddO(sock int, code EventCode, priv any) (*Obj, error) {
	o := &Obj{Sock: sock, Code: code, Priv: priv}
	r.mu.Lock()
	r.objs[sock] = o
	r.mu.Unlock()
	changes := r.kevents(sock, code, r.flags(code))
	if len(changes) > 0 {
		if _, err := unix.Kevent(r.kq, changes, nil, nil); err != nil {
			r.mu.Lock()
			delete(r.objs, sock)
			r.mu.Unlock()
			return nil, err
		}
	}
	return o, nil
}

func (r *kqueueReactor) DelO(o *Obj) error {
	r.mu.Lock()
	delete(r.objs, o.Sock)
	r.mu.Unlock()
	changes := r.kevents(o.Sock, o.Code, unix.EV_DELETE)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(r.kq, changes, nil, nil)
	return err
}

func (r *kqueueReactor) SetE(o *Obj, code EventCode) error {
	old := o.Code
	o.Code = code
	// clear whichever filters are no longer wanted, then (re)arm the rest;
	// on backends that drop a one-shot registration after it fires, the
	// EV_ADD below transparently re-arms it.
	if removed := r.kevents(o.Sock, old&^code, unix.EV_DELETE); len(removed) > 0 {
		unix.Kevent(r.kq, removed, nil, nil)
	}
	added := r.kevents(o.Sock, code, r.flags(code))
	if len(added) == 0 {
		return nil
	}
	_, err := unix.Kevent(r.kq, added, nil, nil)
	return err
}

func (r *kqueueReactor) Post(ev Event) error { return nil }

func (r *kqueueReactor) Wait(ctx context.Context, list []Event, timeout time.Duration) (int, error) {
	if r.isKilled() {
		return 0, nil
	}
	raw := make([]unix.Kevent_t, cap(list))
	if len(raw) == 0 {
		raw = make([]unix.Kevent_t, 64)
	}
	if ctx.Done() != nil {
		// Kevent has no way to select on a Go channel, so poll in bounded
		// slices and recheck ctx between them.
		const slice = 100 * time.Millisecond
		deadline := time.Now().Add(timeout)
		for timeout < 0 || time.Until(deadline) > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			default:
			}
			if r.isKilled() {
				return 0, nil
			}
			wait := slice
			if timeout >= 0 {
				if remaining := time.Until(deadline); remaining < wait {
					wait = remaining
				}
			}
			ts := unix.NsecToTimespec(wait.Nanoseconds())
			n, err := unix.Kevent(r.kq, nil, raw, &ts)
			if err != nil {
				if err == unix.EINTR {
					continue
				}
				return 0, err
			}
			if n > 0 {
				return r.drain(raw[:n], list)
			}
		}
		return 0, nil
	}
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	n, err := unix.Kevent(r.kq, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return r.drain(raw[:n], list)
}

// drain converts n raw kqueue events into list, consuming (and discarding)
// any wake-pipe byte along the way.
func (r *kqueueReactor) drain(raw []unix.Kevent_t, list []Event) (int, error) {
	out := list[:0]
	for i := range raw {
		fd := int(raw[i].Ident)
		if fd == r.wakeR {
			var buf [64]byte
			unix.Read(r.wakeR, buf[:])
			continue
		}
		r.mu.Lock()
		o, ok := r.objs[fd]
		r.mu.Unlock()
		if !ok {
			continue
		}
		var code EventCode
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			if o.Code&Acpt != 0 {
				code = Acpt
			} else {
				code = Recv
			}
		case unix.EVFILT_WRITE:
			if o.Code&Conn != 0 {
				code = Conn
			} else {
				code = Send
			}
		}
		out = append(out, Event{Obj: o, Code: code})
	}
	return len(out), nil
}

func (r *kqueueReactor) Spak() error {
	_, err := unix.Write(r.wakeW, []byte{0})
	return err
}

// Kill permanently unblocks every waiter: once called, this and all future
// Wait calls return (0, nil) immediately, matching reactor_poll.go's killed
// flag and the Reactor interface's documented contract.
func (r *kqueueReactor) Kill() error {
	r.mu.Lock()
	r.killed = true
	r.mu.Unlock()
	return r.Spak()
}

func (r *kqueueReactor) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.objs {
		changes := r.kevents(o.Sock, o.Code, unix.EV_DELETE)
		if len(changes) > 0 {
			unix.Kevent(r.kq, changes, nil, nil)
		}
	}
	r.objs = make(map[int]*Obj)
	return nil
}

func (r *kqueueReactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	unix.Close(r.wakeR)
	unix.Close(r.wakeW)
	return unix.Close(r.kq)
}
