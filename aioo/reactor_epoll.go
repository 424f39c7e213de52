//go:build linux

package aioo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// epollReactor is the Linux backend, preferred whenever available per
// spec.md §4.6. It maps EventCode's Clear/OneShot flags onto
// EPOLLET/EPOLLONESHOT exactly as original_source's deprecated/aiop_epoll.c
// does. The kernel echoes only the fd (epoll_event.Fd), so, like the
// portable poll backend, it keeps an fd->Obj map to recover each event's
// registration.
type epollReactor struct {
	epfd int

	mu     sync.Mutex
	objs   map[int]*Obj
	closed bool
	killed bool

	wakeR, wakeW int
}

func (r *epollReactor) isKilled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.killed
}

func openBackend(maxn int) (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	r := &epollReactor{epfd: epfd, objs: make(map[int]*Obj, maxn)}
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(epfd)
		return nil, err
	}
	r.wakeR, r.wakeW = fds[0], fds[1]
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, r.wakeR, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(r.wakeR)}); err != nil {
		unix.Close(r.wakeR)
		unix.Close(r.wakeW)
		unix.Close(epfd)
		return nil, err
	}
	return r, nil
}

func toEpollEvents(code EventCode) uint32 {
	var ev uint32
	if code&Recv != 0 || code&Acpt != 0 {
		ev |= unix.EPOLLIN
	}
	if code&Send != 0 || code&Conn != 0 {
		ev |= unix.EPOLLOUT
	}
	if code&Clear != 0 {
		ev |= unix.EPOLLET
	}
	if code&OneShot != 0 {
		ev |= unix.EPOLLONESHOT
	}
	return ev
}

func (r *epollReactor) AddO(sock int, code EventCode, priv any) (*Obj, error) {
	o := &Obj{Sock: sock, Code: code, Priv: priv}
	ev := unix.EpollEvent{Events: toEpollEvents(code), Fd: int32(sock)}
	r.mu.Lock()
	r.objs[sock] = o
	r.mu.Unlock()
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, sock, &ev); err != nil {
		r.mu.Lock()
		delete(r.objs, sock)
		r.mu.Unlock()
		return nil, err
	}
	return o, nil
}

func (r *epollReactor) DelO(o *Obj) error {
	r.mu.Lock()
	delete(r.objs, o.Sock)
	r.mu.Unlock()
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, o.Sock, nil)
}

func (r *epollReactor) SetE(o *Obj, code EventCode) error {
	o.Code = code
	ev := unix.EpollEvent{Events: toEpollEvents(code), Fd: int32(o.Sock)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, o.Sock, &ev); err != nil {
		// a one-shot registration may already have been dropped by the
		// kernel after it fired; fall back to re-adding it.
		return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, o.Sock, &ev)
	}
	return nil
}

func (r *epollReactor) Post(ev Event) error {
	// epoll always re-derives events from the kernel; a synthetic post has
	// no natural home here beyond waking the loop, which callers do via Spak.
	return nil
}

func (r *epollReactor) Wait(ctx context.Context, list []Event, timeout time.Duration) (int, error) {
	if r.isKilled() {
		return 0, nil
	}
	raw := make([]unix.EpollEvent, cap(list))
	if len(raw) == 0 {
		raw = make([]unix.EpollEvent, 64)
	}
	msec := int(timeout / time.Millisecond)
	if timeout < 0 {
		msec = -1
	}
	if ctx.Done() != nil {
		// EpollWait has no way to select on a Go channel, so give it a
		// bounded poll interval and recheck ctx between slices; this still
		// blocks the kernel thread for at most one slice past cancellation.
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
			n, err := unix.EpollWait(r.epfd, raw, int(wait/time.Millisecond))
			if err != nil {
				if err == unix.EINTR {
					continue
				}
				return 0, err
			}
			if n > 0 {
				return r.drain(raw[:n], list)
			}
			if timeout < 0 {
				continue
			}
		}
		return 0, nil
	}
	n, err := unix.EpollWait(r.epfd, raw, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return r.drain(raw[:n], list)
}

// drain converts n raw epoll events into list, consuming (and discarding)
// any wake-pipe byte along the way.
func (r *epollReactor) drain(raw []unix.EpollEvent, list []Event) (int, error) {
	out := list[:0]
	for i := range raw {
		fd := int(raw[i].Fd)
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
		if raw[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			if o.Code&Acpt != 0 {
				code |= Acpt
			} else {
				code |= Recv
			}
		}
		if raw[i].Events&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
			if o.Code&Conn != 0 {
				code |= Conn
			} else {
				code |= Send
			}
		}
		out = append(out, Event{Obj: o, Code: code})
	}
	return len(out), nil
}

func (r *epollReactor) Spak() error {
	_, err := unix.Write(r.wakeW, []byte{0})
	return err
}

// Kill permanently unblocks every waiter: once called, this and all future
// Wait calls return (0, nil) immediately, matching reactor_poll.go's killed
// flag and the Reactor interface's documented contract.
func (r *epollReactor) Kill() error {
	r.mu.Lock()
	r.killed = true
	r.mu.Unlock()
	return r.Spak()
}

func (r *epollReactor) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for fd := range r.objs {
		unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	r.objs = make(map[int]*Obj)
	return nil
}

func (r *epollReactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	unix.Close(r.wakeR)
	unix.Close(r.wakeW)
	return unix.Close(r.epfd)
}
