package aicp

import (
	"context"
	"time"

	"github.com/tboxorg/aicp/aico"
	"github.com/tboxorg/aicp/aioo"
	"github.com/tboxorg/aicp/internal/xerr"
	"github.com/tboxorg/aicp/timer"
)

// loop is the worker's main dispatch cycle, the generalization of
// socket515-gaio/watcher.go's loop()/handlePending()/handleEvents() trio
// from a single queue to the two-priority spak pair plus the killing list
// spec.md §3/§4.7 add. It runs on its own
// goroutine, started by New and stopped by Exit.
func (p *Proactor) loop(ctx context.Context) {
	events := make([]aioo.Event, p.cfg.MaxEvents)
	for {
		select {
		case <-p.die:
			return
		default:
		}

		// spak[0] (accept/connect/task/close) is always fully drained
		// before spak[1] (bulk data I/O) is touched, per spec.md §3.
		p.drainSpak(priHigh)
		p.drainSpak(priLow)
		p.drainKilling()

		n, err := p.reactor.Wait(ctx, events, 100*time.Millisecond)
		if err != nil {
			if err == context.Canceled {
				return
			}
			p.log.Warn().Err(err).Msg("aicp: reactor wait error")
			continue
		}
		for i := 0; i < n; i++ {
			p.handleEvent(events[i])
		}
	}
}

func (p *Proactor) drainSpak(pri priority) {
	for {
		p.lock.Enter()
		e, ok := p.spak[pri].Pop()
		p.lock.Leave()
		if !ok {
			return
		}
		p.dispatch(e)
	}
}

func (p *Proactor) drainKilling() {
	p.lock.Enter()
	items := p.killing.drain()
	p.lock.Leave()
	for _, a := range items {
		p.forceKill(a)
	}
}

// forceKill drives a parked KILLING AICO to KILLED: if it has an in-flight
// operation, that operation is pulled out of the reactor/timer and delivered
// once more with state=KILLED; otherwise (the operation already completed
// and the AICO simply hasn't been re-posted) it transitions directly.
func (p *Proactor) forceKill(a *aico.AICO) {
	p.lock.Enter()
	pe, ok := p.pending[a.Arena]
	if ok {
		delete(p.pending, a.Arena)
	}
	p.lock.Leave()
	if !ok {
		a.CAS(aico.StateKilling, aico.StateKilled)
		return
	}
	if pe.obj != nil {
		p.reactor.DelO(pe.obj)
	}
	if pe.htask != nil {
		p.htimer.TaskExit(pe.htask)
	}
	if pe.ltask != nil {
		p.ltimer.TaskExit(pe.ltask)
	}
	pe.e.State = aico.Killed
	p.deliver(pe.e)
}

// dispatch attempts e once. Task AICOs are scheduled against the
// high-precision timer rather than the reactor; CLOS runs synchronously;
// file AICOs run synchronously via the FileBackend; socket AICOs are tried
// non-blockingly and, if not immediately ready, parked in the pending map
// with a reactor registration (and, if configured, a timeout).
func (p *Proactor) dispatch(e *aico.AICE) {
	if e.AICO.State() == aico.StateKilled {
		// posted to (or killed before dispatch of) an already-KILLED AICO:
		// complete at once with KILLED instead of running the operation.
		e.State = aico.Killed
		p.deliver(e)
		return
	}
	if e.AICO.Kind() == aico.KindTask {
		p.dispatchTask(e)
		return
	}
	if e.Code == aico.OpClos {
		closeFD(e.AICO.Handle())
		e.State = aico.OK
		p.deliver(e)
		return
	}
	if e.AICO.Kind() == aico.KindFile {
		p.runFileOp(e)
		p.deliver(e)
		return
	}
	if p.attempt(e) {
		p.deliver(e)
		return
	}
	p.armPending(e)
}

func (p *Proactor) dispatchTask(e *aico.AICE) {
	delay := e.Delay
	if !e.When.IsZero() {
		delay = time.Until(e.When)
	}
	if delay <= 0 {
		e.State = aico.OK
		p.deliver(e)
		return
	}
	arena := e.AICO.Arena
	task := p.htimer.TaskPost(delay, func(t *timer.Task, killed bool) {
		p.lock.Enter()
		delete(p.pending, arena)
		p.lock.Leave()
		if killed {
			e.State = aico.Killed
		} else {
			e.State = aico.OK
		}
		p.deliver(e)
	}, nil)
	p.lock.Enter()
	p.pending[arena] = &pendingEntry{e: e, htask: task}
	p.lock.Leave()
}

// armPending registers e's AICO with the reactor for the interest its op
// code implies, and arms a per-op timeout from the AICO's configured budget
// (aico.TimeoutForCode), if any. Per spec.md §4.5, per-op timeouts ride the
// low-precision wheel (p.ltimer), not the high-precision heap (p.htimer) —
// the wheel's O(1) arm/disarm is what lets the AICP scale to tens of
// thousands of concurrently-pending sockets, each with its own deadline,
// without paying the heap's O(log N) per socket.
func (p *Proactor) armPending(e *aico.AICE) {
	obj, err := p.reactor.AddO(e.AICO.Handle(), interestFor(e.Code), e.AICO.Arena)
	if err != nil {
		e.State, e.Err = aico.Failed, err
		p.deliver(e)
		return
	}
	pe := &pendingEntry{e: e, obj: obj}
	if idx, ok := aico.TimeoutForCode(e.Code); ok {
		if ms := e.AICO.Timeout(idx); ms >= 0 {
			arena := e.AICO.Arena
			seconds := int((ms + 999) / 1000)
			pe.ltask = p.ltimer.TaskPost(seconds, func(t *timer.LTask, killed bool) {
				p.onTimeout(arena)
			}, nil)
		}
	}
	p.lock.Enter()
	p.pending[e.AICO.Arena] = pe
	p.lock.Leave()
}

func interestFor(code aico.OpCode) aioo.EventCode {
	switch code {
	case aico.OpAcpt:
		return aioo.Acpt
	case aico.OpConn:
		return aioo.Conn
	case aico.OpRecv, aico.OpURecv, aico.OpRecvV, aico.OpURecvV:
		return aioo.Recv
	case aico.OpSend, aico.OpUSend, aico.OpSendV, aico.OpUSendV:
		return aioo.Send
	default:
		return aioo.Recv
	}
}

func (p *Proactor) handleEvent(ev aioo.Event) {
	arena, ok := ev.Obj.Priv.(uint32)
	if !ok {
		return
	}
	p.lock.Enter()
	pe, ok := p.pending[arena]
	p.lock.Leave()
	if !ok {
		return
	}
	if !p.attempt(pe.e) {
		return
	}
	p.finishPending(arena, pe)
}

func (p *Proactor) onTimeout(arena uint32) {
	p.lock.Enter()
	pe, ok := p.pending[arena]
	if ok {
		delete(p.pending, arena)
	}
	p.lock.Leave()
	if !ok {
		return
	}
	if pe.obj != nil {
		p.reactor.DelO(pe.obj)
	}
	pe.e.State = aico.Timeout
	p.deliver(pe.e)
}

func (p *Proactor) finishPending(arena uint32, pe *pendingEntry) {
	p.lock.Enter()
	delete(p.pending, arena)
	p.lock.Leave()
	if pe.obj != nil {
		p.reactor.DelO(pe.obj)
	}
	if pe.htask != nil {
		p.htimer.TaskExit(pe.htask)
	}
	if pe.ltask != nil {
		p.ltimer.TaskExit(pe.ltask)
	}
	p.deliver(pe.e)
}

// attempt tries a socket AICE's operation once, non-blockingly. It returns
// true if the AICE reached a terminal state (e.State/e.Err are set),
// false if the caller should register for readiness and retry later.
func (p *Proactor) attempt(e *aico.AICE) bool {
	fd := e.AICO.Handle()
	switch e.Code {
	case aico.OpAcpt:
		nfd, _, err := doAccept(fd)
		if err != nil {
			if isAgain(err) {
				return false
			}
			e.State, e.Err = aico.Failed, err
			return true
		}
		na := p.AICOInit()
		if oerr := p.OpenSock(na, nfd); oerr != nil {
			closeFD(nfd)
			e.State, e.Err = aico.Failed, oerr
			return true
		}
		e.AcceptedAICO = na
		e.Real = 1
		e.State = aico.OK
		return true

	case aico.OpConn:
		// e.Real is repurposed as a one-shot marker: 0 means connect(2)
		// hasn't been issued yet, -1 means it has and this call is the
		// writability retry. SO_ERROR isn't consulted on the retry path —
		// documented simplification, a real port would getsockopt it.
		if e.Real == 0 {
			sa, err := addrToSockaddr(e.ConnAddr)
			if err != nil {
				e.State, e.Err = aico.Failed, err
				return true
			}
			e.Real = -1
			err = doConnect(fd, sa)
			if err == nil {
				e.Real = 0
				e.State = aico.OK
				return true
			}
			if connectInProgress(err) {
				return false
			}
			e.State, e.Err = aico.Failed, err
			return true
		}
		e.Real = 0
		e.State = aico.OK
		return true

	case aico.OpRecv:
		n, err := doRead(fd, e.Buffer)
		return p.finishRW(e, n, err)

	case aico.OpSend:
		n, err := doWrite(fd, e.Buffer)
		return p.finishRW(e, n, err)

	case aico.OpURecv:
		n, sa, err := doRecvfrom(fd, e.Buffer)
		if err != nil {
			if isAgain(err) {
				return false
			}
			e.State, e.Err = aico.Failed, err
			return true
		}
		e.Peer = sockaddrToUDPAddr(sa)
		e.Real = n
		e.State = aico.OK
		return true

	case aico.OpUSend:
		sa, err := udpAddrToSockaddr(e.Peer)
		if err != nil {
			e.State, e.Err = aico.Failed, err
			return true
		}
		if err := doSendto(fd, e.Buffer, sa); err != nil {
			if isAgain(err) {
				return false
			}
			e.State, e.Err = aico.Failed, err
			return true
		}
		e.Real = len(e.Buffer)
		e.State = aico.OK
		return true

	case aico.OpRecvV, aico.OpSendV, aico.OpURecvV, aico.OpUSendV:
		return p.attemptVector(e, fd)

	default:
		e.State, e.Err = aico.Failed, xerr.ErrUnsupported
		return true
	}
}

func (p *Proactor) finishRW(e *aico.AICE, n int, err error) bool {
	if err != nil {
		if isAgain(err) {
			return false
		}
		e.State, e.Err = aico.Failed, err
		return true
	}
	e.Real = n
	e.State = aico.OK
	return true
}

// attemptVector runs the vector op sequentially across e.IOVec, same
// simplification as syncFileBackend.ReadV/WriteV — kept in the worker
// instead of the FileBackend since RECVV/SENDV/URECVV/USENDV are socket ops.
// URECVV/USENDV use the stream read/write syscalls rather than a true
// recvmsg/sendmsg with a single peer address per call, a scope-limiting
// simplification noted here rather than silently assumed.
func (p *Proactor) attemptVector(e *aico.AICE, fd int) bool {
	isRead := e.Code == aico.OpRecvV || e.Code == aico.OpURecvV
	total := 0
	for _, b := range e.IOVec {
		var (
			n   int
			err error
		)
		if isRead {
			n, err = doRead(fd, b)
		} else {
			n, err = doWrite(fd, b)
		}
		total += n
		if err != nil {
			if isAgain(err) {
				if total == 0 {
					return false
				}
				break
			}
			e.State, e.Err = aico.Failed, err
			return true
		}
		if n < len(b) {
			break
		}
	}
	e.Real = total
	e.State = aico.OK
	return true
}

// deliver transitions the AICO's state word per e's terminal State and
// invokes the callback exactly once — except ACPT, which per spec.md §3
// stays PENDING across completions: the AICO is re-armed for the next
// incoming connection immediately after the callback runs, so a single
// posted ACPT AICE keeps accepting until the caller kills it.
func (p *Proactor) deliver(e *aico.AICE) {
	a := e.AICO
	// A kill can race with a completion that already reached attempt()'s
	// terminal OK/FAILED before AICOKill flips the AICO to KILLING: force
	// the state the callback observes to KILLED so the completion it sees
	// always matches the AICO's actual fate, per spec.md's worker-loop rule.
	if st := a.State(); st == aico.StateKilling || st == aico.StateKilled {
		e.State = aico.Killed
	}
	if e.Code == aico.OpAcpt && e.State == aico.OK {
		p.invokeCallback(e)
		e.AcceptedAICO = nil
		e.Err = nil
		a.CAS(aico.StateKilling, aico.StateKilled)
		if a.State() == aico.StatePending {
			p.dispatch(e)
		}
		return
	}
	switch e.State {
	case aico.Killed:
		a.CAS(aico.StateKilling, aico.StateKilled)
		a.CAS(aico.StatePending, aico.StateKilled)
	default:
		a.CAS(aico.StatePending, aico.StateOpened)
	}
	p.invokeCallback(e)
	// Second sweep: a kill requested while the callback itself was running
	// must still converge the AICO to KILLED rather than wait for the next
	// drainKilling() cycle.
	a.CAS(aico.StateKilling, aico.StateKilled)
}

func (p *Proactor) invokeCallback(e *aico.AICE) {
	if e.Callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn().Interface("panic", r).Str("op", e.Code.String()).Msg("aicp: completion callback panicked")
		}
	}()
	if !e.Callback(e) {
		p.log.Debug().Str("op", e.Code.String()).Msg("aicp: completion callback returned false")
	}
}
