// Package aicp implements the AICP proactor core of spec.md §3/§4.7: AICO
// lifecycle management, posting AICE operations, and the worker loop that
// drives them to completion over the aioo reactor and the timer packages.
// It is the generalization of socket515-gaio/watcher.go's single flat
// watcher (aioCreate/handlePending/handleEvents/loop) from "read/write on a
// net.Conn" to the full {socket,file,task} x eighteen-opcode matrix.
package aicp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tboxorg/aicp/aico"
	"github.com/tboxorg/aicp/aioo"
	"github.com/tboxorg/aicp/internal/xerr"
	"github.com/tboxorg/aicp/pool"
	"github.com/tboxorg/aicp/spinlock"
	"github.com/tboxorg/aicp/timer"

	"github.com/rs/zerolog"
)

// pendingEntry tracks the in-flight AICE for an AICO that could not complete
// immediately: at most one per AICO, per spec.md §3's per-AICO serialization
// invariant.
type pendingEntry struct {
	e      *aico.AICE
	obj    *aioo.Obj
	htask  *timer.Task
	ltask  *timer.LTask
}

// Proactor is the AICP: owner of the AICO pool, the two-priority spak
// queues, the killing list, the reactor, and both timer backends. Construct
// with New.
type Proactor struct {
	cfg Config
	log zerolog.Logger

	lock    spinlock.SpinLock
	aicos   *pool.Pool[aico.AICO]
	spak    [priCount]*spakQueue
	killing killingList
	pending map[uint32]*pendingEntry

	fileBackend FileBackend
	reactor     aioo.Reactor
	htimer      *timer.Timer
	ltimer      *timer.WheelTimer

	die    chan struct{}
	wg     sync.WaitGroup
	closed int32
}

// New constructs a Proactor, opening its reactor backend and starting the
// worker loop in the background (stopped by Exit).
func New(opts ...Option) (*Proactor, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.PoolGrow <= 0 && cfg.SmallFootprint {
		cfg.PoolGrow = pool.DefaultGrowSmall
	}

	r, err := aioo.Open(cfg.MaxEvents)
	if err != nil {
		return nil, err
	}

	p := &Proactor{
		cfg:         cfg,
		log:         cfg.Logger,
		pending:     make(map[uint32]*pendingEntry),
		fileBackend: syncFileBackend{},
		reactor:     r,
		htimer:      timer.New(timer.ClockPrecise),
		ltimer:      timer.NewWheelTimer(),
		die:         make(chan struct{}),
	}
	p.lock.Init("aicp")
	for i := range p.spak {
		p.spak[i] = newSpakQueue(cfg.QueueCapacity)
	}
	p.aicos = pool.New[aico.AICO](cfg.PoolGrow, nil, nil, nil)

	p.log.Debug().Msg("aicp: reactor opened")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.ltimer.Loop(p.die)
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.htimer.Loop(p.die, 250*time.Millisecond)
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(context.Background())
	}()
	return p, nil
}

// AICOInit allocates a fresh, CLOSED AICO from the pool, seeded with the
// proactor's configured default timeout on every slot (WithDefaultTimeout;
// -1 disables it). Per-op timeouts can still be overridden afterwards via
// AICO.SetTimeout.
func (p *Proactor) AICOInit() *aico.AICO {
	p.lock.Enter()
	rec, idx := p.aicos.Malloc()
	p.lock.Leave()
	rec.Reset()
	rec.Arena = idx
	if p.cfg.DefaultTimeout >= 0 {
		ms := p.cfg.DefaultTimeout.Milliseconds()
		rec.SetTimeout(aico.TimeoutConn, ms)
		rec.SetTimeout(aico.TimeoutSend, ms)
		rec.SetTimeout(aico.TimeoutRecv, ms)
		rec.SetTimeout(aico.TimeoutAccept, ms)
	}
	return rec
}

// aicoByArena looks an AICO back up by its pool handle, used by the worker
// when an event or timer fire names only the handle (not the AICO object).
func (p *Proactor) aicoByArena(arena uint32) *aico.AICO {
	p.lock.Enter()
	rec := p.aicos.At(arena)
	p.lock.Leave()
	return rec
}

// OpenSock binds a an already-created, non-blocking-capable socket fd.
func (p *Proactor) OpenSock(a *aico.AICO, fd int) error {
	if err := setNonblock(fd); err != nil {
		return err
	}
	if !a.Open(aico.KindSocket, fd) {
		return xerr.ErrBadState
	}
	return nil
}

// OpenSockFromType creates a brand-new AF_INET socket (stream or datagram)
// and binds it to a.
func (p *Proactor) OpenSockFromType(a *aico.AICO, stream bool) error {
	var (
		fd  int
		err error
	)
	if stream {
		fd, err = doSocketStream()
	} else {
		fd, err = doSocketDgram()
	}
	if err != nil {
		return err
	}
	if !a.Open(aico.KindSocket, fd) {
		closeFD(fd)
		return xerr.ErrBadState
	}
	return nil
}

// OpenFile binds an already-open file descriptor to a.
func (p *Proactor) OpenFile(a *aico.AICO, fd int) error {
	if !a.Open(aico.KindFile, fd) {
		return xerr.ErrBadState
	}
	return nil
}

// taskHandleTag is the sentinel Handle() value used for KindTask AICOs,
// which have no OS descriptor.
const taskHandleTag = -1

// OpenTask binds a as a pure RUNTASK endpoint (no socket or file backing).
func (p *Proactor) OpenTask(a *aico.AICO) error {
	if !a.Open(aico.KindTask, taskHandleTag) {
		return xerr.ErrBadState
	}
	return nil
}

// Post submits e for asynchronous execution against e.AICO, per spec.md
// §4.7's aicp_post state machine. Posting to an AICO that is already KILLED
// synthesizes an immediate KILLED completion rather than erroring (the Open
// Question §5.2 resolution); posting to any other non-OPENED state is
// rejected with ErrBadState.
func (p *Proactor) Post(e *aico.AICE) error {
	if atomic.LoadInt32(&p.closed) != 0 {
		return xerr.ErrClosed
	}
	if e.AICO == nil {
		return xerr.ErrBadState
	}
	if e.AICO.State() == aico.StateKilled {
		e.State = aico.Killed
		return p.enqueue(e)
	}
	if !e.AICO.CAS(aico.StateOpened, aico.StatePending) {
		return xerr.ErrBadState
	}
	if err := p.enqueue(e); err != nil {
		if err == xerr.ErrQueueFull {
			// nothing was queued: reopen the AICO so the post can be retried.
			e.AICO.CAS(aico.StatePending, aico.StateOpened)
		}
		return err
	}
	return nil
}

// PostAfter schedules e to be posted once delay elapses, the Go realization
// of aicp_post_after: a high-precision timer task that performs the normal
// Post when it fires. delay <= 0 is identical to Post, per spec.md §4.7.
func (p *Proactor) PostAfter(delay time.Duration, e *aico.AICE) error {
	if atomic.LoadInt32(&p.closed) != 0 {
		return xerr.ErrClosed
	}
	if delay <= 0 {
		return p.Post(e)
	}
	task := p.htimer.TaskPost(delay, func(t *timer.Task, killed bool) {
		if killed {
			e.State = aico.Killed
			p.deliver(e)
			return
		}
		if err := p.Post(e); err != nil {
			e.State = aico.Failed
			e.Err = err
			p.deliver(e)
		}
	}, nil)
	_ = task
	return nil
}

func (p *Proactor) enqueue(e *aico.AICE) error {
	pri := priorityOf(e.Code)
	p.lock.Enter()
	err := p.spak[pri].Push(e)
	p.lock.Leave()
	if err != nil {
		return err
	}
	return p.reactor.Spak()
}

// AICOKill requests cancellation of a. An AICO with no in-flight operation
// transitions straight to KILLED; one with an in-flight operation moves to
// KILLING and is parked on the killing list for the worker to force to
// completion with state=KILLED between reactor waits, per spec.md §3.
func (p *Proactor) AICOKill(a *aico.AICO) {
	if a.CAS(aico.StateOpened, aico.StateKilled) {
		return
	}
	if a.CAS(aico.StatePending, aico.StateKilling) {
		p.lock.Enter()
		p.killing.add(a)
		p.lock.Leave()
		p.reactor.Spak()
	}
}

// AICOExit waits (bounded by timeout) for a to reach CLOSED/KILLED and
// returns it to the pool. timeout <= 0 means "poll once, don't wait".
func (p *Proactor) AICOExit(a *aico.AICO, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		switch a.State() {
		case aico.StateClosed, aico.StateKilled:
			switch a.Kind() {
			case aico.KindSocket, aico.KindFile:
				closeFD(a.Handle())
			}
			p.lock.Enter()
			p.aicos.Free(a.Arena)
			p.lock.Leave()
			return nil
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return xerr.ErrNotClosed
		}
		time.Sleep(time.Millisecond)
	}
}

// Kill requests cancellation of every live AICO in the pool, the
// proactor-wide analogue of AICOKill used during shutdown.
func (p *Proactor) Kill() {
	var live []*aico.AICO
	p.lock.Enter()
	p.aicos.Walk(func(_ uint32, rec *aico.AICO) bool {
		live = append(live, rec)
		return true
	})
	p.lock.Leave()
	for _, a := range live {
		p.AICOKill(a)
	}
}

// WaitAll blocks (bounded by timeout) until every AICO has been returned to
// the pool via AICOExit, or returns ErrTimeout.
func (p *Proactor) WaitAll(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		p.lock.Enter()
		n := p.aicos.Size()
		p.lock.Leave()
		if n == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return xerr.ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// Exit shuts the proactor down: stops the worker loop, closes the reactor
// and timers. The caller should have already Kill()'d and WaitAll()'d any
// AICOs it cares about draining cleanly.
func (p *Proactor) Exit() error {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return nil
	}
	close(p.die)
	p.reactor.Kill()
	p.wg.Wait()
	p.htimer.Close()
	return p.reactor.Close()
}
