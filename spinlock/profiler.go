//go:build tbdebug

package spinlock

import (
	"sync/atomic"
	"unsafe"

	"github.com/tboxorg/aicp/internal/xlog"
)

const maxProbe = 16

// slotCount is 512 by default, 256 in small-footprint builds, matching
// spec.md's §4.9 sizing and original_source's lock_profiler.h.
var slotCount = 512

// SmallFootprint shrinks the profiler table to 256 slots, mirroring the
// library's __tb_small__ build variant. It affects only profilers created
// by later NewProfiler calls.
func SmallFootprint() { slotCount = 256 }

type slot struct {
	addr     uintptr
	name     string
	occupied uint64
}

// Profiler is an open-addressed hash table keyed by lock address, recording
// contention counts for debug builds. It is diagnostic only: collisions
// that don't resolve within maxProbe slots are silently dropped.
type Profiler struct {
	slots []slot
}

// NewProfiler allocates a profiler table sized per SmallFootprint.
func NewProfiler() *Profiler {
	return &Profiler{slots: make([]slot, slotCount)}
}

func (p *Profiler) index(addr uintptr) int {
	// murmur3 fmix64-style mix of the pointer value, then reduced modulo
	// the table size.
	h := uint64(addr)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return int(h % uint64(len(p.slots)))
}

// Register installs a human-readable name for the lock at addr, probing up
// to maxProbe slots for an empty one.
func (p *Profiler) Register(addr uintptr, name string) {
	i := p.index(addr)
	for n := 0; n < maxProbe; n++ {
		idx := (i + n) % len(p.slots)
		if p.slots[idx].addr == 0 || p.slots[idx].addr == addr {
			p.slots[idx].addr = addr
			p.slots[idx].name = name
			return
		}
	}
	// table full for this bucket; diagnostic data point lost, as specified.
}

// Occupied increments the contention counter for the slot matching addr,
// probing up to maxProbe slots.
func (p *Profiler) Occupied(addr uintptr) {
	i := p.index(addr)
	for n := 0; n < maxProbe; n++ {
		idx := (i + n) % len(p.slots)
		if p.slots[idx].addr == addr {
			p.slots[idx].occupied++
			return
		}
		if p.slots[idx].addr == 0 {
			return
		}
	}
}

// Count returns the contention counter recorded for addr, or 0 if addr was
// never registered or never reported as occupied.
func (p *Profiler) Count(addr uintptr) uint64 {
	i := p.index(addr)
	for n := 0; n < maxProbe; n++ {
		idx := (i + n) % len(p.slots)
		if p.slots[idx].addr == addr {
			return p.slots[idx].occupied
		}
		if p.slots[idx].addr == 0 {
			return 0
		}
	}
	return 0
}

// Dump logs every non-empty slot at Debug level.
func (p *Profiler) Dump() {
	log := xlog.L()
	for _, s := range p.slots {
		if s.addr == 0 {
			continue
		}
		log.Debug().
			Str("lock", s.name).
			Uint64("occupied", s.occupied).
			Msg("spinlock contention")
	}
}

var current atomic.Pointer[Profiler]

// EnableProfiler installs p as the process-wide lock profiler; every
// SpinLock.Enter/TryEnter contention event is then recorded against it.
// Intended for debug builds and tests, not production hot paths.
func EnableProfiler(p *Profiler) { current.Store(p) }

// DisableProfiler removes the installed profiler, returning Enter/TryEnter
// to their zero-overhead form.
func DisableProfiler() { current.Store(nil) }

// CurrentProfiler returns the installed profiler, or nil.
func CurrentProfiler() *Profiler { return current.Load() }

func reportOccupied(s *SpinLock) {
	p := current.Load()
	if p == nil {
		return
	}
	addr := uintptr(unsafe.Pointer(s))
	if s.name != "" {
		p.Register(addr, s.name)
	}
	p.Occupied(addr)
}
