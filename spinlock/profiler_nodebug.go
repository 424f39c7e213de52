//go:build !tbdebug

package spinlock

// Profiler is the non-debug stand-in for the tbdebug-only contention
// table: every method is a no-op so SpinLock's profiler hooks compile to
// nothing and Enter/TryEnter stay at their zero-overhead, unconditional-CAS
// cost, matching the C library's `#ifdef TB_LOCK_PROFILER_ENABLE` guard.
type Profiler struct{}

// SmallFootprint is a no-op outside tbdebug builds.
func SmallFootprint() {}

// NewProfiler returns a Profiler whose methods all no-op.
func NewProfiler() *Profiler { return &Profiler{} }

// Register is a no-op outside tbdebug builds.
func (p *Profiler) Register(addr uintptr, name string) {}

// Occupied is a no-op outside tbdebug builds.
func (p *Profiler) Occupied(addr uintptr) {}

// Count always returns 0 outside tbdebug builds.
func (p *Profiler) Count(addr uintptr) uint64 { return 0 }

// Dump is a no-op outside tbdebug builds.
func (p *Profiler) Dump() {}

// EnableProfiler is a no-op outside tbdebug builds: there is nothing to
// install p into, since reportOccupied itself compiles to nothing below.
func EnableProfiler(p *Profiler) {}

// DisableProfiler is a no-op outside tbdebug builds.
func DisableProfiler() {}

// CurrentProfiler always returns nil outside tbdebug builds.
func CurrentProfiler() *Profiler { return nil }

func reportOccupied(s *SpinLock) {}
