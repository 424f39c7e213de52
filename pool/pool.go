// Package pool implements the fixed-size object pool spec.md §4.3
// describes: O(1) allocate/free of equal-sized records with optional
// iteration, backed by a chain of slabs and a free list. It is the Go
// generic realization of the slab + free-list + liveness-bit pattern found
// in cloudwego-gopkg's unsafex/malloc.BuddyAllocator (arena + per-order free
// lists) and cache/mempool.memPool (size-classed sync.Pool with a
// liveness-tagging footer), simplified to TBox's case: every record handed
// out by a given Pool[T] is exactly sizeof(T), so no buddy coalescing or
// size-class bucketing is needed, only a single free list per pool.
package pool

// DefaultGrow and DefaultGrowSmall mirror the library default slab sizes:
// 256 records per slab normally, 16 in small-footprint builds.
const (
	DefaultGrow      = 256
	DefaultGrowSmall = 16
)

// Pool allocates and recycles fixed-size T records in slabs of grow items.
// It is not internally synchronized: per spec.md §4.3, the caller holds the
// enclosing lock (in this module, always the AICP's spinlock).
type Pool[T any] struct {
	grow  int
	ctor  func(*T)
	dtor  func(*T)
	udata any

	slabs [][]T
	live  [][]bool // live[slabIdx][offset]
	free  []uint32 // stack of packed (slabIdx<<20 | offset) global indices
	count int
}

// New creates a pool growing by grow items per slab (0 resolves to
// DefaultGrow). ctor is invoked once per record on first allocation from a
// fresh slab slot is not guaranteed — ctor/dtor instead bracket every
// Malloc/Free pair, matching the library's per-use construct/destruct hooks
// used by AICO and AICE record pools.
func New[T any](grow int, ctor, dtor func(*T), udata any) *Pool[T] {
	if grow <= 0 {
		grow = DefaultGrow
	}
	return &Pool[T]{grow: grow, ctor: ctor, dtor: dtor, udata: udata}
}

func (p *Pool[T]) growSlab() {
	p.slabs = append(p.slabs, make([]T, p.grow))
	p.live = append(p.live, make([]bool, p.grow))
	slabIdx := uint32(len(p.slabs) - 1)
	// push free slots in reverse so index 0 of the new slab is handed out
	// first, keeping allocation order predictable for tests.
	for off := p.grow - 1; off >= 0; off-- {
		p.free = append(p.free, pack(slabIdx, uint32(off)))
	}
}

func pack(slab, off uint32) uint32 {
	// Packing assumes grow <= 1<<20 and slab count <= 1<<12, ample for any
	// realistic AICP pool; exceeding it is a configuration error rather
	// than a runtime one, same as the library's tb_size_t handle space.
	return slab<<20 | off
}

func unpack(idx uint32) (slab, off uint32) {
	return idx >> 20, idx & (1<<20 - 1)
}

// Malloc returns a pointer into the pool's backing slab plus its stable
// index (for Free), without zeroing the record's prior contents.
func (p *Pool[T]) Malloc() (*T, uint32) {
	if len(p.free) == 0 {
		p.growSlab()
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	slab, off := unpack(idx)
	p.live[slab][off] = true
	p.count++
	rec := &p.slabs[slab][off]
	if p.ctor != nil {
		p.ctor(rec)
	}
	return rec, idx
}

// MallocZero is Malloc followed by zeroing the record.
func (p *Pool[T]) MallocZero() (*T, uint32) {
	rec, idx := p.Malloc()
	var zero T
	*rec = zero
	return rec, idx
}

// Free returns idx to the free list, invoking dtor first.
func (p *Pool[T]) Free(idx uint32) {
	slab, off := unpack(idx)
	if !p.live[slab][off] {
		return // double-free guarded against, matching the library's assert-in-debug posture loosely
	}
	if p.dtor != nil {
		p.dtor(&p.slabs[slab][off])
	}
	p.live[slab][off] = false
	p.free = append(p.free, idx)
	p.count--
}

// At returns the record for idx without affecting liveness or refcounts.
func (p *Pool[T]) At(idx uint32) *T {
	slab, off := unpack(idx)
	return &p.slabs[slab][off]
}

// Walk visits every live record; visitor returning false stops iteration.
func (p *Pool[T]) Walk(visitor func(idx uint32, rec *T) bool) {
	for s := range p.slabs {
		for o := range p.slabs[s] {
			if !p.live[s][o] {
				continue
			}
			if !visitor(pack(uint32(s), uint32(o)), &p.slabs[s][o]) {
				return
			}
		}
	}
}

// Size returns the number of currently-allocated (live) records.
func (p *Pool[T]) Size() int { return p.count }

// Clear frees every live record, invoking dtor on each.
func (p *Pool[T]) Clear() {
	p.Walk(func(idx uint32, _ *T) bool {
		p.Free(idx)
		return true
	})
}

// Exit releases all slabs. The pool must not be used afterward.
func (p *Pool[T]) Exit() {
	p.Clear()
	p.slabs = nil
	p.live = nil
	p.free = nil
}
