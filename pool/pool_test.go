package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	id   int
	ctor int
	dtor int
}

func TestMallocFreeReuse(t *testing.T) {
	var ctorCalls, dtorCalls int
	p := New[record](4, func(r *record) { ctorCalls++ }, func(r *record) { dtorCalls++ }, nil)

	rec, idx := p.Malloc()
	rec.id = 1
	require.Equal(t, 1, ctorCalls)
	require.Equal(t, 1, p.Size())

	p.Free(idx)
	require.Equal(t, 1, dtorCalls)
	require.Equal(t, 0, p.Size())

	rec2, idx2 := p.Malloc()
	require.Equal(t, idx, idx2, "freed slot should be reused before growing")
	require.Equal(t, 2, ctorCalls)
	rec2.id = 2
}

func TestGrowsAcrossSlabs(t *testing.T) {
	p := New[record](2, nil, nil, nil)
	var idxs []uint32
	for i := 0; i < 5; i++ {
		_, idx := p.Malloc()
		idxs = append(idxs, idx)
	}
	require.Equal(t, 5, p.Size())
	seen := map[uint32]bool{}
	for _, idx := range idxs {
		require.False(t, seen[idx], "index reused while still live")
		seen[idx] = true
	}
}

func TestWalkVisitsOnlyLive(t *testing.T) {
	p := New[record](4, nil, nil, nil)
	_, idx1 := p.Malloc()
	_, idx2 := p.Malloc()
	p.Free(idx1)

	var visited []uint32
	p.Walk(func(idx uint32, rec *record) bool {
		visited = append(visited, idx)
		return true
	})
	require.Equal(t, []uint32{idx2}, visited)
}

func TestDoubleFreeIsNoop(t *testing.T) {
	var dtorCalls int
	p := New[record](4, nil, func(r *record) { dtorCalls++ }, nil)
	_, idx := p.Malloc()
	p.Free(idx)
	p.Free(idx)
	require.Equal(t, 1, dtorCalls)
}

func TestClearAndExit(t *testing.T) {
	p := New[record](4, nil, nil, nil)
	for i := 0; i < 3; i++ {
		p.Malloc()
	}
	p.Clear()
	require.Equal(t, 0, p.Size())
	p.Exit()
}
