package singleton

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstanceInitializesOnce(t *testing.T) {
	r := NewRegistry()
	var inits int32

	init := func(priv *any) any {
		inits++
		return "service"
	}

	var wg sync.WaitGroup
	results := make([]any, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Instance(TypeUser, init, nil, nil, nil)
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, inits)
	for _, got := range results {
		require.Equal(t, "service", got)
	}
}

func TestInstanceFailedInitAllowsRetry(t *testing.T) {
	r := NewRegistry()
	calls := 0
	init := func(priv *any) any {
		calls++
		if calls == 1 {
			return nil
		}
		return "ok"
	}

	first := r.Instance(TypeUser, init, nil, nil, nil)
	require.Nil(t, first)

	second := r.Instance(TypeUser, init, nil, nil, nil)
	require.Equal(t, "ok", second)
}

func TestKillThenExitWalksReverseOrder(t *testing.T) {
	r := NewRegistry()
	var order, exitOrder []Type

	mk := func(typ Type) (InitFunc, KillFunc, ExitFunc) {
		return func(priv *any) any {
				return typ
			}, func(instance any, priv any) {
				order = append(order, instance.(Type))
			}, func(instance any, priv any) {
				exitOrder = append(exitOrder, instance.(Type))
			}
	}

	initA, killA, exitA := mk(TypeRandom)
	initB, killB, exitB := mk(TypeTimer)
	r.Instance(TypeRandom, initA, exitA, killA, nil)
	r.Instance(TypeTimer, initB, exitB, killB, nil)

	r.Kill()
	require.Equal(t, []Type{TypeTimer, TypeRandom}, order)

	r.Exit()
	require.Equal(t, []Type{TypeTimer, TypeRandom}, exitOrder)
}

func TestStaticInstanceInitsOnce(t *testing.T) {
	var inited int32
	var calls int
	ok := StaticInstance(&inited, "x", func(instance any, priv any) bool {
		calls++
		return true
	}, nil)
	require.True(t, ok)
	ok = StaticInstance(&inited, "x", func(instance any, priv any) bool {
		calls++
		return true
	}, nil)
	require.True(t, ok)
	require.Equal(t, 1, calls)
}

func TestRegistrySmallHasFewerSlots(t *testing.T) {
	r := NewRegistrySmall()
	require.Len(t, r.slots, MaxSlotsSmall)
	full := NewRegistry()
	require.Len(t, full.slots, MaxSlots)
}
