package spinlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpinLockMutualExclusion(t *testing.T) {
	var lock SpinLock
	lock.Init("test")

	var counter int64
	var wg sync.WaitGroup
	const goroutines = 32
	const iterations = 1000

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				lock.Enter()
				counter++
				lock.Leave()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(goroutines*iterations), counter)
}

func TestSpinLockTryEnter(t *testing.T) {
	var lock SpinLock
	lock.Init("test")

	require.True(t, lock.TryEnter())
	require.False(t, lock.TryEnter())
	lock.Leave()
	require.True(t, lock.TryEnter())
	lock.Leave()
}
