//go:build tbdebug

package spinlock

import (
	"runtime"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestSpinLockProfilerReportsContention(t *testing.T) {
	p := NewProfiler()
	EnableProfiler(p)
	defer DisableProfiler()

	var lock SpinLock
	lock.Init("contended")

	lock.Enter()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lock.Enter()
		lock.Leave()
	}()
	// hold the lock briefly so the second goroutine is forced to spin and
	// report itself to the profiler before we release it.
	for i := 0; i < 10000; i++ {
		runtime.Gosched()
	}
	lock.Leave()
	wg.Wait()

	require.Greater(t, p.Count(uintptr(unsafe.Pointer(&lock))), uint64(0))
}
