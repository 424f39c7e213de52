package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWheelTaskFiresAfterDelay(t *testing.T) {
	if testing.Short() {
		t.Skip("1-second wheel granularity is slow under -short")
	}
	w := NewWheelTimer()
	stop := make(chan struct{})
	go w.Loop(stop)
	defer close(stop)

	fired := make(chan bool, 1)
	w.TaskInit(1, false, func(tk *LTask, killed bool) {
		fired <- killed
	}, nil)

	select {
	case killed := <-fired:
		require.False(t, killed)
	case <-time.After(3 * time.Second):
		t.Fatal("wheel task never fired")
	}
}

func TestWheelTaskKillForcesCallback(t *testing.T) {
	if testing.Short() {
		t.Skip("1-second wheel granularity is slow under -short")
	}
	w := NewWheelTimer()
	stop := make(chan struct{})
	go w.Loop(stop)
	defer close(stop)

	fired := make(chan bool, 1)
	task := w.TaskInit(3600, false, func(tk *LTask, killed bool) {
		fired <- killed
	}, nil)

	w.TaskKill(task)
	select {
	case killed := <-fired:
		require.True(t, killed)
	case <-time.After(3 * time.Second):
		t.Fatal("killed wheel task never fired")
	}
}

func TestWheelLenTracksScheduled(t *testing.T) {
	w := NewWheelTimer()
	require.Equal(t, 0, w.Len())

	task := w.TaskInit(10, false, func(tk *LTask, killed bool) {}, nil)
	require.Equal(t, 1, w.Len())

	w.TaskExit(task)
	require.Equal(t, 0, w.Len())
}

func TestWheelTaskPriv(t *testing.T) {
	w := NewWheelTimer()
	task := w.TaskInit(10, false, func(tk *LTask, killed bool) {}, "payload")
	require.Equal(t, "payload", task.Priv())
}
