package aico

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenRequiresClosed(t *testing.T) {
	a := New()
	require.Equal(t, StateClosed, a.State())

	require.True(t, a.Open(KindSocket, 7))
	require.Equal(t, StateOpened, a.State())
	require.Equal(t, KindSocket, a.Kind())
	require.Equal(t, 7, a.Handle())

	require.False(t, a.Open(KindSocket, 9), "re-opening an already-opened AICO must fail")
}

func TestCASWalksFullLifecycle(t *testing.T) {
	a := New()
	require.True(t, a.Open(KindSocket, 1))

	require.True(t, a.CAS(StateOpened, StatePending))
	require.False(t, a.CAS(StateOpened, StatePending), "stale from-state must fail")

	require.True(t, a.CAS(StatePending, StateOpened))
	require.True(t, a.CAS(StateOpened, StateKilling))
	require.True(t, a.CAS(StateKilling, StateKilled))
	require.Equal(t, StateKilled, a.State())
}

func TestResetRestoresClosedAndClearsTimeouts(t *testing.T) {
	a := New()
	a.Open(KindFile, 3)
	a.SetTimeout(TimeoutRecv, 500)
	a.DebugFile = "x.go"

	a.Reset()
	require.Equal(t, StateClosed, a.State())
	require.Equal(t, KindNone, a.Kind())
	require.Equal(t, 0, a.Handle())
	require.Equal(t, NoTimeout, a.Timeout(TimeoutRecv))
	require.Equal(t, "", a.DebugFile)
}

func TestTimeoutGetSet(t *testing.T) {
	a := New()
	require.Equal(t, NoTimeout, a.Timeout(TimeoutSend))
	a.SetTimeout(TimeoutSend, 1500)
	require.EqualValues(t, 1500, a.Timeout(TimeoutSend))
}

func TestTimeoutForCode(t *testing.T) {
	cases := []struct {
		code OpCode
		idx  TimeoutIndex
		ok   bool
	}{
		{OpConn, TimeoutConn, true},
		{OpSend, TimeoutSend, true},
		{OpUSendV, TimeoutSend, true},
		{OpSendF, TimeoutSend, true},
		{OpRecv, TimeoutRecv, true},
		{OpURecvV, TimeoutRecv, true},
		{OpAcpt, TimeoutAccept, true},
		{OpRead, 0, false},
		{OpRunTask, 0, false},
		{OpClos, 0, false},
	}
	for _, c := range cases {
		idx, ok := TimeoutForCode(c.code)
		require.Equal(t, c.ok, ok, c.code.String())
		if ok {
			require.Equal(t, c.idx, idx, c.code.String())
		}
	}
}

func TestKindAndStateStrings(t *testing.T) {
	require.Equal(t, "socket", KindSocket.String())
	require.Equal(t, "file", KindFile.String())
	require.Equal(t, "task", KindTask.String())
	require.Equal(t, "none", KindNone.String())

	require.Equal(t, "CLOSED", StateClosed.String())
	require.Equal(t, "KILLED", StateKilled.String())
}
