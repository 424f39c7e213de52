package aico

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAICEResetClearsEverything(t *testing.T) {
	a := New()
	e := &AICE{
		Code:    OpSend,
		State:   Failed,
		AICO:    a,
		UserPtr: "ctx",
		Err:     errors.New("boom"),
		Real:    12,
		Buffer:  []byte("hi"),
		Offset:  4,
	}
	e.Reset()

	require.Equal(t, OpAcpt, e.Code, "zero value of OpCode is OpAcpt")
	require.Equal(t, CompletionState(0), e.State)
	require.Nil(t, e.AICO)
	require.Nil(t, e.UserPtr)
	require.Nil(t, e.Err)
	require.Equal(t, 0, e.Real)
	require.Nil(t, e.Buffer)
}

func TestCompletionStateString(t *testing.T) {
	require.Equal(t, "OK", OK.String())
	require.Equal(t, "CLOSED", Closed.String())
	require.Equal(t, "KILLED", Killed.String())
	require.Equal(t, "TIMEOUT", Timeout.String())
	require.Equal(t, "FAILED", Failed.String())
	require.Equal(t, "PENDING", CompletionState(0).String())
}

func TestOpCodeClassification(t *testing.T) {
	require.True(t, OpRecv.IsSocketOp())
	require.False(t, OpRecv.IsFileOp())

	require.True(t, OpRead.IsFileOp())
	require.False(t, OpRead.IsSocketOp())

	require.True(t, OpSendF.IsSocketOp())
	require.True(t, OpSendF.IsFileOp(), "SENDF reads from a file AICO and writes to a socket AICO")

	require.False(t, OpRunTask.IsSocketOp())
	require.False(t, OpRunTask.IsFileOp())
	require.False(t, OpClos.IsSocketOp())
}

func TestOpCodeString(t *testing.T) {
	require.Equal(t, "ACPT", OpAcpt.String())
	require.Equal(t, "RUNTASK", OpRunTask.String())
	require.Equal(t, "CLOS", OpClos.String())
	require.Equal(t, "UNKNOWN", OpCode(999).String())
}
