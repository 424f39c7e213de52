// Package testutil provides the loopback TCP/UDP harness shared by this
// module's test suites, grounded on socket515-gaio/aio_test.go's
// echoServer (net.Listen("tcp", "localhost:0") plus a raw-fd handoff).
package testutil

import (
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

// ListenTCP opens a loopback TCP listener on an ephemeral port.
func ListenTCP(t testing.TB) *net.TCPListener {
	t.Helper()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return ln
}

// ListenUDP opens a loopback UDP socket on an ephemeral port.
func ListenUDP(t testing.TB) *net.UDPConn {
	t.Helper()
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return c
}

// FD duplicates the raw OS descriptor behind sc via SyscallConn, the same
// dup-based handoff RTradeLtd-gaio/watcher.go's dupconn uses to let two
// owners (here: the test's *net.TCPConn and the AICP under test) close
// independently without a double-close. Production code in this module
// never needs this — AICO lifecycle is explicit — but the test harness
// hands raw fds to the proactor alongside net's own, so it still needs
// this trick.
func FD(t testing.TB, sc syscall.Conn) int {
	t.Helper()
	raw, err := sc.SyscallConn()
	require.NoError(t, err)
	var (
		dup int
		derr error
	)
	err = raw.Control(func(ufd uintptr) {
		dup, derr = syscall.Dup(int(ufd))
	})
	require.NoError(t, err)
	require.NoError(t, derr)
	return dup
}

// Pipe returns a connected client/server *net.TCPConn pair over loopback.
func Pipe(t testing.TB) (client, server *net.TCPConn) {
	t.Helper()
	ln := ListenTCP(t)
	defer ln.Close()

	accepted := make(chan *net.TCPConn, 1)
	go func() {
		c, err := ln.AcceptTCP()
		require.NoError(t, err)
		accepted <- c
	}()

	c, err := net.DialTCP("tcp", nil, ln.Addr().(*net.TCPAddr))
	require.NoError(t, err)
	return c, <-accepted
}
