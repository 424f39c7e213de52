//go:build windows

package aicp

import (
	"net"

	"github.com/tboxorg/aicp/internal/xerr"
)

// This module does not implement a native IOCP backend. Every socket and
// file syscall below is a stand-in that returns xerr.ErrUnsupported, so
// socket and file operations fail on Windows; only task AICOs work there.

type sockaddrStub struct{}

func setNonblock(fd int) error                { return nil }
func closeFD(fd int) error                    { return xerr.ErrUnsupported }
func doAccept(fd int) (int, sockaddrStub, error) {
	return -1, sockaddrStub{}, xerr.ErrUnsupported
}
func doConnect(fd int, sa sockaddrStub) error    { return xerr.ErrUnsupported }
func connectInProgress(err error) bool           { return false }
func doRead(fd int, buf []byte) (int, error)     { return 0, xerr.ErrUnsupported }
func doWrite(fd int, buf []byte) (int, error)    { return 0, xerr.ErrUnsupported }
func doRecvfrom(fd int, buf []byte) (int, sockaddrStub, error) {
	return 0, sockaddrStub{}, xerr.ErrUnsupported
}
func doSendto(fd int, buf []byte, sa sockaddrStub) error { return xerr.ErrUnsupported }
func doPread(fd int, buf []byte, off int64) (int, error)  { return 0, xerr.ErrUnsupported }
func doPwrite(fd int, buf []byte, off int64) (int, error) { return 0, xerr.ErrUnsupported }
func doFsync(fd int) error                                { return xerr.ErrUnsupported }
func doSendfile(outFD, inFD int, off int64, count int) (int, error) {
	return 0, xerr.ErrUnsupported
}
func isAgain(err error) bool                              { return false }
func sockaddrToUDPAddr(sa sockaddrStub) net.Addr           { return nil }
func udpAddrToSockaddr(addr net.Addr) (sockaddrStub, error) {
	return sockaddrStub{}, xerr.ErrUnsupported
}
func addrToSockaddr(addr net.Addr) (sockaddrStub, error) {
	return sockaddrStub{}, xerr.ErrUnsupported
}
func doSocketStream() (int, error) { return -1, xerr.ErrUnsupported }
func doSocketDgram() (int, error)  { return -1, xerr.ErrUnsupported }
