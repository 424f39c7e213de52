//go:build !windows

package aicp

import (
	"net"

	"golang.org/x/sys/unix"
)

func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

func closeFD(fd int) error {
	return unix.Close(fd)
}

func doAccept(fd int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	return nfd, sa, err
}

func doConnect(fd int, sa unix.Sockaddr) error {
	return unix.Connect(fd, sa)
}

// connectInProgress reports whether err from a non-blocking connect means "still
// in progress, wait for writability" rather than a real failure.
func connectInProgress(err error) bool {
	return err == unix.EINPROGRESS || err == unix.EALREADY
}

func doRead(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

func doWrite(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

func doRecvfrom(fd int, buf []byte) (int, unix.Sockaddr, error) {
	return unix.Recvfrom(fd, buf, 0)
}

func doSendto(fd int, buf []byte, sa unix.Sockaddr) error {
	return unix.Sendto(fd, buf, 0, sa)
}

func doPread(fd int, buf []byte, off int64) (int, error) {
	return unix.Pread(fd, buf, off)
}

func doPwrite(fd int, buf []byte, off int64) (int, error) {
	return unix.Pwrite(fd, buf, off)
}

func doFsync(fd int) error {
	return unix.Fsync(fd)
}

func doSendfile(outFD, inFD int, off int64, count int) (int, error) {
	o := off
	return unix.Sendfile(outFD, inFD, &o, count)
}

// isAgain reports whether err is the "would block" signal that means a
// transient readiness misfire: the kernel reported readable/writable but
// the syscall returned EAGAIN. Per spec.md §7, this is locally absorbed by
// re-arming the reactor and continuing, never surfaced to the caller.
func isAgain(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// sockaddrToUDPAddr and udpAddrToSockaddr bridge net.Addr (the public AICE
// peer-address type) and unix.Sockaddr (what Recvfrom/Sendto need), for the
// datagram op codes (URECV/USEND/URECVV/USENDV).
func sockaddrToUDPAddr(sa unix.Sockaddr) net.Addr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: append([]byte(nil), s.Addr[:]...), Port: s.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: append([]byte(nil), s.Addr[:]...), Port: s.Port}
	default:
		return nil
	}
}

func udpAddrToSockaddr(addr net.Addr) (unix.Sockaddr, error) {
	ua, ok := addr.(*net.UDPAddr)
	if !ok {
		if host, ok2 := addr.(interface{ AddrPort() (net.IP, int) }); ok2 {
			ip, port := host.AddrPort()
			ua = &net.UDPAddr{IP: ip, Port: port}
		}
	}
	if ua == nil {
		return nil, errUnsupportedAddr
	}
	return ipPortToSockaddr(ua.IP, ua.Port)
}

// addrToSockaddr converts a CONN target (*net.TCPAddr, or anything else
// net.Dial would accept) to a raw sockaddr for doConnect.
func addrToSockaddr(addr net.Addr) (unix.Sockaddr, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return ipPortToSockaddr(a.IP, a.Port)
	case *net.UDPAddr:
		return ipPortToSockaddr(a.IP, a.Port)
	default:
		return nil, errUnsupportedAddr
	}
}

func ipPortToSockaddr(ip net.IP, port int) (unix.Sockaddr, error) {
	if ip4 := ip.To4(); ip4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = port
		copy(sa.Addr[:], ip4)
		return &sa, nil
	}
	if ip16 := ip.To16(); ip16 != nil {
		var sa unix.SockaddrInet6
		sa.Port = port
		copy(sa.Addr[:], ip16)
		return &sa, nil
	}
	return nil, errUnsupportedAddr
}

// doSocketStream/doSocketDgram create a fresh non-blocking AF_INET socket,
// for OpenSockFromType — the "create a brand-new socket" counterpart to
// OpenSock's "wrap a fd I already have".
func doSocketStream() (int, error) {
	return unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
}

func doSocketDgram() (int, error) {
	return unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
}
