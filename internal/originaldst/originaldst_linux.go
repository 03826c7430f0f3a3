//go:build linux

// Package originaldst recovers the pre-NAT destination of a redirected
// TCP connection via SO_ORIGINAL_DST (spec §4.G SSH loop-detection
// branch). On Linux this consults the kernel's netfilter redirection
// table; everywhere else Get reports ErrUnsupported and the caller
// falls back to a configured default route.
package originaldst

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Get returns the original destination address a redirected connection
// was headed to before iptables/nftables REDIRECT rewrote it, using
// SO_ORIGINAL_DST. conn must wrap a *net.TCPConn.
func Get(conn net.Conn) (*net.TCPAddr, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil, ErrUnsupported
	}

	sysConn, err := tcpConn.SyscallConn()
	if err != nil {
		return nil, err
	}

	var addr *net.TCPAddr
	var sockErr error
	ctrlErr := sysConn.Control(func(fd uintptr) {
		addr, sockErr = getOriginalDst(int(fd))
	})
	if ctrlErr != nil {
		return nil, ctrlErr
	}
	if sockErr != nil {
		return nil, sockErr
	}
	return addr, nil
}

func getOriginalDst(fd int) (*net.TCPAddr, error) {
	// Try IPv4 first, then IPv6; a socket only accepts the getsockopt
	// call matching its address family.
	if addr, err := getOriginalDst4(fd); err == nil {
		return addr, nil
	}
	return getOriginalDst6(fd)
}

func getOriginalDst4(fd int) (*net.TCPAddr, error) {
	raw, err := unix.GetsockoptIPv6Mreq(fd, syscall.IPPROTO_IP, unix.SO_ORIGINAL_DST)
	if err != nil {
		return nil, err
	}
	// SO_ORIGINAL_DST on IPv4 fills a struct sockaddr_in laid out as:
	// family(2) port(2, network order) addr(4) padding. GetsockoptIPv6Mreq
	// passes a 20-byte buffer (16-byte Multiaddr plus a 4-byte interface
	// index); the kernel writes the 16-byte sockaddr_in into Multiaddr.
	b := raw.Multiaddr
	port := int(b[2])<<8 | int(b[3])
	ip := net.IPv4(b[4], b[5], b[6], b[7])
	return &net.TCPAddr{IP: ip, Port: port}, nil
}

func getOriginalDst6(fd int) (*net.TCPAddr, error) {
	// Netfilter exposes the same SO_ORIGINAL_DST optname under
	// IPPROTO_IPV6 for IPv6-redirected sockets.
	addr, err := unix.GetsockoptIPv6MTUInfo(fd, syscall.IPPROTO_IPV6, unix.SO_ORIGINAL_DST)
	if err != nil {
		return nil, err
	}
	ip := net.IP(addr.Addr.Addr[:])
	// Port is written by the kernel in network byte order; RawSockaddrInet6
	// exposes it as a native uint16, so swap bytes back to host order.
	rawPort := addr.Addr.Port
	port := int(rawPort>>8) | int(rawPort&0xff)<<8
	return &net.TCPAddr{IP: ip, Port: port}, nil
}
