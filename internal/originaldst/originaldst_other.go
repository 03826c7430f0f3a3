//go:build !linux

package originaldst

import "net"

// Get always reports ErrUnsupported outside Linux; callers fall back to
// the configured default route (spec §6 OS interface).
func Get(conn net.Conn) (*net.TCPAddr, error) {
	return nil, ErrUnsupported
}
