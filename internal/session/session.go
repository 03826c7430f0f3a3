// Package session defines the proxy's ephemeral per-connection data
// model (spec §3): the RoutingKey a name-extraction step produces, and
// the TcpSession/UdpSession lifetimes built around it.
package session

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"sniproxy/internal/protocol"
)

// RoutingKey is the (host, port) pair a name-extraction step resolves to.
// Host is always lowercased for comparison.
type RoutingKey struct {
	Host string
	Port uint16
}

// NewRoutingKey lowercases host and applies the protocol's default port
// when no explicit port was parsed from the Host header, :authority, or
// ClientHello-adjacent source.
func NewRoutingKey(host string, port uint16, hasPort bool, proto protocol.Protocol) RoutingKey {
	if !hasPort || port == 0 {
		port = proto.DefaultPort()
	}
	return RoutingKey{Host: strings.ToLower(host), Port: port}
}

// Addr renders the routing key as a dial target ("host:port").
func (k RoutingKey) Addr() string {
	return net.JoinHostPort(k.Host, strconv.FormatUint(uint64(k.Port), 10))
}

// TcpSession tracks the owned sockets and bookkeeping for one accepted
// TCP connection (spec §3). It is created on accept and destroyed when
// either direction closes, the idle timeout fires, shutdown arrives, or
// admission is rejected.
type TcpSession struct {
	Client   net.Conn
	Upstream net.Conn // nil until dialed
	Key      RoutingKey
	Protocol protocol.Protocol
	Started  time.Time

	TxBytes int64 // client -> upstream
	RxBytes int64 // upstream -> client

	released bool
	release  func()
	mu       sync.Mutex
}

// NewTcpSession creates a session wrapping an accepted client socket. The
// release func is invoked exactly once, by Release, to return the
// admission permit.
func NewTcpSession(client net.Conn, release func()) *TcpSession {
	return &TcpSession{
		Client:  client,
		Started: time.Now(),
		release: release,
	}
}

// Release returns the admission permit exactly once, satisfying the
// invariant that every accepted socket releases its permit exactly once
// regardless of which exit path is taken (spec §4.G, §8).
func (s *TcpSession) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	if s.release != nil {
		s.release()
	}
}

// Close tears down both owned sockets. Safe to call multiple times.
func (s *TcpSession) Close() {
	if s.Client != nil {
		s.Client.Close()
	}
	if s.Upstream != nil {
		s.Upstream.Close()
	}
}

// UdpSession tracks one client-address session on the UDP/QUIC forwarder
// (spec §3). Sessions live in a concurrent map keyed by client address.
type UdpSession struct {
	ClientAddr   net.Addr
	Upstream     *net.UDPConn
	UpstreamAddr *net.UDPAddr
	Protocol     protocol.Protocol
	Host         string

	lastActivity atomic
	TxBytes      int64
	RxBytes      int64

	cancel func()
}

// Touch refreshes the session's last-activity instant.
func (s *UdpSession) Touch() {
	s.lastActivity.store(time.Now())
}

// IdleSince reports how long it has been since the last datagram.
func (s *UdpSession) IdleSince() time.Duration {
	return time.Since(s.lastActivity.load())
}

// Stop cancels the session's background reader and closes its upstream
// socket.
func (s *UdpSession) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.Upstream != nil {
		s.Upstream.Close()
	}
}

// atomic is a tiny mutex-guarded time.Time box; avoids a dependency on
// atomic.Value's interface{} boxing for a single hot field shared between
// the forwarder's receive loop and the session's background reader.
type atomic struct {
	mu sync.Mutex
	t  time.Time
}

func (a *atomic) store(t time.Time) {
	a.mu.Lock()
	a.t = t
	a.mu.Unlock()
}

func (a *atomic) load() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t
}

// NewUdpSession creates a session with its last-activity instant set to
// now.
func NewUdpSession(clientAddr net.Addr, upstream *net.UDPConn, upstreamAddr *net.UDPAddr, proto protocol.Protocol, host string, cancel func()) *UdpSession {
	s := &UdpSession{
		ClientAddr:   clientAddr,
		Upstream:     upstream,
		UpstreamAddr: upstreamAddr,
		Protocol:     proto,
		Host:         host,
		cancel:       cancel,
	}
	s.Touch()
	return s
}

// Map is a concurrent client-address-keyed session table (spec §3, §5):
// insert_if_absent, get_mut_refresh, and remove, plus SweepIdle (a bulk
// remove of idle sessions), are its only mutating operations.
type Map struct {
	mu       sync.RWMutex
	sessions map[string]*UdpSession
	max      int
}

// NewMap creates a session map accepting at most max concurrent sessions
// (0 means unlimited).
func NewMap(max int) *Map {
	return &Map{sessions: make(map[string]*UdpSession), max: max}
}

// Get returns the session for addr, if any, refreshing its activity.
func (m *Map) Get(addr string) (*UdpSession, bool) {
	m.mu.RLock()
	s, ok := m.sessions[addr]
	m.mu.RUnlock()
	if ok {
		s.Touch()
	}
	return s, ok
}

// InsertIfAbsent adds a new session for addr unless one already exists or
// the map is already at capacity. ok is false in either case.
func (m *Map) InsertIfAbsent(addr string, s *UdpSession) (ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[addr]; exists {
		return false
	}
	if m.max > 0 && len(m.sessions) >= m.max {
		return false
	}
	m.sessions[addr] = s
	return true
}

// Remove deletes the session for addr, if present.
func (m *Map) Remove(addr string) {
	m.mu.Lock()
	delete(m.sessions, addr)
	m.mu.Unlock()
}

// Len reports the current session count.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SweepIdle removes every session that has been idle for longer than
// maxIdle and returns them, so the caller can Stop each one after
// releasing the map lock.
func (m *Map) SweepIdle(maxIdle time.Duration) []*UdpSession {
	var expired []*UdpSession
	m.mu.Lock()
	for addr, s := range m.sessions {
		if s.IdleSince() > maxIdle {
			expired = append(expired, s)
			delete(m.sessions, addr)
		}
	}
	m.mu.Unlock()
	return expired
}
