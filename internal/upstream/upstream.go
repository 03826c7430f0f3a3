// Package upstream resolves a routing key to a dialed TCP connection
// (spec §4.E). Grounded on the teacher's dialer pattern in
// internal/proxy/server.go and handler.go
// (&net.Dialer{Timeout: ...}.DialContext).
package upstream

import (
	"context"
	"net"
	"time"

	"sniproxy/internal/errs"
	"sniproxy/internal/session"
)

const op = "upstream.dial"

// DefaultConnectTimeout is used when Dialer.ConnectTimeout is zero.
const DefaultConnectTimeout = 10 * time.Second

// Dialer dials the upstream named by a RoutingKey, honoring a bounded
// connect timeout and an optional Nagle-disable setting.
type Dialer struct {
	// ConnectTimeout bounds the TCP handshake. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// DisableNagle sets TCP_NODELAY on the dialed socket when true.
	DisableNagle bool
}

// Dial resolves and connects to key.Addr(), returning a typed
// errs.KindUpstreamUnreachable error on any failure.
func (d Dialer) Dial(ctx context.Context, key session.RoutingKey) (net.Conn, error) {
	timeout := d.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(dialCtx, "tcp", key.Addr())
	if err != nil {
		return nil, errs.Wrap(op, errs.KindUpstreamUnreachable, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok && d.DisableNagle {
		_ = tcpConn.SetNoDelay(true)
	}

	return conn, nil
}
