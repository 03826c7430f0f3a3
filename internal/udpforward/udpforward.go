// Package udpforward implements the UDP/QUIC session forwarder (spec
// §4.H): one UDP socket per configured listen address, a client-address
// keyed session table, best-effort QUIC Initial SNI extraction, and a
// per-session background reader relaying upstream datagrams back to the
// client. Grounded on the teacher's accept-loop/session lifecycle shape
// in internal/proxy/server.go, adapted from TCP accept to UDP datagram
// dispatch since the teacher carries no UDP path of its own.
package udpforward

import (
	"context"
	"net"
	"time"

	"sniproxy/internal/allowlist"
	"sniproxy/internal/errs"
	"sniproxy/internal/metrics"
	"sniproxy/internal/protocol"
	"sniproxy/internal/session"
	"sniproxy/internal/tlsrecord"
	"sniproxy/internal/ui"
)

const (
	datagramBufferSize = 64 * 1024
	quicLongHeaderBit   = 0x80
	sweepEveryPackets   = 256
)

// Forwarder owns one bound UDP listen socket and its session table.
type Forwarder struct {
	Allowlist   []string
	IdleTimeout time.Duration
	MaxSessions int

	sock     *net.UDPConn
	sessions *session.Map
}

// New builds a Forwarder bound to addr. Unlike the TCP dialer, binding a
// new upstream UDP socket is connectionless and has no connect-timeout
// phase to bound.
func New(addr string, allowlistPatterns []string, idleTimeout time.Duration, maxSessions int) (*Forwarder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	sock, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Forwarder{
		Allowlist:   allowlistPatterns,
		IdleTimeout: idleTimeout,
		MaxSessions: maxSessions,
		sock:        sock,
		sessions:    session.NewMap(maxSessions),
	}, nil
}

// Addr reports the forwarder's bound local address.
func (f *Forwarder) Addr() net.Addr { return f.sock.LocalAddr() }

// Close closes the listening socket and every tracked session.
func (f *Forwarder) Close() {
	f.sock.Close()
	for _, s := range f.sessions.SweepIdle(-time.Hour * 24 * 365) {
		s.Stop()
	}
}

// Run reads datagrams until ctx is cancelled or the socket errors.
func (f *Forwarder) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		f.sock.Close()
	}()

	buf := make([]byte, datagramBufferSize)
	packets := 0
	for {
		n, clientAddr, err := f.sock.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if isTemporary(err) {
				continue
			}
			return
		}

		f.handleDatagram(ctx, clientAddr, append([]byte(nil), buf[:n]...))

		packets++
		if packets%sweepEveryPackets == 0 {
			f.sweep()
		}
	}
}

func (f *Forwarder) handleDatagram(ctx context.Context, clientAddr *net.UDPAddr, datagram []byte) {
	key := clientAddr.String()

	if sess, ok := f.sessions.Get(key); ok {
		metrics.BytesTransferredTotal.WithLabelValues(metrics.Default.HostProtocolLabel(sess.Host, sess.Protocol.String()), "tx").Add(float64(len(datagram)))
		if _, err := sess.Upstream.WriteToUDP(datagram, sess.UpstreamAddr); err != nil {
			metrics.ErrorsTotal.WithLabelValues("upstream", sess.Protocol.String()).Inc()
		}
		return
	}

	if !isQuicLongHeader(datagram) {
		return // silently dropped per spec §4.H step 2
	}

	sni, err := extractQuicSNI(datagram)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("sni_extraction", protocol.Http3.String()).Inc()
		return
	}

	if !allowlist.Allowed(sni, f.Allowlist) {
		metrics.ErrorsTotal.WithLabelValues("denied", protocol.Http3.String()).Inc()
		return
	}

	routingKey := session.NewRoutingKey(sni, 0, false, protocol.Http3)

	upstreamAddr, err := net.ResolveUDPAddr("udp", routingKey.Addr())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("upstream", protocol.Http3.String()).Inc()
		return
	}

	udpUpConn, err := net.DialUDP("udp", nil, upstreamAddr)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("upstream", protocol.Http3.String()).Inc()
		return
	}

	sessCtx, cancel := context.WithCancel(ctx)
	sess := session.NewUdpSession(clientAddr, udpUpConn, upstreamAddr, protocol.Http3, sni, cancel)

	if !f.sessions.InsertIfAbsent(key, sess) {
		cancel()
		udpUpConn.Close()
		metrics.ErrorsTotal.WithLabelValues("admission", protocol.Http3.String()).Inc()
		return
	}
	metrics.UdpSessionsActive.Inc()

	if _, err := udpUpConn.WriteToUDP(datagram, upstreamAddr); err != nil {
		f.sessions.Remove(key)
		metrics.UdpSessionsActive.Dec()
		sess.Stop()
		return
	}

	go f.readUpstream(sessCtx, key, clientAddr, sess)
}

// readUpstream relays datagrams from the session's upstream socket back
// to the original client address until idle timeout, error, or
// cancellation (spec §4.H step 5).
func (f *Forwarder) readUpstream(ctx context.Context, key string, clientAddr *net.UDPAddr, sess *session.UdpSession) {
	defer func() {
		f.sessions.Remove(key)
		metrics.UdpSessionsActive.Dec()
		sess.Stop()
	}()

	buf := make([]byte, datagramBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sess.Upstream.SetReadDeadline(time.Now().Add(f.IdleTimeout))
		n, _, err := sess.Upstream.ReadFromUDP(buf)
		if err != nil {
			return
		}
		sess.Touch()
		metrics.BytesTransferredTotal.WithLabelValues(metrics.Default.HostProtocolLabel(sess.Host, sess.Protocol.String()), "rx").Add(float64(n))
		if _, err := f.sock.WriteToUDP(buf[:n], clientAddr); err != nil {
			ui.LogStatus("warn", "udp forward to client failed: "+err.Error())
			return
		}
	}
}

// sweep removes sessions idle past the configured timeout (spec §4.H
// cleanup).
func (f *Forwarder) sweep() {
	expired := f.sessions.SweepIdle(f.IdleTimeout)
	for _, s := range expired {
		// Stop ends the session's readUpstream, whose deferred cleanup
		// decrements UdpSessionsActive.
		s.Stop()
	}
}

func isQuicLongHeader(datagram []byte) bool {
	return len(datagram) > 0 && datagram[0]&quicLongHeaderBit != 0
}

// extractQuicSNI implements the spec's intentionally simplified QUIC
// Initial parser (§4.H step 3, §9): 1-byte variable-length fields only,
// no CRYPTO frame reassembly.
func extractQuicSNI(datagram []byte) (string, error) {
	pos := 0
	if len(datagram) < 1 {
		return "", errs.New("udpforward.quic", errs.KindMessageTruncated)
	}
	pos++ // first byte (long header flags)

	if len(datagram) < pos+4 {
		return "", errs.New("udpforward.quic", errs.KindMessageTruncated)
	}
	pos += 4 // version

	if len(datagram) < pos+1 {
		return "", errs.New("udpforward.quic", errs.KindMessageTruncated)
	}
	dcidLen := int(datagram[pos])
	pos++
	if len(datagram) < pos+dcidLen {
		return "", errs.New("udpforward.quic", errs.KindMessageTruncated)
	}
	pos += dcidLen

	if len(datagram) < pos+1 {
		return "", errs.New("udpforward.quic", errs.KindMessageTruncated)
	}
	scidLen := int(datagram[pos])
	pos++
	if len(datagram) < pos+scidLen {
		return "", errs.New("udpforward.quic", errs.KindMessageTruncated)
	}
	pos += scidLen

	if len(datagram) < pos+1 {
		return "", errs.New("udpforward.quic", errs.KindMessageTruncated)
	}
	tokenLen := int(datagram[pos])
	pos++
	if len(datagram) < pos+tokenLen {
		return "", errs.New("udpforward.quic", errs.KindMessageTruncated)
	}
	pos += tokenLen

	if len(datagram) < pos+1 {
		return "", errs.New("udpforward.quic", errs.KindMessageTruncated)
	}
	pos++ // packet length (1-byte simplified varint)

	idx := -1
	for i := pos; i < len(datagram); i++ {
		if datagram[i] == 0x16 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", errs.New("udpforward.quic", errs.KindNoSNIExtension)
	}

	return tlsrecord.ExtractSNI(datagram[idx:])
}

func isTemporary(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
