// Package handler drives the per-connection TCP state machine (spec
// §4.G): Accepted → Admitted → Peeked → Classified → NameExtracted →
// Allowed → Dialed → Tunneling → Closed. Grounded on the teacher's
// internal/proxy/handler.go (admission/dial/relay/metrics shape),
// generalized from TLS-SNI-only extraction to the full
// TLS/HTTP1.x/HTTP2-cleartext/SSH branch set and from a fixed hosts map
// to the allowlist + upstream-dialer model.
package handler

import (
	"context"
	"net"
	"sync"
	"time"

	"sniproxy/internal/allowlist"
	"sniproxy/internal/config"
	"sniproxy/internal/errs"
	"sniproxy/internal/http2authority"
	"sniproxy/internal/httpheader"
	"sniproxy/internal/metrics"
	"sniproxy/internal/originaldst"
	"sniproxy/internal/protocol"
	"sniproxy/internal/ratelimit"
	"sniproxy/internal/session"
	"sniproxy/internal/sniff"
	"sniproxy/internal/tlsrecord"
	"sniproxy/internal/tunnel"
	"sniproxy/internal/ui"
	"sniproxy/internal/upstream"
)

const (
	maxClientHelloBytes = 16 * 1024
	maxHeaderBytes      = 8 * 1024
)

// Handler owns the dependencies a single accepted connection needs:
// admission release, the dialer, the allowlist and the configured
// timeouts. One Handler is shared by every connection on a listener.
// The reloadable fields (allowlist, timeouts, default upstream, rate
// cap) are guarded by mu so a SIGHUP-triggered Reload can swap them
// without disrupting connections already in flight, mirroring the
// teacher's certificate-reload mutex in internal/proxy/server.go.
type Handler struct {
	Dialer     upstream.Dialer
	ListenAddr string

	mu              sync.RWMutex
	allowlist       []string
	clientHello     time.Duration
	idle            time.Duration
	defaultUpstream string
	maxMbpsPerConn  int
}

// New builds a Handler from the proxy configuration for one listener.
func New(cfg *config.Config, listenAddr string) *Handler {
	h := &Handler{
		Dialer: upstream.Dialer{
			ConnectTimeout: time.Duration(cfg.Timeouts.ConnectSec) * time.Second,
		},
		ListenAddr: listenAddr,
	}
	h.Reload(cfg)
	return h
}

// Reload swaps in a freshly loaded configuration's reloadable fields.
// Connections already past name extraction are unaffected; subsequent
// connections observe the new allowlist/timeouts immediately.
func (h *Handler) Reload(cfg *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allowlist = cfg.Allowlist
	h.clientHello = time.Duration(cfg.Timeouts.ClientHello) * time.Second
	h.idle = time.Duration(cfg.Timeouts.IdleSec) * time.Second
	h.defaultUpstream = cfg.DefaultUpstream
	h.maxMbpsPerConn = cfg.MaxMbpsPerConn
	h.Dialer.ConnectTimeout = time.Duration(cfg.Timeouts.ConnectSec) * time.Second
}

func (h *Handler) snapshot() (allowlist []string, clientHello, idle time.Duration, defaultUpstream string, maxMbpsPerConn int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.allowlist, h.clientHello, h.idle, h.defaultUpstream, h.maxMbpsPerConn
}

// Handle drives one accepted client socket through the full state
// machine. release is invoked exactly once to return the admission
// permit (spec §4.G invariant), regardless of which exit path is taken.
func (h *Handler) Handle(ctx context.Context, client net.Conn, release func()) {
	sess := session.NewTcpSession(client, release)
	defer sess.Release()
	defer client.Close()

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	peerAddr := client.RemoteAddr().String()

	allowlistPatterns, clientHello, idle, defaultUpstream, maxMbpsPerConn := h.snapshot()

	proto, host, port, hasPort, prefix, applicationHint, err := h.extractName(client, clientHello)
	if err != nil {
		h.fail(proto, peerAddr, err)
		return
	}

	if proto == protocol.Unknown {
		metrics.ProtocolDistributionTotal.WithLabelValues(proto.String()).Inc()
		ui.LogUnknownProtocol(peerAddr, prefix)
		metrics.ConnectionsTotal.WithLabelValues(proto.String(), "error").Inc()
		return
	}

	// metricsProto refines the metric label only (Socket.IO/JSON-RPC/
	// XML-RPC/SOAP/RPC never change the routing decision, spec §9).
	metricsProto := protocol.RefineLabel(proto, applicationHint)
	metrics.ProtocolDistributionTotal.WithLabelValues(metricsProto.String()).Inc()

	var key session.RoutingKey
	if proto == protocol.Ssh {
		key, err = h.sshRoutingKey(client, defaultUpstream)
		if err != nil {
			h.fail(metricsProto, peerAddr, err)
			return
		}
	} else {
		if !allowlist.Allowed(host, allowlistPatterns) {
			err = errs.New("handler.allow", errs.KindDenied)
			h.fail(metricsProto, peerAddr, err)
			return
		}
		key = session.NewRoutingKey(host, port, hasPort, proto)
	}
	sess.Key = key
	sess.Protocol = proto

	h.mu.RLock()
	dialer := h.Dialer
	h.mu.RUnlock()
	upConn, err := dialer.Dial(ctx, key)
	if err != nil {
		h.fail(metricsProto, peerAddr, err)
		return
	}
	sess.Upstream = upConn
	defer upConn.Close()

	if len(prefix) > 0 {
		if _, werr := upConn.Write(prefix); werr != nil {
			h.fail(metricsProto, peerAddr, errs.Wrap("handler.replay", errs.KindUpstreamReset, werr))
			return
		}
	}

	tunneledUpstream := ratelimit.NewThrottledConn(upConn, maxMbpsPerConn)
	tunneledClient := ratelimit.NewThrottledConn(client, maxMbpsPerConn)

	label := metrics.Default.HostProtocolLabel(key.Host, metricsProto.String())
	result := tunnel.Relay(ctx, tunneledClient, tunneledUpstream, tunnel.Options{
		IdleTimeout: idle,
		OnActivity: func(tx, rx int64) {
			metrics.BytesTransferredTotal.WithLabelValues(label, "tx").Add(float64(tx))
			metrics.BytesTransferredTotal.WithLabelValues(label, "rx").Add(float64(rx))
		},
	})

	duration := time.Since(sess.Started).Seconds()
	metrics.ConnectionDuration.WithLabelValues(metricsProto.String(), key.Host).Observe(duration)
	metrics.ConnectionsTotal.WithLabelValues(metricsProto.String(), "success").Inc()
	ui.LogRelay(key.Host, peerAddr, result.TxBytes, result.RxBytes)
}

func (h *Handler) fail(proto protocol.Protocol, peerAddr string, err error) {
	kind := errs.MetricKind(err)
	metrics.ErrorsTotal.WithLabelValues(kind, proto.String()).Inc()
	metrics.ConnectionsTotal.WithLabelValues(proto.String(), "error").Inc()
	if errs.KindOf(err) == errs.KindDenied {
		ui.LogRejected(peerAddr, "denied", err.Error())
		return
	}
	ui.LogStatus("error", peerAddr+": "+err.Error())
}

// extractName runs the Peeked → Classified → NameExtracted transitions,
// returning the protocol, any extracted host/port, and the raw bytes
// consumed so they can be replayed to the upstream verbatim.
func (h *Handler) extractName(client net.Conn, clientHelloTimeout time.Duration) (proto protocol.Protocol, host string, port uint16, hasPort bool, consumed []byte, applicationHint string, err error) {
	deadline := time.Now().Add(clientHelloTimeout)
	if derr := client.SetReadDeadline(deadline); derr != nil {
		return protocol.Unknown, "", 0, false, nil, "", errs.Wrap("handler.peek", errs.KindPeekTimeout, derr)
	}
	defer client.SetReadDeadline(time.Time{})

	buf, err := readAtLeast(client, sniff.PeekSize, deadline)
	if err != nil {
		return protocol.Unknown, "", 0, false, buf, "", errs.Wrap("handler.peek", errs.KindPeekTimeout, err)
	}

	proto = sniff.Classify(buf)

	switch {
	case proto == protocol.Tls:
		buf, err = readClientHello(client, buf, deadline)
		if err != nil {
			return proto, "", 0, false, buf, "", err
		}
		sni, sniErr := tlsrecord.ExtractSNI(buf)
		if sniErr != nil {
			return proto, "", 0, false, buf, "", sniErr
		}
		if alpn, alpnErr := tlsrecord.ExtractALPN(buf); alpnErr == nil {
			proto = sniff.RefineTLS(alpn)
		}
		return proto, sni, 0, false, buf, "", nil

	case proto == protocol.Http2:
		buf, err = readH2Authority(client, buf, deadline)
		if err != nil {
			return proto, "", 0, false, buf, "", err
		}
		authority, aerr := authorityFromFrame(buf)
		if aerr != nil {
			return proto, "", 0, false, buf, "", aerr
		}
		h2host, h2port, h2hasPort := splitAuthority(authority)
		return proto, h2host, h2port, h2hasPort, buf, "", nil

	case proto.IsHTTPFamily():
		buf, err = readHeaders(client, buf, deadline)
		if err != nil {
			return proto, "", 0, false, buf, "", err
		}
		hostHeader, hport, hhasPort, herr := httpheader.ExtractHost(buf)
		if herr != nil {
			return proto, "", 0, false, buf, "", herr
		}
		if httpheader.IsWebSocketUpgrade(buf) {
			proto = protocol.WebSocket
		} else if httpheader.IsGRPC(buf) {
			proto = protocol.Grpc
		}
		return proto, hostHeader, hport, hhasPort, buf, httpheader.ApplicationHint(buf), nil

	case proto == protocol.Ssh:
		return proto, "", 0, false, buf, "", nil

	default:
		return protocol.Unknown, "", 0, false, buf, "", nil
	}
}

// sshRoutingKey resolves the routing key for an SSH connection via
// SO_ORIGINAL_DST, falling back to the configured default upstream, and
// rejects a loop back to the proxy's own listener.
func (h *Handler) sshRoutingKey(client net.Conn, defaultUpstream string) (session.RoutingKey, error) {
	if addr, err := originaldst.Get(client); err == nil {
		if addr.String() == h.ListenAddr {
			return session.RoutingKey{}, errs.New("handler.ssh", errs.KindSSHLoop)
		}
		return session.RoutingKey{Host: addr.IP.String(), Port: uint16(addr.Port)}, nil
	}

	if defaultUpstream == "" {
		return session.RoutingKey{}, errs.New("handler.ssh", errs.KindUpstreamUnreachable)
	}
	host, portStr, err := net.SplitHostPort(defaultUpstream)
	if err != nil {
		return session.RoutingKey{}, errs.Wrap("handler.ssh", errs.KindUpstreamUnreachable, err)
	}
	if defaultUpstream == h.ListenAddr {
		return session.RoutingKey{}, errs.New("handler.ssh", errs.KindSSHLoop)
	}
	return session.NewRoutingKey(host, parsePortOrZero(portStr), true, protocol.Ssh), nil
}

func parsePortOrZero(s string) uint16 {
	var n uint16
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + uint16(c-'0')
	}
	return n
}

func authorityFromFrame(buf []byte) (string, error) {
	frameBuf := buf[len(http2authority.Preface):]
	if authority, err := http2authority.ExtractAuthority(frameBuf); err == nil {
		return authority, nil
	}

	fh, err := http2authority.ReadFrameHeader(frameBuf)
	if err != nil {
		return "", err
	}
	payload := frameBuf[9 : 9+fh.Length]
	return http2authority.DecodeFullAuthority(payload)
}

func splitAuthority(authority string) (host string, port uint16, hasPort bool) {
	h, p, herr := net.SplitHostPort(authority)
	if herr != nil {
		return authority, 0, false
	}
	return h, parsePortOrZero(p), true
}
