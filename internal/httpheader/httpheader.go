// Package httpheader implements HTTP/1.x header-block parsing:
// locating the header terminator, extracting the Host header, detecting
// WebSocket upgrades and gRPC content types, and deriving the RFC 6455
// Sec-WebSocket-Accept value (spec §4.B). The helpers convert the block
// to a string before scanning it, so each call copies the block.
package httpheader

import (
	"crypto/sha1"
	"encoding/base64"
	"strconv"
	"strings"

	"sniproxy/internal/errs"
)

const op = "httpheader"

// websocketGUID is the fixed RFC 6455 handshake GUID.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const crlfcrlf = "\r\n\r\n"

// FindHeadersEnd scans buf for the CRLFCRLF header terminator and returns
// the offset one past it. maxBudget bounds how much of buf may be
// searched before giving up with HeadersTooLong (spec §4.B).
func FindHeadersEnd(buf []byte, maxBudget int) (int, error) {
	limit := len(buf)
	if maxBudget > 0 && maxBudget < limit {
		limit = maxBudget
	}
	idx := strings.Index(string(buf[:limit]), crlfcrlf)
	if idx < 0 {
		return 0, errs.New(op, errs.KindHeadersTooLong)
	}
	return idx + len(crlfcrlf), nil
}

// lines splits a header block (without the trailing blank line) into its
// CRLF-delimited lines.
func lines(block []byte) []string {
	s := string(block)
	s = strings.TrimSuffix(s, crlfcrlf)
	s = strings.TrimSuffix(s, "\r\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\r\n")
}

// header returns the trimmed value of the first line whose name matches
// key case-insensitively, and whether it was found.
func header(block []byte, key string) (string, bool) {
	prefix := key + ":"
	for _, line := range lines(block) {
		if len(line) <= len(prefix) {
			continue
		}
		if strings.EqualFold(line[:len(prefix)], prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", false
}

// ExtractHost returns the Host header's (host, port) pair. If the value
// has no trailing :N, or N does not parse as a u16, the whole value is
// the host; hasPort reports whether an explicit port was present.
func ExtractHost(block []byte) (host string, port uint16, hasPort bool, err error) {
	value, found := header(block, "host")
	if !found || value == "" {
		return "", 0, false, errs.New(op, errs.KindHostHeaderMissing)
	}

	// IPv6 literal hosts look like "[::1]:8443" — only split on the last
	// colon, and only when it trails a closing bracket or there is no
	// bracket at all.
	if idx := strings.LastIndexByte(value, ':'); idx >= 0 {
		maybeHost := value[:idx]
		maybePort := value[idx+1:]
		if n, perr := strconv.ParseUint(maybePort, 10, 16); perr == nil {
			return strings.ToLower(maybeHost), uint16(n), true, nil
		}
	}
	return strings.ToLower(value), 0, false, nil
}

// IsWebSocketUpgrade reports whether the header block advertises a
// WebSocket upgrade: both "Upgrade: websocket" and "Connection: upgrade"
// (case-insensitive, spec §4.B).
func IsWebSocketUpgrade(block []byte) bool {
	upgrade, ok := header(block, "upgrade")
	if !ok || !strings.EqualFold(strings.TrimSpace(upgrade), "websocket") {
		return false
	}
	conn, ok := header(block, "connection")
	if !ok {
		return false
	}
	for _, tok := range strings.Split(conn, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "upgrade") {
			return true
		}
	}
	return false
}

// IsGRPC reports whether the header block's Content-Type contains
// "application/grpc", regardless of a "+proto"-style suffix (spec §4.B).
func IsGRPC(block []byte) bool {
	ct, ok := header(block, "content-type")
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(ct), "application/grpc")
}

// DeriveWebSocketAccept computes the RFC 6455 Sec-WebSocket-Accept value
// for a given Sec-WebSocket-Key: base64(SHA-1(key + GUID)). Exposed for
// callers validating handshakes; the proxy core itself never answers a
// handshake (spec §4.B).
func DeriveWebSocketAccept(secWebSocketKey string) string {
	sum := sha1.Sum([]byte(secWebSocketKey + websocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// SecWebSocketKey returns the Sec-WebSocket-Key header value, if present.
func SecWebSocketKey(block []byte) (string, bool) {
	return header(block, "sec-websocket-key")
}

// ApplicationHint inspects the request line and Content-Type for one of
// the application-framing signatures spec §9's Open Questions call out
// as metric-label-only refinements (they never change routing): a
// Socket.IO handshake path, JSON-RPC/XML-RPC/SOAP content types. Returns
// "" when none match.
func ApplicationHint(block []byte) string {
	reqLine := ""
	if ls := lines(block); len(ls) > 0 {
		reqLine = ls[0]
	}
	if strings.Contains(reqLine, "/socket.io/") {
		return "socket.io"
	}

	ct, _ := header(block, "content-type")
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "json-rpc") || strings.Contains(ct, "jsonrequest"):
		return "jsonrpc"
	case strings.Contains(ct, "xml-rpc"):
		return "xmlrpc"
	case strings.Contains(ct, "soap"):
		return "soap"
	default:
		return ""
	}
}
