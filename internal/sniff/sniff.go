// Package sniff classifies a peeked connection prefix into one of the
// Protocol values without consuming any bytes from the underlying stream
// (spec §4.C). Classification is a pure function: the same prefix always
// yields the same result.
package sniff

import (
	"strings"

	"sniproxy/internal/http2authority"
	"sniproxy/internal/protocol"
)

// PeekSize is the number of bytes the accept-loop handler should peek
// before calling Classify (spec §4.C: "a peeked prefix of 24 bytes").
const PeekSize = 24

var httpMethods = []string{
	"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "OPTIONS ", "PATCH ", "TRACE ", "CONNECT ",
}

// Classify inspects a peeked prefix (shorter than PeekSize only at EOF)
// and returns its Protocol classification. It never mutates or retains
// prefix.
func Classify(prefix []byte) protocol.Protocol {
	switch {
	case len(prefix) >= 2 && prefix[0] == 0x16 && prefix[1] == 0x03:
		return protocol.Tls

	case http2authority.HasPreface(prefix):
		return protocol.Http2

	case strings.HasPrefix(string(prefix), "SSH-"):
		return protocol.Ssh

	default:
		if p, ok := classifyHTTP(prefix); ok {
			return p
		}
		return protocol.Unknown
	}
}

// RefineTLS re-classifies an initial Tls classification once the ALPN
// protocol has been extracted from the ClientHello (spec §4.C step 1):
// "h2" refines to Http2, "h3" to Http3; anything else keeps Tls.
func RefineTLS(alpn string) protocol.Protocol {
	switch alpn {
	case "h2":
		return protocol.Http2
	case "h3":
		return protocol.Http3
	default:
		return protocol.Tls
	}
}

// classifyHTTP looks for a recognized HTTP method token followed by a
// space, then locates the HTTP version token on the same request line
// (spec §4.C step 4).
func classifyHTTP(prefix []byte) (protocol.Protocol, bool) {
	s := string(prefix)
	matched := false
	for _, m := range httpMethods {
		if strings.HasPrefix(s, m) {
			matched = true
			break
		}
	}
	if !matched {
		return protocol.Unknown, false
	}

	line := s
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		line = s[:idx]
	}
	switch {
	case strings.Contains(line, "HTTP/1.1"):
		return protocol.Http11, true
	case strings.Contains(line, "HTTP/1.0"):
		return protocol.Http10, true
	default:
		// Method matched but the short prefix didn't yet reach the
		// version token (e.g. a very long request-URI); default to the
		// more common HTTP/1.1 rather than reporting Unknown for a
		// stream we've already confidently identified as HTTP.
		return protocol.Http11, true
	}
}
