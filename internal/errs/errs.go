// Package errs defines the typed error taxonomy shared across the proxy
// core (spec §7). Error Kind values are fine-grained error identities;
// MetricKind collapses them to the coarse errors_total{kind=...} label
// set the metrics surface actually exposes (spec §4.J).
package errs

import "fmt"

// Kind is a stable identifier for one error variant.
type Kind string

const (
	KindMessageTruncated    Kind = "message_truncated"
	KindInvalidTLSVersion   Kind = "invalid_tls_version"
	KindInvalidHandshakeType    Kind = "invalid_handshake_type"
	KindNoSNIExtension      Kind = "no_sni_extension"
	KindInvalidSNILength    Kind = "invalid_sni_length"
	KindNoALPNExtension     Kind = "no_alpn_extension"
	KindInvalidALPNLength   Kind = "invalid_alpn_length"
	KindHeadersTooLong      Kind = "headers_too_long"
	KindHostHeaderMissing   Kind = "host_header_missing"
	KindHTTP2PrefaceMissing Kind = "http2_preface_missing"
	KindHTTP2FrameTooLarge  Kind = "http2_frame_too_large"
	KindHTTP2NoAuthority    Kind = "http2_authority_not_found"
	KindPeekTimeout         Kind = "peek_timeout"
	KindClientHelloTimeout  Kind = "client_hello_timeout"
	KindConnectTimeout      Kind = "connect_timeout"
	KindIdleTimeout         Kind = "idle_timeout"
	KindUpstreamUnreachable Kind = "upstream_unreachable"
	KindUpstreamReset       Kind = "upstream_reset"
	KindDenied              Kind = "denied"
	KindAdmissionRejected   Kind = "admission_rejected"
	KindSSHLoop             Kind = "ssh_loop"
	KindUnknownProtocol     Kind = "unknown_protocol"
)

// Error is a typed proxy error carrying a fine-grained Kind.
type Error struct {
	Kind Kind
	Op   string // component/operation the error occurred in, for logs
	Err  error  // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed Error with no wrapped cause.
func New(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

// Wrap builds a typed Error around an existing cause.
func Wrap(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// KindOf extracts the fine-grained Kind from err, defaulting to
// KindUnknownProtocol for errors that were never classified here.
func KindOf(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return KindUnknownProtocol
}

// MetricKind collapses a fine-grained Kind to the coarse label set the
// metrics surface exposes: admission, timeout, sni_extraction,
// host_extraction, denied, upstream, ssh_loop, unknown (spec §4.J).
func MetricKind(err error) string {
	switch KindOf(err) {
	case KindAdmissionRejected:
		return "admission"
	case KindPeekTimeout, KindClientHelloTimeout, KindConnectTimeout, KindIdleTimeout:
		return "timeout"
	case KindMessageTruncated, KindInvalidTLSVersion, KindInvalidHandshakeType,
		KindNoSNIExtension, KindInvalidSNILength, KindNoALPNExtension, KindInvalidALPNLength:
		return "sni_extraction"
	case KindHeadersTooLong, KindHostHeaderMissing, KindHTTP2PrefaceMissing,
		KindHTTP2FrameTooLarge, KindHTTP2NoAuthority:
		return "host_extraction"
	case KindDenied:
		return "denied"
	case KindUpstreamUnreachable, KindUpstreamReset:
		return "upstream"
	case KindSSHLoop:
		return "ssh_loop"
	default:
		return "unknown"
	}
}

// as is a tiny local errors.As shim, kept dependency-free for this
// single-purpose extraction.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
