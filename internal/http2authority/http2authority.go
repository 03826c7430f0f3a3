// Package http2authority extracts the HTTP/2 :authority pseudo-header
// from a cleartext h2c connection's preface and first HEADERS frame
// (spec §4.B). The default extraction is a deliberate best-effort pattern
// scan sufficient for common h2c clients, as the spec requires; a full
// HPACK decode built on golang.org/x/net/http2/hpack is also exposed for
// callers that need broader interoperability (spec §9 "Simplified
// HPACK").
package http2authority

import (
	"bytes"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"sniproxy/internal/errs"
)

const op = "http2authority"

// Preface is the 24-byte HTTP/2 connection preface every h2c client must
// send before any frame.
const Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// MaxFrameLength is the largest HEADERS frame payload this parser will
// accept (spec §4.B: "Reject a frame length greater than 16 KiB").
const MaxFrameLength = 16 * 1024

// frameHeaderLen is the 9-byte HTTP/2 frame header: length u24, type u8,
// flags u8, stream_id u32 (top bit reserved). golang.org/x/net/http2
// defines the matching FrameHeader wire layout; frameHeaderLen mirrors
// http2.frameHeaderLen (unexported there) since we parse the header
// ourselves to stay on spec-named byte offsets.
const frameHeaderLen = 9

// literalAuthorityName is the literal-header-with-new-name encoding of
// ":authority" used by HPACK when the static table isn't referenced.
const literalAuthorityName = ":authority"

// HasPreface reports whether buf begins with the HTTP/2 connection
// preface.
func HasPreface(buf []byte) bool {
	return len(buf) >= len(Preface) && string(buf[:len(Preface)]) == Preface
}

// FrameHeader is the minimal decoded form of a 9-byte HTTP/2 frame header
// relevant to authority extraction.
type FrameHeader struct {
	Length   int
	Type     byte
	Flags    byte
	StreamID uint32
}

// ReadFrameHeader decodes the first 9 bytes of buf as an HTTP/2 frame
// header (spec §4.B).
func ReadFrameHeader(buf []byte) (FrameHeader, error) {
	if len(buf) < frameHeaderLen {
		return FrameHeader{}, errs.New(op, errs.KindHTTP2PrefaceMissing)
	}
	length := int(buf[0])<<16 | int(buf[1])<<8 | int(buf[2])
	streamID := (uint32(buf[5])<<24 | uint32(buf[6])<<16 | uint32(buf[7])<<8 | uint32(buf[8])) & 0x7fffffff
	return FrameHeader{
		Length:   length,
		Type:     buf[3],
		Flags:    buf[4],
		StreamID: streamID,
	}, nil
}

// frameHeadersType is the HTTP/2 HEADERS frame type (0x1). http2.FrameHeaders
// carries the same value; named locally so callers reading this file see
// the spec's own byte value without an extra indirection.
const frameHeadersType = byte(http2.FrameHeaders)

// ExtractAuthority reads one frame header plus its payload from buf
// (which must begin immediately after the 24-byte preface has already
// been consumed) and returns the :authority value using the pattern-based
// scan the spec mandates as the default (spec §4.B, §9).
func ExtractAuthority(buf []byte) (string, error) {
	fh, err := ReadFrameHeader(buf)
	if err != nil {
		return "", err
	}
	if fh.Type != frameHeadersType {
		return "", errs.New(op, errs.KindHTTP2NoAuthority)
	}
	if fh.Length > MaxFrameLength {
		return "", errs.New(op, errs.KindHTTP2FrameTooLarge)
	}
	if len(buf) < frameHeaderLen+fh.Length {
		return "", errs.New(op, errs.KindHTTP2PrefaceMissing)
	}
	payload := buf[frameHeaderLen : frameHeaderLen+fh.Length]
	return scanAuthority(payload)
}

// scanAuthority implements the two acceptable encodings named in spec
// §4.B: a literal header field with new name (the literal bytes
// ":authority" followed by a length-prefixed value), or an indexed
// representation using HPACK static-table index 1 with a literal value
// (leading byte 0x01, 0x41 or 0x81 followed by a length-prefixed value).
func scanAuthority(payload []byte) (string, error) {
	if idx := bytes.Index(payload, []byte(literalAuthorityName)); idx >= 0 {
		pos := idx + len(literalAuthorityName)
		if v, ok := readHpackString(payload, pos); ok {
			return v, nil
		}
	}
	for i, b := range payload {
		if b == 0x01 || b == 0x41 || b == 0x81 {
			if v, ok := readHpackString(payload, i+1); ok {
				return v, nil
			}
		}
	}
	return "", errs.New(op, errs.KindHTTP2NoAuthority)
}

// readHpackString reads one HPACK string literal (a length byte, whose
// top bit signals Huffman coding which this best-effort scanner does not
// decode, followed by that many raw bytes) starting at pos.
func readHpackString(payload []byte, pos int) (string, bool) {
	if pos >= len(payload) {
		return "", false
	}
	lenByte := payload[pos]
	huffman := lenByte&0x80 != 0
	if huffman {
		// Huffman-coded values aren't decoded by the best-effort scan;
		// DecodeFullAuthority below handles them via hpack.Decoder.
		return "", false
	}
	length := int(lenByte & 0x7f)
	pos++
	if pos+length > len(payload) {
		return "", false
	}
	return string(payload[pos : pos+length]), true
}

// DecodeFullAuthority decodes the HEADERS payload with a real HPACK
// decoder (golang.org/x/net/http2/hpack), recovering :authority even when
// it is Huffman-coded or uses a dynamic-table reference the pattern scan
// above cannot follow. This is the enrichment path spec §9 allows
// implementers to substitute; the pattern scan remains the default.
func DecodeFullAuthority(payload []byte) (string, error) {
	var authority string
	dec := hpack.NewDecoder(4096, func(f hpack.HeaderField) {
		if f.Name == literalAuthorityName {
			authority = f.Value
		}
	})
	if _, err := dec.Write(payload); err != nil {
		return "", errs.Wrap(op, errs.KindHTTP2NoAuthority, err)
	}
	if authority == "" {
		return "", errs.New(op, errs.KindHTTP2NoAuthority)
	}
	return authority, nil
}
