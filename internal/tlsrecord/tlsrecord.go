// Package tlsrecord implements zero-copy parsing of a TLS ClientHello to
// extract the Server Name Indication and first ALPN protocol identifier
// (spec §4.A). It operates entirely on slice offsets into the caller's
// byte slice and allocates only the returned strings.
//
// Grounded on the teacher's internal/proxy/server.go:extractSNI, extended
// with ALPN extraction and the full typed-error taxonomy spec.md §4.A
// requires instead of silently returning an empty string.
package tlsrecord

import "sniproxy/internal/errs"

const op = "tlsrecord"

const (
	recordHandshake  = 0x16
	tlsVersionMajor  = 0x03
	handshakeClient  = 0x01
	extSNI           = 0x0000
	extALPN          = 0x0010
	sniHostNameEntry = 0x00
)

// ClientHello is a read-only view over a TLS record holding a ClientHello.
type ClientHello struct {
	data []byte
}

// Parse validates the record header and handshake framing (spec §4.A
// steps 1-3) and returns a ClientHello ready for SNI/ALPN extraction.
// It does not itself require the extensions block to be well-formed;
// individual extraction calls fail independently per the spec's error
// taxonomy.
func Parse(data []byte) (*ClientHello, error) {
	if len(data) < 5 {
		return nil, errs.New(op, errs.KindMessageTruncated)
	}
	if data[0] != recordHandshake {
		return nil, errs.New(op, errs.KindInvalidTLSVersion)
	}
	if data[1] != tlsVersionMajor {
		return nil, errs.New(op, errs.KindInvalidTLSVersion)
	}
	pos := 5
	if len(data) < pos+4 {
		return nil, errs.New(op, errs.KindMessageTruncated)
	}
	if data[pos] != handshakeClient {
		return nil, errs.New(op, errs.KindInvalidHandshakeType)
	}
	return &ClientHello{data: data}, nil
}

// extensionsBounds walks past the fixed ClientHello fields (version, random,
// session id, cipher suites, compression methods) and returns the slice
// bounds of the extensions block (spec §4.A steps 4-5).
func (c *ClientHello) extensionsBounds() (start, end int, err error) {
	data := c.data
	pos := 5 + 4 // record header + handshake header

	// client version (2) + random (32)
	if len(data) < pos+34 {
		return 0, 0, errs.New(op, errs.KindMessageTruncated)
	}
	pos += 34

	// session id: length-prefixed u8
	if len(data) < pos+1 {
		return 0, 0, errs.New(op, errs.KindMessageTruncated)
	}
	sessIDLen := int(data[pos])
	pos += 1 + sessIDLen
	if len(data) < pos {
		return 0, 0, errs.New(op, errs.KindMessageTruncated)
	}

	// cipher suites: length-prefixed u16
	if len(data) < pos+2 {
		return 0, 0, errs.New(op, errs.KindMessageTruncated)
	}
	cipherLen := int(data[pos])<<8 | int(data[pos+1])
	pos += 2 + cipherLen
	if len(data) < pos {
		return 0, 0, errs.New(op, errs.KindMessageTruncated)
	}

	// compression methods: length-prefixed u8
	if len(data) < pos+1 {
		return 0, 0, errs.New(op, errs.KindMessageTruncated)
	}
	compLen := int(data[pos])
	pos += 1 + compLen
	if len(data) < pos {
		return 0, 0, errs.New(op, errs.KindMessageTruncated)
	}

	// extensions: length-prefixed u16
	if len(data) < pos+2 {
		return 0, 0, errs.New(op, errs.KindMessageTruncated)
	}
	extLen := int(data[pos])<<8 | int(data[pos+1])
	pos += 2

	end = pos + extLen
	if end > len(data) {
		end = len(data)
	}
	return pos, end, nil
}

// findExtension scans the extensions block for the first extension of
// the given type, returning the bounds of its body.
func (c *ClientHello) findExtension(wantType int) (body []byte, found bool, err error) {
	start, end, err := c.extensionsBounds()
	if err != nil {
		return nil, false, err
	}
	data := c.data
	pos := start
	for pos+4 <= end {
		extType := int(data[pos])<<8 | int(data[pos+1])
		extBodyLen := int(data[pos+2])<<8 | int(data[pos+3])
		pos += 4
		if pos+extBodyLen > end {
			return nil, false, errs.New(op, errs.KindMessageTruncated)
		}
		if extType == wantType {
			return data[pos : pos+extBodyLen], true, nil
		}
		pos += extBodyLen
	}
	return nil, false, nil
}

// SNI extracts the first host_name entry of the SNI extension (type
// 0x0000), per spec §4.A step 6.
func (c *ClientHello) SNI() (string, error) {
	body, found, err := c.findExtension(extSNI)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errs.New(op, errs.KindNoSNIExtension)
	}
	// server_name_list: length-prefixed u16
	if len(body) < 2 {
		return "", errs.New(op, errs.KindInvalidSNILength)
	}
	listLen := int(body[0])<<8 | int(body[1])
	pos := 2
	end := pos + listLen
	if end > len(body) {
		end = len(body)
	}
	if pos+3 > end {
		return "", errs.New(op, errs.KindInvalidSNILength)
	}
	nameType := body[pos]
	nameLen := int(body[pos+1])<<8 | int(body[pos+2])
	pos += 3
	if nameType != sniHostNameEntry {
		return "", errs.New(op, errs.KindNoSNIExtension)
	}
	if pos+nameLen > end || pos+nameLen > len(body) {
		return "", errs.New(op, errs.KindInvalidSNILength)
	}
	return string(body[pos : pos+nameLen]), nil
}

// ALPN extracts the first protocol identifier from the ALPN extension
// (type 0x0010), per spec §4.A step 7.
func (c *ClientHello) ALPN() (string, error) {
	body, found, err := c.findExtension(extALPN)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errs.New(op, errs.KindNoALPNExtension)
	}
	// protocol_name_list: length-prefixed u16
	if len(body) < 2 {
		return "", errs.New(op, errs.KindInvalidALPNLength)
	}
	listLen := int(body[0])<<8 | int(body[1])
	pos := 2
	end := pos + listLen
	if end > len(body) {
		end = len(body)
	}
	if pos+1 > end {
		return "", errs.New(op, errs.KindInvalidALPNLength)
	}
	nameLen := int(body[pos])
	pos++
	if pos+nameLen > end || pos+nameLen > len(body) {
		return "", errs.New(op, errs.KindInvalidALPNLength)
	}
	return string(body[pos : pos+nameLen]), nil
}

// ExtractSNI is a convenience one-shot helper: parse and extract SNI in
// a single call.
func ExtractSNI(data []byte) (string, error) {
	ch, err := Parse(data)
	if err != nil {
		return "", err
	}
	return ch.SNI()
}

// ExtractALPN is a convenience one-shot helper: parse and extract ALPN in
// a single call.
func ExtractALPN(data []byte) (string, error) {
	ch, err := Parse(data)
	if err != nil {
		return "", err
	}
	return ch.ALPN()
}
