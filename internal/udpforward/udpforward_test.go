package udpforward

import (
	"testing"
)

func buildQuicInitial(t *testing.T, sni string) []byte {
	t.Helper()
	var pkt []byte
	pkt = append(pkt, 0xC3) // long header, fixed bit, Initial type
	pkt = append(pkt, 0, 0, 0, 1) // version
	pkt = append(pkt, 8) // DCID len
	pkt = append(pkt, make([]byte, 8)...)
	pkt = append(pkt, 0) // SCID len
	pkt = append(pkt, 0) // token len
	pkt = append(pkt, 0) // packet length (1-byte simplified varint)

	ch := buildClientHelloBytes(t, sni)
	pkt = append(pkt, ch...)
	return pkt
}

// buildClientHelloBytes constructs a minimal TLS ClientHello record
// carrying an SNI extension, mirroring the fixture builder in
// internal/tlsrecord's tests.
func buildClientHelloBytes(t *testing.T, sni string) []byte {
	t.Helper()

	nameEntry := append([]byte{0x00, byte(len(sni) >> 8), byte(len(sni))}, []byte(sni)...)
	listLen := len(nameEntry)
	sniBody := append([]byte{byte(listLen >> 8), byte(listLen)}, nameEntry...)

	var extensions []byte
	extensions = append(extensions, 0x00, 0x00, byte(len(sniBody)>>8), byte(len(sniBody)))
	extensions = append(extensions, sniBody...)

	body := []byte{0x03, 0x03}                  // client version
	body = append(body, make([]byte, 32)...)    // random
	body = append(body, 0x00)                   // session id len
	body = append(body, 0x00, 0x02, 0x13, 0x01) // cipher suites
	body = append(body, 0x01, 0x00)             // compression methods
	body = append(body, byte(len(extensions)>>8), byte(len(extensions)))
	body = append(body, extensions...)

	handshake := append([]byte{0x01, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}, body...)
	record := append([]byte{0x16, 0x03, 0x03, byte(len(handshake) >> 8), byte(len(handshake))}, handshake...)
	return record
}

func TestExtractQuicSNI(t *testing.T) {
	pkt := buildQuicInitial(t, "quic.example.com")
	sni, err := extractQuicSNI(pkt)
	if err != nil {
		t.Fatalf("extractQuicSNI: %v", err)
	}
	if sni != "quic.example.com" {
		t.Fatalf("got %q", sni)
	}
}

func TestExtractQuicSNITruncated(t *testing.T) {
	_, err := extractQuicSNI([]byte{0xC3, 0x00})
	if err == nil {
		t.Fatal("expected error on truncated datagram")
	}
}

func TestIsQuicLongHeader(t *testing.T) {
	if !isQuicLongHeader([]byte{0xC3}) {
		t.Fatal("expected top-bit-set byte to be a long header")
	}
	if isQuicLongHeader([]byte{0x43}) {
		t.Fatal("expected top-bit-clear byte to not be a long header")
	}
	if isQuicLongHeader(nil) {
		t.Fatal("expected empty datagram to not be a long header")
	}
}
