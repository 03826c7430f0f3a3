package tlsrecord

import (
	"testing"

	"sniproxy/internal/errs"
)

// buildClientHello assembles a minimal but well-formed TLS 1.2 ClientHello
// record carrying the given SNI host name and ALPN protocol list.
func buildClientHello(t *testing.T, sni string, alpn []string) []byte {
	t.Helper()

	var extensions []byte
	if sni != "" {
		nameEntry := append([]byte{0x00, byte(len(sni) >> 8), byte(len(sni))}, []byte(sni)...)
		listLen := len(nameEntry)
		sniBody := append([]byte{byte(listLen >> 8), byte(listLen)}, nameEntry...)
		extensions = append(extensions, 0x00, 0x00, byte(len(sniBody)>>8), byte(len(sniBody)))
		extensions = append(extensions, sniBody...)
	}
	if len(alpn) > 0 {
		var protos []byte
		for _, p := range alpn {
			protos = append(protos, byte(len(p)))
			protos = append(protos, []byte(p)...)
		}
		alpnBody := append([]byte{byte(len(protos) >> 8), byte(len(protos))}, protos...)
		extensions = append(extensions, 0x00, 0x10, byte(len(alpnBody)>>8), byte(len(alpnBody)))
		extensions = append(extensions, alpnBody...)
	}

	body := []byte{0x03, 0x03} // client version
	body = append(body, make([]byte, 32)...) // random
	body = append(body, 0x00)                // session id len
	body = append(body, 0x00, 0x02, 0x13, 0x01) // cipher suites
	body = append(body, 0x01, 0x00)             // compression methods
	body = append(body, byte(len(extensions)>>8), byte(len(extensions)))
	body = append(body, extensions...)

	handshake := append([]byte{0x01, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}, body...)
	record := append([]byte{0x16, 0x03, 0x03, byte(len(handshake) >> 8), byte(len(handshake))}, handshake...)
	return record
}

func TestExtractSNI(t *testing.T) {
	record := buildClientHello(t, "secure.example.com", []string{"h2", "http/1.1"})

	sni, err := ExtractSNI(record)
	if err != nil {
		t.Fatalf("ExtractSNI: %v", err)
	}
	if sni != "secure.example.com" {
		t.Fatalf("got SNI %q, want secure.example.com", sni)
	}
}

func TestExtractALPN(t *testing.T) {
	record := buildClientHello(t, "secure.example.com", []string{"h2", "http/1.1"})

	alpn, err := ExtractALPN(record)
	if err != nil {
		t.Fatalf("ExtractALPN: %v", err)
	}
	if alpn != "h2" {
		t.Fatalf("got ALPN %q, want h2", alpn)
	}
}

func TestParseTruncated(t *testing.T) {
	_, err := Parse([]byte{0x16, 0x03})
	if errs.KindOf(err) != errs.KindMessageTruncated {
		t.Fatalf("got %v, want KindMessageTruncated", err)
	}
}

func TestParseInvalidVersion(t *testing.T) {
	data := []byte{0x16, 0x02, 0x00, 0x00, 0x10, 0x01, 0x00, 0x00, 0x00}
	_, err := Parse(data)
	if errs.KindOf(err) != errs.KindInvalidTLSVersion {
		t.Fatalf("got %v, want KindInvalidTLSVersion", err)
	}
}

func TestParseInvalidHandshakeType(t *testing.T) {
	data := []byte{0x16, 0x03, 0x03, 0x00, 0x10, 0x02, 0x00, 0x00, 0x00}
	_, err := Parse(data)
	if errs.KindOf(err) != errs.KindInvalidHandshakeType {
		t.Fatalf("got %v, want KindInvalidHandshakeType", err)
	}
}

func TestNoSNIExtension(t *testing.T) {
	record := buildClientHello(t, "", []string{"h2"})
	_, err := ExtractSNI(record)
	if errs.KindOf(err) != errs.KindNoSNIExtension {
		t.Fatalf("got %v, want KindNoSNIExtension", err)
	}
}

func TestNoALPNExtension(t *testing.T) {
	record := buildClientHello(t, "example.com", nil)
	_, err := ExtractALPN(record)
	if errs.KindOf(err) != errs.KindNoALPNExtension {
		t.Fatalf("got %v, want KindNoALPNExtension", err)
	}
}

func TestParseIdempotent(t *testing.T) {
	record := buildClientHello(t, "example.com", []string{"h2"})
	first, err := ExtractSNI(record)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ExtractSNI(record)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("parser not idempotent: %q != %q", first, second)
	}
}
