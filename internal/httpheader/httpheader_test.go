package httpheader

import (
	"strings"
	"testing"

	"sniproxy/internal/errs"
)

func TestFindHeadersEndAndExtractHost(t *testing.T) {
	req := "GET / HTTP/1.1\r\nHost: api.example.com\r\nUser-Agent: test\r\n\r\n"
	pos, err := FindHeadersEnd([]byte(req), 16*1024)
	if err != nil {
		t.Fatalf("FindHeadersEnd: %v", err)
	}
	if pos != len(req) {
		t.Fatalf("got pos %d, want %d", pos, len(req))
	}

	host, port, hasPort, err := ExtractHost([]byte(req[:pos]))
	if err != nil {
		t.Fatalf("ExtractHost: %v", err)
	}
	if host != "api.example.com" || hasPort {
		t.Fatalf("got host=%q hasPort=%v", host, hasPort)
	}
	_ = port
}

func TestExtractHostWithPort(t *testing.T) {
	req := "GET / HTTP/1.1\r\nHost: svc.internal:9443\r\n\r\n"
	host, port, hasPort, err := ExtractHost([]byte(req))
	if err != nil {
		t.Fatal(err)
	}
	if host != "svc.internal" || port != 9443 || !hasPort {
		t.Fatalf("got host=%q port=%d hasPort=%v", host, port, hasPort)
	}
}

func TestExtractHostMissing(t *testing.T) {
	req := "GET / HTTP/1.1\r\nUser-Agent: test\r\n\r\n"
	_, _, _, err := ExtractHost([]byte(req))
	if errs.KindOf(err) != errs.KindHostHeaderMissing {
		t.Fatalf("got %v, want KindHostHeaderMissing", err)
	}
}

func TestHeadersTooLong(t *testing.T) {
	req := "GET / HTTP/1.1\r\nHost: " + strings.Repeat("a", 20000) + ".example.com\r\n"
	_, err := FindHeadersEnd([]byte(req), 16*1024)
	if errs.KindOf(err) != errs.KindHeadersTooLong {
		t.Fatalf("got %v, want KindHeadersTooLong", err)
	}
}

func TestIsWebSocketUpgrade(t *testing.T) {
	req := "GET /chat HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"
	if !IsWebSocketUpgrade([]byte(req)) {
		t.Fatal("expected websocket upgrade detected")
	}

	plain := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
	if IsWebSocketUpgrade([]byte(plain)) {
		t.Fatal("expected no websocket upgrade")
	}
}

func TestDeriveWebSocketAccept(t *testing.T) {
	// RFC 6455 §1.3 worked example.
	got := DeriveWebSocketAccept("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIsGRPC(t *testing.T) {
	req := "POST /svc.Method HTTP/2\r\nHost: x\r\nContent-Type: application/grpc+proto\r\n\r\n"
	if !IsGRPC([]byte(req)) {
		t.Fatal("expected gRPC content-type detected")
	}
}

func TestApplicationHint(t *testing.T) {
	cases := []struct {
		name string
		req  string
		want string
	}{
		{
			name: "socket.io path",
			req:  "GET /socket.io/?EIO=4&transport=polling HTTP/1.1\r\nHost: x\r\n\r\n",
			want: "socket.io",
		},
		{
			name: "json-rpc content type",
			req:  "POST /rpc HTTP/1.1\r\nHost: x\r\nContent-Type: application/json-rpc\r\n\r\n",
			want: "jsonrpc",
		},
		{
			name: "xml-rpc content type",
			req:  "POST /rpc HTTP/1.1\r\nHost: x\r\nContent-Type: text/xml-rpc\r\n\r\n",
			want: "xmlrpc",
		},
		{
			name: "soap content type",
			req:  "POST /service HTTP/1.1\r\nHost: x\r\nContent-Type: application/soap+xml\r\n\r\n",
			want: "soap",
		},
		{
			name: "plain request has no hint",
			req:  "GET / HTTP/1.1\r\nHost: x\r\nContent-Type: text/html\r\n\r\n",
			want: "",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ApplicationHint([]byte(c.req))
			if got != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		})
	}
}
