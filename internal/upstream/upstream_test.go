package upstream

import (
	"context"
	"net"
	"testing"
	"time"

	"sniproxy/internal/errs"
	"sniproxy/internal/protocol"
	"sniproxy/internal/session"
)

func TestDialSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	key := session.NewRoutingKey(addr.IP.String(), uint16(addr.Port), true, protocol.Tls)

	d := Dialer{ConnectTimeout: time.Second}
	conn, err := d.Dial(context.Background(), key)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}

func TestDialUnreachable(t *testing.T) {
	// Port 0 combined with a held listener guarantees refusal once closed.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close() // nothing listening now

	key := session.NewRoutingKey(addr.IP.String(), uint16(addr.Port), true, protocol.Tls)

	d := Dialer{ConnectTimeout: 500 * time.Millisecond}
	_, err = d.Dial(context.Background(), key)
	if err == nil {
		t.Fatal("expected dial error")
	}
	if errs.KindOf(err) != errs.KindUpstreamUnreachable {
		t.Fatalf("got kind %v, want KindUpstreamUnreachable", errs.KindOf(err))
	}
}
