package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"sniproxy/internal/config"
)

func TestHandleHTTP11RoutesOnHostHeader(t *testing.T) {
	upstreamLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer upstreamLn.Close()
	upstreamAddr := upstreamLn.Addr().String()

	received := make(chan string, 1)
	go func() {
		conn, err := upstreamLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	}()

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	h := New(&config.Config{
		Timeouts: config.Timeouts{ConnectSec: 2, ClientHello: 2, IdleSec: 2},
	}, "")

	// The Host header carries the upstream's own loopback host:port, so
	// RoutingKey.Addr() dials it directly without any DNS lookup.
	host, port, _ := net.SplitHostPort(upstreamAddr)
	_ = port

	req := "GET / HTTP/1.1\r\nHost: " + host + ":" + port + "\r\n\r\n"

	done := make(chan struct{})
	go func() {
		h.Handle(context.Background(), serverSide, func() {})
		close(done)
	}()

	if _, err := clientSide.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	select {
	case got := <-received:
		if got != req {
			t.Fatalf("upstream got %q, want %q", got, req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never received the replayed request")
	}

	buf := make([]byte, 64)
	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := clientSide.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if string(buf[:n]) == "" {
		t.Fatal("expected a relayed response")
	}

	clientSide.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after client closed")
	}
}

func TestHandleDeniedHostClosesWithoutDialing(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	h := New(&config.Config{
		Allowlist: []string{"only-this.example.com"},
		Timeouts:  config.Timeouts{ConnectSec: 1, ClientHello: 1, IdleSec: 1},
	}, "")

	done := make(chan struct{})
	released := false
	go func() {
		h.Handle(context.Background(), serverSide, func() { released = true })
		close(done)
	}()

	req := "GET / HTTP/1.1\r\nHost: denied.example.com\r\n\r\n"
	clientSide.Write([]byte(req))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit for a denied host")
	}
	if !released {
		t.Fatal("expected the admission permit to be released")
	}
}
