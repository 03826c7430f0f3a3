package ratelimit

import (
	"net"
	"testing"
)

type closeWriteConn struct {
	net.Conn
	closedWrite bool
}

func (c *closeWriteConn) CloseWrite() error {
	c.closedWrite = true
	return nil
}

func TestThrottledConnForwardsCloseWrite(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	inner := &closeWriteConn{Conn: server}
	wrapped := NewThrottledConn(inner, 1)

	tc, ok := wrapped.(*ThrottledConn)
	if !ok {
		t.Fatalf("expected *ThrottledConn, got %T", wrapped)
	}

	if err := tc.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
	if !inner.closedWrite {
		t.Fatal("expected CloseWrite to be forwarded to the wrapped conn")
	}
}

func TestThrottledConnCloseWriteFallsBackToClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	wrapped := NewThrottledConn(server, 1)
	tc, ok := wrapped.(*ThrottledConn)
	if !ok {
		t.Fatalf("expected *ThrottledConn, got %T", wrapped)
	}

	// net.Pipe's Conn has no CloseWrite, so the fallback should just close it.
	if err := tc.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite fallback: %v", err)
	}

	buf := make([]byte, 1)
	if _, err := server.Read(buf); err == nil {
		t.Fatal("expected reads on the closed conn to fail")
	}
}

func TestNewThrottledConnDisabledReturnsOriginal(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	wrapped := NewThrottledConn(server, 0)
	if wrapped != net.Conn(server) {
		t.Fatal("expected speedMbps <= 0 to return the original conn unchanged")
	}
}
