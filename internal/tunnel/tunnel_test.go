package tunnel

import (
	"context"
	"io"
	"net"
	"testing"
	"time"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	c1, c2 := net.Pipe()
	return c1, c2
}

func TestRelayCopiesBothDirections(t *testing.T) {
	clientLocal, clientRemote := pipePair(t)
	upstreamLocal, upstreamRemote := pipePair(t)
	defer clientLocal.Close()
	defer upstreamLocal.Close()

	ctx, cancel := context.WithCancel(context.Background())

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- Relay(ctx, clientRemote, upstreamRemote, Options{})
	}()

	go func() {
		clientLocal.Write([]byte("hello-upstream"))
	}()
	buf := make([]byte, 32)
	n, err := upstreamLocal.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello-upstream" {
		t.Fatalf("got %q", buf[:n])
	}

	go func() {
		upstreamLocal.Write([]byte("hello-client"))
	}()
	n, err = clientLocal.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello-client" {
		t.Fatalf("got %q", buf[:n])
	}

	cancel()
	clientRemote.Close()
	upstreamRemote.Close()

	select {
	case res := <-resultCh:
		if res.TxBytes == 0 && res.RxBytes == 0 {
			t.Fatal("expected some bytes counted in at least one direction")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not return after cancellation")
	}
}

func TestRelayStopsOnContextCancel(t *testing.T) {
	clientLocal, clientRemote := pipePair(t)
	upstreamLocal, upstreamRemote := pipePair(t)
	defer clientLocal.Close()
	defer upstreamLocal.Close()
	defer clientRemote.Close()
	defer upstreamRemote.Close()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Relay(ctx, clientRemote, upstreamRemote, Options{})
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not exit on context cancellation")
	}
}

func TestRelayReportsActivity(t *testing.T) {
	clientLocal, clientRemote := net.Pipe()
	upstreamLocal, upstreamRemote := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	var lastTx, lastRx int64
	opts := Options{OnActivity: func(tx, rx int64) {
		lastTx, lastRx = tx, rx
	}}

	go Relay(ctx, clientRemote, upstreamRemote, opts)

	go clientLocal.Write([]byte("ping"))
	buf := make([]byte, 16)
	if _, err := upstreamLocal.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}

	cancel()
	clientLocal.Close()
	upstreamLocal.Close()
	clientRemote.Close()
	upstreamRemote.Close()

	time.Sleep(50 * time.Millisecond)
	if lastTx == 0 && lastRx == 0 {
		t.Fatal("expected OnActivity to observe forwarded bytes")
	}
	_ = io.EOF
}
