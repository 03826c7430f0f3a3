// Package tunnel implements the bidirectional byte-transparent relay
// (spec §4.F) between an accepted client connection and its dialed
// upstream. Grounded on the teacher's copyWithContext pattern in
// internal/proxy/handler.go, generalized with an idle-timeout reset on
// every forwarded byte. Relay does no throttling itself; the handler
// applies internal/ratelimit by wrapping both conns before calling it.
package tunnel

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// copyBufferSize is the per-direction copy buffer (spec §4.F).
const copyBufferSize = 32 * 1024

// Result reports what a completed tunnel transferred.
type Result struct {
	TxBytes int64 // client -> upstream
	RxBytes int64 // upstream -> client
}

// Options configures a Relay.
type Options struct {
	// IdleTimeout closes the tunnel if neither direction forwards a byte
	// within this window. Zero disables idle timeout.
	IdleTimeout time.Duration

	// OnActivity, if set, is invoked after every forwarded chunk in
	// either direction with that chunk's size as a (tx, rx) delta pair —
	// exactly one of the two is nonzero per call — so the caller can feed
	// a monotonic counter like bytes_transferred_total incrementally.
	OnActivity func(txDelta, rxDelta int64)
}

// Relay copies bytes between client and upstream in both directions
// until one side closes, ctx is cancelled, or the idle timeout fires.
// Both connections are left open on return; the caller is responsible
// for closing them (mirroring the session's ownership).
func Relay(ctx context.Context, client, upstream net.Conn, opts Options) Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var txBytes, rxBytes int64
	var lastActivity atomic.Int64 // unix nanos
	lastActivity.Store(time.Now().UnixNano())

	var idleDone chan struct{}
	if opts.IdleTimeout > 0 {
		idleDone = make(chan struct{})
		go watchIdle(ctx, &lastActivity, opts.IdleTimeout, func() {
			client.SetDeadline(time.Now())
			upstream.SetDeadline(time.Now())
		}, idleDone)
	}

	// Forced-deadline cancellation on ctx.Done, matching the teacher's
	// copyWithContext: a blocked Read is unblocked by moving the
	// deadline into the past.
	go func() {
		<-ctx.Done()
		client.SetDeadline(time.Now())
		upstream.SetDeadline(time.Now())
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		n := copyDirection(upstream, client, &lastActivity, func(delta int64) {
			atomic.AddInt64(&txBytes, delta)
			if opts.OnActivity != nil {
				opts.OnActivity(delta, 0)
			}
		})
		_ = n
		// Half-close: client has no more data, signal upstream.
		if hc, ok := upstream.(interface{ CloseWrite() error }); ok {
			_ = hc.CloseWrite()
		}
	}()

	go func() {
		defer wg.Done()
		n := copyDirection(client, upstream, &lastActivity, func(delta int64) {
			atomic.AddInt64(&rxBytes, delta)
			if opts.OnActivity != nil {
				opts.OnActivity(0, delta)
			}
		})
		_ = n
		if hc, ok := client.(interface{ CloseWrite() error }); ok {
			_ = hc.CloseWrite()
		}
	}()

	wg.Wait()
	cancel()
	if idleDone != nil {
		<-idleDone
	}

	return Result{TxBytes: atomic.LoadInt64(&txBytes), RxBytes: atomic.LoadInt64(&rxBytes)}
}

// copyDirection streams src into dst with a fixed buffer, touching
// lastActivity and invoking onChunk after every non-empty read/write.
func copyDirection(dst io.Writer, src io.Reader, lastActivity *atomic.Int64, onChunk func(delta int64)) int64 {
	buf := make([]byte, copyBufferSize)
	var total int64
	for {
		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				total += int64(nw)
				lastActivity.Store(time.Now().UnixNano())
				onChunk(int64(nw))
			}
			if werr != nil {
				return total
			}
		}
		if err != nil {
			return total
		}
	}
}

// watchIdle periodically checks lastActivity and invokes onIdle (forcing
// both sockets' deadlines into the past) the first time the gap exceeds
// timeout. It exits when ctx is cancelled.
func watchIdle(ctx context.Context, lastActivity *atomic.Int64, timeout time.Duration, onIdle func(), done chan struct{}) {
	defer close(done)
	interval := timeout / 4
	if timeout < 4*time.Millisecond {
		// avoid a zero/near-zero ticker interval for very small timeouts
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, lastActivity.Load())
			if time.Since(last) >= timeout {
				onIdle()
				return
			}
		}
	}
}
