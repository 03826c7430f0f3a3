// Package server drives the proxy's accept loops (spec §4.G entry
// point, §8 shutdown): one admission-gated TCP accept loop per
// configured listen address, one UDP forwarder per configured UDP
// listen address, and a bounded drain on shutdown. Grounded on the
// teacher's internal/proxy/server.go accept-loop/connSem/drainConnections
// shape, generalized from a single TLS-terminating listener to
// multiple plain-TCP listeners sharing one Handler and admission
// semaphore.
package server

import (
	"context"
	"net"
	"sync"
	"time"

	"sniproxy/internal/config"
	"sniproxy/internal/errs"
	"sniproxy/internal/handler"
	"sniproxy/internal/metrics"
	"sniproxy/internal/protocol"
	"sniproxy/internal/udpforward"
	"sniproxy/internal/ui"
)

// Server owns every listener the proxy binds, the shared admission
// semaphore, and the in-flight connection WaitGroup used to drain on
// shutdown.
type Server struct {
	Config *config.Config

	connSem    chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	listeners  []net.Listener
	forwarders []*udpforward.Forwarder
	handlers   []*handler.Handler
	shutdown   chan struct{}
}

// New builds a Server from cfg. The admission semaphore's capacity is
// cfg.MaxConnections, shared across every TCP listener.
func New(cfg *config.Config) *Server {
	return &Server{
		Config:   cfg,
		connSem:  make(chan struct{}, cfg.MaxConnections),
		shutdown: make(chan struct{}),
	}
}

// Start binds every configured TCP and UDP listen address and blocks
// until ctx is cancelled, draining in-flight connections with the
// configured shutdown timeout before returning.
func (s *Server) Start(ctx context.Context) error {
	for _, addr := range s.Config.ListenAddrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.closeAll()
			return err
		}
		s.mu.Lock()
		s.listeners = append(s.listeners, ln)
		s.mu.Unlock()

		h := handler.New(s.Config, ln.Addr().String())
		s.mu.Lock()
		s.handlers = append(s.handlers, h)
		s.mu.Unlock()
		ui.LogStatus("info", "Listening on "+ln.Addr().String())
		s.wg.Add(1)
		go func(ln net.Listener, h *handler.Handler) {
			defer s.wg.Done()
			s.acceptLoop(ctx, ln, h)
		}(ln, h)
	}

	for _, addr := range s.Config.UDPListenAddrs {
		fwd, err := udpforward.New(
			addr,
			s.Config.Allowlist,
			time.Duration(s.Config.UDPIdleSec)*time.Second,
			s.Config.MaxUDPSessions,
		)
		if err != nil {
			s.closeAll()
			return err
		}
		s.mu.Lock()
		s.forwarders = append(s.forwarders, fwd)
		s.mu.Unlock()

		ui.LogStatus("info", "UDP forwarding on "+fwd.Addr().String())
		s.wg.Add(1)
		go func(fwd *udpforward.Forwarder) {
			defer s.wg.Done()
			fwd.Run(ctx)
		}(fwd)
	}

	go s.watchShutdown(ctx)

	<-s.shutdown
	return s.drainConnections()
}

// Addrs reports the bound address of every TCP listener, in bind order.
// Useful for tests and for logging the resolved address of a ":0" entry.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, ln := range s.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

// Reload swaps in a freshly loaded configuration across every TCP
// listener's handler and every UDP forwarder's allowlist, without
// interrupting connections already in flight (spec §6 reload).
func (s *Server) Reload(cfg *config.Config) {
	s.mu.Lock()
	s.Config = cfg
	handlers := append([]*handler.Handler(nil), s.handlers...)
	forwarders := append([]*udpforward.Forwarder(nil), s.forwarders...)
	s.mu.Unlock()

	for _, h := range handlers {
		h.Reload(cfg)
	}
	for _, fwd := range forwarders {
		fwd.Allowlist = cfg.Allowlist
	}
}

// acceptLoop runs one listener's admission-gated accept loop until it
// is closed (spec §4.G Accepted → Admitted).
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, h *handler.Handler) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}

		select {
		case s.connSem <- struct{}{}:
			s.wg.Add(1)
			released := make(chan struct{})
			release := func() {
				select {
				case <-released:
				default:
					close(released)
					<-s.connSem
				}
			}
			go func(c net.Conn) {
				defer s.wg.Done()
				defer release()
				h.Handle(ctx, c, release)
			}(conn)
		default:
			metrics.ErrorsTotal.WithLabelValues(errs.MetricKind(errs.New("server.admit", errs.KindAdmissionRejected)), protocol.Unknown.String()).Inc()
			metrics.ConnectionsTotal.WithLabelValues(protocol.Unknown.String(), "error").Inc()
			ui.LogRejected(conn.RemoteAddr().String(), "capacity", "at max capacity")
			conn.Close()
		}
	}
}

// watchShutdown closes every listener and forwarder once ctx is
// cancelled, unblocking each acceptLoop/Run and signalling the drain.
func (s *Server) watchShutdown(ctx context.Context) {
	<-ctx.Done()
	ui.LogStatus("warn", "Shutdown signal received...")
	close(s.shutdown)
	s.closeAll()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ln := range s.listeners {
		ln.Close()
	}
	for _, fwd := range s.forwarders {
		fwd.Close()
	}
}

// drainConnections waits for in-flight connections to finish, forcing
// shutdown once the configured timeout elapses (spec §8).
func (s *Server) drainConnections() error {
	timeout := time.Duration(s.Config.ShutdownTimeout) * time.Second

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ui.LogStatus("success", "All connections drained. Goodbye.")
	case <-time.After(timeout):
		ui.LogStatus("warn", "Drain timeout reached. Forcing shutdown.")
	}
	return nil
}
