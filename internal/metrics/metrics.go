// Package metrics is the proxy's metrics surface (spec §4.J): the
// Prometheus counters, gauges and histograms every other component
// publishes to, plus the MetricLabelCache that keeps the hot data path
// allocation-free.
//
// Grounded on the teacher's internal/proxy/metrics.go (promauto +
// promhttp), generalized from Signal-specific SNI labels to the full
// {protocol, host, kind, direction} label set spec §4.J names.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal counts completed connections by protocol and
	// outcome (status ∈ {success, error}).
	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniproxy_connections_total",
		Help: "Total completed connections by protocol and status",
	}, []string{"protocol", "status"})

	// ConnectionsActive is the current number of open connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sniproxy_connections_active",
		Help: "Current number of open connections",
	})

	// ConnectionDuration observes connection lifetime in seconds, bucketed
	// per spec §4.J.
	ConnectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "sniproxy_connection_duration_seconds",
		Help: "Connection duration in seconds",
		Buckets: []float64{
			0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300,
		},
	}, []string{"protocol", "host"})

	// ErrorsTotal counts errors by kind and protocol (spec §4.J kind set:
	// admission, timeout, sni_extraction, host_extraction, denied,
	// upstream, ssh_loop, unknown).
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniproxy_errors_total",
		Help: "Total errors by kind and protocol",
	}, []string{"kind", "protocol"})

	// ProtocolDistributionTotal counts sniffed connections per protocol.
	ProtocolDistributionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniproxy_protocol_distribution_total",
		Help: "Total connections observed per sniffed protocol",
	}, []string{"protocol"})

	// BytesTransferredTotal counts relayed bytes by host_protocol label
	// and direction (tx = client->upstream, rx = upstream->client).
	BytesTransferredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniproxy_bytes_transferred_total",
		Help: "Total bytes transferred by host/protocol label and direction",
	}, []string{"host_protocol", "direction"})

	// UdpSessionsActive is the current number of tracked UDP/QUIC
	// sessions.
	UdpSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sniproxy_udp_sessions_active",
		Help: "Current number of tracked UDP/QUIC sessions",
	})
)

// LabelCache is a concurrent map from (host, protocolLabel) to a shared
// immutable label string, so the per-datagram/per-operation hot path
// never allocates a new label string (spec §3 MetricLabelCache
// invariant).
type LabelCache struct {
	mu     sync.RWMutex
	labels map[string]string
}

// NewLabelCache creates an empty label cache.
func NewLabelCache() *LabelCache {
	return &LabelCache{labels: make(map[string]string)}
}

// HostProtocolLabel returns the shared "host_protocol" label text for
// (host, protocolLabel), creating and caching it on first use. The same
// (host, protocolLabel) pair always returns the identical string for the
// process lifetime.
func (c *LabelCache) HostProtocolLabel(host, protocolLabel string) string {
	key := protocolLabel + "|" + host

	c.mu.RLock()
	if v, ok := c.labels[key]; ok {
		c.mu.RUnlock()
		return v
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.labels[key]; ok {
		return v
	}
	v := host + "/" + protocolLabel
	c.labels[key] = v
	return v
}

// Default is the process-wide label cache used by the tunnel and UDP
// forwarder hot paths.
var Default = NewLabelCache()

// Server wraps an HTTP server exposing /metrics via promhttp, mirroring
// the teacher's MetricsServer shape.
type Server struct {
	http *http.Server
}

// NewServer creates a metrics server bound to addr (not yet listening).
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{http: &http.Server{Addr: addr, Handler: mux}}
}

// Start begins serving metrics in the background. Errors other than a
// clean shutdown are reported via the supplied onError callback.
func (s *Server) Start(onError func(error)) {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if onError != nil {
				onError(err)
			}
		}
	}()
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
