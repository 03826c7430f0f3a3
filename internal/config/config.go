// Package config loads and validates the proxy's runtime configuration
// (spec §6): listen addresses, timeouts, admission limits, the
// allowlist and the optional per-connection bandwidth cap. Grounded on
// the teacher's internal/config/config.go shape (JSON file + env
// overrides, Load/Validate), generalized away from Signal's
// TLS-termination/hosts-map model to the routing-key model this proxy
// uses instead.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Timeouts bundles the three duration knobs spec §6 names, each given
// in whole seconds in the config file/environment.
type Timeouts struct {
	ConnectSec  int `json:"connect_sec"`
	ClientHello int `json:"client_hello_sec"`
	IdleSec     int `json:"idle_sec"`
}

// Config holds all proxy configuration values.
type Config struct {
	ListenAddrs    []string `json:"listen_addrs"`
	UDPListenAddrs []string `json:"udp_listen_addrs"`
	MetricsListen  string   `json:"metrics_listen"`

	Timeouts Timeouts `json:"timeouts"`

	MaxConnections  int `json:"max_connections"`
	ShutdownTimeout int `json:"shutdown_timeout"`

	Allowlist []string `json:"allowlist"`

	// DefaultUpstream is used when SO_ORIGINAL_DST recovery is
	// unavailable (non-Linux, or the connection wasn't redirected).
	DefaultUpstream string `json:"default_upstream"`

	// MaxMbpsPerConn caps per-connection throughput via
	// internal/ratelimit. 0 disables throttling.
	MaxMbpsPerConn int `json:"max_mbps_per_conn"`

	// UDPIdleSec bounds how long an idle UDP/QUIC session is retained.
	UDPIdleSec int `json:"udp_idle_sec"`

	// MaxUDPSessions caps concurrent UDP/QUIC sessions (0 = unlimited).
	MaxUDPSessions int `json:"max_udp_sessions"`
}

// configPathEnv names the environment variable that can redirect Load
// away from the default config.json path.
const configPathEnv = "SNIPROXY_CONFIG"

// Load reads configuration from config.json (or $SNIPROXY_CONFIG) with
// sensible defaults, then applies SNIPROXY_-prefixed environment
// overrides on top.
func Load() *Config {
	cfg := &Config{
		ListenAddrs:     []string{":8443"},
		MetricsListen:   ":9090",
		Timeouts:        Timeouts{ConnectSec: 10, ClientHello: 5, IdleSec: 300},
		MaxConnections:  10000,
		ShutdownTimeout: 30,
		MaxMbpsPerConn:  0,
		UDPIdleSec:      60,
		MaxUDPSessions:  0,
	}

	path := os.Getenv(configPathEnv)
	if path == "" {
		path = "config.json"
	}

	if file, err := os.Open(path); err == nil {
		defer file.Close()
		_ = json.NewDecoder(file).Decode(cfg)
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SNIPROXY_LISTEN_ADDRS"); v != "" {
		c.ListenAddrs = splitCSV(v)
	}
	if v := os.Getenv("SNIPROXY_UDP_LISTEN_ADDRS"); v != "" {
		c.UDPListenAddrs = splitCSV(v)
	}
	if v := os.Getenv("SNIPROXY_METRICS_LISTEN"); v != "" {
		c.MetricsListen = v
	}
	if v, ok := envInt("SNIPROXY_MAX_CONNECTIONS"); ok {
		c.MaxConnections = v
	}
	if v, ok := envInt("SNIPROXY_SHUTDOWN_TIMEOUT"); ok {
		c.ShutdownTimeout = v
	}
	if v, ok := envInt("SNIPROXY_CONNECT_TIMEOUT_SEC"); ok {
		c.Timeouts.ConnectSec = v
	}
	if v, ok := envInt("SNIPROXY_CLIENT_HELLO_TIMEOUT_SEC"); ok {
		c.Timeouts.ClientHello = v
	}
	if v, ok := envInt("SNIPROXY_IDLE_TIMEOUT_SEC"); ok {
		c.Timeouts.IdleSec = v
	}
	if v := os.Getenv("SNIPROXY_ALLOWLIST"); v != "" {
		c.Allowlist = splitCSV(v)
	}
	if v := os.Getenv("SNIPROXY_DEFAULT_UPSTREAM"); v != "" {
		c.DefaultUpstream = v
	}
	if v, ok := envInt("SNIPROXY_MAX_MBPS_PER_CONN"); ok {
		c.MaxMbpsPerConn = v
	}
}

func (c *Config) normalize() {
	cleaned := make([]string, 0, len(c.Allowlist))
	for _, p := range c.Allowlist {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	c.Allowlist = cleaned
}

// Validate checks the configuration for errors and returns a single
// aggregated error, mirroring the teacher's multi-message validation
// style.
func (c *Config) Validate() error {
	var problems []string

	if len(c.ListenAddrs) == 0 {
		problems = append(problems, "at least one listen address is required")
	}
	if c.MaxConnections <= 0 {
		problems = append(problems, "max_connections must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, "shutdown_timeout must be positive")
	}
	if c.Timeouts.ConnectSec <= 0 {
		problems = append(problems, "timeouts.connect_sec must be positive")
	}
	if c.Timeouts.ClientHello <= 0 {
		problems = append(problems, "timeouts.client_hello_sec must be positive")
	}
	if c.Timeouts.IdleSec <= 0 {
		problems = append(problems, "timeouts.idle_sec must be positive")
	}
	if c.MaxMbpsPerConn < 0 {
		problems = append(problems, "max_mbps_per_conn must not be negative")
	}

	if len(problems) > 0 {
		return errors.New("config validation failed:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String renders the config for startup logging, omitting nothing
// sensitive (this proxy has no credentials to redact).
func (c *Config) String() string {
	return fmt.Sprintf("listen=%v udp_listen=%v max_conns=%d shutdown_timeout=%ds allowlist_entries=%d",
		c.ListenAddrs, c.UDPListenAddrs, c.MaxConnections, c.ShutdownTimeout, len(c.Allowlist))
}
