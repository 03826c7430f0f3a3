package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	defer os.Chdir(old)
	os.Chdir(dir)

	cfg := Load()
	if len(cfg.ListenAddrs) != 1 || cfg.ListenAddrs[0] != ":8443" {
		t.Fatalf("got listen addrs %v", cfg.ListenAddrs)
	}
	if cfg.MaxConnections != 10000 {
		t.Fatalf("got max connections %d", cfg.MaxConnections)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejectsNonPositiveTimeouts(t *testing.T) {
	cfg := &Config{
		ListenAddrs:     []string{":8443"},
		MaxConnections:  10,
		ShutdownTimeout: 5,
		Timeouts:        Timeouts{ConnectSec: 0, ClientHello: 1, IdleSec: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero connect timeout")
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	defer os.Chdir(old)
	os.Chdir(dir)

	os.Setenv("SNIPROXY_MAX_CONNECTIONS", "42")
	os.Setenv("SNIPROXY_ALLOWLIST", "Example.com, *.good.tld")
	defer os.Unsetenv("SNIPROXY_MAX_CONNECTIONS")
	defer os.Unsetenv("SNIPROXY_ALLOWLIST")

	cfg := Load()
	if cfg.MaxConnections != 42 {
		t.Fatalf("got max connections %d, want 42", cfg.MaxConnections)
	}
	if len(cfg.Allowlist) != 2 || cfg.Allowlist[0] != "example.com" {
		t.Fatalf("got allowlist %v", cfg.Allowlist)
	}
}
