package session

import (
	"testing"
	"time"

	"sniproxy/internal/protocol"
)

func TestNewRoutingKeyDefaultsPort(t *testing.T) {
	k := NewRoutingKey("API.Example.com", 0, false, protocol.Http11)
	if k.Host != "api.example.com" || k.Port != 80 {
		t.Fatalf("got %+v", k)
	}
}

func TestNewRoutingKeyExplicitPort(t *testing.T) {
	k := NewRoutingKey("svc.internal", 9443, true, protocol.Tls)
	if k.Port != 9443 {
		t.Fatalf("got port %d, want 9443", k.Port)
	}
}

func TestRoutingKeyAddr(t *testing.T) {
	k := RoutingKey{Host: "example.com", Port: 443}
	if k.Addr() != "example.com:443" {
		t.Fatalf("got %q", k.Addr())
	}
}

func TestTcpSessionReleaseOnce(t *testing.T) {
	calls := 0
	s := NewTcpSession(nil, func() { calls++ })
	s.Release()
	s.Release()
	s.Release()
	if calls != 1 {
		t.Fatalf("release called %d times, want 1", calls)
	}
}

func TestMapInsertCapacityAndRemove(t *testing.T) {
	m := NewMap(1)
	s1 := NewUdpSession(nil, nil, nil, protocol.Http3, "a.example.com", nil)
	if !m.InsertIfAbsent("addr1", s1) {
		t.Fatal("expected first insert to succeed")
	}
	s2 := NewUdpSession(nil, nil, nil, protocol.Http3, "b.example.com", nil)
	if m.InsertIfAbsent("addr2", s2) {
		t.Fatal("expected insert beyond capacity to fail")
	}
	if m.InsertIfAbsent("addr1", s1) {
		t.Fatal("expected duplicate insert to fail")
	}
	m.Remove("addr1")
	if m.Len() != 0 {
		t.Fatalf("got len %d after remove, want 0", m.Len())
	}
	if !m.InsertIfAbsent("addr2", s2) {
		t.Fatal("expected insert after remove to succeed")
	}
}

func TestMapSweepIdle(t *testing.T) {
	m := NewMap(0)
	s := NewUdpSession(nil, nil, nil, protocol.Http3, "a.example.com", nil)
	m.InsertIfAbsent("addr1", s)

	expired := m.SweepIdle(time.Hour)
	if len(expired) != 0 {
		t.Fatal("expected nothing expired yet")
	}

	expired = m.SweepIdle(-time.Second)
	if len(expired) != 1 {
		t.Fatalf("got %d expired, want 1", len(expired))
	}
	if m.Len() != 0 {
		t.Fatal("expected swept session removed from map")
	}
}
