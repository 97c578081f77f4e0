package gate

import (
	"net"
	"testing"
	"time"
)

type fakeConn struct {
	net.Conn
	addr   string
	closed bool
}

func (f *fakeConn) RemoteAddr() net.Addr { return fakeAddr(f.addr) }
func (f *fakeConn) Close() error         { f.closed = true; return nil }

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

func TestGateEnforcesMaxConnections(t *testing.T) {
	g := New(Config{MaxConnections: 2})
	defer g.Close()

	a := &fakeConn{addr: "10.0.0.1:1"}
	b := &fakeConn{addr: "10.0.0.2:1"}
	c := &fakeConn{addr: "10.0.0.3:1"}

	if !g.Accept(a) || !g.Accept(b) {
		t.Fatal("expected first two connections admitted")
	}
	if g.Accept(c) {
		t.Fatal("expected third connection rejected past MaxConnections")
	}
	if got := g.Current(); got != 2 {
		t.Fatalf("Current() = %d, want 2", got)
	}

	g.Release(a)
	if got := g.Current(); got != 1 {
		t.Fatalf("Current() after release = %d, want 1", got)
	}
	if !g.Accept(c) {
		t.Fatal("expected connection admitted after a slot freed")
	}
}

func TestGateRateLimitsPerRemoteIP(t *testing.T) {
	g := New(Config{RateLimitCapacity: 1, RateLimitRefill: 0})
	defer g.Close()
	// RateLimitRefill == 0 disables the limiter entirely per Config's
	// documented contract, so use a tiny nonzero refill instead.
	g = New(Config{RateLimitCapacity: 1, RateLimitRefill: 1})

	a1 := &fakeConn{addr: "10.0.0.9:1"}
	a2 := &fakeConn{addr: "10.0.0.9:2"}
	b1 := &fakeConn{addr: "10.0.0.8:1"}

	if !g.Accept(a1) {
		t.Fatal("first connection from 10.0.0.9 should be admitted")
	}
	if g.Accept(a2) {
		t.Fatal("second immediate connection from 10.0.0.9 should be rate limited")
	}
	if !g.Accept(b1) {
		t.Fatal("connection from a distinct remote IP should not be limited by 10.0.0.9's bucket")
	}
}

func TestGateReapsIdleConnections(t *testing.T) {
	g := New(Config{IdleTimeout: 10 * time.Millisecond})
	defer g.Close()

	c := &fakeConn{addr: "10.0.0.5:1"}
	g.Accept(c)

	time.Sleep(40 * time.Millisecond)

	if !c.closed {
		t.Fatal("expected idle connection to be reaped")
	}
}

func TestGateTouchResetsIdleClock(t *testing.T) {
	g := New(Config{IdleTimeout: 20 * time.Millisecond})
	defer g.Close()

	c := &fakeConn{addr: "10.0.0.6:1"}
	g.Accept(c)

	deadline := time.Now().Add(60 * time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(8 * time.Millisecond)
		g.Touch(c)
	}

	if c.closed {
		t.Fatal("expected connection touched regularly to survive the reaper")
	}
}
