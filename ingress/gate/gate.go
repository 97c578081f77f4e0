// Package gate enforces the connection-admission policy ahead of the wire
// parser: a hard concurrent-connection cap, an idle-connection reaper, and
// an optional per-remote-IP token-bucket rate limit layered in front of
// the cap, wired into httpx.Server via its OnAccept/OnClose hooks.
package gate

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TokenBucket is a minimal per-client token bucket.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64
	lastRefill time.Time
}

func newTokenBucket(capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{capacity: capacity, tokens: capacity, refillRate: refillRate, lastRefill: time.Now()}
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if add := int64(elapsed * float64(tb.refillRate)); add > 0 {
		tb.tokens += add
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Config tunes a Gate's admission policy.
type Config struct {
	// MaxConnections is the hard cap on concurrently accepted connections.
	// Zero means unbounded.
	MaxConnections int
	// IdleTimeout closes a connection that has sent no new request for
	// this long. Zero disables idle reaping (the wire parser's own read
	// deadline, if any, still applies).
	IdleTimeout time.Duration
	// RateLimitCapacity/RateLimitRefill configure an optional per-remote-IP
	// token bucket evaluated before the MaxConnections cap. RateLimitRefill
	// == 0 disables rate limiting entirely.
	RateLimitCapacity int64
	RateLimitRefill   int64
}

// Gate tracks live connections and decides admission for new ones. Its
// Accept/Release methods are meant to be wired as an httpx.Server's
// OnAccept/OnClose hooks.
type Gate struct {
	cfg     Config
	current int64 // atomic

	mu       sync.Mutex
	limiters map[string]*TokenBucket

	mark   sync.Mutex
	lastOK map[net.Conn]time.Time

	stopReaper chan struct{}
	reaperOnce sync.Once
}

// New builds a Gate. If cfg.IdleTimeout > 0, a background reaper goroutine
// starts immediately and runs until Close.
func New(cfg Config) *Gate {
	g := &Gate{
		cfg:        cfg,
		limiters:   make(map[string]*TokenBucket),
		lastOK:     make(map[net.Conn]time.Time),
		stopReaper: make(chan struct{}),
	}
	if cfg.IdleTimeout > 0 {
		go g.reapLoop()
	}
	return g
}

// Accept is an httpx.Server.OnAccept hook: it applies the rate limit (if
// enabled) then the hard connection cap, admitting the connection only if
// both pass.
func (g *Gate) Accept(c net.Conn) bool {
	if g.cfg.RateLimitRefill > 0 {
		host := remoteHost(c)
		if !g.limiterFor(host).allow() {
			return false
		}
	}

	if g.cfg.MaxConnections > 0 {
		if atomic.AddInt64(&g.current, 1) > int64(g.cfg.MaxConnections) {
			atomic.AddInt64(&g.current, -1)
			return false
		}
	}

	g.touch(c)
	return true
}

// Release is an httpx.Server.OnClose hook: it decrements the live
// connection count and drops idle-tracking state for c.
func (g *Gate) Release(c net.Conn) {
	if g.cfg.MaxConnections > 0 {
		atomic.AddInt64(&g.current, -1)
	}
	g.mark.Lock()
	delete(g.lastOK, c)
	g.mark.Unlock()
}

// Touch records c as having made forward progress (a request was read from
// it), resetting its idle clock. Wired from the server's per-request path.
func (g *Gate) Touch(c net.Conn) { g.touch(c) }

func (g *Gate) touch(c net.Conn) {
	g.mark.Lock()
	g.lastOK[c] = time.Now()
	g.mark.Unlock()
}

// Current reports the number of currently admitted connections. Connections
// are only counted when MaxConnections > 0; with no cap it reports 0.
func (g *Gate) Current() int64 { return atomic.LoadInt64(&g.current) }

func (g *Gate) limiterFor(host string) *TokenBucket {
	g.mu.Lock()
	defer g.mu.Unlock()
	tb, ok := g.limiters[host]
	if !ok {
		tb = newTokenBucket(g.cfg.RateLimitCapacity, g.cfg.RateLimitRefill)
		g.limiters[host] = tb
	}
	return tb
}

func (g *Gate) reapLoop() {
	ticker := time.NewTicker(g.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-g.stopReaper:
			return
		case <-ticker.C:
			g.reapOnce()
		}
	}
}

func (g *Gate) reapOnce() {
	cutoff := time.Now().Add(-g.cfg.IdleTimeout)
	g.mark.Lock()
	var stale []net.Conn
	for c, last := range g.lastOK {
		if last.Before(cutoff) {
			stale = append(stale, c)
		}
	}
	g.mark.Unlock()

	for _, c := range stale {
		c.Close()
	}
}

// Close stops the idle reaper. Safe to call multiple times.
func (g *Gate) Close() {
	g.reaperOnce.Do(func() { close(g.stopReaper) })
}

func remoteHost(c net.Conn) string {
	addr := c.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
