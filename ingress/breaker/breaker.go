// Package breaker provides a per-route circuit breaker that trips when a
// route's processor keeps panicking, shedding load away from a
// crash-looping backend instead of burning a worker-pool slot on every
// request headed for the same recovered panic. Each route gets its own
// breaker, tracked by a Registry keyed on route identity.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call when the circuit is open and the reset
// timeout has not yet elapsed.
var ErrOpen = errors.New("breaker: circuit open")

// State is one of Closed, HalfOpen, Open.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half_open"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Config tunes one breaker's trip/reset thresholds.
type Config struct {
	// MaxFailures is the consecutive-failure count that trips the circuit.
	MaxFailures int
	// ResetTimeout is how long an Open circuit waits before allowing a
	// single HalfOpen probe call.
	ResetTimeout time.Duration
	// SuccessThreshold is the number of consecutive HalfOpen successes
	// required to close the circuit again.
	SuccessThreshold int
}

func (c Config) withDefaults() Config {
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	return c
}

// Breaker is a single route's circuit breaker.
type Breaker struct {
	mu              sync.Mutex
	config          Config
	state           State
	failures        int
	successes       int
	lastStateChange time.Time
	onTrip          func(route string, from, to State)
	route           string
}

// New builds a Breaker in the Closed state.
func New(route string, cfg Config) *Breaker {
	return &Breaker{
		config:          cfg.withDefaults(),
		state:           Closed,
		lastStateChange: time.Now(),
		route:           route,
	}
}

// OnTrip registers a callback invoked synchronously, with the breaker's
// lock held, any time the breaker's state changes. Used to feed the
// circuit_breaker_trips_total metric.
func (b *Breaker) OnTrip(fn func(route string, from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = fn
}

// Allow reports whether a call should proceed, transitioning Open->HalfOpen
// once ResetTimeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.lastStateChange) > b.config.ResetTimeout {
			b.setState(HalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// Call runs fn if the breaker permits it, recording the outcome. fn's
// return value (including a recovered panic converted to an error by the
// caller) determines the next state transition.
func (b *Breaker) Call(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
	return err
}

// Record applies a call outcome to the state machine without the Allow()
// gate Call performs — for callers that already checked Allow() before
// reserving work on a separate resource (e.g. a worker-pool slot), so the
// breaker never "touches" that resource once it has tripped.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
}

func (b *Breaker) onFailure() {
	b.failures++
	b.successes = 0

	switch b.state {
	case Closed:
		if b.failures >= b.config.MaxFailures {
			b.setState(Open)
		}
	case HalfOpen:
		b.setState(Open)
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.setState(Closed)
		}
	}
}

// setState must be called with b.mu held.
func (b *Breaker) setState(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.lastStateChange = time.Now()
	if next == Closed {
		b.failures = 0
		b.successes = 0
	} else if next == HalfOpen {
		b.successes = 0
	}
	if b.onTrip != nil {
		b.onTrip(b.route, prev, next)
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry hands out one Breaker per route, lazily constructed on first
// use with a shared Config.
type Registry struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]*Breaker
	onTrip   func(route string, from, to State)
}

// NewRegistry builds a Registry. Every Breaker it creates shares cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		config:   cfg.withDefaults(),
		breakers: make(map[string]*Breaker),
	}
}

// OnTrip registers a callback applied to every Breaker the registry creates
// (including ones already created).
func (r *Registry) OnTrip(fn func(route string, from, to State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTrip = fn
	for _, b := range r.breakers {
		b.OnTrip(fn)
	}
}

// Get returns the Breaker for route, creating it on first reference.
func (r *Registry) Get(route string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[route]
	if !ok {
		b = New(route, r.config)
		if r.onTrip != nil {
			b.OnTrip(r.onTrip)
		}
		r.breakers[route] = b
	}
	return b
}
