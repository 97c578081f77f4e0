package breaker

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerTripsAfterMaxFailures(t *testing.T) {
	b := New("/test", Config{MaxFailures: 3, ResetTimeout: time.Hour, SuccessThreshold: 1})
	fail := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Call(func() error { return fail }); err != fail {
			t.Fatalf("call %d: err = %v, want fail", i, err)
		}
	}

	if got := b.State(); got != Open {
		t.Fatalf("state = %v, want Open", got)
	}
	if err := b.Call(func() error { return nil }); err != ErrOpen {
		t.Fatalf("call on open circuit = %v, want ErrOpen", err)
	}
}

func TestBreakerHalfOpenRecoversOnSuccess(t *testing.T) {
	b := New("/test", Config{MaxFailures: 1, ResetTimeout: time.Millisecond, SuccessThreshold: 2})
	fail := errors.New("boom")

	_ = b.Call(func() error { return fail })
	if got := b.State(); got != Open {
		t.Fatalf("state = %v, want Open", got)
	}

	time.Sleep(5 * time.Millisecond)

	if err := b.Call(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe: %v", err)
	}
	if got := b.State(); got != HalfOpen {
		t.Fatalf("state after one success = %v, want HalfOpen", got)
	}

	if err := b.Call(func() error { return nil }); err != nil {
		t.Fatalf("second half-open success: %v", err)
	}
	if got := b.State(); got != Closed {
		t.Fatalf("state after threshold successes = %v, want Closed", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New("/test", Config{MaxFailures: 1, ResetTimeout: time.Millisecond, SuccessThreshold: 2})
	fail := errors.New("boom")

	_ = b.Call(func() error { return fail })
	time.Sleep(5 * time.Millisecond)

	if err := b.Call(func() error { return fail }); err != fail {
		t.Fatalf("half-open probe failure = %v, want fail", err)
	}
	if got := b.State(); got != Open {
		t.Fatalf("state = %v, want Open after half-open failure", got)
	}
}

func TestRegistryScopesBreakersPerRoute(t *testing.T) {
	r := NewRegistry(Config{MaxFailures: 1, ResetTimeout: time.Hour})

	a := r.Get("/a")
	b := r.Get("/b")
	if a == b {
		t.Fatal("expected distinct breakers per route")
	}
	if r.Get("/a") != a {
		t.Fatal("expected Get to return the same breaker instance for the same route")
	}

	var trips int
	r.OnTrip(func(route string, from, to State) { trips++ })

	_ = a.Call(func() error { return errors.New("boom") })
	if trips != 1 {
		t.Fatalf("trips = %d, want 1", trips)
	}
}
