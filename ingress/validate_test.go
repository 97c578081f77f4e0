package ingress

import (
	"sync/atomic"
	"testing"

	"github.com/eventmesh-go/httpingress/httpx"
)

func TestValidatorStartedFalseYields503(t *testing.T) {
	var started atomic.Bool
	v := &Validator{Started: &started}
	r := &httpx.Request{Method: "GET"}
	if got := v.Validate(r); got != 503 {
		t.Fatalf("Validate() = %d, want 503", got)
	}
}

func TestValidatorRejectsUnsupportedMethod(t *testing.T) {
	var started atomic.Bool
	started.Store(true)
	v := &Validator{Started: &started}
	r := &httpx.Request{Method: "PUT", Header: httpx.Header{"Version": {"V1"}}}
	if got := v.Validate(r); got != 405 {
		t.Fatalf("Validate() = %d, want 405", got)
	}
}

func TestValidatorRejectsUnknownProtocolVersion(t *testing.T) {
	var started atomic.Bool
	started.Store(true)
	v := &Validator{Started: &started}
	r := &httpx.Request{Method: "POST", Header: httpx.Header{"Version": {"V9"}}}
	if got := v.Validate(r); got != 400 {
		t.Fatalf("Validate() = %d, want 400", got)
	}
}

func TestValidatorPassesValidRequest(t *testing.T) {
	var started atomic.Bool
	started.Store(true)
	v := &Validator{Started: &started}
	r := &httpx.Request{Method: "POST", Header: httpx.Header{"Version": {"V1"}}}
	if got := v.Validate(r); got != 0 {
		t.Fatalf("Validate() = %d, want 0 (pass)", got)
	}
}

func TestValidatorEnrichStampsInjectedHeaders(t *testing.T) {
	v := &Validator{ServerIP: "10.0.0.1"}
	r := &httpx.Request{Method: "GET", Header: httpx.Header{}, RemoteAddr: "192.168.1.5:54321"}
	v.Enrich(r)

	h := httpx.Header(r.Header)
	if h.Get(HeaderTimestamp) == "" {
		t.Fatal("expected REQ_C2EVENTMESH_TIMESTAMP to be set")
	}
	if h.Get(HeaderVersion) != "V1" {
		t.Fatalf("expected VERSION defaulted to V1, got %q", h.Get(HeaderVersion))
	}
	if h.Get(HeaderIP) != "192.168.1.5" {
		t.Fatalf("expected IP derived from RemoteAddr, got %q", h.Get(HeaderIP))
	}
	if h.Get(HeaderServerIP) != "10.0.0.1" {
		t.Fatalf("expected REQ_SEND_EVENTMESH_IP = configured server IP, got %q", h.Get(HeaderServerIP))
	}
}

func TestValidatorEnrichPreservesExplicitVersion(t *testing.T) {
	v := &Validator{}
	r := &httpx.Request{Header: httpx.Header{"Version": {"V2"}}}
	v.Enrich(r)
	if got := httpx.Header(r.Header).Get(HeaderVersion); got != "V2" {
		t.Fatalf("expected explicit VERSION preserved, got %q", got)
	}
}

func TestKnownRequestCode(t *testing.T) {
	cases := map[string]bool{"": false, "200": true, "0": true, "abc": false, "20a": false}
	for code, want := range cases {
		if got := KnownRequestCode(code); got != want {
			t.Fatalf("KnownRequestCode(%q) = %v, want %v", code, got, want)
		}
	}
}
