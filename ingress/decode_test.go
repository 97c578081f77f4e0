package ingress

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"testing"

	"github.com/eventmesh-go/httpingress/httpx"
)

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

// TestBodyDecodeRoundTripsThroughCanonicalJSON verifies that a POST JSON
// body re-parses to the same map after decoding and re-serialization into
// EventWrapper.BodyBytes.
func TestBodyDecodeRoundTripsThroughCanonicalJSON(t *testing.T) {
	raw := []byte(`{"a":1,"b":"x"}`)
	r := &httpx.Request{
		Method: "POST",
		Header: httpx.Header{"Content-Type": {"application/json"}},
		Body:   nopCloser{bytes.NewReader(raw)},
	}

	decoded, err := DecodeBody(r, NewRecorder(nil))
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}

	bodyBytes, err := CanonicalJSON(decoded)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}

	var want, got map[string]interface{}
	if err := json.Unmarshal(raw, &want); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(bodyBytes, &got); err != nil {
		t.Fatal(err)
	}
	if len(want) != len(got) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		gv, ok := got[k]
		if !ok {
			t.Fatalf("missing key %q in round-tripped body", k)
		}
		wb, _ := json.Marshal(v)
		gb, _ := json.Marshal(gv)
		if string(wb) != string(gb) {
			t.Fatalf("key %q: got %s, want %s", k, gb, wb)
		}
	}
}

func TestBodyDecodeGETUsesQueryString(t *testing.T) {
	u, _ := url.Parse("/x?name=alice&code=200")
	r := &httpx.Request{Method: "GET", URL: u}

	decoded, err := DecodeBody(r, NewRecorder(nil))
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if decoded["name"] != "alice" || decoded["code"] != "200" {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
}

func TestBodyDecodeRejectsMalformedJSON(t *testing.T) {
	r := &httpx.Request{
		Method: "POST",
		Header: httpx.Header{"Content-Type": {"application/json"}},
		Body:   nopCloser{bytes.NewReader([]byte(`{not json`))},
	}
	if _, err := DecodeBody(r, NewRecorder(nil)); err == nil {
		t.Fatal("expected decode error for malformed JSON")
	}
}

func TestBodyDecodeFormURLEncoded(t *testing.T) {
	r := &httpx.Request{
		Method: "POST",
		Header: httpx.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:   nopCloser{bytes.NewReader([]byte("a=1&b=two"))},
	}
	decoded, err := DecodeBody(r, NewRecorder(nil))
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if decoded["a"] != "1" || decoded["b"] != "two" {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
}
