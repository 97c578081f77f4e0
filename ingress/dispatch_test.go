package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eventmesh-go/httpingress/httpx"
	"github.com/eventmesh-go/httpingress/ingress/workerpool"
	"github.com/eventmesh-go/httpingress/internal/config"
)

type recordingWriter struct {
	h      httpx.Header
	status int
	body   bytes.Buffer
}

func newRecordingWriter() *recordingWriter { return &recordingWriter{h: httpx.Header{}} }

func (w *recordingWriter) Header() httpx.Header { return w.h }
func (w *recordingWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}
func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(200)
	}
	return w.body.Write(p)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		CompleterPoolSize:  2,
		CompleterQueueSize: 8,
		Charset:            "UTF-8",
	}
	s := NewServer(cfg, Deps{})
	s.started.Store(true)
	return s
}

func validRequest(method, uri string, header httpx.Header, body []byte) *httpx.Request {
	if header == nil {
		header = httpx.Header{}
	}
	header.Set("VERSION", "V1")
	var rc *bytesReadCloser
	if body != nil {
		rc = &bytesReadCloser{Reader: bytes.NewReader(body)}
	}
	req := &httpx.Request{
		Method:     method,
		RequestURI: uri,
		Proto:      "HTTP/1.1",
		Header:     header,
		RemoteAddr: "127.0.0.1:1234",
	}
	if rc != nil {
		req.Body = rc
	}
	return req
}

type bytesReadCloser struct{ *bytes.Reader }

func (bytesReadCloser) Close() error { return nil }

// S1 — code-path happy: POST /, REQUEST_CODE=200, processor invoked.
func TestDispatchCodePathHappy(t *testing.T) {
	s := newTestServer(t)
	pool := workerpool.New(1, 1)
	defer pool.Close()

	var invoked atomic.Bool
	s.Routes().RegisterCodeProcessor("200", codeProcessorFunc(func(ctx context.Context, async *AsyncContext[*CodeCommand]) error {
		invoked.Store(true)
		async.OnComplete(async.Request.CreateHTTPCommandResponse(CodeSuccess))
		return nil
	}), pool)
	s.routes.Freeze()

	h := httpx.Header{}
	h.Set("REQUEST_CODE", "200")
	r := validRequest("POST", "/", h, []byte(`{}`))
	w := newRecordingWriter()

	s.ServeHTTP(w, r)

	require.True(t, invoked.Load(), "expected processor to be invoked")
	var env Envelope
	require.NoError(t, json.Unmarshal(w.body.Bytes(), &env), "response not valid JSON: %s", w.body.String())
	require.Equal(t, string(CodeSuccess), env.RetCode)
}

// S2 — unknown code: envelope REQUESTCODE_INVALID, no pool task submitted.
func TestDispatchCodePathUnknownCode(t *testing.T) {
	s := newTestServer(t)

	h := httpx.Header{}
	h.Set("REQUEST_CODE", "9999")
	r := validRequest("POST", "/", h, []byte(`{}`))
	w := newRecordingWriter()

	s.ServeHTTP(w, r)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.body.Bytes(), &env))
	require.Equal(t, string(CodeRequestCodeInvalid), env.RetCode)
}

// S3 — URI-path routing: body round-trips, processor's response returned.
func TestDispatchURIPathRouting(t *testing.T) {
	s := newTestServer(t)
	pool := workerpool.New(1, 1)
	defer pool.Close()

	var gotBody map[string]interface{}
	s.Routes().RegisterURIProcessor("/eventmesh/", eventProcessorFunc(func(ctx context.Context, async *AsyncContext[*EventWrapper]) error {
		_ = json.Unmarshal(async.Request.BodyBytes, &gotBody)
		async.OnComplete(async.Request.CreateHTTPResponse(CodeSuccess))
		return nil
	}), pool)
	s.routes.Freeze()

	body := []byte(`{"topic":"T","payload":"P"}`)
	h := httpx.Header{"Content-Type": {"application/json"}}
	r := validRequest("POST", "/eventmesh/publish", h, body)
	w := newRecordingWriter()

	s.ServeHTTP(w, r)

	require.Equal(t, "T", gotBody["topic"])
	require.Equal(t, "P", gotBody["payload"])
	var env Envelope
	require.NoError(t, json.Unmarshal(w.body.Bytes(), &env))
	require.Equal(t, string(CodeSuccess), env.RetCode)
}

// S4 — method rejection: PUT yields 405.
func TestDispatchMethodRejection(t *testing.T) {
	s := newTestServer(t)
	r := validRequest("PUT", "/anything", nil, nil)
	w := newRecordingWriter()

	s.ServeHTTP(w, r)

	require.Equal(t, 405, w.status)
}

// S5 — overload: a saturated pool answers the extra request with OVERLOAD
// and increments the discard metric exactly once.
func TestDispatchOverload(t *testing.T) {
	s := newTestServer(t)
	rec := &countingRecorder{Recorder: NewRecorder(nil)}
	s.recorder = rec
	pool := workerpool.New(1, 1)
	defer pool.Close()

	block := make(chan struct{})
	s.Routes().RegisterCodeProcessor("200", codeProcessorFunc(func(ctx context.Context, async *AsyncContext[*CodeCommand]) error {
		<-block
		async.OnComplete(async.Request.CreateHTTPCommandResponse(CodeSuccess))
		return nil
	}), pool)
	s.routes.Freeze()

	fire := func() {
		h := httpx.Header{}
		h.Set("REQUEST_CODE", "200")
		r := validRequest("POST", "/", h, []byte(`{}`))
		go s.ServeHTTP(newRecordingWriter(), r)
	}

	fire() // occupies the single worker
	time.Sleep(20 * time.Millisecond)
	fire() // fills the queue
	time.Sleep(20 * time.Millisecond)

	h := httpx.Header{}
	h.Set("REQUEST_CODE", "200")
	r3 := validRequest("POST", "/", h, []byte(`{}`))
	w3 := newRecordingWriter()
	s.ServeHTTP(w3, r3) // must be rejected inline, not block

	var env3 Envelope
	require.NoError(t, json.Unmarshal(w3.body.Bytes(), &env3))
	require.Equal(t, string(CodeOverload), env3.RetCode)
	require.Equal(t, int64(1), rec.discards.Load())

	close(block)
}

// countingRecorder counts RecordHTTPDiscard calls and delegates the rest.
type countingRecorder struct {
	Recorder
	discards atomic.Int64
}

func (c *countingRecorder) RecordHTTPDiscard(route, reason string) { c.discards.Add(1) }

type codeProcessorFunc func(ctx context.Context, async *AsyncContext[*CodeCommand]) error

func (f codeProcessorFunc) RejectRequest() bool { return false }
func (f codeProcessorFunc) ProcessRequest(ctx context.Context, async *AsyncContext[*CodeCommand]) error {
	return f(ctx, async)
}

type eventProcessorFunc func(ctx context.Context, async *AsyncContext[*EventWrapper]) error

func (f eventProcessorFunc) RejectRequest() bool { return false }
func (f eventProcessorFunc) ProcessRequest(ctx context.Context, async *AsyncContext[*EventWrapper]) error {
	return f(ctx, async)
}
