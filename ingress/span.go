package ingress

import (
	"github.com/eventmesh-go/httpingress/httpx"
	"github.com/eventmesh-go/httpingress/internal/obs"
)

// Span is a single tracing unit covering the ingress-side handling of one
// request. Finish must be called exactly once per Start, so spans created
// and finished balance over any run.
type Span interface {
	SetAttribute(key, value string)
	RecordError(err error)
	Finish()
}

// Tracer creates server spans from a captured header snapshot, not from
// mutated request state. A disabled Tracer is NopTracer, which allocates
// nothing.
type Tracer interface {
	Start(snap headerSnapshot, trace httpx.Trace) Span
}

// NopTracer discards everything; used when tracing is disabled.
type NopTracer struct{}

func (NopTracer) Start(headerSnapshot, httpx.Trace) Span { return nopSpan{} }

type nopSpan struct{}

func (nopSpan) SetAttribute(string, string) {}
func (nopSpan) RecordError(error)           {}
func (nopSpan) Finish()                     {}

// basicSpan is BasicTracer's Span: it doesn't export anywhere, it records
// attributes and reports outcome to a logger so span conservation is
// observable without a real exporter.
type basicSpan struct {
	onFinish func(*basicSpan)
	trace    httpx.Trace
	method   string
	flavor   string
	url      string
	attrs    map[string]string
	err      error
	finished bool
}

func (s *basicSpan) SetAttribute(key, value string) {
	if s.attrs == nil {
		s.attrs = make(map[string]string)
	}
	s.attrs[key] = value
}

func (s *basicSpan) RecordError(err error) { s.err = err }

func (s *basicSpan) Finish() {
	if s.finished {
		return
	}
	s.finished = true
	if s.onFinish != nil {
		s.onFinish(s)
	}
}

// BasicTracer creates basicSpans and logs each one's outcome through
// Logger, giving span-created/span-finished pairs a visible trail without
// wiring an exporter backend.
type BasicTracer struct {
	Logger obs.Logger
}

func (t *BasicTracer) Start(snap headerSnapshot, trace httpx.Trace) Span {
	s := &basicSpan{method: snap.method, flavor: snap.version, url: snap.uri, trace: trace}
	s.onFinish = func(fs *basicSpan) {
		if t.Logger == nil {
			return
		}
		if fs.err != nil {
			t.Logger.Logf(obs.Error, "span finished trace=%s span=%s url=%s err=%v", fs.trace.TraceID, fs.trace.SpanID, fs.url, fs.err)
			return
		}
		t.Logger.Logf(obs.Debug, "span finished trace=%s span=%s url=%s ok", fs.trace.TraceID, fs.trace.SpanID, fs.url)
	}
	return s
}
