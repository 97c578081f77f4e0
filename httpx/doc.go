// Package httpx provides a small, security‑minded HTTP/1.1 server
// implementation aimed at embeddability in libraries and services that need
// explicit control over the wire protocol.
//
// Highlights
//   - Server: streaming ResponseWriter, keep‑alive, chunked transfer,
//     Expect: 100‑continue, robust parsing with CL/TE validation, header
//     and body size limits, optional TLS, connection accept/close hooks
//     for callers that need admission control.
//   - Observability: plug‑in Logger and Meter interfaces (see
//     internal/obs) and a W3C traceparent/tracestate primitive (see
//     trace.go, tracestate.go) for callers that build their own spans.
//
// Quick start:
//
//	s := &httpx.Server{Addr: ":8080"}
//	s.Handler = httpx.HandlerFunc(func(w httpx.ResponseWriter, r *httpx.Request) {
//	    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
//	    w.WriteHeader(200)
//	    w.Write([]byte("hello"))
//	})
//	if err := s.ListenAndServe(); err != nil { log.Fatal(err) }
package httpx
