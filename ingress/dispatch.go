package ingress

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventmesh-go/httpingress/httpx"
	"github.com/eventmesh-go/httpingress/ingress/breaker"
	"github.com/eventmesh-go/httpingress/ingress/ingerrors"
	"github.com/eventmesh-go/httpingress/internal/obs"
)

// ServeHTTP implements httpx.Handler: per-connection enrichment/validation
// followed by classification and dispatch. It runs on the connection's own
// goroutine — all parsing, validation and body decoding stay off a worker
// pool; only processor execution is submitted there.
func (s *Server) ServeHTTP(w httpx.ResponseWriter, r *httpx.Request) {
	reqTime := time.Now()
	snap := snapshotHeaders(r)
	trace, _ := httpx.TraceFrom(r.Context())
	span := s.tracer.Start(snap, trace)

	if trace.TraceID != "" {
		w.Header().Set("traceparent", trace.Traceparent())
		if ts := httpx.FormatTraceState(r.TraceState, "gw", trace.SpanID); ts != "" {
			w.Header().Set("tracestate", ts)
		}
	}

	s.validator.Enrich(r)

	if status := s.validator.Validate(r); status != 0 {
		span.RecordError(fmt.Errorf("validation failed: status %d", status))
		span.Finish()
		s.validator.WriteStatusOnly(w, status)
		return
	}

	span.SetAttribute("http.method", r.Method)
	span.SetAttribute("http.flavor", r.Proto)
	span.SetAttribute("http.url", r.RequestURI)
	if cid, ok := httpx.CorrelationIDFrom(r.Context()); ok {
		span.SetAttribute("http.correlation_id", cid)
	}

	// Counted the moment validation passes, independent of how decoding or
	// routing later turns out, so a client hammering a bad request code or
	// sending unparsable bodies still shows up in the request count.
	s.recorder.RecordHTTPRequest(r.RequestURI)

	uri := r.RequestURI
	if r.URL != nil {
		uri = r.URL.Path
	}
	if route := s.routes.matchURI(uri); route != nil {
		s.dispatchURI(w, r, route, reqTime, span)
		return
	}
	s.dispatchCode(w, r, reqTime, span)
}

// requestID returns the request-scoped id threaded in by httpx.Server via
// WithRequestID, falling back to minting one for requests built directly
// (tests, or any caller that bypasses serveConn).
func requestID(r *httpx.Request) string {
	if id, ok := httpx.RequestIDFrom(r.Context()); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) finishAndWrite(w httpx.ResponseWriter, env Envelope, route string, reqTime time.Time, span Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	if werr := writeEnvelope(w, env); werr != nil {
		s.logger.Logf(obs.Warn, "write failed route=%s err=%v", route, werr)
	}
	s.recorder.RecordHTTPReqResTimeCost(route, float64(time.Since(reqTime).Milliseconds()))
	span.Finish()
}

// dispatchURI handles a request matched to a URI-prefix route.
func (s *Server) dispatchURI(w httpx.ResponseWriter, r *httpx.Request, route *uriRoute, reqTime time.Time, span Span) {
	bodyMap, err := DecodeBody(r, s.recorder)
	if err != nil {
		s.writeURIError(w, r.RequestURI, reqTime, span, CodeRuntimeErr, err)
		return
	}
	bodyBytes, err := CanonicalJSON(bodyMap)
	if err != nil {
		s.writeURIError(w, r.RequestURI, reqTime, span, CodeRuntimeErr, err)
		return
	}

	ew := &EventWrapper{
		HTTPVersion: r.Proto,
		RequestURI:  r.RequestURI,
		HeaderMap:   flattenHeader(r.Header),
		BodyBytes:   bodyBytes,
		ReqTime:     reqTime.UnixMilli(),
		RequestID:   requestID(r),
	}
	async := NewAsyncContext[*EventWrapper](ew, s.completer)

	if route.breaker != nil && !route.breaker.Allow() {
		async.OnComplete(ew.CreateHTTPResponse(CodeRejectByProcessorError))
		<-async.Done()
		s.finishAndWrite(w, async.Response().HTTPResponse(), route.prefix, reqTime, span, breaker.ErrOpen)
		return
	}

	submitErr := route.pool.Submit(func() {
		var panicErr error
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					panicErr = fmt.Errorf("processor panic: %v", rec)
				}
			}()
			if route.processor.RejectRequest() {
				async.OnComplete(ew.CreateHTTPResponse(CodeRejectByProcessorError))
				return
			}
			if perr := route.processor.ProcessRequest(r.Context(), async); perr != nil {
				s.logger.Logf(obs.Error, "uri processor error route=%s err=%v", route.prefix, perr)
			}
		}()
		if route.breaker != nil {
			route.breaker.Record(panicErr)
		}
		if panicErr != nil {
			async.OnComplete(ew.CreateHTTPResponse(CodeRuntimeErr))
		}
	})
	if submitErr != nil {
		async.OnComplete(ew.CreateHTTPResponse(CodeOverload))
		s.recorder.RecordHTTPDiscard(route.prefix, "pool_saturated")
		<-async.Done()
		s.finishAndWrite(w, async.Response().HTTPResponse(), route.prefix, reqTime, span, ingerrors.ErrPoolSaturated)
		return
	}

	<-async.Done()
	s.finishAndWrite(w, async.Response().HTTPResponse(), route.prefix, reqTime, span, nil)
}

func (s *Server) writeURIError(w httpx.ResponseWriter, uri string, reqTime time.Time, span Span, rc ResultCode, err error) {
	ew := &EventWrapper{RequestURI: uri}
	s.finishAndWrite(w, ew.CreateHTTPResponse(rc).HTTPResponse(), uri, reqTime, span, err)
}

// dispatchCode handles a request classified by request code.
func (s *Server) dispatchCode(w httpx.ResponseWriter, r *httpx.Request, reqTime time.Time, span Span) {
	bodyMap, err := DecodeBody(r, s.recorder)
	if err != nil {
		s.writeCodeError(w, "", reqTime, span, CodeRuntimeErr, err)
		return
	}

	var code string
	if r.Method == "POST" {
		code = httpx.Header(r.Header).Get(HeaderRequestCode)
	} else if v, ok := bodyMap[strings.ToLower(HeaderRequestCode)]; ok {
		code, _ = v.(string)
	}

	if code == "" || !KnownRequestCode(code) {
		s.writeCodeError(w, code, reqTime, span, CodeRequestCodeInvalid, ingerrors.ErrUnknownRequestCode)
		return
	}

	route := s.routes.matchCode(code)
	if route == nil {
		s.writeCodeError(w, code, reqTime, span, CodeRequestCodeInvalid, ingerrors.ErrNoRoute)
		return
	}

	headerBuilder := s.headerBuilder
	if headerBuilder == nil {
		headerBuilder = defaultHeaderBuilder
	}
	bodyBuilder := s.bodyBuilder
	if bodyBuilder == nil {
		bodyBuilder = defaultBodyBuilder
	}
	builtHeader, herr := headerBuilder(code, flattenHeader(r.Header))
	builtBody, berr := bodyBuilder(code, bodyMap)
	if herr != nil || berr != nil {
		s.writeCodeError(w, code, reqTime, span, CodeRuntimeErr, ingerrors.ErrBuildFailed)
		return
	}

	cc := &CodeCommand{
		HTTPMethod:  r.Method,
		HTTPVersion: r.Proto,
		RequestCode: code,
		Header:      builtHeader,
		Body:        builtBody,
		ReqTime:     reqTime.UnixMilli(),
		RequestID:   requestID(r),
	}
	async := NewAsyncContext[*CodeCommand](cc, s.completer)

	if route.breaker != nil && !route.breaker.Allow() {
		async.OnComplete(cc.CreateHTTPCommandResponse(CodeRejectByProcessorError))
		<-async.Done()
		s.finishAndWrite(w, async.Response().HTTPResponse(), code, reqTime, span, breaker.ErrOpen)
		return
	}

	submitErr := route.pool.Submit(func() {
		var panicErr error
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					panicErr = fmt.Errorf("processor panic: %v", rec)
				}
			}()
			if route.processor.RejectRequest() {
				async.OnComplete(cc.CreateHTTPCommandResponse(CodeRejectByProcessorError))
				return
			}
			if perr := route.processor.ProcessRequest(r.Context(), async); perr != nil {
				s.logger.Logf(obs.Error, "code processor error code=%s err=%v", code, perr)
			}
		}()
		if route.breaker != nil {
			route.breaker.Record(panicErr)
		}
		if panicErr != nil {
			async.OnComplete(cc.CreateHTTPCommandResponse(CodeRuntimeErr))
		}
	})
	if submitErr != nil {
		async.OnComplete(cc.CreateHTTPCommandResponse(CodeOverload))
		s.recorder.RecordHTTPDiscard(code, "pool_saturated")
		<-async.Done()
		s.finishAndWrite(w, async.Response().HTTPResponse(), code, reqTime, span, ingerrors.ErrPoolSaturated)
		return
	}

	<-async.Done()
	s.finishAndWrite(w, async.Response().HTTPResponse(), code, reqTime, span, nil)
}

func (s *Server) writeCodeError(w httpx.ResponseWriter, code string, reqTime time.Time, span Span, rc ResultCode, err error) {
	cc := &CodeCommand{RequestCode: code}
	s.finishAndWrite(w, cc.CreateHTTPCommandResponse(rc).HTTPResponse(), code, reqTime, span, err)
}

func flattenHeader(h httpx.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if len(vv) > 0 {
			out[k] = vv[0]
		}
	}
	return out
}
