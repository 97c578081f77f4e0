package httpx

import (
    "bufio"
    "bytes"
    "crypto/tls"
    "errors"
    "fmt"
    "net"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/eventmesh-go/httpingress/httpx/internal/http1"
)

type Handler interface {
    ServeHTTP(ResponseWriter, *Request)
}

type HandlerFunc func(ResponseWriter, *Request)

func (f HandlerFunc) ServeHTTP(w ResponseWriter, r *Request) {
    f(w, r)
}

type ResponseWriter interface {
    Header() Header
    Write([]byte) (int, error)
    WriteHeader(status int)
}

// Server is a minimal HTTP/1.1 server. It knows nothing about connection
// admission, routing or metrics; callers wire that in through OnAccept,
// OnClose and Handler.
type Server struct {
    Addr              string
    Handler           Handler
    ReadTimeout       time.Duration
    ReadHeaderTimeout time.Duration
    WriteTimeout      time.Duration
    IdleTimeout       time.Duration
    MaxHeaderBytes    int
    MaxBodyBytes      int64

    // Charset names the charset advertised on the Content-Type of
    // status-only plain-text responses this server writes itself (malformed
    // request, body too large). Empty means "UTF-8".
    Charset string

    // TLSConfig, when non-nil, is used to wrap the listener in Serve.
    TLSConfig *tls.Config

    // OnAccept is invoked synchronously right after Accept, before the
    // connection is handed to its own goroutine. Returning false causes the
    // connection to be closed immediately without any HTTP exchange.
    OnAccept func(net.Conn) bool
    // OnClose is invoked exactly once per accepted connection, when
    // serveConn returns (including when OnAccept returned false is NOT
    // included — that path never starts serveConn).
    OnClose func(net.Conn)
    // OnRequest is invoked synchronously once per request, right after it
    // is successfully read off the wire and before Handler runs. Callers
    // use it to mark the connection as having made forward progress (an
    // idle-connection reaper resets its clock here, for instance).
    OnRequest func(net.Conn)
    // OnError is invoked when a request never reaches Handler: a malformed
    // request, a header line over MaxHeaderBytes, an unsupported HTTP
    // version, a body over MaxBodyBytes (each answered by serveConn with a
    // status-only response), or a read that timed out waiting for the next
    // request on a keep-alive connection (closed without a response). err
    // wraps one of ErrBadRequest/ErrHeaderTooLarge/ErrProtocolViolation/
    // ErrBodyTooLarge/ErrTimeout.
    OnError func(net.Conn, error)
}

// writeStatusOnly writes a plain-text, status-only response sharing the
// same Content-Type/charset contract as a Handler's own status-only
// responses, for the cases serveConn answers before Handler ever runs.
func (s *Server) writeStatusOnly(bw *bufio.Writer, status int, body string) {
    charset := s.Charset
    if charset == "" {
        charset = "UTF-8"
    }
    hdr := map[string][]string{
        "Content-Type":   {"text/plain; charset=" + charset},
        "Content-Length": {strconv.Itoa(len(body))},
    }
    _ = http1.WriteResponse(bw, status, "", hdr, []byte(body), false)
    _ = bw.Flush()
}

func (s *Server) ListenAndServe() error {
    addr := s.Addr
    if addr == "" {
        addr = ":8080"
    }
    ln, err := net.Listen("tcp", addr)
    if err != nil {
        return err
    }
    return s.Serve(ln)
}

func (s *Server) Serve(l net.Listener) error {
    if s.TLSConfig != nil {
        l = tls.NewListener(l, s.TLSConfig)
    }
    defer l.Close()
    for {
        c, err := l.Accept()
        if err != nil {
            return err
        }
        if s.OnAccept != nil && !s.OnAccept(c) {
            c.Close()
            continue
        }
        go s.serveConn(c)
    }
}

type responseBuffer struct {
    h       Header
    status  int
    wroteH  bool
    bodyBuf bytes.Buffer
}

func (w *responseBuffer) Header() Header {
    if w.h == nil {
        w.h = Header{}
    }
    return w.h
}

func (w *responseBuffer) WriteHeader(status int) {
    if w.wroteH {
        return
    }
    if status == 0 {
        status = 200
    }
    w.status = status
    w.wroteH = true
}

func (w *responseBuffer) Write(p []byte) (int, error) {
    if !w.wroteH {
        w.WriteHeader(200)
    }
    return w.bodyBuf.Write(p)
}

// connResponseWriter streams the response to the client. If keepAlive is true
// and Content-Length is not set for HTTP/1.1, it enables chunked encoding.
type connResponseWriter struct {
    bw         *bufio.Writer
    proto      string
    keepAlive  bool
    status     int
    wroteHdr   bool
    chunked    bool
    hdr        Header
}

func (w *connResponseWriter) Header() Header {
    if w.hdr == nil {
        w.hdr = Header{}
    }
    return w.hdr
}

func (w *connResponseWriter) decideChunked() bool {
    if strings.EqualFold(w.hdr.Get("Connection"), "close") {
        w.keepAlive = false
    }
    hasCL := w.hdr.Get("Content-Length") != ""
    if w.proto == "HTTP/1.1" && w.keepAlive && !hasCL {
        return true
    }
    return false
}

func (w *connResponseWriter) startIfNeeded() error {
    if w.wroteHdr {
        return nil
    }
    if w.status == 0 {
        w.status = 200
    }
    // Decide chunked based on headers and keepAlive.
    w.chunked = w.decideChunked()
    // Remove any user Connection header to avoid duplicates.
    if w.hdr != nil {
        w.hdr.Del("Connection")
    }
    // Start headers
    hdrMap := map[string][]string(w.hdr)
    if err := http1.StartResponse(w.bw, w.status, "", hdrMap, w.chunked, w.keepAlive && (w.chunked || w.hdr.Get("Content-Length") != "")); err != nil {
        return err
    }
    w.wroteHdr = true
    return nil
}

func (w *connResponseWriter) WriteHeader(status int) {
    if w.wroteHdr {
        return
    }
    if status == 0 {
        status = 200
    }
    w.status = status
    _ = w.startIfNeeded() // best-effort; error will surface on Flush
}

func (w *connResponseWriter) Write(p []byte) (int, error) {
    if !w.wroteHdr {
        if err := w.startIfNeeded(); err != nil {
            return 0, err
        }
    }
    if w.chunked {
        n, err := http1.WriteChunked(w.bw, p)
        if err != nil {
            return n, err
        }
        // Flush each chunk to enable streaming to clients.
        if err := w.bw.Flush(); err != nil {
            return n, err
        }
        return n, nil
    }
    return w.bw.Write(p)
}

func (w *connResponseWriter) Flush() error {
    if !w.wroteHdr {
        if err := w.startIfNeeded(); err != nil {
            return err
        }
    }
    return w.bw.Flush()
}

func (s *Server) serveConn(c net.Conn) {
    defer c.Close()
    if s.OnClose != nil {
        defer s.OnClose(c)
    }
    remoteAddr := c.RemoteAddr().String()
    br := bufio.NewReader(c)
    bw := bufio.NewWriter(c)
    var alive = true
    firstRequest := true
    for alive {
        if s.ReadHeaderTimeout > 0 {
            _ = c.SetReadDeadline(time.Now().Add(s.ReadHeaderTimeout))
        }
        rr := &http1.Reader{BR: br, MaxHeaderBytes: s.headerLimit()}
        pr, err := rr.ReadRequest()
        if err != nil {
            // A read timeout waiting for the next request on an already
            // idle keep-alive connection isn't a malformed request — the
            // client simply isn't there anymore; close quietly.
            if ne, ok := err.(net.Error); ok && ne.Timeout() && !firstRequest {
                if s.OnError != nil {
                    s.OnError(c, fmt.Errorf("%w: %v", ErrTimeout, err))
                }
                return
            }
            switch {
            case errors.Is(err, http1.ErrHeaderTooLong):
                if s.OnError != nil {
                    s.OnError(c, fmt.Errorf("%w: %v", ErrHeaderTooLarge, err))
                }
                s.writeStatusOnly(bw, 431, "Request Header Fields Too Large")
            case errors.Is(err, http1.ErrUnsupportedProtocol):
                if s.OnError != nil {
                    s.OnError(c, fmt.Errorf("%w: %v", ErrProtocolViolation, err))
                }
                s.writeStatusOnly(bw, 505, "HTTP Version Not Supported")
            default:
                if s.OnError != nil {
                    s.OnError(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
                }
                s.writeStatusOnly(bw, 400, "Bad Request")
            }
            return
        }
        firstRequest = false
        if s.MaxBodyBytes > 0 && pr.ContentLength > s.MaxBodyBytes {
            if s.OnError != nil {
                s.OnError(c, ErrBodyTooLarge)
            }
            s.writeStatusOnly(bw, 413, "Request Entity Too Large")
            return
        }
        if s.OnRequest != nil {
            s.OnRequest(c)
        }

        // Decide keep-alive
        ka := false
        if pr.Proto == "HTTP/1.1" {
            ka = true
        }
        connVal := strings.ToLower(Header(pr.Header).Get("Connection"))
        if pr.Proto == "HTTP/1.1" {
            if connVal == "close" {
                ka = false
            }
        } else {
            if connVal == "keep-alive" {
                ka = true
            }
        }
        // Build httpx.Request
        var u *url.URL
        if strings.HasPrefix(pr.RequestURI, "http://") || strings.HasPrefix(pr.RequestURI, "https://") {
            u, _ = url.Parse(pr.RequestURI)
        } else {
            u, _ = url.ParseRequestURI(pr.RequestURI)
        }
        r := &Request{
            Method:        pr.Method,
            URL:           u,
            RequestURI:    pr.RequestURI,
            Proto:         pr.Proto,
            Header:        Header(pr.Header),
            Body:          pr.Body,
            Host:          Header(pr.Header).Get("Host"),
            ContentLength: pr.ContentLength,
            RemoteAddr:    remoteAddr,
            RequestID:     genID(),
        }

        // Continue the caller's W3C trace context if it sent one; otherwise
        // this request becomes the root of a new trace.
        traceID, parentSpanID, flags, ok := parseTraceparent(Header(pr.Header).Get("traceparent"))
        if !ok {
            traceID, parentSpanID, flags = genTraceID(), "", "01"
        }
        r.TraceID = traceID
        r.SpanID = genSpanID()
        r.ParentSpanID = parentSpanID
        r.TraceState = Header(pr.Header).Get("tracestate")
        ctx := WithTrace(r.Context(), Trace{TraceID: r.TraceID, SpanID: r.SpanID, ParentSpanID: r.ParentSpanID, Flags: flags})
        ctx = WithRequestID(ctx, r.RequestID)

        r.CorrelationID = Header(pr.Header).Get("X-Correlation-ID")
        if r.CorrelationID == "" {
            r.CorrelationID = r.RequestID
        }
        ctx = WithCorrelationID(ctx, r.CorrelationID)
        r = WithContext(r, ctx)

        // If Expect: 100-continue present, send interim response so client sends body.
        if strings.EqualFold(Header(pr.Header).Get("Expect"), "100-continue") {
            // Ignore error; if it fails we'll fail later anyway.
            _ = http1.WriteContinue(bw)
            _ = bw.Flush()
        }

        // Use streaming response writer by default
        srw := &connResponseWriter{bw: bw, proto: pr.Proto, keepAlive: ka, hdr: Header{}}
        h := s.Handler
        if h == nil {
            h = HandlerFunc(func(w ResponseWriter, r *Request) {
                w.WriteHeader(404)
                w.Write([]byte("not found"))
            })
        }

        // Execute handler
        h.ServeHTTP(srw, r)

        // If handler didn't close/drain body, do it here for keep-alive.
        if r.Body != nil {
            _ = r.Body.Close()
        }

        // Finalize streamed response: if chunked, write terminator.
        if s.WriteTimeout > 0 {
            _ = c.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
        }
        if srw.chunked {
            if err := http1.EndChunked(bw); err != nil {
                return
            }
        }
        if err := bw.Flush(); err != nil {
            return
        }

        // Decide if connection remains alive based on final headers/state
        finalKA := srw.keepAlive && (srw.chunked || srw.hdr.Get("Content-Length") != "" || noResponseBody(srw.status, r.Method))
        if !finalKA {
            alive = false
            break
        }
        // Reset deadlines for next request
        if s.IdleTimeout > 0 {
            _ = c.SetReadDeadline(time.Now().Add(s.IdleTimeout))
        } else if s.ReadTimeout > 0 {
            _ = c.SetReadDeadline(time.Now().Add(s.ReadTimeout))
        } else {
            _ = c.SetReadDeadline(time.Time{})
        }
    }
}

func (s *Server) headerLimit() int {
    if s.MaxHeaderBytes <= 0 {
        return 8 << 10
    }
    return s.MaxHeaderBytes
}

func noResponseBody(status int, method string) bool {
    if method == "HEAD" {
        return true
    }
    if status >= 100 && status < 200 {
        return true
    }
    return status == 204 || status == 304
}
