package ingress

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eventmesh-go/httpingress/httpx"
)

// ProtocolVersion enumerates the recognized request-code-path protocol
// versions.
type ProtocolVersion string

const (
	ProtocolV1 ProtocolVersion = "V1"
	ProtocolV2 ProtocolVersion = "V2"
)

// KnownProtocolVersion reports whether v (case-insensitive) names a
// recognized ProtocolVersion.
func KnownProtocolVersion(v string) bool {
	switch strings.ToUpper(v) {
	case string(ProtocolV1), string(ProtocolV2):
		return true
	default:
		return false
	}
}

// KnownRequestCode reports whether code is a syntactically valid request
// code: a non-blank stringified non-negative integer. Which codes a
// deployment actually recognizes is owned by whichever processors call
// RegisterCodeProcessor; this only screens out obviously malformed codes
// before a route-table lookup is attempted.
func KnownRequestCode(code string) bool {
	if code == "" {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

const (
	HeaderTimestamp   = "REQ_C2EVENTMESH_TIMESTAMP"
	HeaderVersion     = "VERSION"
	HeaderIP          = "IP"
	HeaderServerIP    = "REQ_SEND_EVENTMESH_IP"
	HeaderRequestCode = "REQUEST_CODE"
)

// headerSnapshot captures the fields a trace span is built from, taken
// before Enrich mutates the request's header map — the span must come from
// a captured snapshot, not from mutated state.
type headerSnapshot struct {
	method  string
	version string
	uri     string
}

func snapshotHeaders(r *httpx.Request) headerSnapshot {
	return headerSnapshot{
		method:  r.Method,
		version: httpx.Header(r.Header).Get(HeaderVersion),
		uri:     r.RequestURI,
	}
}

// Validator enriches and validates inbound requests.
type Validator struct {
	ServerIP string
	Charset  string
	Started  *atomic.Bool
}

// Enrich stamps the injected headers. It must run before Validate, and
// before snapshotHeaders is read for
// anything other than the trace span, since it fills in VERSION when blank.
func (v *Validator) Enrich(r *httpx.Request) {
	h := httpx.Header(r.Header)
	h.Set(HeaderTimestamp, strconv.FormatInt(time.Now().UnixMilli(), 10))
	if h.Get(HeaderVersion) == "" {
		h.Set(HeaderVersion, string(ProtocolV1))
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	h.Set(HeaderIP, host)
	h.Set(HeaderServerIP, v.ServerIP)
}

// Validate returns 0 on pass, or the HTTP status to answer with on
// failure.
func (v *Validator) Validate(r *httpx.Request) int {
	if v.Started != nil && !v.Started.Load() {
		return 503
	}
	if r.Method != "GET" && r.Method != "POST" {
		return 405
	}
	if !KnownProtocolVersion(httpx.Header(r.Header).Get(HeaderVersion)) {
		return 400
	}
	return 0
}

// WriteStatusOnly writes the plain-text, status-only response mandated for
// validation failures. The connection is closed after the flush because
// the Connection: close header written here turns off keep-alive in the
// wire server's ordinary keep-alive decision — a deliberate simplification
// of the original's "write keep-alive header, then close the channel
// anyway" quirk, reaching the same outcome without a side channel.
func (v *Validator) WriteStatusOnly(w httpx.ResponseWriter, status int) {
	charset := v.Charset
	if charset == "" {
		charset = "UTF-8"
	}
	h := w.Header()
	h.Set("Content-Type", fmt.Sprintf("text/plain; charset=%s", charset))
	h.Set("Connection", "close")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(statusText(status)))
}

func statusText(status int) string {
	switch status {
	case 503:
		return "Service Unavailable"
	case 400:
		return "Bad Request"
	case 405:
		return "Method Not Allowed"
	default:
		return strconv.Itoa(status)
	}
}
