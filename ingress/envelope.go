package ingress

import (
	"encoding/json"
	"strconv"

	"github.com/eventmesh-go/httpingress/httpx"
)

// ResultCode is the result-code taxonomy: success, the dispatcher-level
// failure codes, and whatever a processor returns of its own.
type ResultCode string

const (
	CodeSuccess                ResultCode = "0"
	CodeRequestCodeInvalid     ResultCode = "REQUESTCODE_INVALID"
	CodeRuntimeErr             ResultCode = "RUNTIME_ERR"
	CodeRejectByProcessorError ResultCode = "REJECT_BY_PROCESSOR_ERROR"
	CodeOverload               ResultCode = "OVERLOAD"
)

// Message returns the default retMsg for the built-in codes and the code
// itself for any other value. A code-path processor can override the
// message by setting CodeCommand.ResponseMsg; EventWrapper.HTTPResponse
// always uses Message.
func (c ResultCode) Message() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeRequestCodeInvalid:
		return "request code invalid"
	case CodeRuntimeErr:
		return "runtime error"
	case CodeRejectByProcessorError:
		return "rejected by processor"
	case CodeOverload:
		return "server overloaded, please retry"
	default:
		return string(c)
	}
}

// Envelope is the JSON document returned to the client for both the
// code-path and URI-path response shapes.
type Envelope struct {
	RetCode string      `json:"retCode"`
	RetMsg  string      `json:"retMsg"`
	Data    interface{} `json:"data,omitempty"`
}

// writeEnvelope is the single funnel both CodeCommand.HTTPResponse and
// EventWrapper.HTTPResponse write through (via Server.finishAndWrite), so
// Content-Type: application/json and Content-Length are set in one place.
// The Connection header is not set here; keep-alive is left to the wire
// server's own decision for the request.
func writeEnvelope(w httpx.ResponseWriter, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		body = []byte(`{"retCode":"RUNTIME_ERR","retMsg":"envelope encode failed"}`)
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(200)
	_, werr := w.Write(body)
	// The streaming connResponseWriter buffers until flushed; push the
	// envelope out immediately rather than waiting for serveConn's
	// end-of-loop flush, so a processor that held the connection a long
	// time doesn't also delay delivery of its own response.
	if f, ok := w.(httpx.Flusher); ok {
		_ = f.Flush()
	}
	return werr
}
