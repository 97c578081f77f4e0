package ingress

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
	"time"

	"github.com/eventmesh-go/httpingress/httpx"
)

// DecodeError wraps a body-decode failure, dispatched by the caller as a
// RUNTIME_ERR envelope.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("ingress: body decode failed: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeBody decodes the request body by method and Content-Type: GET
// decodes the query string, POST with a Content-Type containing
// application/json decodes a JSON object,
// any other POST Content-Type runs the form/multipart decoder. Decode
// latency is recorded via recorder.RecordDecodeTimeCost regardless of
// outcome.
func DecodeBody(r *httpx.Request, recorder Recorder) (map[string]interface{}, error) {
	start := time.Now()
	out, err := decodeBody(r)
	if recorder != nil {
		recorder.RecordDecodeTimeCost(float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return out, nil
}

func decodeBody(r *httpx.Request) (map[string]interface{}, error) {
	out := make(map[string]interface{})

	if r.Method == "GET" {
		if r.URL == nil {
			return out, nil
		}
		for k, vv := range r.URL.Query() {
			if len(vv) > 0 {
				out[k] = vv[0]
			}
		}
		return out, nil
	}

	contentType := httpx.Header(r.Header).Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		return decodeJSON(r, out)
	}

	mediaType, params, _ := mime.ParseMediaType(contentType)
	return decodeForm(r, mediaType, params, out)
}

func decodeJSON(r *httpx.Request, out map[string]interface{}) (map[string]interface{}, error) {
	if r.Body == nil {
		return out, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return out, nil
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	for k, v := range decoded {
		out[k] = v
	}
	return out, nil
}

func decodeForm(r *httpx.Request, mediaType string, params map[string]string, out map[string]interface{}) (map[string]interface{}, error) {
	if r.Body == nil {
		return out, nil
	}

	if mediaType == "multipart/form-data" {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart body missing boundary")
		}
		mr := multipart.NewReader(r.Body, boundary)
		form, err := mr.ReadForm(32 << 20)
		if err != nil {
			return nil, err
		}
		// form.File's temp attributes are intentionally left on disk; cleanup
		// is the caller's or a janitor's responsibility, not this decoder's.
		for k, vv := range form.Value {
			if len(vv) > 0 {
				out[k] = vv[0]
			}
		}
		return out, nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, err
	}
	for k, vv := range values {
		if len(vv) > 0 {
			out[k] = vv[0]
		}
	}
	return out, nil
}

// CanonicalJSON re-serializes a decoded body map to canonical JSON bytes
// for EventWrapper.BodyBytes.
func CanonicalJSON(body map[string]interface{}) ([]byte, error) {
	return json.Marshal(body)
}
