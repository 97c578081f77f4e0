package ingress

import "encoding/json"

// EventWrapper is the URI-routed event command envelope. BodyBytes holds
// the canonical JSON re-serialization of the decoded body map, so a
// processor that round-trips the body back unchanged reproduces byte-for-
// byte identical output.
type EventWrapper struct {
	HTTPVersion string
	RequestURI  string
	HeaderMap   map[string]string
	BodyBytes   []byte
	ReqTime     int64
	RequestID   string

	retCode ResultCode
	data    interface{}
}

// CreateHTTPResponse returns a copy of e carrying retCode. A processor
// completing successfully builds its own response the same way, then attaches its own
// payload via SetData before calling AsyncContext.OnComplete.
func (e *EventWrapper) CreateHTTPResponse(retCode ResultCode) *EventWrapper {
	resp := *e
	resp.retCode = retCode
	if resp.data == nil {
		resp.data = e.decodedBody()
	}
	return &resp
}

// SetData attaches a processor-specific response payload, returning e for
// chaining.
func (e *EventWrapper) SetData(data interface{}) *EventWrapper {
	e.data = data
	return e
}

func (e *EventWrapper) decodedBody() interface{} {
	if len(e.BodyBytes) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(e.BodyBytes, &m); err != nil {
		return nil
	}
	return m
}

// HTTPResponse renders e as the JSON envelope written to the client.
func (e *EventWrapper) HTTPResponse() Envelope {
	return Envelope{RetCode: string(e.retCode), RetMsg: e.retCode.Message(), Data: e.data}
}
