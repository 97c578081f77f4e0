package ingress

// HeaderBuilder customizes header construction for a registered request
// code. The default passes the flattened request headers through
// unchanged; a deployment with code-specific header shaping registers its
// own via Server.SetHeaderBuilder.
type HeaderBuilder func(code string, headerMap map[string]string) (map[string]string, error)

// BodyBuilder is HeaderBuilder's body-side counterpart.
type BodyBuilder func(code string, bodyMap map[string]interface{}) (map[string]interface{}, error)

func defaultHeaderBuilder(_ string, headerMap map[string]string) (map[string]string, error) {
	return headerMap, nil
}

func defaultBodyBuilder(_ string, bodyMap map[string]interface{}) (map[string]interface{}, error) {
	return bodyMap, nil
}

// CodeCommand is the legacy request-code command envelope.
type CodeCommand struct {
	HTTPMethod   string
	HTTPVersion  string
	RequestCode  string
	Header       map[string]string
	Body         map[string]interface{}
	ReqTime      int64
	RequestID    string
	ResponseCode string
	ResponseMsg  string
}

// CreateHTTPCommandResponse returns a copy of c carrying retCode, the way
// the responder builds error-path responses. Success responses are built
// the same way by a processor, which may also set
// ResponseMsg/Body itself before calling AsyncContext.OnComplete.
func (c *CodeCommand) CreateHTTPCommandResponse(retCode ResultCode) *CodeCommand {
	resp := *c
	resp.ResponseCode = string(retCode)
	resp.ResponseMsg = retCode.Message()
	return &resp
}

// HTTPResponse renders c as the JSON envelope written to the client.
func (c *CodeCommand) HTTPResponse() Envelope {
	return Envelope{RetCode: c.ResponseCode, RetMsg: c.ResponseMsg, Data: c.Body}
}
