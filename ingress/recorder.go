package ingress

import "github.com/eventmesh-go/httpingress/internal/obs"

// Recorder is the ingress-facing metrics contract: request counts, discard
// counts, decode latency and end-to-end request/response latency.
type Recorder interface {
	RecordHTTPRequest(route string)
	RecordHTTPDiscard(route, reason string)
	RecordDecodeTimeCost(ms float64)
	RecordHTTPReqResTimeCost(route string, ms float64)
}

// meterRecorder adapts any obs.Meter to Recorder using the metric names
// internal/metrics.PrometheusMeter registers.
type meterRecorder struct {
	meter obs.Meter
}

// NewRecorder builds a Recorder backed by meter. A nil meter is replaced
// with obs.NopMeter.
func NewRecorder(meter obs.Meter) Recorder {
	if meter == nil {
		meter = obs.NopMeter{}
	}
	return meterRecorder{meter: meter}
}

func (m meterRecorder) RecordHTTPRequest(route string) {
	m.meter.Counter("http_requests_total", 1, obs.Label{Key: "route", Value: route})
}

func (m meterRecorder) RecordHTTPDiscard(route, reason string) {
	m.meter.Counter("http_discards_total", 1, obs.Label{Key: "route", Value: route}, obs.Label{Key: "reason", Value: reason})
}

func (m meterRecorder) RecordDecodeTimeCost(ms float64) {
	m.meter.Histogram("decode_time_cost_ms", ms)
}

func (m meterRecorder) RecordHTTPReqResTimeCost(route string, ms float64) {
	m.meter.Histogram("http_req_res_time_cost_ms", ms, obs.Label{Key: "route", Value: route})
}
