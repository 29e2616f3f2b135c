package telemetry

import (
	"net/http"
	"time"
)

// InstrumentedTransport wraps an http.RoundTripper with upstream request metrics.
type InstrumentedTransport struct {
	base http.RoundTripper
}

// NewInstrumentedTransport creates a new instrumented transport.
// If base is nil, http.DefaultTransport is used.
func NewInstrumentedTransport(base http.RoundTripper) *InstrumentedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &InstrumentedTransport{base: base}
}

// RoundTrip implements http.RoundTripper with metrics recording.
func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		outcome := "error"
		if req.Context().Err() != nil {
			outcome = "canceled"
		}
		RecordUpstream(req.Context(), outcome, duration)
		return nil, err
	}

	RecordUpstream(req.Context(), StatusClass(resp.StatusCode), duration)
	return resp, nil
}

// StatusClass buckets an HTTP status code.
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
