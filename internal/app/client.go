package app

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"trafficview.org/internal/metrics"
)

// latencyTrackingRoundTripper records the duration of every outgoing
// request in metrics.OutgoingLatency, labelled by URL without query,
// method and status.
type latencyTrackingRoundTripper struct {
	next http.RoundTripper
}

func (rt *latencyTrackingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	duration := time.Since(start).Seconds()

	status := "error"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	// The query string carries coordinates and free text; keep it out of
	// label values.
	safeURL := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path

	metrics.OutgoingLatency.WithLabelValues(safeURL, req.Method, status).Observe(duration)
	return resp, err
}

// NewPooledClient returns the HTTP client shared by the backend and
// geocoder clients. Connections are pooled, dials and TLS handshakes fail
// fast, and every request is traced with otelhttp and timed into
// metrics.OutgoingLatency. timeout caps a whole request including retries
// of the transport; orchestration steps apply their own, usually shorter,
// context deadline on top.
func NewPooledClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(&latencyTrackingRoundTripper{next: transport}),
		Timeout:   timeout,
	}
}
