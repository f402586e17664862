package observe

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPClient returns an [http.Client] whose transport emits a client span for
// every outbound request and propagates trace context to the server.
// A zero timeout leaves the client without an overall deadline.
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// MetricsHandler serves the Prometheus scrape endpoint fed by the exporter
// registered in [InitProvider].
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
