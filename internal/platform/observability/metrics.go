package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/atelier-market/api/internal/platform/observability"

// HTTPMetrics records request counts and latency through the global otel meter provider.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewHTTPMetrics registers the HTTP instruments on the given meter provider (global when nil).
func NewHTTPMetrics(provider metric.MeterProvider) (*HTTPMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)
	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Completed HTTP requests"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

// Record adds one completed request. A nil receiver is a no-op.
func (m *HTTPMetrics) Record(ctx context.Context, method, route string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("http.route", route),
		attribute.String("http.response.status_code", strconv.Itoa(status)),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(latency.Microseconds())/1000, attrs)
}
