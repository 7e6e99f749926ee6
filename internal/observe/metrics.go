// Package observe provides application-wide observability primitives for
// FaceGate: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all FaceGate metrics.
const meterName = "github.com/biosso/facegate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ExtractionDuration tracks embedding extraction latency per call.
	ExtractionDuration metric.Float64Histogram

	// VerificationDuration tracks end-to-end verification latency
	// (extraction + store lookup + matching).
	VerificationDuration metric.Float64Histogram

	// RegistrationDuration tracks end-to-end registration latency. Use with
	// attribute.String("kind", "single"|"bulk").
	RegistrationDuration metric.Float64Histogram

	// --- Counters ---

	// Verifications counts verification attempts. Use with attribute:
	//   attribute.String("outcome", "verified"|"rejected"|"not_registered"|"error")
	Verifications metric.Int64Counter

	// Registrations counts registration attempts. Use with attributes:
	//   attribute.String("kind", "single"|"bulk"), attribute.String("outcome", ...)
	Registrations metric.Int64Counter

	// ProtocolErrors counts per-message protocol errors. Use with attribute:
	//   attribute.String("reason", ...)
	ProtocolErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveConnections tracks live enrollment/verification websocket
	// connections.
	ActiveConnections metric.Int64UpDownCounter

	// ActiveFeedbackStreams tracks live frame-feedback websocket connections.
	ActiveFeedbackStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// image extraction and matching latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ExtractionDuration, err = m.Float64Histogram("facegate.extraction.duration",
		metric.WithDescription("Latency of embedding extraction per image."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VerificationDuration, err = m.Float64Histogram("facegate.verification.duration",
		metric.WithDescription("End-to-end verification latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RegistrationDuration, err = m.Float64Histogram("facegate.registration.duration",
		metric.WithDescription("End-to-end registration latency by kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Verifications, err = m.Int64Counter("facegate.verifications",
		metric.WithDescription("Total verification attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Registrations, err = m.Int64Counter("facegate.registrations",
		metric.WithDescription("Total registration attempts by kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolErrors, err = m.Int64Counter("facegate.protocol.errors",
		metric.WithDescription("Total per-message protocol errors by reason."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConnections, err = m.Int64UpDownCounter("facegate.active_connections",
		metric.WithDescription("Number of live enrollment/verification websocket connections."),
	); err != nil {
		return nil, err
	}
	if met.ActiveFeedbackStreams, err = m.Int64UpDownCounter("facegate.active_feedback_streams",
		metric.WithDescription("Number of live frame-feedback websocket connections."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("facegate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordVerification increments the verification counter with its outcome.
func (m *Metrics) RecordVerification(ctx context.Context, outcome string) {
	m.Verifications.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRegistration increments the registration counter with kind and outcome.
func (m *Metrics) RecordRegistration(ctx context.Context, kind, outcome string) {
	m.Registrations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		))
}

// RecordProtocolError increments the protocol error counter with its reason.
func (m *Metrics) RecordProtocolError(ctx context.Context, reason string) {
	m.ProtocolErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}
