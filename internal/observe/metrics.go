// Package observe provides application-wide observability primitives for
// vocabox: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider], so they can be scraped at /metrics. Tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vocabox metrics.
const meterName = "github.com/MrWong99/vocabox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// TTSDuration tracks synthesis latency. Attribute: provider.
	TTSDuration metric.Float64Histogram

	// AudioDecodes counts decode-and-play attempts by the stage that
	// produced audio. Attribute: path (container, raw_pcm, none).
	AudioDecodes metric.Int64Counter

	// Materializations counts payloads turned into URLs or files.
	// Attributes: kind (url, download), wrapped (true, false).
	Materializations metric.Int64Counter

	// ProviderRequests counts provider API calls. Attributes: provider,
	// kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// ActivePlaybacks tracks playbacks whose output is still held.
	ActivePlaybacks metric.Int64UpDownCounter

	// ActiveMediaRefs tracks registered, unreleased media references.
	ActiveMediaRefs metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path (the route pattern when available).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// single-word and single-sentence synthesis.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TTSDuration, err = m.Float64Histogram("vocabox.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AudioDecodes, err = m.Int64Counter("vocabox.audio.decodes",
		metric.WithDescription("Decode-and-play attempts by decode path."),
	); err != nil {
		return nil, err
	}
	if met.Materializations, err = m.Int64Counter("vocabox.media.materializations",
		metric.WithDescription("Payloads materialized as URLs or downloadable files."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("vocabox.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("vocabox.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActivePlaybacks, err = m.Int64UpDownCounter("vocabox.audio.active_playbacks",
		metric.WithDescription("Number of playbacks currently holding an audio output."),
	); err != nil {
		return nil, err
	}
	if met.ActiveMediaRefs, err = m.Int64UpDownCounter("vocabox.media.active_refs",
		metric.WithDescription("Number of registered media references not yet released."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("vocabox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSynthesis records the latency and outcome of one TTS call.
func (m *Metrics) RecordSynthesis(ctx context.Context, provider string, d time.Duration, err error) {
	m.TTSDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, "tts")
	}
	m.RecordProviderRequest(ctx, provider, "tts", status)
}

// RecordDecode records which decode path a playback took.
func (m *Metrics) RecordDecode(ctx context.Context, path string) {
	m.AudioDecodes.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}

// RecordMaterialization records one URL or download materialization.
func (m *Metrics) RecordMaterialization(ctx context.Context, kind string, wrapped bool) {
	m.Materializations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.Bool("wrapped", wrapped),
		),
	)
}
