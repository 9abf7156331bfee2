// Package observe provides application-wide observability primitives for
// Veyra: OpenTelemetry metrics and the Prometheus scrape endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. Tests should use [NewMetrics]
// with a custom [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Veyra metrics.
const meterName = "github.com/veyra-ai/veyra"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CaptureDuration tracks the wall-clock length of captured utterances.
	CaptureDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMFirstToken tracks time from request to first streamed token.
	LLMFirstToken metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency per sentence.
	TTSDuration metric.Float64Histogram

	// PlaybackDuration tracks playback time per sentence buffer.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed conversation turns.
	Turns metric.Int64Counter

	// Interrupts counts user interrupts.
	Interrupts metric.Int64Counter

	// DiscardedTranscripts counts utterances rejected as recognition
	// artifacts.
	DiscardedTranscripts metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attribute:
	//   attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of sentences waiting in the speech queue.
	QueueDepth metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
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
	if met.CaptureDuration, err = m.Float64Histogram("veyra.capture.duration",
		metric.WithDescription("Wall-clock length of captured utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("veyra.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMFirstToken, err = m.Float64Histogram("veyra.llm.first_token",
		metric.WithDescription("Time from chat request to first streamed token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("veyra.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis per sentence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("veyra.playback.duration",
		metric.WithDescription("Playback time per sentence buffer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("veyra.turns",
		metric.WithDescription("Total completed conversation turns."),
	); err != nil {
		return nil, err
	}
	if met.Interrupts, err = m.Int64Counter("veyra.interrupts",
		metric.WithDescription("Total user interrupts."),
	); err != nil {
		return nil, err
	}
	if met.DiscardedTranscripts, err = m.Int64Counter("veyra.transcripts.discarded",
		metric.WithDescription("Utterances rejected as recognition artifacts."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("veyra.provider.errors",
		metric.WithDescription("Total provider errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("veyra.speech.queue_depth",
		metric.WithDescription("Sentences waiting in the speech queue."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordProviderError is a convenience method that records a provider error
// counter increment with the standard attribute set.
func (m *Metrics) RecordProviderError(ctx context.Context, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
