// Package observe provides the observability primitives of lisible:
// OpenTelemetry metrics, tracing, trace-aware logging and the HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// for Prometheus scraping via [InitProvider]. [DefaultMetrics] uses the
// global meter provider; tests should call [NewMetrics] with their own
// provider to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every lisible metric.
const meterName = "github.com/MrWong99/lisible"

// Metrics holds the metric instruments of the application. All fields are
// safe for concurrent use.
type Metrics struct {
	// SynthesisDuration tracks remote text-to-speech latency.
	SynthesisDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-to-text latency for dictation
	// grading.
	TranscriptionDuration metric.Float64Histogram

	// Resolutions counts voice resolutions. Attribute: tier.
	Resolutions metric.Int64Counter

	// SynthesisErrors counts failed remote synthesis calls. Attribute: kind.
	SynthesisErrors metric.Int64Counter

	// AvailabilityChanges counts transitions of the shared availability flag.
	// Attributes: name, state.
	AvailabilityChanges metric.Int64Counter

	// LocalSpeechStarts counts utterances the device engine began speaking.
	// Attribute: voice.
	LocalSpeechStarts metric.Int64Counter

	// ActivePlaybacks tracks playback sessions currently running.
	ActivePlaybacks metric.Int64UpDownCounter

	// PlaybackSessions counts finished playback sessions. Attribute: outcome.
	PlaybackSessions metric.Int64Counter

	// Scores counts grading calls. Attributes: mode, tier.
	Scores metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time.
	// Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Remote synthesis of a
// single word usually lands between 100ms and 2s.
var latencyBuckets = []float64{
	0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("lisible.synthesis.duration",
		metric.WithDescription("Latency of remote text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("lisible.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Resolutions, err = m.Int64Counter("lisible.voice.resolutions",
		metric.WithDescription("Voice resolutions by tier."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisErrors, err = m.Int64Counter("lisible.synthesis.errors",
		metric.WithDescription("Failed remote synthesis calls by kind."),
	); err != nil {
		return nil, err
	}
	if met.AvailabilityChanges, err = m.Int64Counter("lisible.availability.changes",
		metric.WithDescription("Transitions of the remote service availability flag."),
	); err != nil {
		return nil, err
	}
	if met.LocalSpeechStarts, err = m.Int64Counter("lisible.local_speech.starts",
		metric.WithDescription("Utterances started by the on-device speech engine."),
	); err != nil {
		return nil, err
	}
	if met.ActivePlaybacks, err = m.Int64UpDownCounter("lisible.playback.active",
		metric.WithDescription("Number of running playback sessions."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackSessions, err = m.Int64Counter("lisible.playback.sessions",
		metric.WithDescription("Finished playback sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Scores, err = m.Int64Counter("lisible.scoring.results",
		metric.WithDescription("Grading calls by mode and tier."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("lisible.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. It panics if instrument creation fails.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordResolution counts one voice resolution at tier.
func (m *Metrics) RecordResolution(ctx context.Context, tier string) {
	m.Resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordSynthesisError counts one failed synthesis call. kind is a short
// classification such as "error", "empty" or "timeout".
func (m *Metrics) RecordSynthesisError(ctx context.Context, kind string) {
	m.SynthesisErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordAvailabilityChange counts a transition of the availability flag.
func (m *Metrics) RecordAvailabilityChange(ctx context.Context, name, state string) {
	m.AvailabilityChanges.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("state", state),
		),
	)
}

// RecordLocalSpeechStart counts one utterance started on the device engine.
func (m *Metrics) RecordLocalSpeechStart(ctx context.Context, voice string) {
	m.LocalSpeechStarts.Add(ctx, 1, metric.WithAttributes(attribute.String("voice", voice)))
}

// RecordPlaybackSession counts a finished playback session.
func (m *Metrics) RecordPlaybackSession(ctx context.Context, outcome string) {
	m.PlaybackSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordScore counts a grading call.
func (m *Metrics) RecordScore(ctx context.Context, mode, tier string) {
	m.Scores.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("tier", tier),
		),
	)
}
