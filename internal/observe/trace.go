package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/lisible"

// Baggage members that tie spans and log lines to a learner and to the
// playback session they belong to.
const (
	learnerMember = "lisible.learner_id"
	sessionMember = "lisible.session_id"
)

// Tracer returns the lisible tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The learner and session carried by
// ctx, if any, are recorded as span attributes so every voice.Resolve or
// scoring span of a listen can be found by learner. The caller must call
// span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if attrs := correlationAttrs(ctx); len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return Tracer().Start(ctx, name, opts...)
}

// WithLearner returns ctx carrying learnerID as baggage. An empty ID
// returns ctx unchanged.
func WithLearner(ctx context.Context, learnerID string) context.Context {
	return withMember(ctx, learnerMember, learnerID)
}

// WithSession returns ctx carrying a playback session ID as baggage.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return withMember(ctx, sessionMember, sessionID)
}

// LearnerID returns the learner carried by ctx, or "".
func LearnerID(ctx context.Context) string {
	return baggage.FromContext(ctx).Member(learnerMember).Value()
}

// SessionID returns the playback session carried by ctx, or "".
func SessionID(ctx context.Context) string {
	return baggage.FromContext(ctx).Member(sessionMember).Value()
}

func withMember(ctx context.Context, key, value string) context.Context {
	if value == "" {
		return ctx
	}
	m, err := baggage.NewMemberRaw(key, value)
	if err != nil {
		return ctx
	}
	b, err := baggage.FromContext(ctx).SetMember(m)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, b)
}

func correlationAttrs(ctx context.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if id := LearnerID(ctx); id != "" {
		attrs = append(attrs, attribute.String(learnerMember, id))
	}
	if id := SessionID(ctx); id != "" {
		attrs = append(attrs, attribute.String(sessionMember, id))
	}
	return attrs
}

// CorrelationID returns the trace ID of the span in ctx, or "" when there is
// none. It is echoed to clients as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger annotated with whatever ctx knows:
// trace_id and span_id of the current span, learner_id and session_id from
// baggage.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := LearnerID(ctx); id != "" {
		attrs = append(attrs, slog.String("learner_id", id))
	}
	if id := SessionID(ctx); id != "" {
		attrs = append(attrs, slog.String("session_id", id))
	}
	l := slog.Default()
	if len(attrs) > 0 {
		l = l.With(attrs...)
	}
	return l
}
