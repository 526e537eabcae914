package observability

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("mentalpalace")

// StartSpan starts a span on the globally registered tracer provider. Spans
// are no-ops until InstallTracing (or an embedder) registers a provider.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, opts...)
}

// InstallTracing registers a global SDK tracer provider that samples ratio of
// root spans and writes finished spans to logger. A ratio <= 0 leaves the
// no-op provider in place. The returned func flushes and stops the provider.
func InstallTracing(logger zerolog.Logger, ratio float64) func(context.Context) error {
	if ratio <= 0 {
		return func(context.Context) error { return nil }
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(newLogExporter(logger)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// logExporter is a span exporter that emits one log event per span.
type logExporter struct {
	log zerolog.Logger
}

func newLogExporter(logger zerolog.Logger) *logExporter {
	return &logExporter{log: logger.With().Str("component", "trace").Logger()}
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		ev := e.log.Info().
			Str("span", s.Name()).
			Str("trace_id", s.SpanContext().TraceID().String()).
			Str("span_id", s.SpanContext().SpanID().String()).
			Dur("duration", s.EndTime().Sub(s.StartTime()))
		if parent := s.Parent(); parent.IsValid() {
			ev = ev.Str("parent_id", parent.SpanID().String())
		}
		for _, kv := range s.Attributes() {
			ev = ev.Str(string(kv.Key), kv.Value.Emit())
		}
		if st := s.Status(); st.Code == codes.Error {
			ev = ev.Str("status", st.Description)
		}
		ev.Msg("span finished")
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error { return nil }
