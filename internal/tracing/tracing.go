// Package tracing owns the process-wide OpenTelemetry setup: the tracer
// provider, the W3C propagator and the Kafka header carrier that carries
// trace context from the API server to the notifier.
package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Setup installs a tracer provider for service and the trace-context
// propagator. Sampled spans are written to log at debug level. The returned
// func flushes buffered spans and must be called before exit.
func Setup(log *slog.Logger, service string, sampleRatio float64) func(context.Context) error {
	tp := newProvider(service, sampleRatio, sdktrace.WithBatcher(NewLogExporter(log)))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown
}

func newProvider(service string, sampleRatio float64, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append(opts,
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", service))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	)
	return sdktrace.NewTracerProvider(opts...)
}

// LogExporter writes finished spans as structured log records.
type LogExporter struct {
	log *slog.Logger
}

func NewLogExporter(log *slog.Logger) *LogExporter {
	return &LogExporter{log: log}
}

func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		sc := s.SpanContext()
		attrs := []slog.Attr{
			slog.String("span", s.Name()),
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
			slog.Duration("duration", s.EndTime().Sub(s.StartTime())),
		}
		if parent := s.Parent(); parent.IsValid() {
			attrs = append(attrs, slog.String("parent_span_id", parent.SpanID().String()))
		}
		if status := s.Status(); status.Code == codes.Error {
			attrs = append(attrs, slog.String("error", status.Description))
		}
		for _, kv := range s.Attributes() {
			attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}
		e.log.LogAttrs(ctx, slog.LevelDebug, "span finished", attrs...)
	}
	return nil
}

func (e *LogExporter) Shutdown(context.Context) error { return nil }
