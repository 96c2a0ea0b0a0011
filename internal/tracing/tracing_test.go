package tracing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func remoteContext(t *testing.T) (context.Context, trace.TraceID, trace.SpanID) {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc), traceID, spanID
}

func TestHeadersRoundTrip(t *testing.T) {
	shutdown := Setup(slog.New(slog.NewTextHandler(io.Discard, nil)), "test", 1)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	ctx, traceID, spanID := remoteContext(t)

	// a stale traceparent on a redelivered message is replaced, not duplicated
	stale := []kafka.Header{
		{Key: "traceparent", Value: []byte("00-00000000000000000000000000000001-0000000000000001-01")},
		{Key: "content-type", Value: []byte("application/json")},
	}
	headers := InjectHeaders(ctx, stale)

	var traceparents int
	for _, h := range headers {
		if h.Key == "traceparent" {
			traceparents++
		}
	}
	assert.Equal(t, 1, traceparents)
	assert.Equal(t, "application/json", headerCarrier{headers: &headers}.Get("content-type"))

	got := trace.SpanContextFromContext(ExtractHeaders(context.Background(), headers))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
	assert.True(t, got.IsRemote())
}

func TestSetup_RecordsSpans(t *testing.T) {
	shutdown := Setup(slog.New(slog.NewTextHandler(io.Discard, nil)), "test", 1)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, span := otel.Tracer("test").Start(context.Background(), "Checkout")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.IsRecording())
}

func TestLogExporter(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tp := newProvider("test", 1, sdktrace.WithSyncer(NewLogExporter(log)))

	ctx, parent := tp.Tracer("test").Start(context.Background(), "Checkout")
	_, child := tp.Tracer("test").Start(ctx, "DecrementStock", trace.WithAttributes(attribute.String("product_id", "A")))
	child.SetStatus(codes.Error, "insufficient stock")
	child.End()
	parent.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	var entries []map[string]any
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "DecrementStock", first["span"])
	assert.Equal(t, "A", first["product_id"])
	assert.Equal(t, "insufficient stock", first["error"])
	assert.Equal(t, parent.SpanContext().SpanID().String(), first["parent_span_id"])
	assert.Equal(t, parent.SpanContext().TraceID().String(), entries[1]["trace_id"])
	assert.NotContains(t, entries[1], "parent_span_id")
}

func TestNewProvider_ZeroRatioSamplesNothing(t *testing.T) {
	tp := newProvider("test", 0)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "Checkout")
	defer span.End()
	assert.False(t, span.IsRecording())

	// a sampled parent from upstream is still honoured
	ctx, _, _ := remoteContext(t)
	_, child := tp.Tracer("test").Start(ctx, "DeliverConfirmation")
	defer child.End()
	assert.True(t, child.IsRecording())
}
