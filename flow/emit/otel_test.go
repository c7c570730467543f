package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTelEmitterEmit(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{
		ExecutionID: "exec-001",
		Seq:         1,
		NodeID:      "content",
		Msg:         "node_start",
		Meta: map[string]any{
			"node_type": "content-generator",
			"tokens":    150,
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != "node_start" {
		t.Errorf("span name = %q, want node_start", span.Name)
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["ellflow.execution_id"]; got != "exec-001" {
		t.Errorf("execution_id = %v, want exec-001", got)
	}
	if got := attrs["ellflow.seq"]; got != int64(1) {
		t.Errorf("seq = %v, want 1", got)
	}
	if got := attrs["ellflow.node_id"]; got != "content" {
		t.Errorf("node_id = %v, want content", got)
	}
	if got := attrs["ellflow.node_type"]; got != "content-generator" {
		t.Errorf("node_type = %v, want content-generator", got)
	}
	if got := attrs["ellflow.llm.tokens"]; got != int64(150) {
		t.Errorf("tokens = %v, want 150", got)
	}
	if !span.EndTime.After(span.StartTime) {
		t.Error("span was not ended")
	}
}

func TestOTelEmitterErrorStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{
		ExecutionID: "exec-001",
		Seq:         2,
		NodeID:      "content",
		Msg:         "node_error",
		Meta:        map[string]any{"error": "generation failed"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status.Code)
	}
	if span.Status.Description != "generation failed" {
		t.Errorf("description = %q, want generation failed", span.Status.Description)
	}
	if len(span.Events) == 0 {
		t.Error("expected recorded error event")
	}
}

func TestOTelEmitterMetaTypes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{
		ExecutionID: "exec-001",
		Msg:         "node_complete",
		Meta: map[string]any{
			"model":       "gpt-4o-mini",
			"duration_ms": 250 * time.Millisecond,
			"streamed":    true,
			"ratio":       0.5,
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	attrs := attributeMap(spans[0].Attributes)
	if got := attrs["ellflow.llm.model"]; got != "gpt-4o-mini" {
		t.Errorf("model = %v", got)
	}
	if got := attrs["ellflow.node.duration_ms"]; got != int64(250) {
		t.Errorf("duration_ms = %v, want 250", got)
	}
	if got := attrs["ellflow.streamed"]; got != true {
		t.Errorf("streamed = %v, want true", got)
	}
	if got := attrs["ellflow.ratio"]; got != 0.5 {
		t.Errorf("ratio = %v, want 0.5", got)
	}
}

func TestOTelEmitterNilMeta(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{ExecutionID: "exec-001", Msg: "execution_complete"})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	attrs := attributeMap(spans[0].Attributes)
	if got := attrs["ellflow.execution_id"]; got != "exec-001" {
		t.Errorf("execution_id = %v, want exec-001", got)
	}
}

func TestOTelEmitterFlush(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{ExecutionID: "exec-001", Msg: "node_start"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := emitter.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 1 {
		t.Errorf("spans after flush = %d, want 1", got)
	}
}

// attributeMap flattens span attributes for assertions.
func attributeMap(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}
