package messaging

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestMessageCarrier(t *testing.T) {
	msg := &kafka.Message{}
	carrier := NewMessageCarrier(msg)

	carrier.Set("traceparent", "a")
	carrier.Set("baggage", "b")
	carrier.Set("traceparent", "c")

	if got := carrier.Get("traceparent"); got != "c" {
		t.Errorf("expected overwritten header c, got %q", got)
	}
	if got := carrier.Get("missing"); got != "" {
		t.Errorf("expected empty value for missing key, got %q", got)
	}
	if len(msg.Headers) != 2 {
		t.Errorf("expected 2 headers, got %d", len(msg.Headers))
	}
	if keys := carrier.Keys(); len(keys) != 2 || keys[0] != "traceparent" || keys[1] != "baggage" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestMessageCarrier_PropagatesTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	propagator := propagation.TraceContext{}
	msg := &kafka.Message{}
	propagator.Inject(ctx, NewMessageCarrier(msg))

	extracted := trace.SpanContextFromContext(propagator.Extract(context.Background(), NewMessageCarrier(msg)))
	if extracted.TraceID() != traceID {
		t.Errorf("expected trace id %s, got %s", traceID, extracted.TraceID())
	}
	if !extracted.IsRemote() {
		t.Error("expected extracted span context to be remote")
	}
}
