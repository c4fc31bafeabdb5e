package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInitTracing_DisabledWithoutEndpoint(t *testing.T) {
	tp, err := InitTracing(context.Background(), &TracingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected a usable no-op tracer")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown of no-op provider: %v", err)
	}
}

func TestInitTracing_NilConfigUsesDefaults(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected tracer")
	}
}

func TestSpanHelpers(t *testing.T) {
	ctx := context.Background()

	_, span := StartIngestSpan(ctx, "docs", 3)
	RecordIngestResult(span, 2, 1, 3, 0)
	RecordError(span, errors.New("boom"))
	span.End()

	_, span = StartLLMSpan(ctx, "openai", "gpt-4o-mini")
	RecordLLMMetrics(span, 100, 50, 200*time.Millisecond)
	span.End()

	_, span = StartQuerySpan(ctx, "docs", 5)
	RecordQueryResult(span, 4, 12)
	span.End()

	_, span = StartVectorSpan(ctx, "upsert", "docs")
	span.End()
	_, span = StartGraphSpan(ctx, "ingest_bulk")
	span.End()
	_, span = StartEmbedSpan(ctx, 10)
	span.End()
}
