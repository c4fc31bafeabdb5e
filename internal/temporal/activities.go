package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/efebarandurmaz/crucible/internal/ingest"
	"github.com/efebarandurmaz/crucible/internal/observability"
)

// ActivityResult is the serializable result passed back to the workflow.
type ActivityResult struct {
	Fragments     int
	Nodes         int
	Relationships int
	Inserted      int
	Skipped       int
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Service *ingest.Service
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// IngestFragmentsActivity ingests one chunk of fragments.
func IngestFragmentsActivity(ctx context.Context, collection string, fragments []ingest.Fragment) (ActivityResult, error) {
	if deps == nil || deps.Service == nil {
		return ActivityResult{}, fmt.Errorf("ingest activity: dependencies not set")
	}

	ctx, span := observability.StartIngestSpan(ctx, collection, len(fragments))
	defer span.End()
	start := time.Now()

	metrics, err := deps.Service.IngestFragments(ctx, collection, fragments)
	if err != nil {
		observability.RecordError(span, err)
		observability.Metrics().RecordIngestRun(time.Since(start), 0, 0, err)
		return ActivityResult{}, err
	}
	observability.RecordIngestResult(span, metrics.Nodes, metrics.Relationships, metrics.Inserted, metrics.Skipped)
	observability.Metrics().RecordIngestRun(time.Since(start), metrics.Inserted, metrics.Skipped, nil)

	return fromRunMetrics(metrics), nil
}

// IngestTextActivity extracts and ingests one raw text.
func IngestTextActivity(ctx context.Context, collection, text string) (ActivityResult, error) {
	if deps == nil || deps.Service == nil {
		return ActivityResult{}, fmt.Errorf("ingest activity: dependencies not set")
	}

	ctx, span := observability.StartIngestSpan(ctx, collection, 1)
	defer span.End()
	start := time.Now()

	metrics, err := deps.Service.IngestText(ctx, collection, text)
	if err != nil {
		observability.RecordError(span, err)
		observability.Metrics().RecordIngestRun(time.Since(start), 0, 0, err)
		return ActivityResult{}, err
	}
	observability.RecordIngestResult(span, metrics.Nodes, metrics.Relationships, metrics.Inserted, metrics.Skipped)
	observability.Metrics().RecordIngestRun(time.Since(start), metrics.Inserted, metrics.Skipped, nil)

	return fromRunMetrics(metrics), nil
}

func fromRunMetrics(m *ingest.RunMetrics) ActivityResult {
	return ActivityResult{
		Fragments:     m.Fragments,
		Nodes:         m.Nodes,
		Relationships: m.Relationships,
		Inserted:      m.Inserted,
		Skipped:       m.Skipped,
	}
}
