package temporal

import (
	"fmt"
	"time"

	"github.com/efebarandurmaz/crucible/internal/ingest"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DefaultTaskQueue is the task queue the ingestion worker listens on.
const DefaultTaskQueue = "crucible-ingest"

const defaultChunkSize = 50

// IngestInput holds the workflow parameters. Fragments and Texts may be
// combined in one run; fragments are ingested first.
type IngestInput struct {
	Collection string
	Fragments  []ingest.Fragment
	Texts      []string

	// ChunkSize bounds how many fragments one activity handles (default 50).
	ChunkSize int
}

// IngestOutput aggregates the run results across all activities.
type IngestOutput struct {
	Fragments     int
	Nodes         int
	Relationships int
	Inserted      int
	Skipped       int
}

// IngestWorkflow ingests fragments chunk by chunk and then runs extraction
// over each raw text. Chunks are processed sequentially so the embedding
// service sees one batch stream at a time; each activity retries on transient
// failure.
func IngestWorkflow(ctx workflow.Context, input IngestInput) (*IngestOutput, error) {
	if input.Collection == "" {
		return nil, fmt.Errorf("ingest workflow: collection is required")
	}
	chunkSize := input.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 2 * time.Second,
			MaximumAttempts: 4,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	output := &IngestOutput{}
	for _, chunk := range chunkFragments(input.Fragments, chunkSize) {
		var result ActivityResult
		if err := workflow.ExecuteActivity(ctx, IngestFragmentsActivity, input.Collection, chunk).Get(ctx, &result); err != nil {
			return nil, fmt.Errorf("fragment chunk: %w", err)
		}
		output.add(result)
	}

	for i, text := range input.Texts {
		var result ActivityResult
		if err := workflow.ExecuteActivity(ctx, IngestTextActivity, input.Collection, text).Get(ctx, &result); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		output.add(result)
	}
	return output, nil
}

func (o *IngestOutput) add(r ActivityResult) {
	o.Fragments += r.Fragments
	o.Nodes += r.Nodes
	o.Relationships += r.Relationships
	o.Inserted += r.Inserted
	o.Skipped += r.Skipped
}

// chunkFragments splits fragments into runs of at most size, preserving
// order.
func chunkFragments(fragments []ingest.Fragment, size int) [][]ingest.Fragment {
	var chunks [][]ingest.Fragment
	for start := 0; start < len(fragments); start += size {
		end := start + size
		if end > len(fragments) {
			end = len(fragments)
		}
		chunks = append(chunks, fragments[start:end])
	}
	return chunks
}
