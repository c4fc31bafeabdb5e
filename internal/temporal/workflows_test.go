package temporal

import (
	"testing"

	"github.com/efebarandurmaz/crucible/internal/ingest"
)

func TestChunkFragments(t *testing.T) {
	fragments := make([]ingest.Fragment, 7)
	for i := range fragments {
		fragments[i].ID = string(rune('a' + i))
	}

	chunks := chunkFragments(fragments, 3)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 3 || len(chunks[1]) != 3 || len(chunks[2]) != 1 {
		t.Errorf("chunk sizes = [%d %d %d], want [3 3 1]", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if chunks[2][0].ID != "g" {
		t.Errorf("order not preserved: %v", chunks[2][0].ID)
	}

	if got := chunkFragments(nil, 3); got != nil {
		t.Errorf("empty input should produce no chunks, got %v", got)
	}
}

func TestIngestOutputAdd(t *testing.T) {
	var out IngestOutput
	out.add(ActivityResult{Fragments: 2, Nodes: 3, Inserted: 2})
	out.add(ActivityResult{Fragments: 1, Relationships: 4, Skipped: 1})

	if out.Fragments != 3 || out.Nodes != 3 || out.Relationships != 4 || out.Inserted != 2 || out.Skipped != 1 {
		t.Errorf("aggregate = %+v", out)
	}
}
