package extract

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/efebarandurmaz/crucible/internal/llm"
)

type fakeProvider struct {
	content string
	err     error
	gotOpts *llm.RequestOptions
}

func (f *fakeProvider) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	f.gotOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) Name() string { return "fake" }

func sequentialIDs(t *testing.T) {
	t.Helper()
	orig := NewID
	n := 0
	NewID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	t.Cleanup(func() { NewID = orig })
}

func TestExtract_HappyPath(t *testing.T) {
	sequentialIDs(t)
	p := &fakeProvider{content: `{"graph":[
		{"node":"Alice","target_node":"Bob","relationship":"KNOWS"},
		{"node":"Bob","target_node":"Alice","relationship":"TRUSTS"}
	]}`}

	result, err := New(p).Extract(context.Background(), "some text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Nodes) != 2 {
		t.Errorf("expected 2 nodes, got %d: %v", len(result.Nodes), result.Nodes)
	}
	if result.Nodes["Alice"] != "id-1" || result.Nodes["Bob"] != "id-2" {
		t.Errorf("ids not assigned in first-seen order: %v", result.Nodes)
	}
	if len(result.Relationships) != 2 {
		t.Fatalf("expected 2 relationships, got %d", len(result.Relationships))
	}
	if result.Relationships[1].Source != "id-2" || result.Relationships[1].Target != "id-1" {
		t.Errorf("second relationship endpoints wrong: %+v", result.Relationships[1])
	}
	if p.gotOpts == nil || !p.gotOpts.JSONObject {
		t.Error("extraction must request JSON-object response mode")
	}
}

func TestExtract_SameNameResolvesToSameID(t *testing.T) {
	sequentialIDs(t)
	p := &fakeProvider{content: `{"graph":[
		{"node":"Alice","target_node":"Bob","relationship":"KNOWS"},
		{"node":"Carol","target_node":"Alice","relationship":"MANAGES"}
	]}`}

	result, err := New(p).Extract(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Nodes) != 3 {
		t.Fatalf("expected 3 distinct nodes, got %v", result.Nodes)
	}
	if result.Relationships[1].Target != result.Relationships[0].Source {
		t.Error("Alice should map to one id across triples")
	}
}

func TestExtract_IncompleteTriplesContributeNodesOnly(t *testing.T) {
	sequentialIDs(t)
	p := &fakeProvider{content: `{"graph":[
		{"node":"Alice","target_node":"","relationship":""},
		{"node":"Bob","target_node":"Carol","relationship":""}
	]}`}

	result, err := New(p).Extract(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Nodes) != 3 {
		t.Errorf("expected 3 nodes in id map, got %v", result.Nodes)
	}
	if len(result.Relationships) != 0 {
		t.Errorf("incomplete triples must not produce relationships, got %v", result.Relationships)
	}
}

func TestExtract_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing_graph_key", `{"nodes":[]}`},
		{"graph_not_array", `{"graph":{"node":"A"}}`},
		{"non_string_relationship", `{"graph":[{"node":"A","target_node":"B","relationship":5}]}`},
		{"empty_node_name", `{"graph":[{"node":"","target_node":"B","relationship":"R"}]}`},
		{"not_json_at_all", `entities: A knows B`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{content: tt.content}
			_, err := New(p).Extract(context.Background(), "text")
			if !errors.Is(err, ErrSchemaViolation) {
				t.Fatalf("expected ErrSchemaViolation, got %v", err)
			}
		})
	}
}

func TestExtract_RepairsFencedOutput(t *testing.T) {
	sequentialIDs(t)
	p := &fakeProvider{content: "```json\n{\"graph\":[{\"node\":\"A\",\"target_node\":\"B\",\"relationship\":\"LIKES\"},]}\n```"}

	result, err := New(p).Extract(context.Background(), "text")
	if err != nil {
		t.Fatalf("expected fenced output with trailing comma to be repaired, got %v", err)
	}
	if len(result.Relationships) != 1 {
		t.Errorf("expected 1 relationship, got %v", result.Relationships)
	}
}

func TestExtract_EmptyContent(t *testing.T) {
	p := &fakeProvider{content: ""}
	_, err := New(p).Extract(context.Background(), "text")
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation for empty content, got %v", err)
	}
}

func TestExtract_ProviderErrorPropagates(t *testing.T) {
	p := &fakeProvider{err: errors.New("rate limited")}
	_, err := New(p).Extract(context.Background(), "text")
	if err == nil {
		t.Fatal("expected provider error to propagate")
	}
}
