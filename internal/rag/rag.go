// Package rag answers natural-language queries by fusing vector similarity
// hits with graph neighborhood context.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/crucible/internal/graph"
	"github.com/efebarandurmaz/crucible/internal/llm"
	"github.com/efebarandurmaz/crucible/internal/observability"
	"github.com/efebarandurmaz/crucible/internal/vector"
)

// DefaultRAGTemplate frames the graph context when no template is registered
// under KindRAG.
const DefaultRAGTemplate = `Use the knowledge graph below to answer the question.
Only rely on the listed nodes and relationships; say so when the graph does
not contain the answer.`

const answerSystemPrompt = "Provide the answer to the user's question using the supplied context."

// Embedder turns texts into vectors. *vector.Batcher satisfies this.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher is the slice of the vector store the pipeline needs.
type Searcher interface {
	SearchTopK(ctx context.Context, collection string, queryVector []float32, k int) ([]vector.SearchHit, error)
}

// Expander is the slice of the graph store the pipeline needs.
type Expander interface {
	FetchRelatedGraph(ctx context.Context, ids []string) ([]graph.Triple, error)
}

// SearchResult pairs the vector hit ids with the graph neighborhood they
// expand into.
type SearchResult struct {
	IDs      []string
	Subgraph []graph.Triple
}

// Context is a subgraph reshaped for prompting: deduplicated node names and
// human-readable edge strings.
type Context struct {
	Nodes []string
	Edges []string
}

// Pipeline wires the embedder, stores, completion provider, and prompt
// registry into the retrieval flow.
type Pipeline struct {
	embedder Embedder
	searcher Searcher
	expander Expander
	provider llm.Provider
	prompts  *PromptRegistry
}

// NewPipeline creates a Pipeline. The registry may be shared with other
// components; a nil registry gets a private empty one.
func NewPipeline(embedder Embedder, searcher Searcher, expander Expander, provider llm.Provider, prompts *PromptRegistry) *Pipeline {
	if prompts == nil {
		prompts = NewPromptRegistry()
	}
	return &Pipeline{
		embedder: embedder,
		searcher: searcher,
		expander: expander,
		provider: provider,
		prompts:  prompts,
	}
}

// RetrieverSearch embeds the query, takes the top-K vector hits, and expands
// their payload ids into a graph neighborhood. Hits without a usable string
// id in the payload are dropped.
func (p *Pipeline) RetrieverSearch(ctx context.Context, collection, query string, topK int) (*SearchResult, error) {
	vectors, err := p.embedder.EmbedAll(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors, want 1", len(vectors))
	}

	hits, err := p.searcher.SearchTopK(ctx, collection, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		if id, ok := hit.Payload["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}

	subgraph, err := p.expander.FetchRelatedGraph(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("expanding graph neighborhood: %w", err)
	}
	return &SearchResult{IDs: ids, Subgraph: subgraph}, nil
}

// FormatGraphContext reduces subgraph triples into deduplicated node names
// and "<source> <TYPE> <target>" edge strings. Triples missing any part are
// skipped.
func FormatGraphContext(subgraph []graph.Triple) Context {
	var gctx Context
	seen := make(map[string]bool)

	addNode := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		gctx.Nodes = append(gctx.Nodes, name)
	}

	for _, t := range subgraph {
		if t.Entity == nil || t.Related == nil || t.Relationship == nil {
			continue
		}
		addNode(t.Entity.Name)
		addNode(t.Related.Name)
		gctx.Edges = append(gctx.Edges, fmt.Sprintf("%s %s %s", t.Entity.Name, t.Relationship.Type, t.Related.Name))
	}
	return gctx
}

// Answer composes the graph context and the user query into one prompt and
// asks the model. Returns an empty string when the model returns no content.
func (p *Pipeline) Answer(ctx context.Context, gctx Context, query string) (string, error) {
	template, ok := p.prompts.Get(KindRAG)
	if !ok {
		template = DefaultRAGTemplate
	}

	var b strings.Builder
	b.WriteString(template)
	b.WriteString("\n\nNodes:\n")
	for _, n := range gctx.Nodes {
		b.WriteString("- " + n + "\n")
	}
	b.WriteString("\nRelationships:\n")
	for _, e := range gctx.Edges {
		b.WriteString("- " + e + "\n")
	}
	b.WriteString("\nQuestion: " + query)

	resp, err := p.provider.Complete(ctx, &llm.Prompt{
		SystemPrompt: answerSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: b.String()},
		},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("answer completion: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

// Run is the full query path: retrieve, format, answer.
func (p *Pipeline) Run(ctx context.Context, collection, query string, topK int) (string, error) {
	ctx, span := observability.StartQuerySpan(ctx, collection, topK)
	defer span.End()

	result, err := p.RetrieverSearch(ctx, collection, query, topK)
	if err != nil {
		observability.RecordError(span, err)
		return "", err
	}
	observability.RecordQueryResult(span, len(result.IDs), len(result.Subgraph))

	answer, err := p.Answer(ctx, FormatGraphContext(result.Subgraph), query)
	if err != nil {
		observability.RecordError(span, err)
		return "", err
	}
	return answer, nil
}
