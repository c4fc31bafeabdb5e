package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/efebarandurmaz/crucible/internal/observability"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultTokenBudget is the maximum token count packed into a single
// embedding request.
const DefaultTokenBudget = 7000

// Embedder produces one embedding vector per input text, in input order.
// llm.Provider satisfies this.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Batcher turns a list of texts into a list of embedding vectors while
// keeping each upstream request under a token budget. Batches are issued
// sequentially, never concurrently, so downstream rate limits see at most one
// request in flight.
type Batcher struct {
	embedder Embedder
	budget   int

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewBatcher creates a Batcher with the default token budget.
func NewBatcher(embedder Embedder) *Batcher {
	return &Batcher{embedder: embedder, budget: DefaultTokenBudget}
}

// NewBatcherWithBudget creates a Batcher with a custom token budget.
func NewBatcherWithBudget(embedder Embedder, budget int) *Batcher {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	return &Batcher{embedder: embedder, budget: budget}
}

// EmbedAll embeds texts in budget-bounded batches and returns one vector per
// input, at the input's original position. An empty input returns an empty
// slice without any request. A failing batch fails the whole call.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, span := observability.StartEmbedSpan(ctx, len(texts))
	defer span.End()

	counts := make([]int, len(texts))
	for i, t := range texts {
		counts[i] = b.CountTokens(t)
	}

	out := make([][]float32, len(texts))
	for _, batch := range packBatches(counts, b.budget) {
		batchTexts := make([]string, len(batch))
		for j, idx := range batch {
			batchTexts[j] = texts[idx]
		}

		vectors, err := b.embedder.Embed(ctx, batchTexts)
		if err != nil {
			err = fmt.Errorf("embedding batch of %d texts: %w", len(batchTexts), err)
			observability.RecordError(span, err)
			return nil, err
		}
		if len(vectors) != len(batchTexts) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(batchTexts))
		}

		for j, idx := range batch {
			out[idx] = vectors[j]
		}
	}
	return out, nil
}

// CountTokens returns the token count for text using the cl100k encoding,
// falling back to a ceil(len/4) heuristic when the encoding is unavailable
// (e.g. offline, no cached BPE file). Never returns less than 1.
func (b *Batcher) CountTokens(text string) int {
	b.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			b.enc = enc
		}
	})

	if b.enc != nil {
		if n := len(b.enc.Encode(text, nil, nil)); n > 0 {
			return n
		}
		return 1
	}
	return heuristicTokenCount(text)
}

func heuristicTokenCount(text string) int {
	n := (len(text) + 3) / 4
	if n < 1 {
		return 1
	}
	return n
}

// packBatches greedily groups input indices so that each batch's cumulative
// token count stays at or under budget. A single input over budget gets its
// own batch; texts are never split. Order within and across batches follows
// input order.
func packBatches(counts []int, budget int) [][]int {
	var batches [][]int
	var current []int
	used := 0

	for i, c := range counts {
		if c > budget {
			if len(current) > 0 {
				batches = append(batches, current)
				current = nil
				used = 0
			}
			batches = append(batches, []int{i})
			continue
		}
		if used+c > budget && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			used = 0
		}
		current = append(current, i)
		used += c
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
