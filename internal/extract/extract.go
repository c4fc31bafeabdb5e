// Package extract turns raw text into graph nodes and relationships using a
// language model with a strict JSON output contract.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/efebarandurmaz/crucible/internal/graph"
	"github.com/efebarandurmaz/crucible/internal/llm"
	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
)

// ErrSchemaViolation marks model output that does not match the extraction
// contract. It is a hard failure, no partial acceptance.
var ErrSchemaViolation = errors.New("extraction output violates schema")

// DefaultSystemPrompt is the extraction instruction sent when no custom
// template is configured.
const DefaultSystemPrompt = `You are a knowledge-graph extraction engine.
Given a block of text, extract every relationship between entities, including
implicit ones. Respond with a strict JSON object of exactly this shape:
{"graph":[{"node":"<entity name>","target_node":"<entity name>","relationship":"<TYPE>"}]}
Use short uppercase relationship types. Do not add any other keys or any text
outside the JSON object.`

// Triple is one extracted relationship as the model reports it.
type Triple struct {
	Node         string `json:"node"`
	TargetNode   string `json:"target_node"`
	Relationship string `json:"relationship"`
}

// Result is the normalized extraction output: a name-to-id map covering every
// entity mentioned, and a relationship per complete triple.
type Result struct {
	Nodes         map[string]string
	Relationships []graph.Relationship
}

// NewID produces entity ids. Swappable in tests for determinism.
var NewID = uuid.NewString

// Extractor runs the extraction protocol against a completion provider.
type Extractor struct {
	provider     llm.Provider
	systemPrompt string
}

// New creates an Extractor with the default system prompt.
func New(provider llm.Provider) *Extractor {
	return &Extractor{provider: provider, systemPrompt: DefaultSystemPrompt}
}

// SetSystemPrompt overrides the extraction instruction, e.g. from the prompt
// registry. An empty template restores the default.
func (e *Extractor) SetSystemPrompt(template string) {
	if template == "" {
		e.systemPrompt = DefaultSystemPrompt
		return
	}
	e.systemPrompt = template
}

// Extract sends text to the model in JSON-object mode, validates the response
// against the contract, and normalizes it into ids and relationships.
func (e *Extractor) Extract(ctx context.Context, text string) (*Result, error) {
	resp, err := e.provider.Complete(ctx, &llm.Prompt{
		SystemPrompt: e.systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: text},
		},
	}, &llm.RequestOptions{JSONObject: true})
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return nil, fmt.Errorf("%w: model returned no content", ErrSchemaViolation)
	}

	triples, err := parseTriples(resp.Content)
	if err != nil {
		return nil, err
	}
	return Normalize(triples), nil
}

// parseTriples validates raw model output against the extraction contract.
// A single repair pass handles near-JSON (fences, trailing commas, unquoted
// keys); anything that still misses the schema is a hard failure.
func parseTriples(content string) ([]Triple, error) {
	cleaned := llm.StripMarkdownFences(llm.StripThinkingTags(content))
	if repaired, err := jsonrepair.JSONRepair(cleaned); err == nil {
		cleaned = repaired
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrSchemaViolation, err)
	}
	raw, ok := envelope["graph"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"graph\" key", ErrSchemaViolation)
	}

	var triples []Triple
	if err := json.Unmarshal(raw, &triples); err != nil {
		return nil, fmt.Errorf("%w: \"graph\" is not an array of string triples: %v", ErrSchemaViolation, err)
	}
	for i, t := range triples {
		if t.Node == "" {
			return nil, fmt.Errorf("%w: triple %d has no node", ErrSchemaViolation, i)
		}
	}
	return triples, nil
}

// Normalize walks triples in order, assigning a fresh id the first time a
// name is seen so identical names resolve to the same entity. A triple
// missing its target or relationship type still contributes its node to the
// id map but produces no relationship.
func Normalize(triples []Triple) *Result {
	result := &Result{Nodes: make(map[string]string)}

	idFor := func(name string) string {
		if id, ok := result.Nodes[name]; ok {
			return id
		}
		id := NewID()
		result.Nodes[name] = id
		return id
	}

	for _, t := range triples {
		sourceID := idFor(t.Node)
		if t.TargetNode == "" {
			continue
		}
		targetID := idFor(t.TargetNode)
		if t.Relationship == "" {
			continue
		}
		result.Relationships = append(result.Relationships, graph.Relationship{
			Source: sourceID,
			Target: targetID,
			Type:   t.Relationship,
		})
	}
	return result
}
