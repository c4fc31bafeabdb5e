// Package ingest composes extraction, embedding, and the two stores into
// fragment-level and text-level ingestion. The same id is used as the vector
// point id and the graph entity id so retrieval can hop between stores.
package ingest

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/efebarandurmaz/crucible/internal/extract"
	"github.com/efebarandurmaz/crucible/internal/graph"
	"github.com/efebarandurmaz/crucible/internal/vector"
)

// Embedder turns texts into vectors. *vector.Batcher satisfies this.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor pulls graph structure out of raw text. *extract.Extractor
// satisfies this.
type Extractor interface {
	Extract(ctx context.Context, text string) (*extract.Result, error)
}

// Document is the content of one fragment.
type Document struct {
	Name        string
	Description string
	Tags        []string
	Category    string
}

// Fragment is one logical unit of knowledge, ingested into both stores under
// its ID.
type Fragment struct {
	ID   string
	Meta map[string]any
	Document
}

// Service is the ingestion facade.
type Service struct {
	vectors   vector.Store
	graph     graph.Store
	embedder  Embedder
	extractor Extractor
	log       *log.Logger
}

// NewService wires the facade. The extractor may be nil when text extraction
// is not needed.
func NewService(vectors vector.Store, graphStore graph.Store, embedder Embedder, extractor Extractor) *Service {
	return &Service{
		vectors:   vectors,
		graph:     graphStore,
		embedder:  embedder,
		extractor: extractor,
		log:       log.New(os.Stderr).With("component", "ingest"),
	}
}

// SetLogger replaces the default stderr logger.
func (s *Service) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.log = logger
	}
}

// IngestFragment ingests a single fragment.
func (s *Service) IngestFragment(ctx context.Context, collection string, fragment Fragment) (*RunMetrics, error) {
	return s.IngestFragments(ctx, collection, []Fragment{fragment})
}

// IngestFragments ingests a batch of fragments sharing one embedding pass and
// one collection-dimension check. Vector writes are idempotent via
// upsert-if-missing; graph nodes are merged in a single transaction.
func (s *Service) IngestFragments(ctx context.Context, collection string, fragments []Fragment) (*RunMetrics, error) {
	metrics := NewRunMetrics(collection)
	if collection == "" {
		return nil, fmt.Errorf("ingest: collection name is required")
	}
	if len(fragments) == 0 {
		metrics.Finish()
		return metrics, nil
	}
	for i, f := range fragments {
		if f.ID == "" {
			return nil, fmt.Errorf("ingest: fragment %d: %w", i, vector.ErrEmptyID)
		}
		if f.Description == "" {
			return nil, fmt.Errorf("ingest: fragment %d (%s): empty description", i, f.ID)
		}
	}
	metrics.Fragments = len(fragments)

	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Description
	}
	vectors, err := s.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if len(vectors) != len(fragments) {
		return nil, fmt.Errorf("ingest: got %d vectors for %d fragments", len(vectors), len(fragments))
	}

	dimension := len(vectors[0])
	if err := s.vectors.EnsureCollection(ctx, collection, dimension); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	points := make([]vector.Point, len(fragments))
	entities := make([]graph.Entity, len(fragments))
	for i, f := range fragments {
		points[i] = vector.Point{ID: f.ID, Vector: vectors[i], Payload: fragmentPayload(f)}
		entities[i] = fragmentEntity(f)
	}

	report, err := s.vectors.UpsertIfMissing(ctx, collection, points)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	metrics.Inserted = report.Inserted
	metrics.Skipped = report.Skipped

	if err := s.graph.IngestBulk(ctx, entities, nil); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	metrics.Nodes = len(entities)

	metrics.Finish()
	s.log.Info("ingested fragments",
		"collection", collection,
		"fragments", metrics.Fragments,
		"inserted", metrics.Inserted,
		"skipped", metrics.Skipped,
		"duration", metrics.Duration)
	return metrics, nil
}

// IngestText extracts entities and relationships from raw text, ingests them
// into the graph transactionally, then embeds each entity name into the
// vector collection under the entity's id.
func (s *Service) IngestText(ctx context.Context, collection, text string) (*RunMetrics, error) {
	if s.extractor == nil {
		return nil, fmt.Errorf("ingest: no extractor configured")
	}
	if collection == "" {
		return nil, fmt.Errorf("ingest: collection name is required")
	}
	metrics := NewRunMetrics(collection)

	result, err := s.extractor.Extract(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if len(result.Nodes) == 0 {
		metrics.Finish()
		return metrics, nil
	}

	// Deterministic order for embedding and upserts.
	names := make([]string, 0, len(result.Nodes))
	for name := range result.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	entities := make([]graph.Entity, len(names))
	for i, name := range names {
		entities[i] = graph.Entity{ID: result.Nodes[name], Name: name}
	}
	if err := s.graph.IngestBulk(ctx, entities, result.Relationships); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	metrics.Nodes = len(entities)
	metrics.Relationships = len(result.Relationships)

	vectors, err := s.embedder.EmbedAll(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if len(vectors) != len(names) {
		return nil, fmt.Errorf("ingest: got %d vectors for %d entities", len(vectors), len(names))
	}
	if err := s.vectors.EnsureCollection(ctx, collection, len(vectors[0])); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	points := make([]vector.Point, len(names))
	for i, name := range names {
		points[i] = vector.Point{
			ID:      result.Nodes[name],
			Vector:  vectors[i],
			Payload: map[string]any{"id": result.Nodes[name], "name": name},
		}
	}
	report, err := s.vectors.UpsertIfMissing(ctx, collection, points)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	metrics.Inserted = report.Inserted
	metrics.Skipped = report.Skipped

	metrics.Finish()
	s.log.Info("ingested text",
		"collection", collection,
		"nodes", metrics.Nodes,
		"relationships", metrics.Relationships,
		"duration", metrics.Duration)
	return metrics, nil
}

// fragmentPayload builds the point payload. The id is always present so
// retrieval can resolve hits back to graph entities; caller meta never
// overrides the reserved keys.
func fragmentPayload(f Fragment) map[string]any {
	payload := make(map[string]any, len(f.Meta)+4)
	for k, v := range f.Meta {
		payload[k] = v
	}
	payload["id"] = f.ID
	payload["description"] = f.Description
	if f.Category != "" {
		payload["category"] = f.Category
	}
	if len(f.Tags) > 0 {
		payload["tags"] = f.Tags
	}
	return payload
}

func fragmentEntity(f Fragment) graph.Entity {
	name := f.Name
	if name == "" {
		name = f.Description
	}
	props := map[string]any{"description": f.Description}
	if f.Category != "" {
		props["category"] = f.Category
	}
	if len(f.Tags) > 0 {
		props["tags"] = f.Tags
	}
	for k, v := range f.Meta {
		if _, reserved := props[k]; !reserved {
			props[k] = v
		}
	}
	return graph.Entity{ID: f.ID, Name: name, Properties: props}
}
