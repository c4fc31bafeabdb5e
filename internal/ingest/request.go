package ingest

import (
	"context"
	"fmt"
	"math"

	"github.com/efebarandurmaz/crucible/internal/graph"
	"github.com/efebarandurmaz/crucible/internal/vector"
)

// Request is the generic ingestion DTO: any combination of vector items,
// graph entities, and relationships, applied together. It is validated in
// full before any side effect.
type Request struct {
	Collection    string               `json:"collection,omitempty"`
	VectorItems   []vector.Point       `json:"vector_items,omitempty"`
	GraphEntities []graph.Entity       `json:"graph_entities,omitempty"`
	Relationships []graph.Relationship `json:"relationships,omitempty"`
}

// Validate checks the whole request eagerly. The first violation is
// returned; nothing is written on failure.
func (r *Request) Validate() error {
	if len(r.VectorItems) > 0 {
		if r.Collection == "" {
			return fmt.Errorf("request: collection is required when vector items are present")
		}
		dimension := len(r.VectorItems[0].Vector)
		if dimension == 0 {
			return fmt.Errorf("request: vector item 0: %w", vector.ErrInvalidVector)
		}
		for i, p := range r.VectorItems {
			if p.ID == "" {
				return fmt.Errorf("request: vector item %d: %w", i, vector.ErrEmptyID)
			}
			if len(p.Vector) != dimension {
				return fmt.Errorf("request: vector item %d has dimension %d, want %d: %w",
					i, len(p.Vector), dimension, vector.ErrDimensionMismatch)
			}
			for _, c := range p.Vector {
				if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
					return fmt.Errorf("request: vector item %d: %w", i, vector.ErrInvalidVector)
				}
			}
		}
	}
	for i, e := range r.GraphEntities {
		if e.ID == "" {
			return fmt.Errorf("request: graph entity %d has empty id", i)
		}
	}
	for i, rel := range r.Relationships {
		if rel.Source == "" || rel.Target == "" || rel.Type == "" {
			return fmt.Errorf("request: relationship %d requires source, target and type", i)
		}
	}
	return nil
}

// IngestRequest validates and applies a generic request: vector items via
// upsert-if-missing, entities and relationships in one graph transaction.
func (s *Service) IngestRequest(ctx context.Context, req *Request) (*RunMetrics, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	metrics := NewRunMetrics(req.Collection)

	if len(req.VectorItems) > 0 {
		dimension := len(req.VectorItems[0].Vector)
		if err := s.vectors.EnsureCollection(ctx, req.Collection, dimension); err != nil {
			return nil, fmt.Errorf("ingest request: %w", err)
		}
		report, err := s.vectors.UpsertIfMissing(ctx, req.Collection, req.VectorItems)
		if err != nil {
			return nil, fmt.Errorf("ingest request: %w", err)
		}
		metrics.Inserted = report.Inserted
		metrics.Skipped = report.Skipped
	}

	if len(req.GraphEntities) > 0 || len(req.Relationships) > 0 {
		if err := s.graph.IngestBulk(ctx, req.GraphEntities, req.Relationships); err != nil {
			return nil, fmt.Errorf("ingest request: %w", err)
		}
		metrics.Nodes = len(req.GraphEntities)
		metrics.Relationships = len(req.Relationships)
	}

	metrics.Finish()
	return metrics, nil
}
