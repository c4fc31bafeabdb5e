package vector

import (
	"context"
	"errors"
)

// Point is a single entry in a vector collection: an id, a fixed-dimension
// embedding, and arbitrary payload metadata.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchHit is a single match from a similarity search.
type SearchHit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// CollectionInfo describes a collection's configuration and size.
type CollectionInfo struct {
	Name        string
	Dimension   int
	PointsCount uint64
}

// UpsertReport summarizes an idempotent upsert: how many points were newly
// inserted and how many were skipped because their id already existed.
type UpsertReport struct {
	Inserted int
	Skipped  int
}

// Validation errors, raised locally before any request is made.
var (
	ErrEmptyID           = errors.New("point id must not be empty")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidVector     = errors.New("vector contains NaN or infinite component")
)

// Store provides collection lifecycle and point operations against a vector
// index.
type Store interface {
	// EnsureCollection creates the collection if absent. If it exists with a
	// different dimension it is deleted and recreated, which is destructive.
	// Matching dimension is a no-op.
	EnsureCollection(ctx context.Context, name string, dimension int) error
	// UpsertPoints inserts or overwrites points. All vectors must share the
	// dimension of the first point; violations abort before any request.
	UpsertPoints(ctx context.Context, collection string, points []Point) error
	// RetrieveExistingIDs returns the subset of ids currently present.
	RetrieveExistingIDs(ctx context.Context, collection string, ids []string) (map[string]struct{}, error)
	// UpsertIfMissing upserts only points whose id is not yet present and
	// reports insert/skip counts. Idempotent.
	UpsertIfMissing(ctx context.Context, collection string, points []Point) (UpsertReport, error)
	// SearchTopK returns the k nearest points with payload.
	SearchTopK(ctx context.Context, collection string, vector []float32, k int) ([]SearchHit, error)
	// GetPoints retrieves points by id, payload included.
	GetPoints(ctx context.Context, collection string, ids []string) ([]Point, error)
	// DeletePoints removes points by id.
	DeletePoints(ctx context.Context, collection string, ids []string) error
	// DeleteAllPoints clears the collection without dropping it.
	DeleteAllPoints(ctx context.Context, collection string) error
	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)
	// GetCollectionInfo returns a collection's configuration.
	GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)
	// DeleteCollection drops the collection and all its points.
	DeleteCollection(ctx context.Context, name string) error
	// Close releases resources.
	Close() error
}
