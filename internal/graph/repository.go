package graph

import (
	"context"
)

// DefaultLabel is applied to every entity in addition to any caller labels.
const DefaultLabel = "Entity"

// RelationshipKind is the single native relationship kind. The logical
// relationship type lives in the `type` property, so new kinds never require
// a schema change.
const RelationshipKind = "RELATIONSHIP"

// Entity is a graph node. Identity is ID; Labels always include
// DefaultLabel.
type Entity struct {
	ID         string
	Name       string
	Labels     []string
	Properties map[string]any
}

// Relationship is an edge between two entities, identified by the
// (Source, Target, Type) triple.
type Relationship struct {
	Source     string
	Target     string
	Type       string
	Properties map[string]any
}

// Triple is one subgraph row: an entity, one of its relationships, and the
// node on the other end.
type Triple struct {
	Entity       *Entity
	Relationship *Relationship
	Related      *Entity
}

// Op is a filter predicate operator.
type Op string

const (
	OpEq       Op = "eq"
	OpContains Op = "contains"
	OpIn       Op = "in"
)

// Predicate is one field condition in an advanced query. Values are always
// bound as parameters.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Order names a property to sort by.
type Order struct {
	Field string
	Desc  bool
}

// Page bounds a result set. A zero Limit means no limit.
type Page struct {
	Offset int
	Limit  int
}

// NodeQuery is a declarative node filter.
type NodeQuery struct {
	Labels     []string
	Predicates []Predicate
	Order      *Order
	Page       Page
}

// RelationshipQuery is a declarative relationship filter. Type filters on the
// `type` discriminator property.
type RelationshipQuery struct {
	Type       string
	Predicates []Predicate
	Order      *Order
	Page       Page
}

// Store provides entity and relationship storage in a property graph.
type Store interface {
	// EnsureUniqueIDConstraint creates the unique-id constraint if absent.
	EnsureUniqueIDConstraint(ctx context.Context) error
	// UpsertEntity merges a node by id. On create it sets name and
	// properties; on match the existing name wins and properties are
	// re-applied.
	UpsertEntity(ctx context.Context, e Entity) error
	// UpsertRelationship merges an edge by (source, target, type).
	// Properties from the latest call win.
	UpsertRelationship(ctx context.Context, r Relationship) error
	// GetNodeByID returns the entity, or nil without error when absent.
	GetNodeByID(ctx context.Context, id string) (*Entity, error)
	// ListNodes returns nodes matching all labels and exact property
	// values, paginated.
	ListNodes(ctx context.Context, labels []string, properties map[string]any, page Page) ([]Entity, error)
	// DeleteNode removes a node; with detach set its relationships go too.
	DeleteNode(ctx context.Context, id string, detach bool) error
	// DeleteRelationship removes the edge matched by (source, target, type).
	DeleteRelationship(ctx context.Context, source, target, relType string) error
	// FindByName returns entities whose name contains the fragment,
	// case-insensitively.
	FindByName(ctx context.Context, fragment string) ([]Entity, error)
	// IngestBulk merges all nodes then all relationships in one write
	// transaction. The whole batch commits or rolls back together.
	IngestBulk(ctx context.Context, nodes []Entity, relationships []Relationship) error
	// FetchRelatedGraph expands seed ids into their one-hop neighbors plus
	// the second hop of any matched two-hop path, deduplicated.
	FetchRelatedGraph(ctx context.Context, ids []string) ([]Triple, error)
	// Close releases the underlying driver.
	Close(ctx context.Context) error
}

// AdvancedStore adds declarative predicate queries and fixed-radius
// neighborhood expansion.
type AdvancedStore interface {
	Store

	QueryNodes(ctx context.Context, q NodeQuery) ([]Entity, error)
	QueryRelationships(ctx context.Context, q RelationshipQuery) ([]Relationship, error)
	// ListNeighborsByDepth returns the distinct entities reachable from id
	// within minDepth..maxDepth hops.
	ListNeighborsByDepth(ctx context.Context, id string, minDepth, maxDepth int) ([]Entity, error)
}
