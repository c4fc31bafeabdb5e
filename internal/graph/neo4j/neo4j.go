package neo4j

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/efebarandurmaz/crucible/internal/graph"
	"github.com/efebarandurmaz/crucible/internal/observability"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Store implements graph.AdvancedStore on Neo4j. It opens one session per
// operation and always closes it before returning.
type Store struct {
	driver neo4j.DriverWithContext
	log    *log.Logger
}

// NewStore connects to Neo4j and verifies connectivity.
func NewStore(ctx context.Context, uri, username, password string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Store{
		driver: driver,
		log:    log.New(os.Stderr).With("component", "graph"),
	}, nil
}

// SetLogger replaces the default stderr logger.
func (s *Store) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.log = logger
	}
}

func (s *Store) EnsureUniqueIDConstraint(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (n:"+graph.DefaultLabel+") REQUIRE n.id IS UNIQUE",
			nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("ensure unique id constraint: %w", err)
	}
	return nil
}

func (s *Store) UpsertEntity(ctx context.Context, e graph.Entity) error {
	if e.ID == "" {
		return fmt.Errorf("upsert entity: empty id")
	}
	ctx, span := observability.StartGraphSpan(ctx, "upsert_entity")
	defer span.End()

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	// Name is first write wins via coalesce; properties are last write wins.
	query := "MERGE (n" + labelExpr(e.Labels) + " {id: $id}) " +
		"ON CREATE SET n.name = $name " +
		"ON MATCH SET n.name = coalesce(n.name, $name) " +
		"SET n += $props"

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{
			"id":    e.ID,
			"name":  e.Name,
			"props": writableProps(e.Properties),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) UpsertRelationship(ctx context.Context, r graph.Relationship) error {
	if r.Source == "" || r.Target == "" || r.Type == "" {
		return fmt.Errorf("upsert relationship: source, target and type are required")
	}
	ctx, span := observability.StartGraphSpan(ctx, "upsert_relationship")
	defer span.End()

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	// Endpoints are merged too, so an edge upsert never silently drops when
	// a node has not been ingested yet.
	query := "MERGE (a:" + graph.DefaultLabel + " {id: $source}) " +
		"MERGE (b:" + graph.DefaultLabel + " {id: $target}) " +
		"MERGE (a)-[r:" + graph.RelationshipKind + " {type: $type}]->(b) " +
		"SET r += $props"

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{
			"source": r.Source,
			"target": r.Target,
			"type":   r.Type,
			"props":  writableProps(r.Properties),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("upsert relationship %s-[%s]->%s: %w", r.Source, r.Type, r.Target, err)
	}
	return nil
}

func (s *Store) GetNodeByID(ctx context.Context, id string) (*graph.Entity, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (n:"+graph.DefaultLabel+" {id: $id}) RETURN n LIMIT 1",
			map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if records.Next(ctx) {
			if node, ok := recordNode(records.Record(), "n"); ok {
				e := entityFromNode(node)
				return &e, nil
			}
		}
		return (*graph.Entity)(nil), nil
	})
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	return result.(*graph.Entity), nil
}

func (s *Store) ListNodes(ctx context.Context, labels []string, properties map[string]any, page graph.Page) ([]graph.Entity, error) {
	clauses, params, err := equalityClauses("n", properties)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	query := "MATCH (n" + labelExpr(labels) + ")" + whereClause(clauses) +
		" RETURN n ORDER BY n.id" + pageClause(page, params)

	return s.readEntities(ctx, query, params)
}

func (s *Store) DeleteNode(ctx context.Context, id string, detach bool) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	del := "DELETE n"
	if detach {
		del = "DETACH DELETE n"
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"MATCH (n:"+graph.DefaultLabel+" {id: $id}) "+del,
			map[string]any{"id": id})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteRelationship(ctx context.Context, source, target, relType string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"MATCH (:"+graph.DefaultLabel+" {id: $source})-[r:"+graph.RelationshipKind+" {type: $type}]->(:"+graph.DefaultLabel+" {id: $target}) DELETE r",
			map[string]any{"source": source, "target": target, "type": relType})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("delete relationship %s-[%s]->%s: %w", source, relType, target, err)
	}
	return nil
}

func (s *Store) FindByName(ctx context.Context, fragment string) ([]graph.Entity, error) {
	query := "MATCH (n:" + graph.DefaultLabel + ") " +
		"WHERE toLower(n.name) CONTAINS toLower($fragment) RETURN n ORDER BY n.name"
	return s.readEntities(ctx, query, map[string]any{"fragment": fragment})
}

func (s *Store) QueryNodes(ctx context.Context, q graph.NodeQuery) ([]graph.Entity, error) {
	clauses, params, err := predicateClauses("n", q.Predicates)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	order, err := orderClause("n", q.Order)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	if order == "" {
		order = " ORDER BY n.id"
	}
	query := "MATCH (n" + labelExpr(q.Labels) + ")" + whereClause(clauses) +
		" RETURN n" + order + pageClause(q.Page, params)

	return s.readEntities(ctx, query, params)
}

func (s *Store) QueryRelationships(ctx context.Context, q graph.RelationshipQuery) ([]graph.Relationship, error) {
	clauses, params, err := predicateClauses("r", q.Predicates)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	if q.Type != "" {
		clauses = append(clauses, "r.type = $reltype")
		params["reltype"] = q.Type
	}
	order, err := orderClause("r", q.Order)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	if order == "" {
		order = " ORDER BY a.id"
	}
	query := "MATCH (a:" + graph.DefaultLabel + ")-[r:" + graph.RelationshipKind + "]->(b:" + graph.DefaultLabel + ")" +
		whereClause(clauses) + " RETURN a.id AS source, b.id AS target, r" + order + pageClause(q.Page, params)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var out []graph.Relationship
		for records.Next(ctx) {
			rec := records.Record()
			source, _ := rec.Get("source")
			target, _ := rec.Get("target")
			rv, _ := rec.Get("r")
			rel, ok := rv.(dbtype.Relationship)
			if !ok {
				continue
			}
			out = append(out, relationshipFromRel(rel, asString(source), asString(target)))
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	return result.([]graph.Relationship), nil
}

func (s *Store) ListNeighborsByDepth(ctx context.Context, id string, minDepth, maxDepth int) ([]graph.Entity, error) {
	if minDepth < 1 {
		minDepth = 1
	}
	if maxDepth < minDepth {
		maxDepth = minDepth
	}
	// Variable-length bounds cannot be bound parameters; they are validated
	// integers formatted into the pattern.
	query := fmt.Sprintf(
		"MATCH (n:%s {id: $id})-[:%s*%d..%d]-(m:%s) WHERE m.id <> $id RETURN DISTINCT m",
		graph.DefaultLabel, graph.RelationshipKind, minDepth, maxDepth, graph.DefaultLabel)

	return s.readEntities(ctx, query, map[string]any{"id": id})
}

func (s *Store) IngestBulk(ctx context.Context, nodes []graph.Entity, relationships []graph.Relationship) error {
	if len(nodes) == 0 && len(relationships) == 0 {
		return nil
	}
	nodeRows := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("ingest bulk: node %d has empty id", i)
		}
		nodeRows[i] = map[string]any{"id": n.ID, "name": n.Name, "props": writableProps(n.Properties)}
	}
	relRows := make([]map[string]any, len(relationships))
	for i, r := range relationships {
		if r.Source == "" || r.Target == "" || r.Type == "" {
			return fmt.Errorf("ingest bulk: relationship %d is incomplete", i)
		}
		relRows[i] = map[string]any{"source": r.Source, "target": r.Target, "type": r.Type, "props": writableProps(r.Properties)}
	}

	ctx, span := observability.StartGraphSpan(ctx, "ingest_bulk")
	defer span.End()

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodeRows) > 0 {
			_, err := tx.Run(ctx,
				"UNWIND $nodes AS node "+
					"MERGE (n:"+graph.DefaultLabel+" {id: node.id}) "+
					"ON CREATE SET n.name = node.name "+
					"ON MATCH SET n.name = coalesce(n.name, node.name) "+
					"SET n += node.props",
				map[string]any{"nodes": nodeRows})
			if err != nil {
				return nil, err
			}
		}
		if len(relRows) > 0 {
			_, err := tx.Run(ctx,
				"UNWIND $rels AS rel "+
					"MERGE (a:"+graph.DefaultLabel+" {id: rel.source}) "+
					"MERGE (b:"+graph.DefaultLabel+" {id: rel.target}) "+
					"MERGE (a)-[r:"+graph.RelationshipKind+" {type: rel.type}]->(b) "+
					"SET r += rel.props",
				map[string]any{"rels": relRows})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		s.log.Warn("bulk ingest failed", "nodes", len(nodes), "relationships", len(relationships), "error", err)
		err = fmt.Errorf("ingest bulk (%d nodes, %d relationships): %w", len(nodes), len(relationships), err)
		observability.RecordError(span, err)
		return err
	}
	return nil
}

func (s *Store) FetchRelatedGraph(ctx context.Context, ids []string) ([]graph.Triple, error) {
	if len(ids) == 0 {
		return []graph.Triple{}, nil
	}
	ctx, span := observability.StartGraphSpan(ctx, "fetch_related")
	defer span.End()

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	// One-hop neighbors of the seeds, plus the second hop of matched
	// two-hop paths. UNION deduplicates rows.
	query := "MATCH (n:" + graph.DefaultLabel + ")-[r:" + graph.RelationshipKind + "]-(m:" + graph.DefaultLabel + ") " +
		"WHERE n.id IN $ids RETURN n AS entity, r AS rel, m AS related " +
		"UNION " +
		"MATCH (n:" + graph.DefaultLabel + ")-[:" + graph.RelationshipKind + "]-(m:" + graph.DefaultLabel + ")-[r:" + graph.RelationshipKind + "]-(o:" + graph.DefaultLabel + ") " +
		"WHERE n.id IN $ids AND o.id <> n.id RETURN m AS entity, r AS rel, o AS related"

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, query, map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}
		var out []graph.Triple
		for records.Next(ctx) {
			rec := records.Record()
			entityNode, okE := recordNode(rec, "entity")
			relatedNode, okR := recordNode(rec, "related")
			rv, _ := rec.Get("rel")
			rel, okRel := rv.(dbtype.Relationship)
			if !okE || !okR || !okRel {
				continue
			}
			entity := entityFromNode(entityNode)
			related := entityFromNode(relatedNode)
			relationship := relationshipFromRel(rel, entity.ID, related.ID)
			out = append(out, graph.Triple{
				Entity:       &entity,
				Relationship: &relationship,
				Related:      &related,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch related graph: %w", err)
	}
	return result.([]graph.Triple), nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// readEntities runs a read query whose rows carry a single node column.
func (s *Store) readEntities(ctx context.Context, query string, params map[string]any) ([]graph.Entity, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var out []graph.Entity
		for records.Next(ctx) {
			rec := records.Record()
			for _, key := range rec.Keys {
				if node, ok := recordNode(rec, key); ok {
					out = append(out, entityFromNode(node))
					break
				}
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}
	return result.([]graph.Entity), nil
}

var _ graph.AdvancedStore = (*Store)(nil)
