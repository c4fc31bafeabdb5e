package neo4j

import (
	"github.com/efebarandurmaz/crucible/internal/graph"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// writableProps returns the property bag safe to splat with `+=`: id and
// name are managed by the upsert queries themselves and must not be
// overridden through the bag.
func writableProps(properties map[string]any) map[string]any {
	out := make(map[string]any, len(properties))
	for k, v := range properties {
		if k == "id" || k == "name" {
			continue
		}
		out[k] = v
	}
	return out
}

// entityFromNode maps a driver node onto a graph entity. The id and name
// properties become struct fields, everything else lands in Properties.
func entityFromNode(node dbtype.Node) graph.Entity {
	e := graph.Entity{
		Labels:     node.Labels,
		Properties: make(map[string]any, len(node.Props)),
	}
	for k, v := range node.Props {
		switch k {
		case "id":
			e.ID = asString(v)
		case "name":
			e.Name = asString(v)
		default:
			e.Properties[k] = v
		}
	}
	return e
}

// relationshipFromRel maps a driver relationship onto a graph relationship.
// The `type` discriminator property becomes the Type field.
func relationshipFromRel(rel dbtype.Relationship, source, target string) graph.Relationship {
	r := graph.Relationship{
		Source:     source,
		Target:     target,
		Properties: make(map[string]any, len(rel.Props)),
	}
	for k, v := range rel.Props {
		if k == "type" {
			r.Type = asString(v)
			continue
		}
		r.Properties[k] = v
	}
	return r
}

// recordNode extracts a node-valued column from a record.
func recordNode(rec *db.Record, key string) (dbtype.Node, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return dbtype.Node{}, false
	}
	node, ok := v.(dbtype.Node)
	return node, ok
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
