package neo4j

import (
	"reflect"
	"strings"
	"testing"

	"github.com/efebarandurmaz/crucible/internal/graph"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Component", "Component"},
		{"Pump_Station2", "Pump_Station2"},
		{"", "Entity"},
		{"2Fast", "Entity"},
		{"Bad Label", "Entity"},
		{"n) DETACH DELETE (m", "Entity"},
		{"ünsafe", "Entity"},
	}
	for _, tt := range tests {
		if got := sanitizeLabel(tt.in); got != tt.want {
			t.Errorf("sanitizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLabelExpr(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   string
	}{
		{"empty", nil, ":Entity"},
		{"single", []string{"Component"}, ":Entity:Component"},
		{"dedup", []string{"Component", "Component", "Entity"}, ":Entity:Component"},
		{"unsafe_collapses", []string{"bad label", "Component"}, ":Entity:Component"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := labelExpr(tt.labels); got != tt.want {
				t.Errorf("labelExpr(%v) = %q, want %q", tt.labels, got, tt.want)
			}
		})
	}
}

func TestPredicateClauses(t *testing.T) {
	clauses, params, err := predicateClauses("n", []graph.Predicate{
		{Field: "category", Op: graph.OpEq, Value: "infra"},
		{Field: "name", Op: graph.OpContains, Value: "pump"},
		{Field: "tier", Op: graph.OpIn, Value: []string{"a", "b"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"n.category = $pred0",
		"toLower(toString(n.name)) CONTAINS toLower($pred1)",
		"n.tier IN $pred2",
	}
	if !reflect.DeepEqual(clauses, want) {
		t.Errorf("clauses = %v, want %v", clauses, want)
	}
	if params["pred0"] != "infra" || params["pred1"] != "pump" {
		t.Errorf("params mismatch: %v", params)
	}
}

func TestPredicateClauses_RejectsUnsafeField(t *testing.T) {
	_, _, err := predicateClauses("n", []graph.Predicate{
		{Field: "name = '' OR 1=1", Op: graph.OpEq, Value: "x"},
	})
	if err == nil {
		t.Fatal("expected error for unsafe field name")
	}
}

func TestPredicateClauses_RejectsUnknownOp(t *testing.T) {
	_, _, err := predicateClauses("n", []graph.Predicate{
		{Field: "name", Op: graph.Op("regex"), Value: "x"},
	})
	if err == nil {
		t.Fatal("expected error for unknown op")
	}
}

func TestEqualityClauses_StableOrder(t *testing.T) {
	clauses, params, err := equalityClauses("n", map[string]any{
		"zone": "west", "category": "infra",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"n.category = $prop0", "n.zone = $prop1"}
	if !reflect.DeepEqual(clauses, want) {
		t.Errorf("clauses = %v, want %v", clauses, want)
	}
	if params["prop0"] != "infra" || params["prop1"] != "west" {
		t.Errorf("params mismatch: %v", params)
	}
}

func TestWhereClause(t *testing.T) {
	if got := whereClause(nil); got != "" {
		t.Errorf("empty clauses should render nothing, got %q", got)
	}
	got := whereClause([]string{"a = $x", "b = $y"})
	if got != " WHERE a = $x AND b = $y" {
		t.Errorf("whereClause = %q", got)
	}
}

func TestOrderClause(t *testing.T) {
	got, err := orderClause("n", &graph.Order{Field: "name", Desc: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != " ORDER BY n.name DESC" {
		t.Errorf("orderClause = %q", got)
	}
	if _, err := orderClause("n", &graph.Order{Field: "x; DROP"}); err == nil {
		t.Error("expected error for unsafe order field")
	}
	got, err = orderClause("n", nil)
	if err != nil || got != "" {
		t.Errorf("nil order: got (%q, %v)", got, err)
	}
}

func TestPageClause(t *testing.T) {
	params := map[string]any{}
	got := pageClause(graph.Page{Offset: 10, Limit: 5}, params)
	if got != " SKIP $offset LIMIT $limit" {
		t.Errorf("pageClause = %q", got)
	}
	if params["offset"] != 10 || params["limit"] != 5 {
		t.Errorf("params = %v", params)
	}

	params = map[string]any{}
	if got := pageClause(graph.Page{}, params); got != "" {
		t.Errorf("zero page should render nothing, got %q", got)
	}
	if !strings.Contains(pageClause(graph.Page{Limit: 3}, map[string]any{}), "LIMIT") {
		t.Error("limit-only page should render LIMIT")
	}
}

func TestEntityFromNode(t *testing.T) {
	node := dbtype.Node{
		Labels: []string{"Entity", "Component"},
		Props: map[string]any{
			"id":       "abc",
			"name":     "Pump Station",
			"category": "infra",
		},
	}
	e := entityFromNode(node)
	if e.ID != "abc" || e.Name != "Pump Station" {
		t.Errorf("identity fields: %+v", e)
	}
	if len(e.Labels) != 2 {
		t.Errorf("labels: %v", e.Labels)
	}
	if e.Properties["category"] != "infra" {
		t.Errorf("properties: %v", e.Properties)
	}
	if _, ok := e.Properties["id"]; ok {
		t.Error("id must not leak into Properties")
	}
}

func TestRelationshipFromRel(t *testing.T) {
	rel := dbtype.Relationship{
		Props: map[string]any{"type": "FEEDS", "since": int64(2020)},
	}
	r := relationshipFromRel(rel, "a", "b")
	if r.Source != "a" || r.Target != "b" || r.Type != "FEEDS" {
		t.Errorf("relationship fields: %+v", r)
	}
	if r.Properties["since"] != int64(2020) {
		t.Errorf("properties: %v", r.Properties)
	}
	if _, ok := r.Properties["type"]; ok {
		t.Error("type must not leak into Properties")
	}
}

func TestWritableProps(t *testing.T) {
	props := writableProps(map[string]any{"id": "x", "name": "y", "zone": "west"})
	if _, ok := props["id"]; ok {
		t.Error("id must be stripped")
	}
	if _, ok := props["name"]; ok {
		t.Error("name must be stripped")
	}
	if props["zone"] != "west" {
		t.Errorf("zone lost: %v", props)
	}
}
