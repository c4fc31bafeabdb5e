package neo4j

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/efebarandurmaz/crucible/internal/graph"
)

// safeIdentifier matches the only label, type, and field names allowed to be
// spliced into query text. Everything else is bound as a parameter.
var safeIdentifier = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// sanitizeLabel returns the label if it is a safe identifier, otherwise the
// default entity label.
func sanitizeLabel(label string) string {
	if safeIdentifier.MatchString(label) {
		return label
	}
	return graph.DefaultLabel
}

// labelExpr builds a ":Entity:Foo" expression from the given labels. The
// default label is always present, unsafe labels collapse into it, and
// duplicates are dropped.
func labelExpr(labels []string) string {
	seen := map[string]bool{graph.DefaultLabel: true}
	expr := ":" + graph.DefaultLabel
	for _, l := range labels {
		l = sanitizeLabel(l)
		if seen[l] {
			continue
		}
		seen[l] = true
		expr += ":" + l
	}
	return expr
}

// fieldName validates a property name used as an identifier in query text.
func fieldName(field string) (string, error) {
	if !safeIdentifier.MatchString(field) {
		return "", fmt.Errorf("unsafe field name %q", field)
	}
	return field, nil
}

// predicateClauses renders predicates against the given alias into WHERE
// fragments plus their bound parameters. Parameter names are prefixed to stay
// distinct from other parameters in the same query.
func predicateClauses(alias string, predicates []graph.Predicate) ([]string, map[string]any, error) {
	clauses := make([]string, 0, len(predicates))
	params := make(map[string]any, len(predicates))
	for i, p := range predicates {
		field, err := fieldName(p.Field)
		if err != nil {
			return nil, nil, err
		}
		param := fmt.Sprintf("pred%d", i)
		switch p.Op {
		case graph.OpEq:
			clauses = append(clauses, fmt.Sprintf("%s.%s = $%s", alias, field, param))
		case graph.OpContains:
			clauses = append(clauses, fmt.Sprintf("toLower(toString(%s.%s)) CONTAINS toLower($%s)", alias, field, param))
		case graph.OpIn:
			clauses = append(clauses, fmt.Sprintf("%s.%s IN $%s", alias, field, param))
		default:
			return nil, nil, fmt.Errorf("unsupported predicate op %q", p.Op)
		}
		params[param] = p.Value
	}
	return clauses, params, nil
}

// equalityClauses renders an exact-match property filter. Keys are visited in
// sorted order so the generated query text is stable.
func equalityClauses(alias string, properties map[string]any) ([]string, map[string]any, error) {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	params := make(map[string]any, len(keys))
	for i, k := range keys {
		field, err := fieldName(k)
		if err != nil {
			return nil, nil, err
		}
		param := fmt.Sprintf("prop%d", i)
		clauses = append(clauses, fmt.Sprintf("%s.%s = $%s", alias, field, param))
		params[param] = properties[k]
	}
	return clauses, params, nil
}

// whereClause joins fragments into a WHERE clause, or returns "" when empty.
func whereClause(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

// orderClause renders an ORDER BY fragment, or "" for a nil order.
func orderClause(alias string, order *graph.Order) (string, error) {
	if order == nil {
		return "", nil
	}
	field, err := fieldName(order.Field)
	if err != nil {
		return "", err
	}
	dir := ""
	if order.Desc {
		dir = " DESC"
	}
	return fmt.Sprintf(" ORDER BY %s.%s%s", alias, field, dir), nil
}

// pageClause renders SKIP/LIMIT with bound parameters. A zero limit means
// no LIMIT clause.
func pageClause(page graph.Page, params map[string]any) string {
	clause := ""
	if page.Offset > 0 {
		clause += " SKIP $offset"
		params["offset"] = page.Offset
	}
	if page.Limit > 0 {
		clause += " LIMIT $limit"
		params["limit"] = page.Limit
	}
	return clause
}
