// Package sqlgen lowers the Cypher AST onto parameterised SQL against
// the fixed two-table property-graph schema. One Generate call owns all
// of its state; the package keeps nothing between calls and is safe for
// concurrent use.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/ritamzico/cyphergres/internal/ast"
)

// Generate maps a parsed query to a SQL string plus a positional
// parameter list. Named parameters are interned: every occurrence of
// one $name shares a single positional slot. When groupID is non-empty
// it is bound as $1 and every node and edge alias is constrained to it.
func Generate(q *ast.Query, namedParams map[string]any, groupID string) (string, []any, error) {
	g := newGenerator(namedParams, groupID)

	first, cols, err := g.single(q.Single)
	if err != nil {
		return "", nil, err
	}
	if len(q.Unions) > 0 {
		first = parenthesizeCTE(first)
	}
	sql := first
	for _, u := range q.Unions {
		side, sideCols, err := g.single(u.Query)
		if err != nil {
			return "", nil, err
		}
		if len(sideCols) != len(cols) {
			return "", nil, &GenerationError{Kind: "Union",
				Message: fmt.Sprintf("UNION sides project %d and %d columns", len(cols), len(sideCols))}
		}
		op := " UNION "
		if u.All {
			op = " UNION ALL "
		}
		sql += op + parenthesizeCTE(side)
	}
	return sql, g.params, nil
}

// parenthesizeCTE wraps a union arm that carries its own CTE prefix so
// the prefix stays local to that arm.
func parenthesizeCTE(s string) string {
	if strings.HasPrefix(s, "WITH ") {
		return "(" + s + ")"
	}
	return s
}

// single compiles one clause sequence. It returns the full statement
// (CTE prefix included) and the projected column names when the query
// ends in RETURN.
func (g *generator) single(sq *ast.SingleQuery) (string, []string, error) {
	g.scope = newScope()
	g.ctes = nil
	g.recursive = false

	for i, c := range sq.Clauses {
		last := i == len(sq.Clauses)-1
		switch c := c.(type) {
		case *ast.Match:
			if err := g.compileMatch(c); err != nil {
				return "", nil, err
			}
		case *ast.With:
			if err := g.compileWith(c); err != nil {
				return "", nil, err
			}
		case *ast.Return:
			if !last {
				return "", nil, unsupported("Return", "RETURN must be the final clause")
			}
			body, cols, err := g.compileReturn(c)
			if err != nil {
				return "", nil, err
			}
			return g.assemble(body), cols, nil
		case *ast.Create, *ast.Merge, *ast.Delete, *ast.Set, *ast.Remove:
			if !last {
				return "", nil, unsupported(clauseKind(c), "a writing clause must be the final clause")
			}
			body, err := g.compileWrite(c)
			if err != nil {
				return "", nil, err
			}
			return g.assemble(body), nil, nil
		case *ast.Unwind:
			return "", nil, unsupported("Unwind", "UNWIND cannot be translated to SQL")
		case *ast.Call:
			return "", nil, unsupported("Call", "CALL cannot be translated to SQL")
		default:
			return "", nil, unsupported(clauseKind(c), "clause cannot be translated to SQL")
		}
	}
	return "", nil, unsupported("Query", "query must end with RETURN or a writing clause")
}

func clauseKind(c ast.Clause) string {
	switch c.(type) {
	case *ast.Match:
		return "Match"
	case *ast.Unwind:
		return "Unwind"
	case *ast.Call:
		return "Call"
	case *ast.Create:
		return "Create"
	case *ast.Merge:
		return "Merge"
	case *ast.Delete:
		return "Delete"
	case *ast.Set:
		return "Set"
	case *ast.Remove:
		return "Remove"
	case *ast.With:
		return "With"
	case *ast.Return:
		return "Return"
	}
	return fmt.Sprintf("%T", c)
}

// assemble prefixes the accumulated CTE definitions onto the final
// statement body.
func (g *generator) assemble(body string) string {
	if len(g.ctes) == 0 {
		return body
	}
	prefix := "WITH "
	if g.recursive {
		prefix = "WITH RECURSIVE "
	}
	return prefix + strings.Join(g.ctes, ", ") + " " + body
}

func (g *generator) fromSQL() string {
	if len(g.scope.from) == 0 {
		return ""
	}
	return " FROM " + strings.Join(g.scope.from, " ")
}

func (g *generator) whereSQL() string {
	if len(g.scope.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(g.scope.where, " AND ")
}

// projected is one compiled projection item.
type projected struct {
	sql       string
	name      string
	whole     bool
	wholeRole role
	agg       bool
}

// compileItems compiles projection items. requireNames demands a
// resolvable output column name for every scalar item (WITH needs
// names; RETURN does not).
func (g *generator) compileItems(items []*ast.ProjectionItem, aggregating, requireNames bool) ([]projected, error) {
	out := make([]projected, 0, len(items))
	wholeCount := 0
	for _, it := range items {
		if v, ok := it.Expr.(*ast.Variable); ok {
			if b, bound := g.lookup(v.Name); bound && (b.role == roleNode || b.role == roleEdge) {
				if aggregating && requireNames {
					return nil, &GenerationError{Kind: "With", Variable: v.Name,
						Message: "cannot project a whole variable through an aggregating WITH"}
				}
				wholeCount++
				if wholeCount > 1 && requireNames {
					return nil, &GenerationError{Kind: "With", Variable: v.Name,
						Message: "cannot carry more than one whole variable through WITH"}
				}
				name := it.Alias
				if name == "" {
					name = v.Name
				}
				out = append(out, projected{sql: b.alias + ".*", name: name, whole: true, wholeRole: b.role})
				continue
			}
		}
		sql, err := g.expr(it.Expr)
		if err != nil {
			return nil, err
		}
		name := outputName(it)
		if name == "" && requireNames {
			return nil, unsupported("With", "expressions in WITH must be aliased")
		}
		out = append(out, projected{sql: sql, name: name, agg: isAggregate(it.Expr)})
	}
	return out, nil
}

func outputName(it *ast.ProjectionItem) string {
	if it.Alias != "" {
		return it.Alias
	}
	switch e := it.Expr.(type) {
	case *ast.Variable:
		return e.Name
	case *ast.PropertyAccess:
		return e.Key
	case *ast.Param:
		return e.Name
	}
	return ""
}

// orderBySQL compiles ORDER BY items; bare identifiers matching a
// projection alias are emitted as that alias.
func (g *generator) orderBySQL(items []*ast.SortItem, names map[string]bool) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(items))
	for _, s := range items {
		var part string
		if v, ok := s.Expr.(*ast.Variable); ok && names[v.Name] {
			part = v.Name
		} else {
			compiled, err := g.expr(s.Expr)
			if err != nil {
				return "", err
			}
			part = compiled
		}
		if s.Desc {
			part += " DESC"
		}
		parts = append(parts, part)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func (g *generator) pagingSQL(p *ast.Projection) (string, error) {
	// SKIP binds before LIMIT, matching their order in the query.
	skip, limit := "", ""
	if p.Skip != nil {
		s, err := g.expr(p.Skip)
		if err != nil {
			return "", err
		}
		skip = " OFFSET " + s
	}
	if p.Limit != nil {
		l, err := g.expr(p.Limit)
		if err != nil {
			return "", err
		}
		limit = " LIMIT " + l
	}
	return limit + skip, nil
}

// compileWith flushes the current scope into a CTE and rebinds the
// projected names against the CTE's output columns. A trailing WHERE
// becomes HAVING when the projection aggregates, with aliases
// substituted back to their defining expressions.
func (g *generator) compileWith(w *ast.With) error {
	proj := w.Projection
	aggregating := false
	for _, it := range proj.Items {
		if isAggregate(it.Expr) {
			aggregating = true
			break
		}
	}

	items, err := g.compileItems(proj.Items, aggregating, true)
	if err != nil {
		return err
	}

	selects := make([]string, len(items))
	names := map[string]bool{}
	for i, it := range items {
		if it.whole {
			selects[i] = it.sql
		} else {
			selects[i] = it.sql + " AS " + it.name
			names[it.name] = true
		}
	}

	var groupBy []string
	if aggregating {
		for _, it := range items {
			if !it.agg {
				groupBy = append(groupBy, it.sql)
			}
		}
	}

	having := ""
	if w.Where != nil {
		// Projection aliases are not visible to the engine inside the
		// CTE, so references substitute back to their expressions; with
		// an aggregating projection the predicate becomes HAVING.
		subs := map[string]string{}
		for _, it := range items {
			if !it.whole {
				subs[it.name] = it.sql
			}
		}
		g.substitutions = subs
		pred, err := g.expr(w.Where)
		g.substitutions = nil
		if err != nil {
			return err
		}
		if aggregating {
			having = " HAVING " + pred
		} else {
			g.scope.where = append(g.scope.where, pred)
		}
	}

	orderBy, err := g.orderBySQL(proj.OrderBy, names)
	if err != nil {
		return err
	}
	paging, err := g.pagingSQL(proj)
	if err != nil {
		return err
	}

	distinct := ""
	if proj.Distinct {
		distinct = "DISTINCT "
	}
	inner := "SELECT " + distinct + strings.Join(selects, ", ") + g.fromSQL() + g.whereSQL()
	if len(groupBy) > 0 {
		inner += " GROUP BY " + strings.Join(groupBy, ", ")
	}
	inner += having + orderBy + paging

	name := g.nextCTE()
	g.ctes = append(g.ctes, fmt.Sprintf("%s AS (%s)", name, inner))

	g.scope = newScope()
	g.scope.from = []string{name}
	for _, it := range items {
		if it.whole {
			g.scope.vars[it.name] = binding{alias: name, role: it.wholeRole}
		} else {
			g.scope.vars[it.name] = binding{alias: name, role: roleColumn, column: it.name}
		}
	}
	return nil
}

// compileReturn produces the final SELECT body and the output column
// names used for UNION shape checking.
func (g *generator) compileReturn(r *ast.Return) (string, []string, error) {
	proj := r.Projection
	aggregating := false
	for _, it := range proj.Items {
		if isAggregate(it.Expr) {
			aggregating = true
			break
		}
	}

	items, err := g.compileItems(proj.Items, aggregating, false)
	if err != nil {
		return "", nil, err
	}

	selects := make([]string, len(items))
	cols := make([]string, len(items))
	names := map[string]bool{}
	for i, it := range items {
		selects[i] = it.sql
		if !it.whole && proj.Items[i].Alias != "" {
			selects[i] = it.sql + " AS " + proj.Items[i].Alias
		}
		cols[i] = it.name
		if !it.whole && it.name != "" {
			names[it.name] = true
		}
	}

	var groupBy []string
	if aggregating {
		for _, it := range items {
			if it.agg {
				continue
			}
			if it.whole {
				groupBy = append(groupBy, strings.TrimSuffix(it.sql, ".*")+".uuid")
			} else {
				groupBy = append(groupBy, it.sql)
			}
		}
	}

	orderBy, err := g.orderBySQL(proj.OrderBy, names)
	if err != nil {
		return "", nil, err
	}
	paging, err := g.pagingSQL(proj)
	if err != nil {
		return "", nil, err
	}

	distinct := ""
	if proj.Distinct {
		distinct = "DISTINCT "
	}
	body := "SELECT " + distinct + strings.Join(selects, ", ") + g.fromSQL() + g.whereSQL()
	if len(groupBy) > 0 {
		body += " GROUP BY " + strings.Join(groupBy, ", ")
	}
	body += orderBy + paging
	return body, cols, nil
}
