package sqlgen

import (
	"fmt"
	"strings"

	"github.com/ritamzico/cyphergres/internal/ast"
)

// compileMatch folds a MATCH clause into the current scope: tables and
// joins into the FROM fragment list, predicates into the WHERE list (or
// into ON clauses for OPTIONAL MATCH).
func (g *generator) compileMatch(m *ast.Match) error {
	for _, p := range m.Patterns {
		if err := g.compilePattern(p, m.Optional); err != nil {
			return err
		}
	}
	if m.Where != nil {
		pred, err := g.expr(m.Where)
		if err != nil {
			return err
		}
		g.scope.where = append(g.scope.where, pred)
	}
	return nil
}

func (g *generator) compilePattern(p *ast.Pattern, optional bool) error {
	left, ok := p.Elements[0].(*ast.NodePattern)
	if !ok {
		return unsupported("Pattern", "pattern must start with a node")
	}
	leftAlias, err := g.placeNode(left, optional)
	if err != nil {
		return err
	}
	for i := 1; i+1 < len(p.Elements); i += 2 {
		rel, ok := p.Elements[i].(*ast.RelPattern)
		if !ok {
			return unsupported("Pattern", "pattern elements must alternate nodes and relationships")
		}
		right, ok := p.Elements[i+1].(*ast.NodePattern)
		if !ok {
			return unsupported("Pattern", "pattern elements must alternate nodes and relationships")
		}
		leftAlias, err = g.placeHop(leftAlias, rel, right, optional)
		if err != nil {
			return err
		}
	}
	return nil
}

// nodePreds builds the predicates a node alias contributes: tenant
// isolation first, then the label, then the inline property map.
func (g *generator) nodePreds(alias string, n *ast.NodePattern) ([]string, error) {
	var preds []string
	if g.hasTenant() {
		preds = append(preds, fmt.Sprintf("%s.group_id = %s", alias, g.tenantParam()))
	}
	if n.Label != "" {
		preds = append(preds, fmt.Sprintf("%s.type = %s", alias, g.bindParam(n.Label)))
	}
	propPreds, err := g.propPreds(alias, roleNode, n.Props)
	if err != nil {
		return nil, err
	}
	return append(preds, propPreds...), nil
}

// propPreds expands an inline property map into conjunctive
// predicates, with the same column/JSON discrimination and literal
// typing as WHERE comparisons.
func (g *generator) propPreds(alias string, r role, props []*ast.PropEntry) ([]string, error) {
	var preds []string
	for _, en := range props {
		var lsql string
		var lJSON bool
		if knownColumn(r, en.Key) {
			lsql = alias + "." + en.Key
		} else {
			lsql = fmt.Sprintf("(%s.properties->>'%s')", alias, sqlQuoteInner(en.Key))
			lJSON = true
		}
		rsql, _, rHint, err := g.operand(en.Value)
		if err != nil {
			return nil, err
		}
		if lJSON && rHint != "" {
			lsql += "::" + rHint
		}
		preds = append(preds, fmt.Sprintf("%s = %s", lsql, rsql))
	}
	return preds, nil
}

// placeNode binds a node pattern: reusing the alias when the variable
// is already bound, otherwise adding the nodes table to the scope.
func (g *generator) placeNode(n *ast.NodePattern, optional bool) (string, error) {
	if n.Variable != "" {
		if b, ok := g.lookup(n.Variable); ok {
			preds, err := g.nodePredsBound(b.alias, n)
			if err != nil {
				return "", err
			}
			g.scope.where = append(g.scope.where, preds...)
			return b.alias, nil
		}
	}

	alias := g.nextNodeAlias()
	g.bind(n.Variable, binding{alias: alias, role: roleNode})
	preds, err := g.nodePreds(alias, n)
	if err != nil {
		return "", err
	}

	switch {
	case len(g.scope.from) == 0:
		g.scope.from = append(g.scope.from, fmt.Sprintf("%s %s", nodesTable, alias))
		g.scope.where = append(g.scope.where, preds...)
	case optional:
		g.scope.from = append(g.scope.from,
			fmt.Sprintf("LEFT JOIN %s %s ON %s", nodesTable, alias, onClause(preds)))
	default:
		g.scope.from = append(g.scope.from, fmt.Sprintf("CROSS JOIN %s %s", nodesTable, alias))
		g.scope.where = append(g.scope.where, preds...)
	}
	return alias, nil
}

// nodePredsBound constrains an already-bound variable: only label and
// property predicates apply; the alias is already tenant-scoped.
func (g *generator) nodePredsBound(alias string, n *ast.NodePattern) ([]string, error) {
	var preds []string
	if n.Label != "" {
		preds = append(preds, fmt.Sprintf("%s.type = %s", alias, g.bindParam(n.Label)))
	}
	propPreds, err := g.propPreds(alias, roleNode, n.Props)
	if err != nil {
		return nil, err
	}
	return append(preds, propPreds...), nil
}

// placeHop joins one relationship and its far node onto the scope and
// returns the far node's alias.
func (g *generator) placeHop(leftAlias string, rel *ast.RelPattern, right *ast.NodePattern, optional bool) (string, error) {
	if rel.Length != nil {
		return g.placeVarLengthHop(leftAlias, rel, right, optional)
	}

	edgeAlias := g.nextEdgeAlias()
	g.bind(rel.Variable, binding{alias: edgeAlias, role: roleEdge})

	edgePreds, err := g.edgePreds(edgeAlias, rel)
	if err != nil {
		return "", err
	}

	var edgeCond string
	switch rel.Direction {
	case ast.DirOut:
		edgeCond = fmt.Sprintf("%s.source = %s.uuid", edgeAlias, leftAlias)
	case ast.DirIn:
		edgeCond = fmt.Sprintf("%s.target = %s.uuid", edgeAlias, leftAlias)
	default:
		edgeCond = fmt.Sprintf("(%s.source = %s.uuid OR %s.target = %s.uuid)",
			edgeAlias, leftAlias, edgeAlias, leftAlias)
	}

	join := "JOIN"
	if optional {
		join = "LEFT JOIN"
	}
	if optional {
		g.scope.from = append(g.scope.from, fmt.Sprintf("%s %s %s ON %s",
			join, edgesTable, edgeAlias, onClause(append([]string{edgeCond}, edgePreds...))))
	} else {
		g.scope.from = append(g.scope.from, fmt.Sprintf("%s %s %s ON %s",
			join, edgesTable, edgeAlias, edgeCond))
		g.scope.where = append(g.scope.where, edgePreds...)
	}

	rightAlias, rightBound := "", false
	if right.Variable != "" {
		if b, ok := g.lookup(right.Variable); ok {
			rightAlias, rightBound = b.alias, true
		}
	}

	if rightBound {
		cond := g.farCond(edgeAlias, leftAlias, rightAlias, rel.Direction)
		g.scope.where = append(g.scope.where, cond)
		preds, err := g.nodePredsBound(rightAlias, right)
		if err != nil {
			return "", err
		}
		g.scope.where = append(g.scope.where, preds...)
		return rightAlias, nil
	}

	rightAlias = g.nextNodeAlias()
	g.bind(right.Variable, binding{alias: rightAlias, role: roleNode})
	cond := g.farCond(edgeAlias, leftAlias, rightAlias, rel.Direction)
	rightPreds, err := g.nodePreds(rightAlias, right)
	if err != nil {
		return "", err
	}
	if optional {
		g.scope.from = append(g.scope.from, fmt.Sprintf("LEFT JOIN %s %s ON %s",
			nodesTable, rightAlias, onClause(append([]string{cond}, rightPreds...))))
	} else {
		g.scope.from = append(g.scope.from, fmt.Sprintf("JOIN %s %s ON %s",
			nodesTable, rightAlias, cond))
		g.scope.where = append(g.scope.where, rightPreds...)
	}
	return rightAlias, nil
}

// farCond is the join condition binding the far node of a hop.
func (g *generator) farCond(edgeAlias, leftAlias, rightAlias string, dir ast.Direction) string {
	switch dir {
	case ast.DirOut:
		return fmt.Sprintf("%s.target = %s.uuid", edgeAlias, rightAlias)
	case ast.DirIn:
		return fmt.Sprintf("%s.source = %s.uuid", edgeAlias, rightAlias)
	default:
		return fmt.Sprintf("((%s.source = %s.uuid AND %s.target = %s.uuid) OR (%s.target = %s.uuid AND %s.source = %s.uuid))",
			edgeAlias, leftAlias, edgeAlias, rightAlias,
			edgeAlias, leftAlias, edgeAlias, rightAlias)
	}
}

// edgePreds builds the predicates an edge alias contributes.
func (g *generator) edgePreds(alias string, rel *ast.RelPattern) ([]string, error) {
	var preds []string
	if g.hasTenant() {
		preds = append(preds, fmt.Sprintf("%s.group_id = %s", alias, g.tenantParam()))
	}
	switch len(rel.Types) {
	case 0:
	case 1:
		preds = append(preds, fmt.Sprintf("%s.relation_type = %s", alias, g.bindParam(rel.Types[0])))
	default:
		placeholders := make([]string, len(rel.Types))
		for i, t := range rel.Types {
			placeholders[i] = g.bindParam(t)
		}
		preds = append(preds, fmt.Sprintf("%s.relation_type IN (%s)", alias, strings.Join(placeholders, ", ")))
	}
	propPreds, err := g.propPreds(alias, roleEdge, rel.Props)
	if err != nil {
		return nil, err
	}
	return append(preds, propPreds...), nil
}

// placeVarLengthHop compiles a variable-length relationship into a
// recursive CTE: the base case walks single edges, the step extends a
// path by one edge while refusing edges already on it, and the outer
// query joins both endpoints and bounds the depth.
func (g *generator) placeVarLengthHop(leftAlias string, rel *ast.RelPattern, right *ast.NodePattern, optional bool) (string, error) {
	name := g.nextCTE()
	g.recursive = true
	g.bind(rel.Variable, binding{alias: name, role: rolePath})

	edgePreds, err := g.edgePreds(edgesTable, rel)
	if err != nil {
		return "", err
	}
	predSQL := strings.Join(edgePreds, " AND ")
	wherePart := ""
	if predSQL != "" {
		wherePart = " WHERE " + predSQL
	}

	var base, step string
	switch rel.Direction {
	case ast.DirOut:
		base = fmt.Sprintf(
			"SELECT edges.source AS source, edges.target AS target, 1 AS depth, ARRAY[edges.uuid] AS visited FROM edges%s",
			wherePart)
		step = fmt.Sprintf(
			"SELECT %s.source, edges.target, %s.depth + 1, %s.visited || edges.uuid FROM %s JOIN edges ON %s.target = edges.source",
			name, name, name, name, name)
	case ast.DirIn:
		base = fmt.Sprintf(
			"SELECT edges.target AS source, edges.source AS target, 1 AS depth, ARRAY[edges.uuid] AS visited FROM edges%s",
			wherePart)
		step = fmt.Sprintf(
			"SELECT %s.source, edges.source, %s.depth + 1, %s.visited || edges.uuid FROM %s JOIN edges ON %s.target = edges.target",
			name, name, name, name, name)
	default:
		base = fmt.Sprintf(
			"SELECT edges.source AS source, edges.target AS target, 1 AS depth, ARRAY[edges.uuid] AS visited FROM edges%s"+
				" UNION ALL "+
				"SELECT edges.target AS source, edges.source AS target, 1 AS depth, ARRAY[edges.uuid] AS visited FROM edges%s",
			wherePart, wherePart)
		step = fmt.Sprintf(
			"SELECT %s.source, CASE WHEN edges.source = %s.target THEN edges.target ELSE edges.source END, %s.depth + 1, %s.visited || edges.uuid FROM %s JOIN edges ON (edges.source = %s.target OR edges.target = %s.target)",
			name, name, name, name, name, name, name)
	}

	stepConds := []string{fmt.Sprintf("NOT edges.uuid = ANY(%s.visited)", name)}
	if predSQL != "" {
		stepConds = append([]string{predSQL}, stepConds...)
	}
	if rel.Length.Max != ast.Unbounded {
		stepConds = append(stepConds, fmt.Sprintf("%s.depth < %d", name, rel.Length.Max))
	}
	step += " WHERE " + strings.Join(stepConds, " AND ")

	g.ctes = append(g.ctes, fmt.Sprintf("%s AS (%s UNION ALL %s)", name, base, step))

	join := "JOIN"
	if optional {
		join = "LEFT JOIN"
	}

	var depthCond string
	if rel.Length.Max == ast.Unbounded {
		depthCond = fmt.Sprintf("%s.depth >= %d", name, rel.Length.Min)
	} else {
		depthCond = fmt.Sprintf("%s.depth BETWEEN %d AND %d", name, rel.Length.Min, rel.Length.Max)
	}

	if optional {
		g.scope.from = append(g.scope.from, fmt.Sprintf("%s %s ON %s",
			join, name, onClause([]string{fmt.Sprintf("%s.source = %s.uuid", name, leftAlias), depthCond})))
	} else {
		g.scope.from = append(g.scope.from, fmt.Sprintf("%s %s ON %s.source = %s.uuid",
			join, name, name, leftAlias))
		g.scope.where = append(g.scope.where, depthCond)
	}

	rightAlias := ""
	if right.Variable != "" {
		if b, ok := g.lookup(right.Variable); ok {
			rightAlias = b.alias
		}
	}
	if rightAlias != "" {
		g.scope.where = append(g.scope.where, fmt.Sprintf("%s.target = %s.uuid", name, rightAlias))
		preds, err := g.nodePredsBound(rightAlias, right)
		if err != nil {
			return "", err
		}
		g.scope.where = append(g.scope.where, preds...)
		return rightAlias, nil
	}

	rightAlias = g.nextNodeAlias()
	g.bind(right.Variable, binding{alias: rightAlias, role: roleNode})
	cond := fmt.Sprintf("%s.target = %s.uuid", name, rightAlias)
	rightPreds, err := g.nodePreds(rightAlias, right)
	if err != nil {
		return "", err
	}
	if optional {
		g.scope.from = append(g.scope.from, fmt.Sprintf("LEFT JOIN %s %s ON %s",
			nodesTable, rightAlias, onClause(append([]string{cond}, rightPreds...))))
	} else {
		g.scope.from = append(g.scope.from, fmt.Sprintf("JOIN %s %s ON %s", nodesTable, rightAlias, cond))
		g.scope.where = append(g.scope.where, rightPreds...)
	}
	return rightAlias, nil
}

func onClause(preds []string) string {
	if len(preds) == 0 {
		return "TRUE"
	}
	return strings.Join(preds, " AND ")
}
