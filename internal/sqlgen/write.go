package sqlgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ritamzico/cyphergres/internal/ast"
)

// compileWrite lowers a terminal writing clause. Multi-operation writes
// chain through data-modifying CTEs so the result stays one statement.
func (g *generator) compileWrite(c ast.Clause) (string, error) {
	switch c := c.(type) {
	case *ast.Create:
		return g.compileCreate(c)
	case *ast.Merge:
		return g.compileMerge(c)
	case *ast.Delete:
		return g.compileDelete(c)
	case *ast.Set:
		return g.compileSet(c)
	case *ast.Remove:
		return g.compileRemove(c)
	}
	return "", unsupported(clauseKind(c), "clause cannot be translated to SQL")
}

// chainOps turns all but the last operation into data-modifying CTEs
// and returns the last as the statement body.
func (g *generator) chainOps(ops []string) string {
	for _, op := range ops[:len(ops)-1] {
		g.ctes = append(g.ctes, fmt.Sprintf("%s AS (%s)", g.nextCTE(), op))
	}
	return ops[len(ops)-1]
}

func (g *generator) compileCreate(c *ast.Create) (string, error) {
	var ops []string
	for _, p := range c.Patterns {
		if len(p.Elements) == 1 {
			node := p.Elements[0].(*ast.NodePattern)
			if node.Variable != "" {
				if _, bound := g.lookup(node.Variable); bound {
					return "", &GenerationError{Kind: "Create", Variable: node.Variable,
						Message: "variable is already bound"}
				}
			}
			op, err := g.insertNode(node)
			if err != nil {
				return "", err
			}
			ops = append(ops, op)
			continue
		}
		for i := 1; i+1 < len(p.Elements); i += 2 {
			rel := p.Elements[i].(*ast.RelPattern)
			left := p.Elements[i-1].(*ast.NodePattern)
			right := p.Elements[i+1].(*ast.NodePattern)
			leftAlias, err := g.boundNodeAlias(left)
			if err != nil {
				return "", err
			}
			rightAlias, err := g.boundNodeAlias(right)
			if err != nil {
				return "", err
			}
			op, err := g.insertEdge(leftAlias, rel, rightAlias)
			if err != nil {
				return "", err
			}
			ops = append(ops, op)
		}
	}
	if len(ops) == 0 {
		return "", unsupported("Create", "nothing to create")
	}
	return g.chainOps(ops), nil
}

// boundNodeAlias resolves a CREATE endpoint to an alias bound by a
// preceding MATCH.
func (g *generator) boundNodeAlias(n *ast.NodePattern) (string, error) {
	if n.Variable == "" {
		return "", &GenerationError{Kind: "Create",
			Message: "relationship endpoints must be bound by a preceding MATCH"}
	}
	b, ok := g.lookup(n.Variable)
	if !ok || b.role != roleNode {
		return "", &GenerationError{Kind: "Create", Variable: n.Variable,
			Message: "relationship endpoint is not bound by a preceding MATCH"}
	}
	return b.alias, nil
}

// splitProps separates a property map into the uuid entry, entries for
// known columns, and the remainder destined for the JSON properties
// column.
func splitProps(props []*ast.PropEntry, columns map[string]bool) (uuidEntry *ast.PropEntry, cols, rest []*ast.PropEntry) {
	for _, en := range props {
		switch {
		case en.Key == "uuid":
			uuidEntry = en
		case columns[en.Key] && en.Key != "properties":
			cols = append(cols, en)
		default:
			rest = append(rest, en)
		}
	}
	return uuidEntry, cols, rest
}

func (g *generator) insertNode(n *ast.NodePattern) (string, error) {
	uuidEntry, colEntries, rest := splitProps(n.Props, nodeColumns)

	cols := []string{"uuid"}
	var vals []string
	if uuidEntry != nil {
		v, err := g.expr(uuidEntry.Value)
		if err != nil {
			return "", err
		}
		vals = append(vals, v)
	} else {
		vals = append(vals, g.bindParam(uuid.NewString()))
	}
	if n.Label != "" {
		cols = append(cols, "type")
		vals = append(vals, g.bindParam(n.Label))
	}
	if g.hasTenant() {
		cols = append(cols, "group_id")
		vals = append(vals, g.tenantParam())
	}
	for _, en := range colEntries {
		v, err := g.expr(en.Value)
		if err != nil {
			return "", err
		}
		cols = append(cols, en.Key)
		vals = append(vals, v)
	}
	propsSQL, err := g.mapExpr(rest)
	if err != nil {
		return "", err
	}
	cols = append(cols, "properties")
	vals = append(vals, propsSQL)

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		nodesTable, strings.Join(cols, ", "), strings.Join(vals, ", ")), nil
}

func (g *generator) insertEdge(leftAlias string, rel *ast.RelPattern, rightAlias string) (string, error) {
	if len(rel.Types) != 1 {
		return "", &GenerationError{Kind: "Create", Variable: rel.Variable,
			Message: "a created relationship needs exactly one type"}
	}
	if rel.Direction == ast.DirBoth {
		return "", &GenerationError{Kind: "Create", Variable: rel.Variable,
			Message: "an undirected relationship cannot be created"}
	}
	src, dst := leftAlias, rightAlias
	if rel.Direction == ast.DirIn {
		src, dst = rightAlias, leftAlias
	}

	uuidEntry, colEntries, rest := splitProps(rel.Props, edgeColumns)

	cols := []string{"uuid", "source", "target", "relation_type"}
	var vals []string
	if uuidEntry != nil {
		v, err := g.expr(uuidEntry.Value)
		if err != nil {
			return "", err
		}
		vals = append(vals, v)
	} else {
		vals = append(vals, g.bindParam(uuid.NewString()))
	}
	vals = append(vals, src+".uuid", dst+".uuid", g.bindParam(rel.Types[0]))
	if g.hasTenant() {
		cols = append(cols, "group_id")
		vals = append(vals, g.tenantParam())
	}
	for _, en := range colEntries {
		if en.Key == "source" || en.Key == "target" || en.Key == "relation_type" {
			continue
		}
		v, err := g.expr(en.Value)
		if err != nil {
			return "", err
		}
		cols = append(cols, en.Key)
		vals = append(vals, v)
	}
	propsSQL, err := g.mapExpr(rest)
	if err != nil {
		return "", err
	}
	cols = append(cols, "properties")
	vals = append(vals, propsSQL)

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s%s%s",
		edgesTable, strings.Join(cols, ", "), strings.Join(vals, ", "),
		g.fromSQL(), g.whereSQL()), nil
}

func (g *generator) compileMerge(m *ast.Merge) (string, error) {
	if len(m.Pattern.Elements) != 1 {
		return "", unsupported("Merge", "MERGE on relationship patterns is not supported")
	}
	node := m.Pattern.Elements[0].(*ast.NodePattern)

	// Fold ON CREATE assignments into the inserted row.
	props := append([]*ast.PropEntry{}, node.Props...)
	for _, it := range m.OnCreate {
		if it.Variable != node.Variable || it.Key == "" {
			return "", &GenerationError{Kind: "Merge", Variable: it.Variable,
				Message: "ON CREATE SET must assign properties of the merged variable"}
		}
		replaced := false
		for i, en := range props {
			if en.Key == it.Key {
				props[i] = &ast.PropEntry{Key: it.Key, Value: it.Value}
				replaced = true
				break
			}
		}
		if !replaced {
			props = append(props, &ast.PropEntry{Key: it.Key, Value: it.Value})
		}
	}

	var conflict string
	for _, en := range props {
		if en.Key == "uuid" {
			conflict = "(uuid)"
			break
		}
	}
	if conflict == "" {
		for _, en := range props {
			if en.Key == "name" {
				if g.hasTenant() {
					conflict = "(group_id, name)"
				} else {
					conflict = "(name)"
				}
				break
			}
		}
	}
	if conflict == "" {
		return "", unsupported("Merge", "MERGE needs a uuid or name key to match on")
	}

	insert, err := g.insertNode(&ast.NodePattern{
		Variable: node.Variable,
		Label:    node.Label,
		Props:    props,
	})
	if err != nil {
		return "", err
	}

	if len(m.OnMatch) == 0 {
		return fmt.Sprintf("%s ON CONFLICT %s DO NOTHING", insert, conflict), nil
	}

	// ON MATCH assignments see the existing row through the table name.
	old, hadOld := g.lookup(node.Variable)
	if node.Variable != "" {
		g.scope.vars[node.Variable] = binding{alias: nodesTable, role: roleNode}
	}
	assigns, err := g.assignments(nodesTable, roleNode, m.OnMatch)
	if node.Variable != "" {
		if hadOld {
			g.scope.vars[node.Variable] = old
		} else {
			delete(g.scope.vars, node.Variable)
		}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s ON CONFLICT %s DO UPDATE SET %s", insert, conflict, strings.Join(assigns, ", ")), nil
}

// assignments builds UPDATE SET fragments for a run of SET items
// against one table: direct writes for known columns, jsonb_set chains
// for JSON keys.
func (g *generator) assignments(table string, r role, items []*ast.SetItem) ([]string, error) {
	var out []string
	jsonAcc := ""
	for _, it := range items {
		if it.Key == "" {
			m, ok := it.Value.(*ast.Map)
			if !ok {
				return nil, &GenerationError{Kind: "Set", Variable: it.Variable,
					Message: "assigning a whole variable requires a map literal"}
			}
			propsSQL, err := g.mapExpr(m.Entries)
			if err != nil {
				return nil, err
			}
			out = append(out, "properties = "+propsSQL)
			continue
		}
		if knownColumn(r, it.Key) && it.Key != "properties" {
			v, err := g.expr(it.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, fmt.Sprintf("%s = %s", it.Key, v))
			continue
		}
		v, err := g.jsonValue(it.Value)
		if err != nil {
			return nil, err
		}
		if jsonAcc == "" {
			jsonAcc = table + ".properties"
		}
		jsonAcc = fmt.Sprintf("jsonb_set(%s, '{%s}', to_jsonb(%s))", jsonAcc, sqlQuoteInner(it.Key), v)
	}
	if jsonAcc != "" {
		out = append(out, "properties = "+jsonAcc)
	}
	return out, nil
}

func (g *generator) compileDelete(d *ast.Delete) (string, error) {
	var ops []string
	for _, e := range d.Exprs {
		v, ok := e.(*ast.Variable)
		if !ok {
			return "", unsupported("Delete", "DELETE targets must be variables")
		}
		b, bound := g.lookup(v.Name)
		if !bound {
			return "", &GenerationError{Kind: "Delete", Variable: v.Name,
				Message: "unbound variable in DELETE"}
		}
		switch b.role {
		case roleNode:
			sel := fmt.Sprintf("SELECT %s.uuid%s%s", b.alias, g.fromSQL(), g.whereSQL())
			if d.Detach {
				ops = append(ops, fmt.Sprintf(
					"DELETE FROM %s WHERE source IN (%s) OR target IN (%s)", edgesTable, sel, sel))
			}
			ops = append(ops, fmt.Sprintf("DELETE FROM %s WHERE uuid IN (%s)", nodesTable, sel))
		case roleEdge:
			sel := fmt.Sprintf("SELECT %s.uuid%s%s", b.alias, g.fromSQL(), g.whereSQL())
			ops = append(ops, fmt.Sprintf("DELETE FROM %s WHERE uuid IN (%s)", edgesTable, sel))
		default:
			return "", &GenerationError{Kind: "Delete", Variable: v.Name,
				Message: "only node and relationship variables can be deleted"}
		}
	}
	return g.chainOps(ops), nil
}

func (g *generator) compileSet(s *ast.Set) (string, error) {
	groups, order := groupByVariable(s.Items)
	var ops []string
	for _, name := range order {
		b, bound := g.lookup(name)
		if !bound {
			return "", &GenerationError{Kind: "Set", Variable: name, Message: "unbound variable in SET"}
		}
		table, r, err := tableFor(b, "Set", name)
		if err != nil {
			return "", err
		}

		sel := fmt.Sprintf("SELECT %s.uuid%s%s", b.alias, g.fromSQL(), g.whereSQL())

		// Within the assignment expressions the variable refers to the
		// row being updated.
		g.scope.vars[name] = binding{alias: table, role: r}
		assigns, err := g.assignments(table, r, groups[name])
		g.scope.vars[name] = b
		if err != nil {
			return "", err
		}
		ops = append(ops, fmt.Sprintf("UPDATE %s SET %s WHERE uuid IN (%s)",
			table, strings.Join(assigns, ", "), sel))
	}
	return g.chainOps(ops), nil
}

func (g *generator) compileRemove(rm *ast.Remove) (string, error) {
	groups := map[string][]*ast.RemoveItem{}
	var order []string
	for _, it := range rm.Items {
		if _, ok := groups[it.Variable]; !ok {
			order = append(order, it.Variable)
		}
		groups[it.Variable] = append(groups[it.Variable], it)
	}

	var ops []string
	for _, name := range order {
		b, bound := g.lookup(name)
		if !bound {
			return "", &GenerationError{Kind: "Remove", Variable: name, Message: "unbound variable in REMOVE"}
		}
		table, r, err := tableFor(b, "Remove", name)
		if err != nil {
			return "", err
		}

		var assigns []string
		jsonAcc := ""
		for _, it := range groups[name] {
			if knownColumn(r, it.Key) && it.Key != "properties" {
				assigns = append(assigns, fmt.Sprintf("%s = NULL", it.Key))
				continue
			}
			if jsonAcc == "" {
				jsonAcc = "properties"
			}
			jsonAcc = fmt.Sprintf("%s - '%s'", jsonAcc, sqlQuoteInner(it.Key))
		}
		if jsonAcc != "" {
			assigns = append(assigns, "properties = "+jsonAcc)
		}

		sel := fmt.Sprintf("SELECT %s.uuid%s%s", b.alias, g.fromSQL(), g.whereSQL())
		ops = append(ops, fmt.Sprintf("UPDATE %s SET %s WHERE uuid IN (%s)",
			table, strings.Join(assigns, ", "), sel))
	}
	return g.chainOps(ops), nil
}

func tableFor(b binding, kind, name string) (string, role, error) {
	switch b.role {
	case roleNode:
		return nodesTable, roleNode, nil
	case roleEdge:
		return edgesTable, roleEdge, nil
	}
	return "", 0, &GenerationError{Kind: kind, Variable: name,
		Message: "only node and relationship variables can be written"}
}

func groupByVariable(items []*ast.SetItem) (map[string][]*ast.SetItem, []string) {
	groups := map[string][]*ast.SetItem{}
	var order []string
	for _, it := range items {
		if _, ok := groups[it.Variable]; !ok {
			order = append(order, it.Variable)
		}
		groups[it.Variable] = append(groups[it.Variable], it)
	}
	return groups, order
}
