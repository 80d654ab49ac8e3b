package sqlgen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ritamzico/cyphergres/internal/ast"
)

// expr compiles an expression to a SQL fragment. Literal values other
// than NULL become positional parameters; identifiers and JSON keys are
// inlined.
func (g *generator) expr(e ast.Expr) (string, error) {
	switch e := e.(type) {
	case *ast.BinaryExpr:
		l, err := g.expr(e.L)
		if err != nil {
			return "", err
		}
		r, err := g.expr(e.R)
		if err != nil {
			return "", err
		}
		op := e.Op
		if op == "XOR" {
			// No boolean XOR operator in the target engine.
			op = "<>"
		}
		return fmt.Sprintf("(%s %s %s)", l, op, r), nil

	case *ast.UnaryExpr:
		x, err := g.expr(e.X)
		if err != nil {
			return "", err
		}
		switch e.Op {
		case "NOT":
			return fmt.Sprintf("(NOT %s)", x), nil
		case "-":
			return fmt.Sprintf("(- %s)", x), nil
		default:
			return x, nil
		}

	case *ast.Comparison:
		return g.compare(e.Op, e.L, e.R)

	case *ast.FunctionCall:
		return g.functionCall(e)

	case *ast.Case:
		return g.caseExpr(e)

	case *ast.PropertyAccess:
		sql, _, err := g.propertyAccess(e)
		return sql, err

	case *ast.In:
		return g.inExpr(e)

	case *ast.IsNull:
		x, err := g.expr(e.X)
		if err != nil {
			return "", err
		}
		if e.Not {
			return fmt.Sprintf("(%s IS NOT NULL)", x), nil
		}
		return fmt.Sprintf("(%s IS NULL)", x), nil

	case *ast.StringMatch:
		return g.stringMatch(e)

	case *ast.ListComprehension:
		return "", unsupported("ListComprehension", "list comprehensions cannot be translated to SQL")

	case *ast.Int:
		return g.bindParam(e.V), nil
	case *ast.Float:
		return g.bindParam(e.V), nil
	case *ast.Str:
		return g.bindParam(e.V), nil
	case *ast.Bool:
		return g.bindParam(e.V), nil
	case *ast.Null:
		return "NULL", nil

	case *ast.List:
		items := make([]string, len(e.Items))
		for i, it := range e.Items {
			s, err := g.expr(it)
			if err != nil {
				return "", err
			}
			items[i] = s
		}
		return "ARRAY[" + strings.Join(items, ", ") + "]", nil

	case *ast.Map:
		return g.mapExpr(e.Entries)

	case *ast.Param:
		return g.bindNamed(e.Name), nil

	case *ast.Variable:
		return g.variable(e)
	}
	return "", unsupported(fmt.Sprintf("%T", e), "expression cannot be translated to SQL")
}

// variable resolves a bare identifier: a WITH-predicate substitution, a bound
// alias, or — when unbound — the verbatim name, which the engine will
// reject itself.
func (g *generator) variable(v *ast.Variable) (string, error) {
	if g.substitutions != nil {
		if sub, ok := g.substitutions[v.Name]; ok {
			return sub, nil
		}
	}
	b, ok := g.lookup(v.Name)
	if !ok {
		return v.Name, nil
	}
	switch b.role {
	case roleColumn:
		return b.alias + "." + b.column, nil
	case rolePath:
		return b.alias + ".visited", nil
	default:
		return b.alias + ".uuid", nil
	}
}

// operand compiles one side of a comparison and reports whether it is a
// JSON text extraction plus the cast its counterpart implies.
func (g *generator) operand(e ast.Expr) (sql string, isJSON bool, castHint string, err error) {
	switch e := e.(type) {
	case *ast.PropertyAccess:
		sql, isJSON, err = g.propertyAccess(e)
		return sql, isJSON, "", err
	case *ast.Int:
		return g.bindParam(e.V), false, "numeric", nil
	case *ast.Float:
		return g.bindParam(e.V), false, "numeric", nil
	case *ast.Bool:
		return g.bindParam(e.V), false, "boolean", nil
	case *ast.Str:
		return g.bindParam(e.V), false, "", nil
	case *ast.Param:
		var v any
		if g.values != nil {
			v = g.values[e.Name]
		}
		return g.bindNamed(e.Name), false, castHintFor(v), nil
	default:
		sql, err = g.expr(e)
		return sql, false, "", err
	}
}

// castHintFor derives the cast for a JSON-extracted counterpart from a
// bound parameter value. Unknown types stay textual.
func castHintFor(v any) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return "numeric"
	case bool:
		return "boolean"
	default:
		return ""
	}
}

// compare emits a comparison, casting the JSON-extracted side to the
// type implied by the other side's literal or bound value.
func (g *generator) compare(op string, left, right ast.Expr) (string, error) {
	l, lJSON, lHint, err := g.operand(left)
	if err != nil {
		return "", err
	}
	r, rJSON, rHint, err := g.operand(right)
	if err != nil {
		return "", err
	}
	if lJSON && rHint != "" {
		l += "::" + rHint
	}
	if rJSON && lHint != "" {
		r += "::" + lHint
	}
	return fmt.Sprintf("(%s %s %s)", l, op, r), nil
}

// propertyAccess resolves x.k against the known-column tables; all
// other keys go through JSON text extraction.
func (g *generator) propertyAccess(p *ast.PropertyAccess) (string, bool, error) {
	v, ok := p.Subject.(*ast.Variable)
	if !ok {
		inner, err := g.expr(p.Subject)
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("(%s->>'%s')", inner, sqlQuoteInner(p.Key)), true, nil
	}

	b, bound := g.lookup(v.Name)
	if !bound {
		// Unbound variable: emit the reference and let the engine
		// reject it.
		return fmt.Sprintf("(%s.properties->>'%s')", v.Name, sqlQuoteInner(p.Key)), true, nil
	}
	switch b.role {
	case roleColumn:
		return fmt.Sprintf("(%s.%s->>'%s')", b.alias, b.column, sqlQuoteInner(p.Key)), true, nil
	case rolePath:
		return "", false, &GenerationError{Kind: "PropertyAccess", Variable: v.Name,
			Message: "property access on a variable-length relationship is not supported"}
	default:
		if knownColumn(b.role, p.Key) {
			return b.alias + "." + p.Key, false, nil
		}
		return fmt.Sprintf("(%s.properties->>'%s')", b.alias, sqlQuoteInner(p.Key)), true, nil
	}
}

func (g *generator) functionCall(f *ast.FunctionCall) (string, error) {
	upper := strings.ToUpper(f.Name)
	if upper == "SHORTESTPATH" {
		return "", &GenerationError{Kind: "FunctionCall", Message: "shortestPath is not supported"}
	}

	name := f.Name
	switch {
	case upper == "COLLECT":
		name = "array_agg"
	case aggregateFunctions[upper]:
		name = upper
	}

	if f.Star {
		return name + "(*)", nil
	}

	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		// A whole node or edge variable passed to any function refers
		// to the row, not a column.
		if v, ok := a.(*ast.Variable); ok {
			if b, bound := g.lookup(v.Name); bound && (b.role == roleNode || b.role == roleEdge) {
				args[i] = b.alias + ".*"
				continue
			}
		}
		s, err := g.expr(a)
		if err != nil {
			return "", err
		}
		args[i] = s
	}
	distinct := ""
	if f.Distinct {
		distinct = "DISTINCT "
	}
	return fmt.Sprintf("%s(%s%s)", name, distinct, strings.Join(args, ", ")), nil
}

func (g *generator) caseExpr(c *ast.Case) (string, error) {
	var b strings.Builder
	b.WriteString("CASE")
	if c.Input != nil {
		input, err := g.expr(c.Input)
		if err != nil {
			return "", err
		}
		b.WriteString(" ")
		b.WriteString(input)
	}
	for _, w := range c.Whens {
		when, err := g.expr(w.When)
		if err != nil {
			return "", err
		}
		then, err := g.expr(w.Then)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " WHEN %s THEN %s", when, then)
	}
	if c.Else != nil {
		els, err := g.expr(c.Else)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " ELSE %s", els)
	}
	b.WriteString(" END")
	return b.String(), nil
}

// inExpr maps IN over a list literal to IN (...) and over a parameter
// to = ANY($k).
func (g *generator) inExpr(e *ast.In) (string, error) {
	l, err := g.expr(e.L)
	if err != nil {
		return "", err
	}
	switch r := e.R.(type) {
	case *ast.List:
		items := make([]string, len(r.Items))
		for i, it := range r.Items {
			s, err := g.expr(it)
			if err != nil {
				return "", err
			}
			items[i] = s
		}
		return fmt.Sprintf("(%s IN (%s))", l, strings.Join(items, ", ")), nil
	default:
		rs, err := g.expr(e.R)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s = ANY(%s))", l, rs), nil
	}
}

// stringMatch lowers the string predicates to LIKE (with pattern
// escaping for literals) and =~ to the engine's regex operator.
func (g *generator) stringMatch(e *ast.StringMatch) (string, error) {
	l, err := g.expr(e.L)
	if err != nil {
		return "", err
	}

	if e.Kind == ast.MatchRegex {
		r, err := g.expr(e.R)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s ~ %s)", l, r), nil
	}

	if lit, ok := e.R.(*ast.Str); ok {
		escaped := escapeLike(lit.V)
		var pattern string
		switch e.Kind {
		case ast.MatchStartsWith:
			pattern = escaped + "%"
		case ast.MatchEndsWith:
			pattern = "%" + escaped
		case ast.MatchContains:
			pattern = "%" + escaped + "%"
		}
		return fmt.Sprintf("(%s LIKE %s)", l, g.bindParam(pattern)), nil
	}

	r, err := g.expr(e.R)
	if err != nil {
		return "", err
	}
	switch e.Kind {
	case ast.MatchStartsWith:
		return fmt.Sprintf("(%s LIKE %s || '%%')", l, r), nil
	case ast.MatchEndsWith:
		return fmt.Sprintf("(%s LIKE '%%' || %s)", l, r), nil
	default:
		return fmt.Sprintf("(%s LIKE '%%' || %s || '%%')", l, r), nil
	}
}

// mapExpr builds a JSON object from an ordered entry list.
func (g *generator) mapExpr(entries []*ast.PropEntry) (string, error) {
	if len(entries) == 0 {
		return "'{}'::jsonb", nil
	}
	parts := make([]string, 0, len(entries)*2)
	for _, en := range entries {
		value, err := g.jsonValue(en.Value)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("'%s'", sqlQuoteInner(en.Key)), value)
	}
	return "jsonb_build_object(" + strings.Join(parts, ", ") + ")", nil
}

// jsonValue compiles an expression destined for a JSON position,
// casting parameters so numbers and booleans keep their JSON type.
func (g *generator) jsonValue(e ast.Expr) (string, error) {
	sql, _, hint, err := g.operand(e)
	if err != nil {
		return "", err
	}
	if hint != "" {
		sql += "::" + hint
	}
	return sql, nil
}

// isAggregate reports whether the expression contains a call to one of
// the aggregate functions.
func isAggregate(e ast.Expr) bool {
	switch e := e.(type) {
	case *ast.FunctionCall:
		if aggregateFunctions[strings.ToUpper(e.Name)] {
			return true
		}
		for _, a := range e.Args {
			if isAggregate(a) {
				return true
			}
		}
	case *ast.BinaryExpr:
		return isAggregate(e.L) || isAggregate(e.R)
	case *ast.UnaryExpr:
		return isAggregate(e.X)
	case *ast.Comparison:
		return isAggregate(e.L) || isAggregate(e.R)
	case *ast.Case:
		if e.Input != nil && isAggregate(e.Input) {
			return true
		}
		for _, w := range e.Whens {
			if isAggregate(w.When) || isAggregate(w.Then) {
				return true
			}
		}
		return e.Else != nil && isAggregate(e.Else)
	case *ast.PropertyAccess:
		return isAggregate(e.Subject)
	case *ast.In:
		return isAggregate(e.L) || isAggregate(e.R)
	case *ast.IsNull:
		return isAggregate(e.X)
	case *ast.StringMatch:
		return isAggregate(e.L) || isAggregate(e.R)
	case *ast.List:
		for _, it := range e.Items {
			if isAggregate(it) {
				return true
			}
		}
	}
	return false
}

// escapeLike escapes the LIKE metacharacters in a literal so only the
// generated anchors act as wildcards.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// sqlQuoteInner escapes a string for use inside single quotes.
func sqlQuoteInner(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
