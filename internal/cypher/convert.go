package cypher

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/ritamzico/cyphergres/internal/ast"
)

func pos(p lexer.Position) ast.Position {
	return ast.Position{Line: p.Line, Column: p.Column}
}

// ident strips backtick quoting; plain identifiers pass through
// verbatim.
func ident(s string) string {
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' {
		return s[1 : len(s)-1]
	}
	return s
}

func convertQuery(t *QueryAST) (*ast.Query, error) {
	single, err := convertSingle(t.Single)
	if err != nil {
		return nil, err
	}
	q := &ast.Query{Pos: pos(t.Pos), Single: single}
	for _, u := range t.Unions {
		sq, err := convertSingle(u.Query)
		if err != nil {
			return nil, err
		}
		q.Unions = append(q.Unions, &ast.Union{Pos: pos(u.Pos), All: u.All, Query: sq})
	}
	return q, nil
}

func convertSingle(t *SingleQueryAST) (*ast.SingleQuery, error) {
	sq := &ast.SingleQuery{Pos: pos(t.Pos)}
	for _, c := range t.Clauses {
		conv, err := convertClause(c)
		if err != nil {
			return nil, err
		}
		sq.Clauses = append(sq.Clauses, conv)
	}
	return sq, nil
}

func convertClause(t *ClauseAST) (ast.Clause, error) {
	switch {
	case t.Match != nil:
		m := &ast.Match{Pos: pos(t.Match.Pos), Optional: t.Match.Optional}
		for _, p := range t.Match.Patterns {
			conv, err := convertPattern(p)
			if err != nil {
				return nil, err
			}
			m.Patterns = append(m.Patterns, conv)
		}
		if t.Match.Where != nil {
			w, err := convertExpr(t.Match.Where)
			if err != nil {
				return nil, err
			}
			m.Where = w
		}
		return m, nil

	case t.Unwind != nil:
		e, err := convertExpr(t.Unwind.Expr)
		if err != nil {
			return nil, err
		}
		return &ast.Unwind{Pos: pos(t.Unwind.Pos), Expr: e, Alias: ident(t.Unwind.Alias)}, nil

	case t.Call != nil:
		c := &ast.Call{Pos: pos(t.Call.Pos), Name: strings.Join(t.Call.Parts, ".")}
		for _, a := range t.Call.Args {
			e, err := convertExpr(a)
			if err != nil {
				return nil, err
			}
			c.Args = append(c.Args, e)
		}
		return c, nil

	case t.Create != nil:
		c := &ast.Create{Pos: pos(t.Create.Pos)}
		for _, p := range t.Create.Patterns {
			conv, err := convertPattern(p)
			if err != nil {
				return nil, err
			}
			c.Patterns = append(c.Patterns, conv)
		}
		return c, nil

	case t.Merge != nil:
		p, err := convertPattern(t.Merge.Pattern)
		if err != nil {
			return nil, err
		}
		m := &ast.Merge{Pos: pos(t.Merge.Pos), Pattern: p}
		for _, a := range t.Merge.Actions {
			items, err := convertSetItems(a.Set)
			if err != nil {
				return nil, err
			}
			if a.OnMatch {
				m.OnMatch = append(m.OnMatch, items...)
			} else {
				m.OnCreate = append(m.OnCreate, items...)
			}
		}
		return m, nil

	case t.Delete != nil:
		d := &ast.Delete{Pos: pos(t.Delete.Pos), Detach: t.Delete.Detach}
		for _, e := range t.Delete.Exprs {
			conv, err := convertExpr(e)
			if err != nil {
				return nil, err
			}
			d.Exprs = append(d.Exprs, conv)
		}
		return d, nil

	case t.Set != nil:
		items, err := convertSetItems(t.Set)
		if err != nil {
			return nil, err
		}
		return &ast.Set{Pos: pos(t.Set.Pos), Items: items}, nil

	case t.Remove != nil:
		r := &ast.Remove{Pos: pos(t.Remove.Pos)}
		for _, it := range t.Remove.Items {
			r.Items = append(r.Items, &ast.RemoveItem{
				Pos:      pos(it.Pos),
				Variable: ident(it.Variable),
				Key:      ident(it.Key),
			})
		}
		return r, nil

	case t.With != nil:
		proj, err := convertProjection(t.With.Body)
		if err != nil {
			return nil, err
		}
		w := &ast.With{Pos: pos(t.With.Pos), Projection: proj}
		if t.With.Where != nil {
			e, err := convertExpr(t.With.Where)
			if err != nil {
				return nil, err
			}
			w.Where = e
		}
		return w, nil

	case t.Return != nil:
		proj, err := convertProjection(t.Return.Body)
		if err != nil {
			return nil, err
		}
		return &ast.Return{Pos: pos(t.Return.Pos), Projection: proj}, nil
	}
	return nil, &ParseError{Message: "empty clause"}
}

func convertSetItems(t *SetAST) ([]*ast.SetItem, error) {
	items := make([]*ast.SetItem, 0, len(t.Items))
	for _, it := range t.Items {
		value, err := convertExpr(it.Value)
		if err != nil {
			return nil, err
		}
		conv := &ast.SetItem{Pos: pos(it.Pos), Value: value}
		if it.Target != nil {
			conv.Variable = ident(it.Target.Variable)
			conv.Key = ident(it.Target.Key)
		} else {
			conv.Variable = ident(it.Variable)
		}
		items = append(items, conv)
	}
	return items, nil
}

func convertProjection(t *ProjectionAST) (*ast.Projection, error) {
	p := &ast.Projection{Pos: pos(t.Pos), Distinct: t.Distinct}
	for _, it := range t.Items {
		e, err := convertExpr(it.Expr)
		if err != nil {
			return nil, err
		}
		p.Items = append(p.Items, &ast.ProjectionItem{Pos: pos(it.Pos), Expr: e, Alias: ident(it.Alias)})
	}
	for _, o := range t.Order {
		e, err := convertExpr(o.Expr)
		if err != nil {
			return nil, err
		}
		p.OrderBy = append(p.OrderBy, &ast.SortItem{Pos: pos(o.Pos), Expr: e, Desc: o.Desc})
	}
	if t.Skip != nil {
		e, err := convertExpr(t.Skip)
		if err != nil {
			return nil, err
		}
		p.Skip = e
	}
	if t.Limit != nil {
		e, err := convertExpr(t.Limit)
		if err != nil {
			return nil, err
		}
		p.Limit = e
	}
	return p, nil
}

func convertPattern(t *PatternAST) (*ast.Pattern, error) {
	p := &ast.Pattern{Pos: pos(t.Pos), Name: ident(t.Name)}
	node, err := convertNode(t.Node)
	if err != nil {
		return nil, err
	}
	p.Elements = append(p.Elements, node)
	for _, hop := range t.Chain {
		rel, err := convertRel(hop.Rel)
		if err != nil {
			return nil, err
		}
		far, err := convertNode(hop.Node)
		if err != nil {
			return nil, err
		}
		p.Elements = append(p.Elements, rel, far)
	}
	return p, nil
}

func convertNode(t *NodePatternAST) (*ast.NodePattern, error) {
	props, err := convertMapEntries(t.Props)
	if err != nil {
		return nil, err
	}
	return &ast.NodePattern{
		Pos:      pos(t.Pos),
		Variable: ident(t.Variable),
		Label:    ident(t.Label),
		Props:    props,
	}, nil
}

func convertRel(t *RelPatternAST) (*ast.RelPattern, error) {
	r := &ast.RelPattern{Pos: pos(t.Pos)}
	switch {
	case t.Left && !t.Right:
		r.Direction = ast.DirIn
	case t.Right && !t.Left:
		r.Direction = ast.DirOut
	default:
		r.Direction = ast.DirBoth
	}
	if t.Detail != nil {
		r.Variable = ident(t.Detail.Variable)
		for _, typ := range t.Detail.Types {
			r.Types = append(r.Types, ident(typ))
		}
		length, err := convertLength(t.Detail.Length)
		if err != nil {
			return nil, err
		}
		r.Length = length
		props, err := convertMapEntries(t.Detail.Props)
		if err != nil {
			return nil, err
		}
		r.Props = props
	}
	return r, nil
}

func convertLength(t *LengthAST) (*ast.Length, error) {
	if t == nil {
		return nil, nil
	}
	l := &ast.Length{Min: 1, Max: ast.Unbounded}
	if t.Min != nil {
		l.Min = *t.Min
		if !t.Dots {
			l.Max = l.Min
		}
	}
	if t.Max != nil {
		l.Max = *t.Max
	}
	if l.Max != ast.Unbounded && l.Max < l.Min {
		return nil, &ParseError{
			Line:    t.Pos.Line,
			Column:  t.Pos.Column,
			Message: "variable-length range upper bound is below lower bound",
		}
	}
	return l, nil
}

func convertMapEntries(t *MapAST) ([]*ast.PropEntry, error) {
	if t == nil {
		return nil, nil
	}
	entries := make([]*ast.PropEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		value, err := convertExpr(e.Value)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &ast.PropEntry{Pos: pos(e.Pos), Key: ident(e.Key), Value: value})
	}
	return entries, nil
}

func convertExpr(t *ExprAST) (ast.Expr, error) {
	left, err := convertXor(t.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range t.Right {
		right, err := convertXor(r)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Pos: pos(t.Pos), Op: "OR", L: left, R: right}
	}
	return left, nil
}

func convertXor(t *XorExprAST) (ast.Expr, error) {
	left, err := convertAnd(t.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range t.Right {
		right, err := convertAnd(r)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Pos: pos(t.Pos), Op: "XOR", L: left, R: right}
	}
	return left, nil
}

func convertAnd(t *AndExprAST) (ast.Expr, error) {
	left, err := convertNot(t.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range t.Right {
		right, err := convertNot(r)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Pos: pos(t.Pos), Op: "AND", L: left, R: right}
	}
	return left, nil
}

func convertNot(t *NotExprAST) (ast.Expr, error) {
	inner, err := convertCmp(t.Expr)
	if err != nil {
		return nil, err
	}
	if t.Not {
		return &ast.UnaryExpr{Pos: pos(t.Pos), Op: "NOT", X: inner}, nil
	}
	return inner, nil
}

func convertCmp(t *CmpExprAST) (ast.Expr, error) {
	left, err := convertAdd(t.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range t.Rest {
		right, err := convertAdd(r.Expr)
		if err != nil {
			return nil, err
		}
		left = &ast.Comparison{Pos: pos(r.Pos), Op: r.Op, L: left, R: right}
	}
	return left, nil
}

func convertAdd(t *AddExprAST) (ast.Expr, error) {
	left, err := convertMul(t.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range t.Rest {
		right, err := convertMul(r.Expr)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Pos: pos(r.Pos), Op: r.Op, L: left, R: right}
	}
	return left, nil
}

func convertMul(t *MulExprAST) (ast.Expr, error) {
	left, err := convertPow(t.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range t.Rest {
		right, err := convertPow(r.Expr)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Pos: pos(r.Pos), Op: r.Op, L: left, R: right}
	}
	return left, nil
}

// convertPow folds ^ right-associatively.
func convertPow(t *PowExprAST) (ast.Expr, error) {
	operands := make([]ast.Expr, 0, len(t.Rest)+1)
	first, err := convertUnary(t.Left)
	if err != nil {
		return nil, err
	}
	operands = append(operands, first)
	for _, r := range t.Rest {
		next, err := convertUnary(r)
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	result := operands[len(operands)-1]
	for i := len(operands) - 2; i >= 0; i-- {
		result = &ast.BinaryExpr{Pos: pos(t.Pos), Op: "^", L: operands[i], R: result}
	}
	return result, nil
}

func convertUnary(t *UnaryExprAST) (ast.Expr, error) {
	inner, err := convertPostfix(t.Expr)
	if err != nil {
		return nil, err
	}
	if t.Op != "" {
		return &ast.UnaryExpr{Pos: pos(t.Pos), Op: t.Op, X: inner}, nil
	}
	return inner, nil
}

func convertPostfix(t *PostfixExprAST) (ast.Expr, error) {
	cur, err := convertAtom(t.Atom)
	if err != nil {
		return nil, err
	}
	for _, s := range t.Suffixes {
		switch {
		case s.Property != nil:
			cur = &ast.PropertyAccess{Pos: pos(s.Pos), Subject: cur, Key: ident(*s.Property)}
		case s.IsNull != nil:
			cur = &ast.IsNull{Pos: pos(s.Pos), X: cur, Not: s.IsNull.Not}
		case s.In != nil:
			rhs, err := convertAdd(s.In)
			if err != nil {
				return nil, err
			}
			cur = &ast.In{Pos: pos(s.Pos), L: cur, R: rhs}
		case s.Starts != nil:
			rhs, err := convertAdd(s.Starts)
			if err != nil {
				return nil, err
			}
			cur = &ast.StringMatch{Pos: pos(s.Pos), Kind: ast.MatchStartsWith, L: cur, R: rhs}
		case s.Ends != nil:
			rhs, err := convertAdd(s.Ends)
			if err != nil {
				return nil, err
			}
			cur = &ast.StringMatch{Pos: pos(s.Pos), Kind: ast.MatchEndsWith, L: cur, R: rhs}
		case s.Contains != nil:
			rhs, err := convertAdd(s.Contains)
			if err != nil {
				return nil, err
			}
			cur = &ast.StringMatch{Pos: pos(s.Pos), Kind: ast.MatchContains, L: cur, R: rhs}
		case s.Regex != nil:
			rhs, err := convertAdd(s.Regex)
			if err != nil {
				return nil, err
			}
			cur = &ast.StringMatch{Pos: pos(s.Pos), Kind: ast.MatchRegex, L: cur, R: rhs}
		}
	}
	return cur, nil
}

func convertAtom(t *AtomAST) (ast.Expr, error) {
	switch {
	case t.ListComp != nil:
		lc := &ast.ListComprehension{Pos: pos(t.ListComp.Pos), Variable: ident(t.ListComp.Variable)}
		source, err := convertExpr(t.ListComp.Source)
		if err != nil {
			return nil, err
		}
		lc.Source = source
		if t.ListComp.Where != nil {
			w, err := convertExpr(t.ListComp.Where)
			if err != nil {
				return nil, err
			}
			lc.Where = w
		}
		if t.ListComp.Map != nil {
			m, err := convertExpr(t.ListComp.Map)
			if err != nil {
				return nil, err
			}
			lc.Map = m
		}
		return lc, nil

	case t.List != nil:
		l := &ast.List{Pos: pos(t.List.Pos)}
		for _, it := range t.List.Items {
			e, err := convertExpr(it)
			if err != nil {
				return nil, err
			}
			l.Items = append(l.Items, e)
		}
		return l, nil

	case t.Map != nil:
		entries, err := convertMapEntries(t.Map)
		if err != nil {
			return nil, err
		}
		return &ast.Map{Pos: pos(t.Map.Pos), Entries: entries}, nil

	case t.Case != nil:
		c := &ast.Case{Pos: pos(t.Case.Pos)}
		if t.Case.Input != nil {
			input, err := convertExpr(t.Case.Input)
			if err != nil {
				return nil, err
			}
			c.Input = input
		}
		for _, w := range t.Case.Whens {
			when, err := convertExpr(w.When)
			if err != nil {
				return nil, err
			}
			then, err := convertExpr(w.Then)
			if err != nil {
				return nil, err
			}
			c.Whens = append(c.Whens, &ast.CaseWhen{Pos: pos(w.Pos), When: when, Then: then})
		}
		if t.Case.Else != nil {
			els, err := convertExpr(t.Case.Else)
			if err != nil {
				return nil, err
			}
			c.Else = els
		}
		return c, nil

	case t.Func != nil:
		f := &ast.FunctionCall{
			Pos:      pos(t.Func.Pos),
			Name:     ident(t.Func.Name),
			Distinct: t.Func.Distinct,
			Star:     t.Func.Star,
		}
		for _, a := range t.Func.Args {
			e, err := convertExpr(a)
			if err != nil {
				return nil, err
			}
			f.Args = append(f.Args, e)
		}
		return f, nil

	case t.Param != nil:
		return &ast.Param{Pos: pos(t.Param.Pos), Name: ident(t.Param.Name)}, nil

	case t.Sub != nil:
		return convertExpr(t.Sub)

	case t.Literal != nil:
		return convertLiteral(t.Literal)

	case t.Variable != "":
		return &ast.Variable{Pos: pos(t.Pos), Name: ident(t.Variable)}, nil
	}
	return nil, &ParseError{Line: t.Pos.Line, Column: t.Pos.Column, Message: "empty expression"}
}

func convertLiteral(t *LiteralAST) (ast.Expr, error) {
	switch {
	case t.Null:
		return &ast.Null{Pos: pos(t.Pos)}, nil
	case t.True:
		return &ast.Bool{Pos: pos(t.Pos), V: true}, nil
	case t.False:
		return &ast.Bool{Pos: pos(t.Pos), V: false}, nil
	case t.Float != nil:
		return &ast.Float{Pos: pos(t.Pos), V: *t.Float}, nil
	case t.Int != nil:
		return &ast.Int{Pos: pos(t.Pos), V: *t.Int}, nil
	case t.Str != nil:
		return &ast.Str{Pos: pos(t.Pos), V: unquote(*t.Str)}, nil
	}
	return nil, &ParseError{Line: t.Pos.Line, Column: t.Pos.Column, Message: "empty literal"}
}

// unquote strips the surrounding quotes of a string token and resolves
// backslash escapes. Both quote styles use the same escape set.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	body := s[1 : len(s)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i == len(body)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(body[i])
		}
	}
	return b.String()
}
