package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Print renders a query back to canonical Cypher: uppercase keywords,
// single spacing, and fully parenthesised compound expressions. Parsing
// the printed form yields a structurally equal tree.
func Print(q *Query) string {
	var b strings.Builder
	printSingle(&b, q.Single)
	for _, u := range q.Unions {
		b.WriteString(" UNION ")
		if u.All {
			b.WriteString("ALL ")
		}
		printSingle(&b, u.Query)
	}
	return b.String()
}

func printSingle(b *strings.Builder, sq *SingleQuery) {
	for i, c := range sq.Clauses {
		if i > 0 {
			b.WriteString(" ")
		}
		printClause(b, c)
	}
}

func printClause(b *strings.Builder, c Clause) {
	switch c := c.(type) {
	case *Match:
		if c.Optional {
			b.WriteString("OPTIONAL ")
		}
		b.WriteString("MATCH ")
		printPatterns(b, c.Patterns)
		if c.Where != nil {
			b.WriteString(" WHERE ")
			b.WriteString(PrintExpr(c.Where))
		}
	case *Unwind:
		fmt.Fprintf(b, "UNWIND %s AS %s", PrintExpr(c.Expr), c.Alias)
	case *Call:
		b.WriteString("CALL ")
		b.WriteString(c.Name)
		b.WriteString("(")
		for i, a := range c.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(PrintExpr(a))
		}
		b.WriteString(")")
	case *Create:
		b.WriteString("CREATE ")
		printPatterns(b, c.Patterns)
	case *Merge:
		b.WriteString("MERGE ")
		printPattern(b, c.Pattern)
		for _, it := range c.OnMatch {
			b.WriteString(" ON MATCH SET ")
			printSetItem(b, it)
		}
		for _, it := range c.OnCreate {
			b.WriteString(" ON CREATE SET ")
			printSetItem(b, it)
		}
	case *Delete:
		if c.Detach {
			b.WriteString("DETACH ")
		}
		b.WriteString("DELETE ")
		for i, e := range c.Exprs {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(PrintExpr(e))
		}
	case *Set:
		b.WriteString("SET ")
		for i, it := range c.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			printSetItem(b, it)
		}
	case *Remove:
		b.WriteString("REMOVE ")
		for i, it := range c.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s.%s", it.Variable, it.Key)
		}
	case *With:
		b.WriteString("WITH ")
		printProjection(b, c.Projection)
		if c.Where != nil {
			b.WriteString(" WHERE ")
			b.WriteString(PrintExpr(c.Where))
		}
	case *Return:
		b.WriteString("RETURN ")
		printProjection(b, c.Projection)
	}
}

func printSetItem(b *strings.Builder, it *SetItem) {
	b.WriteString(it.Variable)
	if it.Key != "" {
		b.WriteString(".")
		b.WriteString(it.Key)
	}
	b.WriteString(" = ")
	b.WriteString(PrintExpr(it.Value))
}

func printProjection(b *strings.Builder, p *Projection) {
	if p.Distinct {
		b.WriteString("DISTINCT ")
	}
	for i, it := range p.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(PrintExpr(it.Expr))
		if it.Alias != "" {
			b.WriteString(" AS ")
			b.WriteString(it.Alias)
		}
	}
	if len(p.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, s := range p.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(PrintExpr(s.Expr))
			if s.Desc {
				b.WriteString(" DESC")
			}
		}
	}
	if p.Skip != nil {
		b.WriteString(" SKIP ")
		b.WriteString(PrintExpr(p.Skip))
	}
	if p.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(PrintExpr(p.Limit))
	}
}

func printPatterns(b *strings.Builder, ps []*Pattern) {
	for i, p := range ps {
		if i > 0 {
			b.WriteString(", ")
		}
		printPattern(b, p)
	}
}

func printPattern(b *strings.Builder, p *Pattern) {
	if p.Name != "" {
		b.WriteString(p.Name)
		b.WriteString(" = ")
	}
	for _, el := range p.Elements {
		switch el := el.(type) {
		case *NodePattern:
			b.WriteString("(")
			b.WriteString(el.Variable)
			if el.Label != "" {
				b.WriteString(":")
				b.WriteString(el.Label)
			}
			printProps(b, el.Props, el.Variable != "" || el.Label != "")
			b.WriteString(")")
		case *RelPattern:
			if el.Direction == DirIn {
				b.WriteString("<-")
			} else {
				b.WriteString("-")
			}
			if el.Variable != "" || len(el.Types) > 0 || el.Length != nil || len(el.Props) > 0 {
				b.WriteString("[")
				b.WriteString(el.Variable)
				for i, t := range el.Types {
					if i == 0 {
						b.WriteString(":")
					} else {
						b.WriteString("|")
					}
					b.WriteString(t)
				}
				printLength(b, el.Length)
				printProps(b, el.Props, true)
				b.WriteString("]")
			}
			if el.Direction == DirOut {
				b.WriteString("->")
			} else {
				b.WriteString("-")
			}
		}
	}
}

func printLength(b *strings.Builder, l *Length) {
	switch {
	case l == nil:
	case l.Min == 1 && l.Max == Unbounded:
		b.WriteString("*")
	case l.Min == l.Max:
		fmt.Fprintf(b, "*%d", l.Min)
	case l.Max == Unbounded:
		fmt.Fprintf(b, "*%d..", l.Min)
	case l.Min == 1:
		fmt.Fprintf(b, "*..%d", l.Max)
	default:
		fmt.Fprintf(b, "*%d..%d", l.Min, l.Max)
	}
}

func printProps(b *strings.Builder, props []*PropEntry, pad bool) {
	if len(props) == 0 {
		return
	}
	if pad {
		b.WriteString(" ")
	}
	b.WriteString("{")
	for i, e := range props {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s: %s", e.Key, PrintExpr(e.Value))
	}
	b.WriteString("}")
}

// PrintExpr renders a single expression in the same canonical form used
// by Print.
func PrintExpr(e Expr) string {
	switch e := e.(type) {
	case *BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", PrintExpr(e.L), e.Op, PrintExpr(e.R))
	case *UnaryExpr:
		return fmt.Sprintf("(%s %s)", e.Op, PrintExpr(e.X))
	case *Comparison:
		return fmt.Sprintf("(%s %s %s)", PrintExpr(e.L), e.Op, PrintExpr(e.R))
	case *FunctionCall:
		var args []string
		if e.Star {
			args = []string{"*"}
		}
		for _, a := range e.Args {
			args = append(args, PrintExpr(a))
		}
		distinct := ""
		if e.Distinct {
			distinct = "DISTINCT "
		}
		return fmt.Sprintf("%s(%s%s)", e.Name, distinct, strings.Join(args, ", "))
	case *Case:
		var b strings.Builder
		b.WriteString("CASE")
		if e.Input != nil {
			b.WriteString(" ")
			b.WriteString(PrintExpr(e.Input))
		}
		for _, w := range e.Whens {
			fmt.Fprintf(&b, " WHEN %s THEN %s", PrintExpr(w.When), PrintExpr(w.Then))
		}
		if e.Else != nil {
			fmt.Fprintf(&b, " ELSE %s", PrintExpr(e.Else))
		}
		b.WriteString(" END")
		return b.String()
	case *PropertyAccess:
		return fmt.Sprintf("%s.%s", PrintExpr(e.Subject), e.Key)
	case *In:
		return fmt.Sprintf("(%s IN %s)", PrintExpr(e.L), PrintExpr(e.R))
	case *IsNull:
		if e.Not {
			return fmt.Sprintf("(%s IS NOT NULL)", PrintExpr(e.X))
		}
		return fmt.Sprintf("(%s IS NULL)", PrintExpr(e.X))
	case *StringMatch:
		op := ""
		switch e.Kind {
		case MatchStartsWith:
			op = "STARTS WITH"
		case MatchEndsWith:
			op = "ENDS WITH"
		case MatchContains:
			op = "CONTAINS"
		case MatchRegex:
			op = "=~"
		}
		return fmt.Sprintf("(%s %s %s)", PrintExpr(e.L), op, PrintExpr(e.R))
	case *ListComprehension:
		var b strings.Builder
		fmt.Fprintf(&b, "[%s IN %s", e.Variable, PrintExpr(e.Source))
		if e.Where != nil {
			fmt.Fprintf(&b, " WHERE %s", PrintExpr(e.Where))
		}
		if e.Map != nil {
			fmt.Fprintf(&b, " | %s", PrintExpr(e.Map))
		}
		b.WriteString("]")
		return b.String()
	case *Int:
		return strconv.FormatInt(e.V, 10)
	case *Float:
		s := strconv.FormatFloat(e.V, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case *Str:
		return quoteString(e.V)
	case *Bool:
		if e.V {
			return "TRUE"
		}
		return "FALSE"
	case *Null:
		return "NULL"
	case *List:
		items := make([]string, len(e.Items))
		for i, it := range e.Items {
			items[i] = PrintExpr(it)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case *Map:
		var b strings.Builder
		b.WriteString("{")
		for i, en := range e.Entries {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %s", en.Key, PrintExpr(en.Value))
		}
		b.WriteString("}")
		return b.String()
	case *Param:
		return "$" + e.Name
	case *Variable:
		return e.Name
	}
	return ""
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteString("'")
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("'")
	return b.String()
}
