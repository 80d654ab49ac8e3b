package cypher

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var cypherLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "Keyword", Pattern: `(?i)\b(OPTIONAL|MATCH|UNWIND|CALL|CREATE|MERGE|DETACH|DELETE|SET|REMOVE|WITH|RETURN|UNION|ALL|DISTINCT|ORDER|BY|ASC|ASCENDING|DESC|DESCENDING|SKIP|LIMIT|WHERE|ON|AS|AND|OR|XOR|NOT|IN|IS|NULL|TRUE|FALSE|STARTS|ENDS|CONTAINS|CASE|WHEN|THEN|ELSE|END)\b`},
	{Name: "Float", Pattern: `\d+\.\d+`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"|'(\\.|[^'\\])*'`},
	{Name: "Ident", Pattern: "`[^`]+`|[a-zA-Z_][a-zA-Z0-9_]*"},
	{Name: "Op", Pattern: `<>|<=|>=|=~|\.\.|[-+*/%^=<>(){}\[\],.:|$]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// QueryAST is the top-level parse tree node.
type QueryAST struct {
	Pos    lexer.Position
	Single *SingleQueryAST `parser:"@@"`
	Unions []*UnionAST     `parser:"@@*"`
}

// UnionAST: UNION [ALL] <single query>.
type UnionAST struct {
	Pos   lexer.Position
	All   bool            `parser:"\"UNION\" @\"ALL\"?"`
	Query *SingleQueryAST `parser:"@@"`
}

// SingleQueryAST is a non-empty clause sequence.
type SingleQueryAST struct {
	Pos     lexer.Position
	Clauses []*ClauseAST `parser:"@@+"`
}

// ClauseAST dispatches on the leading keyword.
type ClauseAST struct {
	Match  *MatchAST  `parser:"  @@"`
	Unwind *UnwindAST `parser:"| @@"`
	Call   *CallAST   `parser:"| @@"`
	Create *CreateAST `parser:"| @@"`
	Merge  *MergeAST  `parser:"| @@"`
	Delete *DeleteAST `parser:"| @@"`
	Set    *SetAST    `parser:"| @@"`
	Remove *RemoveAST `parser:"| @@"`
	With   *WithAST   `parser:"| @@"`
	Return *ReturnAST `parser:"| @@"`
}

// MatchAST: [OPTIONAL] MATCH <patterns> [WHERE <expr>].
type MatchAST struct {
	Pos      lexer.Position
	Optional bool          `parser:"@\"OPTIONAL\"?"`
	Patterns []*PatternAST `parser:"\"MATCH\" @@ ( \",\" @@ )*"`
	Where    *ExprAST      `parser:"( \"WHERE\" @@ )?"`
}

// UnwindAST is accepted by the grammar; the generator rejects it.
type UnwindAST struct {
	Pos   lexer.Position
	Expr  *ExprAST `parser:"\"UNWIND\" @@"`
	Alias string   `parser:"\"AS\" @Ident"`
}

// CallAST is accepted by the grammar; the generator rejects it.
type CallAST struct {
	Pos   lexer.Position
	Parts []string   `parser:"\"CALL\" @Ident ( \".\" @Ident )*"`
	Args  []*ExprAST `parser:"( \"(\" ( @@ ( \",\" @@ )* )? \")\" )?"`
}

// CreateAST: CREATE <patterns>.
type CreateAST struct {
	Pos      lexer.Position
	Patterns []*PatternAST `parser:"\"CREATE\" @@ ( \",\" @@ )*"`
}

// MergeAST: MERGE <pattern> ( ON MATCH|CREATE SET ... )*.
type MergeAST struct {
	Pos     lexer.Position
	Pattern *PatternAST       `parser:"\"MERGE\" @@"`
	Actions []*MergeActionAST `parser:"@@*"`
}

// MergeActionAST: ON MATCH SET ... or ON CREATE SET ...
type MergeActionAST struct {
	Pos      lexer.Position
	OnMatch  bool    `parser:"\"ON\" ( @\"MATCH\""`
	OnCreate bool    `parser:"| @\"CREATE\" )"`
	Set      *SetAST `parser:"@@"`
}

// DeleteAST: [DETACH] DELETE <exprs>.
type DeleteAST struct {
	Pos    lexer.Position
	Detach bool       `parser:"@\"DETACH\"?"`
	Exprs  []*ExprAST `parser:"\"DELETE\" @@ ( \",\" @@ )*"`
}

// SetAST: SET <items>.
type SetAST struct {
	Pos   lexer.Position
	Items []*SetItemAST `parser:"\"SET\" @@ ( \",\" @@ )*"`
}

// SetItemAST: v.key = expr or v = expr.
type SetItemAST struct {
	Pos      lexer.Position
	Target   *PropRefAST `parser:"( @@"`
	Variable string      `parser:"| @Ident ) \"=\""`
	Value    *ExprAST    `parser:"@@"`
}

// PropRefAST: <variable>.<key>.
type PropRefAST struct {
	Pos      lexer.Position
	Variable string `parser:"@Ident \".\""`
	Key      string `parser:"@Ident"`
}

// RemoveAST: REMOVE v.key, ...
type RemoveAST struct {
	Pos   lexer.Position
	Items []*PropRefAST `parser:"\"REMOVE\" @@ ( \",\" @@ )*"`
}

// WithAST: WITH <projection> [WHERE <expr>].
type WithAST struct {
	Pos   lexer.Position
	Body  *ProjectionAST `parser:"\"WITH\" @@"`
	Where *ExprAST       `parser:"( \"WHERE\" @@ )?"`
}

// ReturnAST: RETURN <projection>.
type ReturnAST struct {
	Pos  lexer.Position
	Body *ProjectionAST `parser:"\"RETURN\" @@"`
}

// ProjectionAST is the shared RETURN/WITH body.
type ProjectionAST struct {
	Pos      lexer.Position
	Distinct bool            `parser:"@\"DISTINCT\"?"`
	Items    []*ProjItemAST  `parser:"@@ ( \",\" @@ )*"`
	Order    []*OrderItemAST `parser:"( \"ORDER\" \"BY\" @@ ( \",\" @@ )* )?"`
	Skip     *ExprAST        `parser:"( \"SKIP\" @@ )?"`
	Limit    *ExprAST        `parser:"( \"LIMIT\" @@ )?"`
}

// ProjItemAST: <expr> [AS <alias>].
type ProjItemAST struct {
	Pos   lexer.Position
	Expr  *ExprAST `parser:"@@"`
	Alias string   `parser:"( \"AS\" @Ident )?"`
}

// OrderItemAST: <expr> [ASC|DESC].
type OrderItemAST struct {
	Pos  lexer.Position
	Expr *ExprAST `parser:"@@"`
	Desc bool     `parser:"( @( \"DESC\" | \"DESCENDING\" ) | ( \"ASC\" | \"ASCENDING\" ) )?"`
}

// PatternAST: [name =] (node) ( rel (node) )*.
type PatternAST struct {
	Pos   lexer.Position
	Name  string           `parser:"( @Ident \"=\" )?"`
	Node  *NodePatternAST  `parser:"@@"`
	Chain []*PatternHopAST `parser:"@@*"`
}

// PatternHopAST is one relationship plus its far node.
type PatternHopAST struct {
	Rel  *RelPatternAST  `parser:"@@"`
	Node *NodePatternAST `parser:"@@"`
}

// NodePatternAST: ( variable? :Label? {props}? ).
type NodePatternAST struct {
	Pos      lexer.Position
	Variable string  `parser:"\"(\" @Ident?"`
	Label    string  `parser:"( \":\" @Ident )?"`
	Props    *MapAST `parser:"@@? \")\""`
}

// RelPatternAST: -[detail]->, <-[detail]-, -[detail]-, or bare -- arrows.
type RelPatternAST struct {
	Pos    lexer.Position
	Left   bool          `parser:"@\"<\"? \"-\""`
	Detail *RelDetailAST `parser:"( \"[\" @@ \"]\" )?"`
	Right  bool          `parser:"\"-\" @\">\"?"`
}

// RelDetailAST is the bracketed relationship body.
type RelDetailAST struct {
	Pos      lexer.Position
	Variable string     `parser:"@Ident?"`
	Types    []string   `parser:"( \":\" @Ident ( \"|\" \":\"? @Ident )* )?"`
	Length   *LengthAST `parser:"@@?"`
	Props    *MapAST    `parser:"@@?"`
}

// LengthAST: *, *n, *n.., *..m, *n..m.
type LengthAST struct {
	Pos  lexer.Position
	Star bool `parser:"@\"*\""`
	Min  *int `parser:"@Int?"`
	Dots bool `parser:"@\"..\"?"`
	Max  *int `parser:"@Int?"`
}

// MapAST: { key: expr, ... }.
type MapAST struct {
	Pos     lexer.Position
	Entries []*MapEntryAST `parser:"\"{\" ( @@ ( \",\" @@ )* )? \"}\""`
}

// MapEntryAST: key: expr.
type MapEntryAST struct {
	Pos   lexer.Position
	Key   string   `parser:"@Ident \":\""`
	Value *ExprAST `parser:"@@"`
}

// Expression precedence ladder, lowest first: OR, XOR, AND, NOT,
// comparison, additive, multiplicative, power, unary sign, postfix
// suffixes (property access and the IS NULL, IN, STARTS WITH, ENDS WITH,
// CONTAINS and =~ predicates), atom.

// ExprAST handles OR.
type ExprAST struct {
	Pos   lexer.Position
	Left  *XorExprAST   `parser:"@@"`
	Right []*XorExprAST `parser:"( \"OR\" @@ )*"`
}

// XorExprAST handles XOR.
type XorExprAST struct {
	Pos   lexer.Position
	Left  *AndExprAST   `parser:"@@"`
	Right []*AndExprAST `parser:"( \"XOR\" @@ )*"`
}

// AndExprAST handles AND.
type AndExprAST struct {
	Pos   lexer.Position
	Left  *NotExprAST   `parser:"@@"`
	Right []*NotExprAST `parser:"( \"AND\" @@ )*"`
}

// NotExprAST handles NOT.
type NotExprAST struct {
	Pos  lexer.Position
	Not  bool        `parser:"@\"NOT\"?"`
	Expr *CmpExprAST `parser:"@@"`
}

// CmpExprAST handles comparison chains.
type CmpExprAST struct {
	Pos  lexer.Position
	Left *AddExprAST   `parser:"@@"`
	Rest []*CmpRestAST `parser:"@@*"`
}

// CmpRestAST is one comparison operator and operand.
type CmpRestAST struct {
	Pos  lexer.Position
	Op   string      `parser:"@( \"<>\" | \"<=\" | \">=\" | \"=\" | \"<\" | \">\" )"`
	Expr *AddExprAST `parser:"@@"`
}

// AddExprAST handles + and -.
type AddExprAST struct {
	Pos  lexer.Position
	Left *MulExprAST   `parser:"@@"`
	Rest []*AddRestAST `parser:"@@*"`
}

// AddRestAST is one additive operator and operand.
type AddRestAST struct {
	Pos  lexer.Position
	Op   string      `parser:"@( \"+\" | \"-\" )"`
	Expr *MulExprAST `parser:"@@"`
}

// MulExprAST handles *, /, %.
type MulExprAST struct {
	Pos  lexer.Position
	Left *PowExprAST   `parser:"@@"`
	Rest []*MulRestAST `parser:"@@*"`
}

// MulRestAST is one multiplicative operator and operand.
type MulRestAST struct {
	Pos  lexer.Position
	Op   string      `parser:"@( \"*\" | \"/\" | \"%\" )"`
	Expr *PowExprAST `parser:"@@"`
}

// PowExprAST handles ^.
type PowExprAST struct {
	Pos  lexer.Position
	Left *UnaryExprAST   `parser:"@@"`
	Rest []*UnaryExprAST `parser:"( \"^\" @@ )*"`
}

// UnaryExprAST handles unary sign.
type UnaryExprAST struct {
	Pos  lexer.Position
	Op   string          `parser:"@( \"+\" | \"-\" )?"`
	Expr *PostfixExprAST `parser:"@@"`
}

// PostfixExprAST is an atom with property access and predicate
// suffixes.
type PostfixExprAST struct {
	Pos      lexer.Position
	Atom     *AtomAST     `parser:"@@"`
	Suffixes []*SuffixAST `parser:"@@*"`
}

// SuffixAST is one postfix suffix.
type SuffixAST struct {
	Pos      lexer.Position
	Property *string     `parser:"  \".\" @Ident"`
	IsNull   *IsNullAST  `parser:"| @@"`
	In       *AddExprAST `parser:"| \"IN\" @@"`
	Starts   *AddExprAST `parser:"| \"STARTS\" \"WITH\" @@"`
	Ends     *AddExprAST `parser:"| \"ENDS\" \"WITH\" @@"`
	Contains *AddExprAST `parser:"| \"CONTAINS\" @@"`
	Regex    *AddExprAST `parser:"| \"=~\" @@"`
}

// IsNullAST: IS [NOT] NULL.
type IsNullAST struct {
	Pos  lexer.Position
	Not  bool `parser:"\"IS\" @\"NOT\"?"`
	Null bool `parser:"@\"NULL\""`
}

// AtomAST is the base expression form. Order matters: list
// comprehensions before list literals (both open with a bracket),
// function calls before bare variables.
type AtomAST struct {
	Pos      lexer.Position
	ListComp *ListCompAST `parser:"  @@"`
	List     *ListAST     `parser:"| @@"`
	Map      *MapAST      `parser:"| @@"`
	Case     *CaseAST     `parser:"| @@"`
	Func     *FuncAST     `parser:"| @@"`
	Param    *ParamAST    `parser:"| @@"`
	Sub      *ExprAST     `parser:"| \"(\" @@ \")\""`
	Literal  *LiteralAST  `parser:"| @@"`
	Variable string       `parser:"| @Ident"`
}

// ListCompAST: [x IN expr WHERE expr | expr]; rejected by the
// generator.
type ListCompAST struct {
	Pos      lexer.Position
	Variable string   `parser:"\"[\" @Ident \"IN\""`
	Source   *ExprAST `parser:"@@"`
	Where    *ExprAST `parser:"( \"WHERE\" @@ )?"`
	Map      *ExprAST `parser:"( \"|\" @@ )? \"]\""`
}

// ListAST: [expr, ...].
type ListAST struct {
	Pos   lexer.Position
	Items []*ExprAST `parser:"\"[\" ( @@ ( \",\" @@ )* )? \"]\""`
}

// CaseAST covers simple and searched CASE.
type CaseAST struct {
	Pos   lexer.Position
	Input *ExprAST       `parser:"\"CASE\" ( (?! \"WHEN\" ) @@ )?"`
	Whens []*CaseWhenAST `parser:"@@+"`
	Else  *ExprAST       `parser:"( \"ELSE\" @@ )?"`
	End   bool           `parser:"@\"END\""`
}

// CaseWhenAST: WHEN expr THEN expr.
type CaseWhenAST struct {
	Pos  lexer.Position
	When *ExprAST `parser:"\"WHEN\" @@"`
	Then *ExprAST `parser:"\"THEN\" @@"`
}

// FuncAST: name([DISTINCT] args) with COUNT(*) as Star.
type FuncAST struct {
	Pos      lexer.Position
	Name     string     `parser:"@Ident \"(\""`
	Distinct bool       `parser:"@\"DISTINCT\"?"`
	Star     bool       `parser:"( @\"*\""`
	Args     []*ExprAST `parser:"| @@ ( \",\" @@ )* )? \")\""`
}

// ParamAST: $name or $0.
type ParamAST struct {
	Pos  lexer.Position
	Name string `parser:"\"$\" ( @Ident | @Int )"`
}

// LiteralAST is a scalar constant.
type LiteralAST struct {
	Pos   lexer.Position
	Null  bool     `parser:"  @\"NULL\""`
	True  bool     `parser:"| @\"TRUE\""`
	False bool     `parser:"| @\"FALSE\""`
	Float *float64 `parser:"| @Float"`
	Int   *int64   `parser:"| @Int"`
	Str   *string  `parser:"| @String"`
}

// Parser singleton built from the grammar. Immutable after init; safe
// for concurrent use.
var cypherParser = participle.MustBuild[QueryAST](
	participle.Lexer(cypherLexer),
	participle.CaseInsensitive("Keyword"),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(4),
)
