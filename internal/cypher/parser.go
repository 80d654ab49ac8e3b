// Package cypher parses the supported openCypher subset into the typed
// AST of internal/ast. The grammar is declared once at init time and is
// read-only afterwards; Parse owns no other state and is safe for
// concurrent callers.
package cypher

import (
	"errors"

	"github.com/alecthomas/participle/v2"

	"github.com/ritamzico/cyphergres/internal/ast"
)

// Parse parses a Cypher query. Failures return *ParseError; the parser
// never recovers or falls back.
func Parse(input string) (*ast.Query, error) {
	tree, err := cypherParser.ParseString("", input)
	if err != nil {
		return nil, newParseError(err)
	}
	return convertQuery(tree)
}

func newParseError(err error) *ParseError {
	var unexpected *participle.UnexpectedTokenError
	if errors.As(err, &unexpected) {
		pe := &ParseError{
			Line:    unexpected.Position().Line,
			Column:  unexpected.Position().Column,
			Message: unexpected.Message(),
		}
		if unexpected.Expect != "" {
			pe.Expected = []string{unexpected.Expect}
		}
		return pe
	}

	var perr participle.Error
	if errors.As(err, &perr) {
		return &ParseError{
			Line:    perr.Position().Line,
			Column:  perr.Position().Column,
			Message: perr.Message(),
		}
	}
	return &ParseError{Message: err.Error()}
}
