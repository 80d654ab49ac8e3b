// Package cyphergres translates a subset of the openCypher query
// language into parameterised SQL against a relational property-graph
// schema: one node table and one edge table, both with JSON properties
// and a multi-tenant group_id column.
package cyphergres

import (
	"github.com/ritamzico/cyphergres/internal/ast"
	"github.com/ritamzico/cyphergres/internal/cypher"
	"github.com/ritamzico/cyphergres/internal/sqlgen"
)

type (
	// Query is the typed AST produced by Parse.
	Query = ast.Query

	// ParseError is a grammar rejection with source location and
	// expected-token information.
	ParseError = cypher.ParseError

	// GenerationError is a structurally valid AST the generator cannot
	// lower.
	GenerationError = sqlgen.GenerationError
)

// Parse parses a Cypher query into its AST. Failures return
// *ParseError.
func Parse(query string) (*Query, error) {
	return cypher.Parse(query)
}

// Generate lowers a parsed query to a SQL string and positional
// parameter list. Named parameters are interned so repeated $name
// occurrences share one slot; a non-empty groupID is bound as $1 and
// constrains every table alias.
func Generate(q *Query, params map[string]any, groupID string) (string, []any, error) {
	return sqlgen.Generate(q, params, groupID)
}

// Translate is the one-shot form of Parse followed by Generate.
func Translate(query string, params map[string]any, groupID string) (string, []any, error) {
	q, err := Parse(query)
	if err != nil {
		return "", nil, err
	}
	return Generate(q, params, groupID)
}

// Print renders an AST back to canonical Cypher text.
func Print(q *Query) string {
	return ast.Print(q)
}
