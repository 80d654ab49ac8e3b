package cypher

import (
	"fmt"
	"strings"
)

// ParseError is a grammar rejection with source location and the
// tokens the parser would have accepted.
type ParseError struct {
	Line     int
	Column   int
	Message  string
	Expected []string
}

func (e *ParseError) Error() string {
	if len(e.Expected) > 0 {
		return fmt.Sprintf("parse error at %d:%d: %s (expected %s)",
			e.Line, e.Column, e.Message, strings.Join(e.Expected, ", "))
	}
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}
