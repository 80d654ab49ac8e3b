package sqlgen

import "fmt"

// GenerationError reports a structurally valid AST the generator cannot
// lower: an unsupported feature, an unbound variable in a write clause,
// or mismatched UNION projections. Kind names the offending AST node or
// feature; Variable is set when one is involved.
type GenerationError struct {
	Kind     string
	Variable string
	Message  string
}

func (e *GenerationError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("generation error (%s, variable %q): %s", e.Kind, e.Variable, e.Message)
	}
	return fmt.Sprintf("generation error (%s): %s", e.Kind, e.Message)
}

func unsupported(kind, message string) *GenerationError {
	return &GenerationError{Kind: kind, Message: message}
}
