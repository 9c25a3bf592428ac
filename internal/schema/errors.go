package schema

import (
	"fmt"
	"strings"
)

// ValidationError describes a single failed field.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors collects every failed field so callers see all problems
// at once instead of fixing them one round-trip at a time.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Any reports whether at least one field failed.
func (e ValidationErrors) Any() bool { return len(e) > 0 }

func (e *ValidationErrors) add(field, reason string) {
	*e = append(*e, ValidationError{Field: field, Reason: reason})
}
