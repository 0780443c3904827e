package query

import (
	"fmt"

	"github.com/starford/sitefeed/internal/apperr"
)

// UnknownFieldError reports a field missing from the schema. It is a
// programming or configuration error.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("query: unknown field %q", e.Field)
}

// Unwrap classifies the error as invalid input.
func (e *UnknownFieldError) Unwrap() error { return apperr.ErrInvalidInput }

// FieldKindError reports a node kind that the field type does not support.
type FieldKindError struct {
	Field string
	Kind  Kind
}

func (e *FieldKindError) Error() string {
	return fmt.Sprintf("query: field %q does not support %s predicates", e.Field, e.Kind)
}

func (e *FieldKindError) Unwrap() error { return apperr.ErrInvalidInput }

// EmptyCompositionError reports an And or Or built without children.
type EmptyCompositionError struct {
	Kind Kind
}

func (e *EmptyCompositionError) Error() string {
	return fmt.Sprintf("query: %s composition without children", e.Kind)
}
