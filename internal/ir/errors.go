package ir

import (
	"errors"
	"fmt"
)

// InvariantError reports a schema/engine mismatch: an unknown tag, a missing
// predefined type, an enum without enumerators, or a value whose shape does
// not match its schema.
//
// These are programming or schema-consistency bugs, not data-dependent
// runtime conditions. Callers must not substitute a best-effort value when
// they see one.
type InvariantError struct {
	// Code identifies the violated invariant.
	Code InvariantErrorCode

	// Message is a human-readable description.
	Message string

	// TypeName names the offending type when known.
	TypeName string
}

// InvariantErrorCode categorizes invariant violations.
type InvariantErrorCode string

const (
	// ErrCodeUnknownTag indicates a tag the engine cannot generate or mutate.
	ErrCodeUnknownTag InvariantErrorCode = "UNKNOWN_TAG"

	// ErrCodeMissingType indicates a predefined type name with no declaration.
	ErrCodeMissingType InvariantErrorCode = "MISSING_PREDEFINED_TYPE"

	// ErrCodeEmptyEnum indicates an enum declared with zero enumerators.
	ErrCodeEmptyEnum InvariantErrorCode = "EMPTY_ENUM"

	// ErrCodeShapeMismatch indicates a schema node or value of the wrong shape.
	ErrCodeShapeMismatch InvariantErrorCode = "SHAPE_MISMATCH"

	// ErrCodeNoFunctions indicates an interface that declares no functions.
	// Its instances could never be touched.
	ErrCodeNoFunctions InvariantErrorCode = "NO_FUNCTIONS"
)

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.TypeName != "" {
		return fmt.Sprintf("%s: %s (type=%s)", e.Code, e.Message, e.TypeName)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvariantError returns true if err is, or wraps, an *InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// NewUnknownTagError creates an InvariantError for an unsupported tag.
func NewUnknownTagError(tag TypeTag, typeName string) *InvariantError {
	return &InvariantError{
		Code:     ErrCodeUnknownTag,
		Message:  fmt.Sprintf("unsupported type tag %s", tag),
		TypeName: typeName,
	}
}

// NewMissingTypeError creates an InvariantError for a failed registry lookup.
func NewMissingTypeError(name string) *InvariantError {
	return &InvariantError{
		Code:     ErrCodeMissingType,
		Message:  "predefined type not found",
		TypeName: name,
	}
}

// NewEmptyEnumError creates an InvariantError for an enum with no values.
func NewEmptyEnumError(name string) *InvariantError {
	return &InvariantError{
		Code:     ErrCodeEmptyEnum,
		Message:  "enum has no enumerators",
		TypeName: name,
	}
}

// NewNoFunctionsError creates an InvariantError for an interface with an
// empty function list.
func NewNoFunctionsError(typeName string) *InvariantError {
	return &InvariantError{
		Code:     ErrCodeNoFunctions,
		Message:  "interface declares no functions",
		TypeName: typeName,
	}
}

func newShapeError(t TypeSpec, msg string) *InvariantError {
	name := t.PredefinedTypeName
	if name == "" {
		name = t.Name
	}
	return &InvariantError{
		Code:     ErrCodeShapeMismatch,
		Message:  fmt.Sprintf("%s: %s", t.Tag, msg),
		TypeName: name,
	}
}
