// Package core provides the fundamental building blocks of the patchwork ORM.
// This file defines the error taxonomy of the update pipeline. Every error is
// a programmer or schema error: none of them is retried internally.
package core

import (
	"fmt"
	"reflect"
)

// UnsupportedTargetError reports a patch binding whose target is not a named,
// settable field of the entity type.
type UnsupportedTargetError struct {
	Target any
	Reason string
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("unsupported patch target %v: %s", e.Target, e.Reason)
}

// UnsupportedDeltaTypeError reports an arithmetic delta applied to a field
// whose type has no numeric increment semantics.
type UnsupportedDeltaTypeError struct {
	Field string
	Type  reflect.Type
}

func (e *UnsupportedDeltaTypeError) Error() string {
	return fmt.Sprintf("field %s of type %v does not support increment/decrement", e.Field, e.Type)
}

// UnsupportedValueTypeError reports a value or declared type with no coercion
// rule. Cyclic is set when the value contains itself.
type UnsupportedValueTypeError struct {
	Field  string
	Type   reflect.Type
	Cyclic bool
}

func (e *UnsupportedValueTypeError) Error() string {
	if e.Cyclic {
		return fmt.Sprintf("field %s: value of type %v contains itself", e.Field, e.Type)
	}
	return fmt.Sprintf("field %s: type %v has no wire representation", e.Field, e.Type)
}

// MissingRoutingMetadataError reports an entity type without a storage location.
type MissingRoutingMetadataError struct {
	Type reflect.Type
}

func (e *MissingRoutingMetadataError) Error() string {
	return fmt.Sprintf("no storage location registered for %v", e.Type)
}

// UnsupportedListTypeError reports a list operator (push, pull, add-to-set)
// applied to a field that is not list-typed.
type UnsupportedListTypeError struct {
	Field string
	Type  reflect.Type
	Kind  UpdateKind
}

func (e *UnsupportedListTypeError) Error() string {
	return fmt.Sprintf("field %s of type %v does not support %s", e.Field, e.Type, e.Kind)
}

// UnsupportedNodeError reports a patch node that cannot appear where it was found.
type UnsupportedNodeError struct {
	Field string
	Node  Node
}

func (e *UnsupportedNodeError) Error() string {
	return fmt.Sprintf("field %s: unsupported patch node %T", e.Field, e.Node)
}

// TypeMismatchError reports an evaluated value that cannot be assigned to
// the declared type of its field.
type TypeMismatchError struct {
	Field    string
	Declared reflect.Type
	Actual   reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("field %s: cannot assign %v to %v", e.Field, e.Actual, e.Declared)
}

// DuplicatePathError reports a path bound twice when the compiler runs with
// StrictPaths, or a list operation mixed with another kind on one path.
type DuplicatePathError struct {
	Path string
}

func (e *DuplicatePathError) Error() string {
	return fmt.Sprintf("path %s is assigned more than once", e.Path)
}

// EvaluationError wraps a failure while eagerly evaluating a read source.
type EvaluationError struct {
	Field  string
	Source string
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("field %s: evaluating %s: %v", e.Field, e.Source, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
