// Package core provides the fundamental building blocks of the patchwork ORM.
// This file implements the patch expression compiler, which turns a patch
// over an entity into an ordered UpdateOperationSet, one operation per
// top-level binding, and the field path resolver it relies on.
package core

import (
	"math/big"
	"reflect"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// compilerSettings holds the options shared by a Compiler.
type compilerSettings struct {
	strictPaths bool
}

// CompilerOption customizes a Compiler.
type CompilerOption func(*compilerSettings)

// StrictPaths makes Compile reject patches that assign the same path twice,
// instead of leaving last-write-wins to the store.
func StrictPaths() CompilerOption {
	return func(settings *compilerSettings) { settings.strictPaths = true }
}

// Compiler compiles patches over entity type T.
//
// A Compiler holds no mutable state and is safe for concurrent use.
type Compiler[T any] struct {
	schema   *SchemaMeta[T]
	settings compilerSettings
}

// NewCompiler creates a Compiler bound to a schema.
//
// Example:
//
//	compiler := core.NewCompiler(userSchema)
//	set, err := compiler.Compile(core.NewPatch[User](
//		core.Assign(func(u *User) *int { return &u.Age }, core.Inc(2)),
//	))
//	// set == [INC(Age, 2)]
func NewCompiler[T any](schema *SchemaMeta[T], options ...CompilerOption) *Compiler[T] {
	compiler := &Compiler[T]{schema: schema}
	for _, option := range options {
		option(&compiler.settings)
	}
	return compiler
}

// Compile walks the root object of the patch and emits one operation per
// binding, in binding order:
//
//   - nested *Object      → SET(path, whole evaluated value)
//   - *Delta              → INC(path, ±delta) on numeric fields
//   - *Collection         → SET(path, evaluated list)
//   - *Literal            → SET(path, value)
//   - *Read               → SET(path, eagerly resolved value)
//   - *ListOp             → PUSH / PULL / ADD_TO_SET(path, element)
//
// A list operation may only share its path with list operations of the same
// kind, which the drivers merge; any other mix fails with DuplicatePathError.
// Compilation is all-or-nothing: the first error discards the partial set.
// A nil patch or a patch without bindings yields an empty set.
func (c *Compiler[T]) Compile(patch *Patch[T]) (UpdateOperationSet, error) {
	if patch == nil || patch.Root == nil {
		return UpdateOperationSet{}, nil
	}
	eval := evaluator{env: patch.env(c.schema.TagKey), engine: coercer{tagKey: c.schema.TagKey}}
	set := make(UpdateOperationSet, 0, len(patch.Root.Bindings))
	seen := make(map[string]UpdateKind, len(patch.Root.Bindings))

	for _, binding := range patch.Root.Bindings {
		field, err := c.resolve(binding)
		if err != nil {
			return nil, err
		}
		operation, err := c.compileBinding(eval, field, binding.Value)
		if err != nil {
			return nil, err
		}
		if previous, ok := seen[operation.Path]; ok {
			if c.settings.strictPaths || conflicting(previous, operation.Kind) {
				return nil, &DuplicatePathError{Path: operation.Path}
			}
		}
		seen[operation.Path] = operation.Kind
		set = set.Add(operation)
	}
	return set, nil
}

// ResolvePath returns the storage path a root binding assigns to.
func (c *Compiler[T]) ResolvePath(binding Binding) (string, error) {
	field, err := c.resolve(binding)
	if err != nil {
		return "", err
	}
	return field.DatabaseColumnName, nil
}

func (c *Compiler[T]) resolve(binding Binding) (*Field, error) {
	field, err := resolveTarget(c.schema.Fields, c.schema.Type, c.schema.TagKey, binding.Target)
	if err != nil {
		return nil, err
	}
	if field.IsPrimaryKey {
		return nil, &UnsupportedTargetError{Target: binding.Target, Reason: "the identity field is not settable"}
	}
	return field, nil
}

func (c *Compiler[T]) compileBinding(eval evaluator, field *Field, node Node) (UpdateOperation, error) {
	path := field.DatabaseColumnName

	switch n := node.(type) {
	case *Object:
		return c.set(eval, n, field)
	case *Delta:
		return c.compileDelta(n, field)
	case *Collection:
		return c.set(eval, n, field)
	case *Literal:
		return c.set(eval, n, field)
	case *Read:
		return c.set(eval, n, field)
	case *ListOp:
		return c.compileListOp(eval, n, field)
	default:
		return UpdateOperation{}, &UnsupportedNodeError{Field: path, Node: node}
	}
}

// set evaluates a value-producing node and overwrites the field with it.
func (c *Compiler[T]) set(eval evaluator, node Node, field *Field) (UpdateOperation, error) {
	path := field.DatabaseColumnName
	value, err := eval.evaluate(node, field.Type, path)
	if err != nil {
		return UpdateOperation{}, err
	}
	coerced, err := eval.engine.coerceAny(value, field.Type, path)
	if err != nil {
		return UpdateOperation{}, err
	}
	return Set(path, coerced), nil
}

func (c *Compiler[T]) compileDelta(delta *Delta, field *Field) (UpdateOperation, error) {
	path := field.DatabaseColumnName
	numericType := indirect(field.Type)
	if !supportsDelta(numericType) {
		return UpdateOperation{}, &UnsupportedDeltaTypeError{Field: path, Type: field.Type}
	}

	operand, err := conform(delta.Operand, numericType, path)
	if err != nil {
		return UpdateOperation{}, err
	}
	if operand == nil {
		return UpdateOperation{}, &TypeMismatchError{Field: path, Declared: field.Type}
	}

	switch delta.Operator {
	case DeltaIncrement:
	case DeltaDecrement:
		if operand, err = negate(operand); err != nil {
			return UpdateOperation{}, &UnsupportedDeltaTypeError{Field: path, Type: field.Type}
		}
	default:
		return UpdateOperation{}, &UnsupportedNodeError{Field: path, Node: delta}
	}

	coerced, err := Coerce(operand, numericType, path)
	if err != nil {
		return UpdateOperation{}, err
	}
	return Increment(path, coerced), nil
}

func (c *Compiler[T]) compileListOp(eval evaluator, op *ListOp, field *Field) (UpdateOperation, error) {
	path := field.DatabaseColumnName
	if !op.Kind.IsList() {
		return UpdateOperation{}, &UnsupportedNodeError{Field: path, Node: op}
	}
	elementType, ok := listElementType(field.Type)
	if !ok {
		return UpdateOperation{}, &UnsupportedListTypeError{Field: path, Type: field.Type, Kind: op.Kind}
	}
	value, err := eval.evaluate(op.Element, elementType, path)
	if err != nil {
		return UpdateOperation{}, err
	}
	coerced, err := eval.engine.coerceAny(value, elementType, path)
	if err != nil {
		return UpdateOperation{}, err
	}
	return UpdateOperation{Kind: op.Kind, Path: path, Value: coerced}, nil
}

// resolveTarget maps a binding target to one of fieldList.
//
// Strings match Go or storage names; selector functions must address a
// field of structType directly. Empty, computed or unknown targets fail
// with UnsupportedTargetError.
func resolveTarget(fieldList []*Field, structType reflect.Type, tagKey string, target any) (*Field, error) {
	var name string
	switch t := target.(type) {
	case nil:
		return nil, &UnsupportedTargetError{Target: target, Reason: "anonymous target"}
	case string:
		if t == "" {
			return nil, &UnsupportedTargetError{Target: target, Reason: "anonymous target"}
		}
		name = t
	default:
		resolved, ok := selectorFieldName(target, structType, tagKey)
		if !ok {
			return nil, &UnsupportedTargetError{Target: target, Reason: "not a field selector of " + structType.String()}
		}
		name = resolved
	}
	for _, field := range fieldList {
		if field.StructFieldName == name || field.DatabaseColumnName == name {
			return field, nil
		}
	}
	return nil, &UnsupportedTargetError{Target: target, Reason: "no settable field named " + name}
}

// conflicting reports whether two operations on one path cannot both apply.
func conflicting(previous UpdateKind, next UpdateKind) bool {
	return (previous.IsList() || next.IsList()) && previous != next
}

// supportsDelta reports whether a field type has increment semantics:
// signed integers, floats and decimals. Enums are excluded.
func supportsDelta(t reflect.Type) bool {
	if t == nil || t.Implements(enumType) {
		return false
	}
	switch t {
	case decimalType, decimal128Type:
		return true
	}
	return isSignedKind(t.Kind()) || t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64
}

// negate flips the sign of a conformed numeric operand, keeping its type.
func negate(operand any) (any, error) {
	switch typed := operand.(type) {
	case decimal.Decimal:
		return typed.Neg(), nil
	case primitive.Decimal128:
		whole, exponent, err := typed.BigInt()
		if err != nil {
			return nil, err
		}
		negated, ok := primitive.ParseDecimal128FromBigInt(new(big.Int).Neg(whole), exponent)
		if !ok {
			return nil, &TypeMismatchError{Declared: decimal128Type, Actual: decimal128Type}
		}
		return negated, nil
	}

	value := reflect.ValueOf(operand)
	negated := reflect.New(value.Type()).Elem()
	switch {
	case isSignedKind(value.Kind()):
		if negated.OverflowInt(-value.Int()) || value.Int() == -value.Int() && value.Int() != 0 {
			return nil, &TypeMismatchError{Declared: value.Type(), Actual: value.Type()}
		}
		negated.SetInt(-value.Int())
	case value.Kind() == reflect.Float32 || value.Kind() == reflect.Float64:
		negated.SetFloat(-value.Float())
	default:
		return nil, &TypeMismatchError{Declared: value.Type(), Actual: value.Type()}
	}
	return negated.Interface(), nil
}
