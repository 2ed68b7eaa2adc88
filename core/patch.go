// Package core provides the fundamental building blocks of the patchwork ORM.
// This file defines the patch expression tree: a closed set of node variants
// describing a new entity value in terms of an old one, mentioning only the
// fields that change.
package core

import (
	"fmt"
	"reflect"
)

// Node is one fragment of a patch expression tree.
//
// The set of variants is closed: *Object, *Delta, *Literal, *Collection,
// *Read and *ListOp.
type Node interface {
	node()
}

// Binding pairs an assignment target with the expression assigned to it.
//
// Target is either a field name (Go or storage name) or a selector function
// func(*T) *F returning a pointer to a field of the constructed type.
type Binding struct {
	Target any
	Value  Node
}

// Assign binds a typed field selector to a node.
//
// Example:
//
//	core.Assign(func(u *User) *int { return &u.Age }, core.Inc(2))
func Assign[T any, F any](selector func(*T) *F, value Node) Binding {
	return Binding{Target: selector, Value: value}
}

// AssignField binds a field, by Go or storage name, to a node.
func AssignField(name string, value Node) Binding {
	return Binding{Target: name, Value: value}
}

// Object constructs a new entity-shaped value from ordered bindings.
// At the root of a patch it is the entry point; nested, it is evaluated
// as a whole value.
type Object struct {
	Bindings []Binding
}

// Obj builds an Object node.
func Obj(bindings ...Binding) *Object {
	return &Object{Bindings: bindings}
}

// DeltaOperator is the direction of an arithmetic delta.
type DeltaOperator string

const (
	DeltaIncrement DeltaOperator = "+"
	DeltaDecrement DeltaOperator = "-"
)

// Delta assigns old.Field ± Operand, where Operand is a constant.
type Delta struct {
	Operator DeltaOperator
	Operand  any
}

// Inc builds old.Field + operand.
func Inc(operand any) *Delta {
	return &Delta{Operator: DeltaIncrement, Operand: operand}
}

// Dec builds old.Field - operand.
func Dec(operand any) *Delta {
	return &Delta{Operator: DeltaDecrement, Operand: operand}
}

// Literal is a compile-time-known scalar, enum or collection value.
type Literal struct {
	Value any
}

// Lit builds a Literal node.
func Lit(value any) *Literal {
	return &Literal{Value: value}
}

// Collection is a list literal whose elements are themselves nodes.
type Collection struct {
	Elements []Node
}

// List builds a Collection node from plain values.
func List(values ...any) *Collection {
	elementList := make([]Node, 0, len(values))
	for _, value := range values {
		if node, ok := value.(Node); ok {
			elementList = append(elementList, node)
			continue
		}
		elementList = append(elementList, Lit(value))
	}
	return &Collection{Elements: elementList}
}

// Read references an existing value: a field of the old entity, a captured
// variable, a closure or an expression. It is resolved eagerly at compile time.
type Read struct {
	Source Source
}

// ListOp appends, removes or uniquely adds one element of a list field.
type ListOp struct {
	Kind    UpdateKind
	Element Node
}

// Push appends element to a list field.
func Push(element any) *ListOp {
	return &ListOp{Kind: UpdateListAppend, Element: asNode(element)}
}

// Pull removes every element equal to element from a list field.
func Pull(element any) *ListOp {
	return &ListOp{Kind: UpdateListRemove, Element: asNode(element)}
}

// AddToSet appends element to a list field unless it is already present.
func AddToSet(element any) *ListOp {
	return &ListOp{Kind: UpdateListAddUnique, Element: asNode(element)}
}

func asNode(value any) Node {
	if node, ok := value.(Node); ok {
		return node
	}
	return Lit(value)
}

func (*Object) node()     {}
func (*Delta) node()      {}
func (*Literal) node()    {}
func (*Collection) node() {}
func (*Read) node()       {}
func (*ListOp) node()     {}

//region Sources

// Env is the variable environment a patch is evaluated in. TagKey names the
// struct tag that holds storage names of Old's fields.
type Env struct {
	Old    any
	Vars   map[string]any
	TagKey string
}

// Source resolves a Read node to a concrete value in an Env.
//
// Key identifies the source by structure (never by captured value) and is
// used in error messages and as a memoization key.
type Source interface {
	Resolve(env Env) (any, error)
	Key() string
}

type oldFieldSource struct{ name string }

func (s oldFieldSource) Key() string { return "old." + s.name }

func (s oldFieldSource) Resolve(env Env) (any, error) {
	value := reflect.ValueOf(env.Old)
	for value.Kind() == reflect.Pointer || value.Kind() == reflect.Interface {
		if value.IsNil() {
			return nil, fmt.Errorf("no old entity to read %s from", s.name)
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil, fmt.Errorf("no old entity to read %s from", s.name)
	}
	tagKey := env.TagKey
	if tagKey == "" {
		tagKey = defaultTagKey
	}
	field := describeStruct(value.Type(), tagKey).lookup(s.name)
	if field == nil {
		return nil, fmt.Errorf("old entity has no field %s", s.name)
	}
	return field.valueIn(value).Interface(), nil
}

type variableSource struct{ name string }

func (s variableSource) Key() string { return "var." + s.name }

func (s variableSource) Resolve(env Env) (any, error) {
	value, ok := env.Vars[s.name]
	if !ok {
		return nil, fmt.Errorf("variable %s is not bound", s.name)
	}
	return value, nil
}

type valueSource struct{ value any }

func (s valueSource) Key() string { return "value" }

func (s valueSource) Resolve(Env) (any, error) { return s.value, nil }

type funcSource struct{ fn func(Env) (any, error) }

func (s funcSource) Key() string { return "func" }

func (s funcSource) Resolve(env Env) (any, error) { return s.fn(env) }

// ReadOld reads a field, by Go or storage name, of the old entity snapshot.
func ReadOld(name string) *Read {
	return &Read{Source: oldFieldSource{name: name}}
}

// ReadVar reads a captured variable bound with Patch.WithVar.
func ReadVar(name string) *Read {
	return &Read{Source: variableSource{name: name}}
}

// ReadValue reads an already captured value, such as a sub-object or a list
// held by the caller.
func ReadValue(value any) *Read {
	return &Read{Source: valueSource{value: value}}
}

// ReadFunc reads the result of a closure, evaluated once per compile.
func ReadFunc(fn func(env Env) (any, error)) *Read {
	return &Read{Source: funcSource{fn: fn}}
}

//endregion

// Patch is a patch expression over entity type T together with the
// environment it reads from.
type Patch[T any] struct {
	Root *Object
	Old  *T
	Vars map[string]any
}

// NewPatch builds a patch whose root object has the given bindings.
//
// Example:
//
//	patch := core.NewPatch[User](
//		core.Assign(func(u *User) *int { return &u.Age }, core.Inc(2)),
//		core.AssignField("Name", core.Lit("bob")),
//	)
func NewPatch[T any](bindings ...Binding) *Patch[T] {
	return &Patch[T]{Root: Obj(bindings...)}
}

// WithOld sets the old entity snapshot read by ReadOld and "old" in expressions.
func (p *Patch[T]) WithOld(old *T) *Patch[T] {
	p.Old = old
	return p
}

// WithVar binds a captured variable.
func (p *Patch[T]) WithVar(name string, value any) *Patch[T] {
	if p.Vars == nil {
		p.Vars = make(map[string]any)
	}
	p.Vars[name] = value
	return p
}

func (p *Patch[T]) env(tagKey string) Env {
	env := Env{Vars: p.Vars, TagKey: tagKey}
	if p.Old != nil {
		env.Old = p.Old
	}
	return env
}
