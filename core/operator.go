// Package core provides the fundamental building blocks of the patchwork ORM.
// This file defines the operators of match conditions, the filters that pick
// which stored entities an update operation set applies to.
package core

// Operator is the operator of one Condition node.
//
// Logical operators combine child conditions; every other operator compares
// the condition's field with its value.
type Operator string

const (
	opAnd Operator = "AND"
	opOr  Operator = "OR"
	opNot Operator = "NOT" // none of the children match

	opNil  Operator = "NIL"  // field is null or missing
	opEq   Operator = "EQ"   // field equals value
	opGt   Operator = "GT"   // field > value
	opGte  Operator = "GTE"  // field >= value
	opLt   Operator = "LT"   // field < value
	opLte  Operator = "LTE"  // field <= value
	opLike Operator = "LIKE" // case-insensitive SQL pattern, % and _ wildcards
	opIn   Operator = "IN"   // field equals one of a []any value
)

// Public operator aliases, for building Condition values by hand.
//
// Example:
//
//	cond := &core.Condition{FieldName: "score", Operator: &core.OpGte, Value: 10.0}
var (
	OpAnd  = opAnd
	OpOr   = opOr
	OpNot  = opNot
	OpNil  = opNil
	OpEq   = opEq
	OpGt   = opGt
	OpGte  = opGte
	OpLt   = opLt
	OpLte  = opLte
	OpLike = opLike
	OpIn   = opIn
)

// IsLogical reports whether the operator combines child conditions.
func (op Operator) IsLogical() bool {
	switch op {
	case opAnd, opOr, opNot:
		return true
	}
	return false
}
