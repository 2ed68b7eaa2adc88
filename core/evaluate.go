// Package core provides the fundamental building blocks of the patchwork ORM.
// This file implements eager evaluation of patch sub-expressions: resolving a
// node to a concrete value in the patch environment, conformed to the
// declared type of the field it is assigned to. Classification into update
// operations happens separately, in the compiler.
package core

import (
	"math/big"
	"reflect"

	"github.com/shopspring/decimal"
)

type evaluator struct {
	env    Env
	engine coercer
}

// evaluate resolves a value-producing node. Deltas and list operators only
// make sense at the root of a patch and are rejected here.
func (e evaluator) evaluate(node Node, declaredType reflect.Type, field string) (any, error) {
	switch n := node.(type) {
	case *Literal:
		return conform(n.Value, declaredType, field)
	case *Collection:
		return e.collect(n, declaredType, field)
	case *Read:
		if n.Source == nil {
			return nil, &UnsupportedNodeError{Field: field, Node: node}
		}
		value, err := n.Source.Resolve(e.env)
		if err != nil {
			return nil, &EvaluationError{Field: field, Source: n.Source.Key(), Err: err}
		}
		return conform(value, declaredType, field)
	case *Object:
		return e.construct(n, declaredType, field)
	default:
		return nil, &UnsupportedNodeError{Field: field, Node: node}
	}
}

// collect evaluates every element of a list literal against the element type.
func (e evaluator) collect(collection *Collection, declaredType reflect.Type, field string) (any, error) {
	elementType, ok := listElementType(declaredType)
	if !ok {
		if declaredType == nil || indirect(declaredType).Kind() == reflect.Interface {
			elementType = nil
		} else {
			return nil, &TypeMismatchError{Field: field, Declared: declaredType, Actual: reflect.TypeOf([]any{})}
		}
	}
	valueList := make([]any, 0, len(collection.Elements))
	for _, element := range collection.Elements {
		value, err := e.evaluate(element, elementType, field)
		if err != nil {
			return nil, err
		}
		valueList = append(valueList, value)
	}
	return valueList, nil
}

// construct evaluates a nested object construction to a Document holding
// exactly the bound members, in binding order.
func (e evaluator) construct(object *Object, declaredType reflect.Type, field string) (any, error) {
	target := indirect(declaredType)
	document := make(Document, 0, len(object.Bindings))

	for _, binding := range object.Bindings {
		var (
			memberName string
			memberType reflect.Type
		)
		if target == nil {
			return nil, &TypeMismatchError{Field: field, Declared: declaredType, Actual: documentType}
		}
		switch target.Kind() {
		case reflect.Struct:
			descriptor := describeStruct(target, e.engine.tagKey)
			member, err := resolveTarget(descriptor.fieldList, target, e.engine.tagKey, binding.Target)
			if err != nil {
				return nil, err
			}
			memberName, memberType = member.DatabaseColumnName, member.Type
		case reflect.Map:
			name, ok := binding.Target.(string)
			if target.Key().Kind() != reflect.String || !ok || name == "" {
				return nil, &UnsupportedTargetError{Target: binding.Target, Reason: "map members must be named by a non-empty string"}
			}
			memberName, memberType = name, target.Elem()
		case reflect.Interface:
			name, ok := binding.Target.(string)
			if !ok || name == "" {
				return nil, &UnsupportedTargetError{Target: binding.Target, Reason: "members of an untyped object must be named by a non-empty string"}
			}
			memberName = name
		default:
			return nil, &TypeMismatchError{Field: field, Declared: declaredType, Actual: documentType}
		}

		path := field + "." + memberName
		value, err := e.evaluate(binding.Value, memberType, path)
		if err != nil {
			return nil, err
		}
		coerced, err := e.engine.coerceAny(value, memberType, path)
		if err != nil {
			return nil, err
		}
		document = append(document, DocumentField{Key: memberName, Value: coerced})
	}
	return document, nil
}

// conform checks that value can be stored in a field declared as
// declaredType, converting numbers and named strings to the declared type.
func conform(value any, declaredType reflect.Type, field string) (any, error) {
	if declaredType == nil {
		return value, nil
	}
	if value == nil {
		return conformNil(declaredType, nil, field)
	}
	actual := reflect.ValueOf(value)
	if actual.Type().AssignableTo(declaredType) {
		return value, nil
	}
	target := indirect(declaredType)
	if target.Kind() == reflect.Interface {
		if actual.Type().Implements(target) {
			return value, nil
		}
		return nil, &TypeMismatchError{Field: field, Declared: declaredType, Actual: actual.Type()}
	}
	if actual.Type().AssignableTo(target) {
		return value, nil
	}
	if actual.Kind() == reflect.Pointer {
		if actual.IsNil() {
			return conformNil(declaredType, actual.Type(), field)
		}
		return conform(actual.Elem().Interface(), declaredType, field)
	}

	mismatch := &TypeMismatchError{Field: field, Declared: declaredType, Actual: actual.Type()}

	switch {
	case target == decimalType:
		return toDecimal(actual, mismatch)
	case isNumberKind(actual.Kind()) && isNumberKind(target.Kind()):
		return convertNumber(actual, target, mismatch)
	case actual.Kind() == reflect.String && target.Kind() == reflect.String:
		return actual.Convert(target).Interface(), nil
	case isListKind(actual) && isListKind(reflect.New(target).Elem()):
		valueList := make([]any, 0, actual.Len())
		for i := 0; i < actual.Len(); i++ {
			element, err := conform(actual.Index(i).Interface(), target.Elem(), field)
			if err != nil {
				return nil, err
			}
			valueList = append(valueList, element)
		}
		return valueList, nil
	case actual.Type() == documentType && (target.Kind() == reflect.Struct || target.Kind() == reflect.Map):
		return value, nil
	}
	return nil, mismatch
}

// conformNil accepts nil only for pointer, slice, map and interface fields.
func conformNil(declaredType reflect.Type, actualType reflect.Type, field string) (any, error) {
	switch declaredType.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return nil, nil
	}
	return nil, &TypeMismatchError{Field: field, Declared: declaredType, Actual: actualType}
}

func convertNumber(actual reflect.Value, target reflect.Type, mismatch error) (any, error) {
	converted := reflect.New(target).Elem()
	switch {
	case isSignedKind(target.Kind()):
		var whole int64
		switch {
		case isSignedKind(actual.Kind()):
			whole = actual.Int()
		case isUnsignedKind(actual.Kind()):
			if actual.Uint() > uint64(1<<63-1) {
				return nil, mismatch
			}
			whole = int64(actual.Uint())
		default:
			f := actual.Float()
			if f != float64(int64(f)) {
				return nil, mismatch
			}
			whole = int64(f)
		}
		if converted.OverflowInt(whole) {
			return nil, mismatch
		}
		converted.SetInt(whole)
	case isUnsignedKind(target.Kind()):
		var whole uint64
		switch {
		case isSignedKind(actual.Kind()):
			if actual.Int() < 0 {
				return nil, mismatch
			}
			whole = uint64(actual.Int())
		case isUnsignedKind(actual.Kind()):
			whole = actual.Uint()
		default:
			f := actual.Float()
			if f < 0 || f != float64(uint64(f)) {
				return nil, mismatch
			}
			whole = uint64(f)
		}
		if converted.OverflowUint(whole) {
			return nil, mismatch
		}
		converted.SetUint(whole)
	default:
		var fractional float64
		switch {
		case isSignedKind(actual.Kind()):
			fractional = float64(actual.Int())
		case isUnsignedKind(actual.Kind()):
			fractional = float64(actual.Uint())
		default:
			fractional = actual.Float()
		}
		if converted.OverflowFloat(fractional) {
			return nil, mismatch
		}
		converted.SetFloat(fractional)
	}
	return converted.Interface(), nil
}

func toDecimal(actual reflect.Value, mismatch error) (any, error) {
	switch {
	case isSignedKind(actual.Kind()):
		return decimal.NewFromInt(actual.Int()), nil
	case isUnsignedKind(actual.Kind()):
		return decimal.NewFromBigInt(new(big.Int).SetUint64(actual.Uint()), 0), nil
	case actual.Kind() == reflect.Float32 || actual.Kind() == reflect.Float64:
		return decimal.NewFromFloat(actual.Float()), nil
	case actual.Kind() == reflect.String:
		parsed, err := decimal.NewFromString(actual.String())
		if err != nil {
			return nil, mismatch
		}
		return parsed, nil
	}
	return nil, mismatch
}

// listElementType reports the element type of a list-like declared type.
// Byte slices are binary values, not lists.
func listElementType(declaredType reflect.Type) (reflect.Type, bool) {
	if declaredType == nil {
		return nil, false
	}
	target := indirect(declaredType)
	if (target.Kind() == reflect.Slice || target.Kind() == reflect.Array) && target.Elem().Kind() != reflect.Uint8 {
		return target.Elem(), true
	}
	return nil, false
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func isListKind(value reflect.Value) bool {
	kind := value.Kind()
	return (kind == reflect.Slice || kind == reflect.Array) && value.Type().Elem().Kind() != reflect.Uint8
}

func isSignedKind(kind reflect.Kind) bool {
	return kind >= reflect.Int && kind <= reflect.Int64
}

func isUnsignedKind(kind reflect.Kind) bool {
	return kind >= reflect.Uint && kind <= reflect.Uint64
}

func isNumberKind(kind reflect.Kind) bool {
	return isSignedKind(kind) || isUnsignedKind(kind) || kind == reflect.Float32 || kind == reflect.Float64
}
