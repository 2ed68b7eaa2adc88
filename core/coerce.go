// Package core provides the fundamental building blocks of the patchwork ORM.
// This file implements the value coercion engine: the single definition of
// what a wire-safe value is, shared by the patch compiler, the snapshot
// differ and the drivers.
package core

import (
	"bytes"
	"math"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is an ordered mapping used as the wire form of nested
// entity-shaped values.
type Document []DocumentField

// DocumentField is one key/value pair of a Document.
type DocumentField struct {
	Key   string
	Value any
}

// Get returns the value stored under key.
func (document Document) Get(key string) (any, bool) {
	for _, field := range document {
		if field.Key == key {
			return field.Value, true
		}
	}
	return nil, false
}

// Enum is implemented by enumerations whose wire form is an ordinal.
//
// Named integer types need not implement it: their underlying integer is
// already the ordinal.
type Enum interface {
	Ordinal() int64
}

var (
	enumType       = reflect.TypeOf((*Enum)(nil)).Elem()
	timeType       = reflect.TypeOf(time.Time{})
	decimalType    = reflect.TypeOf(decimal.Decimal{})
	decimal128Type = reflect.TypeOf(primitive.Decimal128{})
	objectIDType   = reflect.TypeOf(primitive.ObjectID{})
	uuidType       = reflect.TypeOf(uuid.UUID{})
	documentType   = reflect.TypeOf(Document{})
)

// Coerce normalizes value, declared as declaredType on field, to its wire form.
//
// Rules, in precedence order:
//  1. Enum values become their ordinal; named integer types their integer.
//  2. High-precision decimals (decimal.Decimal, primitive.Decimal128) become
//     their canonical string.
//  3. Slices and arrays (except bytes) become []any of coerced elements;
//     a nil collection stays nil.
//  4. Primitives pass through normalized: integers as int64, floats as
//     float64, strings, bools, []byte, time.Time, primitive.ObjectID;
//     uuid.UUID becomes its canonical string. Structs and string-keyed maps
//     become a Document, maps with keys sorted.
//  5. Anything else, including a value that contains itself, fails with
//     UnsupportedValueTypeError.
//
// The declared type is validated even when value is nil. Coerce is pure and
// idempotent over its own output.
func Coerce(value any, declaredType reflect.Type, field string) (any, error) {
	return coercer{tagKey: defaultTagKey}.coerceAny(value, declaredType, field)
}

// coercer carries the tag key used to name the fields of nested documents,
// and the references on the path of the current walk.
type coercer struct {
	tagKey   string
	visiting map[reference]bool
}

// reference identifies a pointer, map or slice being walked.
type reference struct {
	pointer uintptr
	length  int
	typ     reflect.Type
}

func referenceOf(value reflect.Value) (reference, bool) {
	switch value.Kind() {
	case reflect.Pointer, reflect.Map:
		if value.IsNil() {
			return reference{}, false
		}
		return reference{pointer: value.Pointer(), typ: value.Type()}, true
	case reflect.Slice:
		if value.IsNil() || value.Len() == 0 {
			return reference{}, false
		}
		return reference{pointer: value.Pointer(), length: value.Len(), typ: value.Type()}, true
	}
	return reference{}, false
}

func (c coercer) coerceAny(value any, declaredType reflect.Type, field string) (any, error) {
	if declaredType == nil {
		if value == nil {
			return nil, nil
		}
		declaredType = reflect.TypeOf(value)
	}
	if err := c.checkType(declaredType, field); err != nil {
		return nil, err
	}
	return c.coerce(reflect.ValueOf(value), declaredType, field)
}

// coerce walks value. A value that contains itself fails with
// UnsupportedValueTypeError instead of recursing forever.
func (c coercer) coerce(value reflect.Value, declaredType reflect.Type, field string) (any, error) {
	if c.visiting == nil {
		c.visiting = make(map[reference]bool)
	}
	return c.walk(value, declaredType, field)
}

func (c coercer) walk(value reflect.Value, declaredType reflect.Type, field string) (any, error) {
	for {
		if !value.IsValid() {
			return nil, nil
		}
		if value.Kind() != reflect.Interface {
			break
		}
		if value.IsNil() {
			return nil, nil
		}
		value = value.Elem()
	}
	if value.Kind() == reflect.Pointer && value.IsNil() {
		return nil, nil
	}
	if ref, ok := referenceOf(value); ok {
		if c.visiting[ref] {
			return nil, &UnsupportedValueTypeError{Field: field, Type: value.Type(), Cyclic: true}
		}
		c.visiting[ref] = true
		defer delete(c.visiting, ref)
	}

	if value.CanInterface() {
		switch typed := value.Interface().(type) {
		case Enum:
			return typed.Ordinal(), nil
		case decimal.Decimal:
			return typed.String(), nil
		case primitive.Decimal128:
			return typed.String(), nil
		case Document:
			return c.coerceDocument(typed, field)
		case time.Time:
			return typed, nil
		case primitive.ObjectID:
			return typed, nil
		case uuid.UUID:
			return typed.String(), nil
		}
	}

	switch value.Kind() {
	case reflect.Pointer:
		return c.walk(value.Elem(), declaredType, field)
	case reflect.Bool:
		return value.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		unsigned := value.Uint()
		if unsigned > math.MaxInt64 {
			return nil, &UnsupportedValueTypeError{Field: field, Type: value.Type()}
		}
		return int64(unsigned), nil
	case reflect.Float32, reflect.Float64:
		return value.Float(), nil
	case reflect.String:
		return value.String(), nil
	case reflect.Slice:
		if value.IsNil() {
			return nil, nil
		}
		if value.Type().Elem().Kind() == reflect.Uint8 {
			return bytes.Clone(value.Bytes()), nil
		}
		return c.coerceList(value, field)
	case reflect.Array:
		if value.Type().Elem().Kind() == reflect.Uint8 {
			raw := make([]byte, value.Len())
			reflect.Copy(reflect.ValueOf(raw), value)
			return raw, nil
		}
		return c.coerceList(value, field)
	case reflect.Map:
		if value.Type().Key().Kind() != reflect.String {
			return nil, &UnsupportedValueTypeError{Field: field, Type: value.Type()}
		}
		if value.IsNil() {
			return nil, nil
		}
		return c.coerceMap(value, field)
	case reflect.Struct:
		return c.coerceStruct(value, field)
	default:
		return nil, &UnsupportedValueTypeError{Field: field, Type: value.Type()}
	}
}

func (c coercer) coerceList(value reflect.Value, field string) (any, error) {
	elementType := value.Type().Elem()
	list := make([]any, 0, value.Len())
	for i := 0; i < value.Len(); i++ {
		element, err := c.walk(value.Index(i), elementType, field)
		if err != nil {
			return nil, err
		}
		list = append(list, element)
	}
	return list, nil
}

func (c coercer) coerceMap(value reflect.Value, field string) (any, error) {
	keyList := value.MapKeys()
	sort.Slice(keyList, func(i, j int) bool { return keyList[i].String() < keyList[j].String() })

	elementType := value.Type().Elem()
	document := make(Document, 0, len(keyList))
	for _, key := range keyList {
		element, err := c.walk(value.MapIndex(key), elementType, field+"."+key.String())
		if err != nil {
			return nil, err
		}
		document = append(document, DocumentField{Key: key.String(), Value: element})
	}
	return document, nil
}

func (c coercer) coerceStruct(value reflect.Value, field string) (any, error) {
	descriptor := describeStruct(value.Type(), c.tagKey)
	document := make(Document, 0, len(descriptor.fieldList))
	for _, member := range descriptor.fieldList {
		element, err := c.walk(member.valueIn(value), member.Type, field+"."+member.DatabaseColumnName)
		if err != nil {
			return nil, err
		}
		document = append(document, DocumentField{Key: member.DatabaseColumnName, Value: element})
	}
	return document, nil
}

func (c coercer) coerceDocument(document Document, field string) (any, error) {
	if document == nil {
		return nil, nil
	}
	coerced := make(Document, 0, len(document))
	for _, member := range document {
		element, err := c.walk(reflect.ValueOf(member.Value), nil, field+"."+member.Key)
		if err != nil {
			return nil, err
		}
		coerced = append(coerced, DocumentField{Key: member.Key, Value: element})
	}
	return coerced, nil
}

//region type support

var typeSupportCache sync.Map // descriptorKey -> reflect.Type (nil when supported)

// checkType fails when declaredType, or any type reachable from it, has no
// wire representation.
func (c coercer) checkType(declaredType reflect.Type, field string) error {
	key := descriptorKey{structType: declaredType, tagKey: c.tagKey}
	var bad reflect.Type
	if cached, ok := typeSupportCache.Load(key); ok {
		bad, _ = cached.(reflect.Type)
	} else {
		bad = c.unsupportedIn(declaredType, map[reflect.Type]bool{})
		typeSupportCache.Store(key, bad)
	}
	if bad != nil {
		return &UnsupportedValueTypeError{Field: field, Type: bad}
	}
	return nil
}

// unsupportedIn returns the first type without a wire representation, or nil.
func (c coercer) unsupportedIn(t reflect.Type, visiting map[reflect.Type]bool) reflect.Type {
	if visiting[t] {
		return nil
	}
	switch t {
	case timeType, decimalType, decimal128Type, objectIDType, uuidType, documentType:
		return nil
	}
	if t.Implements(enumType) {
		return nil
	}

	switch t.Kind() {
	case reflect.Interface, reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return c.unsupportedIn(t.Elem(), visiting)
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return t
		}
		return c.unsupportedIn(t.Elem(), visiting)
	case reflect.Struct:
		visiting[t] = true
		defer delete(visiting, t)
		for _, member := range describeStruct(t, c.tagKey).fieldList {
			if bad := c.unsupportedIn(member.Type, visiting); bad != nil {
				return bad
			}
		}
		return nil
	default:
		return t
	}
}

//endregion
