// Package core provides the fundamental building blocks of the patchwork ORM.
// This file contains helper functions for reflection, field mapping,
// condition folding, and common value transformations.
package core

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// selectorFieldName resolves the Go struct field name addressed by a selector
// function of the form func(*T) *F, where T is structType.
//
// The selector is executed against a fresh zero value; a selector that
// panics, returns nil or returns a pointer outside the struct is rejected.
//
// Example:
//
//	name, ok := selectorFieldName(func(u *User) *string { return &u.Name }, userType, "db")
//	// name == "Name", ok == true
func selectorFieldName(selector any, structType reflect.Type, tagKey string) (name string, ok bool) {
	if selector == nil {
		return "", false
	}
	selectorValue := reflect.ValueOf(selector)
	selectorType := selectorValue.Type()
	if selectorType.Kind() != reflect.Func || selectorType.NumIn() != 1 || selectorType.NumOut() != 1 {
		return "", false
	}
	if selectorType.In(0) != reflect.PointerTo(structType) || selectorType.Out(0).Kind() != reflect.Pointer {
		return "", false
	}

	defer func() {
		if recover() != nil {
			name, ok = "", false
		}
	}()

	// execute the selector against a zero *T and map the returned pointer back to a field
	arg := reflect.New(structType)
	ret := selectorValue.Call([]reflect.Value{arg})[0]
	if ret.IsNil() {
		return "", false
	}
	field := describeStruct(structType, tagKey).byPointer(arg.Pointer(), ret.Pointer(), ret.Type().Elem())
	if field == nil {
		return "", false
	}
	return field.StructFieldName, true
}

// foldConditionsAnd combines multiple conditions into a single condition
// using logical AND. Nil conditions are skipped. If zero conditions remain,
// it returns nil. If one condition remains, it returns that condition.
func foldConditionsAnd(conds ...*Condition) *Condition {
	nonNil := make([]*Condition, 0, len(conds))
	for _, cond := range conds {
		if cond != nil {
			nonNil = append(nonNil, cond)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		acc := nonNil[0]
		for i := 1; i < len(nonNil); i++ {
			acc = acc.And(nonNil[i])
		}
		return acc
	}
}

// StructValues extracts coerced field values from a struct according to its schema.
//
// It returns three values:
//   - values: coerced field values in schema order, identity included
//   - placeholders: parameter placeholders ($1, $2, ...) for SQL queries
//   - err: the first coercion failure, if any
//
// Example:
//
//	values, placeholders, err := StructValues(&userSchema.SchemaCore, &user)
func StructValues(schema *SchemaCore, doc any) ([]any, []string, error) {
	value := reflect.ValueOf(doc)
	if value.Kind() == reflect.Ptr {
		value = value.Elem()
	}

	valueList := make([]any, 0, len(schema.Fields))
	placeholderList := make([]string, 0, len(schema.Fields))
	engine := coercer{tagKey: schema.TagKey}

	for index, field := range schema.Fields {
		coerced, err := engine.coerce(field.valueIn(value), field.Type, field.DatabaseColumnName)
		if err != nil {
			return nil, nil, err
		}
		valueList = append(valueList, coerced)
		placeholderList = append(placeholderList, fmt.Sprintf("$%d", index+1))
	}

	return valueList, placeholderList, nil
}

// EncodeDocument converts a whole entity, identity included, into a Document
// keyed by column name. Drivers use it to insert entities.
func EncodeDocument(schema *SchemaCore, doc any) (Document, error) {
	valueList, _, err := StructValues(schema, doc)
	if err != nil {
		return nil, err
	}
	document := make(Document, 0, len(valueList))
	for index, field := range schema.Fields {
		document = append(document, DocumentField{Key: field.DatabaseColumnName, Value: valueList[index]})
	}
	return document, nil
}

// newIdentity generates a dashless random identifier for string identity fields.
func newIdentity() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// setTimeField sets a time.Time value into a struct field, supporting both
// value and pointer kinds.
//
// If the field is a struct time.Time, it sets the value directly.
// If the field is a *time.Time, it sets or allocates as needed.
func setTimeField(field reflect.Value, t time.Time) {
	if !field.IsValid() || !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.Struct:
		if field.Type() == timeType {
			field.Set(reflect.ValueOf(t))
		}
	case reflect.Pointer:
		if field.Type().Elem() == timeType {
			if field.IsNil() {
				ptr := reflect.New(timeType)
				ptr.Elem().Set(reflect.ValueOf(t))
				field.Set(ptr)
			} else {
				field.Elem().Set(reflect.ValueOf(t))
			}
		}
	}
}
