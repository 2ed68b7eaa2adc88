// Package core provides the fundamental building blocks of the patchwork ORM.
// This file implements the entity snapshot differ: a full-overwrite update
// set built from a whole entity, one SET per settable field.
package core

import (
	"errors"
	"reflect"
)

// ErrNilEntity is returned when a nil entity is diffed or saved.
var ErrNilEntity = errors.New("core: nil entity")

// Differ builds full-overwrite update sets for entity type T.
type Differ[T any] struct {
	schema *SchemaMeta[T]
}

// NewDiffer creates a Differ bound to a schema.
func NewDiffer[T any](schema *SchemaMeta[T]) *Differ[T] {
	return &Differ[T]{schema: schema}
}

// DiffAll emits SET(path, coerced value) for every settable field of doc, in
// declaration order. The identity field is never emitted and nil values are
// emitted as nil. The first field whose declared type cannot be coerced
// aborts the whole diff.
//
// Example:
//
//	set, err := core.NewDiffer(userSchema).DiffAll(&User{ID: "a1", Name: "bob", Age: 3})
//	// set == [SET(name, "bob"), SET(age, 3)]
func (d *Differ[T]) DiffAll(doc *T) (UpdateOperationSet, error) {
	if doc == nil {
		return nil, ErrNilEntity
	}
	value := reflect.ValueOf(doc).Elem()
	engine := coercer{tagKey: d.schema.TagKey}

	settableList := d.schema.SettableFields()
	set := make(UpdateOperationSet, 0, len(settableList))
	for _, field := range settableList {
		path := field.DatabaseColumnName
		if err := engine.checkType(field.Type, path); err != nil {
			return nil, err
		}
		coerced, err := engine.coerce(field.valueIn(value), field.Type, path)
		if err != nil {
			return nil, err
		}
		set = set.Add(Set(path, coerced))
	}
	return set, nil
}
