// Package core provides the fundamental building blocks of the patchwork ORM.
// This file defines the schema system, which maps Go structs to database
// collections/tables, describes settable fields and the identity field, and
// supports schema building.
package core

import (
	"reflect"
	"strings"
)

// Field represents a struct field mapped to a database column.
//
// It contains metadata such as the Go field name, database column name,
// type information, constraints (primary key, unique, required), default value,
// and special markers for timestamp fields (createdAt, updatedAt, deletedAt).
type Field struct {
	StructFieldName    string       // Name of the field in the Go struct
	DatabaseColumnName string       // Name of the column in the database
	Type               reflect.Type // Go type of the field
	IsPrimaryKey       bool         // Whether this field is the identity field
	IsUnique           bool         // Whether this field is unique
	IsRequired         bool         // Whether this field is required
	DefaultValue       string       // Default value (if any)
	MemoryOffset       uintptr      // Memory offset within the struct

	// Special timestamp markers
	IsCreatedAt bool
	IsUpdatedAt bool
	IsDeletedAt bool

	index []int
}

// valueIn reads the field from a struct value of the schema type.
func (f *Field) valueIn(structValue reflect.Value) reflect.Value {
	return structValue.FieldByIndex(f.index)
}

// FieldOption is a function used to configure a Field.
type FieldOption func(*Field)

// PrimaryKey marks the field as the identity field.
func PrimaryKey() FieldOption {
	return func(f *Field) { f.IsPrimaryKey = true }
}

// Unique marks the field as unique.
func Unique() FieldOption {
	return func(f *Field) { f.IsUnique = true }
}

// Required marks the field as required (non-nullable).
func Required() FieldOption {
	return func(f *Field) { f.IsRequired = true }
}

// Default sets a default value for the field.
func Default(value string) FieldOption {
	return func(f *Field) { f.DefaultValue = value }
}

// CreatedAt marks the field as the createdAt timestamp.
func CreatedAt() FieldOption {
	return func(f *Field) { f.IsCreatedAt = true }
}

// UpdatedAt marks the field as the updatedAt timestamp.
func UpdatedAt() FieldOption {
	return func(f *Field) { f.IsUpdatedAt = true }
}

// DeletedAt marks the field as the deletedAt timestamp (for soft deletes).
func DeletedAt() FieldOption {
	return func(f *Field) { f.IsDeletedAt = true }
}

// SchemaCore contains the minimal schema information required at runtime.
//
// It includes the entity type, the database name, collection/table name and
// the mapped fields in declaration order.
type SchemaCore struct {
	Type       reflect.Type
	Database   string
	Collection string
	Fields     []*Field
	TagKey     string
}

// IdentityField returns the identity (primary key) field, or nil.
func (s *SchemaCore) IdentityField() *Field {
	for _, field := range s.Fields {
		if field.IsPrimaryKey {
			return field
		}
	}
	return nil
}

// SettableFields lists every mapped field except the identity field, in
// declaration order.
func (s *SchemaCore) SettableFields() []*Field {
	fieldList := make([]*Field, 0, len(s.Fields))
	for _, field := range s.Fields {
		if !field.IsPrimaryKey {
			fieldList = append(fieldList, field)
		}
	}
	return fieldList
}

// FieldByName finds a field by Go name or column name.
func (s *SchemaCore) FieldByName(name string) *Field {
	for _, field := range s.Fields {
		if field.StructFieldName == name || field.DatabaseColumnName == name {
			return field
		}
	}
	return nil
}

// routed returns a copy of the schema pointing at the given location.
func (s *SchemaCore) routed(location Location) *SchemaCore {
	clone := *s
	clone.Database = location.Database
	clone.Collection = location.Collection
	return &clone
}

// SchemaMeta extends SchemaCore with runtime metadata.
//
// It contains registered hooks and cached references to special
// fields (createdAt, updatedAt, deletedAt).
type SchemaMeta[T any] struct {
	SchemaCore
	PreHookList  map[PreHook][]func(*T) error
	PostHookList map[PostHook][]func(*T) error

	createdAtField *Field
	updatedAtField *Field
	deletedAtField *Field
}

// RegisterPreHook registers a pre-operation hook for the schema.
func (s *SchemaMeta[T]) RegisterPreHook(hook PreHook, fn func(*T) error) {
	s.PreHookList[hook] = append(s.PreHookList[hook], fn)
}

// RegisterPostHook registers a post-operation hook for the schema.
func (s *SchemaMeta[T]) RegisterPostHook(hook PostHook, fn func(*T) error) {
	s.PostHookList[hook] = append(s.PostHookList[hook], fn)
}

// SchemaBuilder is used to construct a schema definition from a Go struct.
//
// It collects field metadata using reflection and applies customization
// through SchemaOptions.
type SchemaBuilder[T any] struct {
	database   string
	collection string
	tagKey     string
	structType reflect.Type
	fields     []*Field
}

// SchemaOption represents a function that customizes the schema builder.
type SchemaOption[T any] func(*SchemaBuilder[T])

// TagKey sets the struct tag key to use for database column mapping.
func TagKey[T any](key string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.tagKey = key }
}

// Table sets the database collection/table name for the schema.
func Table[T any](name string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.collection = name }
}

// Database sets the database name for the schema.
func Database[T any](name string) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) { schemaBuilder.database = name }
}

// OverrideField allows modifying the metadata of a specific field
// (e.g., making it required, unique, primary key, etc.).
func OverrideField[T any, F any](selector func(*T) *F, opts ...FieldOption) SchemaOption[T] {
	return func(schemaBuilder *SchemaBuilder[T]) {
		if schemaBuilder.fields == nil {
			return // first pass runs before fields exist
		}
		name, ok := selectorFieldName(selector, schemaBuilder.structType, schemaBuilder.tagKey)
		if !ok {
			panic("core: OverrideField: field not found by selector")
		}
		for _, field := range schemaBuilder.fields {
			if field.StructFieldName == name {
				for _, opt := range opts {
					opt(field)
				}
				return
			}
		}
	}
}

// Schema builds a SchemaMeta[T] by reflecting on struct fields
// and applying the given SchemaOptions.
//
// When no field is marked with PrimaryKey, a field stored as "_id" or named
// "ID"/"Id" becomes the identity field.
func Schema[T any](options ...SchemaOption[T]) *SchemaMeta[T] {
	var zero T
	structType := reflect.TypeOf(zero)
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}

	builder := &SchemaBuilder[T]{structType: structType}

	// Apply options before building fields (Table/Database/TagKey/etc.)
	for _, option := range options {
		option(builder)
	}

	// Copy the shared descriptor so overrides stay local to this schema
	for _, described := range describeStruct(structType, builder.tagKey).fieldList {
		field := *described
		builder.fields = append(builder.fields, &field)
	}

	// Re-apply options so that OverrideField can work after fields exist
	for _, option := range options {
		option(builder)
	}

	if !hasPrimaryKey(builder.fields) {
		for _, field := range builder.fields {
			if field.DatabaseColumnName == "_id" || strings.EqualFold(field.StructFieldName, "id") {
				field.IsPrimaryKey = true
				break
			}
		}
	}

	tagKey := builder.tagKey
	if tagKey == "" {
		tagKey = defaultTagKey
	}

	meta := &SchemaMeta[T]{
		SchemaCore: SchemaCore{
			Type:       structType,
			Database:   builder.database,
			Collection: builder.collection,
			Fields:     builder.fields,
			TagKey:     tagKey,
		},
		PreHookList:  make(map[PreHook][]func(*T) error),
		PostHookList: make(map[PostHook][]func(*T) error),
	}

	// Detect special fields once
	for _, f := range builder.fields {
		if f.IsCreatedAt {
			meta.createdAtField = f
		}
		if f.IsUpdatedAt {
			meta.updatedAtField = f
		}
		if f.IsDeletedAt {
			meta.deletedAtField = f
		}
	}

	return meta
}

func hasPrimaryKey(fieldList []*Field) bool {
	for _, field := range fieldList {
		if field.IsPrimaryKey {
			return true
		}
	}
	return false
}
