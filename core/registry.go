// Package core provides the fundamental building blocks of the patchwork ORM.
// This file implements the entity registry, which answers two questions for
// a registered entity type: where it is stored, and which of its fields are
// settable.
package core

import (
	"reflect"
	"sync"
)

// Location is the storage coordinates of an entity type.
type Location struct {
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// Registry maps entity types to their schema and storage location.
//
// Schemas are registered at startup; lookups are safe for concurrent use.
type Registry struct {
	mutex      sync.RWMutex
	config     Config
	schemaList map[reflect.Type]*SchemaCore
}

// NewRegistry creates a registry. An optional config supplies locations for
// types whose schema does not name its database or collection.
func NewRegistry(config ...Config) *Registry {
	registry := &Registry{schemaList: make(map[reflect.Type]*SchemaCore)}
	if len(config) > 0 {
		registry.config = config[0]
	}
	return registry
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used by models created
// without WithRegistry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register records a schema. Registering the same type again replaces it.
func (registry *Registry) Register(schema *SchemaCore) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	registry.schemaList[schema.Type] = schema
}

// ResolveStorageLocation returns the database and collection of an entity type.
//
// Each coordinate is taken from the registered schema first, then from the
// config entry named after the Go type, then (database only) from the config
// default. A type without a collection fails with MissingRoutingMetadataError.
func (registry *Registry) ResolveStorageLocation(entityType reflect.Type) (Location, error) {
	entityType = indirect(entityType)
	registry.mutex.RLock()
	schema := registry.schemaList[entityType]
	registry.mutex.RUnlock()
	return registry.locate(entityType, schema)
}

func (registry *Registry) locate(entityType reflect.Type, schema *SchemaCore) (Location, error) {
	registry.mutex.RLock()
	config := registry.config
	registry.mutex.RUnlock()

	var location Location
	if schema != nil {
		location = Location{Database: schema.Database, Collection: schema.Collection}
	}
	if entityType != nil {
		if entry, found := config.Entities[entityType.Name()]; found {
			if location.Database == "" {
				location.Database = entry.Database
			}
			if location.Collection == "" {
				location.Collection = entry.Collection
			}
		}
	}
	if location.Database == "" {
		location.Database = config.DefaultDatabase
	}
	if location.Collection == "" {
		return Location{}, &MissingRoutingMetadataError{Type: entityType}
	}
	return location, nil
}

// SettableFields lists the settable fields of a registered entity type in
// declaration order. Unregistered types fail with MissingRoutingMetadataError.
func (registry *Registry) SettableFields(entityType reflect.Type) ([]*Field, error) {
	entityType = indirect(entityType)
	registry.mutex.RLock()
	schema, ok := registry.schemaList[entityType]
	registry.mutex.RUnlock()
	if !ok {
		return nil, &MissingRoutingMetadataError{Type: entityType}
	}
	return schema.SettableFields(), nil
}

// route resolves the location of a schema and returns a copy pointing at it.
// The schema is registered on first use so SettableFields can answer for it.
func (registry *Registry) route(schema *SchemaCore) (*SchemaCore, error) {
	registry.mutex.Lock()
	if _, known := registry.schemaList[schema.Type]; !known {
		registry.schemaList[schema.Type] = schema
	}
	registry.mutex.Unlock()

	location, err := registry.locate(schema.Type, schema)
	if err != nil {
		return nil, err
	}
	return schema.routed(location), nil
}
