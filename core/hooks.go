// Package core provides the fundamental building blocks of the patchwork ORM.
// This file defines lifecycle hooks that allow custom logic to be executed
// before or after persistence operations such as insert, update and delete.
package core

// PreHook represents a lifecycle hook that runs before a persistence operation.
//
// Hooks are identified by string tokens (e.g., "pre:insert") and are
// registered per entity schema. They allow validation or transformation of
// an entity before it is written.
type PreHook string

// PostHook represents a lifecycle hook that runs after a persistence operation.
//
// Hooks are identified by string tokens (e.g., "post:update") and are
// registered per entity schema.
type PostHook string

const (
	// PreInsert is executed before an entity is inserted.
	PreInsert PreHook = "pre:insert"
	// PreUpdate is executed before an entity is saved as a full overwrite.
	PreUpdate PreHook = "pre:update"

	// PostInsert is executed after an entity is inserted.
	PostInsert PostHook = "post:insert"
	// PostUpdate is executed after an entity is saved as a full overwrite.
	PostUpdate PostHook = "post:update"
)
