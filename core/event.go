// Package core provides the fundamental building blocks of the patchwork ORM.
// This file defines the event system used to observe writes.
package core

import "sync"

// Event represents a lifecycle event that can be emitted by the ORM.
//
// Events are triggered after insert, update and delete operations. They allow
// users to register handlers that observe the persistence layer, for example
// to audit the operation sets applied to an entity type.
type Event string

const (
	// EventInsert is emitted after an entity is inserted.
	EventInsert Event = "insert"
	// EventUpdate is emitted after an operation set is applied.
	EventUpdate Event = "update"
	// EventDelete is emitted after entities are deleted.
	EventDelete Event = "delete"
)

// EventHandler defines the callback signature for event listeners.
// The payload argument is InsertPayload, UpdatePayload or DeletePayload.
type EventHandler func(payload any)

// EventDispatcher manages a list of event handlers and dispatches them
// when the corresponding events are emitted.
type EventDispatcher struct {
	mutex       sync.RWMutex
	handlerList map[Event][]EventHandler
}

var globalDispatcher = &EventDispatcher{
	handlerList: make(map[Event][]EventHandler),
}

// On registers an EventHandler for a specific Event.
//
// Example:
//
//	core.On(core.EventUpdate, func(payload any) {
//	    if p, ok := payload.(core.UpdatePayload); ok {
//	        log.Printf("%s: %v", p.Schema.Collection, p.Operations)
//	    }
//	})
func On(event Event, handler EventHandler) {
	globalDispatcher.mutex.Lock()
	defer globalDispatcher.mutex.Unlock()
	globalDispatcher.handlerList[event] = append(globalDispatcher.handlerList[event], handler)
}

// Emit triggers all registered handlers for the given Event.
//
// Handlers are executed asynchronously in separate goroutines.
func Emit(event Event, payload any) {
	globalDispatcher.mutex.RLock()
	defer globalDispatcher.mutex.RUnlock()
	for _, handler := range globalDispatcher.handlerList[event] {
		go handler(payload)
	}
}

// InsertPayload is passed to EventInsert handlers. Doc is a shallow copy of
// the inserted entity, so handlers never share it with the caller.
type InsertPayload[T any] struct {
	Schema *SchemaCore
	Doc    *T
}

// UpdatePayload is passed to EventUpdate handlers.
//
// It carries a copy of the applied operation set and the number of modified
// entities.
type UpdatePayload struct {
	Schema     *SchemaCore
	Condition  *Condition
	Operations UpdateOperationSet
	Modified   int64
}

// DeletePayload is passed to EventDelete handlers.
type DeletePayload struct {
	Schema    *SchemaCore
	Condition *Condition
	Deleted   int64
}
