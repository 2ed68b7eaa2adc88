// Package core provides the fundamental building blocks of the patchwork ORM.
// It defines abstractions for schemas, update compilation, models and drivers.
package core

import "context"

// Transaction defines the contract for database transaction management.
//
// Implementations must provide atomic commit and rollback semantics.
type Transaction interface {
	// Commit finalizes the transaction and makes all changes permanent.
	Commit(ctx context.Context) error
	// Rollback reverts the transaction, discarding all changes.
	Rollback(ctx context.Context) error
}

// Driver defines the contract for document stores supported by the ORM.
//
// Each driver (e.g., PostgresDriver, MongoDriver) must implement this interface
// to apply update operation sets, insert, delete and count entities, and
// manage transactions and connectivity. The schema passed to every call is
// already routed: Database and Collection are resolved.
type Driver interface {
	// Connect establishes a new connection or validates connectivity.
	Connect(ctx context.Context) error
	// Ping checks if the underlying database is reachable.
	Ping(ctx context.Context) error
	// Close terminates the connection and releases resources.
	Close(ctx context.Context) error

	// Transaction starts a new database transaction.
	Transaction(ctx context.Context) (Transaction, error)

	// Insert persists one or more entities in the database.
	Insert(ctx context.Context, schema *SchemaCore, documents ...any) error
	// Update applies an operation set to the entities matching the condition,
	// all of them when multi is set, at most one otherwise. Duplicate paths
	// resolve last-write-wins. It returns the number of modified entities.
	Update(ctx context.Context, schema *SchemaCore, condition *Condition, operations UpdateOperationSet, multi bool) (int64, error)
	// Delete removes the entities matching the condition and returns how many.
	Delete(ctx context.Context, schema *SchemaCore, condition *Condition) (int64, error)
	// Count returns the number of entities matching the condition.
	Count(ctx context.Context, schema *SchemaCore, condition *Condition) (int64, error)
}
