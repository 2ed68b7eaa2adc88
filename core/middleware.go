// Package core provides the fundamental building blocks of the patchwork ORM.
// This file defines the middleware system, which allows cross-cutting concerns
// such as logging or auditing to be applied to ORM operations.
package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Operation represents the type of operation being executed by the ORM.
type Operation string

const (
	// OperationInsert corresponds to an insert (create) operation.
	OperationInsert Operation = "insert"
	// OperationUpdate corresponds to an update operation, patch or save.
	OperationUpdate Operation = "update"
	// OperationDelete corresponds to a delete operation.
	OperationDelete Operation = "delete"
	// OperationCount corresponds to a count operation.
	OperationCount Operation = "count"
)

// Handler is the function signature executed by the ORM pipeline.
//
// It receives a context, the operation type, and an arbitrary payload.
// Handlers are composed by middlewares to add cross-cutting logic.
type Handler func(ctx context.Context, op Operation, payload any) error

// Middleware is a function that wraps a Handler with additional logic.
//
// Middlewares are chained globally and executed for every operation.
// They follow the decorator pattern.
type Middleware func(next Handler) Handler

var (
	middlewareMutex      sync.RWMutex
	globalMiddlewareList []Middleware
)

// Use registers a new global middleware, applied to all operations.
//
// Middlewares are executed in reverse registration order: the most
// recently registered middleware is executed first.
func Use(mw Middleware) {
	middlewareMutex.Lock()
	defer middlewareMutex.Unlock()
	globalMiddlewareList = append(globalMiddlewareList, mw)
}

// runMiddlewares applies the chain of middlewares to the final handler.
func runMiddlewares(final Handler) Handler {
	middlewareMutex.RLock()
	defer middlewareMutex.RUnlock()
	h := final
	// Apply in reverse order (last registered runs first).
	for i := len(globalMiddlewareList) - 1; i >= 0; i-- {
		h = globalMiddlewareList[i](h)
	}
	return h
}

// dispatchOperation executes an operation through the global middleware chain.
//
// The exec function contains the core logic of the operation and is wrapped
// by the registered middlewares.
func dispatchOperation(ctx context.Context, op Operation, payload any, exec func() error) error {
	handler := runMiddlewares(func(ctx context.Context, op Operation, payload any) error {
		return exec()
	})
	return handler(ctx, op, payload)
}

// LoggingMiddleware logs every operation passing through the ORM with its
// duration, at debug level on success and at error level on failure.
//
// Example:
//
//	core.Use(core.LoggingMiddleware(logger))
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload any) error {
			start := time.Now()
			err := next(ctx, op, payload)
			fieldList := []zap.Field{
				zap.String("op", string(op)),
				zap.Duration("took", time.Since(start)),
			}
			if operations, ok := payload.(UpdateOperationSet); ok {
				fieldList = append(fieldList, zap.Stringers("operations", []UpdateOperation(operations)))
			}
			if err != nil {
				logger.Error("operation failed", append(fieldList, zap.Error(err))...)
				return err
			}
			logger.Debug("operation done", fieldList...)
			return nil
		}
	}
}
