// Package driver provides the MongoDB document store client for the patchwork ORM.
// This file defines the mongoTransaction type, which adapts MongoDB sessions
// to the core.Transaction interface used by the ORM.
package driver

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// mongoTransaction wraps a MongoDB session and implements the core.Transaction interface.
//
// Commit and Rollback both end the session.
type mongoTransaction struct {
	session mongo.Session
	logger  *zap.Logger
}

// Commit finalizes the transaction and ends the session.
func (transaction *mongoTransaction) Commit(ctx context.Context) error {
	defer transaction.session.EndSession(ctx)
	if err := transaction.session.CommitTransaction(ctx); err != nil {
		transaction.logger.Warn("commit failed", zap.Error(err))
		return err
	}
	return nil
}

// Rollback aborts the transaction and ends the session.
func (transaction *mongoTransaction) Rollback(ctx context.Context) error {
	defer transaction.session.EndSession(ctx)
	return transaction.session.AbortTransaction(ctx)
}
