// Package core provides the fundamental building blocks of the patchwork ORM.
// This file scopes update operation sets to a store transaction carried in
// the context, so several sets either all apply or none do.
package core

import (
	"context"
	"errors"
)

// transactionKey is the context key of the active Transaction.
type transactionKey struct{}

// WithTransaction returns a context whose writes run inside tx.
//
// Drivers look the transaction up with TransactionFrom on every Insert,
// Update, Delete and Count, so a Model needs no transactional variant.
//
// Example:
//
//	tx, _ := driver.Transaction(ctx)
//	txCtx := core.WithTransaction(ctx, tx)
//	_, err := orderModel.Apply(txCtx, core.Where("_id").Eq(id), operations, false)
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx)
}

// TransactionFrom returns the transaction carried by ctx, or nil.
func TransactionFrom(ctx context.Context) Transaction {
	if tx, ok := ctx.Value(transactionKey{}).(Transaction); ok {
		return tx
	}
	return nil
}

// TransactionFunc is the unit of work run by RunTransaction.
type TransactionFunc func(txCtx context.Context) error

// RunTransaction runs fn inside a transaction of driver.
//
// The transaction commits when fn returns nil and rolls back when fn fails or
// panics; a failed rollback is joined to fn's error. When ctx already carries
// a transaction, fn joins it and the outermost call decides the outcome.
//
// Example:
//
//	err := core.RunTransaction(ctx, driver, func(txCtx context.Context) error {
//	    debit := core.UpdateOperationSet{core.Increment("balance", "-10.00")}
//	    if _, err := accountModel.Apply(txCtx, core.Where("_id").Eq(from), debit, false); err != nil {
//	        return err
//	    }
//	    credit := core.UpdateOperationSet{core.Increment("balance", "10.00")}
//	    _, err := accountModel.Apply(txCtx, core.Where("_id").Eq(to), credit, false)
//	    return err
//	})
func RunTransaction(ctx context.Context, driver Driver, fn TransactionFunc) error {
	if TransactionFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := driver.Transaction(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			_ = tx.Rollback(ctx)
			panic(recovered)
		}
	}()

	if err := fn(WithTransaction(ctx, tx)); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			return errors.Join(err, rollbackErr)
		}
		return err
	}
	return tx.Commit(ctx)
}
