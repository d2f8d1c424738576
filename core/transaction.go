// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the context plumbing that lets every operation detect
// and reuse an in-flight transaction.
package core

import "context"

// transactionKey is an unexported type used as the key for storing a
// Transaction in a context.Context. Using a private type prevents
// collisions with other context values.
type transactionKey struct{}

// WithTransaction injects a Transaction into the given context.
//
// Drivers inspect the context on every operation and route through the
// transaction's dedicated handle instead of the shared pool.
//
// Example:
//
//	tx, _ := conn.Begin(ctx)
//	txCtx := core.WithTransaction(ctx, tx)
//	_ = user.Save(txCtx)
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx)
}

// TransactionFrom extracts a Transaction from the given context, if any.
//
// Returns nil if the context does not contain a transaction.
func TransactionFrom(ctx context.Context) Transaction {
	if v, ok := ctx.Value(transactionKey{}).(Transaction); ok {
		return v
	}
	return nil
}
