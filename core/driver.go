// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the Driver contract implemented by every backend, and
// the Row/Changes value types drivers exchange with the engine.
package core

import "context"

// Row is a normalized result row: plain attribute values keyed by column
// name. Every driver guarantees the logical identifier field ("id") is
// present when the backend produced one, alongside the backend-native
// identifier where the two differ (the document driver also keeps "_id").
// Entities and relation matching therefore never need backend-specific
// knowledge.
type Row = map[string]any

// Changes represents a partial update: column name to new value.
type Changes map[string]any

// IDField is the engine's logical identifier column. Drivers map it to the
// backend-native identifier representation in both directions.
const IDField = "id"

// Transaction represents an in-flight backend transaction.
//
// A transaction owns a dedicated connection (or session) for its entire
// duration; Commit and Rollback release it.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Collection names a storage target for write operations that do not flow
// through a full Description (inserts, targeted updates, pivot mutations).
type Collection struct {
	Database string
	Name     string
}

// Driver is the contract every backend adapter implements.
//
// A driver compiles a Description (or a bare Condition for writes) into a
// backend-native request, executes it through its pooled handle, and
// normalizes results into Rows. Operations observe a Transaction placed in
// the context via WithTransaction and route through it instead of the pool.
type Driver interface {
	// Connect establishes (or verifies) the pooled handle.
	Connect(ctx context.Context) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the pooled handle.
	Close(ctx context.Context) error

	// Begin starts a transaction on a dedicated connection.
	Begin(ctx context.Context) (Transaction, error)

	// Select executes a read described by desc and returns normalized rows.
	Select(ctx context.Context, desc *Description) ([]Row, error)
	// Aggregate executes a scalar aggregate over desc.
	Aggregate(ctx context.Context, desc *Description, agg Aggregate) (any, error)

	// Insert stores one row and returns the generated identifier, already
	// normalized to the logical representation (nil when the backend
	// generates none, e.g. explicit keys).
	Insert(ctx context.Context, target Collection, values Row) (any, error)
	// InsertMany stores several rows in one round trip where the backend
	// allows it.
	InsertMany(ctx context.Context, target Collection, values []Row) error
	// Update applies changes to every row matching condition and returns
	// the affected count.
	Update(ctx context.Context, target Collection, condition *Condition, changes Changes) (int64, error)
	// Delete removes every row matching condition and returns the
	// affected count.
	Delete(ctx context.Context, target Collection, condition *Condition) (int64, error)
	// Upsert inserts values or, when a row with the same conflict keys
	// exists, updates it in place. Backends with native upsert support
	// implement this atomically.
	Upsert(ctx context.Context, target Collection, values Row, conflictKeys []string) error

	// Raw is the deliberate escape hatch: a backend-native statement with
	// bind parameters, returning whatever rows the backend produces.
	Raw(ctx context.Context, query string, args ...any) ([]Row, error)
}
