// Package schema defines the DDL contract consumed by the migration runner.
// This file declares the interface SQL drivers implement for structural
// changes and index introspection.
package schema

import "context"

// Index describes one index discovered by introspection of the dialect's
// metadata views.
type Index struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	Primary bool
}

// DDL is the structural-change contract. Both SQL drivers implement it by
// translating blueprints through their dialect type maps; the document
// driver implements the collection/index subset and returns configuration
// errors for the rest.
type DDL interface {
	CreateTable(ctx context.Context, blueprint *Blueprint) error
	DropTable(ctx context.Context, table string) error
	RenameTable(ctx context.Context, from, to string) error
	HasTable(ctx context.Context, table string) (bool, error)

	AddColumn(ctx context.Context, table string, column *Column) error
	DropColumn(ctx context.Context, table, column string) error

	CreateIndex(ctx context.Context, table, name string, columns []string, unique bool) error
	DropIndex(ctx context.Context, table, name string) error
	// ListIndexes introspects the dialect's metadata views.
	ListIndexes(ctx context.Context, table string) ([]Index, error)
}
