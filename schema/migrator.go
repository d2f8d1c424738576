// Package schema defines the DDL contract consumed by the migration runner.
// This file implements the Migrator: ordered migrations tracked in a
// bookkeeping table and replayed or rolled back in batch order.
package schema

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/anvilkit/anvil/core"
)

// MigrationsTable is the bookkeeping table holding (name, batch,
// migrated_at) per applied migration.
const MigrationsTable = "migrations"

// Migration pairs a unique name with its up and down steps. Steps receive
// the connection so they can mix DDL calls with data fixes.
type Migration struct {
	Name string
	Up   func(ctx context.Context, conn *core.Connection) error
	Down func(ctx context.Context, conn *core.Connection) error
}

// AppliedMigration is one bookkeeping row.
type AppliedMigration struct {
	Name       string
	Batch      int64
	MigratedAt time.Time
}

// Migrator replays registered migrations in order and rolls them back by
// batch. The bookkeeping reads and writes go through the generic driver
// contract, so the same runner works on every backend.
type Migrator struct {
	conn       *core.Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the given connection.
func NewMigrator(conn *core.Connection) *Migrator {
	return &Migrator{conn: conn}
}

// Register appends migrations in execution order. Names must be unique;
// registration order is replay order.
func (m *Migrator) Register(migrations ...Migration) *Migrator {
	m.migrations = append(m.migrations, migrations...)
	return m
}

// ensureTable creates the bookkeeping table on SQL backends; document
// stores create collections implicitly on first insert.
func (m *Migrator) ensureTable(ctx context.Context) error {
	driver, err := m.conn.Driver()
	if err != nil {
		return err
	}
	ddl, ok := driver.(DDL)
	if !ok {
		return nil
	}
	exists, err := ddl.HasTable(ctx, MigrationsTable)
	if err != nil || exists {
		return err
	}
	blueprint := NewBlueprint(MigrationsTable)
	blueprint.Increments("id")
	blueprint.String("name", 255).SetUnique()
	blueprint.BigInteger("batch")
	blueprint.Timestamp("migrated_at")
	return ddl.CreateTable(ctx, blueprint)
}

// Applied returns the bookkeeping rows sorted by batch then name.
func (m *Migrator) Applied(ctx context.Context) ([]AppliedMigration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := core.NewTableBuilder(m.conn, MigrationsTable).
		OrderBy("batch", 1).
		OrderBy("name", 1).
		Rows(ctx)
	if err != nil {
		return nil, err
	}
	applied := make([]AppliedMigration, 0, len(rows))
	for _, row := range rows {
		entry := AppliedMigration{}
		entry.Name, _ = row["name"].(string)
		switch batch := row["batch"].(type) {
		case int64:
			entry.Batch = batch
		case int32:
			entry.Batch = int64(batch)
		case int:
			entry.Batch = int64(batch)
		case float64:
			entry.Batch = int64(batch)
		}
		if at, ok := row["migrated_at"].(time.Time); ok {
			entry.MigratedAt = at
		}
		applied = append(applied, entry)
	}
	return applied, nil
}

// Up applies every registered migration not yet recorded, all under one
// new batch number n+1.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	appliedNames := make(map[string]struct{}, len(applied))
	var lastBatch int64
	for _, entry := range applied {
		appliedNames[entry.Name] = struct{}{}
		if entry.Batch > lastBatch {
			lastBatch = entry.Batch
		}
	}

	driver, err := m.conn.Driver()
	if err != nil {
		return nil, err
	}

	batch := lastBatch + 1
	var ran []string
	for _, migration := range m.migrations {
		if _, done := appliedNames[migration.Name]; done {
			continue
		}
		if err := migration.Up(ctx, m.conn); err != nil {
			return ran, fmt.Errorf("schema: migration %q up: %w", migration.Name, err)
		}
		record := core.Row{
			"name":        migration.Name,
			"batch":       batch,
			"migrated_at": time.Now().UTC(),
		}
		if _, err := driver.Insert(ctx, core.Collection{Name: MigrationsTable}, record); err != nil {
			return ran, fmt.Errorf("schema: record migration %q: %w", migration.Name, err)
		}
		ran = append(ran, migration.Name)
	}
	return ran, nil
}

// Down rolls back the most recent batches, one batch per step. steps <= 0
// rolls back a single batch.
func (m *Migrator) Down(ctx context.Context, steps int) ([]string, error) {
	if steps <= 0 {
		steps = 1
	}
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return nil, nil
	}

	batches := make([]int64, 0)
	seen := make(map[int64]struct{})
	for _, entry := range applied {
		if _, ok := seen[entry.Batch]; !ok {
			seen[entry.Batch] = struct{}{}
			batches = append(batches, entry.Batch)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i] > batches[j] })
	if steps > len(batches) {
		steps = len(batches)
	}
	rollback := make(map[int64]struct{}, steps)
	for _, batch := range batches[:steps] {
		rollback[batch] = struct{}{}
	}

	byName := make(map[string]Migration, len(m.migrations))
	for _, migration := range m.migrations {
		byName[migration.Name] = migration
	}

	driver, err := m.conn.Driver()
	if err != nil {
		return nil, err
	}

	// Roll back in reverse application order.
	var reverted []string
	for i := len(applied) - 1; i >= 0; i-- {
		entry := applied[i]
		if _, ok := rollback[entry.Batch]; !ok {
			continue
		}
		migration, known := byName[entry.Name]
		if !known {
			return reverted, fmt.Errorf("schema: applied migration %q is not registered", entry.Name)
		}
		if migration.Down != nil {
			if err := migration.Down(ctx, m.conn); err != nil {
				return reverted, fmt.Errorf("schema: migration %q down: %w", entry.Name, err)
			}
		}
		if _, err := driver.Delete(ctx, core.Collection{Name: MigrationsTable}, core.C("name").Eq(entry.Name)); err != nil {
			return reverted, fmt.Errorf("schema: unrecord migration %q: %w", entry.Name, err)
		}
		reverted = append(reverted, entry.Name)
	}
	return reverted, nil
}

// Status reports each registered migration with its applied batch, or 0
// when pending.
func (m *Migrator) Status(ctx context.Context) (map[string]int64, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	batchByName := make(map[string]int64, len(applied))
	for _, entry := range applied {
		batchByName[entry.Name] = entry.Batch
	}
	status := make(map[string]int64, len(m.migrations))
	for _, migration := range m.migrations {
		status[migration.Name] = batchByName[migration.Name]
	}
	return status, nil
}
