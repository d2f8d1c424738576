// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the fluent query Builder. The builder accumulates
// clause AST nodes and owns no execution logic beyond handing a frozen
// Description to its connection's driver.
package core

import "context"

// clauseEntry pairs a condition with its boolean connector so clause
// application order survives into the compiled output.
type clauseEntry struct {
	condition *Condition
	or        bool
}

// Builder accumulates query clauses through a chainable API.
//
// Every clause-adding call appends to internal lists and returns the same
// builder; none validate backend-specific legality (that is the driver's
// job). Snapshot freezes the current state into an immutable Description.
//
// Example:
//
//	users, err := core.NewBuilder(conn, userDef).
//		Where(core.C("status").Eq("active")).
//		OrderBy("created_at", -1).
//		Limit(10).
//		Get(ctx)
type Builder struct {
	conn *Connection
	def  *Definition

	table    string
	database string

	columns  []string
	distinct bool

	clauses []clauseEntry
	joins   []Join
	groupBy []string
	having  []clauseEntry
	sort    []Sort

	limit  int
	offset int

	lock       LockMode
	skipLocked bool
	noWait     bool

	eagerLoad     []string
	omittedScopes []string
	withTrashed   bool
	onlyTrashed   bool
}

// NewBuilder creates a builder bound to a definition and connection. The
// definition supplies the table, global scopes, soft-delete policy, and
// hydration target.
func NewBuilder(conn *Connection, def *Definition) *Builder {
	def.Init()
	return &Builder{conn: conn, def: def, table: def.Table, database: def.Database}
}

// NewTableBuilder creates a definition-less builder over a bare table.
// It returns rows instead of entities and cannot eager-load.
func NewTableBuilder(conn *Connection, table string) *Builder {
	return &Builder{conn: conn, table: table}
}

//region clause accumulation

// Select restricts the projected columns.
func (b *Builder) Select(columns ...string) *Builder {
	b.columns = append(b.columns, columns...)
	return b
}

// Distinct requests duplicate elimination.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// Where appends conditions joined to the previous clauses with AND.
func (b *Builder) Where(conditions ...*Condition) *Builder {
	for _, condition := range conditions {
		b.clauses = append(b.clauses, clauseEntry{condition: condition})
	}
	return b
}

// OrWhere appends a condition joined with OR. Clauses fold left in
// application order, so Where(A).OrWhere(B).Where(C) produces
// (A OR B) AND C, not A OR (B AND C). Group with Condition.And or
// Condition.Or when a different shape is needed.
func (b *Builder) OrWhere(condition *Condition) *Builder {
	b.clauses = append(b.clauses, clauseEntry{condition: condition, or: true})
	return b
}

// WhereIn is shorthand for Where(C(field).In(values...)).
func (b *Builder) WhereIn(field string, values ...any) *Builder {
	return b.Where(C(field).In(values...))
}

// WhereNotIn is shorthand for Where(C(field).NotIn(values...)).
func (b *Builder) WhereNotIn(field string, values ...any) *Builder {
	return b.Where(C(field).NotIn(values...))
}

// WhereNull asserts the field is null.
func (b *Builder) WhereNull(field string) *Builder {
	return b.Where(C(field).Nil())
}

// WhereNotNull asserts the field is present and non-null.
func (b *Builder) WhereNotNull(field string) *Builder {
	return b.Where(C(field).NotNil())
}

// WhereBetween asserts low <= field <= high.
func (b *Builder) WhereBetween(field string, low, high any) *Builder {
	return b.Where(C(field).Between(low, high))
}

// WhereLike asserts a LIKE pattern match.
func (b *Builder) WhereLike(field string, pattern any) *Builder {
	return b.Where(C(field).Like(pattern))
}

// WhereRaw appends a backend-native fragment with bind parameters.
// The fragment is compiled verbatim and never re-escaped.
func (b *Builder) WhereRaw(fragment string, args ...any) *Builder {
	return b.Where(RawCondition(fragment, args...))
}

// Join adds an inner join.
func (b *Builder) Join(table, localColumn, foreignColumn string) *Builder {
	b.joins = append(b.joins, Join{Kind: JoinInner, Table: table, LocalColumn: localColumn, ForeignColumn: foreignColumn})
	return b
}

// LeftJoin adds a left outer join.
func (b *Builder) LeftJoin(table, localColumn, foreignColumn string) *Builder {
	b.joins = append(b.joins, Join{Kind: JoinLeft, Table: table, LocalColumn: localColumn, ForeignColumn: foreignColumn})
	return b
}

// GroupBy adds grouping columns.
func (b *Builder) GroupBy(columns ...string) *Builder {
	b.groupBy = append(b.groupBy, columns...)
	return b
}

// Having appends a post-grouping predicate.
func (b *Builder) Having(condition *Condition) *Builder {
	b.having = append(b.having, clauseEntry{condition: condition})
	return b
}

// OrderBy appends a sort key. Order is 1 for ascending, -1 for descending.
func (b *Builder) OrderBy(field string, order int) *Builder {
	b.sort = append(b.sort, Sort{FieldName: field, Order: order})
	return b
}

// Limit caps the number of returned rows.
func (b *Builder) Limit(limit int) *Builder {
	b.limit = limit
	return b
}

// Offset skips the first offset rows.
func (b *Builder) Offset(offset int) *Builder {
	b.offset = offset
	return b
}

// LockForUpdate requests an exclusive row lock (SQL backends only).
func (b *Builder) LockForUpdate() *Builder {
	b.lock = LockForUpdate
	return b
}

// SharedLock requests a shared row lock (SQL backends only).
func (b *Builder) SharedLock() *Builder {
	b.lock = LockShared
	return b
}

// SkipLocked skips rows another transaction holds locked.
func (b *Builder) SkipLocked() *Builder {
	b.skipLocked = true
	return b
}

// NoWait fails immediately instead of waiting for a conflicting lock.
func (b *Builder) NoWait() *Builder {
	b.noWait = true
	return b
}

// With requests eager loading of the named relations, resolved in the
// order supplied.
//
// Requesting eager loads on a definition-less builder is a programmer
// error and panics immediately rather than failing at execution.
func (b *Builder) With(relations ...string) *Builder {
	if b.def == nil {
		panic(configErrorf("eager loading requires a builder bound to a definition"))
	}
	for _, name := range relations {
		if b.def.RelationNamed(name) == nil {
			panic(configErrorf("entity %q has no relation %q", b.def.Table, name))
		}
	}
	b.eagerLoad = append(b.eagerLoad, relations...)
	return b
}

// WithoutGlobalScope bypasses the named global scopes for this query.
func (b *Builder) WithoutGlobalScope(names ...string) *Builder {
	b.omittedScopes = append(b.omittedScopes, names...)
	return b
}

// WithTrashed includes soft-deleted rows.
func (b *Builder) WithTrashed() *Builder {
	b.withTrashed = true
	return b
}

// OnlyTrashed restricts results to soft-deleted rows.
func (b *Builder) OnlyTrashed() *Builder {
	b.onlyTrashed = true
	return b
}

// Apply invokes a registered builder extension by name.
func (b *Builder) Apply(name string, args ...any) *Builder {
	fn := lookupBuilderExtension(name)
	if fn == nil {
		panic(configErrorf("no builder extension registered as %q", name))
	}
	return fn(b, args...)
}

//endregion

//region snapshot and clone

// Clone performs a structural deep copy of the builder. Required before
// any derived query so the caller's builder is never mutated.
func (b *Builder) Clone() *Builder {
	copied := *b
	copied.columns = append([]string(nil), b.columns...)
	copied.clauses = make([]clauseEntry, len(b.clauses))
	for i, entry := range b.clauses {
		copied.clauses[i] = clauseEntry{condition: entry.condition.Clone(), or: entry.or}
	}
	copied.joins = append([]Join(nil), b.joins...)
	copied.groupBy = append([]string(nil), b.groupBy...)
	copied.having = make([]clauseEntry, len(b.having))
	for i, entry := range b.having {
		copied.having[i] = clauseEntry{condition: entry.condition.Clone(), or: entry.or}
	}
	copied.sort = append([]Sort(nil), b.sort...)
	copied.eagerLoad = append([]string(nil), b.eagerLoad...)
	copied.omittedScopes = append([]string(nil), b.omittedScopes...)
	return &copied
}

// foldClauses connects accumulated clauses in application order.
func foldClauses(entries []clauseEntry) *Condition {
	var acc *Condition
	for _, entry := range entries {
		if entry.condition == nil {
			continue
		}
		if acc == nil {
			acc = entry.condition
			continue
		}
		if entry.or {
			acc = acc.Or(entry.condition)
		} else {
			acc = acc.And(entry.condition)
		}
	}
	return acc
}

// Snapshot freezes the builder into an immutable Description: global
// scopes are applied (minus the bypassed ones), the soft-delete predicate
// is folded into the condition tree, and every mutable sub-structure is
// deep-copied.
func (b *Builder) Snapshot() *Description {
	effective := b
	if b.def != nil {
		b.def.boot()
		if len(b.def.scopes) > 0 {
			effective = b.Clone()
			for _, name := range b.def.scopeNames() {
				if effective.scopeOmitted(name) {
					continue
				}
				effective = b.def.scopes[name](effective)
			}
		}
	}

	condition := foldClauses(effective.clauses)
	condition = effective.applySoftDeleteScope(condition)

	desc := &Description{
		Collection:    effective.table,
		Database:      effective.database,
		Columns:       append([]string(nil), effective.columns...),
		Distinct:      effective.distinct,
		Condition:     condition,
		Joins:         append([]Join(nil), effective.joins...),
		GroupBy:       append([]string(nil), effective.groupBy...),
		Having:        foldClauses(effective.having),
		Sort:          append([]Sort(nil), effective.sort...),
		Limit:         effective.limit,
		Offset:        effective.offset,
		Lock:          effective.lock,
		SkipLocked:    effective.skipLocked,
		NoWait:        effective.noWait,
		EagerLoad:     append([]string(nil), effective.eagerLoad...),
		WithTrashed:   effective.withTrashed,
		OnlyTrashed:   effective.onlyTrashed,
		OmittedScopes: append([]string(nil), effective.omittedScopes...),
	}
	return desc.Clone()
}

func (b *Builder) scopeOmitted(name string) bool {
	for _, omitted := range b.omittedScopes {
		if omitted == name {
			return true
		}
	}
	return false
}

// applySoftDeleteScope folds the deleted-at predicate into the condition
// tree according to the trashed flags.
func (b *Builder) applySoftDeleteScope(condition *Condition) *Condition {
	if b.def == nil || !b.def.SoftDeletes {
		return condition
	}
	column := b.def.DeletedAtColumn
	if b.onlyTrashed {
		return foldConditionsAnd(condition, C(column).NotNil())
	}
	if !b.withTrashed {
		return foldConditionsAnd(condition, C(column).Nil())
	}
	return condition
}

//endregion

//region execution

// Rows executes the query and returns normalized rows without hydration.
func (b *Builder) Rows(ctx context.Context) ([]Row, error) {
	driver, err := b.conn.Driver()
	if err != nil {
		return nil, err
	}
	desc := b.Snapshot()
	var rows []Row
	err = dispatchOperation(ctx, OperationFind, desc, func() error {
		var selectErr error
		rows, selectErr = driver.Select(ctx, desc)
		return selectErr
	})
	return rows, err
}

// Get executes the query, hydrates the results into entities, and
// resolves any eager-loaded relations, each as one batched query,
// sequentially in the order supplied.
func (b *Builder) Get(ctx context.Context) ([]*Entity, error) {
	if b.def == nil {
		return nil, configErrorf("Get requires a builder bound to a definition; use Rows for table queries")
	}
	rows, err := b.Rows(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]*Entity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, newEntityFromRow(b.def, b.conn, row))
	}
	if len(entities) > 0 {
		for _, name := range b.eagerLoad {
			relation := b.def.RelationNamed(name)
			if err := eagerLoad(ctx, b.conn, relation, entities, name); err != nil {
				return nil, err
			}
		}
	}
	return entities, nil
}

// First returns the first matching entity, or nil when none match.
func (b *Builder) First(ctx context.Context) (*Entity, error) {
	results, err := b.Clone().Limit(1).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// FirstOrFail returns the first matching entity or a NotFoundError.
func (b *Builder) FirstOrFail(ctx context.Context) (*Entity, error) {
	entity, err := b.First(ctx)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, &NotFoundError{Entity: b.table}
	}
	return entity, nil
}

// Find returns the entity with the given primary key, or nil.
func (b *Builder) Find(ctx context.Context, key any) (*Entity, error) {
	return b.Clone().Where(C(b.def.PrimaryKey).Eq(key)).First(ctx)
}

// FindOrFail returns the entity with the given key or a NotFoundError
// carrying the entity type and the requested key.
func (b *Builder) FindOrFail(ctx context.Context, key any) (*Entity, error) {
	entity, err := b.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, &NotFoundError{Entity: b.table, Keys: []any{key}}
	}
	return entity, nil
}

// Pluck returns the values of one column across all matching rows.
func (b *Builder) Pluck(ctx context.Context, column string) ([]any, error) {
	rows, err := b.Clone().Select(column).Rows(ctx)
	if err != nil {
		return nil, err
	}
	values := make([]any, 0, len(rows))
	for _, row := range rows {
		values = append(values, row[column])
	}
	return values, nil
}

// Chunk pages through all matching entities size rows at a time, invoking
// fn for each page. Iteration stops on the first error or when fn returns
// false. A primary-key sort is imposed when the caller supplied none, so
// page boundaries are stable.
func (b *Builder) Chunk(ctx context.Context, size int, fn func(entities []*Entity) (bool, error)) error {
	if size <= 0 {
		return configErrorf("chunk size must be positive, got %d", size)
	}
	page := b.Clone()
	if len(page.sort) == 0 && page.def != nil {
		page.OrderBy(page.def.PrimaryKey, 1)
	}
	for offset := 0; ; offset += size {
		entities, err := page.Clone().Limit(size).Offset(offset).Get(ctx)
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			return nil
		}
		keepGoing, err := fn(entities)
		if err != nil {
			return err
		}
		if !keepGoing || len(entities) < size {
			return nil
		}
	}
}

// Page holds one page of a simplified pagination request.
type Page struct {
	Entities []*Entity
	Total    int64
	PerPage  int
	Current  int
}

// Paginate runs a count query plus a bounded select, both on clones of the
// builder.
func (b *Builder) Paginate(ctx context.Context, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	total, err := b.Count(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := b.Clone().Limit(perPage).Offset((page - 1) * perPage).Get(ctx)
	if err != nil {
		return nil, err
	}
	return &Page{Entities: entities, Total: total, PerPage: perPage, Current: page}, nil
}

//endregion

//region aggregates

// aggregate executes a scalar aggregate over a clone of the builder with
// ordering and pagination stripped; the original builder is untouched.
func (b *Builder) aggregate(ctx context.Context, kind AggregateKind, column string) (any, error) {
	driver, err := b.conn.Driver()
	if err != nil {
		return nil, err
	}
	derived := b.Clone()
	derived.sort = nil
	derived.limit = 0
	derived.offset = 0
	desc := derived.Snapshot()
	var result any
	err = dispatchOperation(ctx, OperationFind, desc, func() error {
		var aggErr error
		result, aggErr = driver.Aggregate(ctx, desc, Aggregate{Kind: kind, Column: column})
		return aggErr
	})
	return result, err
}

// Count returns the number of matching rows.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	result, err := b.aggregate(ctx, AggregateCount, "*")
	if err != nil {
		return 0, err
	}
	return toInt64(result)
}

// Sum returns the sum of column across matching rows.
func (b *Builder) Sum(ctx context.Context, column string) (float64, error) {
	result, err := b.aggregate(ctx, AggregateSum, column)
	if err != nil || result == nil {
		return 0, err
	}
	return toFloat64(result)
}

// Avg returns the average of column across matching rows.
func (b *Builder) Avg(ctx context.Context, column string) (float64, error) {
	result, err := b.aggregate(ctx, AggregateAvg, column)
	if err != nil || result == nil {
		return 0, err
	}
	return toFloat64(result)
}

// Min returns the minimum of column across matching rows.
func (b *Builder) Min(ctx context.Context, column string) (any, error) {
	return b.aggregate(ctx, AggregateMin, column)
}

// Max returns the maximum of column across matching rows.
func (b *Builder) Max(ctx context.Context, column string) (any, error) {
	return b.aggregate(ctx, AggregateMax, column)
}

//endregion

//region bulk writes

// UpdateAll applies changes to every row matching the builder's clauses.
func (b *Builder) UpdateAll(ctx context.Context, changes Changes) (int64, error) {
	driver, err := b.conn.Driver()
	if err != nil {
		return 0, err
	}
	desc := b.Snapshot()
	var affected int64
	err = dispatchOperation(ctx, OperationUpdate, changes, func() error {
		var updateErr error
		affected, updateErr = driver.Update(ctx, Collection{Database: desc.Database, Name: desc.Collection}, desc.Condition, changes)
		return updateErr
	})
	return affected, err
}

// DeleteAll removes every row matching the builder's clauses. Soft-delete
// definitions receive a deleted-at update instead; use ForceDeleteAll for
// a physical bulk delete.
func (b *Builder) DeleteAll(ctx context.Context) (int64, error) {
	if b.def != nil && b.def.SoftDeletes {
		return b.UpdateAll(ctx, Changes{b.def.DeletedAtColumn: timeNow()})
	}
	return b.ForceDeleteAll(ctx)
}

// ForceDeleteAll physically removes every matching row.
func (b *Builder) ForceDeleteAll(ctx context.Context) (int64, error) {
	driver, err := b.conn.Driver()
	if err != nil {
		return 0, err
	}
	desc := b.Snapshot()
	var affected int64
	err = dispatchOperation(ctx, OperationDelete, desc, func() error {
		var deleteErr error
		affected, deleteErr = driver.Delete(ctx, Collection{Database: desc.Database, Name: desc.Collection}, desc.Condition)
		return deleteErr
	})
	return affected, err
}

//endregion
