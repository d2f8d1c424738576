// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the Model, the repository-like entry point for one
// entity type: construction, finders, and upsert convenience. It is the
// surface consumed by seeders, factories, and application controllers.
package core

import "context"

// Model binds a Definition to a Connection.
//
// Every operation takes the bound connection; there is no global adapter
// to configure.
//
// Example:
//
//	users := core.NewModel(userDef, conn)
//	user, err := users.Create(ctx, core.Row{"name": "ada", "email": "ada@example.com"})
type Model struct {
	def  *Definition
	conn *Connection
}

// NewModel creates a model bound to a definition and a connection.
func NewModel(def *Definition, conn *Connection) *Model {
	return &Model{def: def.Init(), conn: conn}
}

// Definition returns the model's entity definition.
func (m *Model) Definition() *Definition { return m.def }

// New constructs an unsaved entity.
func (m *Model) New() *Entity {
	return NewEntity(m.def, m.conn)
}

// Query starts a fluent builder for the model's entity type.
func (m *Model) Query() *Builder {
	return NewBuilder(m.conn, m.def)
}

// Create fills a new entity under the guard policy and saves it.
func (m *Model) Create(ctx context.Context, attrs Row) (*Entity, error) {
	entity := m.New()
	if err := entity.Fill(attrs); err != nil {
		return nil, err
	}
	if err := entity.Save(ctx); err != nil {
		return nil, err
	}
	return entity, nil
}

// Find returns the entity with the given primary key, or nil.
func (m *Model) Find(ctx context.Context, key any) (*Entity, error) {
	return m.Query().Find(ctx, key)
}

// FindOrFail returns the entity with the given key or a NotFoundError.
func (m *Model) FindOrFail(ctx context.Context, key any) (*Entity, error) {
	return m.Query().FindOrFail(ctx, key)
}

// All returns every entity of the type (global scopes still apply).
func (m *Model) All(ctx context.Context) ([]*Entity, error) {
	return m.Query().Get(ctx)
}

// FirstOrCreate returns the first entity matching attrs, creating it from
// attrs merged with extra when none exists.
func (m *Model) FirstOrCreate(ctx context.Context, attrs Row, extra ...Row) (*Entity, error) {
	builder := m.Query()
	for key, value := range attrs {
		builder.Where(C(key).Eq(value))
	}
	found, err := builder.First(ctx)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}
	merged := make(Row, len(attrs))
	for key, value := range attrs {
		merged[key] = value
	}
	for _, more := range extra {
		for key, value := range more {
			merged[key] = value
		}
	}
	return m.Create(ctx, merged)
}

// UpdateOrCreate updates the first entity matching attrs with values, or
// creates one from both maps when none exists.
func (m *Model) UpdateOrCreate(ctx context.Context, attrs Row, values Row) (*Entity, error) {
	builder := m.Query()
	for key, value := range attrs {
		builder.Where(C(key).Eq(value))
	}
	found, err := builder.First(ctx)
	if err != nil {
		return nil, err
	}
	if found != nil {
		if err := found.Fill(values); err != nil {
			return nil, err
		}
		if err := found.Save(ctx); err != nil {
			return nil, err
		}
		return found, nil
	}
	merged := make(Row, len(attrs)+len(values))
	for key, value := range attrs {
		merged[key] = value
	}
	for key, value := range values {
		merged[key] = value
	}
	return m.Create(ctx, merged)
}

// Upsert delegates to the driver's native upsert: insert values, or update
// the existing row sharing the conflict keys.
func (m *Model) Upsert(ctx context.Context, values Row, conflictKeys []string) error {
	driver, err := m.conn.Driver()
	if err != nil {
		return err
	}
	return dispatchOperation(ctx, OperationInsert, values, func() error {
		return driver.Upsert(ctx, m.def.target(), values, conflictKeys)
	})
}

// InsertMany bulk-inserts raw rows, bypassing entity hooks. Intended for
// seeding and import paths.
func (m *Model) InsertMany(ctx context.Context, rows []Row) error {
	driver, err := m.conn.Driver()
	if err != nil {
		return err
	}
	return dispatchOperation(ctx, OperationInsert, rows, func() error {
		return driver.InsertMany(ctx, m.def.target(), rows)
	})
}

// Raw is the deliberate passthrough for backend-native statements.
func (m *Model) Raw(ctx context.Context, query string, args ...any) ([]Row, error) {
	driver, err := m.conn.Driver()
	if err != nil {
		return nil, err
	}
	return driver.Raw(ctx, query, args...)
}
