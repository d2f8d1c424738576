// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the Definition, the per-entity-type configuration that
// replaces per-instance reflection: table, key, guard lists, casts,
// lifecycle hooks, global scopes, and relation descriptors.
package core

import (
	"sort"
	"sync"
)

// Accessor intercepts attribute reads: it receives the raw (post-cast)
// value and returns the application-visible one.
type Accessor func(value any) any

// Mutator intercepts attribute writes: it receives the incoming value and
// returns the value to store (pre-cast).
type Mutator func(value any) any

// Scope is a named predicate automatically applied to every query for a
// definition unless explicitly bypassed with WithoutGlobalScope.
type Scope func(b *Builder) *Builder

// Definition describes one entity type.
//
// A definition is built once (typically at package init) and shared by
// every Entity of its type; it must not be mutated after first use.
//
// Example:
//
//	var userDef = (&core.Definition{
//		Table:    "users",
//		Fillable: []string{"name", "email", "password"},
//		Casts:    map[string]string{"password": core.CastHashed, "settings": core.CastJSON},
//	}).Init()
type Definition struct {
	// Table is the backing table/collection name.
	Table string
	// Database optionally overrides the connection's default database.
	Database string
	// PrimaryKey defaults to "id".
	PrimaryKey string
	// Connection names the managed connection this definition binds to;
	// empty means the manager's default.
	Connection string

	// UUIDKeys assigns a client-generated UUID primary key on insert
	// when the caller supplied none, instead of relying on a
	// backend-generated identifier.
	UUIDKeys bool

	// Fillable lists mass-assignable attributes. When non-empty, only
	// listed keys pass Fill.
	Fillable []string
	// Guarded lists attributes Fill must skip. The single entry "*"
	// guards everything. Ignored when Fillable is non-empty.
	Guarded []string

	// Hidden / Visible control ToMap serialization.
	Hidden  []string
	Visible []string

	// Casts maps attribute names to cast type names (see cast.go).
	Casts map[string]string

	// Timestamps enables created/updated stamping on save.
	Timestamps bool
	// CreatedAtColumn / UpdatedAtColumn default to created_at/updated_at.
	CreatedAtColumn string
	UpdatedAtColumn string

	// SoftDeletes enables logical deletion via DeletedAtColumn
	// (default deleted_at).
	SoftDeletes     bool
	DeletedAtColumn string

	// TouchList names BelongsTo relations whose owners get their
	// updated_at bumped whenever this entity saves.
	TouchList []string

	accessors map[string]Accessor
	mutators  map[string]Mutator
	hooks     hookSet
	scopes    map[string]Scope
	relations map[string]Relation

	booted   sync.Once
	bootFunc func(*Definition)
}

// Init normalizes defaults and returns the definition for chaining.
func (d *Definition) Init() *Definition {
	if d.PrimaryKey == "" {
		d.PrimaryKey = IDField
	}
	if d.CreatedAtColumn == "" {
		d.CreatedAtColumn = "created_at"
	}
	if d.UpdatedAtColumn == "" {
		d.UpdatedAtColumn = "updated_at"
	}
	if d.DeletedAtColumn == "" {
		d.DeletedAtColumn = "deleted_at"
	}
	if d.accessors == nil {
		d.accessors = make(map[string]Accessor)
	}
	if d.mutators == nil {
		d.mutators = make(map[string]Mutator)
	}
	if d.hooks == nil {
		d.hooks = make(hookSet)
	}
	if d.scopes == nil {
		d.scopes = make(map[string]Scope)
	}
	if d.relations == nil {
		d.relations = make(map[string]Relation)
	}
	return d
}

// OnBoot registers a function that runs exactly once, before the
// definition's first query, letting the type register its own scopes and
// observers.
func (d *Definition) OnBoot(fn func(*Definition)) *Definition {
	d.Init()
	d.bootFunc = fn
	return d
}

// boot runs the boot hook at most once, then fires the Booting/Booted
// lifecycle stages.
func (d *Definition) boot() {
	d.booted.Do(func() {
		d.Init()
		_ = d.hooks.run(StageBooting, nil)
		if d.bootFunc != nil {
			d.bootFunc(d)
		}
		_ = d.hooks.run(StageBooted, nil)
	})
}

// On registers a lifecycle listener for the given stage.
func (d *Definition) On(stage Stage, hook Hook) *Definition {
	d.Init()
	d.hooks[stage] = append(d.hooks[stage], hook)
	return d
}

// AddAccessor intercepts reads of the named attribute.
func (d *Definition) AddAccessor(attribute string, fn Accessor) *Definition {
	d.Init()
	d.accessors[attribute] = fn
	return d
}

// AddMutator intercepts writes of the named attribute.
func (d *Definition) AddMutator(attribute string, fn Mutator) *Definition {
	d.Init()
	d.mutators[attribute] = fn
	return d
}

// AddScope registers a named global scope.
func (d *Definition) AddScope(name string, scope Scope) *Definition {
	d.Init()
	d.scopes[name] = scope
	return d
}

// AddRelation registers a relation descriptor under the given name.
func (d *Definition) AddRelation(name string, relation Relation) *Definition {
	d.Init()
	d.relations[name] = relation
	return d
}

// RelationNamed returns the descriptor registered under name, or nil.
func (d *Definition) RelationNamed(name string) Relation {
	return d.relations[name]
}

// scopeNames returns the registered global scope names in stable order.
func (d *Definition) scopeNames() []string {
	names := make([]string, 0, len(d.scopes))
	for name := range d.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fillableKey reports whether the guard policy allows mass-assigning key.
func (d *Definition) fillableKey(key string) bool {
	if len(d.Fillable) > 0 {
		for _, allowed := range d.Fillable {
			if allowed == key {
				return true
			}
		}
		return false
	}
	for _, guarded := range d.Guarded {
		if guarded == "*" || guarded == key {
			return false
		}
	}
	return true
}

// target returns the write Collection for this definition.
func (d *Definition) target() Collection {
	return Collection{Database: d.Database, Name: d.Table}
}
