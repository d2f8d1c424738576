// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the Entity: an attribute map wrapped with guard rules,
// accessor/mutator interception, casting, dirty tracking, and the save
// state machine.
package core

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Entity wraps a row of attributes for one entity type.
//
// Attributes always hold the storage-side representation (casts are applied
// on write); GetAttribute applies the read-side transforms on demand.
// The original snapshot is taken after load and after every successful
// save, and dirty state is always recomputed from it, never cached.
type Entity struct {
	def  *Definition
	conn *Connection

	attributes Row
	original   Row
	relations  map[string]any

	exists             bool
	wasRecentlyCreated bool
}

// NewEntity creates an empty, unsaved entity bound to a definition and a
// connection. Binding the connection at construction replaces any hidden
// process-wide adapter state.
func NewEntity(def *Definition, conn *Connection) *Entity {
	def.Init()
	return &Entity{
		def:        def,
		conn:       conn,
		attributes: make(Row),
		original:   make(Row),
		relations:  make(map[string]any),
	}
}

// newEntityFromRow hydrates a loaded row into an entity with exists=true
// and the original snapshot primed.
func newEntityFromRow(def *Definition, conn *Connection, row Row) *Entity {
	e := NewEntity(def, conn)
	for key, value := range row {
		e.attributes[key] = value
	}
	e.syncOriginal()
	e.exists = true
	_ = def.hooks.run(StageRetrieved, e)
	return e
}

// Definition returns the entity's type configuration.
func (e *Entity) Definition() *Definition { return e.def }

// Connection returns the connection the entity is bound to.
func (e *Entity) Connection() *Connection { return e.conn }

// Exists reports whether the entity is backed by a stored row.
func (e *Entity) Exists() bool { return e.exists }

// WasRecentlyCreated reports whether the last Save inserted the row.
func (e *Entity) WasRecentlyCreated() bool { return e.wasRecentlyCreated }

// Key returns the raw primary key value, or nil when unset.
func (e *Entity) Key() any { return e.attributes[e.def.PrimaryKey] }

// NormalizedKey returns the canonical matching key for this entity.
func (e *Entity) NormalizedKey() string { return NormalizeKey(e.Key()) }

//region attribute access

// SetAttribute writes one attribute, applying the mutator hook (if any)
// and then the write-side cast for the attribute's declared type.
func (e *Entity) SetAttribute(key string, value any) error {
	if mutator, ok := e.def.mutators[key]; ok {
		value = mutator(value)
	}
	if castType, ok := e.def.Casts[key]; ok {
		cast, err := castWrite(castType, value)
		if err != nil {
			return err
		}
		value = cast
	}
	e.attributes[key] = value
	return nil
}

// GetAttribute reads one attribute.
//
// Resolution order: a loaded relation under key short-circuits; otherwise
// the stored value passes through the accessor hook and then the read-side
// cast for the attribute's declared type.
func (e *Entity) GetAttribute(key string) (any, error) {
	if related, ok := e.relations[key]; ok {
		return related, nil
	}
	value := e.attributes[key]
	if accessor, ok := e.def.accessors[key]; ok {
		value = accessor(value)
	}
	if castType, ok := e.def.Casts[key]; ok {
		return castRead(castType, value)
	}
	return value, nil
}

// RawAttribute returns the stored (storage-side) value without accessor or
// cast interception.
func (e *Entity) RawAttribute(key string) any { return e.attributes[key] }

// Fill mass-assigns attributes under the fillable/guarded policy.
// Violating keys are silently skipped; that is the protection, not an
// error. Use StrictFill to be told about them.
func (e *Entity) Fill(attrs Row) error {
	for key, value := range attrs {
		if !e.def.fillableKey(key) {
			continue
		}
		if err := e.SetAttribute(key, value); err != nil {
			return err
		}
	}
	return nil
}

// StrictFill mass-assigns like Fill but raises a MassAssignmentError
// enumerating every guarded key instead of dropping them.
func (e *Entity) StrictFill(attrs Row) error {
	var rejected []string
	for key := range attrs {
		if !e.def.fillableKey(key) {
			rejected = append(rejected, key)
		}
	}
	if len(rejected) > 0 {
		return &MassAssignmentError{Entity: e.def.Table, Keys: rejected}
	}
	return e.Fill(attrs)
}

//endregion

//region dirty tracking

// GetDirty returns every attribute whose current value differs from the
// original snapshot. Recomputed on every call.
func (e *Entity) GetDirty() Changes {
	dirty := make(Changes)
	for key, value := range e.attributes {
		originalValue, had := e.original[key]
		if !had || !attributeEqual(value, originalValue) {
			dirty[key] = value
		}
	}
	return dirty
}

// IsDirty reports whether any attribute differs from the snapshot. With
// keys given, only those attributes are considered.
func (e *Entity) IsDirty(keys ...string) bool {
	dirty := e.GetDirty()
	if len(keys) == 0 {
		return len(dirty) > 0
	}
	for _, key := range keys {
		if _, ok := dirty[key]; ok {
			return true
		}
	}
	return false
}

// syncOriginal re-snapshots the baseline after load or save.
func (e *Entity) syncOriginal() {
	e.original = make(Row, len(e.attributes))
	for key, value := range e.attributes {
		e.original[key] = value
	}
}

func attributeEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return reflect.DeepEqual(a, b)
}

//endregion

//region relations

// SetRelation stores a resolved relation value under name.
func (e *Entity) SetRelation(name string, value any) {
	e.relations[name] = value
}

// Relation returns the loaded relation under name and whether it was loaded.
func (e *Entity) Relation(name string) (any, bool) {
	value, ok := e.relations[name]
	return value, ok
}

// RelationLoaded reports whether the named relation has been resolved.
func (e *Entity) RelationLoaded(name string) bool {
	_, ok := e.relations[name]
	return ok
}

// Load lazily resolves the named relations onto this entity, in order.
func (e *Entity) Load(ctx context.Context, names ...string) error {
	for _, name := range names {
		relation := e.def.RelationNamed(name)
		if relation == nil {
			return configErrorf("entity %q has no relation %q", e.def.Table, name)
		}
		if err := lazyLoad(ctx, e.conn, relation, e, name); err != nil {
			return err
		}
	}
	return nil
}

//endregion

//region save state machine

// Save persists the entity: insert when it does not exist yet, otherwise
// an update restricted to the dirty attribute set.
//
// Hook order: saving -> creating|updating -> timestamps -> execute ->
// created|updated -> saved. Any hook abort cancels the operation before
// any I/O and leaves prior state untouched. On success the original
// snapshot is refreshed and touch propagation runs.
func (e *Entity) Save(ctx context.Context) error {
	e.def.boot()

	if err := e.def.hooks.run(StageSaving, e); err != nil {
		return err
	}

	if e.exists {
		if err := e.performUpdate(ctx); err != nil {
			return err
		}
	} else {
		if err := e.performInsert(ctx); err != nil {
			return err
		}
	}

	e.syncOriginal()
	if err := e.def.hooks.run(StageSaved, e); err != nil {
		return err
	}
	return e.touchOwners(ctx)
}

func (e *Entity) performInsert(ctx context.Context) error {
	if err := e.def.hooks.run(StageCreating, e); err != nil {
		return err
	}
	if e.def.UUIDKeys && e.attributes[e.def.PrimaryKey] == nil {
		e.attributes[e.def.PrimaryKey] = uuid.NewString()
	}
	now := time.Now().UTC()
	if e.def.Timestamps {
		e.attributes[e.def.CreatedAtColumn] = now
		e.attributes[e.def.UpdatedAtColumn] = now
	}

	driver, err := e.conn.Driver()
	if err != nil {
		return err
	}
	payload := make(Row, len(e.attributes))
	for key, value := range e.attributes {
		payload[key] = value
	}
	err = dispatchOperation(ctx, OperationInsert, payload, func() error {
		generated, insertErr := driver.Insert(ctx, e.def.target(), payload)
		if insertErr != nil {
			return insertErr
		}
		if generated != nil {
			e.attributes[e.def.PrimaryKey] = generated
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.exists = true
	e.wasRecentlyCreated = true
	return e.def.hooks.run(StageCreated, e)
}

func (e *Entity) performUpdate(ctx context.Context) error {
	if err := e.def.hooks.run(StageUpdating, e); err != nil {
		return err
	}
	if e.def.Timestamps && e.IsDirty() {
		e.attributes[e.def.UpdatedAtColumn] = time.Now().UTC()
	}
	dirty := e.GetDirty()
	if len(dirty) == 0 {
		return e.def.hooks.run(StageUpdated, e)
	}

	driver, err := e.conn.Driver()
	if err != nil {
		return err
	}
	condition := C(e.def.PrimaryKey).Eq(e.Key())
	err = dispatchOperation(ctx, OperationUpdate, dirty, func() error {
		_, updateErr := driver.Update(ctx, e.def.target(), condition, dirty)
		return updateErr
	})
	if err != nil {
		return err
	}
	return e.def.hooks.run(StageUpdated, e)
}

// touchOwners bumps updated_at on every owner named by TouchList.
func (e *Entity) touchOwners(ctx context.Context) error {
	for _, name := range e.def.TouchList {
		relation := e.def.RelationNamed(name)
		owner, ok := relation.(*BelongsTo)
		if !ok || owner == nil {
			continue
		}
		foreignValue := e.attributes[owner.ForeignKey]
		if foreignValue == nil {
			continue
		}
		related := owner.relatedDefinition()
		if !related.Timestamps {
			continue
		}
		driver, err := e.conn.Driver()
		if err != nil {
			return err
		}
		changes := Changes{related.UpdatedAtColumn: time.Now().UTC()}
		if _, err := driver.Update(ctx, related.target(), C(owner.ownerKey()).Eq(foreignValue), changes); err != nil {
			return err
		}
	}
	return nil
}

// Touch bumps the entity's own updated_at and saves.
func (e *Entity) Touch(ctx context.Context) error {
	if !e.def.Timestamps {
		return nil
	}
	e.attributes[e.def.UpdatedAtColumn] = time.Now().UTC()
	return e.Save(ctx)
}

//endregion

//region delete / restore

// Delete removes the entity: logically when soft deletes are enabled for
// its type (the deleted-at attribute is set and the row retained),
// physically otherwise.
func (e *Entity) Delete(ctx context.Context) error {
	if !e.exists {
		return nil
	}
	if err := e.def.hooks.run(StageDeleting, e); err != nil {
		return err
	}

	if e.def.SoftDeletes {
		now := time.Now().UTC()
		e.attributes[e.def.DeletedAtColumn] = now
		changes := Changes{e.def.DeletedAtColumn: now}
		if e.def.Timestamps {
			e.attributes[e.def.UpdatedAtColumn] = now
			changes[e.def.UpdatedAtColumn] = now
		}
		driver, err := e.conn.Driver()
		if err != nil {
			return err
		}
		err = dispatchOperation(ctx, OperationUpdate, changes, func() error {
			_, updateErr := driver.Update(ctx, e.def.target(), C(e.def.PrimaryKey).Eq(e.Key()), changes)
			return updateErr
		})
		if err != nil {
			return err
		}
		e.syncOriginal()
		return e.def.hooks.run(StageDeleted, e)
	}

	return e.performHardDelete(ctx)
}

// ForceDelete always removes the row physically, regardless of the
// soft-delete configuration.
func (e *Entity) ForceDelete(ctx context.Context) error {
	if !e.exists {
		return nil
	}
	if err := e.def.hooks.run(StageDeleting, e); err != nil {
		return err
	}
	return e.performHardDelete(ctx)
}

func (e *Entity) performHardDelete(ctx context.Context) error {
	driver, err := e.conn.Driver()
	if err != nil {
		return err
	}
	condition := C(e.def.PrimaryKey).Eq(e.Key())
	err = dispatchOperation(ctx, OperationDelete, condition, func() error {
		_, deleteErr := driver.Delete(ctx, e.def.target(), condition)
		return deleteErr
	})
	if err != nil {
		return err
	}
	e.exists = false
	return e.def.hooks.run(StageDeleted, e)
}

// Restore clears the deleted-at attribute of a soft-deleted entity.
func (e *Entity) Restore(ctx context.Context) error {
	if !e.def.SoftDeletes {
		return configErrorf("entity %q does not use soft deletes", e.def.Table)
	}
	if err := e.def.hooks.run(StageRestoring, e); err != nil {
		return err
	}
	e.attributes[e.def.DeletedAtColumn] = nil
	driver, err := e.conn.Driver()
	if err != nil {
		return err
	}
	changes := Changes{e.def.DeletedAtColumn: nil}
	if _, err := driver.Update(ctx, e.def.target(), C(e.def.PrimaryKey).Eq(e.Key()), changes); err != nil {
		return err
	}
	e.syncOriginal()
	return e.def.hooks.run(StageRestored, e)
}

// Trashed reports whether the entity carries a deleted-at mark.
func (e *Entity) Trashed() bool {
	if !e.def.SoftDeletes {
		return false
	}
	return e.attributes[e.def.DeletedAtColumn] != nil
}

//endregion

//region serialization and extensions

// ToMap renders the application-visible attribute map, honoring the
// hidden/visible lists and applying read-side transforms.
func (e *Entity) ToMap() (Row, error) {
	out := make(Row, len(e.attributes))
	for key := range e.attributes {
		if !e.serializable(key) {
			continue
		}
		value, err := e.GetAttribute(key)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func (e *Entity) serializable(key string) bool {
	if len(e.def.Visible) > 0 {
		for _, visible := range e.def.Visible {
			if visible == key {
				return true
			}
		}
		return false
	}
	for _, hidden := range e.def.Hidden {
		if hidden == key {
			return false
		}
	}
	return true
}

// Call invokes a registered entity extension by name.
func (e *Entity) Call(name string, args ...any) (any, error) {
	fn := lookupEntityExtension(name)
	if fn == nil {
		return nil, configErrorf("no entity extension registered as %q", name)
	}
	return fn(e, args...), nil
}

// Fresh reloads the entity's attributes from storage by primary key.
func (e *Entity) Fresh(ctx context.Context) (*Entity, error) {
	if !e.exists {
		return nil, configErrorf("cannot refresh an unsaved entity")
	}
	return NewBuilder(e.conn, e.def).WithTrashed().Find(ctx, e.Key())
}

//endregion
