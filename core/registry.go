// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the entity-type registry: the explicit map from a
// polymorphic discriminator value to its Definition, and the extension
// tables that replace prototype-style macro mutation.
package core

import "sync"

// typeRegistry maps discriminator values (the strings stored in morph type
// columns) to entity definitions. Resolution is an explicit lookup: an
// unregistered discriminator resolves to nil and the relation engine
// yields no data for those owners, since partial polymorphic data is a
// normal runtime state (legacy rows keep working).
type typeRegistry struct {
	mutex       sync.RWMutex
	definitions map[string]*Definition
}

var globalTypes = &typeRegistry{definitions: make(map[string]*Definition)}

// RegisterType binds a polymorphic discriminator value to a definition.
//
// Example:
//
//	core.RegisterType("post", postDef)
//	core.RegisterType("video", videoDef)
func RegisterType(discriminator string, def *Definition) {
	globalTypes.mutex.Lock()
	defer globalTypes.mutex.Unlock()
	globalTypes.definitions[discriminator] = def.Init()
}

// ResolveType returns the definition registered for a discriminator, or
// nil when none is registered.
func ResolveType(discriminator string) *Definition {
	globalTypes.mutex.RLock()
	defer globalTypes.mutex.RUnlock()
	return globalTypes.definitions[discriminator]
}

// BuilderExtension is a named function attached to builders at lookup
// time, replacing macro-style prototype mutation with an explicit
// method table.
type BuilderExtension func(b *Builder, args ...any) *Builder

// EntityExtension is the entity-side counterpart of BuilderExtension.
type EntityExtension func(e *Entity, args ...any) any

type extensionTable struct {
	mutex    sync.RWMutex
	builders map[string]BuilderExtension
	entities map[string]EntityExtension
}

var globalExtensions = &extensionTable{
	builders: make(map[string]BuilderExtension),
	entities: make(map[string]EntityExtension),
}

// ExtendBuilder registers a named builder extension.
//
// Example:
//
//	core.ExtendBuilder("active", func(b *core.Builder, _ ...any) *core.Builder {
//		return b.Where("status").Eq("active")
//	})
//	builder.Apply("active")
func ExtendBuilder(name string, fn BuilderExtension) {
	globalExtensions.mutex.Lock()
	defer globalExtensions.mutex.Unlock()
	globalExtensions.builders[name] = fn
}

// ExtendEntity registers a named entity extension, invocable through
// Entity.Call.
func ExtendEntity(name string, fn EntityExtension) {
	globalExtensions.mutex.Lock()
	defer globalExtensions.mutex.Unlock()
	globalExtensions.entities[name] = fn
}

func lookupBuilderExtension(name string) BuilderExtension {
	globalExtensions.mutex.RLock()
	defer globalExtensions.mutex.RUnlock()
	return globalExtensions.builders[name]
}

func lookupEntityExtension(name string) EntityExtension {
	globalExtensions.mutex.RLock()
	defer globalExtensions.mutex.RUnlock()
	return globalExtensions.entities[name]
}
