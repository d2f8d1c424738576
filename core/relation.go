// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the relation descriptor contract and the resolution
// engine driving both lazy and eager loading.
package core

import "context"

// Relation is a declarative association descriptor.
//
// The same descriptor supports two code paths with identical constraint
// semantics: a single-owner predicate for lazy loading, and a batched
// predicate plus re-matching for eager loading. The eager path is not
// "lazy once per owner": N owners cost exactly one additional query.
type Relation interface {
	// relatedDefinition returns the definition of the related entity type.
	relatedDefinition() *Definition
	// addConstraints applies the single-owner predicate onto the
	// relation's own query.
	addConstraints(b *Builder, owner *Entity)
	// addEagerConstraints applies one batched predicate covering every
	// owner in the slice.
	addEagerConstraints(b *Builder, owners []*Entity)
	// match assigns each owner its bucket of results, keyed by the
	// normalized identifier.
	match(owners []*Entity, results []*Entity, relationName string)
}

// customLoader is implemented by descriptors whose resolution cannot be
// expressed as constrain-then-match over a single related type
// (many-to-many pivots, polymorphic inverses).
type customLoader interface {
	eagerLoad(ctx context.Context, conn *Connection, owners []*Entity, relationName string) error
}

// lazyLoad resolves a relation for a single owner.
func lazyLoad(ctx context.Context, conn *Connection, relation Relation, owner *Entity, name string) error {
	if loader, ok := relation.(customLoader); ok {
		return loader.eagerLoad(ctx, conn, []*Entity{owner}, name)
	}
	builder := NewBuilder(conn, relation.relatedDefinition())
	relation.addConstraints(builder, owner)
	results, err := builder.Get(ctx)
	if err != nil {
		return err
	}
	relation.match([]*Entity{owner}, results, name)
	return nil
}

// eagerLoad resolves a relation for a batch of owners in one additional
// query (or one per distinct polymorphic type for morphTo).
func eagerLoad(ctx context.Context, conn *Connection, relation Relation, owners []*Entity, name string) error {
	if len(owners) == 0 {
		return nil
	}
	if loader, ok := relation.(customLoader); ok {
		return loader.eagerLoad(ctx, conn, owners, name)
	}
	builder := NewBuilder(conn, relation.relatedDefinition())
	relation.addEagerConstraints(builder, owners)
	results, err := builder.Get(ctx)
	if err != nil {
		return err
	}
	relation.match(owners, results, name)
	return nil
}

// ownerKeys returns the distinct non-nil values of attribute across the
// owners, deduplicated by normalized key so backend-equal identifiers
// collapse into one predicate entry.
func ownerKeys(owners []*Entity, attribute string) []any {
	seen := make(map[string]struct{}, len(owners))
	keys := make([]any, 0, len(owners))
	for _, owner := range owners {
		value := owner.attributes[attribute]
		if value == nil {
			continue
		}
		normalized := NormalizeKey(value)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		keys = append(keys, value)
	}
	return keys
}

// bucketByKey indexes results by the normalized value of attribute.
func bucketByKey(results []*Entity, attribute string) map[string][]*Entity {
	buckets := make(map[string][]*Entity, len(results))
	for _, result := range results {
		key := NormalizeKey(result.attributes[attribute])
		buckets[key] = append(buckets[key], result)
	}
	return buckets
}

// defaultEntity builds the opt-in fallback entity for to-one relations
// whose owner matched nothing.
func defaultEntity(def *Definition, conn *Connection, enabled bool) *Entity {
	if !enabled {
		return nil
	}
	return NewEntity(def, conn)
}
