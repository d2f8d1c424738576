// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the polymorphic relation descriptors: MorphOne,
// MorphMany, and the inverse MorphTo.
package core

import "context"

// MorphOne associates an owner with at most one related entity through a
// (type, id) column pair on the related table. Every constraint carries
// the type discriminator alongside the key.
//
// Example:
//
//	postDef.AddRelation("cover", &core.MorphOne{
//		Related:    imageDef,
//		TypeColumn: "imageable_type",
//		IDColumn:   "imageable_id",
//		TypeValue:  "post",
//	})
type MorphOne struct {
	Related *Definition
	// TypeColumn / IDColumn form the discriminator pair on the related table.
	TypeColumn string
	IDColumn   string
	// TypeValue is the discriminator stored for this owner type. It is
	// declared explicitly rather than derived from a Go type name.
	TypeValue string
	// LocalKey defaults to the owner's primary key.
	LocalKey string
	// Default opts into a fresh empty entity for unmatched owners.
	Default bool
}

func (r *MorphOne) relatedDefinition() *Definition { return r.Related.Init() }

func (r *MorphOne) localKey(owner *Entity) string {
	if r.LocalKey != "" {
		return r.LocalKey
	}
	return owner.def.PrimaryKey
}

func (r *MorphOne) addConstraints(b *Builder, owner *Entity) {
	b.Where(
		C(r.TypeColumn).Eq(r.TypeValue),
		C(r.IDColumn).Eq(owner.attributes[r.localKey(owner)]),
	)
}

func (r *MorphOne) addEagerConstraints(b *Builder, owners []*Entity) {
	b.Where(C(r.TypeColumn).Eq(r.TypeValue)).
		WhereIn(r.IDColumn, ownerKeys(owners, r.localKey(owners[0]))...)
}

func (r *MorphOne) match(owners []*Entity, results []*Entity, relationName string) {
	buckets := bucketByKey(results, r.IDColumn)
	for _, owner := range owners {
		key := NormalizeKey(owner.attributes[r.localKey(owner)])
		if bucket := buckets[key]; len(bucket) > 0 {
			owner.SetRelation(relationName, bucket[0])
		} else {
			owner.SetRelation(relationName, defaultEntity(r.Related, owner.conn, r.Default))
		}
	}
}

// MorphMany is the to-many variant of MorphOne.
type MorphMany struct {
	Related    *Definition
	TypeColumn string
	IDColumn   string
	TypeValue  string
	LocalKey   string
}

func (r *MorphMany) relatedDefinition() *Definition { return r.Related.Init() }

func (r *MorphMany) localKey(owner *Entity) string {
	if r.LocalKey != "" {
		return r.LocalKey
	}
	return owner.def.PrimaryKey
}

func (r *MorphMany) addConstraints(b *Builder, owner *Entity) {
	b.Where(
		C(r.TypeColumn).Eq(r.TypeValue),
		C(r.IDColumn).Eq(owner.attributes[r.localKey(owner)]),
	)
}

func (r *MorphMany) addEagerConstraints(b *Builder, owners []*Entity) {
	b.Where(C(r.TypeColumn).Eq(r.TypeValue)).
		WhereIn(r.IDColumn, ownerKeys(owners, r.localKey(owners[0]))...)
}

func (r *MorphMany) match(owners []*Entity, results []*Entity, relationName string) {
	buckets := bucketByKey(results, r.IDColumn)
	for _, owner := range owners {
		key := NormalizeKey(owner.attributes[r.localKey(owner)])
		bucket := buckets[key]
		if bucket == nil {
			bucket = []*Entity{}
		}
		owner.SetRelation(relationName, bucket)
	}
}

// MorphTo is the inverse polymorphic association: the owner row carries
// both the related key (IDColumn) and a discriminator (TypeColumn) naming
// which entity type the key belongs to.
//
// Eager resolution groups owners by discriminator, resolves each distinct
// discriminator through the explicit type registry, and issues one batched
// query per distinct type. An unregistered discriminator yields no
// relation data for its owners rather than an error: partial polymorphic
// data is a normal runtime state (unregistered legacy types).
type MorphTo struct {
	// TypeColumn / IDColumn on the owning table.
	TypeColumn string
	IDColumn   string
}

// relatedDefinition has no single answer for MorphTo; resolution happens
// per discriminator through the registry.
func (r *MorphTo) relatedDefinition() *Definition { return nil }

func (r *MorphTo) addConstraints(b *Builder, owner *Entity)         {}
func (r *MorphTo) addEagerConstraints(b *Builder, owners []*Entity) {}

func (r *MorphTo) match(owners []*Entity, results []*Entity, relationName string) {
	for _, owner := range owners {
		owner.SetRelation(relationName, nil)
	}
}

// eagerLoad groups owners by discriminator and issues one batched query
// per distinct registered type.
func (r *MorphTo) eagerLoad(ctx context.Context, conn *Connection, owners []*Entity, relationName string) error {
	groups := make(map[string][]*Entity)
	var order []string
	for _, owner := range owners {
		discriminator, _ := owner.attributes[r.TypeColumn].(string)
		if _, seen := groups[discriminator]; !seen {
			order = append(order, discriminator)
		}
		groups[discriminator] = append(groups[discriminator], owner)
	}

	for _, discriminator := range order {
		group := groups[discriminator]
		def := ResolveType(discriminator)
		if def == nil {
			// Unregistered type: these owners get no relation data.
			for _, owner := range group {
				owner.SetRelation(relationName, nil)
			}
			continue
		}

		keys := ownerKeys(group, r.IDColumn)
		var results []*Entity
		if len(keys) > 0 {
			var err error
			results, err = NewBuilder(conn, def).
				WhereIn(def.PrimaryKey, keys...).
				Get(ctx)
			if err != nil {
				return err
			}
		}

		buckets := bucketByKey(results, def.PrimaryKey)
		for _, owner := range group {
			key := NormalizeKey(owner.attributes[r.IDColumn])
			if bucket := buckets[key]; len(bucket) > 0 {
				owner.SetRelation(relationName, bucket[0])
			} else {
				owner.SetRelation(relationName, nil)
			}
		}
	}
	return nil
}
