// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the non-polymorphic to-one and to-many relation
// descriptors: HasOne, HasMany, and the inverse BelongsTo.
package core

// HasOne associates an owner with at most one related entity holding the
// owner's key in ForeignKey.
//
// Example:
//
//	userDef.AddRelation("profile", &core.HasOne{
//		Related:    profileDef,
//		ForeignKey: "user_id",
//	})
type HasOne struct {
	// Related is the definition of the related entity type.
	Related *Definition
	// ForeignKey is the column on the related table referencing the owner.
	ForeignKey string
	// LocalKey is the owner attribute the foreign key references;
	// defaults to the owner's primary key column.
	LocalKey string
	// Default opts into a fresh empty entity (instead of nil) for owners
	// that match nothing.
	Default bool
}

func (r *HasOne) relatedDefinition() *Definition { return r.Related.Init() }

func (r *HasOne) localKey(owner *Entity) string {
	if r.LocalKey != "" {
		return r.LocalKey
	}
	return owner.def.PrimaryKey
}

func (r *HasOne) addConstraints(b *Builder, owner *Entity) {
	b.Where(C(r.ForeignKey).Eq(owner.attributes[r.localKey(owner)]))
}

func (r *HasOne) addEagerConstraints(b *Builder, owners []*Entity) {
	b.WhereIn(r.ForeignKey, ownerKeys(owners, r.localKey(owners[0]))...)
}

func (r *HasOne) match(owners []*Entity, results []*Entity, relationName string) {
	buckets := bucketByKey(results, r.ForeignKey)
	for _, owner := range owners {
		key := NormalizeKey(owner.attributes[r.localKey(owner)])
		if bucket := buckets[key]; len(bucket) > 0 {
			owner.SetRelation(relationName, bucket[0])
		} else {
			owner.SetRelation(relationName, defaultEntity(r.Related, owner.conn, r.Default))
		}
	}
}

// HasMany associates an owner with every related entity holding the
// owner's key in ForeignKey. Owners that match nothing receive an empty
// (non-nil) slice.
type HasMany struct {
	Related    *Definition
	ForeignKey string
	LocalKey   string
}

func (r *HasMany) relatedDefinition() *Definition { return r.Related.Init() }

func (r *HasMany) localKey(owner *Entity) string {
	if r.LocalKey != "" {
		return r.LocalKey
	}
	return owner.def.PrimaryKey
}

func (r *HasMany) addConstraints(b *Builder, owner *Entity) {
	b.Where(C(r.ForeignKey).Eq(owner.attributes[r.localKey(owner)]))
}

func (r *HasMany) addEagerConstraints(b *Builder, owners []*Entity) {
	b.WhereIn(r.ForeignKey, ownerKeys(owners, r.localKey(owners[0]))...)
}

func (r *HasMany) match(owners []*Entity, results []*Entity, relationName string) {
	buckets := bucketByKey(results, r.ForeignKey)
	for _, owner := range owners {
		key := NormalizeKey(owner.attributes[r.localKey(owner)])
		bucket := buckets[key]
		if bucket == nil {
			bucket = []*Entity{}
		}
		owner.SetRelation(relationName, bucket)
	}
}

// BelongsTo is the inverse association: the owner holds the related key in
// ForeignKey and the related entity is looked up by OwnerKey.
//
// Example:
//
//	postDef.AddRelation("author", &core.BelongsTo{
//		Related:    userDef,
//		ForeignKey: "author_id",
//	})
type BelongsTo struct {
	Related *Definition
	// ForeignKey is the attribute on this entity referencing the owner.
	ForeignKey string
	// OwnerKey is the referenced column on the related table; defaults to
	// its primary key.
	OwnerKey string
	// Default opts into a fresh empty entity for unmatched owners.
	Default bool
}

func (r *BelongsTo) relatedDefinition() *Definition { return r.Related.Init() }

func (r *BelongsTo) ownerKey() string {
	if r.OwnerKey != "" {
		return r.OwnerKey
	}
	return r.Related.Init().PrimaryKey
}

func (r *BelongsTo) addConstraints(b *Builder, owner *Entity) {
	b.Where(C(r.ownerKey()).Eq(owner.attributes[r.ForeignKey]))
}

func (r *BelongsTo) addEagerConstraints(b *Builder, owners []*Entity) {
	b.WhereIn(r.ownerKey(), ownerKeys(owners, r.ForeignKey)...)
}

func (r *BelongsTo) match(owners []*Entity, results []*Entity, relationName string) {
	buckets := bucketByKey(results, r.ownerKey())
	for _, owner := range owners {
		key := NormalizeKey(owner.attributes[r.ForeignKey])
		if bucket := buckets[key]; len(bucket) > 0 {
			owner.SetRelation(relationName, bucket[0])
		} else {
			owner.SetRelation(relationName, defaultEntity(r.Related, owner.conn, r.Default))
		}
	}
}
