// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines BelongsToMany, the many-to-many descriptor backed by a
// pivot table, including the direct pivot mutations (attach/detach/sync/
// toggle).
package core

import "context"

// PivotPrefix is the attribute prefix under which pivot columns travel on
// related entities, so pivot data arrives without a second round trip per
// related row.
const PivotPrefix = "pivot_"

// BelongsToMany associates two entity types through a pivot table.
//
// Resolution runs two batched queries regardless of owner count: one over
// the pivot table, one over the related table. Pivot key columns (and any
// requested PivotColumns) are copied onto each related entity under the
// pivot_ prefix.
//
// Example:
//
//	userDef.AddRelation("roles", &core.BelongsToMany{
//		Related:         roleDef,
//		PivotTable:      "role_user",
//		ForeignPivotKey: "user_id",
//		RelatedPivotKey: "role_id",
//	})
type BelongsToMany struct {
	Related *Definition
	// PivotTable is the join table/collection name.
	PivotTable string
	// ForeignPivotKey is the pivot column referencing the owner.
	ForeignPivotKey string
	// RelatedPivotKey is the pivot column referencing the related entity.
	RelatedPivotKey string
	// ParentKey is the owner attribute stored in ForeignPivotKey;
	// defaults to the owner's primary key.
	ParentKey string
	// RelatedKey is the related attribute stored in RelatedPivotKey;
	// defaults to the related primary key.
	RelatedKey string
	// PivotColumns lists extra pivot columns to expose under pivot_.
	PivotColumns []string
}

func (r *BelongsToMany) relatedDefinition() *Definition { return r.Related.Init() }

func (r *BelongsToMany) parentKey(owner *Entity) string {
	if r.ParentKey != "" {
		return r.ParentKey
	}
	return owner.def.PrimaryKey
}

func (r *BelongsToMany) relatedKey() string {
	if r.RelatedKey != "" {
		return r.RelatedKey
	}
	return r.Related.Init().PrimaryKey
}

// The Relation constraint methods are satisfied for interface completeness
// only: many-to-many constraints live on the pivot table, so resolution
// always flows through the customLoader path and these never run.
func (r *BelongsToMany) addConstraints(b *Builder, owner *Entity)         {}
func (r *BelongsToMany) addEagerConstraints(b *Builder, owners []*Entity) {}

func (r *BelongsToMany) match(owners []*Entity, results []*Entity, relationName string) {
	for _, owner := range owners {
		owner.SetRelation(relationName, []*Entity{})
	}
}

// eagerLoad resolves the relation for every owner in two batched queries.
func (r *BelongsToMany) eagerLoad(ctx context.Context, conn *Connection, owners []*Entity, relationName string) error {
	parentKey := r.parentKey(owners[0])
	keys := ownerKeys(owners, parentKey)
	if len(keys) == 0 {
		r.match(owners, nil, relationName)
		return nil
	}

	pivotRows, err := NewTableBuilder(conn, r.PivotTable).
		WhereIn(r.ForeignPivotKey, keys...).
		Rows(ctx)
	if err != nil {
		return err
	}

	relatedIDs := make([]any, 0, len(pivotRows))
	seen := make(map[string]struct{}, len(pivotRows))
	for _, pivotRow := range pivotRows {
		id := pivotRow[r.RelatedPivotKey]
		if id == nil {
			continue
		}
		normalized := NormalizeKey(id)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		relatedIDs = append(relatedIDs, id)
	}

	relatedByKey := make(map[string]*Entity)
	if len(relatedIDs) > 0 {
		relatedList, err := NewBuilder(conn, r.Related).
			WhereIn(r.relatedKey(), relatedIDs...).
			Get(ctx)
		if err != nil {
			return err
		}
		for _, related := range relatedList {
			relatedByKey[NormalizeKey(related.attributes[r.relatedKey()])] = related
		}
	}

	buckets := make(map[string][]*Entity, len(owners))
	for _, pivotRow := range pivotRows {
		related, ok := relatedByKey[NormalizeKey(pivotRow[r.RelatedPivotKey])]
		if !ok {
			continue
		}
		ownerBucket := NormalizeKey(pivotRow[r.ForeignPivotKey])
		buckets[ownerBucket] = append(buckets[ownerBucket], r.withPivot(related, pivotRow))
	}

	for _, owner := range owners {
		bucket := buckets[NormalizeKey(owner.attributes[parentKey])]
		if bucket == nil {
			bucket = []*Entity{}
		}
		owner.SetRelation(relationName, bucket)
	}
	return nil
}

// withPivot copies the related entity and attaches the pivot key columns
// plus any requested pivot columns under the pivot_ prefix.
func (r *BelongsToMany) withPivot(related *Entity, pivotRow Row) *Entity {
	copied := NewEntity(related.def, related.conn)
	for key, value := range related.attributes {
		copied.attributes[key] = value
	}
	copied.attributes[PivotPrefix+r.ForeignPivotKey] = pivotRow[r.ForeignPivotKey]
	copied.attributes[PivotPrefix+r.RelatedPivotKey] = pivotRow[r.RelatedPivotKey]
	for _, column := range r.PivotColumns {
		copied.attributes[PivotPrefix+column] = pivotRow[column]
	}
	copied.syncOriginal()
	copied.exists = true
	return copied
}

//region pivot mutations

// Attach inserts pivot rows linking the owner to each related id. Extra
// pivot column values apply to every inserted row. Pivot mutations write
// the join table directly; no entity save is involved.
func (r *BelongsToMany) Attach(ctx context.Context, owner *Entity, relatedIDs []any, pivotData ...Changes) error {
	if len(relatedIDs) == 0 {
		return nil
	}
	driver, err := owner.conn.Driver()
	if err != nil {
		return err
	}
	ownerValue := owner.attributes[r.parentKey(owner)]
	rows := make([]Row, 0, len(relatedIDs))
	for _, id := range relatedIDs {
		row := Row{r.ForeignPivotKey: ownerValue, r.RelatedPivotKey: id}
		for _, extra := range pivotData {
			for column, value := range extra {
				row[column] = value
			}
		}
		rows = append(rows, row)
	}
	return driver.InsertMany(ctx, Collection{Name: r.PivotTable}, rows)
}

// Detach removes the pivot rows for the given related ids, or every pivot
// row of the owner when none are given. Returns the number removed.
func (r *BelongsToMany) Detach(ctx context.Context, owner *Entity, relatedIDs ...any) (int64, error) {
	driver, err := owner.conn.Driver()
	if err != nil {
		return 0, err
	}
	condition := C(r.ForeignPivotKey).Eq(owner.attributes[r.parentKey(owner)])
	if len(relatedIDs) > 0 {
		condition = condition.And(C(r.RelatedPivotKey).In(relatedIDs...))
	}
	return driver.Delete(ctx, Collection{Name: r.PivotTable}, condition)
}

// Sync makes the pivot rows for the owner exactly the given set: missing
// ids are attached, surplus ids detached, ids present in both are left
// untouched (their pivot data survives).
func (r *BelongsToMany) Sync(ctx context.Context, owner *Entity, relatedIDs []any) (attached, detached []any, err error) {
	current, err := r.currentIDs(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	wanted := make(map[string]any, len(relatedIDs))
	for _, id := range relatedIDs {
		wanted[NormalizeKey(id)] = id
	}

	for normalized, id := range current {
		if _, keep := wanted[normalized]; !keep {
			detached = append(detached, id)
		}
	}
	for normalized, id := range wanted {
		if _, have := current[normalized]; !have {
			attached = append(attached, id)
		}
	}

	if len(detached) > 0 {
		if _, err := r.Detach(ctx, owner, detached...); err != nil {
			return nil, nil, err
		}
	}
	if err := r.Attach(ctx, owner, attached); err != nil {
		return nil, nil, err
	}
	return attached, detached, nil
}

// Toggle flips membership: present ids are detached, absent ids attached.
func (r *BelongsToMany) Toggle(ctx context.Context, owner *Entity, relatedIDs []any) (attached, detached []any, err error) {
	current, err := r.currentIDs(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range relatedIDs {
		if _, have := current[NormalizeKey(id)]; have {
			detached = append(detached, id)
		} else {
			attached = append(attached, id)
		}
	}
	if len(detached) > 0 {
		if _, err := r.Detach(ctx, owner, detached...); err != nil {
			return nil, nil, err
		}
	}
	if err := r.Attach(ctx, owner, attached); err != nil {
		return nil, nil, err
	}
	return attached, detached, nil
}

// currentIDs returns the owner's pivot partners keyed by normalized id.
func (r *BelongsToMany) currentIDs(ctx context.Context, owner *Entity) (map[string]any, error) {
	rows, err := NewTableBuilder(owner.conn, r.PivotTable).
		Where(C(r.ForeignPivotKey).Eq(owner.attributes[r.parentKey(owner)])).
		Rows(ctx)
	if err != nil {
		return nil, err
	}
	current := make(map[string]any, len(rows))
	for _, row := range rows {
		id := row[r.RelatedPivotKey]
		if id != nil {
			current[NormalizeKey(id)] = id
		}
	}
	return current, nil
}

//endregion
