// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the Description, the immutable snapshot of a built query
// that drivers compile into backend-native requests.
package core

// Sort represents an ordering rule used in queries.
//
// FieldName specifies which column/field to sort by.
// Order determines the direction: 1 for ascending (ASC), -1 for descending (DESC).
type Sort struct {
	FieldName string
	Order     int // 1 = ASC, -1 = DESC
}

// JoinKind identifies the join flavor requested by a builder.
type JoinKind string

const (
	JoinInner JoinKind = "INNER"
	JoinLeft  JoinKind = "LEFT"
	JoinRight JoinKind = "RIGHT"
	JoinCross JoinKind = "CROSS"
)

// Join describes a single join clause: the foreign table and the equality
// linking it to the owning query. Document drivers translate joins into
// $lookup stages rather than rejecting them.
type Join struct {
	Kind          JoinKind
	Table         string
	LocalColumn   string
	ForeignColumn string
}

// LockMode identifies the row-locking behavior requested for a SELECT.
//
// Locking is a SQL-only concept; the document driver rejects any mode
// other than LockNone as a configuration error.
type LockMode int

const (
	LockNone LockMode = iota
	LockForUpdate
	LockShared
)

// Description is the immutable result of freezing a Builder.
//
// It captures everything a driver needs to compile and run a query:
// target collection, projection, the condition tree, joins, grouping,
// ordering, pagination bounds, locking, and the eager-load list.
//
// Invariant: Clone never aliases mutable sub-structures, so derived
// queries (counts, chunk pages) cannot corrupt the original. Drivers
// must treat a Description as read-only.
type Description struct {
	Collection string
	Database   string

	Columns  []string
	Distinct bool

	Condition *Condition
	Joins     []Join
	GroupBy   []string
	Having    *Condition
	Sort      []Sort

	Limit  int
	Offset int

	Lock       LockMode
	SkipLocked bool
	NoWait     bool

	// EagerLoad lists relation names to resolve after the main query,
	// in the order supplied by the caller.
	EagerLoad []string

	// WithTrashed / OnlyTrashed control the soft-delete scope. The
	// deleted-at predicate is folded into Condition before dispatch, so
	// drivers never consult these directly; they travel for derived
	// queries and diagnostics.
	WithTrashed bool
	OnlyTrashed bool

	// OmittedScopes names the global scopes bypassed for this query.
	OmittedScopes []string
}

// Clone returns a structural deep copy of the description.
func (d *Description) Clone() *Description {
	if d == nil {
		return nil
	}
	copied := *d
	copied.Columns = append([]string(nil), d.Columns...)
	copied.Condition = d.Condition.Clone()
	copied.Joins = append([]Join(nil), d.Joins...)
	copied.GroupBy = append([]string(nil), d.GroupBy...)
	copied.Having = d.Having.Clone()
	copied.Sort = append([]Sort(nil), d.Sort...)
	copied.EagerLoad = append([]string(nil), d.EagerLoad...)
	copied.OmittedScopes = append([]string(nil), d.OmittedScopes...)
	return &copied
}

// AggregateKind identifies the aggregate function of an Aggregate request.
type AggregateKind string

const (
	AggregateCount AggregateKind = "count"
	AggregateSum   AggregateKind = "sum"
	AggregateAvg   AggregateKind = "avg"
	AggregateMin   AggregateKind = "min"
	AggregateMax   AggregateKind = "max"
)

// Aggregate describes a scalar aggregate over a Description. SQL drivers
// compile it into a single SELECT expression; the document driver compiles
// it into an aggregation pipeline.
type Aggregate struct {
	Kind   AggregateKind
	Column string
}
