// Package core provides the fundamental building blocks of the anvil ORM.
// It defines abstractions for queries, entities, relations, and drivers.
package core

// Condition represents a single clause in a query filter.
//
// A condition can target a specific field (FieldName) with a given operator
// (Eq, Gt, Like, In, etc.) and a comparison value. Conditions can also
// be nested using Children, enabling composition of complex logical
// expressions with AND, OR, and NOT.
//
// Example:
//
//	cond := (&Condition{FieldName: "age"}).Gt(18).
//		And((&Condition{FieldName: "status"}).Eq("active"))
//
// The above creates a condition equivalent to:
//
//	(age > 18) AND (status = "active")
//
// A condition with the Raw operator carries a backend-native fragment in
// RawSQL/RawArgs. Drivers splice it into the compiled output verbatim;
// generic compilation logic must never quote or re-escape it.
type Condition struct {
	FieldName string       // The field/column name this condition applies to
	Operator  *Operator    // The comparison operator (Eq, Gt, Like, etc.)
	Value     any          // The comparison value
	Children  []*Condition // Nested conditions (for AND, OR, NOT expressions)
	RawSQL    string       // Backend-native fragment (Raw operator only)
	RawArgs   []any        // Bind parameters for RawSQL
}

// And combines this condition with additional conditions using the logical AND operator.
func (c *Condition) And(conditions ...*Condition) *Condition {
	return &Condition{
		Operator: &OpAnd,
		Children: append([]*Condition{c}, conditions...),
	}
}

// Or combines this condition with additional conditions using the logical OR operator.
func (c *Condition) Or(conditions ...*Condition) *Condition {
	return &Condition{
		Operator: &OpOr,
		Children: append([]*Condition{c}, conditions...),
	}
}

// Not negates this condition.
func (c *Condition) Not() *Condition {
	return &Condition{
		Operator: &OpNot,
		Children: []*Condition{c},
	}
}

// Nil asserts that the field is null (or absent, on document stores).
func (c *Condition) Nil() *Condition {
	c.Operator = &OpNil
	c.Value = nil
	return c
}

// NotNil asserts that the field is present and non-null.
func (c *Condition) NotNil() *Condition {
	c.Operator = &OpNotNil
	c.Value = nil
	return c
}

// Eq asserts field equality against v.
func (c *Condition) Eq(v any) *Condition {
	c.Operator = &OpEq
	c.Value = v
	return c
}

// Ne asserts field inequality against v.
func (c *Condition) Ne(v any) *Condition {
	c.Operator = &OpNe
	c.Value = v
	return c
}

// Gt asserts the field is strictly greater than v.
func (c *Condition) Gt(v any) *Condition {
	c.Operator = &OpGt
	c.Value = v
	return c
}

// Gte asserts the field is greater than or equal to v.
func (c *Condition) Gte(v any) *Condition {
	c.Operator = &OpGte
	c.Value = v
	return c
}

// Lt asserts the field is strictly less than v.
func (c *Condition) Lt(v any) *Condition {
	c.Operator = &OpLt
	c.Value = v
	return c
}

// Lte asserts the field is less than or equal to v.
func (c *Condition) Lte(v any) *Condition {
	c.Operator = &OpLte
	c.Value = v
	return c
}

// Like asserts the field matches a SQL LIKE pattern ("%" and "_" wildcards).
// Document drivers translate the pattern into an anchored regex.
func (c *Condition) Like(v any) *Condition {
	c.Operator = &OpLike
	c.Value = v
	return c
}

// NotLike negates Like.
func (c *Condition) NotLike(v any) *Condition {
	c.Operator = &OpNotLike
	c.Value = v
	return c
}

// ILike asserts a case-insensitive LIKE match. Native on postgres; other
// backends lower it to an equivalent construct.
func (c *Condition) ILike(v any) *Condition {
	c.Operator = &OpILike
	c.Value = v
	return c
}

// In asserts the field equals one of the given values.
func (c *Condition) In(values ...any) *Condition {
	c.Operator = &OpIn
	c.Value = values
	return c
}

// NotIn asserts the field equals none of the given values.
func (c *Condition) NotIn(values ...any) *Condition {
	c.Operator = &OpNotIn
	c.Value = values
	return c
}

// Between asserts low <= field <= high (inclusive on both ends).
func (c *Condition) Between(low, high any) *Condition {
	c.Operator = &OpBetween
	c.Value = []any{low, high}
	return c
}

// NotBetween negates Between.
func (c *Condition) NotBetween(low, high any) *Condition {
	c.Operator = &OpNotBetween
	c.Value = []any{low, high}
	return c
}

// C starts a condition for the given field/column name.
//
// Example:
//
//	core.C("status").Eq("active")
//	core.C("age").Between(18, 65)
func C(fieldName string) *Condition {
	return &Condition{FieldName: fieldName}
}

// RawCondition builds a condition carrying a backend-native fragment.
// The fragment is compiled verbatim; callers own its correctness.
func RawCondition(fragment string, args ...any) *Condition {
	return &Condition{Operator: &OpRaw, RawSQL: fragment, RawArgs: args}
}

// Clone returns a structural deep copy of the condition tree.
//
// Derived queries (counts, chunked pagination) clone before mutating so the
// caller's tree is never aliased.
func (c *Condition) Clone() *Condition {
	if c == nil {
		return nil
	}
	copied := &Condition{
		FieldName: c.FieldName,
		Value:     c.Value,
		RawSQL:    c.RawSQL,
	}
	if c.Operator != nil {
		op := *c.Operator
		copied.Operator = &op
	}
	if len(c.RawArgs) > 0 {
		copied.RawArgs = append([]any(nil), c.RawArgs...)
	}
	if list, ok := c.Value.([]any); ok {
		copied.Value = append([]any(nil), list...)
	}
	for _, child := range c.Children {
		copied.Children = append(copied.Children, child.Clone())
	}
	return copied
}

// foldConditionsAnd combines a list of conditions with AND, returning nil
// for an empty list and the single condition unchanged for a list of one.
func foldConditionsAnd(conds ...*Condition) *Condition {
	filtered := conds[:0]
	for _, c := range conds {
		if c != nil {
			filtered = append(filtered, c)
		}
	}
	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	default:
		acc := filtered[0]
		for i := 1; i < len(filtered); i++ {
			acc = acc.And(filtered[i])
		}
		return acc
	}
}
