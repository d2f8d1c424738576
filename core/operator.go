// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the closed set of operators used in query conditions.
package core

// Operator represents a comparison or logical operator used in a query condition.
//
// Operators can be logical (AND, OR, NOT) or value-based (EQ, GT, IN, etc.).
// The set is closed: drivers switch exhaustively over it when compiling a
// condition tree, and an operator a backend cannot express is rejected
// there rather than silently dropped.
type Operator string

const (
	// Logical operators
	opAnd Operator = "AND"
	opOr  Operator = "OR"
	opNot Operator = "NOT"

	// Value-based operators
	opNil        Operator = "NIL"         // field IS NULL
	opNotNil     Operator = "NOT_NIL"     // field IS NOT NULL
	opEq         Operator = "EQ"          // field = value
	opNe         Operator = "NE"          // field <> value
	opGt         Operator = "GT"          // field > value
	opGte        Operator = "GTE"         // field >= value
	opLt         Operator = "LT"          // field < value
	opLte        Operator = "LTE"         // field <= value
	opLike       Operator = "LIKE"        // field LIKE pattern (SQL) or regex (NoSQL)
	opNotLike    Operator = "NOT_LIKE"    // negated LIKE
	opILike      Operator = "ILIKE"       // case-insensitive LIKE
	opIn         Operator = "IN"          // field IN (value list)
	opNotIn      Operator = "NOT_IN"      // field NOT IN (value list)
	opBetween    Operator = "BETWEEN"     // low <= field <= high
	opNotBetween Operator = "NOT_BETWEEN" // negated BETWEEN
	opRaw        Operator = "RAW"         // backend-native fragment, never re-escaped
)

// Public operator aliases exposed to users of the ORM.
//
// These variables reference the internal constants and are intended
// to be used when constructing conditions programmatically. Conditions
// hold a pointer to an Operator so an unset operator is distinguishable
// from an explicit one.
//
// Example:
//
//	cond := &core.Condition{FieldName: "age", Operator: &core.OpGt, Value: 18}
var (
	OpAnd        = opAnd
	OpOr         = opOr
	OpNot        = opNot
	OpNil        = opNil
	OpNotNil     = opNotNil
	OpEq         = opEq
	OpNe         = opNe
	OpGt         = opGt
	OpGte        = opGte
	OpLt         = opLt
	OpLte        = opLte
	OpLike       = opLike
	OpNotLike    = opNotLike
	OpILike      = opILike
	OpIn         = opIn
	OpNotIn      = opNotIn
	OpBetween    = opBetween
	OpNotBetween = opNotBetween
	OpRaw        = opRaw
)

// IsLogical reports whether the operator combines child conditions
// rather than comparing a field against a value.
func (o Operator) IsLogical() bool {
	return o == opAnd || o == opOr || o == opNot
}
