package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionBuilders(t *testing.T) {
	cond := C("age").Gt(18)
	require.NotNil(t, cond.Operator)
	assert.Equal(t, OpGt, *cond.Operator)
	assert.Equal(t, "age", cond.FieldName)
	assert.Equal(t, 18, cond.Value)

	between := C("price").Between(10, 20)
	assert.Equal(t, OpBetween, *between.Operator)
	assert.Equal(t, []any{10, 20}, between.Value)

	in := C("status").In("active", "pending")
	assert.Equal(t, OpIn, *in.Operator)
	assert.Equal(t, []any{"active", "pending"}, in.Value)

	null := C("deleted_at").Nil()
	assert.Equal(t, OpNil, *null.Operator)
	assert.Nil(t, null.Value)
}

func TestConditionComposition(t *testing.T) {
	combined := C("age").Gt(18).And(C("status").Eq("active"))
	require.Equal(t, OpAnd, *combined.Operator)
	require.Len(t, combined.Children, 2)
	assert.Equal(t, "age", combined.Children[0].FieldName)
	assert.Equal(t, "status", combined.Children[1].FieldName)

	either := combined.Or(C("role").Eq("admin"))
	require.Equal(t, OpOr, *either.Operator)
	require.Len(t, either.Children, 2)
	assert.Equal(t, OpAnd, *either.Children[0].Operator)

	negated := C("banned").Eq(true).Not()
	require.Equal(t, OpNot, *negated.Operator)
	require.Len(t, negated.Children, 1)
}

func TestConditionCloneIsIndependent(t *testing.T) {
	original := C("status").In("a", "b").And(C("age").Gte(21))
	cloned := original.Clone()

	cloned.Children[0].FieldName = "mutated"
	cloned.Children[0].Value.([]any)[0] = "mutated"
	*cloned.Children[1].Operator = OpLt

	assert.Equal(t, "status", original.Children[0].FieldName)
	assert.Equal(t, "a", original.Children[0].Value.([]any)[0])
	assert.Equal(t, OpGte, *original.Children[1].Operator)
}

func TestConditionCloneNil(t *testing.T) {
	var cond *Condition
	assert.Nil(t, cond.Clone())
}

func TestRawCondition(t *testing.T) {
	raw := RawCondition("lower(email) = ?", "ada@example.com")
	require.Equal(t, OpRaw, *raw.Operator)
	assert.Equal(t, "lower(email) = ?", raw.RawSQL)
	assert.Equal(t, []any{"ada@example.com"}, raw.RawArgs)
}

func TestFoldConditionsAnd(t *testing.T) {
	assert.Nil(t, foldConditionsAnd(nil, nil))

	single := C("a").Eq(1)
	assert.Same(t, single, foldConditionsAnd(nil, single))

	folded := foldConditionsAnd(C("a").Eq(1), C("b").Eq(2), C("c").Eq(3))
	require.Equal(t, OpAnd, *folded.Operator)
}

func TestOperatorIsLogical(t *testing.T) {
	assert.True(t, OpAnd.IsLogical())
	assert.True(t, OpOr.IsLogical())
	assert.True(t, OpNot.IsLogical())
	assert.False(t, OpEq.IsLogical())
	assert.False(t, OpBetween.IsLogical())
}
