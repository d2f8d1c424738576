package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNormalizeKeyEquivalences(t *testing.T) {
	objectID := primitive.NewObjectID()

	tests := []struct {
		name string
		a    any
		b    any
	}{
		{"objectid vs hex string", objectID, objectID.Hex()},
		{"int vs int64", int(7), int64(7)},
		{"int32 vs uint64", int32(42), uint64(42)},
		{"integral float vs int", float64(7), 7},
		{"wrapped _id vs raw", map[string]any{"_id": objectID}, objectID.Hex()},
		{"wrapped id vs raw", map[string]any{"id": int64(9)}, 9},
		{"string identity", "abc", "abc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, NormalizeKey(tc.a), NormalizeKey(tc.b))
		})
	}
}

func TestNormalizeKeyDistinctions(t *testing.T) {
	assert.NotEqual(t, NormalizeKey(7), NormalizeKey(8))
	assert.NotEqual(t, NormalizeKey("7.5"), NormalizeKey(7))
	assert.NotEqual(t, NormalizeKey(7.5), NormalizeKey(7))
}

func TestNormalizeKeyNilIsEmpty(t *testing.T) {
	assert.Equal(t, "", NormalizeKey(nil))
}

func TestNormalizeKeyNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = NormalizeKey(struct{ X int }{1})
		_ = NormalizeKey([]int{1, 2})
		_ = NormalizeKey(map[string]any{"other": 1})
	})
}

func TestNormalizeKeyFractionalFloat(t *testing.T) {
	assert.Equal(t, "7.5", NormalizeKey(7.5))
	assert.Equal(t, "7", NormalizeKey(7.0))
}
