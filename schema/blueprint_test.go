package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlueprintColumnHelpers(t *testing.T) {
	bp := NewBlueprint("users")
	bp.Increments("id")
	bp.String("email", 0).SetUnique()
	bp.Decimal("balance", 10, 2).SetDefault(0)
	bp.BigInteger("team_id").SetNullable().SetReferences("teams", "id")
	bp.Timestamps()
	bp.SoftDeletes()

	require.Len(t, bp.Columns, 7)

	id := bp.Columns[0]
	assert.Equal(t, TypeIncrements, id.Type)
	assert.True(t, id.PrimaryKey)

	email := bp.Columns[1]
	assert.Equal(t, TypeString, email.Type)
	assert.Equal(t, 255, email.Length) // zero length falls back to 255
	assert.True(t, email.Unique)

	balance := bp.Columns[2]
	assert.Equal(t, 10, balance.Precision)
	assert.Equal(t, 2, balance.Scale)
	assert.True(t, balance.HasDefault)
	assert.Equal(t, 0, balance.Default)

	teamID := bp.Columns[3]
	assert.True(t, teamID.Nullable)
	require.NotNil(t, teamID.References)
	assert.Equal(t, "teams", teamID.References.Table)
	assert.Equal(t, "id", teamID.References.Column)

	assert.Equal(t, "created_at", bp.Columns[4].Name)
	assert.Equal(t, "updated_at", bp.Columns[5].Name)
	assert.Equal(t, "deleted_at", bp.Columns[6].Name)
	assert.True(t, bp.Columns[6].Nullable)
}

func TestBlueprintDefaultNullIsExplicit(t *testing.T) {
	bp := NewBlueprint("settings")
	plain := bp.Text("notes")
	defaulted := bp.Text("flags").SetDefault(nil)

	assert.False(t, plain.HasDefault)
	assert.True(t, defaulted.HasDefault)
	assert.Nil(t, defaulted.Default)
}
