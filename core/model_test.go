package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserModel(driver *fakeDriver) *Model {
	def := &Definition{
		Table:    "users",
		Fillable: []string{"name", "email", "status"},
	}
	return NewModel(def, newFakeConnection(driver))
}

func TestModelCreateFillsAndSaves(t *testing.T) {
	driver := newFakeDriver()
	users := newUserModel(driver)

	user, err := users.Create(context.Background(), Row{"name": "ada", "email": "ada@example.com"})
	require.NoError(t, err)
	assert.True(t, user.Exists())
	assert.Equal(t, int64(1), user.Key())
	assert.Len(t, driver.rowsOf("users"), 1)
}

func TestModelFindAndAll(t *testing.T) {
	driver := newFakeDriver()
	driver.seed("users", Row{IDField: int64(1), "name": "ada"}, Row{IDField: int64(2), "name": "grace"})
	users := newUserModel(driver)
	ctx := context.Background()

	user, err := users.Find(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ada", user.RawAttribute("name"))

	missing, err := users.Find(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = users.FindOrFail(ctx, 99)
	assert.True(t, IsNotFound(err))

	all, err := users.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFirstOrCreateReturnsExisting(t *testing.T) {
	driver := newFakeDriver()
	driver.seed("users", Row{IDField: int64(1), "email": "ada@example.com", "name": "ada"})
	users := newUserModel(driver)

	user, err := users.FirstOrCreate(context.Background(), Row{"email": "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.Key())
	assert.Len(t, driver.rowsOf("users"), 1)
}

func TestFirstOrCreateCreatesWithExtras(t *testing.T) {
	driver := newFakeDriver()
	users := newUserModel(driver)

	user, err := users.FirstOrCreate(context.Background(),
		Row{"email": "grace@example.com"},
		Row{"name": "grace", "status": "active"})
	require.NoError(t, err)
	assert.True(t, user.WasRecentlyCreated())
	assert.Equal(t, "grace", user.RawAttribute("name"))
	assert.Equal(t, "active", user.RawAttribute("status"))
	assert.Len(t, driver.rowsOf("users"), 1)
}

func TestUpdateOrCreateUpdatesExisting(t *testing.T) {
	driver := newFakeDriver()
	driver.seed("users", Row{IDField: int64(1), "email": "ada@example.com", "status": "pending"})
	users := newUserModel(driver)

	user, err := users.UpdateOrCreate(context.Background(),
		Row{"email": "ada@example.com"},
		Row{"status": "active"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.Key())
	assert.Equal(t, "active", driver.rowsOf("users")[0]["status"])
}

func TestUpdateOrCreateCreatesWhenMissing(t *testing.T) {
	driver := newFakeDriver()
	users := newUserModel(driver)

	user, err := users.UpdateOrCreate(context.Background(),
		Row{"email": "new@example.com"},
		Row{"status": "active"})
	require.NoError(t, err)
	assert.True(t, user.WasRecentlyCreated())
	assert.Equal(t, "new@example.com", user.RawAttribute("email"))
}

func TestModelUpsert(t *testing.T) {
	driver := newFakeDriver()
	driver.seed("users", Row{IDField: int64(1), "email": "ada@example.com", "status": "pending"})
	users := newUserModel(driver)
	ctx := context.Background()

	require.NoError(t, users.Upsert(ctx,
		Row{"email": "ada@example.com", "status": "active"},
		[]string{"email"}))
	rows := driver.rowsOf("users")
	require.Len(t, rows, 1)
	assert.Equal(t, "active", rows[0]["status"])

	require.NoError(t, users.Upsert(ctx,
		Row{"email": "grace@example.com", "status": "active"},
		[]string{"email"}))
	assert.Len(t, driver.rowsOf("users"), 2)
}

func TestInsertManyBypassesHooks(t *testing.T) {
	driver := newFakeDriver()
	def := &Definition{Table: "users", Fillable: []string{"name"}}
	fired := 0
	def.On(StageCreating, func(e *Entity) (HookOutcome, error) {
		fired++
		return Proceed, nil
	})
	users := NewModel(def, newFakeConnection(driver))

	require.NoError(t, users.InsertMany(context.Background(), []Row{
		{IDField: int64(1), "name": "ada"},
		{IDField: int64(2), "name": "grace"},
	}))
	assert.Len(t, driver.rowsOf("users"), 2)
	assert.Zero(t, fired)
}
