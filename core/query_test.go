package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userDefForTest() *Definition {
	return (&Definition{
		Table:    "users",
		Fillable: []string{"name", "email", "age", "status"},
	}).Init()
}

func seedUsers(driver *fakeDriver) {
	driver.seed("users",
		Row{IDField: int64(1), "name": "ada", "age": int64(36), "status": "active"},
		Row{IDField: int64(2), "name": "grace", "age": int64(45), "status": "active"},
		Row{IDField: int64(3), "name": "linus", "age": int64(28), "status": "inactive"},
	)
}

func TestBuilderSnapshotFoldsClauses(t *testing.T) {
	conn := newFakeConnection(newFakeDriver())
	desc := NewBuilder(conn, userDefForTest()).
		Where(C("status").Eq("active")).
		Where(C("age").Gte(30)).
		OrWhere(C("name").Eq("linus")).
		OrderBy("age", -1).
		Limit(5).
		Offset(2).
		Snapshot()

	assert.Equal(t, "users", desc.Collection)
	require.NotNil(t, desc.Condition)
	// ((status AND age) OR name), preserving application order.
	assert.Equal(t, OpOr, *desc.Condition.Operator)
	require.Len(t, desc.Condition.Children, 2)
	assert.Equal(t, OpAnd, *desc.Condition.Children[0].Operator)
	assert.Equal(t, "name", desc.Condition.Children[1].FieldName)

	require.Len(t, desc.Sort, 1)
	assert.Equal(t, -1, desc.Sort[0].Order)
	assert.Equal(t, 5, desc.Limit)
	assert.Equal(t, 2, desc.Offset)
}

func TestBuilderOrWhereFoldsLeft(t *testing.T) {
	conn := newFakeConnection(newFakeDriver())
	desc := NewBuilder(conn, userDefForTest()).
		Where(C("status").Eq("active")).
		OrWhere(C("status").Eq("pending")).
		Where(C("age").Gte(30)).
		Snapshot()

	// (status=active OR status=pending) AND age>=30: each clause binds
	// to everything accumulated before it.
	require.NotNil(t, desc.Condition)
	assert.Equal(t, OpAnd, *desc.Condition.Operator)
	require.Len(t, desc.Condition.Children, 2)
	assert.Equal(t, OpOr, *desc.Condition.Children[0].Operator)
	assert.Equal(t, "age", desc.Condition.Children[1].FieldName)
}

func TestBuilderCloneIsolation(t *testing.T) {
	conn := newFakeConnection(newFakeDriver())
	base := NewBuilder(conn, userDefForTest()).Where(C("status").Eq("active"))

	derived := base.Clone().Where(C("age").Gt(30)).Limit(1)
	derived.Snapshot()

	desc := base.Snapshot()
	assert.Equal(t, 0, desc.Limit)
	assert.Equal(t, OpEq, *desc.Condition.Operator)
}

func TestBuilderGetHydratesEntities(t *testing.T) {
	driver := newFakeDriver()
	seedUsers(driver)
	conn := newFakeConnection(driver)

	users, err := NewBuilder(conn, userDefForTest()).
		Where(C("status").Eq("active")).
		OrderBy("age", 1).
		Get(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "ada", users[0].RawAttribute("name"))
	assert.Equal(t, "grace", users[1].RawAttribute("name"))
	assert.True(t, users[0].Exists())
	assert.False(t, users[0].IsDirty())
}

func TestBuilderFirstAndFind(t *testing.T) {
	driver := newFakeDriver()
	seedUsers(driver)
	conn := newFakeConnection(driver)
	def := userDefForTest()

	first, err := NewBuilder(conn, def).OrderBy("age", -1).First(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "grace", first.RawAttribute("name"))

	found, err := NewBuilder(conn, def).Find(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "linus", found.RawAttribute("name"))

	missing, err := NewBuilder(conn, def).Find(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBuilderFindOrFail(t *testing.T) {
	driver := newFakeDriver()
	seedUsers(driver)
	conn := newFakeConnection(driver)

	_, err := NewBuilder(conn, userDefForTest()).FindOrFail(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "users", notFound.Entity)
	assert.Equal(t, []any{99}, notFound.Keys)
}

func TestBuilderPluck(t *testing.T) {
	driver := newFakeDriver()
	seedUsers(driver)
	conn := newFakeConnection(driver)

	names, err := NewBuilder(conn, userDefForTest()).
		OrderBy("name", 1).
		Pluck(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, []any{"ada", "grace", "linus"}, names)
}

func TestBuilderAggregates(t *testing.T) {
	driver := newFakeDriver()
	seedUsers(driver)
	conn := newFakeConnection(driver)
	def := userDefForTest()

	count, err := NewBuilder(conn, def).Where(C("status").Eq("active")).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	sum, err := NewBuilder(conn, def).Sum(context.Background(), "age")
	require.NoError(t, err)
	assert.Equal(t, float64(109), sum)

	avg, err := NewBuilder(conn, def).Where(C("status").Eq("active")).Avg(context.Background(), "age")
	require.NoError(t, err)
	assert.InDelta(t, 40.5, avg, 0.001)
}

func TestBuilderChunkPagesInOrder(t *testing.T) {
	driver := newFakeDriver()
	for i := int64(1); i <= 7; i++ {
		driver.seed("users", Row{IDField: i, "name": "u", "status": "active"})
	}
	conn := newFakeConnection(driver)

	var seen []int64
	err := NewBuilder(conn, userDefForTest()).Chunk(context.Background(), 3, func(entities []*Entity) (bool, error) {
		for _, entity := range entities {
			seen = append(seen, entity.Key().(int64))
		}
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, seen)
}

func TestBuilderChunkRejectsBadSize(t *testing.T) {
	conn := newFakeConnection(newFakeDriver())
	err := NewBuilder(conn, userDefForTest()).Chunk(context.Background(), 0, func([]*Entity) (bool, error) {
		return true, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestBuilderPaginate(t *testing.T) {
	driver := newFakeDriver()
	for i := int64(1); i <= 10; i++ {
		driver.seed("users", Row{IDField: i, "status": "active"})
	}
	conn := newFakeConnection(driver)

	page, err := NewBuilder(conn, userDefForTest()).
		OrderBy(IDField, 1).
		Paginate(context.Background(), 2, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(10), page.Total)
	assert.Equal(t, 2, page.Current)
	require.Len(t, page.Entities, 4)
	assert.Equal(t, int64(5), page.Entities[0].Key())
}

func TestBuilderGlobalScopes(t *testing.T) {
	driver := newFakeDriver()
	seedUsers(driver)
	conn := newFakeConnection(driver)

	def := userDefForTest()
	def.AddScope("active", func(b *Builder) *Builder {
		return b.Where(C("status").Eq("active"))
	})

	scoped, err := NewBuilder(conn, def).Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, scoped, 2)

	all, err := NewBuilder(conn, def).WithoutGlobalScope("active").Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestBuilderSoftDeleteScope(t *testing.T) {
	driver := newFakeDriver()
	driver.seed("posts",
		Row{IDField: int64(1), "title": "up", "deleted_at": nil},
		Row{IDField: int64(2), "title": "gone", "deleted_at": "2026-01-01T00:00:00Z"},
	)
	conn := newFakeConnection(driver)
	def := (&Definition{Table: "posts", SoftDeletes: true}).Init()

	live, err := NewBuilder(conn, def).Get(context.Background())
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "up", live[0].RawAttribute("title"))

	everything, err := NewBuilder(conn, def).WithTrashed().Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, everything, 2)

	trashed, err := NewBuilder(conn, def).OnlyTrashed().Get(context.Background())
	require.NoError(t, err)
	require.Len(t, trashed, 1)
	assert.Equal(t, "gone", trashed[0].RawAttribute("title"))
}

func TestBuilderWithUnknownRelationPanics(t *testing.T) {
	conn := newFakeConnection(newFakeDriver())
	assert.Panics(t, func() {
		NewBuilder(conn, userDefForTest()).With("nope")
	})
	assert.Panics(t, func() {
		NewTableBuilder(conn, "users").With("anything")
	})
}

func TestBuilderExtension(t *testing.T) {
	ExtendBuilder("adults", func(b *Builder, args ...any) *Builder {
		return b.Where(C("age").Gte(18))
	})
	driver := newFakeDriver()
	driver.seed("users",
		Row{IDField: int64(1), "age": int64(12)},
		Row{IDField: int64(2), "age": int64(30)},
	)
	conn := newFakeConnection(driver)

	adults, err := NewBuilder(conn, userDefForTest()).Apply("adults").Get(context.Background())
	require.NoError(t, err)
	require.Len(t, adults, 1)
	assert.Equal(t, int64(2), adults[0].Key())

	assert.Panics(t, func() {
		NewBuilder(conn, userDefForTest()).Apply("unregistered")
	})
}

func TestBuilderUpdateAllAndDeleteAll(t *testing.T) {
	driver := newFakeDriver()
	seedUsers(driver)
	conn := newFakeConnection(driver)
	def := userDefForTest()

	affected, err := NewBuilder(conn, def).
		Where(C("status").Eq("active")).
		UpdateAll(context.Background(), Changes{"status": "archived"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	deleted, err := NewBuilder(conn, def).
		Where(C("status").Eq("archived")).
		DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Len(t, driver.rowsOf("users"), 1)
}

func TestBuilderDeleteAllSoftDeletes(t *testing.T) {
	driver := newFakeDriver()
	driver.seed("posts", Row{IDField: int64(1), "deleted_at": nil})
	conn := newFakeConnection(driver)
	def := (&Definition{Table: "posts", SoftDeletes: true}).Init()

	affected, err := NewBuilder(conn, def).DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// Row survives physically, carrying a deleted-at mark.
	rows := driver.rowsOf("posts")
	require.Len(t, rows, 1)
	assert.NotNil(t, rows[0]["deleted_at"])
}

func TestTableBuilderGetRequiresDefinition(t *testing.T) {
	conn := newFakeConnection(newFakeDriver())
	_, err := NewTableBuilder(conn, "users").Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}
