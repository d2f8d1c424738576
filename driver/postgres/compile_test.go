package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvilkit/anvil/core"
)

func TestBuildConditionComparison(t *testing.T) {
	argList := []any{}
	sql := buildCondition(core.C("age").Gte(18), &argList)
	assert.Equal(t, `"age" >= $1`, sql)
	assert.Equal(t, []any{18}, argList)
}

func TestBuildConditionNested(t *testing.T) {
	condition := core.C("status").Eq("active").
		And(core.C("age").Gt(21)).
		Or(core.C("role").Eq("admin"))
	argList := []any{}
	sql := buildCondition(condition, &argList)
	assert.Equal(t, `(("status" = $1 AND "age" > $2) OR "role" = $3)`, sql)
	assert.Equal(t, []any{"active", 21, "admin"}, argList)
}

func TestBuildConditionNot(t *testing.T) {
	argList := []any{}
	sql := buildCondition(core.C("banned").Eq(true).Not(), &argList)
	assert.Equal(t, `NOT ("banned" = $1)`, sql)
}

func TestBuildConditionNullChecks(t *testing.T) {
	argList := []any{}
	assert.Equal(t, `"deleted_at" IS NULL`, buildCondition(core.C("deleted_at").Nil(), &argList))
	assert.Equal(t, `"deleted_at" IS NOT NULL`, buildCondition(core.C("deleted_at").NotNil(), &argList))
	assert.Empty(t, argList)
}

func TestBuildConditionInLists(t *testing.T) {
	argList := []any{}
	sql := buildCondition(core.C("id").In(1, 2, 3), &argList)
	assert.Equal(t, `"id" IN ($1, $2, $3)`, sql)
	assert.Equal(t, []any{1, 2, 3}, argList)

	// Empty lists degrade to constant predicates instead of invalid SQL.
	argList = []any{}
	assert.Equal(t, "1=0", buildCondition(core.C("id").In(), &argList))
	assert.Equal(t, "1=1", buildCondition(core.C("id").NotIn(), &argList))
	assert.Empty(t, argList)
}

func TestBuildConditionBetween(t *testing.T) {
	argList := []any{}
	sql := buildCondition(core.C("age").Between(18, 65), &argList)
	assert.Equal(t, `"age" BETWEEN $1 AND $2`, sql)
	assert.Equal(t, []any{18, 65}, argList)
}

func TestBuildConditionILike(t *testing.T) {
	argList := []any{}
	sql := buildCondition(core.C("name").ILike("ada%"), &argList)
	assert.Equal(t, `"name" ILIKE $1`, sql)
}

func TestBuildConditionRawRewritesPlaceholders(t *testing.T) {
	argList := []any{"kept"}
	condition := core.RawCondition("age + ? > ?", 1, 18)
	sql := buildCondition(condition, &argList)
	assert.Equal(t, "(age + $2 > $3)", sql)
	assert.Equal(t, []any{"kept", 1, 18}, argList)
}

func TestBuildConditionNilMatchesAll(t *testing.T) {
	argList := []any{}
	assert.Equal(t, "1=1", buildCondition(nil, &argList))
}

func TestCompileSelectFull(t *testing.T) {
	desc := &core.Description{
		Collection: "users",
		Columns:    []string{"id", "name"},
		Condition:  core.C("status").Eq("active"),
		Sort:       []core.Sort{{FieldName: "name", Order: 1}, {FieldName: "id", Order: -1}},
		Limit:      10,
		Offset:     20,
	}
	sql, argList := compileSelect(desc)
	assert.Equal(t,
		`SELECT "id", "name" FROM "users" WHERE "status" = $1 ORDER BY "name" ASC, "id" DESC LIMIT 10 OFFSET 20`,
		sql)
	assert.Equal(t, []any{"active"}, argList)
}

func TestCompileSelectDistinctAndDatabase(t *testing.T) {
	desc := &core.Description{
		Collection: "users",
		Database:   "app",
		Columns:    []string{"email"},
		Distinct:   true,
	}
	sql, _ := compileSelect(desc)
	assert.Equal(t, `SELECT DISTINCT "email" FROM "app"."users" WHERE 1=1`, sql)
}

func TestCompileSelectJoins(t *testing.T) {
	desc := &core.Description{
		Collection: "posts",
		Joins: []core.Join{
			{Kind: core.JoinInner, Table: "users", LocalColumn: "user_id", ForeignColumn: "id"},
			{Kind: core.JoinLeft, Table: "tags", LocalColumn: "id", ForeignColumn: "post_id"},
		},
	}
	sql, _ := compileSelect(desc)
	assert.Contains(t, sql, `INNER JOIN "users" ON "posts"."user_id" = "users"."id"`)
	assert.Contains(t, sql, `LEFT JOIN "tags" ON "posts"."id" = "tags"."post_id"`)
}

func TestCompileSelectGroupHaving(t *testing.T) {
	desc := &core.Description{
		Collection: "orders",
		Columns:    []string{"status"},
		Condition:  core.C("total").Gt(0),
		GroupBy:    []string{"status"},
		Having:     core.C("status").Ne("void"),
	}
	sql, argList := compileSelect(desc)
	assert.Equal(t,
		`SELECT "status" FROM "orders" WHERE "total" > $1 GROUP BY "status" HAVING "status" <> $2`,
		sql)
	assert.Equal(t, []any{0, "void"}, argList)
}

func TestCompileSelectLocks(t *testing.T) {
	desc := &core.Description{Collection: "jobs", Lock: core.LockForUpdate, SkipLocked: true}
	sql, _ := compileSelect(desc)
	assert.Contains(t, sql, "FOR UPDATE SKIP LOCKED")

	desc = &core.Description{Collection: "jobs", Lock: core.LockShared, NoWait: true}
	sql, _ = compileSelect(desc)
	assert.Contains(t, sql, "FOR SHARE NOWAIT")
}

func TestCompileAggregate(t *testing.T) {
	desc := &core.Description{Collection: "users", Condition: core.C("age").Gte(18)}

	sql, argList := compileAggregate(desc, core.Aggregate{Kind: core.AggregateCount})
	assert.Equal(t, `SELECT COUNT(*) FROM "users" WHERE "age" >= $1`, sql)
	assert.Equal(t, []any{18}, argList)

	sql, _ = compileAggregate(desc, core.Aggregate{Kind: core.AggregateAvg, Column: "age"})
	assert.Equal(t, `SELECT AVG("age") FROM "users" WHERE "age" >= $1`, sql)
}

func TestCompileAggregateDistinctCount(t *testing.T) {
	desc := &core.Description{Collection: "users", Distinct: true, Columns: []string{"email"}}
	sql, _ := compileAggregate(desc, core.Aggregate{Kind: core.AggregateCount})
	assert.Equal(t, `SELECT COUNT(DISTINCT "email") FROM "users" WHERE 1=1`, sql)

	sql, _ = compileAggregate(desc, core.Aggregate{Kind: core.AggregateCount, Column: "status"})
	assert.Equal(t, `SELECT COUNT(DISTINCT "status") FROM "users" WHERE 1=1`, sql)
}

func TestCompileAggregateCarriesJoinsAndGrouping(t *testing.T) {
	desc := &core.Description{
		Collection: "posts",
		Joins: []core.Join{
			{Kind: core.JoinInner, Table: "users", LocalColumn: "user_id", ForeignColumn: "id"},
		},
		GroupBy: []string{"user_id"},
	}
	sql, _ := compileAggregate(desc, core.Aggregate{Kind: core.AggregateCount})
	assert.Equal(t,
		`SELECT COUNT(*) FROM "posts" INNER JOIN "users" ON "posts"."user_id" = "users"."id" WHERE 1=1 GROUP BY "user_id"`,
		sql)
}

func TestCompileInsertDeterministicOrder(t *testing.T) {
	target := core.Collection{Name: "users"}
	values := core.Row{"name": "ada", "email": "ada@example.com", "age": 36}

	sql, argList := compileInsert(target, values, "id")
	assert.Equal(t,
		`INSERT INTO "users" ("age", "email", "name") VALUES ($1, $2, $3) RETURNING "id"`,
		sql)
	assert.Equal(t, []any{36, "ada@example.com", "ada"}, argList)
}

func TestCompileUpdate(t *testing.T) {
	target := core.Collection{Name: "users"}
	sql, argList := compileUpdate(target, core.C("id").Eq(7), core.Changes{"name": "grace", "age": 40})
	assert.Equal(t, `UPDATE "users" SET "age" = $1, "name" = $2 WHERE "id" = $3`, sql)
	assert.Equal(t, []any{40, "grace", 7}, argList)
}

func TestCompileUpsert(t *testing.T) {
	target := core.Collection{Name: "users"}
	values := core.Row{"email": "ada@example.com", "name": "ada"}

	sql, argList := compileUpsert(target, values, []string{"email"})
	require.Equal(t, []any{"ada@example.com", "ada"}, argList)
	assert.Equal(t,
		`INSERT INTO "users" ("email", "name") VALUES ($1, $2) ON CONFLICT ("email") DO UPDATE SET "name" = EXCLUDED."name"`,
		sql)
}

func TestCompileUpsertAllKeyColumns(t *testing.T) {
	target := core.Collection{Name: "role_user"}
	values := core.Row{"role_id": 1, "user_id": 2}

	sql, argList := compileUpsert(target, values, []string{"role_id", "user_id"})
	assert.Equal(t,
		`INSERT INTO "role_user" ("role_id", "user_id") VALUES ($1, $2) ON CONFLICT ("role_id", "user_id") DO NOTHING`,
		sql)
	assert.Equal(t, []any{1, 2}, argList)
}
