package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anvilkit/anvil/core"
)

func TestBuildFilterComparisons(t *testing.T) {
	filter, err := buildFilter(core.C("age").Gte(18))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"age": bson.M{"$gte": 18}}, filter)

	filter, err = buildFilter(core.C("status").Eq("active"))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"status": "active"}, filter)
}

func TestBuildFilterLogical(t *testing.T) {
	condition := core.C("status").Eq("active").
		And(core.C("age").Gt(21)).
		Or(core.C("role").Eq("admin"))
	filter, err := buildFilter(condition)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$or": []bson.M{
		{"$and": []bson.M{
			{"status": "active"},
			{"age": bson.M{"$gt": 21}},
		}},
		{"role": "admin"},
	}}, filter)

	filter, err = buildFilter(core.C("banned").Eq(true).Not())
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$nor": []bson.M{{"banned": true}}}, filter)
}

func TestBuildFilterNullChecks(t *testing.T) {
	filter, err := buildFilter(core.C("deleted_at").Nil())
	require.NoError(t, err)
	assert.Equal(t, bson.M{"deleted_at": bson.M{"$eq": nil}}, filter)

	filter, err = buildFilter(core.C("deleted_at").NotNil())
	require.NoError(t, err)
	assert.Equal(t, bson.M{"deleted_at": bson.M{"$ne": nil}}, filter)
}

func TestBuildFilterCoercesHexIDs(t *testing.T) {
	objectID := primitive.NewObjectID()

	filter, err := buildFilter(core.C(core.IDField).Eq(objectID.Hex()))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": objectID}, filter)

	filter, err = buildFilter(core.C(core.IDField).In(objectID.Hex(), "not-hex"))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": bson.M{"$in": []any{objectID, "not-hex"}}}, filter)

	// Non-id fields keep hex strings as strings.
	filter, err = buildFilter(core.C("token").Eq(objectID.Hex()))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"token": objectID.Hex()}, filter)
}

func TestBuildFilterBetween(t *testing.T) {
	filter, err := buildFilter(core.C("age").Between(18, 65))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"age": bson.M{"$gte": 18, "$lte": 65}}, filter)

	filter, err = buildFilter(core.C("age").NotBetween(18, 65))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"age": bson.M{"$not": bson.M{"$gte": 18, "$lte": 65}}}, filter)
}

func TestBuildFilterRejectsRaw(t *testing.T) {
	_, err := buildFilter(core.RawCondition("age > ?", 18))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestBuildFilterNilMatchesAll(t *testing.T) {
	filter, err := buildFilter(nil)
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, filter)
}

func TestLikeRegexTranslation(t *testing.T) {
	regex := likeRegex("ada%", "")
	assert.Equal(t, "^ada.*$", regex.Pattern)
	assert.Empty(t, regex.Options)

	regex = likeRegex("a_a", "i")
	assert.Equal(t, "^a.a$", regex.Pattern)
	assert.Equal(t, "i", regex.Options)

	// Regex metacharacters in the pattern are matched literally.
	regex = likeRegex("1+1=2.%", "")
	assert.Equal(t, `^1\+1=2\..*$`, regex.Pattern)
}

func TestBuildFilterLikeOperators(t *testing.T) {
	filter, err := buildFilter(core.C("name").ILike("ada%"))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"name": primitive.Regex{Pattern: "^ada.*$", Options: "i"}}, filter)

	filter, err = buildFilter(core.C("name").NotLike("ada%"))
	require.NoError(t, err)
	assert.Equal(t, bson.M{"name": bson.M{"$not": primitive.Regex{Pattern: "^ada.*$"}}}, filter)
}

func TestGroupKey(t *testing.T) {
	assert.Nil(t, groupKey(nil))
	assert.Equal(t, bson.M{"status": "$status"}, groupKey([]string{"status"}))
	assert.Equal(t,
		bson.M{"status": "$status", "_id": "$_id"},
		groupKey([]string{"status", core.IDField}))
}

func TestGroupedSelectPipeline(t *testing.T) {
	desc := &core.Description{
		Collection: "orders",
		Condition:  core.C("total").Gt(0),
		GroupBy:    []string{"status"},
		Having:     core.C("status").Ne("void"),
		Sort:       []core.Sort{{FieldName: "status", Order: 1}},
		Limit:      5,
	}
	pipeline, err := groupedSelectPipeline(desc)
	require.NoError(t, err)
	require.Len(t, pipeline, 6)

	assert.Equal(t, bson.D{{Key: "$match", Value: bson.M{"total": bson.M{"$gt": 0}}}}, pipeline[0])
	assert.Equal(t, bson.D{{Key: "$group", Value: bson.M{"_id": bson.M{"status": "$status"}}}}, pipeline[1])
	assert.Equal(t, bson.D{{Key: "$project", Value: bson.M{"_id": 0, "status": "$_id.status"}}}, pipeline[2])
	assert.Equal(t, bson.D{{Key: "$match", Value: bson.M{"status": bson.M{"$ne": "void"}}}}, pipeline[3])
	assert.Equal(t, bson.D{{Key: "$sort", Value: bson.D{{Key: "status", Value: 1}}}}, pipeline[4])
	assert.Equal(t, bson.D{{Key: "$limit", Value: int64(5)}}, pipeline[5])
}

func TestGroupedSelectPipelineRejectsRawCondition(t *testing.T) {
	desc := &core.Description{
		Collection: "orders",
		Condition:  core.RawCondition("status = ?", "open"),
		GroupBy:    []string{"status"},
	}
	_, err := groupedSelectPipeline(desc)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestAggregatePipelineUngrouped(t *testing.T) {
	desc := &core.Description{Collection: "orders", Condition: core.C("total").Gt(0)}
	pipeline, err := aggregatePipeline(desc, core.Aggregate{Kind: core.AggregateAvg, Column: "total"})
	require.NoError(t, err)
	require.Len(t, pipeline, 2)
	assert.Equal(t, bson.D{{Key: "$group", Value: bson.M{
		"_id":    nil,
		"result": bson.M{"$avg": "$total"},
	}}}, pipeline[1])
}

func TestAggregatePipelineGrouped(t *testing.T) {
	desc := &core.Description{Collection: "orders", GroupBy: []string{"status"}}

	pipeline, err := aggregatePipeline(desc, core.Aggregate{Kind: core.AggregateCount})
	require.NoError(t, err)
	require.Len(t, pipeline, 2)
	assert.Equal(t, bson.D{{Key: "$group", Value: bson.M{
		"_id":    bson.M{"status": "$status"},
		"result": bson.M{"$sum": 1},
	}}}, pipeline[1])

	pipeline, err = aggregatePipeline(desc, core.Aggregate{Kind: core.AggregateSum, Column: "total"})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$group", Value: bson.M{
		"_id":    bson.M{"status": "$status"},
		"result": bson.M{"$sum": "$total"},
	}}}, pipeline[1])
}

func TestSortDocumentKeepsPrecedence(t *testing.T) {
	document := sortDocument([]core.Sort{
		{FieldName: "name", Order: 1},
		{FieldName: core.IDField, Order: -1},
	})
	assert.Equal(t, bson.D{
		{Key: "name", Value: 1},
		{Key: "_id", Value: -1},
	}, document)
}

func TestWriteDocumentMovesID(t *testing.T) {
	objectID := primitive.NewObjectID()
	document := writeDocument(core.Row{core.IDField: objectID.Hex(), "name": "ada"})
	assert.Equal(t, bson.M{"_id": objectID, "name": "ada"}, document)
}

func TestReadDocumentMirrorsID(t *testing.T) {
	objectID := primitive.NewObjectID()
	row := readDocument(bson.M{"_id": objectID, "name": "ada"})
	assert.Equal(t, objectID, row[core.IDField])
	assert.Equal(t, objectID, row["_id"])
	assert.Equal(t, "ada", row["name"])
}
