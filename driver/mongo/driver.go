package mongo

import (
	"context"
	"fmt"
	"net/url"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anvilkit/anvil/core"
)

//region Driver

// Driver implements core.Driver on MongoDB through the official client.
type Driver struct {
	client          *mongo.Client
	defaultDatabase string
	config          core.Config
}

var _ core.Driver = (*Driver)(nil)

// New connects a mongo driver from a core.Config, mapping pool bounds
// and timeouts onto client options.
func New(ctx context.Context, config core.Config) (*Driver, error) {
	opts := mopt.Client().ApplyURI(buildURI(config))
	if config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(config.ConnectTimeout).
			SetServerSelectionTimeout(config.ConnectTimeout)
	}
	if config.PoolMax > 0 {
		opts.SetMaxPoolSize(uint64(config.PoolMax))
	}
	if config.PoolMin > 0 {
		opts.SetMinPoolSize(uint64(config.PoolMin))
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, &core.ConnectionError{Connection: "mongo", Cause: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, &core.ConnectionError{Connection: "mongo", Cause: err}
	}
	return &Driver{client: client, defaultDatabase: config.Database, config: config}, nil
}

// NewFromURI connects from a raw connection string.
func NewFromURI(ctx context.Context, uri, defaultDatabase string) (*Driver, error) {
	client, err := mongo.Connect(ctx, mopt.Client().ApplyURI(uri))
	if err != nil {
		return nil, &core.ConnectionError{Connection: "mongo", Cause: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, &core.ConnectionError{Connection: "mongo", Cause: err}
	}
	return &Driver{client: client, defaultDatabase: defaultDatabase}, nil
}

func buildURI(config core.Config) string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   fmt.Sprintf("%s:%d", config.Host, config.Port),
		Path:   "/",
	}
	if config.Username != "" {
		u.User = url.UserPassword(config.Username, config.Password)
		query := url.Values{}
		query.Set("authSource", "admin")
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Client exposes the underlying client, mainly for administration.
func (driver *Driver) Client() *mongo.Client { return driver.client }

func (driver *Driver) collection(target core.Collection) *mongo.Collection {
	database := driver.defaultDatabase
	if target.Database != "" {
		database = target.Database
	}
	return driver.client.Database(database).Collection(target.Name)
}

func (driver *Driver) descCollection(desc *core.Description) *mongo.Collection {
	return driver.collection(core.Collection{Database: desc.Database, Name: desc.Collection})
}

func (driver *Driver) Connect(ctx context.Context) error {
	return driver.client.Ping(ctx, nil)
}

func (driver *Driver) Ping(ctx context.Context) error {
	return driver.client.Ping(ctx, nil)
}

func (driver *Driver) Close(ctx context.Context) error {
	return driver.client.Disconnect(ctx)
}

//endregion

//region transaction plumbing

type mongoTransaction struct {
	session mongo.Session
}

func (t *mongoTransaction) Commit(ctx context.Context) error {
	defer t.session.EndSession(ctx)
	return t.session.CommitTransaction(ctx)
}

func (t *mongoTransaction) Rollback(ctx context.Context) error {
	defer t.session.EndSession(ctx)
	return t.session.AbortTransaction(ctx)
}

func (driver *Driver) Begin(ctx context.Context) (core.Transaction, error) {
	session, err := driver.client.StartSession()
	if err != nil {
		return nil, err
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &mongoTransaction{session: session}, nil
}

// withSession binds statements to the context-carried transaction session
// when one is present.
func (driver *Driver) withSession(ctx context.Context) context.Context {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if mongoTx, ok := tx.(*mongoTransaction); ok {
			return mongo.NewSessionContext(ctx, mongoTx.session)
		}
	}
	return ctx
}

//endregion

//region reads

func (driver *Driver) Select(ctx context.Context, desc *core.Description) ([]core.Row, error) {
	if desc.Lock != core.LockNone {
		return nil, &core.ConfigError{Detail: "row locking is not supported by the mongo driver"}
	}
	if desc.Having != nil && len(desc.GroupBy) == 0 {
		return nil, &core.ConfigError{Detail: "having requires group by on the mongo driver"}
	}
	ctx = driver.withSession(ctx)

	if len(desc.GroupBy) > 0 {
		if len(desc.Joins) > 0 {
			return nil, &core.ConfigError{Detail: "grouped joins are not supported by the mongo driver"}
		}
		return driver.selectGrouped(ctx, desc)
	}
	if len(desc.Joins) > 0 {
		return driver.selectWithLookup(ctx, desc)
	}

	filter, err := buildFilter(desc.Condition)
	if err != nil {
		return nil, err
	}

	if desc.Distinct && len(desc.Columns) == 1 {
		return driver.selectDistinct(ctx, desc, filter)
	}

	findOpts := mopt.Find()
	if len(desc.Columns) > 0 {
		projection := bson.D{}
		for _, column := range desc.Columns {
			projection = append(projection, bson.E{Key: fieldName(column), Value: 1})
		}
		findOpts.SetProjection(projection)
	}
	if len(desc.Sort) > 0 {
		findOpts.SetSort(sortDocument(desc.Sort))
	}
	if desc.Limit > 0 {
		findOpts.SetLimit(int64(desc.Limit))
	}
	if desc.Offset > 0 {
		findOpts.SetSkip(int64(desc.Offset))
	}

	cursor, err := driver.descCollection(desc).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	return collectCursor(ctx, cursor)
}

// selectGrouped runs the grouped-read pipeline: one row per distinct
// combination of the grouped columns.
func (driver *Driver) selectGrouped(ctx context.Context, desc *core.Description) ([]core.Row, error) {
	pipeline, err := groupedSelectPipeline(desc)
	if err != nil {
		return nil, err
	}
	cursor, err := driver.descCollection(desc).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return collectCursor(ctx, cursor)
}

func (driver *Driver) selectDistinct(ctx context.Context, desc *core.Description, filter bson.M) ([]core.Row, error) {
	column := desc.Columns[0]
	valueList, err := driver.descCollection(desc).Distinct(ctx, fieldName(column), filter)
	if err != nil {
		return nil, err
	}
	rowList := make([]core.Row, 0, len(valueList))
	for _, value := range valueList {
		rowList = append(rowList, core.Row{column: value})
	}
	return rowList, nil
}

// selectWithLookup expresses joins through an aggregation pipeline: one
// $lookup per join, unwound so each output document stays row-shaped.
func (driver *Driver) selectWithLookup(ctx context.Context, desc *core.Description) ([]core.Row, error) {
	filter, err := buildFilter(desc.Condition)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{}
	for _, join := range desc.Joins {
		if join.Kind == core.JoinCross {
			return nil, &core.ConfigError{Detail: "cross joins are not supported by the mongo driver"}
		}
		pipeline = append(pipeline, bson.D{{Key: "$lookup", Value: bson.M{
			"from":         join.Table,
			"localField":   fieldName(join.LocalColumn),
			"foreignField": fieldName(join.ForeignColumn),
			"as":           join.Table,
		}}})
		unwind := bson.M{"path": "$" + join.Table}
		if join.Kind == core.JoinLeft {
			unwind["preserveNullAndEmptyArrays"] = true
		}
		pipeline = append(pipeline, bson.D{{Key: "$unwind", Value: unwind}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$match", Value: filter}})
	if len(desc.Sort) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sortDocument(desc.Sort)}})
	}
	if desc.Offset > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: int64(desc.Offset)}})
	}
	if desc.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(desc.Limit)}})
	}
	cursor, err := driver.descCollection(desc).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return collectCursor(ctx, cursor)
}

func collectCursor(ctx context.Context, cursor *mongo.Cursor) ([]core.Row, error) {
	defer cursor.Close(ctx)
	var rowList []core.Row
	for cursor.Next(ctx) {
		var document bson.M
		if err := cursor.Decode(&document); err != nil {
			return nil, err
		}
		rowList = append(rowList, readDocument(document))
	}
	return rowList, cursor.Err()
}

func (driver *Driver) Aggregate(ctx context.Context, desc *core.Description, agg core.Aggregate) (any, error) {
	ctx = driver.withSession(ctx)
	if agg.Kind == core.AggregateCount && len(desc.GroupBy) == 0 {
		filter, err := buildFilter(desc.Condition)
		if err != nil {
			return nil, err
		}
		return driver.descCollection(desc).CountDocuments(ctx, filter)
	}

	pipeline, err := aggregatePipeline(desc, agg)
	if err != nil {
		return nil, err
	}
	cursor, err := driver.descCollection(desc).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	if !cursor.Next(ctx) {
		return nil, cursor.Err()
	}
	var document bson.M
	if err := cursor.Decode(&document); err != nil {
		return nil, err
	}
	return document["result"], nil
}

// Raw interprets the query as an extended JSON database command and runs
// it against the default database. Bind arguments have no meaning here.
func (driver *Driver) Raw(ctx context.Context, query string, args ...any) ([]core.Row, error) {
	if len(args) > 0 {
		return nil, &core.ConfigError{Detail: "the mongo driver does not accept bind arguments for raw commands"}
	}
	var command bson.D
	if err := bson.UnmarshalExtJSON([]byte(query), false, &command); err != nil {
		return nil, &core.ConfigError{Detail: "raw mongo commands must be extended JSON documents: " + err.Error()}
	}
	ctx = driver.withSession(ctx)
	var result bson.M
	if err := driver.client.Database(driver.defaultDatabase).RunCommand(ctx, command).Decode(&result); err != nil {
		return nil, err
	}
	return []core.Row{readDocument(result)}, nil
}

//endregion

//region writes

func (driver *Driver) Insert(ctx context.Context, target core.Collection, values core.Row) (any, error) {
	ctx = driver.withSession(ctx)
	_, supplied := values[core.IDField]
	result, err := driver.collection(target).InsertOne(ctx, writeDocument(values))
	if err != nil {
		return nil, err
	}
	if supplied {
		return nil, nil
	}
	return result.InsertedID, nil
}

func (driver *Driver) InsertMany(ctx context.Context, target core.Collection, values []core.Row) error {
	if len(values) == 0 {
		return nil
	}
	ctx = driver.withSession(ctx)
	documentList := make([]any, 0, len(values))
	for _, row := range values {
		documentList = append(documentList, writeDocument(row))
	}
	_, err := driver.collection(target).InsertMany(ctx, documentList)
	return err
}

func (driver *Driver) Update(ctx context.Context, target core.Collection, condition *core.Condition, changes core.Changes) (int64, error) {
	filter, err := buildFilter(condition)
	if err != nil {
		return 0, err
	}
	ctx = driver.withSession(ctx)
	result, err := driver.collection(target).UpdateMany(ctx, filter, bson.M{"$set": writeDocument(core.Row(changes))})
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (driver *Driver) Delete(ctx context.Context, target core.Collection, condition *core.Condition) (int64, error) {
	filter, err := buildFilter(condition)
	if err != nil {
		return 0, err
	}
	ctx = driver.withSession(ctx)
	result, err := driver.collection(target).DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// Upsert replaces the document matched by the conflict keys, inserting
// it when absent.
func (driver *Driver) Upsert(ctx context.Context, target core.Collection, values core.Row, conflictKeys []string) error {
	filter := bson.M{}
	for _, key := range conflictKeys {
		field := fieldName(key)
		filter[field] = coerceID(field, values[key])
	}
	ctx = driver.withSession(ctx)
	_, err := driver.collection(target).ReplaceOne(ctx, filter, writeDocument(values), mopt.Replace().SetUpsert(true))
	return err
}

//endregion
