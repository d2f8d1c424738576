package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anvilkit/anvil/core"
	"github.com/anvilkit/anvil/schema"
)

// Driver implements schema.DDL on collections and their indexes. Mongo
// has no column catalog, so column operations translate to document
// updates where they can and to no-ops where the store is schemaless.
var _ schema.DDL = (*Driver)(nil)

func (driver *Driver) database() string { return driver.defaultDatabase }

func (driver *Driver) namedCollection(name string) core.Collection {
	return core.Collection{Database: driver.defaultDatabase, Name: name}
}

func (driver *Driver) CreateTable(ctx context.Context, blueprint *schema.Blueprint) error {
	if err := driver.client.Database(driver.database()).CreateCollection(ctx, blueprint.Table); err != nil {
		return err
	}
	// Unique columns become unique indexes; everything else is schemaless.
	for _, column := range blueprint.Columns {
		if !column.Unique || column.PrimaryKey {
			continue
		}
		name := blueprint.Table + "_" + column.Name + "_unique"
		if err := driver.CreateIndex(ctx, blueprint.Table, name, []string{column.Name}, true); err != nil {
			return err
		}
	}
	return nil
}

func (driver *Driver) DropTable(ctx context.Context, table string) error {
	return driver.collection(driver.namedCollection(table)).Drop(ctx)
}

func (driver *Driver) RenameTable(ctx context.Context, from, to string) error {
	command := bson.D{
		{Key: "renameCollection", Value: driver.database() + "." + from},
		{Key: "to", Value: driver.database() + "." + to},
	}
	return driver.client.Database("admin").RunCommand(ctx, command).Err()
}

func (driver *Driver) HasTable(ctx context.Context, table string) (bool, error) {
	nameList, err := driver.client.Database(driver.database()).
		ListCollectionNames(ctx, bson.M{"name": table})
	if err != nil {
		return false, err
	}
	return len(nameList) > 0, nil
}

// AddColumn backfills the new field on existing documents when a default
// is declared; otherwise documents gain the field lazily on write.
func (driver *Driver) AddColumn(ctx context.Context, table string, column *schema.Column) error {
	if !column.HasDefault {
		return nil
	}
	_, err := driver.collection(driver.namedCollection(table)).UpdateMany(ctx,
		bson.M{column.Name: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{column.Name: column.Default}})
	return err
}

func (driver *Driver) DropColumn(ctx context.Context, table, column string) error {
	_, err := driver.collection(driver.namedCollection(table)).UpdateMany(ctx,
		bson.M{}, bson.M{"$unset": bson.M{column: ""}})
	return err
}

func (driver *Driver) CreateIndex(ctx context.Context, table, name string, columns []string, unique bool) error {
	keys := bson.D{}
	for _, column := range columns {
		keys = append(keys, bson.E{Key: fieldName(column), Value: 1})
	}
	indexOpts := mopt.Index().SetName(name)
	if unique {
		indexOpts.SetUnique(true)
	}
	model := mongo.IndexModel{Keys: keys, Options: indexOpts}
	_, err := driver.collection(driver.namedCollection(table)).Indexes().CreateOne(ctx, model)
	return err
}

func (driver *Driver) DropIndex(ctx context.Context, table, name string) error {
	_, err := driver.collection(driver.namedCollection(table)).Indexes().DropOne(ctx, name)
	return err
}

func (driver *Driver) ListIndexes(ctx context.Context, table string) ([]schema.Index, error) {
	cursor, err := driver.collection(driver.namedCollection(table)).Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	indexList := []schema.Index{}
	for cursor.Next(ctx) {
		var specification struct {
			Name   string `bson:"name"`
			Key    bson.D `bson:"key"`
			Unique bool   `bson:"unique"`
		}
		if err := cursor.Decode(&specification); err != nil {
			return nil, err
		}
		columnList := make([]string, 0, len(specification.Key))
		for _, key := range specification.Key {
			columnList = append(columnList, key.Key)
		}
		indexList = append(indexList, schema.Index{
			Name:    specification.Name,
			Table:   table,
			Columns: columnList,
			Unique:  specification.Unique || specification.Name == "_id_",
			Primary: specification.Name == "_id_",
		})
	}
	return indexList, cursor.Err()
}
