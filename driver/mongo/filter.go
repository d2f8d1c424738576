// Package mongo implements the anvil driver contract on MongoDB through
// the official mongo-driver. This file holds the pure translation layer:
// condition trees become bson filters, SQL LIKE patterns become anchored
// regexes, and the logical "id" field maps onto the native "_id".
package mongo

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/anvilkit/anvil/core"
)

// fieldName maps the logical primary key onto mongo's native key.
func fieldName(name string) string {
	if name == core.IDField {
		return "_id"
	}
	return name
}

// coerceID upgrades hex strings addressed at _id into ObjectIDs so
// filters built from normalized keys still match native documents.
func coerceID(field string, value any) any {
	if field != "_id" {
		return value
	}
	if text, ok := value.(string); ok {
		if objectID, err := primitive.ObjectIDFromHex(text); err == nil {
			return objectID
		}
	}
	return value
}

func coerceIDList(field string, valueList []any) []any {
	coercedList := make([]any, 0, len(valueList))
	for _, value := range valueList {
		coercedList = append(coercedList, coerceID(field, value))
	}
	return coercedList
}

// buildFilter compiles a condition tree into a bson filter. Operators a
// document store cannot express surface as configuration errors instead
// of silently matching nothing.
func buildFilter(condition *core.Condition) (bson.M, error) {
	if condition == nil {
		return bson.M{}, nil
	}
	if condition.Operator != nil && condition.Operator.IsLogical() {
		childFilterList := make([]bson.M, 0, len(condition.Children))
		for _, child := range condition.Children {
			childFilter, err := buildFilter(child)
			if err != nil {
				return nil, err
			}
			childFilterList = append(childFilterList, childFilter)
		}
		if len(childFilterList) == 0 {
			return bson.M{}, nil
		}
		switch *condition.Operator {
		case core.OpAnd:
			return bson.M{"$and": childFilterList}, nil
		case core.OpOr:
			return bson.M{"$or": childFilterList}, nil
		case core.OpNot:
			return bson.M{"$nor": childFilterList}, nil
		}
	}
	if condition.Operator == nil {
		return bson.M{}, nil
	}

	field := fieldName(condition.FieldName)
	switch *condition.Operator {
	case core.OpNil:
		return bson.M{field: bson.M{"$eq": nil}}, nil
	case core.OpNotNil:
		return bson.M{field: bson.M{"$ne": nil}}, nil
	case core.OpEq:
		return bson.M{field: coerceID(field, condition.Value)}, nil
	case core.OpNe:
		return bson.M{field: bson.M{"$ne": coerceID(field, condition.Value)}}, nil
	case core.OpGt:
		return bson.M{field: bson.M{"$gt": condition.Value}}, nil
	case core.OpGte:
		return bson.M{field: bson.M{"$gte": condition.Value}}, nil
	case core.OpLt:
		return bson.M{field: bson.M{"$lt": condition.Value}}, nil
	case core.OpLte:
		return bson.M{field: bson.M{"$lte": condition.Value}}, nil
	case core.OpLike:
		return bson.M{field: likeRegex(condition.Value, "")}, nil
	case core.OpNotLike:
		return bson.M{field: bson.M{"$not": likeRegex(condition.Value, "")}}, nil
	case core.OpILike:
		return bson.M{field: likeRegex(condition.Value, "i")}, nil
	case core.OpIn:
		valueList, _ := condition.Value.([]any)
		return bson.M{field: bson.M{"$in": coerceIDList(field, valueList)}}, nil
	case core.OpNotIn:
		valueList, _ := condition.Value.([]any)
		return bson.M{field: bson.M{"$nin": coerceIDList(field, valueList)}}, nil
	case core.OpBetween:
		bounds, _ := condition.Value.([]any)
		if len(bounds) != 2 {
			return nil, &core.ConfigError{Detail: "between requires exactly two bounds"}
		}
		return bson.M{field: bson.M{"$gte": bounds[0], "$lte": bounds[1]}}, nil
	case core.OpNotBetween:
		bounds, _ := condition.Value.([]any)
		if len(bounds) != 2 {
			return nil, &core.ConfigError{Detail: "between requires exactly two bounds"}
		}
		return bson.M{field: bson.M{"$not": bson.M{"$gte": bounds[0], "$lte": bounds[1]}}}, nil
	case core.OpRaw:
		return nil, &core.ConfigError{Detail: "raw SQL fragments are not supported by the mongo driver"}
	}
	return nil, &core.ConfigError{Detail: fmt.Sprintf("operator %q is not supported by the mongo driver", string(*condition.Operator))}
}

// likeRegex translates a SQL LIKE pattern into an anchored regex:
// % spans any run, _ matches a single character, everything else is
// matched literally.
func likeRegex(value any, options string) primitive.Regex {
	const percent = "\x00P\x00"
	const underscore = "\x00U\x00"
	pattern := fmt.Sprintf("%v", value)
	pattern = strings.ReplaceAll(pattern, "%", percent)
	pattern = strings.ReplaceAll(pattern, "_", underscore)
	pattern = regexp.QuoteMeta(pattern)
	pattern = strings.ReplaceAll(pattern, percent, ".*")
	pattern = strings.ReplaceAll(pattern, underscore, ".")
	return primitive.Regex{Pattern: "^" + pattern + "$", Options: options}
}

// groupKey renders the $group _id document for the grouped columns; a
// nil key collapses everything into a single group.
func groupKey(groupBy []string) any {
	if len(groupBy) == 0 {
		return nil
	}
	key := make(bson.M, len(groupBy))
	for _, column := range groupBy {
		key[fieldName(column)] = "$" + fieldName(column)
	}
	return key
}

// groupedSelectPipeline compiles a grouped read into an aggregation
// stage sequence: filter, group, surface the group keys as plain fields,
// then the having filter and the cursor modifiers. One output document
// per group.
func groupedSelectPipeline(desc *core.Description) (mongo.Pipeline, error) {
	filter, err := buildFilter(desc.Condition)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: filter}},
		bson.D{{Key: "$group", Value: bson.M{"_id": groupKey(desc.GroupBy)}}},
	}
	projection := bson.M{"_id": 0}
	for _, column := range desc.GroupBy {
		projection[fieldName(column)] = "$_id." + fieldName(column)
	}
	pipeline = append(pipeline, bson.D{{Key: "$project", Value: projection}})
	if desc.Having != nil {
		having, err := buildFilter(desc.Having)
		if err != nil {
			return nil, err
		}
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: having}})
	}
	if len(desc.Sort) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sortDocument(desc.Sort)}})
	}
	if desc.Offset > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: int64(desc.Offset)}})
	}
	if desc.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(desc.Limit)}})
	}
	return pipeline, nil
}

// aggregatePipeline compiles a scalar or grouped aggregate into a
// $match + $group sequence. Count accumulates $sum: 1; the group key
// comes from GroupBy, nil for the ungrouped single-result case.
func aggregatePipeline(desc *core.Description, agg core.Aggregate) (mongo.Pipeline, error) {
	filter, err := buildFilter(desc.Condition)
	if err != nil {
		return nil, err
	}
	var accumulator bson.M
	if agg.Kind == core.AggregateCount {
		accumulator = bson.M{"$sum": 1}
	} else {
		operator := map[core.AggregateKind]string{
			core.AggregateSum: "$sum",
			core.AggregateAvg: "$avg",
			core.AggregateMin: "$min",
			core.AggregateMax: "$max",
		}[agg.Kind]
		if operator == "" {
			return nil, &core.ConfigError{Detail: fmt.Sprintf("aggregate %q is not supported by the mongo driver", string(agg.Kind))}
		}
		accumulator = bson.M{operator: "$" + fieldName(agg.Column)}
	}
	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: filter}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":    groupKey(desc.GroupBy),
			"result": accumulator,
		}}},
	}, nil
}

// sortDocument renders Description sort entries into a bson.D, keeping
// the declared precedence order.
func sortDocument(sortList []core.Sort) bson.D {
	document := bson.D{}
	for _, sortItem := range sortList {
		direction := 1
		if sortItem.Order < 0 {
			direction = -1
		}
		document = append(document, bson.E{Key: fieldName(sortItem.FieldName), Value: direction})
	}
	return document
}

// writeDocument prepares a logical row for storage: "id" moves to "_id"
// (upgraded to an ObjectID when it is a valid hex string).
func writeDocument(values core.Row) bson.M {
	document := make(bson.M, len(values))
	for key, value := range values {
		field := fieldName(key)
		document[field] = coerceID(field, value)
	}
	return document
}

// readDocument exposes a stored document as a logical row. The native
// "_id" is kept and mirrored under "id" so engine code and user code see
// the same key either way.
func readDocument(document bson.M) core.Row {
	row := make(core.Row, len(document)+1)
	for key, value := range document {
		row[key] = value
	}
	if nativeID, ok := document["_id"]; ok {
		row[core.IDField] = nativeID
	}
	return row
}
