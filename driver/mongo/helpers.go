// Package driver provides the MongoDB document store client for the patchwork ORM.
// This file translates core conditions and update operation sets into BSON.
package driver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leandroluk/patchwork/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// updateOperatorList maps update kinds to MongoDB update operators.
var updateOperatorList = map[core.UpdateKind]string{
	core.UpdateSet:           "$set",
	core.UpdateIncrement:     "$inc",
	core.UpdateListAppend:    "$push",
	core.UpdateListRemove:    "$pull",
	core.UpdateListAddUnique: "$addToSet",
}

// buildUpdate groups an operation set into a MongoDB update document.
//
// Duplicate paths are collapsed first, since MongoDB rejects an update
// touching the same path twice. Merged list operations use $each, or $in for
// $pull. Operators appear in the order of
// their first operation, and fields keep their order within an operator.
//
// Example:
//
//	update, _ := buildUpdate(core.UpdateOperationSet{
//		core.Increment("age", int64(2)),
//		core.Set("name", "bob"),
//	})
//	// update == bson.D{{"$inc", bson.D{{"age", 2}}}, {"$set", bson.D{{"name", "bob"}}}}
func buildUpdate(operations core.UpdateOperationSet) (bson.D, error) {
	update := bson.D{}
	position := make(map[string]int)

	for _, operation := range operations.Collapse() {
		operator, ok := updateOperatorList[operation.Kind]
		if !ok {
			return nil, fmt.Errorf("mongo driver: unsupported update kind %s", operation.Kind)
		}
		value := toBSON(operation.Value)
		switch {
		case operation.Kind == core.UpdateIncrement:
			delta, err := toDelta(operation.Value)
			if err != nil {
				return nil, fmt.Errorf("mongo driver: %s: %w", operation.Path, err)
			}
			value = delta
		case operation.Kind.IsList():
			if elements, ok := operation.Value.(core.Elements); ok {
				value = toModifier(operation.Kind, elements)
			}
		}

		index, seen := position[operator]
		if !seen {
			index = len(update)
			position[operator] = index
			update = append(update, bson.E{Key: operator, Value: bson.D{}})
		}
		fieldList := update[index].Value.(bson.D)
		update[index].Value = append(fieldList, bson.E{Key: operation.Path, Value: value})
	}
	return update, nil
}

// toModifier wraps merged list elements for $push, $addToSet or $pull.
func toModifier(kind core.UpdateKind, elements core.Elements) bson.D {
	array := toBSON([]any(elements))
	if kind == core.UpdateListRemove {
		return bson.D{{Key: "$in", Value: array}}
	}
	return bson.D{{Key: "$each", Value: array}}
}

// toDelta converts an increment value to a BSON number. Decimal deltas travel
// as canonical strings and become Decimal128.
func toDelta(value any) (any, error) {
	switch delta := value.(type) {
	case int64, float64:
		return delta, nil
	case string:
		return primitive.ParseDecimal128(delta)
	default:
		return nil, fmt.Errorf("unsupported increment value %T", value)
	}
}

// toBSON converts a coerced value into its BSON form: documents become
// bson.D, lists bson.A and byte slices generic binary.
func toBSON(value any) any {
	switch typed := value.(type) {
	case core.Document:
		document := make(bson.D, 0, len(typed))
		for _, field := range typed {
			document = append(document, bson.E{Key: field.Key, Value: toBSON(field.Value)})
		}
		return document
	case []any:
		array := make(bson.A, 0, len(typed))
		for _, element := range typed {
			array = append(array, toBSON(element))
		}
		return array
	case []byte:
		return primitive.Binary{Subtype: 0x00, Data: typed}
	default:
		return value
	}
}

// buildFilter translates a condition tree into a MongoDB filter.
// A nil condition matches every document.
func buildFilter(condition *core.Condition) (bson.M, error) {
	if condition == nil {
		return bson.M{}, nil
	}
	if condition.Operator == nil {
		return nil, fmt.Errorf("mongo driver: condition on %q has no operator", condition.FieldName)
	}
	if condition.Operator.IsLogical() {
		if len(condition.Children) == 0 {
			return nil, fmt.Errorf("mongo driver: %s condition has no children", *condition.Operator)
		}
		childFilterList := make([]bson.M, 0, len(condition.Children))
		for _, child := range condition.Children {
			childFilter, err := buildFilter(child)
			if err != nil {
				return nil, err
			}
			childFilterList = append(childFilterList, childFilter)
		}
		switch *condition.Operator {
		case core.OpAnd:
			return bson.M{"$and": childFilterList}, nil
		case core.OpOr:
			return bson.M{"$or": childFilterList}, nil
		default:
			return bson.M{"$nor": childFilterList}, nil
		}
	}
	if len(condition.Children) > 0 {
		return nil, fmt.Errorf("mongo driver: %s cannot combine conditions", *condition.Operator)
	}

	fieldName := condition.FieldName
	value := toBSON(condition.Value)
	switch *condition.Operator {
	case core.OpNil:
		return bson.M{fieldName: bson.M{"$eq": nil}}, nil
	case core.OpEq:
		return bson.M{fieldName: value}, nil
	case core.OpGt:
		return bson.M{fieldName: bson.M{"$gt": value}}, nil
	case core.OpGte:
		return bson.M{fieldName: bson.M{"$gte": value}}, nil
	case core.OpLt:
		return bson.M{fieldName: bson.M{"$lt": value}}, nil
	case core.OpLte:
		return bson.M{fieldName: bson.M{"$lte": value}}, nil
	case core.OpLike:
		pattern := toMongoLikePattern(fmt.Sprintf("%v", condition.Value))
		return bson.M{fieldName: primitive.Regex{Pattern: pattern, Options: "i"}}, nil
	case core.OpIn:
		array, ok := value.(bson.A)
		if !ok {
			array = bson.A{value}
		}
		return bson.M{fieldName: bson.M{"$in": array}}, nil
	}
	return nil, fmt.Errorf("mongo driver: unsupported operator %s", *condition.Operator)
}

// toMongoLikePattern converts a SQL-like pattern into a MongoDB regex pattern.
//
// It replaces % with .* (wildcard for multiple characters) and
// _ with . (wildcard for a single character).
//
// Example:
//
//	input := "%admin_"
//	regex := toMongoLikePattern(input)
//	// regex == "^.*admin.$"
func toMongoLikePattern(input string) string {
	var pattern strings.Builder
	pattern.WriteString("^")
	for _, r := range input {
		switch r {
		case '%':
			pattern.WriteString(".*")
		case '_':
			pattern.WriteString(".")
		default:
			pattern.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	pattern.WriteString("$")
	return pattern.String()
}
