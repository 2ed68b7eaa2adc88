// Package postgres provides the PostgreSQL document store client for the patchwork ORM.
// This file translates core conditions and update operation sets into SQL.
// Scalars map to plain columns; lists and documents live in jsonb columns.
package postgres

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/leandroluk/patchwork/core"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// buildUpdate renders the SET clause of an operation set, appending its
// arguments to argList.
//
// Duplicate paths are collapsed first, since PostgreSQL rejects multiple
// assignments to the same column. List operations bind their elements as one
// jsonb array, so merged operations need no extra clause.
//
//   - SET        "c" = $n                (lists and documents as $n::jsonb)
//   - INC        "c" = COALESCE("c", 0) + $n   (decimal deltas as $n::numeric)
//   - PUSH       "c" = COALESCE("c", '[]'::jsonb) || $n::jsonb
//   - PULL       "c" = every element of "c" not in $n::jsonb
//   - ADD_TO_SET PUSH of the elements of $n::jsonb not yet in "c"
func buildUpdate(operations core.UpdateOperationSet, argList *[]any) (string, error) {
	setPartList := make([]string, 0, len(operations))
	for _, operation := range operations.Collapse() {
		column := fmt.Sprintf("%q", operation.Path)
		switch operation.Kind {
		case core.UpdateSet:
			arg, cast, err := toArg(operation.Value)
			if err != nil {
				return "", fmt.Errorf("postgres driver: %s: %w", operation.Path, err)
			}
			*argList = append(*argList, arg)
			setPartList = append(setPartList, fmt.Sprintf("%s = $%d%s", column, len(*argList), cast))

		case core.UpdateIncrement:
			cast := ""
			switch operation.Value.(type) {
			case int64, float64:
			case string:
				cast = "::numeric"
			default:
				return "", fmt.Errorf("postgres driver: %s: unsupported increment value %T", operation.Path, operation.Value)
			}
			*argList = append(*argList, operation.Value)
			setPartList = append(setPartList, fmt.Sprintf("%s = COALESCE(%s, 0) + $%d%s", column, column, len(*argList), cast))

		case core.UpdateListAppend, core.UpdateListRemove, core.UpdateListAddUnique:
			elements, ok := operation.Value.(core.Elements)
			if !ok {
				elements = core.Elements{operation.Value}
			}
			encoded, err := toJSON([]any(elements))
			if err != nil {
				return "", fmt.Errorf("postgres driver: %s: %w", operation.Path, err)
			}
			*argList = append(*argList, encoded)
			setPartList = append(setPartList, fmt.Sprintf("%s = %s", column, listExpression(operation.Kind, column, len(*argList))))

		default:
			return "", fmt.Errorf("postgres driver: unsupported update kind %s", operation.Kind)
		}
	}
	return strings.Join(setPartList, ", "), nil
}

// listExpression renders the new value of a jsonb list column. The
// placeholder holds the elements as a jsonb array.
func listExpression(kind core.UpdateKind, column string, placeholder int) string {
	current := fmt.Sprintf("COALESCE(%s, '[]'::jsonb)", column)
	elements := fmt.Sprintf("$%d::jsonb", placeholder)
	switch kind {
	case core.UpdateListRemove:
		return fmt.Sprintf("COALESCE((SELECT jsonb_agg(e ORDER BY i) FROM jsonb_array_elements(%s) WITH ORDINALITY AS t(e, i) "+
			"WHERE e NOT IN (SELECT jsonb_array_elements(%s))), '[]'::jsonb)", current, elements)
	case core.UpdateListAddUnique:
		return fmt.Sprintf("%s || COALESCE((SELECT jsonb_agg(e ORDER BY i) FROM jsonb_array_elements(%s) WITH ORDINALITY AS t(e, i) "+
			"WHERE e NOT IN (SELECT jsonb_array_elements(%s))), '[]'::jsonb)", current, elements, current)
	default:
		return fmt.Sprintf("%s || %s", current, elements)
	}
}

// toArg converts a coerced value into a query argument and the cast its
// placeholder needs.
func toArg(value any) (any, string, error) {
	switch typed := value.(type) {
	case core.Document, []any:
		encoded, err := toJSON(typed)
		return encoded, "::jsonb", err
	case primitive.ObjectID:
		return typed.Hex(), "", nil
	default:
		return value, "", nil
	}
}

// toJSON encodes a coerced value as JSON text. Documents become objects.
func toJSON(value any) (string, error) {
	encoded, err := json.Marshal(toJSONValue(value))
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func toJSONValue(value any) any {
	switch typed := value.(type) {
	case core.Document:
		object := make(map[string]any, len(typed))
		for _, field := range typed {
			object[field.Key] = toJSONValue(field.Value)
		}
		return object
	case []any:
		array := make([]any, 0, len(typed))
		for _, element := range typed {
			array = append(array, toJSONValue(element))
		}
		return array
	case primitive.ObjectID:
		return typed.Hex()
	default:
		return value
	}
}

// buildCondition renders a condition tree as a WHERE expression, appending
// its arguments to argList. A nil condition matches every row.
func buildCondition(condition *core.Condition, argList *[]any) (string, error) {
	if condition == nil {
		return "1=1", nil
	}
	if condition.Operator == nil {
		return "", fmt.Errorf("postgres driver: condition on %q has no operator", condition.FieldName)
	}
	if condition.Operator.IsLogical() {
		if len(condition.Children) == 0 {
			return "", fmt.Errorf("postgres driver: %s condition has no children", *condition.Operator)
		}
		partList := make([]string, 0, len(condition.Children))
		for _, child := range condition.Children {
			part, err := buildCondition(child, argList)
			if err != nil {
				return "", err
			}
			partList = append(partList, part)
		}
		switch *condition.Operator {
		case core.OpAnd:
			return "(" + strings.Join(partList, " AND ") + ")", nil
		case core.OpOr:
			return "(" + strings.Join(partList, " OR ") + ")", nil
		default:
			return "NOT (" + strings.Join(partList, " OR ") + ")", nil
		}
	}
	if len(condition.Children) > 0 {
		return "", fmt.Errorf("postgres driver: %s cannot combine conditions", *condition.Operator)
	}

	column := fmt.Sprintf("%q", condition.FieldName)
	bind := func(value any) (string, error) {
		arg, cast, err := toArg(value)
		if err != nil {
			return "", err
		}
		*argList = append(*argList, arg)
		return fmt.Sprintf("$%d%s", len(*argList), cast), nil
	}
	compare := func(symbol string) (string, error) {
		placeholder, err := bind(condition.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", column, symbol, placeholder), nil
	}

	switch *condition.Operator {
	case core.OpNil:
		return column + " IS NULL", nil
	case core.OpEq:
		return compare("=")
	case core.OpGt:
		return compare(">")
	case core.OpGte:
		return compare(">=")
	case core.OpLt:
		return compare("<")
	case core.OpLte:
		return compare("<=")
	case core.OpLike:
		return compare("ILIKE")
	case core.OpIn:
		valueList, ok := condition.Value.([]any)
		if !ok {
			valueList = []any{condition.Value}
		}
		if len(valueList) == 0 {
			return "1=0", nil
		}
		placeholderList := make([]string, 0, len(valueList))
		for _, value := range valueList {
			placeholder, err := bind(value)
			if err != nil {
				return "", err
			}
			placeholderList = append(placeholderList, placeholder)
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholderList, ", ")), nil
	}
	return "", fmt.Errorf("postgres driver: unsupported operator %s", *condition.Operator)
}
