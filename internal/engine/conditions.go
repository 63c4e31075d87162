// Package engine decides which notifications an event produces. It owns
// condition evaluation, firing gates and notification construction, and
// leaves persistence and delivery to its collaborators.
package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"notification-engine/internal/models"
)

// EvaluateConditions reports whether every condition matches the payload.
// An empty condition list matches everything. Evaluation never panics:
// malformed conditions, missing fields and type mismatches all evaluate
// to false for the comparison operators that need a type.
func EvaluateConditions(conditions []models.Condition, payload map[string]interface{}) bool {
	for _, cond := range conditions {
		if !evaluateCondition(cond, payload) {
			return false
		}
	}
	return true
}

func evaluateCondition(cond models.Condition, payload map[string]interface{}) bool {
	actual := resolveField(cond.Field, payload)
	return compare(cond.Operator, actual, cond.Value)
}

// resolveField walks a dot path through nested payload maps. A missing
// segment or a non-map intermediate resolves to nil.
func resolveField(path string, payload map[string]interface{}) interface{} {
	if path == "" {
		return nil
	}

	var current interface{} = payload
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = node[segment]
		if !ok {
			return nil
		}
	}
	return current
}

func compare(operator string, actual, expected interface{}) bool {
	switch operator {
	case models.OpEquals:
		return looseEqual(actual, expected)
	case models.OpNotEquals:
		return !looseEqual(actual, expected)
	case models.OpGreaterThan:
		a, aok := toFloat64(actual)
		b, bok := toFloat64(expected)
		return aok && bok && a > b
	case models.OpLessThan:
		a, aok := toFloat64(actual)
		b, bok := toFloat64(expected)
		return aok && bok && a < b
	case models.OpContains:
		return strings.Contains(toSearchText(actual), toSearchText(expected))
	case models.OpNotContains:
		return !strings.Contains(toSearchText(actual), toSearchText(expected))
	case models.OpIn:
		values, ok := toList(expected)
		if !ok {
			return false
		}
		return containsValue(values, actual)
	case models.OpNotIn:
		values, ok := toList(expected)
		if !ok {
			return false
		}
		return !containsValue(values, actual)
	default:
		// Unknown operators never match.
		return false
	}
}

// looseEqual compares numerically when both sides are numeric, otherwise
// by text rendering. Two nils are equal; nil never equals a value.
func looseEqual(actual, expected interface{}) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}

	if a, aok := toFloat64(actual); aok {
		if b, bok := toFloat64(expected); bok {
			return a == b
		}
	}

	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

func containsValue(values []interface{}, actual interface{}) bool {
	for _, v := range values {
		if looseEqual(actual, v) {
			return true
		}
	}
	return false
}

// toFloat64 coerces the numeric shapes JSON decoding and Go callers
// produce. Anything else, nil included, reports false.
func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toSearchText renders a value for case-insensitive substring matching.
// nil renders as the empty string.
func toSearchText(v interface{}) string {
	if v == nil {
		return ""
	}
	return strings.ToLower(fmt.Sprintf("%v", v))
}

// toList accepts the sequence shapes rule documents decode to.
func toList(v interface{}) ([]interface{}, bool) {
	switch list := v.(type) {
	case []interface{}:
		return list, true
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
