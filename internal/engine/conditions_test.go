package engine

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"notification-engine/internal/models"
)

func cond(field, operator string, value interface{}) models.Condition {
	return models.Condition{Field: field, Operator: operator, Value: value}
}

func TestEvaluateConditions_EmptyMatchesEverything(t *testing.T) {
	payload := map[string]interface{}{"rating": 1.0}

	assert.True(t, EvaluateConditions(nil, payload))
	assert.True(t, EvaluateConditions([]models.Condition{}, payload))
	assert.True(t, EvaluateConditions(nil, nil))
}

func TestEvaluateConditions_Operators(t *testing.T) {
	payload := map[string]interface{}{
		"rating":   2.0,
		"count":    7,
		"amount":   "19.99",
		"comment":  "The Service was SLOW today",
		"category": "food",
		"plan":     nil,
		"tags":     []interface{}{"vip", "regular"},
		"customer": map[string]interface{}{
			"name": "Dana",
			"address": map[string]interface{}{
				"city": "Austin",
			},
		},
	}

	tests := []struct {
		name      string
		condition models.Condition
		expected  bool
	}{
		{
			name:      "equals string match",
			condition: cond("category", models.OpEquals, "food"),
			expected:  true,
		},
		{
			name:      "equals numeric across types",
			condition: cond("count", models.OpEquals, 7.0),
			expected:  true,
		},
		{
			name:      "equals mismatch",
			condition: cond("category", models.OpEquals, "retail"),
			expected:  false,
		},
		{
			name:      "equals null matches missing field",
			condition: cond("missing", models.OpEquals, nil),
			expected:  true,
		},
		{
			name:      "equals null matches explicit null",
			condition: cond("plan", models.OpEquals, nil),
			expected:  true,
		},
		{
			name:      "equals missing field never matches value",
			condition: cond("missing", models.OpEquals, "anything"),
			expected:  false,
		},
		{
			name:      "not_equals mismatch",
			condition: cond("category", models.OpNotEquals, "retail"),
			expected:  true,
		},
		{
			name:      "not_equals missing field differs from value",
			condition: cond("missing", models.OpNotEquals, "anything"),
			expected:  true,
		},
		{
			name:      "greater_than numeric",
			condition: cond("rating", models.OpGreaterThan, 1),
			expected:  true,
		},
		{
			name:      "greater_than equal value",
			condition: cond("rating", models.OpGreaterThan, 2),
			expected:  false,
		},
		{
			name:      "greater_than numeric string field",
			condition: cond("amount", models.OpGreaterThan, 10),
			expected:  true,
		},
		{
			name:      "greater_than non numeric field",
			condition: cond("comment", models.OpGreaterThan, 3),
			expected:  false,
		},
		{
			name:      "greater_than missing field",
			condition: cond("missing", models.OpGreaterThan, 3),
			expected:  false,
		},
		{
			name:      "greater_than non numeric value",
			condition: cond("rating", models.OpGreaterThan, "high"),
			expected:  false,
		},
		{
			name:      "less_than numeric",
			condition: cond("rating", models.OpLessThan, 3),
			expected:  true,
		},
		{
			name:      "less_than missing field",
			condition: cond("missing", models.OpLessThan, 3),
			expected:  false,
		},
		{
			name:      "contains case insensitive",
			condition: cond("comment", models.OpContains, "slow"),
			expected:  true,
		},
		{
			name:      "contains no match",
			condition: cond("comment", models.OpContains, "fast"),
			expected:  false,
		},
		{
			name:      "contains missing field",
			condition: cond("missing", models.OpContains, "slow"),
			expected:  false,
		},
		{
			name:      "not_contains missing field",
			condition: cond("missing", models.OpNotContains, "slow"),
			expected:  true,
		},
		{
			name:      "contains empty needle on missing field",
			condition: cond("missing", models.OpContains, nil),
			expected:  true,
		},
		{
			name:      "in member",
			condition: cond("category", models.OpIn, []interface{}{"food", "retail"}),
			expected:  true,
		},
		{
			name:      "in numeric member across types",
			condition: cond("count", models.OpIn, []interface{}{5.0, 7.0}),
			expected:  true,
		},
		{
			name:      "in non member",
			condition: cond("category", models.OpIn, []interface{}{"retail", "services"}),
			expected:  false,
		},
		{
			name:      "in with non sequence value",
			condition: cond("category", models.OpIn, "food"),
			expected:  false,
		},
		{
			name:      "not_in non member",
			condition: cond("category", models.OpNotIn, []interface{}{"retail"}),
			expected:  true,
		},
		{
			name:      "not_in member",
			condition: cond("category", models.OpNotIn, []interface{}{"food"}),
			expected:  false,
		},
		{
			name:      "not_in with non sequence value",
			condition: cond("category", models.OpNotIn, "food"),
			expected:  false,
		},
		{
			name:      "unknown operator",
			condition: cond("category", "matches_regex", ".*"),
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EvaluateConditions([]models.Condition{tt.condition}, payload)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluateConditions_NestedFields(t *testing.T) {
	payload := map[string]interface{}{
		"customer": map[string]interface{}{
			"name": "Dana",
			"address": map[string]interface{}{
				"city": "Austin",
			},
		},
		"order": map[string]interface{}{
			"total": 120.5,
		},
	}

	tests := []struct {
		name      string
		condition models.Condition
		expected  bool
	}{
		{
			name:      "two levels deep",
			condition: cond("customer.name", models.OpEquals, "Dana"),
			expected:  true,
		},
		{
			name:      "three levels deep",
			condition: cond("customer.address.city", models.OpEquals, "Austin"),
			expected:  true,
		},
		{
			name:      "numeric leaf",
			condition: cond("order.total", models.OpGreaterThan, 100),
			expected:  true,
		},
		{
			name:      "missing leaf resolves to null",
			condition: cond("customer.address.zip", models.OpEquals, nil),
			expected:  true,
		},
		{
			name:      "path through scalar resolves to null",
			condition: cond("customer.name.first", models.OpEquals, nil),
			expected:  true,
		},
		{
			name:      "missing root segment",
			condition: cond("vendor.name", models.OpEquals, "Dana"),
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EvaluateConditions([]models.Condition{tt.condition}, payload)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluateConditions_AllMustMatch(t *testing.T) {
	payload := map[string]interface{}{
		"rating":   1.0,
		"category": "food",
	}

	passing := cond("rating", models.OpLessThan, 3)
	failing := cond("category", models.OpEquals, "retail")

	assert.True(t, EvaluateConditions([]models.Condition{passing}, payload))
	assert.False(t, EvaluateConditions([]models.Condition{passing, failing}, payload))
	assert.False(t, EvaluateConditions([]models.Condition{failing, passing}, payload))
	assert.True(t, EvaluateConditions([]models.Condition{
		passing,
		cond("category", models.OpEquals, "food"),
	}, payload))
}

// ==========================
// Property-Based Tests
// ==========================

// Evaluation must never panic, whatever shapes the payload carries.
func TestEvaluateConditions_PropertyNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	operators := []string{
		models.OpEquals, models.OpNotEquals,
		models.OpGreaterThan, models.OpLessThan,
		models.OpContains, models.OpNotContains,
		models.OpIn, models.OpNotIn,
		"bogus_operator",
	}

	values := []interface{}{
		nil,
		true,
		42,
		3.14,
		"text",
		"12.5",
		[]interface{}{"a", 1, nil},
		map[string]interface{}{"nested": "value"},
	}

	properties.Property("evaluation never panics", prop.ForAll(
		func(opIndex, fieldIndex, valueIndex int, deepPath bool) bool {
			field := "field"
			if deepPath {
				field = "field.nested.deeper"
			}
			condition := models.Condition{
				Field:    field,
				Operator: operators[opIndex%len(operators)],
				Value:    values[valueIndex%len(values)],
			}
			payload := map[string]interface{}{
				"field": values[fieldIndex%len(values)],
			}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("EvaluateConditions panicked: %v", r)
				}
			}()

			_ = EvaluateConditions([]models.Condition{condition}, payload)
			return true
		},
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Ordering operators require both sides numeric; anything else never matches.
func TestEvaluateConditions_PropertyOrderingRequiresNumbers(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	nonNumeric := []interface{}{
		nil,
		true,
		"not a number",
		[]interface{}{1, 2},
		map[string]interface{}{"n": 1},
	}

	properties.Property("ordering against non numeric field is false", prop.ForAll(
		func(valueIndex, threshold int, greater bool) bool {
			operator := models.OpLessThan
			if greater {
				operator = models.OpGreaterThan
			}
			payload := map[string]interface{}{
				"field": nonNumeric[valueIndex%len(nonNumeric)],
			}
			condition := models.Condition{Field: "field", Operator: operator, Value: threshold}

			return !EvaluateConditions([]models.Condition{condition}, payload)
		},
		gen.IntRange(0, 100),
		gen.IntRange(-1000, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// An empty condition list matches any payload at all.
func TestEvaluateConditions_PropertyEmptyAlwaysMatches(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("empty conditions match every payload", prop.ForAll(
		func(key string, value int, nested bool) bool {
			payload := map[string]interface{}{key: value}
			if nested {
				payload[key] = map[string]interface{}{key: value}
			}
			return EvaluateConditions(nil, payload)
		},
		gen.AlphaString(),
		gen.Int(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
