package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Operator compares one payload field against a condition value.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorContains    Operator = "contains"
	OperatorInList      Operator = "in_list"
)

// LogicOperator chains a condition with the accumulated result of the
// conditions before it.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

var ErrInvalidCondition = errors.New("invalid condition")

// Condition is one field comparison inside an event trigger's filter.
// FieldName supports dotted paths into nested payload objects.
type Condition struct {
	FieldName     string        `json:"field_name"               validate:"required"`
	Operator      Operator      `json:"operator"                 validate:"required,oneof=equals greater_than less_than contains in_list"`
	Value         string        `json:"value"`
	LogicOperator LogicOperator `json:"logic_operator,omitempty" validate:"omitempty,oneof=AND OR"`
}

func (c *Condition) Validate() error {
	if c.FieldName == "" {
		return fmt.Errorf("%w: field_name is required", ErrInvalidCondition)
	}

	switch c.Operator {
	case OperatorEquals, OperatorGreaterThan, OperatorLessThan, OperatorContains, OperatorInList:
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, c.Operator)
	}

	switch c.LogicOperator {
	case "", LogicAnd, LogicOr:
	default:
		return fmt.Errorf("%w: unknown logic operator %q", ErrInvalidCondition, c.LogicOperator)
	}

	return nil
}

// Evaluate applies the comparison against the payload. A missing field or a
// type mismatch evaluates to false rather than erroring, so a badly shaped
// event simply does not match.
func (c *Condition) Evaluate(payload map[string]any) bool {
	value, ok := lookupField(payload, c.FieldName)
	if !ok {
		return false
	}

	switch c.Operator {
	case OperatorEquals:
		return stringify(value) == c.Value
	case OperatorGreaterThan:
		left, leftOK := toFloat(value)
		right, rightOK := toFloat(c.Value)

		return leftOK && rightOK && left > right
	case OperatorLessThan:
		left, leftOK := toFloat(value)
		right, rightOK := toFloat(c.Value)

		return leftOK && rightOK && left < right
	case OperatorContains:
		return strings.Contains(stringify(value), c.Value)
	case OperatorInList:
		for _, item := range strings.Split(c.Value, ",") {
			if strings.TrimSpace(item) == stringify(value) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// EvaluateConditions folds the condition list left to right. Each condition's
// logic_operator combines it with the accumulated result; there is no
// operator precedence. An empty list always passes.
func EvaluateConditions(conditions []Condition, payload map[string]any) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}

	for _, condition := range conditions {
		if err := condition.Validate(); err != nil {
			return false, err
		}
	}

	result := conditions[0].Evaluate(payload)

	for _, condition := range conditions[1:] {
		current := condition.Evaluate(payload)

		if condition.LogicOperator == LogicOr {
			result = result || current
		} else {
			result = result && current
		}
	}

	return result, nil
}

// lookupField resolves a dotted path into nested map[string]any values.
func lookupField(payload map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")

	var current any = payload

	for _, part := range parts {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}
