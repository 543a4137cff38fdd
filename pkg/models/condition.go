// Package models provides condition expression evaluation for rule triggers
// and workflow steps.
package models

import (
	"fmt"
	"strings"
)

// ConditionSet maps a dotted field path to an expected value. The expected
// value is either a literal (strict equality) or an operator object such as
// {"$gt": 30}. All entries are ANDed.
type ConditionSet map[string]any

// Supported condition operators.
const (
	OpGt = "$gt"
	OpLt = "$lt"
	OpEq = "$eq"
	OpIn = "$in"
)

// Matches reports whether every condition in the set holds against the given
// document. A missing field, an unknown operator or a malformed expression
// never matches (fail closed).
func (c ConditionSet) Matches(doc map[string]any) bool {
	for path, expected := range c {
		value, ok := LookupPath(doc, path)
		if !ok {
			return false
		}

		if !matchValue(expected, value) {
			return false
		}
	}

	return true
}

// Validate checks the shape of the condition set at registration time so
// malformed operator objects are rejected before any event arrives.
func (c ConditionSet) Validate() error {
	for path, expected := range c {
		if path == "" {
			return fmt.Errorf("condition has empty field path")
		}

		operators, ok := expected.(map[string]any)
		if !ok {
			continue // literal equality, nothing to check
		}

		for op, operand := range operators {
			switch op {
			case OpGt, OpLt:
				if _, ok := toFloat(operand); !ok {
					return fmt.Errorf("condition %q: operator %s needs a numeric operand, got %T", path, op, operand)
				}
			case OpEq:
				// any literal is fine
			case OpIn:
				if _, ok := operand.([]any); !ok {
					return fmt.Errorf("condition %q: operator %s needs a list operand, got %T", path, op, operand)
				}
			default:
				return fmt.Errorf("condition %q: unknown operator %q", path, op)
			}
		}
	}

	return nil
}

// LookupPath resolves a dotted path ("user.visits.count") inside nested maps.
func LookupPath(doc map[string]any, path string) (any, bool) {
	var current any = doc

	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func matchValue(expected, value any) bool {
	operators, ok := expected.(map[string]any)
	if !ok {
		return literalEqual(expected, value)
	}

	for op, operand := range operators {
		switch op {
		case OpGt:
			a, aok := toFloat(value)
			b, bok := toFloat(operand)

			if !aok || !bok || !(a > b) {
				return false
			}
		case OpLt:
			a, aok := toFloat(value)
			b, bok := toFloat(operand)

			if !aok || !bok || !(a < b) {
				return false
			}
		case OpEq:
			if !literalEqual(operand, value) {
				return false
			}
		case OpIn:
			list, ok := operand.([]any)
			if !ok {
				return false
			}

			found := false

			for _, item := range list {
				if literalEqual(item, value) {
					found = true

					break
				}
			}

			if !found {
				return false
			}
		default:
			// Unknown operators fail closed.
			return false
		}
	}

	return true
}

// literalEqual compares two scalars, treating all numeric types as float64 so
// JSON-decoded payloads compare equal to Go ints in rule definitions.
func literalEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)

	if aok && bok {
		return af == bf
	}

	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
