package engine

import (
	"fmt"
	"strings"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

// MatchTrigger reports whether a trigger matches an inbound event: type
// equality, then the exact-match filter, then every declared condition.
func MatchTrigger(t models.Trigger, ev models.Event) bool {
	if t.EventType != ev.Type {
		return false
	}
	for field, want := range t.Filter {
		got, ok := lookup(ev.Payload, field)
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return EvaluateConditions(t.Conditions, ev.Payload)
}

// EvaluateConditions reports whether every condition holds against the
// given data. An empty condition list holds trivially.
func EvaluateConditions(conds []models.Condition, data map[string]any) bool {
	for _, c := range conds {
		if !evaluateCondition(c, data) {
			return false
		}
	}
	return true
}

func evaluateCondition(c models.Condition, data map[string]any) bool {
	got, ok := lookup(data, c.Field)
	switch c.Operator {
	case models.OpExists:
		return ok
	case models.OpEq:
		return ok && valuesEqual(got, c.Value)
	case models.OpNeq:
		return !ok || !valuesEqual(got, c.Value)
	case models.OpContains:
		return ok && contains(got, c.Value)
	case models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		if !ok {
			return false
		}
		a, aok := asFloat(got)
		b, bok := asFloat(c.Value)
		if !aok || !bok {
			return false
		}
		switch c.Operator {
		case models.OpGt:
			return a > b
		case models.OpGte:
			return a >= b
		case models.OpLt:
			return a < b
		default:
			return a <= b
		}
	}
	return false
}

// lookup resolves a dotted field path against nested maps.
func lookup(data map[string]any, field string) (any, bool) {
	if data == nil {
		return nil, false
	}
	parts := strings.Split(field, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// valuesEqual compares with numeric coercion so 2 == 2.0 after a JSON
// round-trip.
func valuesEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprintf("%v", needle))
	case []any:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true
			}
		}
	case []string:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true
			}
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
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
	}
	return 0, false
}
