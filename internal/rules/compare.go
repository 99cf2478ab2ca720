package rules

import (
	"reflect"
	"strings"
)

// absent is what a Var evaluates to when the field is not in the fact map.
// It never compares equal, greater, or less than anything, itself included.
type absent struct{}

// Absent is the sentinel value for a missing field
var Absent = absent{}

// truth is a three-valued result. unknown comes from comparisons that
// touch Absent or mix incompatible types, and is never treated as true.
// Carrying it through Not keeps a negated schema gap from matching.
type truth int8

const (
	unknown truth = iota
	falsy
	truthy
)

func fromBool(b bool) truth {
	if b {
		return truthy
	}
	return falsy
}

// lookup resolves a dotted field path against the fact map
func lookup(facts map[string]any, field string) any {
	if v, ok := facts[field]; ok {
		return normalize(v)
	}
	if !strings.Contains(field, ".") {
		return Absent
	}
	var cur any = facts
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return Absent
		}
		cur, ok = m[part]
		if !ok {
			return Absent
		}
	}
	return normalize(cur)
}

// normalize maps the handful of Go types a fact map can hold onto
// bool, float64, string and []any, and everything else onto Absent.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return Absent
	case absent:
		return x
	case bool:
		return x
	case string:
		return x
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = normalize(el)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = el
		}
		return out
	case *bool:
		if x == nil {
			return Absent
		}
		return *x
	case *string:
		if x == nil {
			return Absent
		}
		return *x
	case *int:
		if x == nil {
			return Absent
		}
		return float64(*x)
	case *float64:
		if x == nil {
			return Absent
		}
		return *x
	default:
		return normalizeKind(reflect.ValueOf(v))
	}
}

// normalizeKind handles named types such as types.Difficulty by their underlying kind
func normalizeKind(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return Absent
		}
		return normalize(rv.Elem().Interface())
	}
	return Absent
}

// compare applies op to two normalized values
func compare(op Op, left, right any) truth {
	if left == Absent || right == Absent {
		return unknown
	}
	if op == OpIn {
		return member(left, right)
	}

	switch l := left.(type) {
	case bool:
		r, ok := right.(bool)
		if !ok {
			return unknown
		}
		switch op {
		case OpEq:
			return fromBool(l == r)
		case OpNe:
			return fromBool(l != r)
		}
		// booleans have no order
		return unknown
	case float64:
		r, ok := right.(float64)
		if !ok {
			return unknown
		}
		return ordered(op, cmpFloat(l, r))
	case string:
		r, ok := right.(string)
		if !ok {
			return unknown
		}
		return ordered(op, strings.Compare(l, r))
	}
	return unknown
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func ordered(op Op, c int) truth {
	switch op {
	case OpEq:
		return fromBool(c == 0)
	case OpNe:
		return fromBool(c != 0)
	case OpGt:
		return fromBool(c > 0)
	case OpGte:
		return fromBool(c >= 0)
	case OpLt:
		return fromBool(c < 0)
	case OpLte:
		return fromBool(c <= 0)
	}
	return unknown
}

// member tests needle ∈ haystack. The haystack must be a list, and only
// elements of the needle's own type are considered.
func member(needle, haystack any) truth {
	list, ok := haystack.([]any)
	if !ok {
		return unknown
	}
	if _, isList := needle.([]any); isList {
		return unknown
	}
	for _, el := range list {
		if compare(OpEq, needle, el) == truthy {
			return truthy
		}
	}
	return falsy
}
