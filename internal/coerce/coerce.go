// Package coerce implements the value conversion and equality kernel shared
// by the schema layer. It converts loosely typed inputs (JSON payloads,
// literals supplied by callers) into the canonical runtime representation of
// each declared property type.
package coerce

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Canonical representations per declared type:
//
//	string  -> string
//	number  -> float64
//	boolean -> bool
//	array   -> []any
//	object  -> map[string]any
//	date    -> time.Time
//	any     -> unchanged
var ErrNotCoercible = fmt.Errorf("coerce: value not convertible")

// Value converts v into the canonical representation for typ. It returns
// ErrNotCoercible (wrapped) when no safe conversion exists. Nil handling is
// the caller's concern; Value rejects nil for every type except "any".
func Value(typ string, v any) (any, error) {
	switch typ {
	case "any", "":
		return v, nil
	case "string":
		return toString(v)
	case "number":
		return ToNumber(v)
	case "boolean":
		return toBool(v)
	case "array":
		return toArray(v)
	case "object":
		return toObject(v)
	case "date":
		return toDate(v)
	default:
		return nil, fmt.Errorf("coerce: unknown type %q", typ)
	}
}

func toString(v any) (any, error) {
	switch typed := v.(type) {
	case string:
		return typed, nil
	case json.Number:
		return typed.String(), nil
	}
	return nil, fmt.Errorf("%w: %T to string", ErrNotCoercible, v)
}

// ToNumber accepts every numeric kind, json.Number, and numeric strings.
func ToNumber(v any) (any, error) {
	switch typed := v.(type) {
	case float64:
		return typed, nil
	case float32:
		return float64(typed), nil
	case int:
		return float64(typed), nil
	case int8:
		return float64(typed), nil
	case int16:
		return float64(typed), nil
	case int32:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case uint:
		return float64(typed), nil
	case uint8:
		return float64(typed), nil
	case uint16:
		return float64(typed), nil
	case uint32:
		return float64(typed), nil
	case uint64:
		return float64(typed), nil
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q to number", ErrNotCoercible, typed.String())
		}
		return parsed, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q to number", ErrNotCoercible, typed)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("%w: %T to number", ErrNotCoercible, v)
}

func toBool(v any) (any, error) {
	switch typed := v.(type) {
	case bool:
		return typed, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err != nil {
			return nil, fmt.Errorf("%w: %q to boolean", ErrNotCoercible, typed)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("%w: %T to boolean", ErrNotCoercible, v)
}

func toArray(v any) (any, error) {
	if typed, ok := v.([]any); ok {
		return Clone(typed), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Clone(rv.Index(i).Interface())
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T to array", ErrNotCoercible, v)
}

func toObject(v any) (any, error) {
	if typed, ok := v.(map[string]any); ok {
		return Clone(typed), nil
	}
	return nil, fmt.Errorf("%w: %T to object", ErrNotCoercible, v)
}

func toDate(v any) (any, error) {
	switch typed := v.(type) {
	case time.Time:
		return typed, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, typed)
		if err != nil {
			return nil, fmt.Errorf("%w: %q to date", ErrNotCoercible, typed)
		}
		return parsed, nil
	case json.Number:
		millis, err := typed.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q to date", ErrNotCoercible, typed.String())
		}
		return time.UnixMilli(millis).UTC(), nil
	case float64:
		return time.UnixMilli(int64(typed)).UTC(), nil
	case int64:
		return time.UnixMilli(typed).UTC(), nil
	case int:
		return time.UnixMilli(int64(typed)).UTC(), nil
	}
	return nil, fmt.Errorf("%w: %T to date", ErrNotCoercible, v)
}

// Equal reports whether two canonical values are the same. Arrays and objects
// compare deeply, everything else by ordinary equality semantics.
func Equal(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

// Clone deep copies maps and slices so committed attribute values never share
// structure with caller-owned inputs.
func Clone(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[key] = Clone(value)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, value := range typed {
			out[i] = Clone(value)
		}
		return out
	default:
		return v
	}
}

// CloneMap is Clone specialised to the attribute map shape.
func CloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = Clone(value)
	}
	return out
}
