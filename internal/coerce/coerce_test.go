package coerce

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestValueCanonicalizes(t *testing.T) {
	cases := []struct {
		name string
		typ  string
		in   any
		want any
	}{
		{"string passthrough", "string", "hi", "hi"},
		{"json number to string", "string", json.Number("42"), "42"},
		{"int to number", "number", 7, float64(7)},
		{"numeric string", "number", " 3.5 ", 3.5},
		{"bool passthrough", "boolean", true, true},
		{"bool string", "boolean", "true", true},
		{"any passthrough", "any", struct{}{}, struct{}{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Value(tc.typ, tc.in)
			if err != nil {
				t.Fatalf("value: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v (%T), got %v (%T)", tc.want, tc.want, got, got)
			}
		})
	}
}

func TestValueRejectsUnsafeConversions(t *testing.T) {
	cases := []struct {
		typ string
		in  any
	}{
		{"string", 42},
		{"number", "abc"},
		{"boolean", 1},
		{"array", "not-a-list"},
		{"object", []any{}},
		{"date", "yesterday"},
	}
	for _, tc := range cases {
		if _, err := Value(tc.typ, tc.in); !errors.Is(err, ErrNotCoercible) {
			t.Fatalf("expected %v -> %s to fail with ErrNotCoercible, got %v", tc.in, tc.typ, err)
		}
	}
	if _, err := Value("integer", 1); err == nil {
		t.Fatalf("expected unknown type to be rejected")
	}
}

func TestDateConversions(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := Value("date", "2026-01-02T03:04:05Z")
	if err != nil {
		t.Fatalf("date: %v", err)
	}
	if !got.(time.Time).Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	millis := want.UnixMilli()
	got, err = Value("date", float64(millis))
	if err != nil {
		t.Fatalf("date from millis: %v", err)
	}
	if !got.(time.Time).Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestArrayConversionClones(t *testing.T) {
	in := []any{"a", map[string]any{"k": "v"}}
	got, err := Value("array", in)
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	out := got.([]any)
	out[0] = "changed"
	out[1].(map[string]any)["k"] = "changed"
	if in[0] != "a" || in[1].(map[string]any)["k"] != "v" {
		t.Fatalf("expected input untouched, got %v", in)
	}

	typed, err := Value("array", []string{"x", "y"})
	if err != nil {
		t.Fatalf("typed slice: %v", err)
	}
	if list := typed.([]any); len(list) != 2 || list[0] != "x" {
		t.Fatalf("expected converted slice, got %v", typed)
	}
}

func TestEqualSemantics(t *testing.T) {
	if !Equal([]any{"a", float64(1)}, []any{"a", float64(1)}) {
		t.Fatalf("expected deep array equality")
	}
	if Equal([]any{"a"}, []any{"b"}) {
		t.Fatalf("expected differing arrays to be unequal")
	}
	if !Equal(map[string]any{"k": "v"}, map[string]any{"k": "v"}) {
		t.Fatalf("expected deep object equality")
	}

	utc := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	other := utc.In(time.FixedZone("plus1", 3600))
	if !Equal(utc, other) {
		t.Fatalf("expected wall-clock-equal times to compare equal")
	}
	if Equal(utc, utc.Add(time.Second)) {
		t.Fatalf("expected differing times to be unequal")
	}
}

func TestCloneMapIsDeep(t *testing.T) {
	src := map[string]any{
		"nested": map[string]any{"k": "v"},
		"list":   []any{float64(1)},
	}
	dst := CloneMap(src)
	dst["nested"].(map[string]any)["k"] = "changed"
	dst["list"].([]any)[0] = float64(2)
	if src["nested"].(map[string]any)["k"] != "v" {
		t.Fatalf("expected deep clone of nested map")
	}
	if src["list"].([]any)[0] != float64(1) {
		t.Fatalf("expected deep clone of nested list")
	}
}
