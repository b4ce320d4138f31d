package state

import (
	"errors"
	"testing"
	"time"
)

func TestNewAppliesDefaultsAndCoercion(t *testing.T) {
	def, err := Define(Blueprint{
		Name: "doc",
		Props: map[string]PropertyDef{
			"title": {Type: TypeString, Required: true},
			"count": {Type: TypeNumber, Default: 3},
			"tags":  {Type: TypeArray, Default: []any{"a"}},
			"at":    {Type: TypeDate},
		},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}

	s, err := def.New(map[string]any{
		"title": "hello",
		"at":    "2026-01-02T03:04:05Z",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if got, _ := s.Get("count"); got != float64(3) {
		t.Fatalf("expected defaulted count 3, got %v (%T)", got, got)
	}
	at, _ := s.Get("at")
	ts, ok := at.(time.Time)
	if !ok || !ts.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("expected parsed date, got %v", at)
	}
}

func TestNewRejectsMissingRequired(t *testing.T) {
	def, err := Define(Blueprint{
		Props: map[string]PropertyDef{
			"title": {Type: TypeString, Required: true},
		},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	_, err = def.New(nil)
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected schema violation, got %v", err)
	}
	var violation *SchemaViolationError
	if !errors.As(err, &violation) || violation.Key != "title" {
		t.Fatalf("expected violation on title, got %v", err)
	}
}

func TestDefaultFnProducesFreshValues(t *testing.T) {
	def, err := Define(Blueprint{
		Props: map[string]PropertyDef{
			"meta": {Type: TypeObject, DefaultFn: func() any {
				return map[string]any{"seen": false}
			}},
		},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}

	first, err := def.New(nil)
	if err != nil {
		t.Fatalf("new first: %v", err)
	}
	second, err := def.New(nil)
	if err != nil {
		t.Fatalf("new second: %v", err)
	}

	meta, _ := first.Get("meta")
	meta.(map[string]any)["seen"] = true
	other, _ := second.Get("meta")
	if other.(map[string]any)["seen"] != false {
		t.Fatalf("expected producer defaults to be independent per instance")
	}
}

func TestSetCoercesDeclaredTypes(t *testing.T) {
	def, err := Define(Blueprint{
		Props: map[string]PropertyDef{
			"n": {Type: TypeNumber},
			"b": {Type: TypeBoolean},
			"s": {Type: TypeString},
		},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	s, err := def.New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.Set("n", "42"); err != nil {
		t.Fatalf("set numeric string: %v", err)
	}
	if got, _ := s.Get("n"); got != float64(42) {
		t.Fatalf("expected 42, got %v (%T)", got, got)
	}
	if err := s.Set("b", "true"); err != nil {
		t.Fatalf("set boolean string: %v", err)
	}
	if got, _ := s.Get("b"); got != true {
		t.Fatalf("expected true, got %v", got)
	}

	if err := s.Set("s", 42); err == nil {
		t.Fatalf("expected number-to-string to be rejected")
	} else if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected schema violation, got %v", err)
	}
}

func TestNullHandling(t *testing.T) {
	def, err := Define(Blueprint{
		Props: map[string]PropertyDef{
			"strict":   {Type: TypeString},
			"nullable": {Type: TypeString, AllowNull: true},
		},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	s, err := def.New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.Set("strict", nil); !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected null rejection, got %v", err)
	}
	if err := s.Set("nullable", nil); err != nil {
		t.Fatalf("expected AllowNull to accept nil: %v", err)
	}
}

func TestToggleRequiresBoolean(t *testing.T) {
	def, err := Define(Blueprint{
		Props: map[string]PropertyDef{
			"done":  {Type: TypeBoolean},
			"count": {Type: TypeNumber},
		},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	s, err := def.New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// Absent values toggle from false.
	if err := s.Toggle("done"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if got, _ := s.Get("done"); got != true {
		t.Fatalf("expected toggled true, got %v", got)
	}
	if err := s.Toggle("done"); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if got, _ := s.Get("done"); got != false {
		t.Fatalf("expected toggled false, got %v", got)
	}

	if err := s.Toggle("count"); !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected toggle on number to be rejected, got %v", err)
	}
	var unknown *UnknownPropertyError
	if err := s.Toggle("missing"); !errors.As(err, &unknown) {
		t.Fatalf("expected unknown property error, got %v", err)
	}
}
