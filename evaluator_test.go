package state

import (
	"errors"
	"testing"
)

type fakeProgramCache struct {
	store map[string]any
	hits  int
	sets  int
}

func (c *fakeProgramCache) Get(key string) (any, bool) {
	value, ok := c.store[key]
	if ok {
		c.hits++
	}
	return value, ok
}

func (c *fakeProgramCache) Set(key string, value any) {
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = value
	c.sets++
}

func TestProgramCacheReusesCompilation(t *testing.T) {
	cache := &fakeProgramCache{}
	def := mustDefine(t, Blueprint{
		Props: map[string]PropertyDef{
			"n": {Type: TypeNumber, Default: 0},
		},
		Derived: map[string]DerivedDef{
			"double": {Deps: []string{"n"}, Expr: "n * 2.0"},
		},
	})
	s := mustNew(t, def, nil, WithProgramCache(cache))

	if cache.sets != 1 {
		t.Fatalf("expected one compilation from priming, got %d", cache.sets)
	}
	if err := s.Set("n", 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set("n", 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected recomputes to reuse the program, got %d compilations", cache.sets)
	}
	if cache.hits < 2 {
		t.Fatalf("expected cache hits on recompute, got %d", cache.hits)
	}
	if got, _ := s.Get("double"); got != float64(8) {
		t.Fatalf("expected 8, got %v", got)
	}
}

func TestEvaluatorLoggerObservesEvaluations(t *testing.T) {
	var events []EvaluatorLogEvent
	logger := EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
		events = append(events, event)
	})
	def := mustDefine(t, Blueprint{
		Props: map[string]PropertyDef{
			"n": {Type: TypeNumber, Default: 1},
		},
		Derived: map[string]DerivedDef{
			"double": {Deps: []string{"n"}, Expr: "n * 2.0"},
		},
	})
	s := mustNew(t, def, nil, WithEvaluatorLogger(logger))

	if len(events) != 1 {
		t.Fatalf("expected priming evaluation logged, got %d", len(events))
	}
	logged := events[0]
	if logged.Engine != "expr" || logged.Key != "double" || logged.Expr != "n * 2.0" {
		t.Fatalf("unexpected log event: %+v", logged)
	}
	if logged.Err != nil {
		t.Fatalf("expected successful evaluation, got %v", logged.Err)
	}

	if err := s.Set("n", 2); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected recompute logged, got %d", len(events))
	}
}

func TestCELRegistryFunctionCallable(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("threshold", func(args ...any) (any, error) {
		return float64(10), nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	def := mustDefine(t, Blueprint{
		Props: map[string]PropertyDef{
			"n": {Type: TypeNumber, Default: 12},
		},
		Derived: map[string]DerivedDef{
			"over": {Deps: []string{"n"}, Expr: `n > call("threshold")`},
		},
	})
	s := mustNew(t, def, nil,
		WithEvaluator(NewCELEvaluator(CELWithFunctionRegistry(registry))),
	)

	if got, err := s.Get("over"); err != nil || got != true {
		t.Fatalf("expected over true, got %v (%v)", got, err)
	}
	if err := s.Set("n", 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := s.Get("over"); err != nil || got != false {
		t.Fatalf("expected over false, got %v (%v)", got, err)
	}
}

func TestEvaluationErrorCarriesContext(t *testing.T) {
	def := mustDefine(t, Blueprint{
		Props: map[string]PropertyDef{
			"n": {Type: TypeNumber, Default: 1},
		},
		Derived: map[string]DerivedDef{
			"bad": {Deps: []string{"n"}, Expr: "n.."},
		},
	})
	_, err := def.New(nil)
	if err == nil {
		t.Fatalf("expected compile failure to surface at construction")
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T: %v", err, err)
	}
	if evalErr.Engine != "expr" || evalErr.Expr != "n.." {
		t.Fatalf("unexpected evaluation error: %+v", evalErr)
	}
}

func TestWrapEvaluationErrorUpgradesMetadata(t *testing.T) {
	base := errors.New("boom")
	wrapped := wrapEvaluationError("expr", "double", "n * 2", base)
	var evalErr *EvaluationError
	if !errors.As(wrapped, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T", wrapped)
	}
	if evalErr.Engine != "expr" || evalErr.Key != "double" || evalErr.Expr != "n * 2" {
		t.Fatalf("unexpected metadata: %+v", evalErr)
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("expected cause to unwrap")
	}

	// Re-wrapping fills blanks without clobbering.
	again := wrapEvaluationError("cel", "other", "x", wrapped)
	if !errors.As(again, &evalErr) || evalErr.Engine != "expr" || evalErr.Key != "double" {
		t.Fatalf("expected existing metadata preserved: %+v", evalErr)
	}

	if wrapEvaluationError("expr", "k", "e", nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}
