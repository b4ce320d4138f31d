package state

import (
	"strings"
	"time"
)

// DerivedContext carries the inputs a derived computation may read: the
// values of its declared dependencies and nothing else. Local dependencies
// appear under their own name; child-path dependencies appear nested under
// the child key, mirroring the dotted path.
type DerivedContext struct {
	Key      string
	Snapshot map[string]any
	Now      *time.Time
	Metadata map[string]any
}

func (ctx DerivedContext) withDefaultNow() DerivedContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx DerivedContext) withDefaultMaps() DerivedContext {
	if ctx.Snapshot == nil {
		ctx.Snapshot = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx DerivedContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

// Get resolves a dependency value by name or dotted path. It returns nil
// when the path was not part of the declared dependency set.
func (ctx DerivedContext) Get(path string) any {
	if path == "" {
		return nil
	}
	var current any = ctx.Snapshot
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
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

// Number reads a dependency as float64, returning 0 for absent or non-number
// values.
func (ctx DerivedContext) Number(path string) float64 {
	value, _ := ctx.Get(path).(float64)
	return value
}

// String reads a dependency as string.
func (ctx DerivedContext) String(path string) string {
	value, _ := ctx.Get(path).(string)
	return value
}

// Bool reads a dependency as bool.
func (ctx DerivedContext) Bool(path string) bool {
	value, _ := ctx.Get(path).(bool)
	return value
}

// Evaluator executes derived expressions against a dependency snapshot.
type Evaluator interface {
	Evaluate(ctx DerivedContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx DerivedContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}
