package state

import (
	"errors"
	"strings"

	"github.com/goliatone/go-state/internal/coerce"
)

// derivedRecord tracks the per-instance evaluation state of one derived
// property.
type derivedRecord struct {
	cached      any
	hasComputed bool
	stale       bool
}

// primeDerived eagerly evaluates every cached derived property once at
// construction so later dependency-triggered recomputes always have a
// baseline to compare against. Uncached properties stay lazy.
func (s *State) primeDerived() error {
	for _, name := range s.def.topo {
		s.derived[name] = &derivedRecord{}
	}
	for _, name := range s.def.topo {
		dd := s.def.derived[name]
		if dd.NoCache {
			continue
		}
		if _, err := s.getDerived(name, dd); err != nil {
			return err
		}
	}
	return nil
}

// getDerived returns the cached value when valid, computing otherwise.
func (s *State) getDerived(name string, dd DerivedDef) (any, error) {
	rec := s.derived[name]
	if rec == nil {
		rec = &derivedRecord{}
		s.derived[name] = rec
	}
	if !dd.NoCache && rec.hasComputed && !rec.stale {
		return rec.cached, nil
	}
	value, err := s.computeDerived(name, dd)
	if err != nil {
		return nil, err
	}
	rec.cached = value
	rec.hasComputed = true
	rec.stale = false
	return value, nil
}

// computeDerived evaluates a derived property against the current values of
// its declared dependencies. Evaluation must be free of side effects beyond
// the property's own cache slot.
func (s *State) computeDerived(name string, dd DerivedDef) (any, error) {
	snapshot, err := s.dependencySnapshot(dd.Deps)
	if err != nil {
		return nil, err
	}
	ctx := DerivedContext{Key: name, Snapshot: snapshot}
	if dd.Fn != nil {
		return dd.Fn(ctx)
	}
	return s.evaluateExpression(ctx.withDefaultNow().withDefaultMaps(), dd.Expr)
}

// dependencySnapshot gathers declared dependency values: local names at the
// top level, dotted child paths nested under the child key.
func (s *State) dependencySnapshot(deps []string) (map[string]any, error) {
	snapshot := map[string]any{}
	for _, dep := range deps {
		value, err := s.resolveDep(dep)
		if err != nil {
			return nil, err
		}
		insertPath(snapshot, dep, value)
	}
	return snapshot, nil
}

func (s *State) resolveDep(dep string) (any, error) {
	if !strings.Contains(dep, ".") {
		if dd, ok := s.def.derived[dep]; ok {
			return s.getDerived(dep, dd)
		}
		if child, ok := s.children[dep]; ok {
			return child.snapshotAttributes(), nil
		}
		if collection, ok := s.collections[dep]; ok {
			return collection, nil
		}
		return s.attrs[dep], nil
	}
	head, rest, _ := strings.Cut(dep, ".")
	child, ok := s.children[head]
	if !ok {
		return nil, &UnresolvablePathError{Path: dep}
	}
	return child.resolveDep(rest)
}

func insertPath(snapshot map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	node := snapshot
	for _, segment := range segments[:len(segments)-1] {
		next, ok := node[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[segment] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
}

// recomputeDerived walks the derived relation in dependency order after a
// batch commits. Triggers are the changed attribute keys or bubbled paths; a
// firing derived property becomes a trigger for its own dependents.
func (s *State) recomputeDerived(triggers []string) ([]Event, error) {
	if len(s.def.topo) == 0 {
		return nil, nil
	}
	fired := map[string]bool{}
	for _, trigger := range triggers {
		for _, prefix := range pathPrefixes(trigger) {
			fired[prefix] = true
		}
	}

	var events []Event
	var errs []error
	for _, name := range s.def.topo {
		dd := s.def.derived[name]
		hit := false
		for _, dep := range dd.Deps {
			if fired[dep] {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		rec := s.derived[name]
		if dd.NoCache {
			// Uncached properties announce every trigger; the value is
			// recomputed lazily on the next read.
			rec.stale = true
			events = append(events, Event{Kind: EventChange, Key: name})
			fired[name] = true
			continue
		}
		value, err := s.computeDerived(name, dd)
		if err != nil {
			// The cached value predates the trigger; mark it stale so the
			// next read re-evaluates instead of serving it.
			rec.stale = true
			errs = append(errs, err)
			continue
		}
		old := rec.cached
		wasComputed := rec.hasComputed
		rec.cached = value
		rec.hasComputed = true
		rec.stale = false
		if wasComputed && coerce.Equal(old, value) {
			continue
		}
		events = append(events, Event{Kind: EventChange, Key: name, Old: old, New: value})
		fired[name] = true
	}
	return events, errors.Join(errs...)
}

// pathPrefixes expands "a.b.c" into {"a", "a.b", "a.b.c"} so dependencies
// declared at any depth along a bubbled path observe the change.
func pathPrefixes(path string) []string {
	if !strings.Contains(path, ".") {
		return []string{path}
	}
	segments := strings.Split(path, ".")
	prefixes := make([]string, 0, len(segments))
	for i := range segments {
		prefixes = append(prefixes, strings.Join(segments[:i+1], "."))
	}
	return prefixes
}
