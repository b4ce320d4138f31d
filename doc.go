// Package state implements an observable state container: typed attribute
// stores defined once per type and instantiated many times, with synchronous
// change events, derived properties, and hierarchical composition.
//
// Responsibilities:
//   - Definition holds the merged, immutable type-level declaration built by
//     Define and layered with Extend; blueprints win key conflicts child-over-
//     parent and every derived dependency path is resolved and cycle-checked
//     before any instance exists.
//   - State is one instance: a validated, coerced attribute map plus owned
//     child instances and collections. Set/SetMany batches are atomic; either
//     every key validates or nothing commits.
//   - Derived properties recompute from declared dependencies only, cache by
//     default, and announce through the same event stream as attributes.
//     Expression-backed deriveds run on a pluggable evaluator (expr by
//     default, CEL and JS available).
//   - Child and collection events bubble to owners under dot-qualified keys,
//     so a subscriber at any ancestor observes "position.x" change exactly
//     once per committed batch.
//
// Event order within one batch is fixed: attribute changes in key order,
// derived changes in dependency order, then one generic per-batch event.
// Listeners run synchronously on the mutating goroutine; instances are
// single-threaded by contract.
//
// Activity hooks (pkg/activity) provide an out-of-band audit stream of
// created/changed events for persistence sinks such as go-users.
package state
