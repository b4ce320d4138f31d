package state

import (
	"context"
	"fmt"

	"github.com/goliatone/go-state/pkg/activity"
)

// bindChildren instantiates every declared child from its constructor seed
// and wires the relay that bubbles the child's change events to this
// instance under dot-qualified keys. Children inherit the owner's instance
// configuration.
func (s *State) bindChildren(seeds map[string]map[string]any, opts []Option) error {
	for _, key := range sortedKeys(s.def.children) {
		child, err := s.def.children[key].New(seeds[key], opts...)
		if err != nil {
			return fmt.Errorf("state: construct child %q: %w", key, err)
		}
		s.children[key] = child
		s.bindChildRelay(key, child)
	}
	return nil
}

// bindChildRelay subscribes to the full event stream of an owned child. Each
// keyed event re-emits here prefixed by the child key; the child's generic
// per-batch event closes the relayed batch: dependent derived properties
// recompute, then this instance emits its own generic event, so ancestors at
// every depth observe one consistent bubbled batch.
func (s *State) bindChildRelay(key string, child *State) {
	var collected []string
	child.events.observe(func(event Event) {
		if event.Key == "" {
			paths := collected
			collected = nil
			s.relayFlush(paths)
			return
		}
		kind := event.Kind
		if kind == EventChange {
			kind = EventChildChange
		}
		path := key + "." + event.Key
		collected = append(collected, path)
		s.emitDepth++
		s.events.emit(Event{Kind: kind, Key: path, Old: event.Old, New: event.New})
		s.emitDepth--
		s.emitChildActivity(path, event)
	})
}

// bindCollections builds every declared collection from its seed records and
// wires the member-event relay.
func (s *State) bindCollections(seeds map[string][]map[string]any) error {
	for _, key := range sortedKeys(s.def.collections) {
		collection, err := s.def.collections[key].Factory(seeds[key])
		if err != nil {
			return fmt.Errorf("state: construct collection %q: %w", key, err)
		}
		if collection == nil {
			return fmt.Errorf("state: collection factory %q returned nil", key)
		}
		s.collections[key] = collection
		s.bindCollectionRelay(key, collection)
	}
	return nil
}

// bindCollectionRelay re-emits member add/remove/change events prefixed by
// the collection key. Collections have no batch contract, so each event
// flushes immediately.
func (s *State) bindCollectionRelay(key string, collection Collection) {
	collection.Subscribe(func(event Event) {
		path := key
		if event.Key != "" {
			path = key + "." + event.Key
		}
		kind := event.Kind
		if kind == EventChange {
			kind = EventChildChange
		}
		s.emitDepth++
		s.events.emit(Event{Kind: kind, Key: path, Old: event.Old, New: event.New})
		s.emitDepth--
		s.emitChildActivity(path, event)
		s.relayFlush([]string{path})
	})
}

// relayFlush runs the derived graph against bubbled paths and closes the
// relayed batch with this instance's generic change event. A flush arriving
// while a batch here is mid-emission (a listener mutated an owned child) is
// queued so the open batch finishes committing and notifying first.
func (s *State) relayFlush(paths []string) {
	if s.emitDepth > 0 {
		s.pendingFlush = append(s.pendingFlush, paths)
		return
	}
	s.flushBubbled(paths)
	if err := s.drainPending(); err != nil {
		s.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{Engine: "derived", Err: err})
	}
}

// flushBubbled recomputes dependents of bubbled paths and emits the derived
// events plus one generic change. Evaluation failures during a bubble have no
// caller to return to; they go to the evaluator logger.
func (s *State) flushBubbled(paths []string) {
	derivedEvents, err := s.recomputeDerived(paths)
	if err != nil {
		s.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{Engine: "derived", Err: err})
	}
	s.emitDepth++
	for _, event := range derivedEvents {
		s.events.emit(event)
	}
	s.events.emitGeneric(Event{Kind: EventChange})
	s.emitDepth--
}

func (s *State) emitChildActivity(path string, event Event) {
	if !s.activity.Enabled() {
		return
	}
	input := activity.StateEventInput{
		ObjectID:       s.id,
		DefinitionCode: s.def.name,
		Path:           path,
		OldValue:       event.Old,
		NewValue:       event.New,
	}
	if err := s.activity.Emit(context.Background(), activity.BuildStateChildChangedEvent(input)); err != nil {
		s.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{Engine: "activity", Err: err})
	}
}
