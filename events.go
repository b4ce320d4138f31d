package state

// EventKind tags the change notifications an instance emits.
type EventKind string

const (
	// EventChange reports a committed attribute or derived value change.
	EventChange EventKind = "change"
	// EventChildChange reports a change bubbled from an owned child or
	// collection, dot-qualified by the owning key.
	EventChildChange EventKind = "child.change"
	// EventMemberAdded reports a record added to an owned collection.
	EventMemberAdded EventKind = "member.added"
	// EventMemberRemoved reports a record removed from an owned collection.
	EventMemberRemoved EventKind = "member.removed"
)

// Event carries one change notification. Key is empty on the generic
// per-batch event, an attribute or derived name on local changes, and a
// dotted path on bubbled changes.
type Event struct {
	Kind EventKind
	Key  string
	Old  any
	New  any
}

// Listener receives change events. Delivery is synchronous and ordered.
type Listener func(Event)

type subscription struct {
	key     string
	fn      Listener
	generic bool
	gone    bool
}

// emitter is the per-instance subscriber registry. Keyed listeners receive
// only events matching their key; generic listeners receive the single
// per-batch event; firehose listeners (used by relay bindings) see every
// emission.
type emitter struct {
	keyed    map[string][]*subscription
	generic  []*subscription
	firehose []*subscription
}

func (e *emitter) on(key string, fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	sub := &subscription{key: key, fn: fn}
	if e.keyed == nil {
		e.keyed = map[string][]*subscription{}
	}
	e.keyed[key] = append(e.keyed[key], sub)
	return func() { sub.gone = true }
}

func (e *emitter) onGeneric(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	sub := &subscription{fn: fn, generic: true}
	e.generic = append(e.generic, sub)
	return func() { sub.gone = true }
}

func (e *emitter) observe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	sub := &subscription{fn: fn}
	e.firehose = append(e.firehose, sub)
	return func() { sub.gone = true }
}

// emit delivers a keyed event to its key listeners and every firehose
// listener. Listener slices are snapshotted so a listener that subscribes or
// unsubscribes mid-delivery never perturbs the current fan-out.
func (e *emitter) emit(event Event) {
	if subs := e.keyed[event.Key]; len(subs) > 0 {
		for _, sub := range snapshot(subs) {
			if !sub.gone {
				sub.fn(event)
			}
		}
	}
	for _, sub := range snapshot(e.firehose) {
		if !sub.gone {
			sub.fn(event)
		}
	}
}

// emitGeneric delivers the per-batch event to generic and firehose
// listeners.
func (e *emitter) emitGeneric(event Event) {
	for _, sub := range snapshot(e.generic) {
		if !sub.gone {
			sub.fn(event)
		}
	}
	for _, sub := range snapshot(e.firehose) {
		if !sub.gone {
			sub.fn(event)
		}
	}
}

func snapshot(subs []*subscription) []*subscription {
	if len(subs) == 0 {
		return nil
	}
	out := make([]*subscription, len(subs))
	copy(out, subs)
	return out
}
