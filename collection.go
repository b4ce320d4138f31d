package state

import (
	"fmt"
	"strconv"

	"github.com/goliatone/go-state/internal/coerce"
)

// Collection is an owned, ordered group of member records whose membership
// and member changes bubble to the owning instance. Implementations emit
// member events keyed by index ("2") or index-qualified attribute ("2.name").
type Collection interface {
	// Subscribe registers a listener for every member event. The returned
	// function cancels the subscription.
	Subscribe(fn Listener) func()
	// Len reports the current member count.
	Len() int
}

// CollectionFactory builds a collection from the constructor-time member
// records. The seed slice may be nil.
type CollectionFactory func(members []map[string]any) (Collection, error)

// Records is the default Collection: an ordered slice of attribute maps with
// index-addressed mutation. Member maps are cloned on the way in and out, so
// callers never share storage with the collection.
type Records struct {
	members []map[string]any
	events  emitter
}

// NewRecords builds a Records collection seeded with the given members.
func NewRecords(members []map[string]any) *Records {
	r := &Records{members: make([]map[string]any, 0, len(members))}
	for _, member := range members {
		r.members = append(r.members, coerce.CloneMap(member))
	}
	return r
}

// RecordsFactory is a CollectionFactory producing a Records collection.
func RecordsFactory(members []map[string]any) (Collection, error) {
	return NewRecords(members), nil
}

// Subscribe implements Collection.
func (r *Records) Subscribe(fn Listener) func() {
	return r.events.observe(fn)
}

// Len implements Collection.
func (r *Records) Len() int { return len(r.members) }

// At returns a copy of the member at index i.
func (r *Records) At(i int) (map[string]any, error) {
	if err := r.checkIndex(i); err != nil {
		return nil, err
	}
	return coerce.CloneMap(r.members[i]), nil
}

// Members returns a copy of every member in order.
func (r *Records) Members() []map[string]any {
	out := make([]map[string]any, 0, len(r.members))
	for _, member := range r.members {
		out = append(out, coerce.CloneMap(member))
	}
	return out
}

// Add appends a member and announces it under its new index.
func (r *Records) Add(member map[string]any) {
	clone := coerce.CloneMap(member)
	r.members = append(r.members, clone)
	index := len(r.members) - 1
	r.events.emit(Event{
		Kind: EventMemberAdded,
		Key:  strconv.Itoa(index),
		New:  coerce.CloneMap(clone),
	})
}

// Remove deletes the member at index i. Later members shift down one slot;
// only the removal is announced.
func (r *Records) Remove(i int) error {
	if err := r.checkIndex(i); err != nil {
		return err
	}
	removed := r.members[i]
	r.members = append(r.members[:i], r.members[i+1:]...)
	r.events.emit(Event{
		Kind: EventMemberRemoved,
		Key:  strconv.Itoa(i),
		Old:  removed,
	})
	return nil
}

// Set writes one attribute of the member at index i, announcing the change
// under "index.key" when the value differs.
func (r *Records) Set(i int, key string, value any) error {
	if err := r.checkIndex(i); err != nil {
		return err
	}
	old, exists := r.members[i][key]
	clone := coerce.Clone(value)
	if exists && coerce.Equal(old, clone) {
		return nil
	}
	r.members[i][key] = clone
	r.events.emit(Event{
		Kind: EventChange,
		Key:  strconv.Itoa(i) + "." + key,
		Old:  old,
		New:  coerce.Clone(clone),
	})
	return nil
}

func (r *Records) checkIndex(i int) error {
	if i < 0 || i >= len(r.members) {
		return fmt.Errorf("state: record index %d out of range [0,%d)", i, len(r.members))
	}
	return nil
}
