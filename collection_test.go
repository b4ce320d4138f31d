package state

import (
	"testing"
)

func TestRecordsMembership(t *testing.T) {
	records := NewRecords([]map[string]any{
		{"name": "first"},
	})

	var events []Event
	records.Subscribe(func(e Event) { events = append(events, e) })

	records.Add(map[string]any{"name": "second"})
	if records.Len() != 2 {
		t.Fatalf("expected 2 members, got %d", records.Len())
	}
	if len(events) != 1 || events[0].Kind != EventMemberAdded || events[0].Key != "1" {
		t.Fatalf("unexpected add event %+v", events)
	}

	if err := records.Remove(0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if records.Len() != 1 {
		t.Fatalf("expected 1 member after removal, got %d", records.Len())
	}
	if events[1].Kind != EventMemberRemoved || events[1].Key != "0" {
		t.Fatalf("unexpected remove event %+v", events[1])
	}
	member, err := records.At(0)
	if err != nil {
		t.Fatalf("at: %v", err)
	}
	if member["name"] != "second" {
		t.Fatalf("expected members to shift down, got %v", member)
	}

	if err := records.Remove(5); err == nil {
		t.Fatalf("expected out-of-range removal to fail")
	}
}

func TestRecordsSetAnnouncesMemberChange(t *testing.T) {
	records := NewRecords([]map[string]any{
		{"name": "first", "done": false},
	})

	var events []Event
	records.Subscribe(func(e Event) { events = append(events, e) })

	if err := records.Set(0, "done", true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].Kind != EventChange || events[0].Key != "0.done" {
		t.Fatalf("unexpected event %+v", events[0])
	}
	if events[0].Old != false || events[0].New != true {
		t.Fatalf("expected false->true, got %v->%v", events[0].Old, events[0].New)
	}

	// Equal values are not a change.
	if err := records.Set(0, "done", true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected no event for equal value, got %d", len(events))
	}
}

func TestRecordsCopySemantics(t *testing.T) {
	seed := map[string]any{"name": "first"}
	records := NewRecords([]map[string]any{seed})

	seed["name"] = "mutated"
	member, err := records.At(0)
	if err != nil {
		t.Fatalf("at: %v", err)
	}
	if member["name"] != "first" {
		t.Fatalf("expected seed to be cloned on the way in, got %v", member)
	}

	member["name"] = "local"
	again, _ := records.At(0)
	if again["name"] != "first" {
		t.Fatalf("expected reads to be cloned, got %v", again)
	}
}
