package activity

import (
	"strings"
	"time"
)

// StateEventInput describes the common fields for state lifecycle events.
type StateEventInput struct {
	ActorID        string
	UserID         string
	TenantID       string
	ObjectID       string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	Path           string
	OldValue       any
	NewValue       any
	OccurredAt     time.Time
}

// BuildStateCreatedEvent constructs a normalized activity event for instance creation.
func BuildStateCreatedEvent(input StateEventInput) Event {
	return buildStateEvent("state.created", "state", input)
}

// BuildStateChangedEvent constructs a normalized activity event for a committed attribute change.
func BuildStateChangedEvent(input StateEventInput) Event {
	return buildStateEvent("state.changed", "state", input)
}

// BuildStateChildChangedEvent constructs an activity event for a change bubbled from an owned child or collection.
func BuildStateChildChangedEvent(input StateEventInput) Event {
	return buildStateEvent("state.child.changed", "state.child", input)
}

func buildStateEvent(verb, objectType string, input StateEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Path != "" {
		metadata = ensureMetadata(metadata)
		metadata["path"] = input.Path
	}
	if input.OldValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["new_value"] = input.NewValue
	}

	recipients := input.Recipients
	if len(recipients) > 0 {
		recipients = append([]string{}, input.Recipients...)
	}

	objectID := strings.TrimSpace(input.ObjectID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.Path)
	}
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:           verb,
		ActorID:        strings.TrimSpace(input.ActorID),
		UserID:         strings.TrimSpace(input.UserID),
		TenantID:       strings.TrimSpace(input.TenantID),
		ObjectType:     objectType,
		ObjectID:       objectID,
		Channel:        strings.TrimSpace(input.Channel),
		DefinitionCode: strings.TrimSpace(input.DefinitionCode),
		Recipients:     recipients,
		Metadata:       metadata,
		OccurredAt:     input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
