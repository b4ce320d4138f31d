package state

import (
	"encoding/json"

	"github.com/goliatone/go-state/internal/coerce"
)

// CollectionSerializer is implemented by collections whose members belong in
// the serialized form. Records implements it.
type CollectionSerializer interface {
	SerializeMembers() []map[string]any
}

// Serialize produces the persistable view of the instance: declared props and
// stored extra attributes, owned children and serializable collections nested
// under their keys, and opt-in derived values. Session attributes never
// serialize. The result round-trips through the definition's constructor.
func (s *State) Serialize() map[string]any {
	out := map[string]any{}
	for key, value := range s.attrs {
		if def, ok := s.def.props[key]; ok && def.Source() == SourceSession {
			continue
		}
		out[key] = coerce.Clone(value)
	}
	for _, name := range s.def.topo {
		dd := s.def.derived[name]
		if !dd.Serialize {
			continue
		}
		value, err := s.getDerived(name, dd)
		if err != nil {
			continue
		}
		out[name] = coerce.Clone(value)
	}
	for key, child := range s.children {
		out[key] = child.Serialize()
	}
	for key, collection := range s.collections {
		if serializer, ok := collection.(CollectionSerializer); ok {
			out[key] = serializer.SerializeMembers()
		}
	}
	return out
}

// MarshalJSON serializes the instance through Serialize.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Serialize())
}

// SerializeMembers implements CollectionSerializer.
func (r *Records) SerializeMembers() []map[string]any {
	return r.Members()
}
