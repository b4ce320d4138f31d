package state

import (
	"sort"
	"strings"
)

// FieldDescriptor describes a declared path and its type.
type FieldDescriptor struct {
	Path   string
	Type   string
	Source Source
}

// Describe flattens the definition into path/type descriptors: props and
// session attributes, derived names, and the full paths of every owned child
// subtree. Collection keys are listed as a single descriptor since member
// shape is owned by the collection type.
func (d *Definition) Describe() []FieldDescriptor {
	fields := describeDefinition(d, "")
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].Path < fields[j].Path
	})
	return fields
}

func describeDefinition(d *Definition, prefix string) []FieldDescriptor {
	var fields []FieldDescriptor
	for name, def := range d.props {
		fields = append(fields, FieldDescriptor{
			Path:   joinPath(prefix, name),
			Type:   string(def.Type),
			Source: def.Source(),
		})
	}
	for name := range d.derived {
		fields = append(fields, FieldDescriptor{
			Path:   joinPath(prefix, name),
			Type:   string(TypeAny),
			Source: SourceDerived,
		})
	}
	for name, child := range d.children {
		fields = append(fields, describeDefinition(child, joinPath(prefix, name))...)
	}
	for name := range d.collections {
		fields = append(fields, FieldDescriptor{
			Path: joinPath(prefix, name),
			Type: "collection",
		})
	}
	return fields
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
