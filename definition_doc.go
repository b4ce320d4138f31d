package state

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition documents declare a type in YAML (or JSON, which YAML accepts).
// Properties take three forms:
//
//	x: number                                  shorthand, type only
//	y: [number, required, 10]                  tuple: type, flags, default
//	label: {type: string, default: anonymous}  record
//
// Derived properties are expression-backed only; Fn deriveds, collections,
// and custom factories require code. Nested children use the same document
// shape recursively.
type definitionDoc struct {
	Name     string                   `yaml:"name"`
	Extra    string                   `yaml:"extra"`
	Props    map[string]yaml.Node     `yaml:"props"`
	Session  map[string]yaml.Node     `yaml:"session"`
	Derived  map[string]derivedDoc    `yaml:"derived"`
	Children map[string]definitionDoc `yaml:"children"`
}

type derivedDoc struct {
	Deps      []string `yaml:"deps"`
	Expr      string   `yaml:"expr"`
	NoCache   bool     `yaml:"no_cache"`
	Serialize bool     `yaml:"serialize"`
}

type propertyDoc struct {
	Type      string `yaml:"type"`
	Required  bool   `yaml:"required"`
	Default   any    `yaml:"default"`
	AllowNull bool   `yaml:"allow_null"`
}

// ParseDefinition decodes a definition document and builds the merged
// definition, applying the same validation as Define.
func ParseDefinition(data []byte) (*Definition, error) {
	bp, err := ParseBlueprint(data)
	if err != nil {
		return nil, err
	}
	return Define(bp)
}

// ParseBlueprint decodes a definition document into a Blueprint without
// finalizing it, so callers can Extend an existing definition with it or add
// code-only declarations before Define.
func ParseBlueprint(data []byte) (Blueprint, error) {
	var doc definitionDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Blueprint{}, fmt.Errorf("state: parse definition document: %w", err)
	}
	return doc.blueprint()
}

func (doc definitionDoc) blueprint() (Blueprint, error) {
	bp := Blueprint{
		Name:  doc.Name,
		Extra: ExtraPolicy(doc.Extra),
	}
	if len(doc.Props) > 0 {
		bp.Props = map[string]PropertyDef{}
		for name, node := range doc.Props {
			def, err := decodePropertyNode(name, node)
			if err != nil {
				return Blueprint{}, err
			}
			bp.Props[name] = def
		}
	}
	if len(doc.Session) > 0 {
		bp.Session = map[string]PropertyDef{}
		for name, node := range doc.Session {
			def, err := decodePropertyNode(name, node)
			if err != nil {
				return Blueprint{}, err
			}
			bp.Session[name] = def
		}
	}
	if len(doc.Derived) > 0 {
		bp.Derived = map[string]DerivedDef{}
		for name, dd := range doc.Derived {
			if dd.Expr == "" {
				return Blueprint{}, fmt.Errorf("state: derived %q in document declares no expr", name)
			}
			bp.Derived[name] = DerivedDef{
				Deps:      dd.Deps,
				Expr:      dd.Expr,
				NoCache:   dd.NoCache,
				Serialize: dd.Serialize,
			}
		}
	}
	if len(doc.Children) > 0 {
		bp.Children = map[string]*Definition{}
		for name, childDoc := range doc.Children {
			childBP, err := childDoc.blueprint()
			if err != nil {
				return Blueprint{}, err
			}
			if childBP.Name == "" {
				childBP.Name = name
			}
			child, err := Define(childBP)
			if err != nil {
				return Blueprint{}, fmt.Errorf("state: child %q: %w", name, err)
			}
			bp.Children[name] = child
		}
	}
	return bp, nil
}

func decodePropertyNode(name string, node yaml.Node) (PropertyDef, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var typ string
		if err := node.Decode(&typ); err != nil {
			return PropertyDef{}, fmt.Errorf("state: property %q: %w", name, err)
		}
		return PropertyDef{Type: PropertyType(typ)}, nil
	case yaml.SequenceNode:
		var tuple []any
		if err := node.Decode(&tuple); err != nil {
			return PropertyDef{}, fmt.Errorf("state: property %q: %w", name, err)
		}
		return decodePropertyTuple(name, tuple)
	case yaml.MappingNode:
		var record propertyDoc
		if err := node.Decode(&record); err != nil {
			return PropertyDef{}, fmt.Errorf("state: property %q: %w", name, err)
		}
		return PropertyDef{
			Type:      PropertyType(record.Type),
			Required:  record.Required,
			Default:   record.Default,
			AllowNull: record.AllowNull,
		}, nil
	default:
		return PropertyDef{}, fmt.Errorf("state: property %q has an unsupported document form", name)
	}
}

// decodePropertyTuple handles the [type, flags..., default] form: the first
// element is the type, the literal string "required" marks the property
// required, and any other element is its default value.
func decodePropertyTuple(name string, tuple []any) (PropertyDef, error) {
	if len(tuple) == 0 {
		return PropertyDef{}, fmt.Errorf("state: property %q declares an empty tuple", name)
	}
	typ, ok := tuple[0].(string)
	if !ok {
		return PropertyDef{}, fmt.Errorf("state: property %q tuple must start with a type name", name)
	}
	def := PropertyDef{Type: PropertyType(typ)}
	for _, item := range tuple[1:] {
		if flag, ok := item.(string); ok && flag == "required" {
			def.Required = true
			continue
		}
		def.Default = item
	}
	return def, nil
}
