package state

import (
	"errors"
	"testing"
)

func TestParseDefinitionDocument(t *testing.T) {
	doc := []byte(`
name: shape
extra: reject
props:
  label: string
  width: [number, required]
  height: {type: number, default: 10}
session:
  selected: boolean
derived:
  area:
    deps: [width, height]
    expr: width * height
    serialize: true
children:
  position:
    props:
      x: [number, 0]
      y: [number, 0]
    derived:
      dragged:
        deps: [x, y]
        expr: x != 0.0 || y != 0.0
`)

	def, err := ParseDefinition(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Name() != "shape" {
		t.Fatalf("expected name shape, got %q", def.Name())
	}
	if def.Extra() != ExtraReject {
		t.Fatalf("expected reject policy, got %q", def.Extra())
	}
	width, ok := def.Prop("width")
	if !ok || !width.Required || width.Type != TypeNumber {
		t.Fatalf("unexpected width declaration: %+v", width)
	}
	height, _ := def.Prop("height")
	if height.Default != 10 {
		t.Fatalf("expected height default 10, got %v", height.Default)
	}
	selected, ok := def.Prop("selected")
	if !ok || selected.Source() != SourceSession {
		t.Fatalf("expected session property, got %+v", selected)
	}
	area, ok := def.Derived("area")
	if !ok || !area.Serialize || area.Expr == "" {
		t.Fatalf("unexpected area declaration: %+v", area)
	}
	child, ok := def.Child("position")
	if !ok || child.Name() != "position" {
		t.Fatalf("expected position child, got %v", child)
	}

	s, err := def.New(map[string]any{"width": 4})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got, err := s.Get("area"); err != nil || got != float64(40) {
		t.Fatalf("expected area 40, got %v (%v)", got, err)
	}
	if err := s.Set("width", 5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := s.Get("area"); got != float64(50) {
		t.Fatalf("expected area 50, got %v", got)
	}
}

func TestParseDefinitionAcceptsJSON(t *testing.T) {
	doc := []byte(`{
  "name": "task",
  "props": {
    "title": {"type": "string", "required": true},
    "done": "boolean"
  }
}`)
	def, err := ParseDefinition(doc)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	title, ok := def.Prop("title")
	if !ok || !title.Required {
		t.Fatalf("unexpected title declaration: %+v", title)
	}
	if _, err := def.New(nil); !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected required title to be enforced, got %v", err)
	}
}

func TestParseDefinitionRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"derived without expr", "derived:\n  d:\n    deps: [a]\nprops:\n  a: number"},
		{"unknown type", "props:\n  a: integer"},
		{"empty tuple", "props:\n  a: []"},
		{"unresolvable dep", "derived:\n  d:\n    deps: [missing]\n    expr: missing"},
		{"not yaml", "props: ["},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseDefinition([]byte(tc.doc)); err == nil {
				t.Fatalf("expected document to be rejected")
			}
		})
	}
}

func TestParseBlueprintExtends(t *testing.T) {
	base := mustDefine(t, Blueprint{
		Name:  "base",
		Props: map[string]PropertyDef{"color": {Type: TypeString, Default: "red"}},
	})
	bp, err := ParseBlueprint([]byte("name: skin\nprops:\n  color: [string, blue]\n"))
	if err != nil {
		t.Fatalf("parse blueprint: %v", err)
	}
	extended, err := base.Extend(bp)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	color, _ := extended.Prop("color")
	if color.Default != "blue" {
		t.Fatalf("expected document layer to win, got %v", color.Default)
	}
	if layers := extended.Layers(); len(layers) != 2 || layers[1] != "skin" {
		t.Fatalf("unexpected layers %v", layers)
	}
}
