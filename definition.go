package state

import (
	"fmt"
	"sort"
	"strings"
)

// DerivedDef declares a computed, read-only property. Exactly one of Fn or
// Expr must be set: Fn is an in-process computation, Expr is an expression
// compiled by the configured evaluator engine. Results are cached unless
// NoCache is set; uncached derived properties re-announce on every
// dependency trigger and recompute lazily on read.
type DerivedDef struct {
	Deps      []string
	Fn        func(DerivedContext) (any, error)
	Expr      string
	NoCache   bool
	Serialize bool
}

// CollectionDef binds a collection key to the factory that builds the owned
// collection from the constructor-time member records.
type CollectionDef struct {
	Factory CollectionFactory
}

// Blueprint is the declaration document handed to Define and Extend. All
// maps are optional; an empty blueprint is a valid (if inert) type.
type Blueprint struct {
	Name        string
	Props       map[string]PropertyDef
	Session     map[string]PropertyDef
	Derived     map[string]DerivedDef
	Children    map[string]*Definition
	Collections map[string]CollectionDef
	Extra       ExtraPolicy
}

// Definition is the merged, immutable type-level description shared by all
// instances of a type. Built once per Define/Extend call; instance
// construction cost is proportional to attribute and child count only.
type Definition struct {
	name        string
	props       map[string]PropertyDef
	derived     map[string]DerivedDef
	children    map[string]*Definition
	collections map[string]CollectionDef
	extra       ExtraPolicy

	layers []string
	origin map[string]string

	topo     []string            // derived keys in dependency order
	triggers map[string][]string // dependency source -> derived keys
}

// Define validates a blueprint and builds the merged definition, resolving
// every derived dependency path and rejecting cycles before any instance can
// be constructed.
func Define(bp Blueprint) (*Definition, error) {
	def := &Definition{
		name:        bp.Name,
		props:       map[string]PropertyDef{},
		derived:     map[string]DerivedDef{},
		children:    map[string]*Definition{},
		collections: map[string]CollectionDef{},
		extra:       ExtraIgnore,
		origin:      map[string]string{},
	}
	if err := def.apply(bp); err != nil {
		return nil, err
	}
	if err := def.finalize(); err != nil {
		return nil, err
	}
	return def, nil
}

// Extend produces a new definition from the receiver's already-merged
// declarations plus the blueprint's own, the blueprint winning on key
// conflicts. The receiver is never mutated.
func (d *Definition) Extend(bp Blueprint) (*Definition, error) {
	child := &Definition{
		name:        d.name,
		props:       map[string]PropertyDef{},
		derived:     map[string]DerivedDef{},
		children:    map[string]*Definition{},
		collections: map[string]CollectionDef{},
		extra:       d.extra,
		layers:      append([]string(nil), d.layers...),
		origin:      map[string]string{},
	}
	for key, def := range d.props {
		child.props[key] = def
	}
	for key, def := range d.derived {
		child.derived[key] = def
	}
	for key, def := range d.children {
		child.children[key] = def
	}
	for key, def := range d.collections {
		child.collections[key] = def
	}
	for key, layer := range d.origin {
		child.origin[key] = layer
	}
	if bp.Name != "" {
		child.name = bp.Name
	}
	if err := child.apply(bp); err != nil {
		return nil, err
	}
	if err := child.finalize(); err != nil {
		return nil, err
	}
	return child, nil
}

// apply folds one blueprint layer into the definition, recording per-key
// provenance.
func (d *Definition) apply(bp Blueprint) error {
	layer := bp.Name
	if layer == "" {
		layer = fmt.Sprintf("layer-%d", len(d.layers)+1)
	}
	d.layers = append(d.layers, layer)

	for _, name := range sortedKeys(bp.Props) {
		def := bp.Props[name]
		def.source = SourceProp
		if err := declareProperty(d, name, def, layer); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(bp.Session) {
		def := bp.Session[name]
		def.source = SourceSession
		if err := declareProperty(d, name, def, layer); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(bp.Derived) {
		if err := validName(name); err != nil {
			return err
		}
		if existing, ok := d.props[name]; ok && existing.Source() != SourceDerived {
			return fmt.Errorf("%w: %q declared as both %s and derived", ErrDuplicateProperty, name, existing.Source())
		}
		def := bp.Derived[name]
		if def.Fn == nil && def.Expr == "" {
			return fmt.Errorf("state: derived %q declares neither Fn nor Expr", name)
		}
		if def.Fn != nil && def.Expr != "" {
			return fmt.Errorf("state: derived %q declares both Fn and Expr", name)
		}
		if len(def.Deps) == 0 {
			return fmt.Errorf("state: derived %q declares no dependencies", name)
		}
		d.derived[name] = def
		d.origin[name] = layer
	}
	for _, name := range sortedKeys(bp.Children) {
		if err := validName(name); err != nil {
			return err
		}
		if bp.Children[name] == nil {
			return fmt.Errorf("state: child %q declares a nil definition", name)
		}
		if err := d.reserveBindingKey(name); err != nil {
			return err
		}
		d.children[name] = bp.Children[name]
		d.origin[name] = layer
	}
	for _, name := range sortedKeys(bp.Collections) {
		if err := validName(name); err != nil {
			return err
		}
		if bp.Collections[name].Factory == nil {
			return fmt.Errorf("state: collection %q declares a nil factory", name)
		}
		if err := d.reserveBindingKey(name); err != nil {
			return err
		}
		d.collections[name] = bp.Collections[name]
		d.origin[name] = layer
	}
	if bp.Extra != "" {
		if !bp.Extra.valid() {
			return fmt.Errorf("state: unknown extra-property policy %q", bp.Extra)
		}
		d.extra = bp.Extra
	}
	return nil
}

func declareProperty(d *Definition, name string, def PropertyDef, layer string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := def.validate(name); err != nil {
		return err
	}
	if existing, ok := d.props[name]; ok && existing.Source() != def.Source() {
		return fmt.Errorf("%w: %q declared as both %s and %s", ErrDuplicateProperty, name, existing.Source(), def.Source())
	}
	if _, ok := d.derived[name]; ok {
		return fmt.Errorf("%w: %q declared as both derived and %s", ErrDuplicateProperty, name, def.Source())
	}
	d.props[name] = def
	d.origin[name] = layer
	return nil
}

// reserveBindingKey guards child/collection keys against colliding with each
// other or with flat properties; bindings may be overridden layer-over-layer
// within their own bucket.
func (d *Definition) reserveBindingKey(name string) error {
	if _, ok := d.props[name]; ok {
		return fmt.Errorf("%w: %q declared as both property and binding", ErrDuplicateProperty, name)
	}
	if _, ok := d.derived[name]; ok {
		return fmt.Errorf("%w: %q declared as both derived and binding", ErrDuplicateProperty, name)
	}
	return nil
}

// finalize resolves every derived dependency path and orders the derived
// relation, failing on cycles. Runs after each Define/Extend so instance
// construction can rely on a well-formed graph.
func (d *Definition) finalize() error {
	for _, name := range sortedKeys(d.derived) {
		for _, dep := range d.derived[name].Deps {
			if err := d.resolvePath(name, dep); err != nil {
				return err
			}
		}
	}
	topo, err := d.orderDerived()
	if err != nil {
		return err
	}
	d.topo = topo

	d.triggers = map[string][]string{}
	for _, name := range d.topo {
		for _, dep := range d.derived[name].Deps {
			d.triggers[dep] = append(d.triggers[dep], name)
		}
	}
	return nil
}

// resolvePath checks a declared dependency against local attributes, local
// derived names, collection keys, and dotted paths into owned children of
// arbitrary depth.
func (d *Definition) resolvePath(derived, path string) error {
	if path == "" {
		return &UnresolvablePathError{Derived: derived, Path: path}
	}
	if !strings.Contains(path, ".") {
		if _, ok := d.props[path]; ok {
			return nil
		}
		if _, ok := d.derived[path]; ok {
			return nil
		}
		if _, ok := d.children[path]; ok {
			return nil
		}
		if _, ok := d.collections[path]; ok {
			return nil
		}
		return &UnresolvablePathError{Derived: derived, Path: path}
	}

	segments := strings.Split(path, ".")
	current := d
	for i, segment := range segments {
		last := i == len(segments)-1
		if !last {
			next, ok := current.children[segment]
			if !ok {
				return &UnresolvablePathError{Derived: derived, Path: path}
			}
			current = next
			continue
		}
		if _, ok := current.props[segment]; ok {
			return nil
		}
		if _, ok := current.derived[segment]; ok {
			return nil
		}
		if _, ok := current.children[segment]; ok {
			return nil
		}
		if _, ok := current.collections[segment]; ok {
			return nil
		}
		return &UnresolvablePathError{Derived: derived, Path: path}
	}
	return nil
}

// orderDerived walks the local derived-on-derived relation depth-first,
// producing an evaluation order and failing on the first cycle found.
func (d *Definition) orderDerived() ([]string, error) {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	marks := make(map[string]int, len(d.derived))
	order := make([]string, 0, len(d.derived))
	var chain []string

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case black:
			return nil
		case grey:
			return &CyclicDependencyError{Key: name, Chain: append(append([]string(nil), chain...), name)}
		}
		marks[name] = grey
		chain = append(chain, name)
		for _, dep := range d.derived[name].Deps {
			if _, ok := d.derived[dep]; ok {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		chain = chain[:len(chain)-1]
		marks[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range sortedKeys(d.derived) {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Name returns the definition's declared name, usually the name of the most
// recent layer that set one.
func (d *Definition) Name() string { return d.name }

// Extra returns the effective extra-property policy.
func (d *Definition) Extra() ExtraPolicy { return d.extra }

// Prop looks up a declared prop or session property.
func (d *Definition) Prop(name string) (PropertyDef, bool) {
	def, ok := d.props[name]
	return def, ok
}

// Derived looks up a declared derived property.
func (d *Definition) Derived(name string) (DerivedDef, bool) {
	def, ok := d.derived[name]
	return def, ok
}

// Child looks up the definition bound to a child key.
func (d *Definition) Child(name string) (*Definition, bool) {
	def, ok := d.children[name]
	return def, ok
}

// Layers returns the names of the definition layers merged so far, oldest
// first.
func (d *Definition) Layers() []string {
	return append([]string(nil), d.layers...)
}

// Origin reports which layer declared (or last overrode) a key.
func (d *Definition) Origin(key string) (string, bool) {
	layer, ok := d.origin[key]
	return layer, ok
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("state: property names must not be empty")
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("state: property name %q must not contain dots", name)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
