package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-state/internal/coerce"
	"github.com/goliatone/go-state/pkg/activity"
	"github.com/google/uuid"
)

// Option configures a State instance at construction.
type Option func(*instanceConfig)

type instanceConfig struct {
	evaluator    Evaluator
	programCache ProgramCache
	functions    *FunctionRegistry
	logger       EvaluatorLogger
	hooks        activity.Hooks
}

func applyOptions(opts []Option) instanceConfig {
	cfg := instanceConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEvaluator selects the expression engine for derived expressions and
// ad-hoc Evaluate calls. Defaults to the expr engine.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *instanceConfig) {
		cfg.evaluator = e
	}
}

// WithProgramCache registers a compiled-program cache shared by expression
// evaluations.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *instanceConfig) {
		cfg.programCache = cache
	}
}

// WithFunctionRegistry exposes custom functions to expression-backed derived
// properties.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *instanceConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithEvaluatorLogger attaches an evaluator logger to the instance.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *instanceConfig) {
		if logger == nil {
			cfg.logger = noopEvaluatorLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithActivityHooks attaches activity hooks notified after each committed
// batch. Hooks are cloned and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *instanceConfig) {
		cfg.hooks = normalized
	}
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.Hook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}

// SetOption configures one Set/SetMany/Unset/Toggle call.
type SetOption func(*setConfig)

type setConfig struct {
	silent bool
}

// Silent commits values without emitting change events, derived
// notifications, or activity. Derived caches are still kept coherent.
func Silent() SetOption {
	return func(cfg *setConfig) {
		cfg.silent = true
	}
}

func applySetOptions(opts []SetOption) setConfig {
	cfg := setConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// State is one instance of a defined type: a typed attribute store with
// derived properties, owned children and collections, and synchronous change
// notification. Instances are single-threaded by contract.
type State struct {
	def *Definition
	id  string
	cfg instanceConfig

	attrs       map[string]any
	previous    map[string]any
	lastChanged map[string]any

	derived     map[string]*derivedRecord
	children    map[string]*State
	collections map[string]Collection

	events   emitter
	activity *activity.Emitter

	emitDepth    int
	pending      []stagedBatch
	pendingFlush [][]string
}

type stagedBatch struct {
	values map[string]any
	unset  []string
	silent bool
}

// New constructs an instance: validates and coerces the initial attributes,
// fills declared defaults, instantiates owned children and collections, and
// primes cached derived values. The full batch is atomic; any schema failure
// leaves nothing constructed.
func (d *Definition) New(initial map[string]any, opts ...Option) (*State, error) {
	cfg := applyOptions(opts)
	s := &State{
		def:         d,
		id:          uuid.NewString(),
		cfg:         cfg,
		attrs:       map[string]any{},
		previous:    map[string]any{},
		lastChanged: map[string]any{},
		derived:     map[string]*derivedRecord{},
		children:    map[string]*State{},
		collections: map[string]Collection{},
	}
	s.activity = activity.NewEmitter(cfg.hooks, activity.Config{Enabled: len(cfg.hooks) > 0})

	flat, childSeeds, collectionSeeds, err := d.partitionInitial(initial)
	if err != nil {
		return nil, err
	}

	staged, err := s.validateBatch(flat)
	if err != nil {
		return nil, err
	}
	for name, def := range d.props {
		if _, ok := staged[name]; ok {
			continue
		}
		if value, ok := def.defaultValue(); ok {
			coerced, err := def.coerceValue(name, value)
			if err != nil {
				return nil, err
			}
			staged[name] = coerced
			continue
		}
		if def.Required {
			return nil, &SchemaViolationError{Key: name, Type: def.Type, Reason: "required attribute missing"}
		}
	}
	for key, value := range staged {
		s.attrs[key] = value
	}

	if err := s.bindChildren(childSeeds, opts); err != nil {
		return nil, err
	}
	if err := s.bindCollections(collectionSeeds); err != nil {
		return nil, err
	}
	if err := s.primeDerived(); err != nil {
		return nil, err
	}

	if s.activity.Enabled() {
		if err := s.activity.Emit(context.Background(), activity.BuildStateCreatedEvent(activity.StateEventInput{
			ObjectID:       s.id,
			DefinitionCode: d.name,
		})); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// partitionInitial splits the constructor payload into flat attributes and
// child/collection seeds, enforcing seed shape.
func (d *Definition) partitionInitial(initial map[string]any) (map[string]any, map[string]map[string]any, map[string][]map[string]any, error) {
	flat := map[string]any{}
	childSeeds := map[string]map[string]any{}
	collectionSeeds := map[string][]map[string]any{}
	for key, value := range initial {
		// Derived values in a constructor payload (a serialized instance
		// being restored) are recomputed, never restored.
		if _, ok := d.derived[key]; ok {
			continue
		}
		if _, ok := d.children[key]; ok {
			if value == nil {
				continue
			}
			seed, ok := value.(map[string]any)
			if !ok {
				return nil, nil, nil, &SchemaViolationError{Key: key, Type: TypeObject, Value: value, Reason: "child seed must be an attribute map"}
			}
			childSeeds[key] = seed
			continue
		}
		if _, ok := d.collections[key]; ok {
			if value == nil {
				continue
			}
			seed, err := collectionSeed(key, value)
			if err != nil {
				return nil, nil, nil, err
			}
			collectionSeeds[key] = seed
			continue
		}
		flat[key] = value
	}
	return flat, childSeeds, collectionSeeds, nil
}

func collectionSeed(key string, value any) ([]map[string]any, error) {
	members, ok := value.([]map[string]any)
	if ok {
		return members, nil
	}
	raw, ok := value.([]any)
	if !ok {
		return nil, &SchemaViolationError{Key: key, Type: TypeArray, Value: value, Reason: "collection seed must be an array of attribute maps"}
	}
	members = make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		member, ok := item.(map[string]any)
		if !ok {
			return nil, &SchemaViolationError{Key: key, Type: TypeArray, Value: item, Reason: "collection seed must be an array of attribute maps"}
		}
		members = append(members, member)
	}
	return members, nil
}

// ID returns the instance identifier.
func (s *State) ID() string { return s.id }

// Definition returns the shared type-level definition.
func (s *State) Definition() *Definition { return s.def }

// Child returns the owned child instance bound to key.
func (s *State) Child(key string) (*State, bool) {
	child, ok := s.children[key]
	return child, ok
}

// Collection returns the owned collection bound to key.
func (s *State) Collection(key string) (Collection, bool) {
	collection, ok := s.collections[key]
	return collection, ok
}

// On subscribes to change events for one attribute, derived key, or dotted
// descendant path. The returned function cancels the subscription.
func (s *State) On(key string, fn Listener) func() {
	return s.events.on(key, fn)
}

// OnChange subscribes to the generic per-batch change event.
func (s *State) OnChange(fn Listener) func() {
	return s.events.onGeneric(fn)
}

// Get reads an attribute, derived value, or dotted descendant path. Unknown
// keys read as nil; derived evaluation errors are returned.
func (s *State) Get(key string) (any, error) {
	if strings.Contains(key, ".") {
		return s.getPath(key)
	}
	if dd, ok := s.def.derived[key]; ok {
		return s.getDerived(key, dd)
	}
	value, ok := s.attrs[key]
	if !ok {
		return nil, nil
	}
	return value, nil
}

func (s *State) getPath(path string) (any, error) {
	head, rest, _ := strings.Cut(path, ".")
	child, ok := s.children[head]
	if !ok {
		return nil, nil
	}
	return child.Get(rest)
}

// Set validates, coerces, and commits a single attribute change.
func (s *State) Set(key string, value any, opts ...SetOption) error {
	return s.SetMany(map[string]any{key: value}, opts...)
}

// SetMany applies a batch atomically: every key is validated and coerced
// first, then all changed values commit together, derived properties
// recompute, and listeners observe the fully-applied batch.
func (s *State) SetMany(attrs map[string]any, opts ...SetOption) error {
	cfg := applySetOptions(opts)
	staged, err := s.validateBatch(attrs)
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return nil
	}
	return s.applyBatch(stagedBatch{values: staged, silent: cfg.silent})
}

// Unset removes an attribute. Removal of an absent key is a no-op; removing
// a derived property is an error.
func (s *State) Unset(key string, opts ...SetOption) error {
	cfg := applySetOptions(opts)
	if _, ok := s.def.derived[key]; ok {
		return fmt.Errorf("%w: %q", ErrReadOnlyProperty, key)
	}
	if _, ok := s.attrs[key]; !ok {
		return nil
	}
	return s.applyBatch(stagedBatch{unset: []string{key}, silent: cfg.silent})
}

// Toggle flips a boolean attribute. Absent values toggle from false.
func (s *State) Toggle(key string, opts ...SetOption) error {
	def, ok := s.def.props[key]
	if !ok {
		return &UnknownPropertyError{Key: key}
	}
	if def.Type != TypeBoolean {
		return &SchemaViolationError{Key: key, Type: def.Type, Reason: "toggle requires a boolean property"}
	}
	current, _ := s.attrs[key].(bool)
	return s.Set(key, !current, opts...)
}

// validateBatch runs the first pass: classify, validate, and coerce every
// key without mutating anything. A failure on any key fails the whole call.
func (s *State) validateBatch(attrs map[string]any) (map[string]any, error) {
	staged := make(map[string]any, len(attrs))
	for _, key := range sortedKeys(attrs) {
		value := attrs[key]
		if _, ok := s.def.derived[key]; ok {
			return nil, fmt.Errorf("%w: %q", ErrReadOnlyProperty, key)
		}
		if _, ok := s.def.children[key]; ok {
			return nil, &SchemaViolationError{Key: key, Type: TypeObject, Value: value, Reason: "child keys are set through the child instance"}
		}
		if _, ok := s.def.collections[key]; ok {
			return nil, &SchemaViolationError{Key: key, Type: TypeArray, Value: value, Reason: "collection keys are mutated through the collection"}
		}
		if def, ok := s.def.props[key]; ok {
			coerced, err := def.coerceValue(key, value)
			if err != nil {
				return nil, err
			}
			staged[key] = coerced
			continue
		}
		switch s.def.extra {
		case ExtraAllow:
			staged[key] = coerce.Clone(value)
		case ExtraReject:
			return nil, &UnknownPropertyError{Key: key}
		default:
			// ExtraIgnore drops the key silently.
		}
	}
	return staged, nil
}

// applyBatch commits a validated batch, or queues it when the instance is
// mid-emission so a re-entrant Set never interleaves with the batch that
// triggered it.
func (s *State) applyBatch(batch stagedBatch) error {
	if s.emitDepth > 0 {
		s.pending = append(s.pending, batch)
		return nil
	}
	return errors.Join(s.commit(batch), s.drainPending())
}

// drainPending runs work queued while a batch was emitting: bubbled relay
// flushes first so the derived graph is consistent, then re-entrant batches,
// each as its own fully-sequenced batch.
func (s *State) drainPending() error {
	var errs []error
	for len(s.pendingFlush) > 0 || len(s.pending) > 0 {
		if len(s.pendingFlush) > 0 {
			paths := s.pendingFlush[0]
			s.pendingFlush = s.pendingFlush[1:]
			s.flushBubbled(paths)
			continue
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		if err := s.commit(next); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type committedChange struct {
	key   string
	old   any
	new   any
	unset bool
}

func (s *State) commit(batch stagedBatch) error {
	changes := s.diff(batch)
	if len(changes) == 0 {
		return nil
	}

	s.previous = coerce.CloneMap(s.attrs)
	s.lastChanged = make(map[string]any, len(changes))
	triggers := make([]string, 0, len(changes))
	for _, change := range changes {
		if change.unset {
			delete(s.attrs, change.key)
		} else {
			s.attrs[change.key] = change.new
		}
		s.lastChanged[change.key] = change.old
		triggers = append(triggers, change.key)
	}

	derivedEvents, derivedErr := s.recomputeDerived(triggers)
	if batch.silent {
		return derivedErr
	}

	s.emitDepth++
	for _, change := range changes {
		s.events.emit(Event{Kind: EventChange, Key: change.key, Old: change.old, New: change.new})
	}
	for _, event := range derivedEvents {
		s.events.emit(event)
	}
	s.events.emitGeneric(Event{Kind: EventChange})
	s.emitDepth--

	activityErr := s.emitChangeActivity(changes, derivedEvents)
	return errors.Join(derivedErr, activityErr)
}

// diff computes the effective change set against current values using the
// attribute equality rule (deep for arrays and objects).
func (s *State) diff(batch stagedBatch) []committedChange {
	changes := make([]committedChange, 0, len(batch.values)+len(batch.unset))
	for _, key := range sortedKeys(batch.values) {
		value := batch.values[key]
		current, exists := s.attrs[key]
		if exists && coerce.Equal(current, value) {
			continue
		}
		changes = append(changes, committedChange{key: key, old: current, new: value})
	}
	for _, key := range batch.unset {
		current, exists := s.attrs[key]
		if !exists {
			continue
		}
		changes = append(changes, committedChange{key: key, old: current, unset: true})
	}
	return changes
}

func (s *State) emitChangeActivity(changes []committedChange, derivedEvents []Event) error {
	if !s.activity.Enabled() {
		return nil
	}
	var errs []error
	for _, change := range changes {
		input := activity.StateEventInput{
			ObjectID:       s.id,
			DefinitionCode: s.def.name,
			Path:           change.key,
			OldValue:       change.old,
			NewValue:       change.new,
		}
		if err := s.activity.Emit(context.Background(), activity.BuildStateChangedEvent(input)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, event := range derivedEvents {
		input := activity.StateEventInput{
			ObjectID:       s.id,
			DefinitionCode: s.def.name,
			Path:           event.Key,
			OldValue:       event.Old,
			NewValue:       event.New,
		}
		if err := s.activity.Emit(context.Background(), activity.BuildStateChangedEvent(input)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Previous returns the value key held before the last committed batch.
func (s *State) Previous(key string) any {
	return s.previous[key]
}

// PreviousAttributes returns a copy of the attribute map as it was before
// the last committed batch.
func (s *State) PreviousAttributes() map[string]any {
	return coerce.CloneMap(s.previous)
}

// ChangedAttributes returns the keys changed by the last committed batch and
// their new values. When diffAgainst is supplied, it instead returns every
// current attribute whose value differs from the given map.
func (s *State) ChangedAttributes(diffAgainst ...map[string]any) map[string]any {
	if len(diffAgainst) > 0 && diffAgainst[0] != nil {
		reference := diffAgainst[0]
		out := map[string]any{}
		for key, value := range s.attrs {
			if other, ok := reference[key]; !ok || !coerce.Equal(other, value) {
				out[key] = value
			}
		}
		return out
	}
	out := make(map[string]any, len(s.lastChanged))
	for key := range s.lastChanged {
		out[key] = s.attrs[key]
	}
	return out
}

// HasChanged reports whether any attribute (or each named attribute) changed
// in the last committed batch.
func (s *State) HasChanged(keys ...string) bool {
	if len(keys) == 0 {
		return len(s.lastChanged) > 0
	}
	for _, key := range keys {
		if _, ok := s.lastChanged[key]; !ok {
			return false
		}
	}
	return true
}

// snapshotAttributes clones the committed attribute map.
func (s *State) snapshotAttributes() map[string]any {
	return coerce.CloneMap(s.attrs)
}
