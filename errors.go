package state

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaViolation indicates a value failed type checking or coercion
	// for its declared property.
	ErrSchemaViolation = errors.New("state: schema violation")
	// ErrUnknownProperty indicates a key absent from the schema under the
	// reject extra-key policy.
	ErrUnknownProperty = errors.New("state: unknown property")
	// ErrCyclicDependency indicates the derived dependency relation contains
	// a cycle.
	ErrCyclicDependency = errors.New("state: cyclic derived dependency")
	// ErrUnresolvablePath indicates a declared dependency path does not
	// resolve to any known attribute, derived property, or child.
	ErrUnresolvablePath = errors.New("state: unresolvable dependency path")
	// ErrReadOnlyProperty indicates an attempt to write a derived property.
	ErrReadOnlyProperty = errors.New("state: derived properties are read only")
	// ErrDuplicateProperty indicates a name collision across the prop,
	// session, and derived declarations of a merged definition.
	ErrDuplicateProperty = errors.New("state: duplicate property name")
)

// SchemaViolationError reports the offending key and value alongside the
// declared type that rejected it.
type SchemaViolationError struct {
	Key    string
	Type   PropertyType
	Value  any
	Reason string
	Err    error
}

func (e *SchemaViolationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Reason != "" {
		return fmt.Sprintf("state: schema violation on %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("state: schema violation on %q: %T is not a valid %s", e.Key, e.Value, e.Type)
}

func (e *SchemaViolationError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Err != nil {
		return e.Err
	}
	return ErrSchemaViolation
}

// Is lets errors.Is match both the sentinel and wrapped causes.
func (e *SchemaViolationError) Is(target error) bool {
	return target == ErrSchemaViolation
}

// UnknownPropertyError reports an undeclared key rejected by policy.
type UnknownPropertyError struct {
	Key string
}

func (e *UnknownPropertyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("state: unknown property %q", e.Key)
}

func (e *UnknownPropertyError) Unwrap() error { return ErrUnknownProperty }

// CyclicDependencyError names the derived key on which a cycle was detected
// and the dependency chain that closed it.
type CyclicDependencyError struct {
	Key   string
	Chain []string
}

func (e *CyclicDependencyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Chain) > 0 {
		return fmt.Sprintf("state: cyclic derived dependency at %q: %v", e.Key, e.Chain)
	}
	return fmt.Sprintf("state: cyclic derived dependency at %q", e.Key)
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// UnresolvablePathError names the derived key and the dependency path that
// failed to resolve at registration time.
type UnresolvablePathError struct {
	Derived string
	Path    string
}

func (e *UnresolvablePathError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("state: derived %q depends on unresolvable path %q", e.Derived, e.Path)
}

func (e *UnresolvablePathError) Unwrap() error { return ErrUnresolvablePath }

func schemaViolation(key string, typ PropertyType, value any, err error) error {
	var violation *SchemaViolationError
	if errors.As(err, &violation) {
		return err
	}
	return &SchemaViolationError{Key: key, Type: typ, Value: value, Err: err}
}
