package state

import (
	"fmt"

	"github.com/goliatone/go-state/internal/coerce"
)

// PropertyType enumerates the declarable attribute types.
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeNumber  PropertyType = "number"
	TypeBoolean PropertyType = "boolean"
	TypeArray   PropertyType = "array"
	TypeObject  PropertyType = "object"
	TypeDate    PropertyType = "date"
	TypeAny     PropertyType = "any"
)

func (t PropertyType) valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeArray, TypeObject, TypeDate, TypeAny:
		return true
	}
	return false
}

// Source tells which declaration bucket a property came from.
type Source string

const (
	SourceProp    Source = "prop"
	SourceSession Source = "session"
	SourceDerived Source = "derived"
)

// ExtraPolicy controls how keys absent from the schema are treated.
type ExtraPolicy string

const (
	// ExtraAllow stores and returns undeclared keys untyped.
	ExtraAllow ExtraPolicy = "allow"
	// ExtraIgnore drops undeclared keys silently. This is the default.
	ExtraIgnore ExtraPolicy = "ignore"
	// ExtraReject fails the whole operation before any mutation applies.
	ExtraReject ExtraPolicy = "reject"
)

func (p ExtraPolicy) valid() bool {
	switch p {
	case ExtraAllow, ExtraIgnore, ExtraReject, "":
		return true
	}
	return false
}

// PropertyDef declares one attribute. The zero value of every field except
// Type is meaningful: not required, no default, null rejected.
type PropertyDef struct {
	Type      PropertyType
	Required  bool
	Default   any
	DefaultFn func() any
	AllowNull bool

	source Source
}

// Prop is shorthand for a typed, optional property declaration.
func Prop(typ PropertyType) PropertyDef {
	return PropertyDef{Type: typ}
}

// Source reports the declaration bucket the property belongs to on a merged
// definition.
func (p PropertyDef) Source() Source {
	if p.source == "" {
		return SourceProp
	}
	return p.source
}

func (p PropertyDef) validate(name string) error {
	if !p.Type.valid() {
		return fmt.Errorf("state: property %q declares unknown type %q", name, p.Type)
	}
	if p.Default != nil && p.DefaultFn != nil {
		return fmt.Errorf("state: property %q declares both Default and DefaultFn", name)
	}
	return nil
}

// coerceValue runs set-time validation for a single declared property.
func (p PropertyDef) coerceValue(name string, value any) (any, error) {
	if value == nil {
		if p.AllowNull {
			return nil, nil
		}
		return nil, &SchemaViolationError{Key: name, Type: p.Type, Value: value, Reason: "null not allowed"}
	}
	coerced, err := coerce.Value(string(p.Type), value)
	if err != nil {
		return nil, schemaViolation(name, p.Type, value, err)
	}
	return coerced, nil
}

// defaultValue materialises the declared default, invoking producer defaults
// fresh per call so instances never share mutable defaults.
func (p PropertyDef) defaultValue() (any, bool) {
	if p.DefaultFn != nil {
		return p.DefaultFn(), true
	}
	if p.Default != nil {
		return coerce.Clone(p.Default), true
	}
	return nil, false
}
