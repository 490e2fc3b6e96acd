// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package query

import "strings"

// TypeID is a backend specific database type name, e.g. "int4" for Postgres
// or "INTEGER" for SQLite.
type TypeID string

func (id TypeID) String() string {
	if id == "" {
		return "<untyped>"
	}
	return string(id)
}

// Nullability is what the database knows about whether a result column can
// be NULL.
type Nullability int

const (
	Unknown Nullability = iota
	NotNull
	Null
)

func (n Nullability) String() string {
	switch n {
	case NotNull:
		return "not null"
	case Null:
		return "null"
	}
	return "unknown"
}

// MarshalYAML implements yaml.Marshaler.
func (n Nullability) MarshalYAML() (any, error) {
	return n.String(), nil
}

// MayBeNull reports whether a decoded value must tolerate NULL.
func (n Nullability) MayBeNull() bool {
	return n != NotNull
}

// Column describes one result column of a statement.
type Column struct {
	Name        string      `yaml:"name"`
	Type        TypeID      `yaml:"type"`
	Nullability Nullability `yaml:"nullability"`
}

// Description is the parameter and result shape of a statement as reported
// by the database, without executing it.
type Description struct {
	Params  []TypeID `yaml:"params"`
	Columns []Column `yaml:"columns"`
}

// HostType is a Go type as spelled in generated code.
type HostType struct {
	// Name is the type qualified by package name, e.g. "time.Time" or
	// "*string".
	Name string

	// PkgPath is the import path of the package the type is declared in. It
	// is empty for predeclared types.
	PkgPath string
}

func (h HostType) String() string {
	return h.Name
}

// IsPointer reports whether h is a pointer type.
func (h HostType) IsPointer() bool {
	return strings.HasPrefix(h.Name, "*")
}

// Pointer returns the type of a pointer to h.
func (h HostType) Pointer() HostType {
	return HostType{Name: "*" + h.Name, PkgPath: h.PkgPath}
}

// Elem returns the element type of a pointer type. Any other type is returned
// unchanged.
func (h HostType) Elem() HostType {
	if !h.IsPointer() {
		return h
	}
	return HostType{Name: h.Name[1:], PkgPath: h.PkgPath}
}
