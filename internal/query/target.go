// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package query

// TargetField is a field of a named output type that is bound to a result
// column through its "db" tag.
type TargetField struct {
	// Field is the Go field name.
	Field string
	// Column is the column name given in the "db" tag.
	Column string
	// Type is the declared type of the field.
	Type HostType
}

// Target is the output type of a query declaration. A Target that is not
// Named is anonymous, a fresh record type called Name is generated for it.
// Fields are only known for named targets.
type Target struct {
	Name    string
	PkgPath string
	Named   bool
	Fields  []TargetField
}

// Anonymous returns the target for a fresh record type.
func Anonymous(name string) Target {
	return Target{Name: name}
}

// Named returns the target for an existing struct type whose tagged fields
// are given in declaration order.
func Named(name, pkgPath string, fields []TargetField) Target {
	return Target{Name: name, PkgPath: pkgPath, Named: true, Fields: fields}
}

// RecordName is the deterministic name of the anonymous record generated for
// the query declaration called name.
func RecordName(name string) string {
	return name + "Record"
}
