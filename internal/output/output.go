// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package output resolves the result columns of a described query against
// the Go type rows are decoded into.
package output

import (
	"sort"

	"github.com/canonical/sqlcheck/internal/query"
	"github.com/canonical/sqlcheck/internal/typeinfo"
	"github.com/canonical/sqlcheck/internal/typemap"
)

// Kind says whether a query decodes rows, and into which type.
type Kind int

const (
	// None is the plan of statements without result columns.
	None Kind = iota
	// Fresh plans decode into a record type generated for the query.
	Fresh
	// Existing plans decode into a named type declared by the user.
	Existing
)

func (k Kind) String() string {
	switch k {
	case Fresh:
		return "fresh"
	case Existing:
		return "existing"
	}
	return "none"
}

// Field is a field of the output type and the result column decoded into it.
type Field struct {
	// Name is the Go field name.
	Name string
	// Column is the name of the result column.
	Column string
	// Index is the position of the column in a row.
	Index int
	// Type is the Go type of the field.
	Type        query.HostType
	Nullability query.Nullability
}

// Plan describes the output type of a query and how each row is decoded.
type Plan struct {
	Kind     Kind
	TypeName string
	PkgPath  string
	// Fields are in the declaration order of the output type.
	Fields []Field
}

// ScanOrder returns the fields in the order of the row columns.
func (p *Plan) ScanOrder() []Field {
	fields := append([]Field(nil), p.Fields...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Index < fields[j].Index })
	return fields
}

// ColumnType returns the Go type values of col decode into. The type is a
// pointer exactly when the column may be NULL. It reports false if the
// column's database type has no Go mapping.
func ColumnType(col query.Column, reg *typemap.Registry) (query.HostType, bool) {
	t, ok := reg.HostType(col.Type)
	if !ok {
		return query.HostType{}, false
	}
	if col.Nullability.MayBeNull() {
		t = t.Pointer()
	}
	return t, true
}

// Resolve plans how the result columns in desc are decoded into target. span
// locates the query declaration for errors that concern the whole query.
func Resolve(target query.Target, desc *query.Description, reg *typemap.Registry, span query.Span) (*Plan, error) {
	if len(desc.Columns) == 0 {
		if target.Named {
			return nil, &query.NoColumnsError{Type: target.Name, At: span}
		}
		return &Plan{Kind: None}, nil
	}

	seen := make(map[string]bool, len(desc.Columns))
	for _, col := range desc.Columns {
		if seen[col.Name] {
			return nil, &query.DuplicateColumnNameError{Name: col.Name, At: span}
		}
		seen[col.Name] = true
	}

	types := make([]query.HostType, len(desc.Columns))
	for i, col := range desc.Columns {
		t, ok := ColumnType(col, reg)
		if !ok {
			return nil, &query.UnresolvedColumnTypeError{Column: col.Name, Type: col.Type, At: span}
		}
		types[i] = t
	}

	if target.Named {
		return resolveNamed(target, desc, types, reg, span)
	}
	return resolveAnonymous(target, desc, types, span)
}

func resolveAnonymous(target query.Target, desc *query.Description, types []query.HostType, span query.Span) (*Plan, error) {
	plan := &Plan{Kind: Fresh, TypeName: target.Name, PkgPath: target.PkgPath}
	byName := make(map[string]string, len(desc.Columns))
	for i, col := range desc.Columns {
		name, err := typeinfo.FieldName(col.Name)
		if err != nil {
			return nil, &query.InvalidIdentifierError{Column: col.Name, Reason: err.Error(), At: span}
		}
		if other, ok := byName[name]; ok {
			return nil, &query.InvalidIdentifierError{
				Column: col.Name,
				Reason: "field name " + name + " is also used by column \"" + other + "\"",
				At:     span,
			}
		}
		byName[name] = col.Name
		plan.Fields = append(plan.Fields, Field{
			Name:        name,
			Column:      col.Name,
			Index:       i,
			Type:        types[i],
			Nullability: col.Nullability,
		})
	}
	return plan, nil
}

func resolveNamed(target query.Target, desc *query.Description, types []query.HostType, reg *typemap.Registry, span query.Span) (*Plan, error) {
	columnIndex := make(map[string]int, len(desc.Columns))
	for i, col := range desc.Columns {
		columnIndex[col.Name] = i
	}
	declared := make(map[string]bool, len(target.Fields))
	var missing, extra []string
	for _, f := range target.Fields {
		declared[f.Column] = true
		if _, ok := columnIndex[f.Column]; !ok {
			missing = append(missing, f.Column)
		}
	}
	for _, col := range desc.Columns {
		if !declared[col.Name] {
			extra = append(extra, col.Name)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return nil, &query.FieldMismatchError{Type: target.Name, Missing: missing, Extra: extra, At: span}
	}

	plan := &Plan{Kind: Existing, TypeName: target.Name, PkgPath: target.PkgPath}
	for _, f := range target.Fields {
		i := columnIndex[f.Column]
		col := desc.Columns[i]
		if !fieldAccepts(reg, col, f.Type) {
			return nil, &query.FieldTypeMismatchError{
				Field:    f.Field,
				Column:   col.Name,
				Expected: types[i],
				Declared: f.Type,
				At:       span,
			}
		}
		plan.Fields = append(plan.Fields, Field{
			Name:        f.Field,
			Column:      col.Name,
			Index:       i,
			Type:        f.Type,
			Nullability: col.Nullability,
		})
	}
	return plan, nil
}

// fieldAccepts reports whether a field of the declared type can hold every
// value of col. Columns that may be NULL need a pointer field, columns that
// cannot be NULL need a bare one.
func fieldAccepts(reg *typemap.Registry, col query.Column, declared query.HostType) bool {
	if col.Nullability.MayBeNull() != declared.IsPointer() {
		return false
	}
	return reg.IsCompatible(col.Type, declared.Elem())
}
