// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package query

import (
	"errors"
	"fmt"
	"strings"
)

// Spanned is implemented by every error the pipeline reports. Span locates
// the source the error should be reported against.
type Spanned interface {
	error
	Span() Span
}

// DescribeErrorKind classifies a failed describe round trip.
type DescribeErrorKind int

const (
	// Connect means no connection to the database could be made.
	Connect DescribeErrorKind = iota
	// Rejected means the server refused the statement.
	Rejected
	// Unsupported means the server cannot describe this kind of statement.
	Unsupported
)

// DescribeError is returned when the database cannot describe a statement.
// Message is the server's diagnostic, passed through verbatim. Position is
// the 1-based character offset reported by the server, or zero.
type DescribeError struct {
	Kind     DescribeErrorKind
	Message  string
	Position int
	Err      error
	At       Span
}

func (e *DescribeError) Error() string {
	var b strings.Builder
	switch e.Kind {
	case Connect:
		b.WriteString("cannot connect to database")
	case Rejected:
		b.WriteString("query rejected by database")
		if e.Position > 0 {
			fmt.Fprintf(&b, " at position %d", e.Position)
		}
	default:
		b.WriteString("cannot describe query")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *DescribeError) Unwrap() error { return e.Err }
func (e *DescribeError) Span() Span    { return e.At }

// ArityMismatchError is returned when the number of arguments differs from the
// number of parameters the database found in the statement.
type ArityMismatchError struct {
	Params int
	Args   int
	At     Span
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("expected %d parameters, got %d", e.Params, e.Args)
}

func (e *ArityMismatchError) Span() Span { return e.At }

// ArgTypeMismatchError is returned when an argument cannot be bound to its
// parameter. Position is the 0-based index of the argument.
type ArgTypeMismatchError struct {
	Position int
	Expected TypeID
	Declared HostType
	At       Span
}

func (e *ArgTypeMismatchError) Error() string {
	return fmt.Sprintf("argument %d: cannot use %s as parameter $%d of type %s", e.Position, e.Declared, e.Position+1, e.Expected)
}

func (e *ArgTypeMismatchError) Span() Span { return e.At }

// UnresolvedColumnTypeError is returned when a result column has a database
// type with no Go mapping.
type UnresolvedColumnTypeError struct {
	Column string
	Type   TypeID
	At     Span
}

func (e *UnresolvedColumnTypeError) Error() string {
	return fmt.Sprintf("column %q: unsupported type %s", e.Column, e.Type)
}

func (e *UnresolvedColumnTypeError) Span() Span { return e.At }

// FieldMismatchError is returned when the columns of a query differ from the
// tagged fields of its named output type. Missing holds the tags of fields
// that no column fills. Extra holds the columns that have no field.
type FieldMismatchError struct {
	Type    string
	Missing []string
	Extra   []string
	At      Span
}

func (e *FieldMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf(`missing columns for fields of %q: "%s"`, e.Type, strings.Join(e.Missing, `", "`)))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, fmt.Sprintf(`no field of %q for columns: "%s"`, e.Type, strings.Join(e.Extra, `", "`)))
	}
	return strings.Join(parts, "; ")
}

func (e *FieldMismatchError) Span() Span { return e.At }

// FieldTypeMismatchError is returned when the declared type of a field of a
// named output type cannot hold the values of its column.
type FieldTypeMismatchError struct {
	Field    string
	Column   string
	Expected HostType
	Declared HostType
	At       Span
}

func (e *FieldTypeMismatchError) Error() string {
	return fmt.Sprintf("field %s: column %q needs type %s, field has type %s", e.Field, e.Column, e.Expected, e.Declared)
}

func (e *FieldTypeMismatchError) Span() Span { return e.At }

// DuplicateColumnNameError is returned when two result columns share a name.
type DuplicateColumnNameError struct {
	Name string
	At   Span
}

func (e *DuplicateColumnNameError) Error() string {
	return fmt.Sprintf("column %q appears more than once", e.Name)
}

func (e *DuplicateColumnNameError) Span() Span { return e.At }

// NoColumnsError is returned when a query with a named output type has no
// result columns.
type NoColumnsError struct {
	Type string
	At   Span
}

func (e *NoColumnsError) Error() string {
	return fmt.Sprintf("query must output at least one column to fill %q", e.Type)
}

func (e *NoColumnsError) Span() Span { return e.At }

// InvalidIdentifierError is returned when a column name cannot be turned into
// a Go field name.
type InvalidIdentifierError struct {
	Column string
	Reason string
	At     Span
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("column %q: %s", e.Column, e.Reason)
}

func (e *InvalidIdentifierError) Span() Span { return e.At }

// FileError is returned when the SQL of a file based declaration cannot be
// read.
type FileError struct {
	Path string
	Err  error
	At   Span
}

func (e *FileError) Error() string {
	return fmt.Sprintf("cannot read query file %q: %s", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
func (e *FileError) Span() Span    { return e.At }

// Diagnostic formats err the way compilers do, prefixed by the position of
// the source it refers to when there is one.
func Diagnostic(err error) string {
	var se Spanned
	if errors.As(err, &se) {
		if sp := se.Span(); sp.IsValid() {
			return sp.String() + ": " + err.Error()
		}
	}
	return err.Error()
}
