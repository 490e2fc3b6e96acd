// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlcheck

import (
	"context"
	"database/sql"
)

// Decl is the value of a query declaration. It carries nothing; the
// declaration is read from source by the sqlcheck command.
type Decl struct {
	name string
}

// Name returns the name of the generated function.
func (d Decl) Name() string {
	return d.name
}

// Query declares a query whose rows are decoded into a record type generated
// for it. name is the name of the generated function and must be a constant,
// as must sql. args are the bind arguments, matched to the statement's
// parameters by position.
func Query(name, sql string, args ...any) Decl {
	return Decl{name: name}
}

// QueryAs declares a query whose rows are decoded into the existing struct
// type T, matching columns to fields by their `db` tags.
func QueryAs[T any](name, sql string, args ...any) Decl {
	return Decl{name: name}
}

// QueryFile is like [Query] but reads the statement from the file at path,
// relative to the module root.
func QueryFile(name, path string, args ...any) Decl {
	return Decl{name: name}
}

// QueryFileAs is like [QueryAs] but reads the statement from the file at
// path, relative to the module root.
func QueryFileAs[T any](name, path string, args ...any) Decl {
	return Decl{name: name}
}

// DBTX is what generated functions run queries on. It is satisfied by
// *sql.DB, *sql.Tx, *sql.Conn, *DB and *TX.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
	_ DBTX = (*sql.Conn)(nil)
	_ DBTX = (*DB)(nil)
	_ DBTX = (*TX)(nil)
)

// Collect decodes every row with scan and closes rows. It returns the rows
// decoded so far together with the first error.
func Collect[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()
	var all []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return all, err
		}
		all = append(all, v)
	}
	if err := rows.Err(); err != nil {
		return all, err
	}
	return all, rows.Close()
}
