// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package query

import (
	"fmt"
	"go/token"
	"path/filepath"
	"strings"
)

// Span locates a piece of source code for diagnostics.
type Span = token.Position

// Argument is one bind argument of a query declaration. Expr is the source
// text of the expression, kept only for naming and error messages; Type is
// the host type the Go type checker inferred for the expression.
type Argument struct {
	Expr string
	Type HostType
	// Valuer is set when the type implements driver.Valuer.
	Valuer bool
	Span   Span
}

// Input is a single query declaration as found in user source.
type Input struct {
	// Name is the name of the generated function.
	Name string

	// SQL is the query text. It is empty for file based declarations until
	// LoadFile has been called.
	SQL string

	// Span locates the SQL argument (or the path argument) of the declaration.
	Span Span

	// Path is the query file of a file based declaration, relative to the
	// module root.
	Path string

	Args []Argument
}

// Loader reads a query file.
type Loader func(path string) ([]byte, error)

// IsFile reports whether the declaration reads its SQL from a file.
func (in *Input) IsFile() bool {
	return in.Path != ""
}

// LoadFile returns a copy of a file based input with the SQL read from the
// file at in.Path, resolved relative to root. Inputs with inline SQL are
// returned unchanged.
func (in *Input) LoadFile(root string, load Loader) (*Input, error) {
	if !in.IsFile() {
		return in, nil
	}
	path := in.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	content, err := load(path)
	if err != nil {
		return nil, &FileError{Path: in.Path, Err: err, At: in.Span}
	}
	sql := strings.TrimSpace(string(content))
	if sql == "" {
		return nil, &FileError{Path: in.Path, Err: fmt.Errorf("file is empty"), At: in.Span}
	}
	out := *in
	out.SQL = sql
	out.Args = append([]Argument(nil), in.Args...)
	return &out, nil
}
