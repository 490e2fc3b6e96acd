// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package source finds query declarations in Go packages. Packages are
// loaded and type checked with go/packages; every call of a marker function
// of the runtime package becomes a query input and an output target.
package source

import (
	"context"
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/tools/go/packages"

	"github.com/canonical/sqlcheck/internal/query"
	"github.com/canonical/sqlcheck/internal/typeinfo"
)

// RuntimePath is the import path of the package declaring the markers.
const RuntimePath = "github.com/canonical/sqlcheck"

// Marker names.
const (
	markerQuery       = "Query"
	markerQueryAs     = "QueryAs"
	markerQueryFile   = "QueryFile"
	markerQueryFileAs = "QueryFileAs"
)

// Decl is one query declaration.
type Decl struct {
	Input  *query.Input
	Target query.Target
}

// Package is a loaded package and the query declarations found in it.
type Package struct {
	Name string
	Path string
	Dir  string
	// ModuleRoot is the directory of the go.mod file of the package's module.
	ModuleRoot string
	Decls      []Decl
	// Errors are the invalid declarations of the package, as *Error values,
	// and the errors that stopped it from being loaded.
	Errors []error
}

// Error is an invalid query declaration.
type Error struct {
	Message string
	At      query.Span
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Span() query.Span { return e.At }

// Config configures Load.
type Config struct {
	// Dir is the directory patterns are resolved in.
	Dir string
	// Output is the base name of the generated file. Declarations in files
	// with that name are ignored, as are generated functions when checking
	// for name clashes.
	Output string
	Logger *zap.Logger
}

const loadMode = packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
	packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedModule

// Load loads the packages matching patterns and finds their query
// declarations. Type errors do not stop a package from being scanned: the
// functions of a package's generated file may not exist yet.
func Load(ctx context.Context, cfg Config, patterns ...string) ([]*Package, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pkgs, err := packages.Load(&packages.Config{
		Context: ctx,
		Mode:    loadMode,
		Dir:     cfg.Dir,
	}, patterns...)
	if err != nil {
		return nil, fmt.Errorf("cannot load packages: %w", err)
	}

	var result []*Package
	for _, pkg := range pkgs {
		if pkg.PkgPath == RuntimePath {
			continue
		}
		p := &Package{Name: pkg.Name, Path: pkg.PkgPath}
		if len(pkg.GoFiles) > 0 {
			p.Dir = filepath.Dir(pkg.GoFiles[0])
		}
		p.ModuleRoot = p.Dir
		if pkg.Module != nil && pkg.Module.Dir != "" {
			p.ModuleRoot = pkg.Module.Dir
		}

		fatal := false
		for _, e := range pkg.Errors {
			if e.Kind == packages.TypeError {
				logger.Debug("ignoring type error", zap.String("package", pkg.PkgPath), zap.String("error", e.Error()))
				continue
			}
			fatal = true
			p.Errors = append(p.Errors, e)
		}
		if !fatal && pkg.Types != nil && pkg.TypesInfo != nil {
			s := &scanner{pkg: pkg, output: cfg.Output, names: map[string]token.Position{}}
			s.scan()
			p.Decls = s.decls
			p.Errors = append(p.Errors, s.errs...)
		}
		logger.Debug("scanned package",
			zap.String("package", pkg.PkgPath),
			zap.Int("decls", len(p.Decls)),
			zap.Int("errors", len(p.Errors)),
		)
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

type scanner struct {
	pkg    *packages.Package
	output string
	decls  []Decl
	errs   []error
	// names maps declared function names to their declaration.
	names map[string]token.Position
}

func (s *scanner) errorf(pos token.Pos, format string, args ...any) {
	s.errs = append(s.errs, &Error{Message: fmt.Sprintf(format, args...), At: s.pkg.Fset.Position(pos)})
}

func (s *scanner) scan() {
	for _, file := range s.pkg.Syntax {
		filename := s.pkg.Fset.Position(file.Package).Filename
		if s.output != "" && filepath.Base(filename) == s.output {
			continue
		}
		ast.Inspect(file, func(n ast.Node) bool {
			if call, ok := n.(*ast.CallExpr); ok {
				if marker, typeArg, ok := s.markerOf(call.Fun); ok {
					s.declaration(call, marker, typeArg)
				}
			}
			return true
		})
	}
	sort.SliceStable(s.decls, func(i, j int) bool {
		a, b := s.decls[i].Input.Span, s.decls[j].Input.Span
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		return a.Offset < b.Offset
	})
}

// markerOf reports whether fun is one of the markers of the runtime package,
// and returns its name and the expression of its type argument.
func (s *scanner) markerOf(fun ast.Expr) (string, ast.Expr, bool) {
	var typeArg ast.Expr
	fun = ast.Unparen(fun)
	switch f := fun.(type) {
	case *ast.IndexExpr:
		fun, typeArg = f.X, f.Index
	case *ast.IndexListExpr:
		fun = f.X
		if len(f.Indices) > 0 {
			typeArg = f.Indices[0]
		}
	}
	var ident *ast.Ident
	switch f := fun.(type) {
	case *ast.Ident:
		ident = f
	case *ast.SelectorExpr:
		ident = f.Sel
	default:
		return "", nil, false
	}
	fn, ok := s.pkg.TypesInfo.Uses[ident].(*types.Func)
	if !ok || fn.Pkg() == nil || fn.Pkg().Path() != RuntimePath {
		return "", nil, false
	}
	switch fn.Name() {
	case markerQuery, markerQueryAs, markerQueryFile, markerQueryFileAs:
		return fn.Name(), typeArg, true
	}
	return "", nil, false
}

func (s *scanner) declaration(call *ast.CallExpr, marker string, typeArg ast.Expr) {
	info := s.pkg.TypesInfo
	if len(call.Args) < 2 {
		s.errorf(call.Pos(), "%s needs a name and a query", marker)
		return
	}
	name, ok := constString(info, call.Args[0])
	if !ok {
		s.errorf(call.Args[0].Pos(), "query name must be a constant string")
		return
	}
	if !token.IsIdentifier(name) || name == "_" {
		s.errorf(call.Args[0].Pos(), "query name %q is not a valid Go identifier", name)
		return
	}
	text, ok := constString(info, call.Args[1])
	if !ok {
		s.errorf(call.Args[1].Pos(), "query of %s must be a constant string", name)
		return
	}
	if prev, ok := s.names[name]; ok {
		s.errorf(call.Args[0].Pos(), "query %s already declared at %s", name, prev)
		return
	}
	namePos := s.pkg.Fset.Position(call.Args[0].Pos())
	s.names[name] = namePos
	for _, declared := range []string{name, query.RecordName(name)} {
		if obj := s.pkg.Types.Scope().Lookup(declared); obj != nil && !s.generated(obj.Pos()) {
			s.errorf(call.Args[0].Pos(), "%s is already declared at %s", declared, s.pkg.Fset.Position(obj.Pos()))
			return
		}
	}
	if call.Ellipsis.IsValid() {
		s.errorf(call.Ellipsis, "arguments of %s must be listed, not spread", name)
		return
	}

	in := &query.Input{Name: name, Span: s.pkg.Fset.Position(call.Args[1].Pos())}
	switch marker {
	case markerQueryFile, markerQueryFileAs:
		if text == "" {
			s.errorf(call.Args[1].Pos(), "query file of %s is empty", name)
			return
		}
		in.Path = filepath.ToSlash(text)
	default:
		if strings.TrimSpace(text) == "" {
			s.errorf(call.Args[1].Pos(), "query of %s is empty", name)
			return
		}
		in.SQL = text
	}

	for i, arg := range call.Args[2:] {
		tv, ok := info.Types[arg]
		if !ok || tv.Type == nil {
			s.errorf(arg.Pos(), "argument %d of %s has no type", i, name)
			return
		}
		if tv.IsNil() {
			s.errorf(arg.Pos(), "argument %d of %s is untyped nil, use a typed nil pointer", i, name)
			return
		}
		in.Args = append(in.Args, query.Argument{
			Expr:   types.ExprString(arg),
			Type:   typeinfo.HostTypeOf(tv.Type),
			Valuer: typeinfo.IsValuer(tv.Type),
			Span:   s.pkg.Fset.Position(arg.Pos()),
		})
	}

	target := query.Anonymous(query.RecordName(name))
	if marker == markerQueryAs || marker == markerQueryFileAs {
		if typeArg == nil {
			s.errorf(call.Pos(), "%s needs a type argument", marker)
			return
		}
		t := info.TypeOf(typeArg)
		named, ok := types.Unalias(t).(*types.Named)
		if ok && named.TypeArgs().Len() > 0 {
			s.errorf(typeArg.Pos(), "cannot decode rows of %s into generic type %s", name, t)
			return
		}
		fields, err := typeinfo.Fields(t, s.pkg.Types)
		if err != nil {
			s.errorf(typeArg.Pos(), "cannot decode rows of %s: %s", name, err)
			return
		}
		obj := named.Obj()
		if obj.Parent() != obj.Pkg().Scope() {
			s.errorf(typeArg.Pos(), "cannot decode rows of %s into %s, it is not declared at package level", name, obj.Name())
			return
		}
		typeName := obj.Name()
		if obj.Pkg() != s.pkg.Types {
			typeName = obj.Pkg().Name() + "." + typeName
		}
		target = query.Named(typeName, obj.Pkg().Path(), fields)
	}
	s.decls = append(s.decls, Decl{Input: in, Target: target})
}

// generated reports whether pos is in the generated file.
func (s *scanner) generated(pos token.Pos) bool {
	return s.output != "" && filepath.Base(s.pkg.Fset.Position(pos).Filename) == s.output
}

func constString(info *types.Info, e ast.Expr) (string, bool) {
	tv, ok := info.Types[e]
	if !ok || tv.Value == nil || tv.Value.Kind() != constant.String {
		return "", false
	}
	return constant.StringVal(tv.Value), true
}
