// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package render generates the Go file holding the functions and record
// types of a package's verified queries.
package render

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/canonical/sqlcheck/internal/expand"
	"github.com/canonical/sqlcheck/internal/output"
	"github.com/canonical/sqlcheck/internal/query"
)

// RuntimePath is the import path of the package generated code calls.
const RuntimePath = "github.com/canonical/sqlcheck"

// Header starts every generated file.
const Header = "// Code generated by sqlcheck. DO NOT EDIT."

// Package is the package code is generated for.
type Package struct {
	Name string
	Path string
}

type importSpec struct {
	Name string
	Path string
}

type param struct {
	Name string
	Type string
}

type recordField struct {
	Name   string
	Type   string
	Column string
}

type queryData struct {
	Name      string
	ConstName string
	SQL       string
	Params    []param
	Exec      bool
	Result    string
	// Record is set when a record type is generated for the query.
	Record []recordField
	Scan   []string
}

type fileData struct {
	Header  string
	Package string
	Std     []importSpec
	Imports []importSpec
	Queries []queryData
}

var fileTemplate = template.Must(template.New("file").Parse(`{{.Header}}

package {{.Package}}

import (
{{- range .Std}}
	{{if .Name}}{{.Name}} {{end}}"{{.Path}}"
{{- end}}
{{range .Imports}}
	{{if .Name}}{{.Name}} {{end}}"{{.Path}}"
{{- end}}
)
{{range .Queries}}
const {{.ConstName}} = {{.SQL}}
{{if .Record}}
// {{.Result}} is a row returned by {{.Name}}.
type {{.Result}} struct {
{{- range .Record}}
	{{.Name}} {{.Type}} ` + "`" + `db:"{{.Column}}"` + "`" + `
{{- end}}
}
{{end}}
{{- if .Exec}}
// {{.Name}} executes {{.ConstName}}.
func {{.Name}}(ctx context.Context, db sqlcheck.DBTX{{range .Params}}, {{.Name}} {{.Type}}{{end}}) (sql.Result, error) {
	return db.ExecContext(ctx, {{.ConstName}}{{range .Params}}, {{.Name}}{{end}})
}
{{else}}
// {{.Name}} runs {{.ConstName}} and returns every row.
func {{.Name}}(ctx context.Context, db sqlcheck.DBTX{{range .Params}}, {{.Name}} {{.Type}}{{end}}) ([]{{.Result}}, error) {
	rows, err := db.QueryContext(ctx, {{.ConstName}}{{range .Params}}, {{.Name}}{{end}})
	if err != nil {
		return nil, err
	}
	return sqlcheck.Collect(rows, func(rows *sql.Rows) ({{.Result}}, error) {
		var r {{.Result}}
		err := rows.Scan({{range $i, $f := .Scan}}{{if $i}}, {{end}}&r.{{$f}}{{end}})
		return r, err
	})
}
{{end}}
{{- end}}`))

// Render returns the formatted source of the generated file for the
// emitted expansions of pkg, in the order given.
func Render(pkg Package, expansions []*expand.Expansion) ([]byte, error) {
	r := &renderer{pkg: pkg, imports: make(map[string]string), taken: make(map[string]bool)}
	r.importName("context", "context")
	r.importName("database/sql", "sql")
	r.importName(RuntimePath, "sqlcheck")
	data := fileData{Header: Header, Package: pkg.Name}
	for _, x := range expansions {
		if x.State != expand.Emitted {
			return nil, fmt.Errorf("internal error: query %s is %s, not emitted", x.Input.Name, x.State)
		}
		data.Queries = append(data.Queries, r.query(x))
	}
	data.Std, data.Imports = r.importSpecs()

	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("cannot render package %s: %w", pkg.Path, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("internal error: generated code for package %s is invalid: %w", pkg.Path, err)
	}
	return src, nil
}

type renderer struct {
	pkg Package
	// imports maps import paths to the names the packages are imported as.
	imports map[string]string
	taken   map[string]bool
}

func (r *renderer) query(x *expand.Expansion) queryData {
	q := queryData{
		Name:      x.Input.Name,
		ConstName: lowerFirst(x.Input.Name) + "SQL",
		SQL:       sqlLiteral(x.Input.SQL),
	}
	for _, step := range x.Bind.Steps {
		q.Params = append(q.Params, param{Name: step.Param, Type: r.typeName(step.Type)})
	}
	switch x.Output.Kind {
	case output.None:
		q.Exec = true
	case output.Fresh:
		q.Result = x.Output.TypeName
		for _, f := range x.Output.Fields {
			q.Record = append(q.Record, recordField{Name: f.Name, Type: r.typeName(f.Type), Column: f.Column})
		}
	case output.Existing:
		q.Result = r.typeName(query.HostType{Name: x.Output.TypeName, PkgPath: x.Output.PkgPath})
	}
	for _, f := range x.Output.ScanOrder() {
		q.Scan = append(q.Scan, f.Name)
	}
	return q
}

// typeName spells t in the generated package, recording the import it needs.
func (r *renderer) typeName(t query.HostType) string {
	if t.PkgPath == "" {
		return t.Name
	}
	prefix, rest := splitTypePrefix(t.Name)
	qualifier, name, ok := strings.Cut(rest, ".")
	if !ok {
		return t.Name
	}
	if t.PkgPath == r.pkg.Path {
		return prefix + name
	}
	return prefix + r.importName(t.PkgPath, qualifier) + "." + name
}

// importName returns the name the package at pkgPath is imported as. A
// package whose name is already used by another import gets a numbered
// alias, in order of first use.
func (r *renderer) importName(pkgPath, name string) string {
	if n, ok := r.imports[pkgPath]; ok {
		return n
	}
	alias := name
	for i := 2; r.taken[alias]; i++ {
		alias = name + strconv.Itoa(i)
	}
	r.imports[pkgPath] = alias
	r.taken[alias] = true
	return alias
}

// importSpecs returns the standard library imports and the other imports,
// each sorted by path.
func (r *renderer) importSpecs() (std, other []importSpec) {
	for p, name := range r.imports {
		spec := importSpec{Path: p}
		if name != path.Base(p) {
			spec.Name = name
		}
		first, _, _ := strings.Cut(p, "/")
		if strings.Contains(first, ".") {
			other = append(other, spec)
		} else {
			std = append(std, spec)
		}
	}
	byPath := func(specs []importSpec) {
		sort.Slice(specs, func(i, j int) bool { return specs[i].Path < specs[j].Path })
	}
	byPath(std)
	byPath(other)
	return std, other
}

// splitTypePrefix splits the pointer, slice and array markers off a type.
func splitTypePrefix(name string) (prefix, rest string) {
	i := 0
	for i < len(name) {
		switch {
		case name[i] == '*':
			i++
		case strings.HasPrefix(name[i:], "[]"):
			i += 2
		case name[i] == '[':
			end := strings.IndexByte(name[i:], ']')
			if end < 0 {
				return name[:i], name[i:]
			}
			i += end + 1
		default:
			return name[:i], name[i:]
		}
	}
	return name, ""
}

func lowerFirst(s string) string {
	r := []rune(s)
	// Leading initialisms are lowered as a whole: "HTTPServer" becomes "httpServer".
	for i := 0; i < len(r) && unicode.IsUpper(r[i]); i++ {
		if i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) {
			break
		}
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

func sqlLiteral(sql string) string {
	if strings.Contains(sql, "`") || strings.Contains(sql, "\r") {
		return strconv.Quote(sql)
	}
	return "`" + sql + "`"
}

// WriteFileIfChanged writes content to path unless the file already holds
// exactly that content. It reports whether the file was written.
func WriteFileIfChanged(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return false, nil
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return false, err
	}
	return true, nil
}
