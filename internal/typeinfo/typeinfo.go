// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"go/types"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/canonical/sqlcheck/internal/query"
)

// HostTypeOf returns the host type of a type checked Go type. Package
// qualifiers are package names, as they are spelled in source.
func HostTypeOf(t types.Type) query.HostType {
	t = types.Unalias(t)
	if b, ok := t.(*types.Basic); ok && b.Info()&types.IsUntyped != 0 {
		t = types.Default(t)
	}
	name := types.TypeString(t, func(p *types.Package) string { return p.Name() })
	name = strings.ReplaceAll(name, "]uint8", "]byte")
	return query.HostType{Name: name, PkgPath: pkgPathOf(t)}
}

// pkgPathOf returns the import path of the package the named type within t is
// declared in.
func pkgPathOf(t types.Type) string {
	switch t := types.Unalias(t).(type) {
	case *types.Named:
		if pkg := t.Obj().Pkg(); pkg != nil {
			return pkg.Path()
		}
	case *types.Pointer:
		return pkgPathOf(t.Elem())
	case *types.Slice:
		return pkgPathOf(t.Elem())
	case *types.Array:
		return pkgPathOf(t.Elem())
	}
	return ""
}

// IsValuer reports whether values of t implement driver.Valuer, so
// database/sql hands them to the driver through their Value method. A method
// with a pointer receiver does not count for a non-pointer t, database/sql
// does not take the address of arguments.
func IsValuer(t types.Type) bool {
	sel := types.NewMethodSet(t).Lookup(nil, "Value")
	if sel == nil {
		return false
	}
	sig, ok := sel.Type().(*types.Signature)
	if !ok || sig.Params().Len() != 0 || sig.Results().Len() != 2 {
		return false
	}
	value, ok := sig.Results().At(0).Type().Underlying().(*types.Interface)
	if !ok || value.NumMethods() != 0 {
		return false
	}
	return types.Identical(sig.Results().At(1).Type(), types.Universe.Lookup("error").Type())
}

// Fields returns the fields of the named struct type t that carry a "db" tag,
// in declaration order. from is the package the fields are accessed from;
// tagged fields must be visible from it.
func Fields(t types.Type, from *types.Package) ([]query.TargetField, error) {
	named, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return nil, fmt.Errorf("need named struct type, got %s", t)
	}
	st, ok := named.Underlying().(*types.Struct)
	if !ok {
		return nil, fmt.Errorf("need struct type, got %s", named.Underlying())
	}
	typeName := named.Obj().Name()

	var fields []query.TargetField
	tagToField := make(map[string]string)
	for i := 0; i < st.NumFields(); i++ {
		field := st.Field(i)
		// Fields without a "db" tag are outside of sqlcheck's remit.
		tag := reflect.StructTag(st.Tag(i)).Get("db")
		if tag == "" {
			continue
		}
		column, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("field %s of struct %q: %s", field.Name(), typeName, err)
		}
		if !field.Exported() && field.Pkg() != from {
			return nil, fmt.Errorf("field %s of struct %q is not exported", field.Name(), typeName)
		}
		if other, ok := tagToField[column]; ok {
			return nil, fmt.Errorf("db tag %q used by fields %s and %s of struct %q", column, other, field.Name(), typeName)
		}
		tagToField[column] = field.Name()
		fields = append(fields, query.TargetField{
			Field:  field.Name(),
			Column: column,
			Type:   HostTypeOf(field.Type()),
		})
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf(`no "db" tags found in struct %q`, typeName)
	}
	return fields, nil
}

// This expression should be aligned with the names FieldName accepts.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the "db" tag of a field and returns the column name. The
// "omitempty" option is accepted for compatibility with other mappers and
// ignored.
func parseTag(tag string) (string, error) {
	options := strings.Split(tag, ",")

	// Refuse to parse if there are more than 2 items.
	if len(options) > 2 {
		return "", fmt.Errorf("too many options in 'db' tag")
	}
	if len(options) == 2 {
		if strings.ToLower(options[1]) != "omitempty" {
			return "", fmt.Errorf("unexpected tag value %q", options[1])
		}
	}

	name := options[0]
	if len(name) == 0 {
		return "", fmt.Errorf("empty db tag")
	}

	if !validColNameRx.MatchString(name) {
		return "", fmt.Errorf("invalid column name in 'db' tag")
	}

	return name, nil
}

// initialisms are spelled in upper case in field names.
var initialisms = map[string]bool{
	"id": true, "url": true, "uuid": true, "json": true, "sql": true, "http": true, "ip": true, "api": true,
}

// FieldName returns the exported Go field name for a column of an anonymous
// record: "user_id" becomes "UserID". Columns that are not valid identifiers
// have no field name.
func FieldName(column string) (string, error) {
	if !validColNameRx.MatchString(column) {
		return "", fmt.Errorf("column name is not a valid identifier")
	}
	var b strings.Builder
	for _, part := range strings.Split(column, "_") {
		if part == "" {
			continue
		}
		if initialisms[strings.ToLower(part)] {
			b.WriteString(strings.ToUpper(part))
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	name := b.String()
	if name == "" || !unicode.IsLetter([]rune(name)[0]) {
		return "", fmt.Errorf("column name does not start with a letter")
	}
	return name, nil
}
