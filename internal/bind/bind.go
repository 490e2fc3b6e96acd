// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package bind checks the arguments of a query declaration against the
// parameter types the database described and plans how they are bound.
package bind

import (
	"go/token"
	"strconv"

	"github.com/canonical/sqlcheck/internal/query"
	"github.com/canonical/sqlcheck/internal/typemap"
)

// Step binds one argument to its positional parameter.
type Step struct {
	// Position is the 0-based index of the argument.
	Position int
	// Placeholder is the 1-based number of the parameter in the SQL.
	Placeholder int
	// Expr is the argument expression as written in the declaration.
	Expr string
	// Param is the name of the generated function parameter.
	Param string
	// Type is the Go type of the argument.
	Type query.HostType
	// ParamType is the database type of the parameter.
	ParamType query.TypeID
}

// Plan is the ordered list of bind steps, one per parameter.
type Plan struct {
	Steps []Step
}

// Arguments checks the arguments of in against the parameters in desc.
// Arguments and parameters are matched by position only.
func Arguments(in *query.Input, desc *query.Description, reg *typemap.Registry) (*Plan, error) {
	if len(in.Args) != len(desc.Params) {
		return nil, &query.ArityMismatchError{Params: len(desc.Params), Args: len(in.Args), At: in.Span}
	}

	plan := &Plan{Steps: make([]Step, 0, len(in.Args))}
	used := make(map[string]bool, len(in.Args))
	for i, arg := range in.Args {
		paramType := desc.Params[i]
		ok := reg.IsParamCompatible(paramType, arg.Type)
		if !ok && arg.Valuer {
			ok = reg.AcceptsValuer(paramType)
		}
		if !ok {
			return nil, &query.ArgTypeMismatchError{
				Position: i,
				Expected: paramType,
				Declared: arg.Type,
				At:       arg.Span,
			}
		}
		plan.Steps = append(plan.Steps, Step{
			Position:    i,
			Placeholder: i + 1,
			Expr:        arg.Expr,
			Param:       paramName(arg.Expr, i, used),
			Type:        arg.Type,
			ParamType:   paramType,
		})
	}
	return plan, nil
}

// reserved names are used by the generated function itself, or name the
// packages it imports.
var reserved = map[string]bool{
	"ctx": true, "db": true, "rows": true, "err": true, "r": true, "result": true,
	"sql": true, "context": true, "sqlcheck": true,
}

// paramName returns the expression when it is a plain identifier that can be
// used as a parameter name, and "argN" otherwise.
func paramName(expr string, i int, used map[string]bool) string {
	name := expr
	if !token.IsIdentifier(name) || name == "_" || reserved[name] || used[name] {
		name = "arg" + strconv.Itoa(i)
	}
	for used[name] {
		name += "_"
	}
	used[name] = true
	return name
}
