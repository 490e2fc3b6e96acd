// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typemap

import (
	"reflect"
	"sort"
	"strconv"

	"github.com/canonical/sqlcheck/internal/query"
)

// Mode is how strictly Go types are matched against database types.
type Mode int

const (
	// Strong only accepts the Go types a database type maps to exactly.
	Strong Mode = iota
	// Weak also accepts Go types the driver converts implicitly.
	Weak
)

func (m Mode) String() string {
	if m == Weak {
		return "weak"
	}
	return "strong"
}

// Mapping is one Go type a database type can be exchanged with.
type Mapping struct {
	Type query.HostType
	// Exact is false when the driver has to convert values of Type.
	Exact bool
}

// Registry maps the types of one database backend to Go types. A Registry is
// built once at package initialisation and never modified, so it is safe for
// concurrent use.
type Registry struct {
	backend  string
	mode     Mode
	mappings map[query.TypeID][]Mapping
	// wildcard types are the parameters of backends that cannot type their
	// placeholders. Besides their mappings they accept driver.Valuer
	// implementations.
	wildcard map[query.TypeID]bool
	// paramOnly mappings can be bound as arguments but not decoded from
	// result columns through database/sql.
	paramOnly map[query.TypeID][]query.HostType
}

// entry is a line of a registry table. The Go types are given as sample
// values, their HostType is found by reflection.
type entry struct {
	id        query.TypeID
	exact     []any
	coercible []any
	// params are exact for arguments only.
	params   []any
	wildcard bool
}

func newRegistry(backend string, mode Mode, entries []entry) *Registry {
	r := &Registry{
		backend:  backend,
		mode:     mode,
		mappings:  make(map[query.TypeID][]Mapping, len(entries)),
		wildcard:  make(map[query.TypeID]bool),
		paramOnly: make(map[query.TypeID][]query.HostType),
	}
	for _, e := range entries {
		if _, ok := r.mappings[e.id]; ok {
			panic("internal error: type " + string(e.id) + " registered twice for " + backend)
		}
		ms := make([]Mapping, 0, len(e.exact)+len(e.coercible))
		for _, v := range e.exact {
			ms = append(ms, Mapping{Type: HostTypeOf(reflect.TypeOf(v)), Exact: true})
		}
		for _, v := range e.coercible {
			ms = append(ms, Mapping{Type: HostTypeOf(reflect.TypeOf(v))})
		}
		r.mappings[e.id] = ms
		for _, v := range e.params {
			r.paramOnly[e.id] = append(r.paramOnly[e.id], HostTypeOf(reflect.TypeOf(v)))
		}
		if e.wildcard {
			r.wildcard[e.id] = true
		}
	}
	return r
}

// Backend returns the name of the database backend.
func (r *Registry) Backend() string {
	return r.backend
}

// Mode returns the checking mode of the backend.
func (r *Registry) Mode() Mode {
	return r.mode
}

// CompatibleHostTypes returns the Go types registered for id, exact mappings
// first. The returned slice must not be modified.
func (r *Registry) CompatibleHostTypes(id query.TypeID) []Mapping {
	return r.mappings[id]
}

// HostType returns the Go type used to decode values of id. It is the first
// exact mapping registered for the type.
func (r *Registry) HostType(id query.TypeID) (query.HostType, bool) {
	for _, m := range r.mappings[id] {
		if m.Exact {
			return m.Type, true
		}
	}
	return query.HostType{}, false
}

// IsCompatible reports whether values of the declared Go type can be
// exchanged with the database type id under the registry's checking mode.
func (r *Registry) IsCompatible(id query.TypeID, declared query.HostType) bool {
	for _, m := range r.mappings[id] {
		if m.Type != declared {
			continue
		}
		if m.Exact || r.mode == Weak {
			return true
		}
	}
	return false
}

// IsParamCompatible reports whether an argument of the declared Go type can
// be bound to a parameter of type id. Pointers are checked through their
// element type, a nil pointer binds NULL.
func (r *Registry) IsParamCompatible(id query.TypeID, declared query.HostType) bool {
	elem := declared.Elem()
	for _, t := range r.paramOnly[id] {
		if t == elem {
			return true
		}
	}
	return r.IsCompatible(id, elem)
}

// AcceptsValuer reports whether a parameter of type id takes any
// driver.Valuer. Only untyped parameters do, a typed parameter cannot tell
// what the value will turn into.
func (r *Registry) AcceptsValuer(id query.TypeID) bool {
	return r.wildcard[id]
}

// TypeIDs returns the database types with at least one mapping.
func (r *Registry) TypeIDs() []query.TypeID {
	ids := make([]query.TypeID, 0, len(r.mappings))
	for id, ms := range r.mappings {
		if len(ms) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HostTypeOf returns the HostType of a reflected Go type.
func HostTypeOf(t reflect.Type) query.HostType {
	if t.Name() == "" {
		switch t.Kind() {
		case reflect.Pointer:
			return HostTypeOf(t.Elem()).Pointer()
		case reflect.Slice, reflect.Array:
			elem := HostTypeOf(t.Elem())
			if elem.Name == "uint8" {
				elem.Name = "byte"
			}
			prefix := "[]"
			if t.Kind() == reflect.Array {
				prefix = "[" + strconv.Itoa(t.Len()) + "]"
			}
			return query.HostType{Name: prefix + elem.Name, PkgPath: elem.PkgPath}
		}
	}
	return query.HostType{Name: t.String(), PkgPath: t.PkgPath()}
}
