// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typemap

import (
	"strings"
	"time"

	"github.com/canonical/sqlcheck/internal/query"
)

// Any is the type of parameters of backends that cannot type placeholders.
const Any query.TypeID = "ANY"

var basicValues = []any{
	false, "", []byte(nil),
	int(0), int8(0), int16(0), int32(0), int64(0),
	uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
	float32(0), float64(0), time.Time{},
}

// SQLite is the registry of the SQLite backend. Type IDs are the column
// affinities, with the declared types the driver decodes specially (BOOLEAN
// and DATETIME) kept apart. SQLite is dynamically typed so checking is weak.
var SQLite = newRegistry("sqlite", Weak, []entry{
	{id: "INTEGER", exact: []any{int64(0)}, coercible: []any{int(0), int32(0), int16(0), int8(0), uint32(0), uint16(0), uint8(0), false}},
	{id: "REAL", exact: []any{float64(0)}, coercible: []any{float32(0)}},
	{id: "TEXT", exact: []any{""}, coercible: []any{[]byte(nil)}},
	{id: "BLOB", exact: []any{[]byte(nil)}, coercible: []any{""}},
	{id: "NUMERIC", exact: []any{float64(0)}, coercible: []any{int64(0), int(0), ""}},
	{id: "BOOLEAN", exact: []any{false}, coercible: []any{int64(0)}},
	{id: "DATETIME", exact: []any{time.Time{}}, coercible: []any{""}},
	{id: Any, coercible: basicValues, wildcard: true},
})

// SQLiteAffinity returns the type ID for a column declared with the given
// type, following the affinity rules of SQLite. Types the driver decodes
// into bool and time.Time keep their own IDs. An empty declaration (an
// expression column) has no type ID.
func SQLiteAffinity(declType string) query.TypeID {
	t := strings.ToUpper(strings.TrimSpace(declType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "":
		return ""
	case "BOOLEAN", "BOOL":
		return "BOOLEAN"
	case "DATE", "DATETIME", "TIMESTAMP":
		return "DATETIME"
	}
	switch {
	case strings.Contains(t, "INT"):
		return "INTEGER"
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return "TEXT"
	case strings.Contains(t, "BLOB"):
		return "BLOB"
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return "REAL"
	}
	return "NUMERIC"
}
