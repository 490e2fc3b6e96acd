// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typemap

import (
	"encoding/json"
	"time"
)

// MySQL is the registry of the MySQL backend. Type IDs are the names
// reported by the driver's ColumnType.DatabaseTypeName. MySQL does not type
// placeholders, parameters are ANY and checking is weak.
var MySQL = newRegistry("mysql", Weak, []entry{
	{id: "TINYINT", exact: []any{int8(0)}, coercible: []any{false, int(0), int64(0)}},
	{id: "SMALLINT", exact: []any{int16(0)}, coercible: []any{int(0), int64(0)}},
	{id: "MEDIUMINT", exact: []any{int32(0)}, coercible: []any{int(0), int64(0)}},
	{id: "INT", exact: []any{int32(0)}, coercible: []any{int(0), int64(0)}},
	{id: "BIGINT", exact: []any{int64(0)}, coercible: []any{int(0)}},
	{id: "UNSIGNED TINYINT", exact: []any{uint8(0)}, coercible: []any{uint(0), uint64(0)}},
	{id: "UNSIGNED SMALLINT", exact: []any{uint16(0)}, coercible: []any{uint(0), uint64(0)}},
	{id: "UNSIGNED MEDIUMINT", exact: []any{uint32(0)}, coercible: []any{uint(0), uint64(0)}},
	{id: "UNSIGNED INT", exact: []any{uint32(0)}, coercible: []any{uint(0), uint64(0)}},
	{id: "UNSIGNED BIGINT", exact: []any{uint64(0)}, coercible: []any{uint(0)}},
	{id: "FLOAT", exact: []any{float32(0)}, coercible: []any{float64(0)}},
	{id: "DOUBLE", exact: []any{float64(0)}},
	{id: "DECIMAL", exact: []any{""}, coercible: []any{float64(0)}},
	{id: "CHAR", exact: []any{""}, coercible: []any{[]byte(nil)}},
	{id: "VARCHAR", exact: []any{""}, coercible: []any{[]byte(nil)}},
	{id: "TEXT", exact: []any{""}, coercible: []any{[]byte(nil)}},
	{id: "ENUM", exact: []any{""}},
	{id: "SET", exact: []any{""}},
	{id: "BINARY", exact: []any{[]byte(nil)}},
	{id: "VARBINARY", exact: []any{[]byte(nil)}},
	{id: "BLOB", exact: []any{[]byte(nil)}, coercible: []any{""}},
	{id: "DATE", exact: []any{time.Time{}}},
	{id: "DATETIME", exact: []any{time.Time{}}},
	{id: "TIMESTAMP", exact: []any{time.Time{}}},
	{id: "TIME", exact: []any{""}},
	{id: "YEAR", exact: []any{int16(0)}},
	{id: "JSON", exact: []any{json.RawMessage(nil)}, coercible: []any{"", []byte(nil)}},
	{id: Any, coercible: basicValues, wildcard: true},
})
