// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typemap

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Postgres is the registry of the PostgreSQL backend. Type IDs are the
// names of pg_type entries. Postgres types every parameter, so arguments are
// checked strongly.
//
// Generated code decodes rows through database/sql, where the pgx driver
// hands over most types as their text form. Result mappings are limited to
// types that scan from what the driver produces. Arrays are bound natively by
// pgx but cannot be decoded, so they are parameter types only.
var Postgres = newRegistry("postgres", Strong, []entry{
	{id: "bool", exact: []any{false}},
	{id: "int2", exact: []any{int16(0)}},
	{id: "int4", exact: []any{int32(0)}, coercible: []any{int(0), int16(0)}},
	{id: "int8", exact: []any{int64(0)}, coercible: []any{int(0), int32(0), int16(0)}},
	{id: "float4", exact: []any{float32(0)}},
	{id: "float8", exact: []any{float64(0)}, coercible: []any{float32(0)}},
	{id: "numeric", exact: []any{pgtype.Numeric{}}, coercible: []any{float64(0), string("")}},
	{id: "text", exact: []any{""}},
	{id: "varchar", exact: []any{""}},
	{id: "bpchar", exact: []any{""}},
	{id: "name", exact: []any{""}},
	{id: "bytea", exact: []any{[]byte(nil)}},
	{id: "uuid", exact: []any{uuid.UUID{}}, coercible: []any{"", [16]byte{}}},
	{id: "date", exact: []any{time.Time{}}},
	{id: "timestamp", exact: []any{time.Time{}}},
	{id: "timestamptz", exact: []any{time.Time{}}},
	{id: "interval", exact: []any{pgtype.Interval{}}, params: []any{time.Duration(0)}},
	{id: "json", exact: []any{[]byte(nil)}, coercible: []any{json.RawMessage(nil), ""}},
	{id: "jsonb", exact: []any{[]byte(nil)}, coercible: []any{json.RawMessage(nil), ""}},
	{id: "oid", exact: []any{uint32(0)}},
	{id: "_bool", params: []any{[]bool(nil)}},
	{id: "_int2", params: []any{[]int16(nil)}},
	{id: "_int4", params: []any{[]int32(nil)}},
	{id: "_int8", params: []any{[]int64(nil)}},
	{id: "_float8", params: []any{[]float64(nil)}},
	{id: "_text", params: []any{[]string(nil)}},
	{id: "_varchar", params: []any{[]string(nil)}},
	{id: "_uuid", params: []any{[]uuid.UUID(nil)}},
})
