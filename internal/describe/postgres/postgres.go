// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package postgres describes statements with the extended query protocol of
// PostgreSQL: a statement is parsed and described by the server but never
// bound or executed.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/canonical/sqlcheck/internal/query"
	"github.com/canonical/sqlcheck/internal/sqltext"
	"github.com/canonical/sqlcheck/internal/typemap"
)

const (
	typeNameSQL = `SELECT typname FROM pg_catalog.pg_type WHERE oid = $1`
	notNullSQL  = `SELECT attnotnull FROM pg_catalog.pg_attribute WHERE attrelid = $1 AND attnum = $2`
)

// Backend describes statements on a single PostgreSQL connection.
type Backend struct {
	logger *zap.Logger

	// mu serializes use of conn.
	mu   sync.Mutex
	conn *pgx.Conn
	// typeNames caches the names of types unknown to pgx.
	typeNames map[uint32]query.TypeID
}

// Open connects to the server at dsn, a postgres:// URL or a keyword/value
// connection string.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Backend, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, &query.DescribeError{Kind: query.Connect, Message: err.Error(), Err: err}
	}
	return &Backend{
		logger:    logger,
		conn:      conn,
		typeNames: make(map[uint32]query.TypeID),
	}, nil
}

// Registry implements describe.Backend.
func (b *Backend) Registry() *typemap.Registry {
	return typemap.Postgres
}

// Close implements describe.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.Close(context.Background())
}

// Describe implements describe.Backend.
func (b *Backend) Describe(ctx context.Context, sql string) (*query.Description, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sd, err := b.conn.PgConn().Prepare(ctx, "", sql, nil)
	if err != nil {
		return nil, describeError(err)
	}

	desc := &query.Description{}
	nulled := mayNullColumns(sql)
	for _, oid := range sd.ParamOIDs {
		id, err := b.typeName(ctx, oid)
		if err != nil {
			return nil, err
		}
		desc.Params = append(desc.Params, id)
	}
	for _, f := range sd.Fields {
		id, err := b.typeName(ctx, f.DataTypeOID)
		if err != nil {
			return nil, err
		}
		nullability := query.Unknown
		if !nulled {
			nullability, err = b.nullability(ctx, f)
			if err != nil {
				return nil, err
			}
		}
		desc.Columns = append(desc.Columns, query.Column{
			Name:        f.Name,
			Type:        id,
			Nullability: nullability,
		})
	}
	b.logger.Debug("described statement",
		zap.Int("params", len(desc.Params)),
		zap.Int("columns", len(desc.Columns)),
		zap.Bool("nulled", nulled),
	)
	return desc, nil
}

// typeName returns the name of the type with the given OID. Built in types
// are named by pgx, user types (enums, domains, composites) by the catalog.
func (b *Backend) typeName(ctx context.Context, oid uint32) (query.TypeID, error) {
	if t, ok := b.conn.TypeMap().TypeForOID(oid); ok {
		return query.TypeID(t.Name), nil
	}
	if id, ok := b.typeNames[oid]; ok {
		return id, nil
	}
	var name string
	if err := b.conn.QueryRow(ctx, typeNameSQL, oid).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", &query.DescribeError{Kind: query.Unsupported, Message: fmt.Sprintf("no type with OID %d", oid)}
		}
		return "", describeError(err)
	}
	b.typeNames[oid] = query.TypeID(name)
	return query.TypeID(name), nil
}

// nullability looks up the NOT NULL constraint of the table column a result
// field is read from. Computed fields have unknown nullability.
func (b *Backend) nullability(ctx context.Context, f pgconn.FieldDescription) (query.Nullability, error) {
	if f.TableOID == 0 || f.TableAttributeNumber == 0 {
		return query.Unknown, nil
	}
	var notNull bool
	err := b.conn.QueryRow(ctx, notNullSQL, f.TableOID, int16(f.TableAttributeNumber)).Scan(&notNull)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return query.Unknown, nil
	case err != nil:
		return query.Unknown, describeError(err)
	case notNull:
		return query.NotNull, nil
	}
	return query.Unknown, nil
}

// mayNullColumns reports whether sql can produce NULL for columns declared NOT
// NULL. Outer joins do on their nullable side, grouping sets do for the
// columns they group by. The server does not say which side a field comes
// from, so every table column of such a statement is given unknown
// nullability. Text that cannot be scanned is assumed to null columns.
func mayNullColumns(sql string) bool {
	words, err := sqltext.Standard.Words(sql)
	if err != nil {
		return true
	}
	for i, w := range words {
		next := ""
		if i+1 < len(words) {
			next = words[i+1]
		}
		switch w {
		case "LEFT", "RIGHT", "FULL":
			if next == "JOIN" || next == "OUTER" {
				return true
			}
		case "ROLLUP", "CUBE":
			return true
		case "GROUPING":
			if next == "SETS" {
				return true
			}
		}
	}
	return false
}

// describeError classifies an error returned by the server or connection.
func describeError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &query.DescribeError{
			Kind:     query.Rejected,
			Message:  pgErr.Message,
			Position: int(pgErr.Position),
			Err:      err,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &query.DescribeError{Kind: query.Connect, Message: err.Error(), Err: err}
}
