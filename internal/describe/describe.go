// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package describe asks a live database for the parameter and result shape
// of a statement without executing it.
package describe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/canonical/sqlcheck/internal/dburl"
	"github.com/canonical/sqlcheck/internal/describe/mysql"
	"github.com/canonical/sqlcheck/internal/describe/postgres"
	"github.com/canonical/sqlcheck/internal/describe/sqlite"
	"github.com/canonical/sqlcheck/internal/query"
	"github.com/canonical/sqlcheck/internal/typemap"
)

// Backend is a database that can describe statements. Describe must not
// have side effects on the database. Failures are *query.DescribeError
// values.
type Backend interface {
	Describe(ctx context.Context, sql string) (*query.Description, error)
	// Registry returns the type registry of the backend's type IDs.
	Registry() *typemap.Registry
	Close() error
}

var (
	_ Backend = (*postgres.Backend)(nil)
	_ Backend = (*sqlite.Backend)(nil)
	_ Backend = (*mysql.Backend)(nil)
)

type options struct {
	logger *zap.Logger
	schema []string
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger of the opened backend.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSchema sets statements run on the database once it is opened, such
// as the CREATE TABLE statements of an in-memory SQLite database. Only
// SQLite databases accept a schema.
func WithSchema(stmts ...string) Option {
	return func(o *options) {
		o.schema = append(o.schema, stmts...)
	}
}

// Open connects to the database at databaseURL and returns the backend for
// its dialect.
func Open(ctx context.Context, databaseURL string, opts ...Option) (Backend, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := dburl.Parse(databaseURL)
	if err != nil {
		return nil, err
	}
	dsn, err := u.DSN()
	if err != nil {
		return nil, err
	}
	logger := o.logger.With(zap.String("dialect", u.Dialect))
	logger.Debug("connecting to database", zap.String("url", u.Redacted()))

	if len(o.schema) > 0 && u.Dialect != dburl.DialectSQLite {
		return nil, fmt.Errorf("cannot apply schema to %s database, only SQLite is supported", u.Dialect)
	}

	switch u.Dialect {
	case dburl.DialectPostgres:
		return postgres.Open(ctx, dsn, logger)
	case dburl.DialectSQLite:
		b, err := sqlite.Open(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		for _, stmt := range o.schema {
			if err := b.Exec(ctx, stmt); err != nil {
				b.Close()
				return nil, fmt.Errorf("cannot apply schema: %w", err)
			}
		}
		return b, nil
	case dburl.DialectMySQL:
		return mysql.Open(ctx, dsn, logger)
	}
	return nil, fmt.Errorf("%w: %q", dburl.ErrUnknownDialect, u.Dialect)
}
