// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package sqlite describes statements by compiling them with SQLite.
// Compiled statements report their parameter count and, before they are
// stepped, their result column names and declared types.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/canonical/sqlcheck/internal/query"
	"github.com/canonical/sqlcheck/internal/sqltext"
	"github.com/canonical/sqlcheck/internal/typemap"
)

// Backend describes statements on a single SQLite connection.
type Backend struct {
	logger *zap.Logger

	db *sql.DB
	// mu serializes use of conn.
	mu   sync.Mutex
	conn *sql.Conn
}

// Open opens the SQLite database at dsn, a go-sqlite3 data source name.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Backend, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &query.DescribeError{Kind: query.Connect, Message: err.Error(), Err: err}
	}
	// Every describe runs on one connection so that in-memory databases
	// keep their schema.
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, &query.DescribeError{Kind: query.Connect, Message: err.Error(), Err: err}
	}
	return &Backend{logger: logger, db: db, conn: conn}, nil
}

// Registry implements describe.Backend.
func (b *Backend) Registry() *typemap.Registry {
	return typemap.SQLite
}

// Close implements describe.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.conn.Close(), b.db.Close())
}

// Exec runs statements on the described database, e.g. to create the
// schema of an in-memory database.
func (b *Backend) Exec(ctx context.Context, sql string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.conn.ExecContext(ctx, sql)
	return err
}

// Describe implements describe.Backend.
func (b *Backend) Describe(ctx context.Context, sql string) (*query.Description, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Prepare silently ignores anything after the first statement.
	if stmts, err := sqltext.Standard.Statements(sql); err == nil && len(stmts) > 1 {
		return nil, &query.DescribeError{Kind: query.Unsupported, Message: fmt.Sprintf("%d statements in one query", len(stmts))}
	}
	var desc *query.Description
	err := b.conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("internal error: driver connection is %T, not SQLite", driverConn)
		}
		var err error
		desc, err = describe(c, sql)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.logger.Debug("described statement",
		zap.Int("params", len(desc.Params)),
		zap.Int("columns", len(desc.Columns)),
	)
	return desc, nil
}

func describe(c *sqlite3.SQLiteConn, sql string) (*query.Description, error) {
	stmt, err := c.Prepare(sql)
	if err != nil {
		return nil, describeError(err)
	}
	defer stmt.Close()

	desc := &query.Description{}
	for i := 0; i < stmt.NumInput(); i++ {
		desc.Params = append(desc.Params, typemap.Any)
	}

	// Opening rows binds no values and does not step the statement, so
	// nothing is executed.
	rows, err := stmt.(*sqlite3.SQLiteStmt).Query(nil)
	if err != nil {
		return nil, describeError(err)
	}
	defer rows.Close()
	sqliteRows := rows.(*sqlite3.SQLiteRows)
	declTypes := sqliteRows.DeclTypes()
	for i, name := range sqliteRows.Columns() {
		desc.Columns = append(desc.Columns, query.Column{
			Name:        name,
			Type:        typemap.SQLiteAffinity(declTypes[i]),
			Nullability: query.Unknown,
		})
	}
	return desc, nil
}

func describeError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return &query.DescribeError{
			Kind:    query.Rejected,
			Message: strings.TrimPrefix(sqliteErr.Error(), "sqlite3: "),
			Err:     err,
		}
	}
	if errors.Is(err, driver.ErrBadConn) {
		return &query.DescribeError{Kind: query.Connect, Message: err.Error(), Err: err}
	}
	return &query.DescribeError{Kind: query.Unsupported, Message: err.Error(), Err: err}
}
