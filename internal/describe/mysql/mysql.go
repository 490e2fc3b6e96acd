// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package mysql describes statements on MySQL and MariaDB servers. The
// server's prepare response gives the parameter count. Result columns of
// row statements are read from an empty result of the statement wrapped in
// a derived table.
package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/canonical/sqlcheck/internal/query"
	"github.com/canonical/sqlcheck/internal/sqltext"
	"github.com/canonical/sqlcheck/internal/typemap"
)

// Backend describes statements on a single MySQL connection.
type Backend struct {
	logger *zap.Logger

	db *sql.DB
	// mu serializes use of conn.
	mu   sync.Mutex
	conn *sql.Conn
}

// Open connects to the server at dsn, a go-sql-driver/mysql data source
// name.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Backend, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, &query.DescribeError{Kind: query.Connect, Message: err.Error(), Err: err}
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, &query.DescribeError{Kind: query.Connect, Message: err.Error(), Err: err}
	}
	db := sql.OpenDB(connector)
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, &query.DescribeError{Kind: query.Connect, Message: err.Error(), Err: err}
	}
	return &Backend{logger: logger, db: db, conn: conn}, nil
}

// Registry implements describe.Backend.
func (b *Backend) Registry() *typemap.Registry {
	return typemap.MySQL
}

// Close implements describe.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.conn.Close(), b.db.Close())
}

// Describe implements describe.Backend.
func (b *Backend) Describe(ctx context.Context, sql string) (*query.Description, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A syntax error is left for the server to report.
	stmt, err := sqltext.MySQL.Trim(sql)
	if err != nil {
		stmt = sql
	}
	if stmts, err := sqltext.MySQL.Statements(sql); err == nil && len(stmts) > 1 {
		return nil, &query.DescribeError{Kind: query.Unsupported, Message: fmt.Sprintf("%d statements in one query", len(stmts))}
	}

	n, err := b.numInput(ctx, stmt)
	if err != nil {
		return nil, err
	}
	desc := &query.Description{}
	for i := 0; i < n; i++ {
		desc.Params = append(desc.Params, typemap.Any)
	}
	if returnsRows(stmt) {
		if construct := sideEffect(stmt); construct != "" {
			return nil, &query.DescribeError{Kind: query.Unsupported, Message: construct + " has effects even when no row is read"}
		}
		desc.Columns, err = b.columns(ctx, stmt, n)
		if err != nil {
			return nil, err
		}
	}
	b.logger.Debug("described statement",
		zap.Int("params", len(desc.Params)),
		zap.Int("columns", len(desc.Columns)),
	)
	return desc, nil
}

// numInput prepares sql on the server and returns its parameter count.
func (b *Backend) numInput(ctx context.Context, sql string) (int, error) {
	var n int
	err := b.conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(driver.ConnPrepareContext)
		if !ok {
			return fmt.Errorf("internal error: driver connection %T cannot prepare", driverConn)
		}
		stmt, err := c.PrepareContext(ctx, sql)
		if err != nil {
			return describeError(err)
		}
		defer stmt.Close()
		n = stmt.NumInput()
		return nil
	})
	return n, err
}

// columns reads the result columns of a row statement, trimmed of trailing
// comments and semicolons. The statement is wrapped so that the server
// returns no rows.
func (b *Backend) columns(ctx context.Context, stmt string, params int) ([]query.Column, error) {
	wrapped := "SELECT * FROM (" + stmt + ") AS sqlcheck_describe LIMIT 0"
	args := make([]any, params)
	rows, err := b.conn.QueryContext(ctx, wrapped, args...)
	if err != nil {
		return nil, describeError(err)
	}
	defer rows.Close()
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, describeError(err)
	}
	var columns []query.Column
	for _, ct := range columnTypes {
		nullability := query.Unknown
		if nullable, ok := ct.Nullable(); ok && !nullable {
			nullability = query.NotNull
		}
		columns = append(columns, query.Column{
			Name:        ct.Name(),
			Type:        query.TypeID(ct.DatabaseTypeName()),
			Nullability: nullability,
		})
	}
	return columns, rows.Err()
}

// returnsRows reports whether sql is a statement that produces a result set
// and can be used as a derived table.
func returnsRows(sql string) bool {
	switch sqltext.MySQL.LeadingKeyword(sql) {
	case "SELECT", "WITH", "VALUES", "TABLE":
		return true
	}
	return false
}

// lockFunctions act when they are evaluated, whatever the rows read.
var lockFunctions = map[string]bool{
	"GET_LOCK": true, "RELEASE_LOCK": true, "RELEASE_ALL_LOCKS": true, "SLEEP": true, "BENCHMARK": true,
}

// sideEffect returns the construct of a row statement that could act on the
// server while its columns are read, or "" if there is none. The server may
// evaluate parts of the wrapped statement despite the LIMIT 0, so locking
// reads and lock functions are refused. Stored functions cannot be seen
// from the text and are not checked.
func sideEffect(stmt string) string {
	words, err := sqltext.MySQL.Words(stmt)
	if err != nil {
		return ""
	}
	for i, w := range words {
		next := ""
		if i+1 < len(words) {
			next = words[i+1]
		}
		switch {
		case w == "FOR" && (next == "UPDATE" || next == "SHARE"):
			return "FOR " + next
		case w == "LOCK" && next == "IN":
			return "LOCK IN SHARE MODE"
		case lockFunctions[w]:
			return w
		}
	}
	return ""
}

func describeError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return &query.DescribeError{Kind: query.Rejected, Message: myErr.Message, Err: err}
	}
	var descErr *query.DescribeError
	if errors.As(err, &descErr) {
		return descErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &query.DescribeError{Kind: query.Connect, Message: err.Error(), Err: err}
}
