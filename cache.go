// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlcheck

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// DB wraps a *sql.DB and prepares each query only once. The prepared
// statements are closed with the DB.
type DB struct {
	sqldb *sql.DB

	// mutex must be held when accessing stmts or closed.
	mutex  sync.RWMutex
	stmts  map[string]*sql.Stmt
	closed bool
}

// NewDB returns a DB that runs queries on sqldb.
func NewDB(sqldb *sql.DB) *DB {
	return &DB{sqldb: sqldb, stmts: map[string]*sql.Stmt{}}
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// prepareStmt returns the prepared statement for query, preparing it if it
// is not in the cache yet.
func (db *DB) prepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	db.mutex.RLock()
	stmt, ok := db.stmts[query]
	closed := db.closed
	db.mutex.RUnlock()
	if ok {
		return stmt, nil
	}
	if closed {
		return nil, errors.New("sql: database is closed")
	}

	stmt, err := db.sqldb.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if other, ok := db.stmts[query]; ok {
		stmt.Close()
		return other, nil
	}
	if db.closed {
		stmt.Close()
		return nil, errors.New("sql: database is closed")
	}
	db.stmts[query] = stmt
	return stmt, nil
}

// cachedStmt returns the prepared statement for query if there is one.
func (db *DB) cachedStmt(query string) (*sql.Stmt, bool) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	stmt, ok := db.stmts[query]
	return stmt, ok
}

// ExecContext implements DBTX.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt, err := db.prepareStmt(ctx, query)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx, args...)
}

// QueryContext implements DBTX.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt, err := db.prepareStmt(ctx, query)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, args...)
}

// QueryRowContext implements DBTX. If the query cannot be prepared the error
// is returned by Scan of the row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	stmt, err := db.prepareStmt(ctx, query)
	if err != nil {
		return db.sqldb.QueryRowContext(ctx, query, args...)
	}
	return stmt.QueryRowContext(ctx, args...)
}

// Close closes every prepared statement, then the database.
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	var errs []error
	for query, stmt := range db.stmts {
		errs = append(errs, stmt.Close())
		delete(db.stmts, query)
	}
	db.closed = true
	errs = append(errs, db.sqldb.Close())
	return errors.Join(errs...)
}

// TX is a transaction on a DB.
type TX struct {
	sqltx *sql.Tx
	db    *DB
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context, opts *sql.TxOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	return tx.sqltx.Commit()
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	return tx.sqltx.Rollback()
}

// A query run in a transaction reuses the statement already prepared on the
// DB if there is one, but does not prepare one itself.

// ExecContext implements DBTX.
func (tx *TX) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if stmt, ok := tx.db.cachedStmt(query); ok {
		return tx.sqltx.StmtContext(ctx, stmt).ExecContext(ctx, args...)
	}
	return tx.sqltx.ExecContext(ctx, query, args...)
}

// QueryContext implements DBTX.
func (tx *TX) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if stmt, ok := tx.db.cachedStmt(query); ok {
		return tx.sqltx.StmtContext(ctx, stmt).QueryContext(ctx, args...)
	}
	return tx.sqltx.QueryContext(ctx, query, args...)
}

// QueryRowContext implements DBTX.
func (tx *TX) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if stmt, ok := tx.db.cachedStmt(query); ok {
		return tx.sqltx.StmtContext(ctx, stmt).QueryRowContext(ctx, args...)
	}
	return tx.sqltx.QueryRowContext(ctx, query, args...)
}
