// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const schema = `
CREATE TABLE person (
	id   INTEGER PRIMARY KEY,
	name TEXT
);
`

// personDB creates a SQLite database holding the person table and returns
// its URL.
func personDB(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "person.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return "sqlite:" + path
}

// appDir creates a package directory inside the module, so that the
// package can import the runtime package, and writes the given files to it.
func appDir(t *testing.T, files map[string]string) string {
	require.NoError(t, os.MkdirAll("testdata", 0755))
	dir, err := os.MkdirTemp("testdata", "app-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	dir, err = filepath.Abs(dir)
	require.NoError(t, err)
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

type execResult struct {
	stdout string
	stderr string
	err    error
}

func execute(t *testing.T, args ...string) execResult {
	t.Setenv("DATABASE_URL", "")
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return execResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

const goodQueries = `package app

import "github.com/canonical/sqlcheck"

type Person struct {
	ID   *int64  ` + "`db:\"id\"`" + `
	Name *string ` + "`db:\"name\"`" + `
}

var id int64

var (
	_ = sqlcheck.Query("PersonByID", "SELECT id, name FROM person WHERE id = ?", id)
	_ = sqlcheck.QueryAs[Person]("People", "SELECT name, id FROM person")
	_ = sqlcheck.Query("DeletePerson", "DELETE FROM person WHERE id = ?", id)
)
`

func TestGenerateAndCheck(t *testing.T) {
	url := personDB(t)
	dir := appDir(t, map[string]string{"queries.go": goodQueries})
	pattern := filepath.Join(dir, "queries.go")
	gen := filepath.Join(dir, "sqlcheck_gen.go")

	// Nothing generated yet.
	res := execute(t, "check", "-C", dir, "--database-url", url, pattern)
	assert.ErrorIs(t, res.err, errDiagnostics)
	assert.Contains(t, res.stderr, "generated file is out of date")
	assert.NoFileExists(t, gen)

	res = execute(t, "generate", "-C", dir, "--database-url", url, pattern)
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "wrote "+gen+"\n", res.stdout)

	content, err := os.ReadFile(gen)
	require.NoError(t, err)
	src := string(content)
	assert.Contains(t, src, "// Code generated by sqlcheck. DO NOT EDIT.")
	assert.Contains(t, src, "func PersonByID(ctx context.Context, db sqlcheck.DBTX, id int64) ([]PersonByIDRecord, error) {")
	assert.Contains(t, src, "func People(ctx context.Context, db sqlcheck.DBTX) ([]Person, error) {")
	assert.Contains(t, src, "err := rows.Scan(&r.Name, &r.ID)")
	assert.Contains(t, src, "func DeletePerson(ctx context.Context, db sqlcheck.DBTX, id int64) (sql.Result, error) {")

	// Up to date: check passes and generate leaves the file alone.
	res = execute(t, "check", "-C", dir, "--database-url", url, pattern)
	assert.NoError(t, res.err, res.stderr)
	res = execute(t, "generate", "-C", dir, "--database-url", url, pattern)
	assert.NoError(t, res.err, res.stderr)
	assert.Equal(t, "", res.stdout)
}

func TestGenerateInvalidQuery(t *testing.T) {
	url := personDB(t)
	dir := appDir(t, map[string]string{"queries.go": `package app

import "github.com/canonical/sqlcheck"

var (
	_ = sqlcheck.Query("Nope", "SELECT id FROM nope")
	_ = sqlcheck.Query("All", "SELECT id FROM person")
)
`})
	pattern := filepath.Join(dir, "queries.go")

	res := execute(t, "generate", "-C", dir, "--database-url", url, pattern)
	assert.ErrorIs(t, res.err, errDiagnostics)
	assert.Contains(t, res.stderr, "queries.go:6:29: query rejected by database: no such table: nope")
	assert.NoFileExists(t, filepath.Join(dir, "sqlcheck_gen.go"))
}

func TestRemoveStaleFile(t *testing.T) {
	url := personDB(t)
	dir := appDir(t, map[string]string{
		"queries.go":      "package app\n",
		"sqlcheck_gen.go": "// Code generated by sqlcheck. DO NOT EDIT.\n\npackage app\n",
		"other_gen.go":    "package app\n",
	})
	gen := filepath.Join(dir, "sqlcheck_gen.go")

	res := execute(t, "check", "-C", dir, "--database-url", url, filepath.Join(dir, "queries.go"))
	assert.ErrorIs(t, res.err, errDiagnostics)
	assert.Contains(t, res.stderr, "generated file has no queries left")

	res = execute(t, "generate", "-C", dir, "--database-url", url, filepath.Join(dir, "queries.go"))
	require.NoError(t, res.err, res.stderr)
	assert.NoFileExists(t, gen)
	assert.FileExists(t, filepath.Join(dir, "other_gen.go"))
}

func TestDescribe(t *testing.T) {
	url := personDB(t)
	res := execute(t, "describe", "-C", t.TempDir(), "--database-url", url, "SELECT id, name FROM person WHERE id = ?")
	require.NoError(t, res.err, res.stderr)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &got))
	assert.Equal(t, map[string]any{
		"backend": "sqlite",
		"params":  []any{"ANY"},
		"columns": []any{
			map[string]any{"name": "id", "type": "INTEGER", "nullability": "unknown"},
			map[string]any{"name": "name", "type": "TEXT", "nullability": "unknown"},
		},
		"record": []any{
			map[string]any{"field": "ID", "column": "id", "type": "*int64"},
			map[string]any{"field": "Name", "column": "name", "type": "*string"},
		},
	}, got)
}

func TestMissingDatabaseURL(t *testing.T) {
	res := execute(t, "describe", "-C", t.TempDir(), "SELECT 1")
	assert.EqualError(t, res.err, "no database URL: set database_url in sqlcheck.yaml or DATABASE_URL")
}

func TestConfigFileWithSchema(t *testing.T) {
	dir := appDir(t, map[string]string{
		"sqlcheck.yaml": "database_url: \"sqlite::memory:\"\noutput: queries_gen.go\nschema:\n  - schema.sql\n",
		"schema.sql":    schema,
		"queries.go": `package app

import "github.com/canonical/sqlcheck"

var _ = sqlcheck.Query("Names", "SELECT name FROM person")
`,
	})
	res := execute(t, "generate", "-C", dir, filepath.Join(dir, "queries.go"))
	require.NoError(t, res.err, res.stderr)

	content, err := os.ReadFile(filepath.Join(dir, "queries_gen.go"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "func Names(ctx context.Context, db sqlcheck.DBTX) ([]NamesRecord, error) {")
}
