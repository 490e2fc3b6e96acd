// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlcheck_test

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlcheck"
)

type PackageSuite struct{}

var _ = Suite(&PackageSuite{})

func personDB(c *C) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`
CREATE TABLE person (
	name text,
	id integer,
	address_id integer
);
INSERT INTO person VALUES ('Fred', 30, 1000);
INSERT INTO person VALUES ('Mark', 20, 1500);
INSERT INTO person VALUES ('Mary', 40, NULL);
`)
	c.Assert(err, IsNil)
	return db
}

type Person struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	AddressID *int64 `db:"address_id"`
}

func scanPerson(rows *sql.Rows) (Person, error) {
	var p Person
	err := rows.Scan(&p.ID, &p.Name, &p.AddressID)
	return p, err
}

func (s *PackageSuite) TestMarkers(c *C) {
	c.Check(sqlcheck.Query("A", "SELECT 1").Name(), Equals, "A")
	c.Check(sqlcheck.QueryAs[Person]("B", "SELECT id, name, address_id FROM person", 1, "x").Name(), Equals, "B")
	c.Check(sqlcheck.QueryFile("C", "queries/c.sql").Name(), Equals, "C")
	c.Check(sqlcheck.QueryFileAs[Person]("D", "queries/d.sql", nil).Name(), Equals, "D")
}

func (s *PackageSuite) TestCollect(c *C) {
	for _, open := range []func(*sql.DB) sqlcheck.DBTX{
		func(db *sql.DB) sqlcheck.DBTX { return db },
		func(db *sql.DB) sqlcheck.DBTX { return sqlcheck.NewDB(db) },
	} {
		db := open(personDB(c))
		rows, err := db.QueryContext(context.Background(), "SELECT id, name, address_id FROM person WHERE id >= ? ORDER BY id", 30)
		c.Assert(err, IsNil)
		people, err := sqlcheck.Collect(rows, scanPerson)
		c.Assert(err, IsNil)
		addr := int64(1000)
		c.Check(people, DeepEquals, []Person{
			{ID: 30, Name: "Fred", AddressID: &addr},
			{ID: 40, Name: "Mary"},
		})
	}
}

func (s *PackageSuite) TestCollectNoRows(c *C) {
	db := personDB(c)
	defer db.Close()
	rows, err := db.Query("SELECT id, name, address_id FROM person WHERE id < 0")
	c.Assert(err, IsNil)
	people, err := sqlcheck.Collect(rows, scanPerson)
	c.Assert(err, IsNil)
	c.Check(people, HasLen, 0)
}

func (s *PackageSuite) TestCollectScanError(c *C) {
	db := personDB(c)
	defer db.Close()

	rows, err := db.Query("SELECT id, name, address_id FROM person ORDER BY id")
	c.Assert(err, IsNil)
	// Decoding NULL into a bare int64 fails on the third row.
	people, err := sqlcheck.Collect(rows, func(rows *sql.Rows) (int64, error) {
		var addressID int64
		err := rows.Scan(new(int64), new(string), &addressID)
		return addressID, err
	})
	c.Assert(err, ErrorMatches, `sql: Scan error on column index 2, name "address_id": converting NULL to int64 is unsupported`)
	c.Check(people, DeepEquals, []int64{1500, 1000})

	// The rows have been closed so the connection is free again.
	var n int
	c.Assert(db.QueryRow("SELECT count(*) FROM person").Scan(&n), IsNil)
	c.Check(n, Equals, 3)

	someErr := errors.New("some error")
	rows, err = db.Query("SELECT id FROM person")
	c.Assert(err, IsNil)
	_, err = sqlcheck.Collect(rows, func(*sql.Rows) (int, error) { return 0, someErr })
	c.Assert(err, Equals, someErr)
}

func (s *PackageSuite) TestTransaction(c *C) {
	db := sqlcheck.NewDB(personDB(c))
	defer db.Close()
	ctx := context.Background()

	tx, err := db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	_, err = tx.ExecContext(ctx, "DELETE FROM person WHERE id = ?", 20)
	c.Assert(err, IsNil)
	c.Assert(tx.Rollback(), IsNil)

	var n int
	c.Assert(db.QueryRowContext(ctx, "SELECT count(*) FROM person").Scan(&n), IsNil)
	c.Check(n, Equals, 3)

	tx, err = db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	_, err = tx.ExecContext(ctx, "DELETE FROM person WHERE id = ?", 20)
	c.Assert(err, IsNil)
	c.Assert(tx.QueryRowContext(ctx, "SELECT count(*) FROM person").Scan(&n), IsNil)
	c.Check(n, Equals, 2)
	c.Assert(tx.Commit(), IsNil)
}
