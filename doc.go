/*
Package sqlcheck verifies SQL queries against a live database when code is
generated, and generates statically typed Go functions that run them.

A query is declared by a call to one of the marker functions in the package
that owns it:

	var _ = sqlcheck.Query("AccountByID", "SELECT id, name FROM account WHERE id = $1", id)

The marker has no effect at run time. The sqlcheck command loads the package,
finds the declaration and asks the database to describe the statement
without executing it. The types of the arguments, as inferred by the Go type
checker, are checked against the parameter types the database reports, and
the result columns are turned into the fields of a record type. For the
declaration above the generated file contains:

	type AccountByIDRecord struct {
		ID   int64
		Name *string
	}

	func AccountByID(ctx context.Context, db sqlcheck.DBTX, id int64) ([]AccountByIDRecord, error)

Columns the database cannot prove to be NOT NULL are decoded into pointer
fields. Statements without result columns generate a function returning
[sql.Result].

# Existing types

Rows can be decoded into an existing struct type with [QueryAs]. The columns
are matched to the fields by their `db` tags:

	type Account struct {
		ID   int64   `db:"id"`
		Name *string `db:"name"`
	}

	var _ = sqlcheck.QueryAs[Account]("ListAccounts", "SELECT id, name FROM account")

The set of tagged fields must be exactly the set of result columns, in any
order, and each field must have the type the column decodes into. Fields
without a `db` tag are ignored.

# Query files

[QueryFile] and [QueryFileAs] read the statement from a file, with the path
given relative to the module root:

	var _ = sqlcheck.QueryFile("ActiveUsers", "queries/active_users.sql")

# Running generated code

Generated functions take a [DBTX], which is satisfied by [*sql.DB], [*sql.Tx]
and by [*DB], a wrapper around [*sql.DB] that keeps one prepared statement per
query.
*/
package sqlcheck
