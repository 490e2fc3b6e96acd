package models

import (
	"time"

	"github.com/canonical/sqlcheck"
)

type Account struct {
	ID   int64   `db:"id"`
	Name *string `db:"name"`
	Note string
}

var id int64 = 1

const minAge = 18

var (
	_ = sqlcheck.Query("AccountByID", "SELECT id, name FROM account WHERE id = $1", id)
	_ = sqlcheck.QueryAs[Account]("ListAccounts", "SELECT id, name FROM account")
	_ = sqlcheck.QueryFile("ActiveUsers", "queries/active_users.sql", time.Now(), minAge)
)

func register(name *string, since time.Time) {
	_ = sqlcheck.QueryFileAs[Account]("AccountByName", "queries/by_name.sql", name, since.Unix(), []byte("x"))
}
