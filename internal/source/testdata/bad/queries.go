package bad

import "github.com/canonical/sqlcheck"

type NoTags struct{ ID int }

var name = "Dynamic"

var q = "SELECT 1"

func Existing() {}

var (
	_ = sqlcheck.Query(name, "SELECT 1")
	_ = sqlcheck.Query("Dyn", q)
	_ = sqlcheck.Query("bad name", "SELECT 1")
	_ = sqlcheck.Query("Twice", "SELECT 1")
	_ = sqlcheck.Query("Twice", "SELECT 2")
	_ = sqlcheck.Query("Existing", "SELECT 1")
	_ = sqlcheck.Query("Nil", "SELECT $1", nil)
	_ = sqlcheck.Query("Spread", "SELECT $1", []any{1}...)
	_ = sqlcheck.QueryAs[NoTags]("Untagged", "SELECT 1 AS id")
	_ = sqlcheck.Query("Empty", "")
)

func local() {
	type Local struct {
		ID int `db:"id"`
	}
	_ = sqlcheck.QueryAs[Local]("LocalType", "SELECT 1 AS id")
}
