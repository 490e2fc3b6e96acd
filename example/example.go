// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package example declares the queries of a small office directory. The
// functions that run them are in sqlcheck_gen.go, generated against an
// in-memory SQLite database holding schema.sql.
package example

import (
	"github.com/canonical/sqlcheck"
)

//go:generate go run github.com/canonical/sqlcheck/cmd/sqlcheck generate

type Person struct {
	Name *string `db:"name"`
	ID   *int64  `db:"id"`
	Team *string `db:"team"`
}

func declarations(name, room, team string, id, roomID int64) {
	_ = sqlcheck.Query("InsertPerson", "INSERT INTO person (name, id, team) VALUES (?, ?, ?)", name, id, team)
	_ = sqlcheck.Query("InsertLocation", "INSERT INTO location (name, room_id, team) VALUES (?, ?, ?)", room, roomID, team)

	// Find out who is on a team.
	_ = sqlcheck.QueryAs[Person]("TeamMembers", "SELECT name, id, team FROM person WHERE team = ? ORDER BY id", team)

	// Print out who is in which room.
	_ = sqlcheck.Query("PeopleInRooms", `
		SELECT p.name AS person, l.name AS room
		FROM location AS l
			JOIN person AS p
			ON p.team = l.team
		ORDER BY l.room_id, p.id`)
}
