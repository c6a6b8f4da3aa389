//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of trximport.
//
// trximport is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// trximport is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with trximport. If not, see https://www.gnu.org/licenses/.

// Package dbtest provides SQLite databases with the import schema for tests.
package dbtest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/trximport/database"
)

// Schema is the SQLite rendition of the import tables. Amounts are stored as text so
// decimal values survive unchanged.
const Schema = `
CREATE TABLE user_profile (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id TEXT NOT NULL UNIQUE,
	full_name   TEXT NOT NULL,
	email       TEXT NOT NULL UNIQUE
);
CREATE TABLE account (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	account_number  TEXT NOT NULL UNIQUE,
	user_profile_id INTEGER NOT NULL REFERENCES user_profile(id)
);
CREATE TABLE "transaction" (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	version     INTEGER NOT NULL DEFAULT 0,
	account_id  INTEGER NOT NULL REFERENCES account(id),
	amount      TEXT NOT NULL,
	description TEXT,
	trx_date    TEXT NOT NULL,
	trx_time    TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);`

// Open returns a file backed SQLite database in a test temp dir, without tables.
func Open(t testing.TB) *database.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on",
		filepath.Join(t.TempDir(), "import.db"))
	db, err := database.Open(context.Background(), "sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// OpenWithSchema returns a database from Open with Schema applied.
func OpenWithSchema(t testing.TB) *database.DB {
	t.Helper()
	db := Open(t)
	_, err := db.SQL().Exec(Schema)
	require.NoError(t, err)
	return db
}

// Count returns the number of rows in table.
func Count(t testing.TB, db *database.DB, table string) int {
	t.Helper()
	var n int
	err := db.SQL().QueryRow("SELECT COUNT(*) FROM " + db.Dialect().Quote(table)).Scan(&n)
	require.NoError(t, err)
	return n
}
