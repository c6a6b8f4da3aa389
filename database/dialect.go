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

package database

import (
	"fmt"
	"strings"
)

// This file describes the SQL dialect differences the import pipeline depends on:
// placeholders, identifier quoting and the atomic insert-if-absent statement.

// Target tables of the import.
const (
	TableUserProfile = "user_profile"
	TableAccount     = "account"
	TableTransaction = "transaction"
)

// Dialect captures the SQL syntax of one database family.
type Dialect struct {
	Name        string // "postgres", "mysql" or "sqlite3"
	numbered    bool   // $1, $2 ... instead of ?
	quote       byte   // identifier quote character
	onDuplicate bool   // ON DUPLICATE KEY UPDATE instead of ON CONFLICT
}

var (
	// Postgres is used by the lib/pq ("postgres") and pgx ("pgx") drivers.
	Postgres = Dialect{Name: "postgres", numbered: true, quote: '"'}
	// MySQL is used by the go-sql-driver ("mysql") driver.
	MySQL = Dialect{Name: "mysql", quote: '`', onDuplicate: true}
	// SQLite is used by the go-sqlite3 ("sqlite3") driver.
	SQLite = Dialect{Name: "sqlite3", quote: '"'}
)

// DialectFor returns the dialect of a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Placeholder returns the bind parameter for the 1-based position n.
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Placeholders returns the comma separated bind parameters 1..n.
func (d Dialect) Placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.Placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

// Quote quotes a table or column identifier.
func (d Dialect) Quote(ident string) string {
	q := string(d.quote)
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// QuoteAll quotes every identifier and joins them with commas.
func (d Dialect) QuoteAll(idents []string) string {
	quoted := make([]string, len(idents))
	for i, ident := range idents {
		quoted[i] = d.Quote(ident)
	}
	return strings.Join(quoted, ", ")
}

// Insert builds a plain INSERT statement.
func (d Dialect) Insert(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), d.QuoteAll(columns), d.Placeholders(len(columns)))
}

// InsertIfAbsent builds a single INSERT statement that leaves an existing row with the
// same conflict key untouched. The conflict columns must be backed by a unique constraint.
func (d Dialect) InsertIfAbsent(table string, columns, conflictColumns []string) string {
	insert := d.Insert(table, columns)
	if d.onDuplicate {
		// No-op assignment keeps the statement atomic without swallowing unrelated errors
		// the way INSERT IGNORE would.
		key := d.Quote(conflictColumns[0])
		return fmt.Sprintf("%s ON DUPLICATE KEY UPDATE %s = %s", insert, key, key)
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", insert, d.QuoteAll(conflictColumns))
}

// SelectID builds a lookup of the id column by one key column.
func (d Dialect) SelectID(table, keyColumn string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		d.Quote("id"), d.Quote(table), d.Quote(keyColumn), d.Placeholder(1))
}
