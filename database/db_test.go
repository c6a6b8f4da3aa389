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

package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/trximport/database"
	"github.com/aaronlmathis/trximport/database/dbtest"
)

func TestCheckSchema(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	report, err := db.CheckSchema(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"account", "transaction", "user_profile"}, report.Missing())

	_, err = db.SQL().Exec(dbtest.Schema)
	require.NoError(t, err)

	report, err = db.CheckSchema(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Empty(t, report.Missing())
}

func TestBeginTxRollback(t *testing.T) {
	db := dbtest.OpenWithSchema(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_profile (customer_id, full_name, email) VALUES (?, ?, ?)`, "C1", "n", "e")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, 0, dbtest.Count(t, db, database.TableUserProfile))
	assert.Equal(t, int64(1), db.Stats().TxBegun)
	assert.Equal(t, database.SQLite, db.Dialect())
}

func TestOpenInvalid(t *testing.T) {
	_, err := database.Open(context.Background(), "sqlite3", "")
	var dbErr *database.Error
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, "validate", dbErr.Op)
}
