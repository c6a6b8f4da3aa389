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

package trximport_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/trximport"
	"github.com/aaronlmathis/trximport/core"
	"github.com/aaronlmathis/trximport/database"
	"github.com/aaronlmathis/trximport/database/dbtest"
	"github.com/aaronlmathis/trximport/dimension"
	"github.com/aaronlmathis/trximport/writers"
)

const header = "ACCOUNT_NUMBER|TRX_AMOUNT|DESCRIPTION|TRX_DATE|TRX_TIME|CUSTOMER_ID"

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transactions.txt")
	content := header + "\n" + strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runImport(t *testing.T, db *database.DB, path string, configure ...func(*trximport.PipelineBuilder)) (*trximport.Outcome, error) {
	t.Helper()
	b := trximport.NewPipeline().
		From(path).
		WithTxManager(db).
		WithDimensionStore(dimension.NewSQLStore(db.Dialect())).
		To(writers.NewFactWriter(db.Dialect()))
	for _, fn := range configure {
		fn(b)
	}
	p, err := b.Build()
	require.NoError(t, err)
	return p.Execute(context.Background())
}

func TestImportSingleRecord(t *testing.T) {
	db := dbtest.OpenWithSchema(t)
	path := writeInput(t, "ACC1|12.34|coffee|2025-12-01|10:15:30|C001")

	outcome, err := runImport(t, db, path)

	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, outcome.State)
	assert.Equal(t, int64(1), outcome.Counters.Written)
	assert.Equal(t, 2, outcome.LastCommittedLine)

	var (
		amount, description, trxDate, trxTime, customerID string
		version                                           int64
		accountNumber, fullName, email                    string
	)
	err = db.SQL().QueryRow(`
		SELECT t.amount, t.description, t.trx_date, t.trx_time, t.customer_id, t.version,
		       a.account_number, p.full_name, p.email
		FROM "transaction" t
		JOIN account a ON a.id = t.account_id
		JOIN user_profile p ON p.id = a.user_profile_id`).
		Scan(&amount, &description, &trxDate, &trxTime, &customerID, &version, &accountNumber, &fullName, &email)
	require.NoError(t, err)

	assert.Equal(t, "12.34", amount)
	assert.Equal(t, "coffee", description)
	assert.Equal(t, "2025-12-01", trxDate)
	assert.Equal(t, "10:15:30", trxTime)
	assert.Equal(t, "C001", customerID)
	assert.Equal(t, int64(0), version)
	assert.Equal(t, "ACC1", accountNumber)
	assert.Equal(t, "IMPORTED-C001", fullName)
	assert.Equal(t, "C001@import.local", email)
}

func TestImportBlankLineBetweenRecords(t *testing.T) {
	db := dbtest.OpenWithSchema(t)
	path := writeInput(t,
		"ACC1|12.34|coffee|2025-12-01|10:15:30|C001",
		"",
		"ACC1|-5.00||2025-12-01|11:00:00|C001",
	)

	outcome, err := runImport(t, db, path)

	require.NoError(t, err)
	assert.Equal(t, int64(2), outcome.Counters.Written)
	assert.Equal(t, int64(1), outcome.Counters.ReadSkips)
	assert.Equal(t, 2, dbtest.Count(t, db, database.TableTransaction))
	assert.Equal(t, 1, dbtest.Count(t, db, database.TableAccount))
	assert.Equal(t, 1, dbtest.Count(t, db, database.TableUserProfile))

	var nulls int
	require.NoError(t, db.SQL().QueryRow(`SELECT COUNT(*) FROM "transaction" WHERE description IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

func TestImportMissingKeysCreateNoDimensions(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "missing customer id", input: "ACC9|1.00|x|2025-12-01|10:00:00|"},
		{name: "missing account number", input: "|1.00|x|2025-12-01|10:00:00|C009"},
		{name: "whitespace keys", input: "  |1.00|x|2025-12-01|10:00:00|  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := dbtest.OpenWithSchema(t)
			path := writeInput(t, tt.input)

			outcome, err := runImport(t, db, path)

			require.NoError(t, err)
			assert.Equal(t, core.StateCompleted, outcome.State)
			assert.Equal(t, int64(1), outcome.Counters.ReadSkips)
			assert.Equal(t, int64(0), outcome.Counters.Written)
			require.Len(t, outcome.Skips, 1)
			assert.True(t, core.IsKind(outcome.Skips[0].Cause, core.KindValidation))

			assert.Equal(t, 0, dbtest.Count(t, db, database.TableTransaction))
			assert.Equal(t, 0, dbtest.Count(t, db, database.TableAccount))
			assert.Equal(t, 0, dbtest.Count(t, db, database.TableUserProfile))
		})
	}
}

func TestImportOverlongLineIsSkipped(t *testing.T) {
	db := dbtest.OpenWithSchema(t)
	path := writeInput(t,
		"ACC1|1.00|a|2025-12-01|10:00:00|C001",
		strings.Repeat("x", 2*1024*1024),
		"ACC2|2.00|b|2025-12-01|10:01:00|C002",
	)

	outcome, err := runImport(t, db, path)

	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, outcome.State)
	assert.Equal(t, int64(2), outcome.Counters.Written)
	assert.Equal(t, int64(1), outcome.Counters.ReadSkips)
	require.Len(t, outcome.Skips, 1)
	assert.Equal(t, 3, outcome.Skips[0].Line)
	assert.Equal(t, 2, dbtest.Count(t, db, database.TableTransaction))
}

func TestImportRollbackForgetsStagedDimensions(t *testing.T) {
	db := dbtest.OpenWithSchema(t)
	_, err := db.SQL().Exec(`
		CREATE TRIGGER reject_poison BEFORE INSERT ON "transaction"
		WHEN NEW.description = 'poison'
		BEGIN SELECT RAISE(ABORT, 'poisoned row'); END`)
	require.NoError(t, err)

	path := writeInput(t,
		"ACC1|1.00|ok|2025-12-01|10:00:00|C001",
		"ACC2|2.00|poison|2025-12-01|10:01:00|C002",
		"ACC1|3.00|ok|2025-12-01|10:02:00|C001",
	)

	outcome, err := runImport(t, db, path)

	require.NoError(t, err)
	assert.Equal(t, int64(2), outcome.Counters.Written)
	assert.Equal(t, int64(1), outcome.Counters.WriteSkips)
	require.Len(t, outcome.Skips, 1)
	assert.Equal(t, 3, outcome.Skips[0].Line)
	assert.Contains(t, outcome.Skips[0].Reason(), "poisoned row")

	assert.Equal(t, 2, dbtest.Count(t, db, database.TableTransaction))
	assert.Equal(t, 1, dbtest.Count(t, db, database.TableAccount))
	assert.Equal(t, 1, dbtest.Count(t, db, database.TableUserProfile))
}

func TestImportSecondRunReusesDimensions(t *testing.T) {
	db := dbtest.OpenWithSchema(t)
	path := writeInput(t,
		"ACC1|1.00|a|2025-12-01|10:00:00|C001",
		"ACC2|2.00|b|2025-12-01|10:01:00|C001",
	)

	_, err := runImport(t, db, path)
	require.NoError(t, err)
	_, err = runImport(t, db, path)
	require.NoError(t, err)

	assert.Equal(t, 4, dbtest.Count(t, db, database.TableTransaction))
	assert.Equal(t, 2, dbtest.Count(t, db, database.TableAccount))
	assert.Equal(t, 1, dbtest.Count(t, db, database.TableUserProfile))
}

func TestImportFromStartLine(t *testing.T) {
	db := dbtest.OpenWithSchema(t)
	path := writeInput(t,
		"ACC1|1.00|a|2025-12-01|10:00:00|C001",
		"ACC1|2.00|b|2025-12-01|10:01:00|C001",
		"ACC1|3.00|c|2025-12-01|10:02:00|C001",
	)

	outcome, err := runImport(t, db, path, func(b *trximport.PipelineBuilder) {
		b.WithStartLine(3).WithChunkSize(1)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2), outcome.Counters.Read)
	assert.Equal(t, int64(2), outcome.Counters.Commits)
	assert.Equal(t, 4, outcome.LastCommittedLine)
	assert.Equal(t, 2, dbtest.Count(t, db, database.TableTransaction))
}

func TestImportReportsToListeners(t *testing.T) {
	db := dbtest.OpenWithSchema(t)
	path := writeInput(t,
		"ACC1|1.00|a|2025-12-01|10:00:00|C001",
		"ACC1|oops|b|2025-12-01|10:01:00|C001",
	)

	var rejects strings.Builder
	reject := writers.NewRejectWriter(nopCloser{&rejects})

	outcome, err := runImport(t, db, path, func(b *trximport.PipelineBuilder) {
		b.WithListener(reject)
	})

	require.NoError(t, err)
	require.NoError(t, reject.Err())
	assert.Equal(t, int64(1), outcome.Counters.ReadSkips)
	assert.Contains(t, rejects.String(), "LINE|STAGE|REASON|INPUT")
	assert.Contains(t, rejects.String(), "ACC1|oops|b|2025-12-01|10:01:00|C001")
}

type nopCloser struct {
	*strings.Builder
}

func (nopCloser) Close() error { return nil }
