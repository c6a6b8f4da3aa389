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

package core

import (
	"context"
	"database/sql"
)

// This file contains the interfaces each pipeline stage is written against.

// Querier is the subset of *sql.DB / *sql.Tx used by the dimension store and the fact writer.
// Every statement issued during a chunk goes through the chunk's Querier so it shares the
// chunk's commit boundary.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Tx is a chunk transaction.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// TxManager begins chunk transactions.
type TxManager interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// TxParticipant is implemented by components holding state that must follow the outcome
// of the chunk transaction, such as identifiers cached from rows inserted inside it.
type TxParticipant interface {
	// AfterCommit makes state staged during the transaction permanent.
	AfterCommit()
	// AfterRollback discards state staged during the transaction.
	AfterRollback()
}

// LineSource streams the physical lines of the input resource.
type LineSource interface {
	// Next returns the next line or io.EOF when the resource is exhausted.
	// A line that cannot be read whole comes back with a READ *ImportError; the
	// source stays usable and the following call returns the next line.
	Next(ctx context.Context) (RawLine, error)
	// Close releases the underlying resource.
	Close() error
}

// LineMapper turns one physical line into a CandidateRow.
// Failures are returned as skip-eligible *ImportError values tagged with StageRead.
type LineMapper interface {
	MapLine(line RawLine) (*CandidateRow, error)
}

// LineMapperFunc is a function adapter for the LineMapper interface.
type LineMapperFunc func(line RawLine) (*CandidateRow, error)

// MapLine implements the LineMapper interface for LineMapperFunc.
func (f LineMapperFunc) MapLine(line RawLine) (*CandidateRow, error) {
	return f(line)
}

// Processor normalizes a CandidateRow into a FactRow.
// A nil FactRow with a nil error means the row was filtered.
type Processor interface {
	Process(ctx context.Context, q Querier, row *CandidateRow) (*FactRow, error)
}

// ProcessorFunc is a function adapter for the Processor interface.
type ProcessorFunc func(ctx context.Context, q Querier, row *CandidateRow) (*FactRow, error)

// Process implements the Processor interface for ProcessorFunc.
func (f ProcessorFunc) Process(ctx context.Context, q Querier, row *CandidateRow) (*FactRow, error) {
	return f(ctx, q, row)
}

// ChunkWriter inserts a chunk of fact rows inside the active transaction.
type ChunkWriter interface {
	Write(ctx context.Context, q Querier, rows []*FactRow) error
}
