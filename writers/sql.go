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

package writers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/aaronlmathis/trximport/core"
	"github.com/aaronlmathis/trximport/database"
)

// Package writers provides the chunk writer that appends fact rows to the transaction
// table, and the reports written for skipped records and finished runs.
//
// This file implements FactWriter, the core.ChunkWriter of the import.

// FactColumns are the inserted columns of the transaction table, in bind order.
var FactColumns = []string{
	"version",
	"account_id",
	"amount",
	"description",
	"trx_date",
	"trx_time",
	"customer_id",
	"created_at",
	"updated_at",
}

// FactWriterError wraps fact insert errors with context about the operation.
type FactWriterError struct {
	Op  string // The operation being performed (e.g., "prepare", "insert")
	Err error  // The underlying error
}

// Error returns the error string for FactWriterError.
func (e *FactWriterError) Error() string {
	return fmt.Sprintf("fact writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for FactWriterError.
func (e *FactWriterError) Unwrap() error {
	return e.Err
}

// FactWriterStats holds fact write statistics.
type FactWriterStats struct {
	RowsWritten   int64         // Rows inserted, including rows of chunks rolled back later
	ChunksWritten int64         // Write calls that inserted every row
	WriteDuration time.Duration // Total time spent writing
	LastWriteTime time.Time     // Time of last write
}

// FactWriterOptions configures the fact writer.
type FactWriterOptions struct {
	TableName  string // Target table name
	DateLayout string // Layout of the bound trx_date value
	TimeLayout string // Layout of the bound trx_time value
}

// WriterOptionFact represents a configuration function for FactWriterOptions.
type WriterOptionFact func(*FactWriterOptions)

// WithFactTable sets the target table name.
func WithFactTable(name string) WriterOptionFact {
	return func(opts *FactWriterOptions) {
		opts.TableName = name
	}
}

// FactWriter implements core.ChunkWriter with one prepared INSERT per chunk, executed
// row by row inside the chunk transaction so a failure names its row. The table is
// append-only; no conflict handling is attempted.
type FactWriter struct {
	query string
	opts  FactWriterOptions
	stats FactWriterStats
	mu    sync.Mutex
}

// NewFactWriter creates a FactWriter for dialect.
func NewFactWriter(dialect database.Dialect, opts ...WriterOptionFact) *FactWriter {
	options := FactWriterOptions{
		TableName:  database.TableTransaction,
		DateLayout: "2006-01-02",
		TimeLayout: "15:04:05",
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &FactWriter{
		query: dialect.Insert(options.TableName, FactColumns),
		opts:  options,
	}
}

// Write implements the core.ChunkWriter interface.
func (w *FactWriter) Write(ctx context.Context, q core.Querier, rows []*core.FactRow) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		w.mu.Lock()
		w.stats.WriteDuration += time.Since(start)
		w.stats.LastWriteTime = time.Now()
		w.mu.Unlock()
	}()

	stmt, err := q.PrepareContext(ctx, w.query)
	if err != nil {
		return core.NewWriteError(rows[0].Line, "insert could not be prepared", &FactWriterError{Op: "prepare", Err: err})
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, w.args(row)...); err != nil {
			return core.NewWriteError(row.Line, "insert failed", &FactWriterError{Op: "insert", Err: err})
		}
		w.mu.Lock()
		w.stats.RowsWritten++
		w.mu.Unlock()
	}

	w.mu.Lock()
	w.stats.ChunksWritten++
	w.mu.Unlock()
	return nil
}

// Stats returns a copy of the write statistics.
func (w *FactWriter) Stats() FactWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *FactWriter) args(row *core.FactRow) []interface{} {
	description := sql.NullString{String: row.Description, Valid: row.Description != ""}
	return []interface{}{
		row.Version,
		row.AccountID,
		row.Amount,
		description,
		row.TrxDate.Format(w.opts.DateLayout),
		row.TrxTime.Format(w.opts.TimeLayout),
		row.CustomerID,
		row.CreatedAt,
		row.UpdatedAt,
	}
}
