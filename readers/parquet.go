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

package readers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"
)

// This file implements SkipReportReader, which streams the rows of a Parquet skip report
// written by a previous run.

// ParquetReaderError wraps skip report read errors with the failed operation.
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "open_file", "load_batch", "schema")
	Err error  // Underlying error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// SkipReportRow is one skipped record read back from a skip report.
type SkipReportRow struct {
	RunID         string
	Line          int64
	Stage         string
	Kind          string
	Reason        string
	Input         string
	AccountNumber string
	CustomerID    string
	SkippedAt     time.Time
}

// ParquetReaderStats holds skip report read statistics.
type ParquetReaderStats struct {
	RecordsRead  int64
	BatchesRead  int64
	RowsFiltered int64
	ReadDuration time.Duration
	LastReadTime time.Time
}

// ParquetReaderOptions configures the skip report reader.
type ParquetReaderOptions struct {
	BatchSize int64  // Rows decoded per Arrow batch
	RunID     string // Only return rows of this run when set
}

// ReaderOptionParquet represents a configuration function for ParquetReaderOptions.
type ReaderOptionParquet func(*ParquetReaderOptions)

// WithParquetBatchSize sets the rows decoded per batch.
func WithParquetBatchSize(size int64) ReaderOptionParquet {
	return func(opts *ParquetReaderOptions) {
		opts.BatchSize = size
	}
}

// WithRunFilter only returns rows of runID.
func WithRunFilter(runID string) ReaderOptionParquet {
	return func(opts *ParquetReaderOptions) {
		opts.RunID = runID
	}
}

// requiredSkipColumns must be present for a file to be read as a skip report.
var requiredSkipColumns = []string{"run_id", "line", "stage", "reason"}

// SkipReportReader reads a skip report row by row.
type SkipReportReader struct {
	fileHandle      *os.File
	recordReader    pqarrow.RecordReader
	currentBatch    arrow.Record
	currentBatchIdx int
	columnIndexMap  map[string]int
	totalRows       int64
	stats           ParquetReaderStats
	opts            ParquetReaderOptions
}

// NewSkipReportReader opens filename and checks that it has the skip report columns.
func NewSkipReportReader(filename string, options ...ReaderOptionParquet) (*SkipReportReader, error) {
	opts := ParquetReaderOptions{BatchSize: 1000}
	for _, option := range options {
		option(&opts)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open_file", Err: err}
	}

	parquetReader, err := file.NewParquetReader(f)
	if err != nil {
		f.Close()
		return nil, &ParquetReaderError{Op: "create_reader", Err: err}
	}

	arrowReader, err := pqarrow.NewFileReader(parquetReader,
		pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize}, memory.NewGoAllocator())
	if err != nil {
		f.Close()
		return nil, &ParquetReaderError{Op: "create_arrow_reader", Err: err}
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		f.Close()
		return nil, &ParquetReaderError{Op: "schema", Err: err}
	}
	columns := make(map[string]int, len(schema.Fields()))
	for i, field := range schema.Fields() {
		columns[field.Name] = i
	}
	for _, name := range requiredSkipColumns {
		if _, ok := columns[name]; !ok {
			f.Close()
			return nil, &ParquetReaderError{Op: "schema", Err: fmt.Errorf("column %q not found, not a skip report", name)}
		}
	}

	recordReader, err := arrowReader.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		f.Close()
		return nil, &ParquetReaderError{Op: "create_record_reader", Err: err}
	}

	return &SkipReportReader{
		fileHandle:     f,
		recordReader:   recordReader,
		columnIndexMap: columns,
		totalRows:      parquetReader.NumRows(),
		opts:           opts,
	}, nil
}

// Read returns the next row, or io.EOF when the report is exhausted.
func (p *SkipReportReader) Read(ctx context.Context) (SkipReportRow, error) {
	start := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(start)
		p.stats.LastReadTime = time.Now()
	}()

	for {
		select {
		case <-ctx.Done():
			return SkipReportRow{}, &ParquetReaderError{Op: "read", Err: ctx.Err()}
		default:
		}

		if p.currentBatch == nil || p.currentBatchIdx >= int(p.currentBatch.NumRows()) {
			if err := p.loadNextBatch(); err != nil {
				if errors.Is(err, io.EOF) {
					return SkipReportRow{}, io.EOF
				}
				return SkipReportRow{}, &ParquetReaderError{Op: "load_batch", Err: err}
			}
		}

		row := p.extractRow(p.currentBatch, p.currentBatchIdx)
		p.currentBatchIdx++
		if p.opts.RunID != "" && row.RunID != p.opts.RunID {
			p.stats.RowsFiltered++
			continue
		}
		p.stats.RecordsRead++
		return row, nil
	}
}

// TotalRows returns the row count stored in the file footer.
func (p *SkipReportReader) TotalRows() int64 {
	return p.totalRows
}

// Stats returns a copy of the read statistics.
func (p *SkipReportReader) Stats() ParquetReaderStats {
	return p.stats
}

// Close releases the current batch and closes the file.
func (p *SkipReportReader) Close() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}
	if p.recordReader != nil {
		p.recordReader.Release()
		p.recordReader = nil
	}
	if p.fileHandle != nil {
		err := p.fileHandle.Close()
		p.fileHandle = nil
		return err
	}
	return nil
}

// ReadSkipReport reads every row of filename.
func ReadSkipReport(ctx context.Context, filename string, options ...ReaderOptionParquet) ([]SkipReportRow, error) {
	r, err := NewSkipReportReader(filename, options...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var rows []SkipReportRow
	for {
		row, err := r.Read(ctx)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

func (p *SkipReportReader) loadNextBatch() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}

	for {
		rec, err := p.recordReader.Read()
		if err != nil {
			return err
		}
		if rec == nil {
			return io.EOF
		}
		if rec.NumRows() == 0 {
			continue
		}
		rec.Retain()
		p.currentBatch = rec
		p.currentBatchIdx = 0
		p.stats.BatchesRead++
		return nil
	}
}

func (p *SkipReportReader) extractRow(record arrow.Record, pos int) SkipReportRow {
	row := SkipReportRow{
		RunID:         p.stringAt(record, "run_id", pos),
		Stage:         p.stringAt(record, "stage", pos),
		Kind:          p.stringAt(record, "kind", pos),
		Reason:        p.stringAt(record, "reason", pos),
		Input:         p.stringAt(record, "input", pos),
		AccountNumber: p.stringAt(record, "account_number", pos),
		CustomerID:    p.stringAt(record, "customer_id", pos),
	}
	if idx, ok := p.columnIndexMap["line"]; ok {
		if col, ok := record.Column(idx).(*array.Int64); ok && !col.IsNull(pos) {
			row.Line = col.Value(pos)
		}
	}
	if idx, ok := p.columnIndexMap["skipped_at"]; ok {
		if col, ok := record.Column(idx).(*array.Timestamp); ok && !col.IsNull(pos) {
			row.SkippedAt = time.UnixMilli(int64(col.Value(pos))).UTC()
		}
	}
	return row
}

func (p *SkipReportReader) stringAt(record arrow.Record, name string, pos int) string {
	idx, ok := p.columnIndexMap[name]
	if !ok {
		return ""
	}
	col, ok := record.Column(idx).(*array.String)
	if !ok || col.IsNull(pos) {
		return ""
	}
	return col.Value(pos)
}
