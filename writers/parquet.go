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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/trximport/core"
)

// This file implements ParquetSkipReport, which stores the skipped records of a run
// as a Parquet file for later analysis.

// SkipReportSchema is the Arrow schema of the skip report.
var SkipReportSchema = arrow.NewSchema([]arrow.Field{
	{Name: "run_id", Type: arrow.BinaryTypes.String},
	{Name: "line", Type: arrow.PrimitiveTypes.Int64},
	{Name: "stage", Type: arrow.BinaryTypes.String},
	{Name: "kind", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "reason", Type: arrow.BinaryTypes.String},
	{Name: "input", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "account_number", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "customer_id", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "skipped_at", Type: arrow.FixedWidthTypes.Timestamp_ms},
}, nil)

// ParquetWriterError wraps skip report errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "open_file", "write_batch")
	Err error  // Underlying error
}

func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// WriterStats holds skip report statistics.
type WriterStats struct {
	RecordsWritten int64         // Skip records written
	BatchesWritten int64         // Record batches flushed
	FlushDuration  time.Duration // Total time spent flushing
	LastFlushTime  time.Time     // Time of last flush
}

// ParquetWriterOptions configures the skip report.
type ParquetWriterOptions struct {
	BatchSize    int64                // Records buffered before a batch is written
	Compression  compress.Compression // Compression algorithm
	RowGroupSize int64                // Maximum rows per row group
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records per written batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the compression codec.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithRowGroupSize sets the maximum row group length.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.RowGroupSize <= 0 {
		opts.RowGroupSize = 10000
	}
	if opts.Compression == 0 {
		opts.Compression = compress.Codecs.Snappy
	}
	return opts
}

// ParquetSkipReport is a skip and run listener writing one Parquet row per skip.
type ParquetSkipReport struct {
	writer    *pqarrow.FileWriter
	allocator memory.Allocator
	opts      *ParquetWriterOptions
	runID     string
	buffer    []core.SkipRecord
	stamps    []time.Time
	stats     WriterStats
	now       func() time.Time
	err       error
	closed    bool
	mu        sync.Mutex
}

// NewParquetSkipReport creates the report file at filename, creating parent directories.
func NewParquetSkipReport(filename string, options ...WriterOption) (*ParquetSkipReport, error) {
	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	dir := filepath.Dir(filename)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &ParquetWriterError{
				Op:  "create_directory",
				Err: fmt.Errorf("failed to create directory %s: %w", dir, err),
			}
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{
			Op:  "open_file",
			Err: fmt.Errorf("failed to create parquet file %s: %w", filename, err),
		}
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(opts.Compression),
		parquet.WithMaxRowGroupLength(opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(SkipReportSchema, file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		file.Close()
		return nil, &ParquetWriterError{
			Op:  "create_writer",
			Err: fmt.Errorf("failed to create parquet file writer: %w", err),
		}
	}

	return &ParquetSkipReport{
		writer:    writer,
		allocator: memory.NewGoAllocator(),
		opts:      opts,
		buffer:    make([]core.SkipRecord, 0, opts.BatchSize),
		now:       time.Now,
	}, nil
}

// BeforeRun records the run id stamped on every row.
func (p *ParquetSkipReport) BeforeRun(info core.RunInfo) {
	p.mu.Lock()
	p.runID = info.RunID
	p.mu.Unlock()
}

// OnSkip buffers rec and writes a batch when the buffer is full.
func (p *ParquetSkipReport) OnSkip(rec core.SkipRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.err != nil {
		return
	}
	p.buffer = append(p.buffer, rec)
	p.stamps = append(p.stamps, p.now())
	if int64(len(p.buffer)) >= p.opts.BatchSize {
		p.err = p.flushBatch()
	}
}

// AfterRun writes buffered records.
func (p *ParquetSkipReport) AfterRun(*core.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed && p.err == nil {
		p.err = p.flushBatch()
	}
}

// Err returns the first write failure.
func (p *ParquetSkipReport) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns a copy of the report statistics.
func (p *ParquetSkipReport) Stats() WriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close flushes remaining records and finalizes the file footer.
func (p *ParquetSkipReport) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.err
	}
	p.closed = true

	if p.err == nil {
		p.err = p.flushBatch()
	}
	if err := p.writer.Close(); err != nil && p.err == nil {
		p.err = &ParquetWriterError{
			Op:  "close_writer",
			Err: fmt.Errorf("failed to close parquet writer: %w", err),
		}
	}
	return p.err
}

func (p *ParquetSkipReport) flushBatch() error {
	if len(p.buffer) == 0 {
		return nil
	}
	start := time.Now()

	b := array.NewRecordBuilder(p.allocator, SkipReportSchema)
	defer b.Release()

	runID := b.Field(0).(*array.StringBuilder)
	line := b.Field(1).(*array.Int64Builder)
	stage := b.Field(2).(*array.StringBuilder)
	kind := b.Field(3).(*array.StringBuilder)
	reason := b.Field(4).(*array.StringBuilder)
	input := b.Field(5).(*array.StringBuilder)
	account := b.Field(6).(*array.StringBuilder)
	customer := b.Field(7).(*array.StringBuilder)
	skippedAt := b.Field(8).(*array.TimestampBuilder)

	for i, rec := range p.buffer {
		runID.Append(p.runID)
		line.Append(int64(rec.Line))
		stage.Append(string(rec.Stage))
		appendOptional(kind, kindOf(rec.Cause))
		reason.Append(rec.Reason())
		appendOptional(input, rec.Input)

		accountNumber, customerID := skipKeys(rec)
		appendOptional(account, accountNumber)
		appendOptional(customer, customerID)

		skippedAt.Append(arrow.Timestamp(p.stamps[i].UnixMilli()))
	}

	batch := b.NewRecord()
	defer batch.Release()

	if err := p.writer.Write(batch); err != nil {
		return &ParquetWriterError{
			Op:  "write_batch",
			Err: fmt.Errorf("failed to write record batch: %w", err),
		}
	}

	p.stats.RecordsWritten += int64(len(p.buffer))
	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	p.buffer = p.buffer[:0]
	p.stamps = p.stamps[:0]
	return nil
}

func appendOptional(b *array.StringBuilder, value string) {
	if value == "" {
		b.AppendNull()
		return
	}
	b.Append(value)
}

func kindOf(err error) string {
	var ie *core.ImportError
	if errors.As(err, &ie) {
		return string(ie.Kind)
	}
	return ""
}

// skipKeys returns the natural keys known for a skipped record.
func skipKeys(rec core.SkipRecord) (string, string) {
	switch {
	case rec.Row != nil:
		return rec.Row.AccountNumber, rec.Row.CustomerID
	case rec.Fact != nil:
		return "", rec.Fact.CustomerID
	default:
		return "", ""
	}
}
