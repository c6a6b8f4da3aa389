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
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/aaronlmathis/trximport/core"
)

// This file implements RejectWriter, which appends every skipped record to a delimited
// reject file so operators can correct and replay it.

// RejectHeaders are the columns of the reject file.
var RejectHeaders = []string{"LINE", "STAGE", "REASON", "INPUT"}

// CSVWriterError wraps reject file errors with context about the operation.
type CSVWriterError struct {
	Op  string // The operation being performed (e.g., "write_row", "flush")
	Err error  // The underlying error
}

// Error returns the error string for CSVWriterError.
func (e *CSVWriterError) Error() string {
	return fmt.Sprintf("csv writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for CSVWriterError.
func (e *CSVWriterError) Unwrap() error {
	return e.Err
}

// CSVWriterStats holds reject file statistics.
type CSVWriterStats struct {
	RecordsWritten int64         // Rejected records written
	FlushCount     int64         // Number of flushes
	FlushDuration  time.Duration // Total time spent flushing
	LastFlushTime  time.Time     // Time of last flush
}

// CSVWriterOptions configures the reject writer.
type CSVWriterOptions struct {
	Comma       rune // Field delimiter
	UseCRLF     bool // Use \r\n as line terminator
	WriteHeader bool // Write RejectHeaders first
	BatchSize   int  // Flush every BatchSize records (0 = only on Flush)
}

// WriterOptionCSV represents a configuration function for CSVWriterOptions.
type WriterOptionCSV func(*CSVWriterOptions)

// WithComma sets the field delimiter.
func WithComma(delim rune) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Comma = delim
	}
}

// WithWriteHeader enables or disables the header row.
func WithWriteHeader(write bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.WriteHeader = write
	}
}

// WithCSVBatchSize sets how many records are buffered between flushes.
func WithCSVBatchSize(size int) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.BatchSize = size
	}
}

// WithUseCRLF sets the line terminator to \r\n.
func WithUseCRLF(useCRLF bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.UseCRLF = useCRLF
	}
}

// RejectWriter records skipped lines. It is a skip and run listener; write failures
// are kept and returned by Err and Close rather than interrupting the import.
type RejectWriter struct {
	writer      *csv.Writer
	closer      io.Closer
	options     CSVWriterOptions
	stats       CSVWriterStats
	pending     int
	wroteHeader bool
	err         error
	mu          sync.Mutex
}

// NewRejectWriter creates a RejectWriter over w. The default delimiter is '|'.
func NewRejectWriter(w io.WriteCloser, opts ...WriterOptionCSV) *RejectWriter {
	options := CSVWriterOptions{
		Comma:       '|',
		WriteHeader: true,
		BatchSize:   100,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cw := csv.NewWriter(w)
	cw.Comma = options.Comma
	cw.UseCRLF = options.UseCRLF

	return &RejectWriter{
		writer:  cw,
		closer:  w,
		options: options,
	}
}

// OnSkip appends rec to the reject file.
func (r *RejectWriter) OnSkip(rec core.SkipRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return
	}

	if !r.wroteHeader && r.options.WriteHeader {
		if err := r.writer.Write(RejectHeaders); err != nil {
			r.err = &CSVWriterError{Op: "write_header", Err: err}
			return
		}
		r.wroteHeader = true
	}

	row := []string{strconv.Itoa(rec.Line), string(rec.Stage), rec.Reason(), rec.Input}
	if err := r.writer.Write(row); err != nil {
		r.err = &CSVWriterError{Op: "write_row", Err: fmt.Errorf("failed to write reject row: %w", err)}
		return
	}
	r.stats.RecordsWritten++
	r.pending++

	if r.options.BatchSize > 0 && r.pending >= r.options.BatchSize {
		r.flushUnsafe()
	}
}

// BeforeRun implements the run listener interface.
func (r *RejectWriter) BeforeRun(core.RunInfo) {}

// AfterRun flushes buffered rows.
func (r *RejectWriter) AfterRun(*core.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushUnsafe()
}

// Err returns the first write failure.
func (r *RejectWriter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close flushes and closes the underlying writer.
func (r *RejectWriter) Close() error {
	r.mu.Lock()
	r.flushUnsafe()
	err := r.err
	r.mu.Unlock()

	if r.closer != nil {
		if cerr := r.closer.Close(); cerr != nil && err == nil {
			err = &CSVWriterError{Op: "close", Err: cerr}
		}
	}
	return err
}

// Stats returns a copy of the reject file statistics.
func (r *RejectWriter) Stats() CSVWriterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *RejectWriter) flushUnsafe() {
	if r.err != nil || r.pending == 0 {
		return
	}

	start := time.Now()
	r.writer.Flush()
	if err := r.writer.Error(); err != nil {
		r.err = &CSVWriterError{Op: "flush", Err: fmt.Errorf("CSV writer flush error: %w", err)}
		return
	}
	r.stats.FlushCount++
	r.stats.LastFlushTime = time.Now()
	r.stats.FlushDuration += time.Since(start)
	r.pending = 0
}
