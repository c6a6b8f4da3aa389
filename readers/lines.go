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
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aaronlmathis/trximport/core"
)

// Package readers provides the record source of the import pipeline: resource opening
// (local files and S3 objects), a lazy line reader, and the delimited line mapper.
//
// This file implements LineReader, a core.LineSource over any io.ReadCloser.

// LineReaderError wraps line reader errors with context about the operation.
type LineReaderError struct {
	Op  string // The operation being performed (e.g., "read_line")
	Err error  // The underlying error
}

// Error returns the error string for LineReaderError.
func (e *LineReaderError) Error() string {
	return fmt.Sprintf("line reader %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for LineReaderError.
func (e *LineReaderError) Unwrap() error {
	return e.Err
}

// LineReaderStats holds statistics for LineReader operations.
type LineReaderStats struct {
	LinesRead    int64         // Lines handed to the caller
	LinesSkipped int64         // Header lines and lines before the start line
	ReadDuration time.Duration // Total time spent reading
	LastReadTime time.Time     // Time of last read
}

// LineReaderOptions configures a LineReader.
type LineReaderOptions struct {
	LinesToSkip          int                // Leading header lines, reported to SkippedLinesCallback
	StartLine            int                // First physical line to return (1-based, 0 = from the top)
	MaxLineSize          int                // Longer lines are skipped with a parse error
	SkippedLinesCallback func(core.RawLine) // Invoked for every header line
}

// ReaderOptionLine represents a configuration function for LineReaderOptions.
type ReaderOptionLine func(*LineReaderOptions)

// WithLinesToSkip sets how many leading lines are treated as header.
func WithLinesToSkip(n int) ReaderOptionLine {
	return func(o *LineReaderOptions) { o.LinesToSkip = n }
}

// WithStartLine makes the reader resume at the given physical line.
func WithStartLine(n int) ReaderOptionLine {
	return func(o *LineReaderOptions) { o.StartLine = n }
}

// WithMaxLineSize sets the maximum accepted line length in bytes, excluding the terminator.
func WithMaxLineSize(n int) ReaderOptionLine {
	return func(o *LineReaderOptions) { o.MaxLineSize = n }
}

// WithSkippedLinesCallback registers a callback for header lines.
func WithSkippedLinesCallback(fn func(core.RawLine)) ReaderOptionLine {
	return func(o *LineReaderOptions) { o.SkippedLinesCallback = fn }
}

// LineReader implements core.LineSource for newline-delimited text.
// Lines are read lazily; nothing is buffered beyond the current line.
type LineReader struct {
	reader  *bufio.Reader
	closer  io.Closer
	buf     []byte
	line    int
	offset  int
	stats   LineReaderStats
	opts    LineReaderOptions
}

// NewLineReader creates a LineReader over r. The header (one line by default) is skipped.
func NewLineReader(r io.ReadCloser, options ...ReaderOptionLine) *LineReader {
	opts := LineReaderOptions{
		LinesToSkip: 1,
		MaxLineSize: 1024 * 1024,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.MaxLineSize <= 0 {
		opts.MaxLineSize = 1024 * 1024
	}

	return &LineReader{
		reader: bufio.NewReaderSize(r, 64*1024),
		closer: r,
		opts:   opts,
	}
}

// tooLongInput bounds the text kept from an over-long line for skip reports.
const tooLongInput = 256

// Next implements the core.LineSource interface.
func (l *LineReader) Next(ctx context.Context) (core.RawLine, error) {
	start := time.Now()
	defer func() {
		l.stats.ReadDuration += time.Since(start)
		l.stats.LastReadTime = time.Now()
	}()

	for {
		select {
		case <-ctx.Done():
			return core.RawLine{}, &LineReaderError{Op: "read_line", Err: ctx.Err()}
		default:
		}

		text, tooLong, err := l.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return core.RawLine{}, io.EOF
			}
			return core.RawLine{}, &LineReaderError{Op: "read_line", Err: err}
		}

		l.line++
		raw := core.RawLine{Number: l.line, Text: text}

		if tooLong && l.line > l.opts.LinesToSkip && l.line >= l.opts.StartLine {
			l.offset = l.line
			l.stats.LinesRead++
			return raw, core.NewParseError(raw,
				fmt.Sprintf("line longer than %d bytes", l.opts.MaxLineSize), bufio.ErrTooLong)
		}

		if l.line <= l.opts.LinesToSkip {
			l.stats.LinesSkipped++
			if l.opts.SkippedLinesCallback != nil {
				l.opts.SkippedLinesCallback(raw)
			}
			continue
		}
		if l.line < l.opts.StartLine {
			l.stats.LinesSkipped++
			continue
		}

		l.offset = l.line
		l.stats.LinesRead++
		return raw, nil
	}
}

// readLine returns the next line without its terminator. A line longer than MaxLineSize
// is consumed to its end; only a prefix of it is returned and tooLong is set.
func (l *LineReader) readLine() (string, bool, error) {
	l.buf = l.buf[:0]
	var (
		read    int
		tooLong bool
	)
	for {
		frag, err := l.reader.ReadSlice('\n')
		read += len(frag)
		if !tooLong {
			l.buf = append(l.buf, frag...)
			// the terminator may still follow, so allow for "\r\n"
			if len(l.buf) > l.opts.MaxLineSize+2 {
				tooLong = true
				l.buf = l.buf[:min(len(l.buf), tooLongInput)]
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if read == 0 {
				return "", false, io.EOF
			}
		default:
			return "", false, err
		}
		break
	}

	line := bytes.TrimSuffix(l.buf, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if tooLong || len(line) > l.opts.MaxLineSize {
		return string(line[:min(len(line), tooLongInput)]), true, nil
	}
	return string(line), false, nil
}

// Offset returns the physical number of the last line returned by Next.
func (l *LineReader) Offset() int {
	return l.offset
}

// Close implements the core.LineSource interface.
func (l *LineReader) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Stats returns a copy of the reader statistics.
func (l *LineReader) Stats() LineReaderStats {
	return l.stats
}

// Preview returns up to n leading lines of r and closes it.
// It is used for resource diagnostics before a run starts.
func Preview(r io.ReadCloser, n int) ([]string, error) {
	defer r.Close()

	lr := NewLineReader(r, WithLinesToSkip(0))
	lines := make([]string, 0, n)
	for len(lines) < n {
		line, err := lr.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !core.IsKind(err, core.KindParse) {
			var lrErr *LineReaderError
			if errors.As(err, &lrErr) {
				lrErr.Op = "preview"
			}
			return lines, err
		}
		lines = append(lines, line.Text)
	}
	return lines, nil
}
