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
	"errors"
	"fmt"
	"strings"
)

// This file contains the error taxonomy of the import pipeline.
//
// Every failure the pipeline can observe is reported as an *ImportError carrying a Kind.
// The chunk controller decides between skipping and aborting from the Kind alone.

// ErrorKind categorizes an ImportError.
type ErrorKind string

const (
	// KindResource means the input resource is missing or unreadable. Fatal.
	KindResource ErrorKind = "resource"
	// KindParse means a line is blank or malformed. Skip-eligible at the read stage.
	KindParse ErrorKind = "parse"
	// KindValidation means a required field is missing. Skip-eligible at the read or process stage.
	KindValidation ErrorKind = "validation"
	// KindDependency means a dimension could not be resolved. Skip-eligible at the process stage.
	KindDependency ErrorKind = "dependency"
	// KindWrite means a fact row could not be inserted. Skip-eligible at the write stage.
	KindWrite ErrorKind = "write"
	// KindSkipBudget means the cumulative skip count crossed the configured limit. Fatal.
	KindSkipBudget ErrorKind = "skip_budget"
)

// ErrNotFound is returned by dimension stores when a natural key has no row.
// After a successful upsert it signals an inconsistent store.
var ErrNotFound = errors.New("not found")

// ImportError is the error type produced by every pipeline stage.
type ImportError struct {
	Kind    ErrorKind // Category used by the skip policy
	Stage   Stage     // Stage the error was raised in, empty for run-level errors
	Line    int       // Physical line number, 0 when unknown
	Input   string    // Raw input line, when known
	Message string    // Human-readable description
	Fields  []string  // Offending field names for validation errors
	Err     error     // Underlying error
}

// Error returns the error string for ImportError.
func (e *ImportError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d)", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for ImportError.
func (e *ImportError) Unwrap() error {
	return e.Err
}

// NewResourceError reports a missing or unreadable input resource.
func NewResourceError(location string, err error) *ImportError {
	return &ImportError{
		Kind:    KindResource,
		Message: fmt.Sprintf("resource %q is not readable", location),
		Err:     err,
	}
}

// NewParseError reports a line that could not be tokenized or converted.
func NewParseError(line RawLine, message string, err error) *ImportError {
	return &ImportError{
		Kind:    KindParse,
		Stage:   StageRead,
		Line:    line.Number,
		Input:   line.Text,
		Message: message,
		Err:     err,
	}
}

// NewValidationError reports missing required fields at the given stage.
func NewValidationError(stage Stage, line int, fields []string, message string) *ImportError {
	return &ImportError{
		Kind:    KindValidation,
		Stage:   stage,
		Line:    line,
		Message: message,
		Fields:  append([]string(nil), fields...),
	}
}

// NewDependencyError reports a dimension that could not be upserted or read back.
func NewDependencyError(line int, message string, err error) *ImportError {
	return &ImportError{
		Kind:    KindDependency,
		Stage:   StageProcess,
		Line:    line,
		Message: message,
		Err:     err,
	}
}

// NewWriteError reports a fact row insert failure.
func NewWriteError(line int, message string, err error) *ImportError {
	return &ImportError{
		Kind:    KindWrite,
		Stage:   StageWrite,
		Line:    line,
		Message: message,
		Err:     err,
	}
}

// NewSkipBudgetError reports that the run exceeded its skip limit.
func NewSkipBudgetError(skips, limit int64, last error) *ImportError {
	return &ImportError{
		Kind:    KindSkipBudget,
		Message: fmt.Sprintf("skip limit %d exceeded (%d skips)", limit, skips),
		Err:     last,
	}
}

// IsKind reports whether any ImportError in err's chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ie *ImportError
	for err != nil {
		if !errors.As(err, &ie) {
			return false
		}
		if ie.Kind == kind {
			return true
		}
		err = ie.Err
	}
	return false
}

// IsSkippable reports whether err may be converted into a SkipRecord.
// Only the outermost ImportError decides; wrapped causes do not change the verdict.
func IsSkippable(err error) bool {
	var ie *ImportError
	if !errors.As(err, &ie) {
		return false
	}
	switch ie.Kind {
	case KindParse, KindValidation, KindDependency, KindWrite:
		return true
	default:
		return false
	}
}

// StageOf returns the stage recorded on the outermost ImportError in err's chain.
func StageOf(err error) Stage {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Stage
	}
	return ""
}
