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

package trximport

import (
	"github.com/aaronlmathis/trximport/core"
)

// Package trximport imports pipe-delimited transaction files into a relational store.
//
// This file contains the listener interfaces the chunk controller publishes to, and the
// skip policy deciding which failures may be skipped. Listeners observe the run; they
// never influence commit or skip decisions.

// Outcome is the result of one run.
type Outcome = core.Outcome

// ReadListener observes the read stage.
type ReadListener interface {
	// AfterRead is called for every line mapped to a candidate row.
	AfterRead(line core.RawLine, row *core.CandidateRow)
	// OnReadError is called for every line that could not be mapped.
	OnReadError(line core.RawLine, err error)
}

// ProcessListener observes the process stage. BeforeProcess marks an attempt and is
// repeated when a faulted chunk is replayed row by row; AfterProcess and OnProcessError
// are reported once per row, for the attempt whose outcome stands.
type ProcessListener interface {
	BeforeProcess(row *core.CandidateRow)
	// AfterProcess receives a nil fact when the row was filtered.
	AfterProcess(row *core.CandidateRow, fact *core.FactRow)
	OnProcessError(row *core.CandidateRow, err error)
}

// WriteListener observes the write stage. AfterWrite is only reported for facts whose
// transaction committed; BeforeWrite repeats on replay like BeforeProcess.
type WriteListener interface {
	BeforeWrite(facts []*core.FactRow)
	AfterWrite(facts []*core.FactRow)
	OnWriteError(facts []*core.FactRow, err error)
}

// SkipListener is told about every skipped record, at every stage.
type SkipListener interface {
	OnSkip(rec core.SkipRecord)
}

// ChunkListener is told about every finished chunk.
type ChunkListener interface {
	AfterChunk(info core.ChunkInfo)
}

// RunListener observes the run lifecycle.
type RunListener interface {
	BeforeRun(info core.RunInfo)
	AfterRun(outcome *Outcome)
}

// SkipListenerFunc is a function adapter for the SkipListener interface.
type SkipListenerFunc func(rec core.SkipRecord)

// OnSkip implements the SkipListener interface for SkipListenerFunc.
func (f SkipListenerFunc) OnSkip(rec core.SkipRecord) {
	f(rec)
}

// ChunkListenerFunc is a function adapter for the ChunkListener interface.
type ChunkListenerFunc func(info core.ChunkInfo)

// AfterChunk implements the ChunkListener interface for ChunkListenerFunc.
func (f ChunkListenerFunc) AfterChunk(info core.ChunkInfo) {
	f(info)
}

// SkipPolicy decides whether a failure may be converted into a skip.
type SkipPolicy interface {
	Skippable(err error) bool
}

// SkipPolicyFunc is a function adapter for the SkipPolicy interface.
type SkipPolicyFunc func(err error) bool

// Skippable implements the SkipPolicy interface for SkipPolicyFunc.
func (f SkipPolicyFunc) Skippable(err error) bool {
	return f(err)
}

// DefaultSkipPolicy skips parse, validation, dependency and write errors.
var DefaultSkipPolicy SkipPolicy = SkipPolicyFunc(core.IsSkippable)

// NeverSkip makes every failure fatal.
var NeverSkip SkipPolicy = SkipPolicyFunc(func(error) bool { return false })
