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

// listenerSet fans controller events out to registered listeners, in registration order.
type listenerSet struct {
	read    []ReadListener
	process []ProcessListener
	write   []WriteListener
	skip    []SkipListener
	chunk   []ChunkListener
	run     []RunListener
}

// add registers l under every listener interface it implements and reports whether
// it implements at least one.
func (s *listenerSet) add(l interface{}) bool {
	matched := false
	if v, ok := l.(ReadListener); ok {
		s.read = append(s.read, v)
		matched = true
	}
	if v, ok := l.(ProcessListener); ok {
		s.process = append(s.process, v)
		matched = true
	}
	if v, ok := l.(WriteListener); ok {
		s.write = append(s.write, v)
		matched = true
	}
	if v, ok := l.(SkipListener); ok {
		s.skip = append(s.skip, v)
		matched = true
	}
	if v, ok := l.(ChunkListener); ok {
		s.chunk = append(s.chunk, v)
		matched = true
	}
	if v, ok := l.(RunListener); ok {
		s.run = append(s.run, v)
		matched = true
	}
	return matched
}

func (s *listenerSet) afterRead(line core.RawLine, row *core.CandidateRow) {
	for _, l := range s.read {
		l.AfterRead(line, row)
	}
}

func (s *listenerSet) onReadError(line core.RawLine, err error) {
	for _, l := range s.read {
		l.OnReadError(line, err)
	}
}

func (s *listenerSet) beforeProcess(row *core.CandidateRow) {
	for _, l := range s.process {
		l.BeforeProcess(row)
	}
}

func (s *listenerSet) afterProcess(row *core.CandidateRow, fact *core.FactRow) {
	for _, l := range s.process {
		l.AfterProcess(row, fact)
	}
}

func (s *listenerSet) onProcessError(row *core.CandidateRow, err error) {
	for _, l := range s.process {
		l.OnProcessError(row, err)
	}
}

func (s *listenerSet) beforeWrite(facts []*core.FactRow) {
	for _, l := range s.write {
		l.BeforeWrite(facts)
	}
}

func (s *listenerSet) afterWrite(facts []*core.FactRow) {
	for _, l := range s.write {
		l.AfterWrite(facts)
	}
}

func (s *listenerSet) onWriteError(facts []*core.FactRow, err error) {
	for _, l := range s.write {
		l.OnWriteError(facts, err)
	}
}

func (s *listenerSet) onSkip(rec core.SkipRecord) {
	for _, l := range s.skip {
		l.OnSkip(rec)
	}
}

func (s *listenerSet) afterChunk(info core.ChunkInfo) {
	for _, l := range s.chunk {
		l.AfterChunk(info)
	}
}

func (s *listenerSet) beforeRun(info core.RunInfo) {
	for _, l := range s.run {
		l.BeforeRun(info)
	}
}

func (s *listenerSet) afterRun(outcome *Outcome) {
	for _, l := range s.run {
		l.AfterRun(outcome)
	}
}
