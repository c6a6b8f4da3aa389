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

import "time"

// This file contains the run-level types reported to listeners and callers.

// RunInfo describes a run when it starts.
type RunInfo struct {
	RunID     string    // Unique id of the run
	Resource  string    // Input resource location
	ChunkSize int       // Rows per chunk transaction
	SkipLimit int64     // Skips tolerated before the run fails
	StartLine int       // First physical line read, 0 from the top
	StartedAt time.Time // Start time
}

// ChunkInfo describes one finished chunk.
type ChunkInfo struct {
	RunID    string        // Run the chunk belongs to
	Index    int           // 1-based chunk number
	Size     int           // Rows read into the chunk
	Written  int64         // Facts committed from the chunk
	ScanBack bool          // Whether the chunk was replayed one row at a time
	Duration time.Duration // Wall time spent on the chunk
}

// Outcome is the result of one run.
type Outcome struct {
	RunID             string       `json:"runId" bson:"runId"`
	Resource          string       `json:"resource" bson:"resource"`
	State             RunState     `json:"state" bson:"state"`
	Counters          RunCounters  `json:"counters" bson:"counters"`
	Skips             []SkipRecord `json:"-" bson:"-"`
	StartedAt         time.Time    `json:"startedAt" bson:"startedAt"`
	EndedAt           time.Time    `json:"endedAt" bson:"endedAt"`
	LastCommittedLine int          `json:"lastCommittedLine" bson:"lastCommittedLine"`
	Err               error        `json:"-" bson:"-"`
}

// Duration returns the wall time of the run.
func (o *Outcome) Duration() time.Duration {
	if o.EndedAt.IsZero() {
		return 0
	}
	return o.EndedAt.Sub(o.StartedAt)
}

// Reason returns the text of a skip cause, empty when absent.
func (s SkipRecord) Reason() string {
	if s.Cause == nil {
		return ""
	}
	return s.Cause.Error()
}
