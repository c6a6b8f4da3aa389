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

package observability

import (
	"go.uber.org/zap"

	"github.com/aaronlmathis/trximport/core"
)

// LoggingListener writes the run log. Per-record events are logged at debug level,
// chunks at info and skips at warn.
type LoggingListener struct {
	base   *zap.Logger
	logger *zap.Logger // base with the current run id
}

// NewLoggingListener creates a LoggingListener writing to logger.
func NewLoggingListener(logger *zap.Logger) *LoggingListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingListener{base: logger, logger: logger}
}

func (l *LoggingListener) BeforeRun(info core.RunInfo) {
	l.logger = l.base.With(zap.String("run_id", info.RunID))
	l.logger.Info("run starting",
		zap.String("resource", info.Resource),
		zap.Int("chunk_size", info.ChunkSize),
		zap.Int64("skip_limit", info.SkipLimit),
		zap.Int("start_line", info.StartLine))
}

func (l *LoggingListener) AfterRun(outcome *core.Outcome) {
	fields := []zap.Field{
		zap.String("state", string(outcome.State)),
		zap.Int64("read", outcome.Counters.Read),
		zap.Int64("written", outcome.Counters.Written),
		zap.Int64("filtered", outcome.Counters.Filtered),
		zap.Int64("read_skips", outcome.Counters.ReadSkips),
		zap.Int64("process_skips", outcome.Counters.ProcessSkips),
		zap.Int64("write_skips", outcome.Counters.WriteSkips),
		zap.Int64("commits", outcome.Counters.Commits),
		zap.Int64("rollbacks", outcome.Counters.Rollbacks),
		zap.Int("last_committed_line", outcome.LastCommittedLine),
		zap.Duration("duration", outcome.Duration()),
	}
	if outcome.Err != nil {
		l.logger.Error("run finished", append(fields, zap.Error(outcome.Err))...)
		return
	}
	l.logger.Info("run finished", fields...)
}

func (l *LoggingListener) AfterRead(line core.RawLine, row *core.CandidateRow) {
	if ce := l.logger.Check(zap.DebugLevel, "line read"); ce != nil {
		ce.Write(zap.Int("line", line.Number), zap.String("account", row.AccountNumber))
	}
}

func (l *LoggingListener) OnReadError(line core.RawLine, err error) {
	l.logger.Debug("line rejected", zap.Int("line", line.Number), zap.Error(err))
}

func (l *LoggingListener) BeforeProcess(*core.CandidateRow) {}

func (l *LoggingListener) AfterProcess(row *core.CandidateRow, fact *core.FactRow) {
	if ce := l.logger.Check(zap.DebugLevel, "row processed"); ce != nil {
		ce.Write(zap.Int("line", row.Line), zap.Bool("filtered", fact == nil))
	}
}

func (l *LoggingListener) OnProcessError(row *core.CandidateRow, err error) {
	l.logger.Debug("row failed", zap.Int("line", row.Line), zap.Error(err))
}

func (l *LoggingListener) BeforeWrite([]*core.FactRow) {}

func (l *LoggingListener) AfterWrite(facts []*core.FactRow) {
	l.logger.Debug("facts written", zap.Int("rows", len(facts)))
}

func (l *LoggingListener) OnWriteError(facts []*core.FactRow, err error) {
	l.logger.Debug("write failed", zap.Int("rows", len(facts)), zap.Error(err))
}

func (l *LoggingListener) OnSkip(rec core.SkipRecord) {
	l.logger.Warn("record skipped",
		zap.String("stage", string(rec.Stage)),
		zap.Int("line", rec.Line),
		zap.String("input", rec.Input),
		zap.String("reason", rec.Reason()))
}

func (l *LoggingListener) AfterChunk(info core.ChunkInfo) {
	l.logger.Info("chunk committed",
		zap.Int("chunk", info.Index),
		zap.Int("size", info.Size),
		zap.Int64("written", info.Written),
		zap.Bool("scan_back", info.ScanBack),
		zap.Duration("duration", info.Duration))
}
