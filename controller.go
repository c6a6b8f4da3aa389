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
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/aaronlmathis/trximport/core"
)

// item is a mapped row together with the line it came from.
type item struct {
	line core.RawLine
	row  *core.CandidateRow
}

// chunkResult holds counter deltas that only become visible once a chunk commits.
type chunkResult struct {
	written  int64
	filtered int64
}

// controller drives one run: it fills chunks from the source, processes and writes each
// chunk in one transaction, and replays a faulted chunk one row per transaction so that
// only the offending rows are skipped.
type controller struct {
	runID        string
	source       core.LineSource
	mapper       core.LineMapper
	processor    core.Processor
	writer       core.ChunkWriter
	txm          core.TxManager
	participants []core.TxParticipant
	listeners    *listenerSet
	policy       SkipPolicy
	chunkSize    int
	skipLimit    int64
	logger       *zap.Logger

	outcome    *Outcome
	chunkIndex int
}

// run consumes the source to exhaustion. Cancellation is observed between chunks and
// while a chunk is being filled, never while a chunk transaction is open.
func (c *controller) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		items, eof, err := c.fill(ctx)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			if err := c.runChunk(context.WithoutCancel(ctx), items); err != nil {
				return err
			}
		}
		if eof {
			return nil
		}
	}
}

// fill reads up to chunkSize mapped rows. Mapping failures and unreadable lines become
// read skips; other source failures are fatal.
func (c *controller) fill(ctx context.Context) ([]item, bool, error) {
	items := make([]item, 0, c.chunkSize)
	for len(items) < c.chunkSize {
		line, err := c.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return items, true, nil
		}
		if err != nil && core.StageOf(err) != core.StageRead {
			return nil, false, err
		}

		var row *core.CandidateRow
		if err == nil {
			row, err = c.mapper.MapLine(line)
		}
		if err != nil {
			c.listeners.onReadError(line, err)
			if !c.policy.Skippable(err) {
				return nil, false, err
			}
			if err := c.skip(core.SkipRecord{
				Stage: core.StageRead,
				Cause: err,
				Line:  line.Number,
				Input: line.Text,
			}); err != nil {
				return nil, false, err
			}
			continue
		}

		c.outcome.Counters.Read++
		c.listeners.afterRead(line, row)
		items = append(items, item{line: line, row: row})
	}
	return items, false, nil
}

// runChunk commits items in one transaction, falling back to scan-back on a skippable fault.
func (c *controller) runChunk(ctx context.Context, items []item) error {
	c.chunkIndex++
	start := time.Now()
	info := core.ChunkInfo{RunID: c.runID, Index: c.chunkIndex, Size: len(items)}

	res, err := c.writeChunk(ctx, items)
	if err == nil {
		info.Written = res.written
		info.Duration = time.Since(start)
		c.listeners.afterChunk(info)
		return nil
	}
	if !c.policy.Skippable(err) {
		return err
	}

	c.logger.Info("chunk faulted, scanning back",
		zap.Int("chunk", c.chunkIndex),
		zap.Int("first_line", items[0].line.Number),
		zap.Int("rows", len(items)),
		zap.Error(err))

	info.ScanBack = true
	for _, it := range items {
		n, err := c.writeOne(ctx, it)
		if err != nil {
			return err
		}
		info.Written += n
	}
	info.Duration = time.Since(start)
	c.listeners.afterChunk(info)
	return nil
}

// writeChunk processes and writes every item in a single transaction. Outcome events
// are held until the commit; a faulted chunk drops them and the replay reports each row.
func (c *controller) writeChunk(ctx context.Context, items []item) (chunkResult, error) {
	var (
		res     chunkResult
		pending events
	)

	tx, err := c.txm.BeginTx(ctx)
	if err != nil {
		return res, fmt.Errorf("begin chunk %d: %w", c.chunkIndex, err)
	}

	facts := make([]*core.FactRow, 0, len(items))
	for _, it := range items {
		c.listeners.beforeProcess(it.row)
		fact, err := c.processor.Process(ctx, tx, it.row)
		if err != nil {
			if !c.policy.Skippable(err) {
				c.listeners.onProcessError(it.row, err)
			}
			c.rollback(tx)
			return res, err
		}
		row := it.row
		pending.add(func() { c.listeners.afterProcess(row, fact) })
		if fact == nil {
			res.filtered++
			continue
		}
		facts = append(facts, fact)
	}

	if len(facts) > 0 {
		c.listeners.beforeWrite(facts)
		if err := c.writer.Write(ctx, tx, facts); err != nil {
			if !c.policy.Skippable(err) {
				c.listeners.onWriteError(facts, err)
			}
			c.rollback(tx)
			return res, err
		}
		pending.add(func() { c.listeners.afterWrite(facts) })
	}

	last := items[len(items)-1].line.Number
	if err := c.commit(tx, last); err != nil {
		return res, err
	}
	pending.flush()
	res.written = int64(len(facts))
	c.applyCommit(res, last)
	return res, nil
}

// writeOne replays a single item in its own transaction and reports how many facts it wrote.
func (c *controller) writeOne(ctx context.Context, it item) (int64, error) {
	tx, err := c.txm.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin line %d: %w", it.line.Number, err)
	}

	c.listeners.beforeProcess(it.row)
	fact, err := c.processor.Process(ctx, tx, it.row)
	if err != nil {
		c.listeners.onProcessError(it.row, err)
		c.rollback(tx)
		if !c.policy.Skippable(err) {
			return 0, err
		}
		return 0, c.skip(core.SkipRecord{
			Stage: core.StageProcess,
			Cause: err,
			Line:  it.line.Number,
			Input: it.line.Text,
			Row:   it.row,
		})
	}
	c.listeners.afterProcess(it.row, fact)

	var (
		res   chunkResult
		facts []*core.FactRow
	)
	if fact == nil {
		res.filtered = 1
	} else {
		facts = []*core.FactRow{fact}
		c.listeners.beforeWrite(facts)
		if err := c.writer.Write(ctx, tx, facts); err != nil {
			c.listeners.onWriteError(facts, err)
			c.rollback(tx)
			return 0, c.writeSkip(it, fact, err)
		}
		res.written = 1
	}

	if err := c.commit(tx, it.line.Number); err != nil {
		if facts != nil {
			c.listeners.onWriteError(facts, err)
		}
		return 0, c.writeSkip(it, fact, err)
	}
	if facts != nil {
		c.listeners.afterWrite(facts)
	}
	c.applyCommit(res, it.line.Number)
	return res.written, nil
}

func (c *controller) writeSkip(it item, fact *core.FactRow, err error) error {
	if !c.policy.Skippable(err) {
		return err
	}
	return c.skip(core.SkipRecord{
		Stage: core.StageWrite,
		Cause: err,
		Line:  it.line.Number,
		Input: it.line.Text,
		Row:   it.row,
		Fact:  fact,
	})
}

// commit commits tx and notifies participants. A failed commit counts as a rollback
// and is reported as a write error against line.
func (c *controller) commit(tx core.Tx, line int) error {
	if err := tx.Commit(); err != nil {
		c.outcome.Counters.Rollbacks++
		for _, p := range c.participants {
			p.AfterRollback()
		}
		return core.NewWriteError(line, "commit failed", err)
	}
	for _, p := range c.participants {
		p.AfterCommit()
	}
	return nil
}

func (c *controller) rollback(tx core.Tx) {
	if err := tx.Rollback(); err != nil {
		c.logger.Warn("rollback failed", zap.Int("chunk", c.chunkIndex), zap.Error(err))
	}
	c.outcome.Counters.Rollbacks++
	for _, p := range c.participants {
		p.AfterRollback()
	}
}

// events holds listener notifications until the transaction they describe commits.
type events []func()

func (e *events) add(fn func()) {
	*e = append(*e, fn)
}

func (e events) flush() {
	for _, fn := range e {
		fn()
	}
}

func (c *controller) applyCommit(res chunkResult, line int) {
	c.outcome.Counters.Written += res.written
	c.outcome.Counters.Filtered += res.filtered
	c.outcome.Counters.Commits++
	c.outcome.LastCommittedLine = line
}

// skip records rec and enforces the skip budget. The run fails on the first skip
// past the limit.
func (c *controller) skip(rec core.SkipRecord) error {
	switch rec.Stage {
	case core.StageRead:
		c.outcome.Counters.ReadSkips++
	case core.StageProcess:
		c.outcome.Counters.ProcessSkips++
	case core.StageWrite:
		c.outcome.Counters.WriteSkips++
	}
	c.outcome.Skips = append(c.outcome.Skips, rec)

	c.logger.Debug("record skipped",
		zap.String("stage", string(rec.Stage)),
		zap.Int("line", rec.Line),
		zap.Error(rec.Cause))
	c.listeners.onSkip(rec)

	if total := c.outcome.Counters.Skips(); total > c.skipLimit {
		return core.NewSkipBudgetError(total, c.skipLimit, rec.Cause)
	}
	return nil
}
