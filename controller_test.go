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
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/trximport/core"
	"github.com/aaronlmathis/trximport/readers"
)

// fakeSource yields lines numbered from 2, the header being line 1.
type fakeSource struct {
	lines  []string
	pos    int
	closed bool
}

func newFakeSource(lines ...string) *fakeSource {
	return &fakeSource{lines: lines}
}

func (s *fakeSource) Next(ctx context.Context) (core.RawLine, error) {
	if err := ctx.Err(); err != nil {
		return core.RawLine{}, err
	}
	if s.pos >= len(s.lines) {
		return core.RawLine{}, io.EOF
	}
	s.pos++
	return core.RawLine{Number: s.pos + 1, Text: s.lines[s.pos-1]}, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeTx struct {
	m       *fakeTxManager
	pending []*core.FactRow
	done    bool
}

func (t *fakeTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errors.New("not supported")
}

func (t *fakeTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func (t *fakeTx) PrepareContext(context.Context, string) (*sql.Stmt, error) {
	return nil, errors.New("not supported")
}

func (t *fakeTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	if t.m.failCommit {
		return errors.New("commit refused")
	}
	t.m.commits++
	t.m.committed = append(t.m.committed, t.pending...)
	return nil
}

func (t *fakeTx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.m.rollbacks++
	return nil
}

type fakeTxManager struct {
	begins     int
	commits    int
	rollbacks  int
	failBegin  bool
	failCommit bool
	committed  []*core.FactRow
}

func (m *fakeTxManager) BeginTx(context.Context) (core.Tx, error) {
	if m.failBegin {
		return nil, errors.New("connection lost")
	}
	m.begins++
	return &fakeTx{m: m}, nil
}

func (m *fakeTxManager) committedLines() []int {
	lines := make([]int, 0, len(m.committed))
	for _, f := range m.committed {
		lines = append(lines, f.Line)
	}
	return lines
}

// fakeWriter buffers facts on the transaction and fails on the configured lines.
type fakeWriter struct {
	failLines map[int]bool
}

func (w *fakeWriter) Write(_ context.Context, q core.Querier, rows []*core.FactRow) error {
	tx := q.(*fakeTx)
	for _, r := range rows {
		if w.failLines[r.Line] {
			return core.NewWriteError(r.Line, "insert failed", errors.New("constraint violation"))
		}
	}
	tx.pending = append(tx.pending, rows...)
	return nil
}

// fakeProcessor fails rows whose account is BAD, filters rows whose account is SKIP
// and fails fatally on rows whose account is BOOM.
type fakeProcessor struct {
	commits   int
	rollbacks int
}

func (p *fakeProcessor) Process(_ context.Context, _ core.Querier, row *core.CandidateRow) (*core.FactRow, error) {
	switch row.AccountNumber {
	case "BAD":
		return nil, core.NewDependencyError(row.Line, "account could not be resolved", core.ErrNotFound)
	case "SKIP":
		return nil, nil
	case "BOOM":
		return nil, errors.New("driver panic")
	}
	return &core.FactRow{Line: row.Line, Amount: *row.Amount, CustomerID: row.CustomerID}, nil
}

func (p *fakeProcessor) AfterCommit()   { p.commits++ }
func (p *fakeProcessor) AfterRollback() { p.rollbacks++ }

type recordingListener struct {
	skips  []core.SkipRecord
	chunks []core.ChunkInfo
	info   core.RunInfo
	result *Outcome

	processAttempts int
	processed       int
	processErrors   []string
	writtenLines    []int
	writeErrors     []int
}

func (l *recordingListener) BeforeProcess(*core.CandidateRow) { l.processAttempts++ }
func (l *recordingListener) AfterProcess(*core.CandidateRow, *core.FactRow) {
	l.processed++
}
func (l *recordingListener) OnProcessError(row *core.CandidateRow, _ error) {
	l.processErrors = append(l.processErrors, row.AccountNumber)
}
func (l *recordingListener) BeforeWrite([]*core.FactRow) {}
func (l *recordingListener) AfterWrite(facts []*core.FactRow) {
	for _, f := range facts {
		l.writtenLines = append(l.writtenLines, f.Line)
	}
}
func (l *recordingListener) OnWriteError(facts []*core.FactRow, _ error) {
	for _, f := range facts {
		l.writeErrors = append(l.writeErrors, f.Line)
	}
}

func (l *recordingListener) OnSkip(rec core.SkipRecord)     { l.skips = append(l.skips, rec) }
func (l *recordingListener) AfterChunk(info core.ChunkInfo) { l.chunks = append(l.chunks, info) }
func (l *recordingListener) BeforeRun(info core.RunInfo)    { l.info = info }
func (l *recordingListener) AfterRun(outcome *Outcome)      { l.result = outcome }

func line(account string) string {
	return account + "|10.00|coffee|2025-06-01|08:30:00|C1"
}

func lines(n int, account string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = line(account)
	}
	return out
}

type harness struct {
	source    *fakeSource
	txm       *fakeTxManager
	writer    *fakeWriter
	processor *fakeProcessor
	listener  *recordingListener
}

func newHarness(input ...string) *harness {
	return &harness{
		source:    newFakeSource(input...),
		txm:       &fakeTxManager{},
		writer:    &fakeWriter{failLines: map[int]bool{}},
		processor: &fakeProcessor{},
		listener:  &recordingListener{},
	}
}

func (h *harness) build(t *testing.T, chunkSize int, skipLimit int64) *Pipeline {
	t.Helper()
	p, err := NewPipeline().
		FromSource(h.source).
		WithLineMapper(readers.NewDelimitedLineMapper()).
		WithProcessor(h.processor).
		WithTxManager(h.txm).
		To(h.writer).
		WithChunkSize(chunkSize).
		WithSkipLimit(skipLimit).
		WithListener(h.listener).
		Build()
	require.NoError(t, err)
	return p
}

func TestBlankLineIsSkippedAtRead(t *testing.T) {
	h := newHarness(line("ACC1"), "", line("ACC2"))
	outcome, err := h.build(t, DefaultChunkSize, DefaultSkipLimit).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, outcome.State)
	assert.Equal(t, int64(2), outcome.Counters.Read)
	assert.Equal(t, int64(2), outcome.Counters.Written)
	assert.Equal(t, int64(1), outcome.Counters.ReadSkips)
	assert.Equal(t, []int{2, 4}, h.txm.committedLines())
	assert.Equal(t, 4, outcome.LastCommittedLine)

	require.Len(t, outcome.Skips, 1)
	assert.Equal(t, core.StageRead, outcome.Skips[0].Stage)
	assert.Equal(t, 3, outcome.Skips[0].Line)
	assert.True(t, core.IsKind(outcome.Skips[0].Cause, core.KindParse))
	assert.Equal(t, outcome.Skips, h.listener.skips)
	assert.True(t, h.source.closed)
}

func TestOverlongLineIsSkippedAtRead(t *testing.T) {
	input := strings.Join([]string{
		"ACCOUNT_NUMBER|TRX_AMOUNT|DESCRIPTION|TRX_DATE|TRX_TIME|CUSTOMER_ID",
		line("ACC1"),
		strings.Repeat("x", 4096),
		line("ACC2"),
	}, "\n") + "\n"
	source := readers.NewLineReader(io.NopCloser(strings.NewReader(input)), readers.WithMaxLineSize(256))

	h := newHarness()
	p, err := NewPipeline().
		FromSource(source).
		WithProcessor(h.processor).
		WithTxManager(h.txm).
		To(h.writer).
		WithListener(h.listener).
		Build()
	require.NoError(t, err)

	outcome, err := p.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, outcome.State)
	assert.Equal(t, int64(2), outcome.Counters.Read)
	assert.Equal(t, int64(2), outcome.Counters.Written)
	assert.Equal(t, int64(1), outcome.Counters.ReadSkips)
	assert.Equal(t, []int{2, 4}, h.txm.committedLines())

	require.Len(t, outcome.Skips, 1)
	skip := outcome.Skips[0]
	assert.Equal(t, core.StageRead, skip.Stage)
	assert.Equal(t, 3, skip.Line)
	assert.True(t, core.IsKind(skip.Cause, core.KindParse))
	assert.ErrorIs(t, skip.Cause, bufio.ErrTooLong)
	assert.LessOrEqual(t, len(skip.Input), 256)
}

func TestSkipBudget(t *testing.T) {
	tests := []struct {
		name      string
		badLines  int
		wantState core.RunState
	}{
		{name: "at the limit", badLines: 500, wantState: core.StateCompleted},
		{name: "one past the limit", badLines: 501, wantState: core.StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := append(lines(tt.badLines, ""), line("ACC1"))
			h := newHarness(input...)
			outcome, err := h.build(t, DefaultChunkSize, 500).Execute(context.Background())

			assert.Equal(t, tt.wantState, outcome.State)
			assert.Equal(t, int64(tt.badLines), outcome.Counters.ReadSkips)
			if tt.wantState == core.StateFailed {
				require.Error(t, err)
				assert.True(t, core.IsKind(err, core.KindSkipBudget))
				assert.Equal(t, int64(0), outcome.Counters.Written)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(1), outcome.Counters.Written)
			}
		})
	}
}

func TestScanBackIsolatesFaultyRow(t *testing.T) {
	input := lines(10, "ACC1")
	input[3] = line("BAD")
	h := newHarness(input...)

	outcome, err := h.build(t, 5, DefaultSkipLimit).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(9), outcome.Counters.Written)
	assert.Equal(t, int64(1), outcome.Counters.ProcessSkips)
	assert.Equal(t, int64(5), outcome.Counters.Commits)
	assert.Equal(t, int64(2), outcome.Counters.Rollbacks)
	assert.Equal(t, []int{2, 3, 4, 6, 7, 8, 9, 10, 11}, h.txm.committedLines())
	assert.Equal(t, 11, outcome.LastCommittedLine)

	require.Len(t, outcome.Skips, 1)
	skip := outcome.Skips[0]
	assert.Equal(t, core.StageProcess, skip.Stage)
	assert.Equal(t, 5, skip.Line)
	assert.Equal(t, line("BAD"), skip.Input)
	require.NotNil(t, skip.Row)
	assert.Equal(t, "BAD", skip.Row.AccountNumber)

	require.Len(t, h.listener.chunks, 2)
	assert.True(t, h.listener.chunks[0].ScanBack)
	assert.Equal(t, int64(4), h.listener.chunks[0].Written)
	assert.False(t, h.listener.chunks[1].ScanBack)

	assert.Equal(t, 5, h.processor.commits)
	assert.Equal(t, 2, h.processor.rollbacks)
}

func TestScanBackReportsEachRowOnce(t *testing.T) {
	input := lines(5, "ACC1")
	input[1] = line("BAD")
	h := newHarness(input...)
	h.writer.failLines[5] = true

	outcome, err := h.build(t, 5, DefaultSkipLimit).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), outcome.Counters.Written)
	assert.Equal(t, 7, h.listener.processAttempts, "two in the bulk pass, five in the replay")
	assert.Equal(t, 4, h.listener.processed)
	assert.Equal(t, []string{"BAD"}, h.listener.processErrors)
	assert.Equal(t, []int{2, 4, 6}, h.listener.writtenLines)
	assert.Equal(t, []int{5}, h.listener.writeErrors)
	assert.Equal(t, h.txm.committedLines(), h.listener.writtenLines)
}

func TestCommittedChunkReportsEvents(t *testing.T) {
	h := newHarness(lines(3, "ACC1")...)

	_, err := h.build(t, 5, DefaultSkipLimit).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, h.listener.processAttempts)
	assert.Equal(t, 3, h.listener.processed)
	assert.Empty(t, h.listener.processErrors)
	assert.Equal(t, []int{2, 3, 4}, h.listener.writtenLines)
}

func TestWriteFaultBecomesWriteSkip(t *testing.T) {
	h := newHarness(lines(4, "ACC1")...)
	h.writer.failLines[3] = true

	outcome, err := h.build(t, DefaultChunkSize, DefaultSkipLimit).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), outcome.Counters.Written)
	assert.Equal(t, int64(1), outcome.Counters.WriteSkips)
	require.Len(t, outcome.Skips, 1)
	assert.Equal(t, core.StageWrite, outcome.Skips[0].Stage)
	require.NotNil(t, outcome.Skips[0].Fact)
	assert.Equal(t, 3, outcome.Skips[0].Fact.Line)
	assert.Equal(t, []int{2, 4, 5}, h.txm.committedLines())
}

func TestCommitFailureIsSkippedPerRow(t *testing.T) {
	h := newHarness(lines(2, "ACC1")...)
	h.txm.failCommit = true

	outcome, err := h.build(t, DefaultChunkSize, DefaultSkipLimit).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(0), outcome.Counters.Written)
	assert.Equal(t, int64(2), outcome.Counters.WriteSkips)
	assert.Equal(t, int64(3), outcome.Counters.Rollbacks)
}

func TestFilteredRowsAreCountedOnCommit(t *testing.T) {
	h := newHarness(line("ACC1"), line("SKIP"), line("ACC2"))

	outcome, err := h.build(t, DefaultChunkSize, DefaultSkipLimit).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), outcome.Counters.Read)
	assert.Equal(t, int64(2), outcome.Counters.Written)
	assert.Equal(t, int64(1), outcome.Counters.Filtered)
	assert.Zero(t, outcome.Counters.Skips())
}

func TestFatalProcessErrorStopsRun(t *testing.T) {
	input := append(lines(3, "ACC1"), line("BOOM"), line("ACC1"))
	h := newHarness(input...)

	outcome, err := h.build(t, 3, DefaultSkipLimit).Execute(context.Background())

	require.Error(t, err)
	assert.Equal(t, core.StateFailed, outcome.State)
	assert.EqualError(t, outcome.Err, "driver panic")
	assert.Equal(t, int64(3), outcome.Counters.Written)
	assert.Equal(t, int64(1), outcome.Counters.Rollbacks)
	assert.Equal(t, 4, outcome.LastCommittedLine)
	assert.Same(t, outcome, h.listener.result)
}

func TestBeginFailureIsFatal(t *testing.T) {
	h := newHarness(line("ACC1"))
	h.txm.failBegin = true

	outcome, err := h.build(t, DefaultChunkSize, DefaultSkipLimit).Execute(context.Background())

	require.Error(t, err)
	assert.Equal(t, core.StateFailed, outcome.State)
	assert.Zero(t, outcome.Counters.Skips())
}

func TestCancelledRunStopsAtChunkBoundary(t *testing.T) {
	h := newHarness(lines(4, "ACC1")...)
	ctx, cancel := context.WithCancel(context.Background())

	p := h.build(t, 2, DefaultSkipLimit)
	p.listeners.add(ChunkListenerFunc(func(core.ChunkInfo) { cancel() }))

	outcome, err := p.Execute(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.StateFailed, outcome.State)
	assert.Equal(t, int64(2), outcome.Counters.Written)
	assert.Equal(t, 3, outcome.LastCommittedLine)
}

func TestNeverSkipPolicy(t *testing.T) {
	h := newHarness(line("ACC1"), "")
	p, err := NewPipeline().
		FromSource(h.source).
		WithProcessor(h.processor).
		WithTxManager(h.txm).
		To(h.writer).
		WithSkipPolicy(NeverSkip).
		Build()
	require.NoError(t, err)

	outcome, err := p.Execute(context.Background())

	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindParse))
	assert.Zero(t, outcome.Counters.Skips())
	assert.Equal(t, core.StateFailed, p.State())
}

func TestRunInfoAndOutcome(t *testing.T) {
	h := newHarness(line("ACC1"))
	outcome, err := h.build(t, 7, 3).Execute(context.Background())

	require.NoError(t, err)
	assert.NotEmpty(t, h.listener.info.RunID)
	assert.Equal(t, h.listener.info.RunID, outcome.RunID)
	assert.Equal(t, 7, h.listener.info.ChunkSize)
	assert.Equal(t, int64(3), h.listener.info.SkipLimit)
	assert.True(t, strings.HasPrefix(outcome.Resource, "*trximport."))
	assert.False(t, outcome.EndedAt.Before(outcome.StartedAt))
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name    string
		builder func() *PipelineBuilder
		wantErr string
	}{
		{
			name:    "missing everything",
			builder: NewPipeline,
			wantErr: "pipeline requires an input resource",
		},
		{
			name: "bad chunk size",
			builder: func() *PipelineBuilder {
				return NewPipeline().From("in.txt").WithChunkSize(0)
			},
			wantErr: "chunk size must be positive",
		},
		{
			name: "bad listener",
			builder: func() *PipelineBuilder {
				return NewPipeline().WithListener(struct{}{})
			},
			wantErr: "implements no listener interface",
		},
		{
			name: "no processor",
			builder: func() *PipelineBuilder {
				return NewPipeline().From("in.txt").WithTxManager(&fakeTxManager{}).To(&fakeWriter{})
			},
			wantErr: "dimension store or a processor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder().Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMissingResourceFailsRun(t *testing.T) {
	p, err := NewPipeline().
		From(fmt.Sprintf("%s/missing.txt", t.TempDir())).
		WithProcessor(&fakeProcessor{}).
		WithTxManager(&fakeTxManager{}).
		To(&fakeWriter{}).
		Build()
	require.NoError(t, err)

	outcome, err := p.Execute(context.Background())

	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindResource))
	assert.Equal(t, core.StateFailed, outcome.State)
}
