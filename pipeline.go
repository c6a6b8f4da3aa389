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
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aaronlmathis/trximport/core"
	"github.com/aaronlmathis/trximport/dimension"
	"github.com/aaronlmathis/trximport/readers"
	"github.com/aaronlmathis/trximport/transform"
)

// Package trximport imports pipe-delimited transaction files into a relational store.
//
// Core Concepts:
//   - LineSource: yields physical lines of the input resource (local file, s3:// or http(s)://).
//   - LineMapper: tokenizes a line into a CandidateRow.
//   - Processor: validates a row and resolves its user profile and account dimensions.
//   - ChunkWriter: inserts fact rows inside the chunk transaction.
//   - Listeners: observe reads, processing, writes, skips, chunks and the run lifecycle.
//
// Rows are committed in chunks. When a chunk hits a skippable fault it is rolled back
// and replayed one row per transaction, so only the offending rows are skipped.
//
// Example usage:
//
//   pipeline, err := trximport.NewPipeline().
//       From("s3://bank-drops/2025-06-01.txt").
//       WithTxManager(db).
//       WithDimensionStore(dimension.NewSQLStore(db.Dialect())).
//       To(writers.NewFactWriter(db.Dialect())).
//       WithChunkSize(100).
//       WithSkipLimit(500).
//       Build()
//   if err != nil { log.Fatal(err) }
//   outcome, err := pipeline.Execute(context.Background())

const (
	// DefaultChunkSize is the number of rows committed per transaction.
	DefaultChunkSize = 100
	// DefaultSkipLimit is the number of skips a run tolerates.
	DefaultSkipLimit = 500
)

// PipelineBuilder provides a fluent API for constructing import pipelines.
// Use NewPipeline() to create a new builder, then chain From, To, and configuration methods.
type PipelineBuilder struct {
	pipeline *Pipeline
	errs     []error
}

// NewPipeline creates a new PipelineBuilder with default chunk size, skip limit and skip policy.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			chunkSize: DefaultChunkSize,
			skipLimit: DefaultSkipLimit,
			policy:    DefaultSkipPolicy,
			listeners: &listenerSet{},
			logger:    zap.NewNop(),
			state:     core.StateIdle,
		},
	}
}

// From sets the input resource location. Supported forms are plain paths, file: paths,
// s3://bucket/key and http(s):// URLs.
func (pb *PipelineBuilder) From(location string) *PipelineBuilder {
	pb.pipeline.location = location
	return pb
}

// FromSource sets an already opened line source. It takes precedence over From.
func (pb *PipelineBuilder) FromSource(source core.LineSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// WithOpener sets the opener used to resolve the From location.
func (pb *PipelineBuilder) WithOpener(opener readers.Opener) *PipelineBuilder {
	pb.pipeline.opener = opener
	return pb
}

// WithLineReaderOptions passes options to the line reader built for the From location.
func (pb *PipelineBuilder) WithLineReaderOptions(opts ...readers.ReaderOptionLine) *PipelineBuilder {
	pb.pipeline.readerOpts = append(pb.pipeline.readerOpts, opts...)
	return pb
}

// WithLineMapper overrides the default pipe-delimited mapper.
func (pb *PipelineBuilder) WithLineMapper(mapper core.LineMapper) *PipelineBuilder {
	pb.pipeline.mapper = mapper
	return pb
}

// WithDimensionStore sets the store used to resolve user profiles and accounts.
// A fresh cache and resolver are built from it on every Execute.
func (pb *PipelineBuilder) WithDimensionStore(store dimension.Store) *PipelineBuilder {
	pb.pipeline.store = store
	return pb
}

// WithNormalizerOptions configures the default processor built on the dimension store.
func (pb *PipelineBuilder) WithNormalizerOptions(opts ...transform.NormalizerOption) *PipelineBuilder {
	pb.pipeline.normOpts = append(pb.pipeline.normOpts, opts...)
	return pb
}

// WithProcessor replaces the default processor. When it implements core.TxParticipant
// it is told about every commit and rollback.
func (pb *PipelineBuilder) WithProcessor(processor core.Processor) *PipelineBuilder {
	pb.pipeline.processor = processor
	return pb
}

// To sets the chunk writer for fact rows.
func (pb *PipelineBuilder) To(writer core.ChunkWriter) *PipelineBuilder {
	pb.pipeline.writer = writer
	return pb
}

// WithTxManager sets the transaction manager every chunk runs in.
func (pb *PipelineBuilder) WithTxManager(txm core.TxManager) *PipelineBuilder {
	pb.pipeline.txm = txm
	return pb
}

// WithChunkSize sets the number of rows committed per transaction.
func (pb *PipelineBuilder) WithChunkSize(n int) *PipelineBuilder {
	if n <= 0 {
		pb.errs = append(pb.errs, fmt.Errorf("chunk size must be positive, got %d", n))
	}
	pb.pipeline.chunkSize = n
	return pb
}

// WithSkipLimit sets the number of skips tolerated. The run fails on skip limit+1.
func (pb *PipelineBuilder) WithSkipLimit(n int64) *PipelineBuilder {
	if n < 0 {
		pb.errs = append(pb.errs, fmt.Errorf("skip limit cannot be negative, got %d", n))
	}
	pb.pipeline.skipLimit = n
	return pb
}

// WithSkipPolicy replaces DefaultSkipPolicy.
func (pb *PipelineBuilder) WithSkipPolicy(policy SkipPolicy) *PipelineBuilder {
	pb.pipeline.policy = policy
	return pb
}

// WithStartLine makes the run begin at the given physical line of the From resource.
// Lines before it are not read, counted or skipped.
func (pb *PipelineBuilder) WithStartLine(n int) *PipelineBuilder {
	if n < 0 {
		pb.errs = append(pb.errs, fmt.Errorf("start line cannot be negative, got %d", n))
	}
	pb.pipeline.startLine = n
	return pb
}

// WithPreview logs the first n lines of the From resource at debug level before the run.
func (pb *PipelineBuilder) WithPreview(n int) *PipelineBuilder {
	pb.pipeline.preview = n
	return pb
}

// WithListener registers l under every listener interface it implements.
func (pb *PipelineBuilder) WithListener(l interface{}) *PipelineBuilder {
	if l == nil || !pb.pipeline.listeners.add(l) {
		pb.errs = append(pb.errs, fmt.Errorf("listener %T implements no listener interface", l))
	}
	return pb
}

// WithLogger sets the logger used by the pipeline and the default processor.
func (pb *PipelineBuilder) WithLogger(logger *zap.Logger) *PipelineBuilder {
	if logger != nil {
		pb.pipeline.logger = logger
	}
	return pb
}

// Build validates and constructs the Pipeline from the builder.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	p := pb.pipeline
	errs := append([]error(nil), pb.errs...)
	if p.source == nil && p.location == "" {
		errs = append(errs, errors.New("pipeline requires an input resource"))
	}
	if p.txm == nil {
		errs = append(errs, errors.New("pipeline requires a transaction manager"))
	}
	if p.writer == nil {
		errs = append(errs, errors.New("pipeline requires a chunk writer"))
	}
	if p.processor == nil && p.store == nil {
		errs = append(errs, errors.New("pipeline requires a dimension store or a processor"))
	}
	if p.policy == nil {
		errs = append(errs, errors.New("pipeline requires a skip policy"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if p.opener == nil {
		p.opener = readers.NewResourceOpener()
	}
	if p.mapper == nil {
		p.mapper = readers.NewDelimitedLineMapper()
	}
	return p, nil
}

// Pipeline imports one resource per Execute call.
type Pipeline struct {
	location   string
	source     core.LineSource
	opener     readers.Opener
	readerOpts []readers.ReaderOptionLine
	mapper     core.LineMapper
	store      dimension.Store
	normOpts   []transform.NormalizerOption
	processor  core.Processor
	writer     core.ChunkWriter
	txm        core.TxManager
	policy     SkipPolicy
	listeners  *listenerSet
	logger     *zap.Logger
	chunkSize  int
	skipLimit  int64
	startLine  int
	preview    int

	mu    sync.Mutex
	state core.RunState
}

// State returns the lifecycle state of the most recent run.
func (p *Pipeline) State() core.RunState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s core.RunState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Execute runs the import to completion and returns its outcome.
//
// The returned error is the outcome's Err: nil for a COMPLETED run, the fatal cause for a
// FAILED one. Committed chunks stay committed either way, and LastCommittedLine tells
// where a manual restart can begin. Cancelling ctx stops the run at the next chunk boundary.
func (p *Pipeline) Execute(ctx context.Context) (*Outcome, error) {
	p.mu.Lock()
	if p.state == core.StateRunning {
		p.mu.Unlock()
		return nil, errors.New("pipeline is already running")
	}
	p.state = core.StateRunning
	p.mu.Unlock()

	outcome := &Outcome{
		RunID:     uuid.NewString(),
		Resource:  p.resourceName(),
		State:     core.StateRunning,
		StartedAt: time.Now(),
	}
	logger := p.logger.With(zap.String("run_id", outcome.RunID))

	p.listeners.beforeRun(core.RunInfo{
		RunID:     outcome.RunID,
		Resource:  outcome.Resource,
		ChunkSize: p.chunkSize,
		SkipLimit: p.skipLimit,
		StartLine: p.startLine,
		StartedAt: outcome.StartedAt,
	})
	logger.Info("import started",
		zap.String("resource", outcome.Resource),
		zap.Int("chunk_size", p.chunkSize),
		zap.Int64("skip_limit", p.skipLimit))

	err := p.run(ctx, outcome, logger)

	outcome.EndedAt = time.Now()
	if err != nil {
		outcome.State = core.StateFailed
		outcome.Err = err
		logger.Error("import failed",
			zap.Error(err),
			zap.Int("last_committed_line", outcome.LastCommittedLine))
	} else {
		outcome.State = core.StateCompleted
		logger.Info("import completed",
			zap.Int64("read", outcome.Counters.Read),
			zap.Int64("written", outcome.Counters.Written),
			zap.Int64("filtered", outcome.Counters.Filtered),
			zap.Int64("skipped", outcome.Counters.Skips()),
			zap.Duration("duration", outcome.Duration()))
	}
	p.setState(outcome.State)
	p.listeners.afterRun(outcome)
	return outcome, outcome.Err
}

func (p *Pipeline) run(ctx context.Context, outcome *Outcome, logger *zap.Logger) error {
	source, err := p.openSource(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := source.Close(); cerr != nil {
			logger.Warn("closing source", zap.Error(cerr))
		}
	}()

	processor := p.processor
	if processor == nil {
		resolver := dimension.NewResolver(p.store, dimension.NewCache(), dimension.WithLogger(logger))
		opts := append([]transform.NormalizerOption{transform.WithLogger(logger)}, p.normOpts...)
		processor = transform.NewNormalizer(resolver, opts...)
	}

	var participants []core.TxParticipant
	for _, v := range []interface{}{processor, p.writer} {
		if tp, ok := v.(core.TxParticipant); ok {
			participants = append(participants, tp)
		}
	}

	c := &controller{
		runID:        outcome.RunID,
		source:       source,
		mapper:       p.mapper,
		processor:    processor,
		writer:       p.writer,
		txm:          p.txm,
		participants: participants,
		listeners:    p.listeners,
		policy:       p.policy,
		chunkSize:    p.chunkSize,
		skipLimit:    p.skipLimit,
		logger:       logger,
		outcome:      outcome,
	}
	return c.run(ctx)
}

// openSource returns the configured source or opens the From location.
func (p *Pipeline) openSource(ctx context.Context, logger *zap.Logger) (core.LineSource, error) {
	if p.source != nil {
		return p.source, nil
	}

	if p.preview > 0 {
		p.logPreview(ctx, logger)
	}

	rc, err := p.opener.Open(ctx, p.location)
	if err != nil {
		return nil, p.resourceError(err)
	}

	opts := []readers.ReaderOptionLine{
		readers.WithSkippedLinesCallback(func(line core.RawLine) {
			logger.Debug("header skipped", zap.Int("line", line.Number), zap.String("text", line.Text))
		}),
	}
	opts = append(opts, p.readerOpts...)
	if p.startLine > 0 {
		opts = append(opts, readers.WithStartLine(p.startLine))
	}
	return readers.NewLineReader(rc, opts...), nil
}

func (p *Pipeline) logPreview(ctx context.Context, logger *zap.Logger) {
	rc, err := p.opener.Open(ctx, p.location)
	if err != nil {
		logger.Warn("preview unavailable", zap.Error(err))
		return
	}
	lines, err := readers.Preview(rc, p.preview)
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("preview failed", zap.Error(err))
	}
	for i, line := range lines {
		logger.Debug("preview", zap.Int("line", i+1), zap.String("text", line))
	}
}

func (p *Pipeline) resourceError(err error) error {
	if core.IsKind(err, core.KindResource) {
		return err
	}
	return core.NewResourceError(p.location, err)
}

func (p *Pipeline) resourceName() string {
	if p.location != "" {
		return p.location
	}
	return fmt.Sprintf("%T", p.source)
}
