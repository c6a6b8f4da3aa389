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

package transform

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aaronlmathis/trximport/core"
	"github.com/aaronlmathis/trximport/filter"
	"github.com/aaronlmathis/trximport/validators"
)

// This file implements Normalizer, the core.Processor of the import.

// DimensionResolver maps natural keys to surrogate ids inside the chunk transaction.
type DimensionResolver interface {
	ResolveUserProfile(ctx context.Context, q core.Querier, customerID string) (int64, error)
	ResolveAccount(ctx context.Context, q core.Querier, accountNumber string, userProfileID int64) (int64, error)
}

// NormalizerStats holds processing statistics.
type NormalizerStats struct {
	Processed int64 // Rows turned into facts
	Filtered  int64 // Rows dropped by filters
	Failed    int64 // Rows rejected with an error
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithTransforms appends row rewrites applied after trimming.
func WithTransforms(transforms ...RowTransform) NormalizerOption {
	return func(n *Normalizer) { n.transforms = append(n.transforms, transforms...) }
}

// WithFilters appends filters. Rows rejected by any filter are dropped silently.
func WithFilters(filters ...filter.RowFilter) NormalizerOption {
	return func(n *Normalizer) { n.filters = append(n.filters, filters...) }
}

// WithValidators appends validators run after the required value check.
func WithValidators(v ...validators.RowValidator) NormalizerOption {
	return func(n *Normalizer) { n.validators = append(n.validators, v...) }
}

// WithClock sets the source of the created/updated stamp.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *zap.Logger) NormalizerOption {
	return func(n *Normalizer) { n.logger = logger }
}

// Normalizer validates a candidate row, resolves its dimensions and builds the FactRow.
//
// Rows with a blank account number or customer id are filtered, not failed. Missing
// amount, date or time fail with a process-stage validation error. Resolution failures
// are process-stage dependency errors.
type Normalizer struct {
	resolver   DimensionResolver
	transforms []RowTransform
	filters    []filter.RowFilter
	validators []validators.RowValidator
	now        func() time.Time
	logger     *zap.Logger
	stats      NormalizerStats
}

// NewNormalizer creates a Normalizer resolving dimensions through resolver.
func NewNormalizer(resolver DimensionResolver, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		resolver:   resolver,
		transforms: []RowTransform{TrimSpace()},
		filters:    []filter.RowFilter{filter.NotBlank(core.FieldAccountNumber, core.FieldCustomerID)},
		validators: []validators.RowValidator{validators.RequiredValues()},
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Process implements the core.Processor interface.
func (n *Normalizer) Process(ctx context.Context, q core.Querier, candidate *core.CandidateRow) (*core.FactRow, error) {
	if candidate == nil {
		n.stats.Filtered++
		return nil, nil
	}

	row := *candidate
	for _, t := range n.transforms {
		t(&row)
	}

	for _, f := range n.filters {
		keep, err := f.Keep(ctx, &row)
		if err != nil {
			n.stats.Failed++
			return nil, core.NewValidationError(core.StageProcess, row.Line, nil, "filter failed: "+err.Error())
		}
		if !keep {
			n.stats.Filtered++
			n.logger.Debug("row filtered", zap.Int("line", row.Line))
			return nil, nil
		}
	}

	for _, v := range n.validators {
		if err := v.Validate(&row); err != nil {
			n.stats.Failed++
			return nil, err
		}
	}

	userProfileID, err := n.resolver.ResolveUserProfile(ctx, q, row.CustomerID)
	if err != nil {
		n.stats.Failed++
		return nil, atLine(err, row.Line)
	}
	accountID, err := n.resolver.ResolveAccount(ctx, q, row.AccountNumber, userProfileID)
	if err != nil {
		n.stats.Failed++
		return nil, atLine(err, row.Line)
	}

	now := n.now()
	n.stats.Processed++
	return &core.FactRow{
		Line:        row.Line,
		AccountID:   accountID,
		Amount:      *row.Amount,
		Description: row.Description,
		TrxDate:     *row.TrxDate,
		TrxTime:     *row.TrxTime,
		CustomerID:  row.CustomerID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     0,
	}, nil
}

// AfterCommit implements the core.TxParticipant interface.
func (n *Normalizer) AfterCommit() {
	if p, ok := n.resolver.(core.TxParticipant); ok {
		p.AfterCommit()
	}
}

// AfterRollback implements the core.TxParticipant interface.
func (n *Normalizer) AfterRollback() {
	if p, ok := n.resolver.(core.TxParticipant); ok {
		p.AfterRollback()
	}
}

// Stats returns a copy of the processing statistics.
func (n *Normalizer) Stats() NormalizerStats {
	return n.stats
}

// atLine attaches the row's line to a resolution error and makes sure it is a
// dependency error.
func atLine(err error, line int) error {
	var ie *core.ImportError
	if errors.As(err, &ie) && ie.Kind == core.KindDependency {
		if ie.Line == 0 {
			ie.Line = line
		}
		return err
	}
	return core.NewDependencyError(line, "dimension resolution failed", err)
}
