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

package filter

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aaronlmathis/trximport/core"
)

// Package filter provides composable predicates deciding whether a candidate row is
// imported. A row rejected by a filter is counted as filtered, never as skipped.

// RowFilter reports whether a row should be kept.
type RowFilter interface {
	Keep(ctx context.Context, row *core.CandidateRow) (bool, error)
}

// FilterFunc is a function adapter for the RowFilter interface.
type FilterFunc func(ctx context.Context, row *core.CandidateRow) (bool, error)

// Keep implements the RowFilter interface for FilterFunc.
func (f FilterFunc) Keep(ctx context.Context, row *core.CandidateRow) (bool, error) {
	return f(ctx, row)
}

// NotBlank keeps rows where every named field is non-blank after trimming.
func NotBlank(fields ...string) RowFilter {
	return FilterFunc(func(ctx context.Context, row *core.CandidateRow) (bool, error) {
		for _, field := range fields {
			value, ok := row.StringField(field)
			if !ok || strings.TrimSpace(value) == "" {
				return false, nil
			}
		}
		return true, nil
	})
}

// StartsWith keeps rows where the field starts with prefix.
func StartsWith(field, prefix string) RowFilter {
	return FilterFunc(func(ctx context.Context, row *core.CandidateRow) (bool, error) {
		value, ok := row.StringField(field)
		return ok && strings.HasPrefix(value, prefix), nil
	})
}

// MatchesRegex keeps rows where the field matches pattern.
func MatchesRegex(field, pattern string) (RowFilter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return FilterFunc(func(ctx context.Context, row *core.CandidateRow) (bool, error) {
		value, ok := row.StringField(field)
		return ok && re.MatchString(value), nil
	}), nil
}

// In keeps rows where the field equals one of values.
func In(field string, values ...string) RowFilter {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return FilterFunc(func(ctx context.Context, row *core.CandidateRow) (bool, error) {
		value, ok := row.StringField(field)
		if !ok {
			return false, nil
		}
		_, found := set[value]
		return found, nil
	})
}

// AmountBetween keeps rows whose amount lies in [min, max]. Rows without amount are kept.
func AmountBetween(min, max decimal.Decimal) RowFilter {
	return FilterFunc(func(ctx context.Context, row *core.CandidateRow) (bool, error) {
		if row.Amount == nil {
			return true, nil
		}
		return row.Amount.GreaterThanOrEqual(min) && row.Amount.LessThanOrEqual(max), nil
	})
}

// DateBetween keeps rows whose trxDate lies in [from, to]. A zero bound is open.
// Rows without date are kept.
func DateBetween(from, to time.Time) RowFilter {
	return FilterFunc(func(ctx context.Context, row *core.CandidateRow) (bool, error) {
		if row.TrxDate == nil {
			return true, nil
		}
		if !from.IsZero() && row.TrxDate.Before(from) {
			return false, nil
		}
		if !to.IsZero() && row.TrxDate.After(to) {
			return false, nil
		}
		return true, nil
	})
}

// And keeps rows kept by every filter.
func And(filters ...RowFilter) RowFilter {
	return FilterFunc(func(ctx context.Context, row *core.CandidateRow) (bool, error) {
		for _, f := range filters {
			keep, err := f.Keep(ctx, row)
			if err != nil || !keep {
				return false, err
			}
		}
		return true, nil
	})
}

// Or keeps rows kept by at least one filter.
func Or(filters ...RowFilter) RowFilter {
	return FilterFunc(func(ctx context.Context, row *core.CandidateRow) (bool, error) {
		for _, f := range filters {
			keep, err := f.Keep(ctx, row)
			if err != nil {
				return false, err
			}
			if keep {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not inverts filter.
func Not(filter RowFilter) RowFilter {
	return FilterFunc(func(ctx context.Context, row *core.CandidateRow) (bool, error) {
		keep, err := filter.Keep(ctx, row)
		if err != nil {
			return false, err
		}
		return !keep, nil
	})
}

// Custom creates a filter from a plain predicate.
func Custom(predicate func(*core.CandidateRow) bool) RowFilter {
	return FilterFunc(func(ctx context.Context, row *core.CandidateRow) (bool, error) {
		return predicate(row), nil
	})
}
