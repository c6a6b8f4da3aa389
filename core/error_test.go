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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImportErrorMessage(t *testing.T) {
	base := errors.New("unexpected token")
	err := NewParseError(RawLine{Number: 7, Text: "x|y"}, "invalid amount", base)

	assert.Equal(t, "parse (line 7): invalid amount: unexpected token", err.Error())
	assert.Equal(t, base, err.Unwrap())
	assert.Equal(t, StageRead, err.Stage)
	assert.Equal(t, "x|y", err.Input)
}

func TestIsSkippable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"parse", NewParseError(RawLine{Number: 2}, "blank line", nil), true},
		{"validation", NewValidationError(StageRead, 3, []string{"customerId"}, "missing"), true},
		{"dependency", NewDependencyError(4, "profile", ErrNotFound), true},
		{"write", NewWriteError(5, "insert", errors.New("constraint")), true},
		{"wrapped write", fmt.Errorf("chunk: %w", NewWriteError(5, "insert", nil)), true},
		{"resource", NewResourceError("file:/nope", errors.New("no such file")), false},
		{"budget", NewSkipBudgetError(501, 500, nil), false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSkippable(tt.err))
		})
	}
}

func TestIsKindFollowsChain(t *testing.T) {
	inner := NewDependencyError(9, "account", ErrNotFound)
	outer := NewSkipBudgetError(3, 2, inner)

	assert.True(t, IsKind(outer, KindSkipBudget))
	assert.True(t, IsKind(outer, KindDependency))
	assert.False(t, IsKind(outer, KindWrite))
	assert.True(t, errors.Is(outer, ErrNotFound))
	assert.Equal(t, Stage(""), StageOf(outer))
	assert.Equal(t, StageProcess, StageOf(inner))
}

func TestRunCountersSkips(t *testing.T) {
	c := RunCounters{ReadSkips: 2, ProcessSkips: 3, WriteSkips: 4}
	assert.Equal(t, int64(9), c.Skips())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateRunning.Terminal())
}
