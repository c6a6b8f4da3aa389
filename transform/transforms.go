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
	"strings"
	"unicode/utf8"

	"github.com/aaronlmathis/trximport/core"
)

// Package transform turns candidate rows into write-ready fact rows.
//
// This file contains composable in-place rewrites applied to a candidate row before it
// is filtered and validated.

// RowTransform rewrites a candidate row in place.
type RowTransform func(row *core.CandidateRow)

// TrimSpace trims the text fields.
func TrimSpace() RowTransform {
	return func(row *core.CandidateRow) {
		row.AccountNumber = strings.TrimSpace(row.AccountNumber)
		row.Description = strings.TrimSpace(row.Description)
		row.CustomerID = strings.TrimSpace(row.CustomerID)
	}
}

// ToUpper upper-cases the named text fields.
func ToUpper(fields ...string) RowTransform {
	return func(row *core.CandidateRow) {
		for _, field := range fields {
			if value, ok := row.StringField(field); ok {
				row.SetStringField(field, strings.ToUpper(value))
			}
		}
	}
}

// TruncateDescription cuts the description to at most n characters.
func TruncateDescription(n int) RowTransform {
	return func(row *core.CandidateRow) {
		if n <= 0 || utf8.RuneCountInString(row.Description) <= n {
			return
		}
		row.Description = string([]rune(row.Description)[:n])
	}
}

// Chain applies transforms in order.
func Chain(transforms ...RowTransform) RowTransform {
	return func(row *core.CandidateRow) {
		for _, t := range transforms {
			t(row)
		}
	}
}
