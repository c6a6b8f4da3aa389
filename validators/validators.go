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

// Package validators provides process-stage data quality checks on candidate rows.
// Every failure is a skip-eligible validation error tagged with stage PROCESS.
package validators

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/aaronlmathis/trximport/core"
)

// RowValidator checks one candidate row.
type RowValidator interface {
	Validate(row *core.CandidateRow) error
}

// ValidatorFunc is a function adapter for the RowValidator interface.
type ValidatorFunc func(row *core.CandidateRow) error

// Validate implements the RowValidator interface for ValidatorFunc.
func (f ValidatorFunc) Validate(row *core.CandidateRow) error {
	return f(row)
}

// FieldValidator defines validation rules for a text field
type FieldValidator struct {
	Pattern       *regexp.Regexp // Regex the value must match
	MaxLength     int            // Maximum length in characters (0 = unlimited)
	AllowedValues []string       // Whitelist of allowed values
}

// RequiredValues rejects rows whose amount, date or time were never set.
func RequiredValues() RowValidator {
	return ValidatorFunc(func(row *core.CandidateRow) error {
		var missing []string
		if row.Amount == nil {
			missing = append(missing, core.FieldAmount)
		}
		if row.TrxDate == nil {
			missing = append(missing, core.FieldTrxDate)
		}
		if row.TrxTime == nil {
			missing = append(missing, core.FieldTrxTime)
		}
		if len(missing) > 0 {
			return core.NewValidationError(core.StageProcess, row.Line, missing,
				fmt.Sprintf("required values absent: %s", strings.Join(missing, ", ")))
		}
		return nil
	})
}

// Field applies v to the named text field. Empty values pass, since presence is the
// concern of RequiredValues and the read stage.
func Field(name string, v FieldValidator) RowValidator {
	return ValidatorFunc(func(row *core.CandidateRow) error {
		value, ok := row.StringField(name)
		if !ok {
			return core.NewValidationError(core.StageProcess, row.Line, []string{name}, "unknown field")
		}
		if value == "" {
			return nil
		}

		if v.MaxLength > 0 && utf8.RuneCountInString(value) > v.MaxLength {
			return core.NewValidationError(core.StageProcess, row.Line, []string{name},
				fmt.Sprintf("%s longer than %d characters", name, v.MaxLength))
		}
		if v.Pattern != nil && !v.Pattern.MatchString(value) {
			return core.NewValidationError(core.StageProcess, row.Line, []string{name},
				fmt.Sprintf("%s %q does not match %s", name, value, v.Pattern.String()))
		}
		if len(v.AllowedValues) > 0 {
			for _, allowed := range v.AllowedValues {
				if value == allowed {
					return nil
				}
			}
			return core.NewValidationError(core.StageProcess, row.Line, []string{name},
				fmt.Sprintf("%s %q is not an allowed value", name, value))
		}
		return nil
	})
}

// AmountRange rejects amounts outside [min, max].
func AmountRange(min, max decimal.Decimal) RowValidator {
	return ValidatorFunc(func(row *core.CandidateRow) error {
		if row.Amount == nil {
			return nil
		}
		if row.Amount.LessThan(min) || row.Amount.GreaterThan(max) {
			return core.NewValidationError(core.StageProcess, row.Line, []string{core.FieldAmount},
				fmt.Sprintf("amount %s outside [%s, %s]", row.Amount, min, max))
		}
		return nil
	})
}

// All runs validators in order and returns the first failure.
func All(validators ...RowValidator) RowValidator {
	return ValidatorFunc(func(row *core.CandidateRow) error {
		for _, v := range validators {
			if err := v.Validate(row); err != nil {
				return err
			}
		}
		return nil
	})
}
