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

package validators

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/trximport/core"
)

func validRow() *core.CandidateRow {
	amount := decimal.RequireFromString("12.34")
	now := time.Now()
	return &core.CandidateRow{Line: 5, AccountNumber: "ACC1", Amount: &amount, Description: "coffee",
		TrxDate: &now, TrxTime: &now, CustomerID: "C001"}
}

func TestRequiredValues(t *testing.T) {
	assert.NoError(t, RequiredValues().Validate(validRow()))

	row := validRow()
	row.Amount = nil
	row.TrxTime = nil
	err := RequiredValues().Validate(row)
	require.Error(t, err)

	var ie *core.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, core.KindValidation, ie.Kind)
	assert.Equal(t, core.StageProcess, ie.Stage)
	assert.Equal(t, 5, ie.Line)
	assert.Equal(t, []string{core.FieldAmount, core.FieldTrxTime}, ie.Fields)
}

func TestFieldValidator(t *testing.T) {
	tests := []struct {
		name    string
		v       RowValidator
		wantErr bool
	}{
		{"pattern ok", Field(core.FieldAccountNumber, FieldValidator{Pattern: regexp.MustCompile(`^ACC`)}), false},
		{"pattern fail", Field(core.FieldAccountNumber, FieldValidator{Pattern: regexp.MustCompile(`^X`)}), true},
		{"too long", Field(core.FieldDescription, FieldValidator{MaxLength: 3}), true},
		{"allowed", Field(core.FieldCustomerID, FieldValidator{AllowedValues: []string{"C001"}}), false},
		{"not allowed", Field(core.FieldCustomerID, FieldValidator{AllowedValues: []string{"C002"}}), true},
		{"unknown", Field("nope", FieldValidator{}), true},
		{"amount range", AmountRange(decimal.Zero, decimal.NewFromInt(10)), true},
		{"all", All(RequiredValues(), AmountRange(decimal.Zero, decimal.NewFromInt(100))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate(validRow())
			if tt.wantErr {
				assert.True(t, core.IsKind(err, core.KindValidation))
				assert.True(t, core.IsSkippable(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
