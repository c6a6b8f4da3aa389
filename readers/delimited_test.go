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

package readers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/trximport/core"
)

func TestDelimitedLineMapper(t *testing.T) {
	m := NewDelimitedLineMapper()

	row, err := m.MapLine(core.RawLine{Number: 2, Text: "ACC1|12.34|coffee|2025-12-01|10:15:30|C001"})
	require.NoError(t, err)

	assert.Equal(t, 2, row.Line)
	assert.Equal(t, "ACC1", row.AccountNumber)
	require.NotNil(t, row.Amount)
	assert.True(t, row.Amount.Equal(decimal.RequireFromString("12.34")))
	assert.Equal(t, "12.34", row.Amount.String())
	assert.Equal(t, "coffee", row.Description)
	assert.Equal(t, "2025-12-01", row.TrxDate.Format("2006-01-02"))
	assert.Equal(t, "10:15:30", row.TrxTime.Format("15:04:05"))
	assert.Equal(t, "C001", row.CustomerID)
}

func TestDelimitedLineMapperBlankAmountIsZero(t *testing.T) {
	m := NewDelimitedLineMapper()

	row, err := m.MapLine(core.RawLine{Number: 3, Text: " ACC1 |   | |2025-12-01|10:15:30| C001 "})
	require.NoError(t, err)
	assert.True(t, row.Amount.Equal(decimal.Zero))
	assert.Equal(t, "ACC1", row.AccountNumber)
	assert.Equal(t, "C001", row.CustomerID)
	assert.Empty(t, row.Description)
}

func TestDelimitedLineMapperErrors(t *testing.T) {
	m := NewDelimitedLineMapper()

	tests := []struct {
		name    string
		text    string
		kind    core.ErrorKind
		missing []string
	}{
		{name: "blank line", text: "", kind: core.KindParse},
		{name: "whitespace line", text: "   \t ", kind: core.KindParse},
		{name: "missing customer", text: "ACC1|1.00|x|2025-12-01|10:15:30|", kind: core.KindValidation,
			missing: []string{core.FieldCustomerID}},
		{name: "missing account", text: "|1.00|x|2025-12-01|10:15:30|C1", kind: core.KindValidation,
			missing: []string{core.FieldAccountNumber}},
		{name: "short line", text: "ACC1|1.00", kind: core.KindValidation,
			missing: []string{core.FieldCustomerID, core.FieldTrxDate, core.FieldTrxTime}},
		{name: "bad amount", text: "ACC1|12,34|x|2025-12-01|10:15:30|C1", kind: core.KindParse},
		{name: "bad date", text: "ACC1|1|x|01/12/2025|10:15:30|C1", kind: core.KindParse},
		{name: "bad time", text: "ACC1|1|x|2025-12-01|25:99|C1", kind: core.KindParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := m.MapLine(core.RawLine{Number: 7, Text: tt.text})
			assert.Nil(t, row)
			require.Error(t, err)
			assert.True(t, core.IsKind(err, tt.kind), "unexpected error %v", err)
			assert.True(t, core.IsSkippable(err))
			assert.Equal(t, core.StageRead, core.StageOf(err))

			var ie *core.ImportError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, 7, ie.Line)
			assert.Equal(t, tt.text, ie.Input)
			if tt.missing != nil {
				assert.Equal(t, tt.missing, ie.Fields)
			}
		})
	}
}

func TestDelimitedLineMapperExtraTokensIgnored(t *testing.T) {
	m := NewDelimitedLineMapper()
	row, err := m.MapLine(core.RawLine{Number: 2, Text: "ACC1|5|x|2025-12-01|10:15:30|C1|extra|more"})
	require.NoError(t, err)
	assert.Equal(t, "C1", row.CustomerID)
}

func TestDelimitedLineMapperOptions(t *testing.T) {
	m := NewDelimitedLineMapper(
		WithDelimiter(";"),
		WithDateLayout("02.01.2006"),
		WithTimeLayout("15:04"),
	)
	row, err := m.MapLine(core.RawLine{Number: 2, Text: "ACC9;7.5;;01.12.2025;10:15;C9"})
	require.NoError(t, err)
	assert.Equal(t, "2025-12-01", row.TrxDate.Format("2006-01-02"))
	assert.Equal(t, "10:15:00", row.TrxTime.Format("15:04:05"))
}
