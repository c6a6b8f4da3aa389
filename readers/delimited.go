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
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aaronlmathis/trximport/core"
)

// This file implements DelimitedLineMapper, which tokenizes a transaction line into a CandidateRow.

// DefaultFieldNames is the column layout ACCOUNT_NUMBER|TRX_AMOUNT|DESCRIPTION|TRX_DATE|TRX_TIME|CUSTOMER_ID.
var DefaultFieldNames = []string{
	core.FieldAccountNumber,
	core.FieldAmount,
	core.FieldDescription,
	core.FieldTrxDate,
	core.FieldTrxTime,
	core.FieldCustomerID,
}

// DelimitedOptions configures a DelimitedLineMapper.
type DelimitedOptions struct {
	Delimiter  string   // Field separator
	FieldNames []string // Positional field names
	DateLayout string   // Go time layout for trxDate
	TimeLayout string   // Go time layout for trxTime
}

// MapperOptionDelimited represents a configuration function for DelimitedOptions.
type MapperOptionDelimited func(*DelimitedOptions)

// WithDelimiter sets the field separator.
func WithDelimiter(delim string) MapperOptionDelimited {
	return func(o *DelimitedOptions) { o.Delimiter = delim }
}

// WithFieldNames sets the positional field names. Unknown names are ignored.
func WithFieldNames(names ...string) MapperOptionDelimited {
	return func(o *DelimitedOptions) { o.FieldNames = names }
}

// WithDateLayout sets the layout used to parse trxDate.
func WithDateLayout(layout string) MapperOptionDelimited {
	return func(o *DelimitedOptions) { o.DateLayout = layout }
}

// WithTimeLayout sets the layout used to parse trxTime.
func WithTimeLayout(layout string) MapperOptionDelimited {
	return func(o *DelimitedOptions) { o.TimeLayout = layout }
}

// DelimitedLineMapper implements core.LineMapper.
type DelimitedLineMapper struct {
	opts DelimitedOptions
}

// NewDelimitedLineMapper creates a mapper for pipe-delimited transaction lines.
func NewDelimitedLineMapper(options ...MapperOptionDelimited) *DelimitedLineMapper {
	opts := DelimitedOptions{
		Delimiter:  "|",
		FieldNames: DefaultFieldNames,
		DateLayout: "2006-01-02",
		TimeLayout: "15:04:05",
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Delimiter == "" {
		opts.Delimiter = "|"
	}
	return &DelimitedLineMapper{opts: opts}
}

// MapLine implements the core.LineMapper interface.
//
// Short lines yield blank trailing fields and extra tokens are ignored. A blank line is a
// parse error, missing required fields are a validation error, and an unparsable amount,
// date or time is a parse error. All errors carry stage READ.
func (m *DelimitedLineMapper) MapLine(line core.RawLine) (*core.CandidateRow, error) {
	if strings.TrimSpace(line.Text) == "" {
		return nil, core.NewParseError(line, "blank line", nil)
	}

	tokens := strings.Split(line.Text, m.opts.Delimiter)
	fields := make(map[string]string, len(m.opts.FieldNames))
	for i, name := range m.opts.FieldNames {
		if i < len(tokens) {
			fields[name] = strings.TrimSpace(tokens[i])
		} else {
			fields[name] = ""
		}
	}

	var missing []string
	for _, name := range []string{core.FieldAccountNumber, core.FieldCustomerID, core.FieldTrxDate, core.FieldTrxTime} {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		verr := core.NewValidationError(core.StageRead, line.Number, missing,
			fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")))
		verr.Input = line.Text
		return nil, verr
	}

	amount := decimal.Zero
	if raw := fields[core.FieldAmount]; raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, core.NewParseError(line, fmt.Sprintf("invalid amount %q", raw), err)
		}
		amount = parsed
	}

	trxDate, err := time.Parse(m.opts.DateLayout, fields[core.FieldTrxDate])
	if err != nil {
		return nil, core.NewParseError(line, fmt.Sprintf("invalid trxDate %q", fields[core.FieldTrxDate]), err)
	}
	trxTime, err := time.Parse(m.opts.TimeLayout, fields[core.FieldTrxTime])
	if err != nil {
		return nil, core.NewParseError(line, fmt.Sprintf("invalid trxTime %q", fields[core.FieldTrxTime]), err)
	}

	return &core.CandidateRow{
		Line:          line.Number,
		AccountNumber: fields[core.FieldAccountNumber],
		Amount:        &amount,
		Description:   fields[core.FieldDescription],
		TrxDate:       &trxDate,
		TrxTime:       &trxTime,
		CustomerID:    fields[core.FieldCustomerID],
	}, nil
}
