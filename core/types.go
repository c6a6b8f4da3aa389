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
	"time"

	"github.com/shopspring/decimal"
)

// Package core defines the data model, store-facing interfaces and error taxonomy
// shared by every stage of the transaction import pipeline.
//
// This file contains the record types that flow from the line source to the fact table.

// Stage identifies the pipeline stage a record or failure belongs to.
type Stage string

const (
	// StageRead covers reading a physical line and mapping it to a CandidateRow.
	StageRead Stage = "READ"
	// StageProcess covers validation and dimension resolution.
	StageProcess Stage = "PROCESS"
	// StageWrite covers inserting fact rows.
	StageWrite Stage = "WRITE"
)

// RawLine is one physical line of the input resource.
type RawLine struct {
	Number int    // 1-based physical line number within the resource
	Text   string // Line content without the trailing line terminator
}

// CandidateRow is a tokenized record that has passed read-stage validation.
// Amount, TrxDate and TrxTime are pointers so the processor can tell a value that
// was never set apart from a zero value.
type CandidateRow struct {
	Line          int              // Physical line number the row came from
	AccountNumber string           // Natural key of the account dimension
	Amount        *decimal.Decimal // Exact transaction amount; blank input maps to zero
	Description   string           // Free text, may be empty
	TrxDate       *time.Time       // Transaction date (date part only)
	TrxTime       *time.Time       // Transaction time of day (clock part only)
	CustomerID    string           // Natural key of the user profile dimension
}

// Field names of the transaction input, in positional order.
const (
	FieldAccountNumber = "accountNumber"
	FieldAmount        = "amount"
	FieldDescription   = "description"
	FieldTrxDate       = "trxDate"
	FieldTrxTime       = "trxTime"
	FieldCustomerID    = "customerId"
)

// StringField returns the textual value of the named field and whether the name is known.
// Unset amount, date and time fields yield an empty string.
func (r *CandidateRow) StringField(name string) (string, bool) {
	switch name {
	case FieldAccountNumber:
		return r.AccountNumber, true
	case FieldAmount:
		if r.Amount == nil {
			return "", true
		}
		return r.Amount.String(), true
	case FieldDescription:
		return r.Description, true
	case FieldTrxDate:
		if r.TrxDate == nil {
			return "", true
		}
		return r.TrxDate.Format("2006-01-02"), true
	case FieldTrxTime:
		if r.TrxTime == nil {
			return "", true
		}
		return r.TrxTime.Format("15:04:05"), true
	case FieldCustomerID:
		return r.CustomerID, true
	default:
		return "", false
	}
}

// SetStringField replaces the value of a text field. It reports false for unknown
// names and for the typed amount, date and time fields.
func (r *CandidateRow) SetStringField(name, value string) bool {
	switch name {
	case FieldAccountNumber:
		r.AccountNumber = value
	case FieldDescription:
		r.Description = value
	case FieldCustomerID:
		r.CustomerID = value
	default:
		return false
	}
	return true
}

// FactRow is a write-ready row of the transaction fact table.
// It is only built once both dimension ids are resolved.
type FactRow struct {
	Line        int             // Physical line number the fact came from
	AccountID   int64           // Surrogate id of the account dimension row
	Amount      decimal.Decimal // Exact transaction amount
	Description string          // Free text, stored as NULL when empty
	TrxDate     time.Time       // Transaction date
	TrxTime     time.Time       // Transaction time of day
	CustomerID  string          // Natural customer key, denormalized on the fact
	CreatedAt   time.Time       // Stamp taken when the fact was built
	UpdatedAt   time.Time       // Same as CreatedAt on insert
	Version     int64           // Optimistic locking version, always 0 on insert
}

// SkipRecord describes one record excluded from the run by the skip policy.
type SkipRecord struct {
	Stage Stage         // Stage the failure occurred in
	Cause error         // The skip-eligible error
	Line  int           // Physical line number, when known
	Input string        // Raw input line, when known
	Row   *CandidateRow // Candidate row for process-stage skips
	Fact  *FactRow      // Fact row for write-stage skips
}

// RunCounters are the monotonically increasing counters of one run.
type RunCounters struct {
	Read         int64 `json:"read" bson:"read"`
	Written      int64 `json:"written" bson:"written"`
	Filtered     int64 `json:"filtered" bson:"filtered"`
	ReadSkips    int64 `json:"readSkips" bson:"readSkips"`
	ProcessSkips int64 `json:"processSkips" bson:"processSkips"`
	WriteSkips   int64 `json:"writeSkips" bson:"writeSkips"`
	Commits      int64 `json:"commits" bson:"commits"`
	Rollbacks    int64 `json:"rollbacks" bson:"rollbacks"`
}

// Skips returns the total number of skipped records across all stages.
func (c RunCounters) Skips() int64 {
	return c.ReadSkips + c.ProcessSkips + c.WriteSkips
}

// RunState is the lifecycle state of a run.
type RunState string

const (
	StateIdle      RunState = "IDLE"
	StateRunning   RunState = "RUNNING"
	StateCompleted RunState = "COMPLETED"
	StateFailed    RunState = "FAILED"
)

// Terminal reports whether no further transition is possible from s.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
