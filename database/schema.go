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

package database

import (
	"context"
	"fmt"
	"sort"
)

// This file implements the startup schema check.

// SchemaReport lists which target tables are reachable.
type SchemaReport struct {
	Tables map[string]bool // Table name to presence
}

// Missing returns the absent tables in name order.
func (r SchemaReport) Missing() []string {
	var missing []string
	for name, ok := range r.Tables {
		if !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// OK reports whether every table is present.
func (r SchemaReport) OK() bool {
	return len(r.Missing()) == 0
}

// CheckSchema probes the user_profile, account and transaction tables.
// A probe failure marks the table as missing; only a dead connection is an error.
func (d *DB) CheckSchema(ctx context.Context) (SchemaReport, error) {
	ctx, cancel := context.WithTimeout(ctx, d.options.QueryTimeout)
	defer cancel()

	if err := d.db.PingContext(ctx); err != nil {
		return SchemaReport{}, &Error{Op: "check_schema", Err: err}
	}

	report := SchemaReport{Tables: make(map[string]bool, 3)}
	for _, table := range []string{TableUserProfile, TableAccount, TableTransaction} {
		query := fmt.Sprintf("SELECT 1 FROM %s WHERE 1 = 0", d.dialect.Quote(table))
		rows, err := d.db.QueryContext(ctx, query)
		if err != nil {
			report.Tables[table] = false
			continue
		}
		rows.Close()
		report.Tables[table] = true
	}
	return report, nil
}
