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

package dimension

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aaronlmathis/trximport/core"
	"github.com/aaronlmathis/trximport/database"
)

// This file implements the SQL dimension store.

// UserProfile is the insert shape of a user_profile row.
type UserProfile struct {
	CustomerID string
	FullName   string
	Email      string
}

// Account is the insert shape of an account row.
type Account struct {
	AccountNumber string
	UserProfileID int64
}

// Store upserts and looks up dimension rows. Find methods return core.ErrNotFound
// when the natural key has no row.
type Store interface {
	UpsertUserProfile(ctx context.Context, q core.Querier, p UserProfile) error
	FindUserProfileID(ctx context.Context, q core.Querier, customerID string) (int64, error)
	UpsertAccount(ctx context.Context, q core.Querier, a Account) error
	FindAccountID(ctx context.Context, q core.Querier, accountNumber string) (int64, error)
}

// StoreError wraps dimension store errors with context about the operation.
type StoreError struct {
	Op  string // The operation being performed (e.g., "upsert_account")
	Key string // Natural key involved
	Err error  // The underlying error
}

// Error returns the error string for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("dimension store %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error for StoreError.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// SQLStore implements Store with one atomic insert-if-absent statement per upsert,
// backed by the unique constraints on user_profile.customer_id and account.account_number.
type SQLStore struct {
	upsertProfile string
	findProfile   string
	upsertAccount string
	findAccount   string
}

// NewSQLStore builds the statements for dialect.
func NewSQLStore(dialect database.Dialect) *SQLStore {
	return &SQLStore{
		upsertProfile: dialect.InsertIfAbsent(database.TableUserProfile,
			[]string{"customer_id", "full_name", "email"}, []string{"customer_id"}),
		findProfile: dialect.SelectID(database.TableUserProfile, "customer_id"),
		upsertAccount: dialect.InsertIfAbsent(database.TableAccount,
			[]string{"account_number", "user_profile_id"}, []string{"account_number"}),
		findAccount: dialect.SelectID(database.TableAccount, "account_number"),
	}
}

// UpsertUserProfile implements the Store interface.
func (s *SQLStore) UpsertUserProfile(ctx context.Context, q core.Querier, p UserProfile) error {
	if _, err := q.ExecContext(ctx, s.upsertProfile, p.CustomerID, p.FullName, p.Email); err != nil {
		return &StoreError{Op: "upsert_user_profile", Key: p.CustomerID, Err: err}
	}
	return nil
}

// FindUserProfileID implements the Store interface.
func (s *SQLStore) FindUserProfileID(ctx context.Context, q core.Querier, customerID string) (int64, error) {
	return s.findID(ctx, q, s.findProfile, "find_user_profile", customerID)
}

// UpsertAccount implements the Store interface. An existing account keeps its owner.
func (s *SQLStore) UpsertAccount(ctx context.Context, q core.Querier, a Account) error {
	if _, err := q.ExecContext(ctx, s.upsertAccount, a.AccountNumber, a.UserProfileID); err != nil {
		return &StoreError{Op: "upsert_account", Key: a.AccountNumber, Err: err}
	}
	return nil
}

// FindAccountID implements the Store interface.
func (s *SQLStore) FindAccountID(ctx context.Context, q core.Querier, accountNumber string) (int64, error) {
	return s.findID(ctx, q, s.findAccount, "find_account", accountNumber)
}

func (s *SQLStore) findID(ctx context.Context, q core.Querier, query, op, key string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, query, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &StoreError{Op: op, Key: key, Err: core.ErrNotFound}
	}
	if err != nil {
		return 0, &StoreError{Op: op, Key: key, Err: err}
	}
	return id, nil
}
