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
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/aaronlmathis/trximport/core"
)

// This file implements the Resolver.

// ResolverStats holds resolution statistics.
type ResolverStats struct {
	CacheHits int64 // Lookups answered without I/O
	Upserts   int64 // Insert-if-absent statements issued
	ReadBacks int64 // Id lookups issued after an upsert
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithSyntheticProfile overrides how display name and email are derived from a customer id.
func WithSyntheticProfile(fn func(customerID string) (fullName, email string)) ResolverOption {
	return func(r *Resolver) { r.synthetic = fn }
}

// Resolver maps natural keys to surrogate ids: cache lookup, then an atomic upsert,
// then a read-back by natural key. It implements core.TxParticipant so ids learned
// inside a rolled back chunk are forgotten.
type Resolver struct {
	store     Store
	cache     *Cache
	logger    *zap.Logger
	synthetic func(customerID string) (string, string)

	cacheHits atomic.Int64
	upserts   atomic.Int64
	readBacks atomic.Int64
}

// NewResolver creates a Resolver over store. cache must be scoped to a single run.
func NewResolver(store Store, cache *Cache, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:     store,
		cache:     cache,
		logger:    zap.NewNop(),
		synthetic: SyntheticProfile,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SyntheticProfile returns the placeholder name and email of an imported customer.
func SyntheticProfile(customerID string) (string, string) {
	return "IMPORTED-" + customerID, customerID + "@import.local"
}

// ResolveUserProfile returns the user_profile id of customerID, creating the row if absent.
func (r *Resolver) ResolveUserProfile(ctx context.Context, q core.Querier, customerID string) (int64, error) {
	if id, ok := r.cache.UserProfile(customerID); ok {
		r.cacheHits.Add(1)
		return id, nil
	}

	fullName, email := r.synthetic(customerID)
	r.upserts.Add(1)
	if err := r.store.UpsertUserProfile(ctx, q, UserProfile{CustomerID: customerID, FullName: fullName, Email: email}); err != nil {
		return 0, core.NewDependencyError(0, fmt.Sprintf("user profile %q could not be upserted", customerID), err)
	}

	r.readBacks.Add(1)
	id, err := r.store.FindUserProfileID(ctx, q, customerID)
	if err != nil {
		return 0, readBackError("user profile", customerID, err)
	}

	r.cache.StageUserProfile(customerID, id)
	r.logger.Debug("resolved user profile", zap.String("customer_id", customerID), zap.Int64("id", id))
	return id, nil
}

// ResolveAccount returns the account id of accountNumber, creating it owned by
// userProfileID if absent. Ownership of an existing account is never changed.
func (r *Resolver) ResolveAccount(ctx context.Context, q core.Querier, accountNumber string, userProfileID int64) (int64, error) {
	if id, ok := r.cache.Account(accountNumber); ok {
		r.cacheHits.Add(1)
		return id, nil
	}

	r.upserts.Add(1)
	if err := r.store.UpsertAccount(ctx, q, Account{AccountNumber: accountNumber, UserProfileID: userProfileID}); err != nil {
		return 0, core.NewDependencyError(0, fmt.Sprintf("account %q could not be upserted", accountNumber), err)
	}

	r.readBacks.Add(1)
	id, err := r.store.FindAccountID(ctx, q, accountNumber)
	if err != nil {
		return 0, readBackError("account", accountNumber, err)
	}

	r.cache.StageAccount(accountNumber, id)
	r.logger.Debug("resolved account", zap.String("account_number", accountNumber), zap.Int64("id", id))
	return id, nil
}

// AfterCommit implements the core.TxParticipant interface.
func (r *Resolver) AfterCommit() {
	r.cache.Commit()
}

// AfterRollback implements the core.TxParticipant interface.
func (r *Resolver) AfterRollback() {
	r.cache.Rollback()
}

// Stats returns a snapshot of the resolution statistics.
func (r *Resolver) Stats() ResolverStats {
	return ResolverStats{
		CacheHits: r.cacheHits.Load(),
		Upserts:   r.upserts.Load(),
		ReadBacks: r.readBacks.Load(),
	}
}

func readBackError(what, key string, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return core.NewDependencyError(0, fmt.Sprintf("%s %q not found after upsert", what, key), err)
	}
	return core.NewDependencyError(0, fmt.Sprintf("%s %q could not be read back", what, key), err)
}
