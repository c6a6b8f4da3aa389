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

import "sync"

// Package dimension resolves the natural keys of a transaction line (customer id,
// account number) to surrogate ids, creating the dimension rows on first sight.
//
// This file implements the run-scoped id cache.

// Cache memoizes resolved ids for one run.
//
// Ids learned inside a chunk transaction are staged and only become permanent when the
// transaction commits; a rollback discards them, because the rows they point to may
// no longer exist.
type Cache struct {
	mu             sync.RWMutex
	profiles       map[string]int64
	accounts       map[string]int64
	stagedProfiles map[string]int64
	stagedAccounts map[string]int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		profiles:       make(map[string]int64),
		accounts:       make(map[string]int64),
		stagedProfiles: make(map[string]int64),
		stagedAccounts: make(map[string]int64),
	}
}

// UserProfile returns the cached id for customerID.
func (c *Cache) UserProfile(customerID string) (int64, bool) {
	return c.lookup(c.stagedProfiles, c.profiles, customerID)
}

// Account returns the cached id for accountNumber.
func (c *Cache) Account(accountNumber string) (int64, bool) {
	return c.lookup(c.stagedAccounts, c.accounts, accountNumber)
}

// StageUserProfile records an id learned inside the current transaction.
func (c *Cache) StageUserProfile(customerID string, id int64) {
	c.mu.Lock()
	c.stagedProfiles[customerID] = id
	c.mu.Unlock()
}

// StageAccount records an id learned inside the current transaction.
func (c *Cache) StageAccount(accountNumber string, id int64) {
	c.mu.Lock()
	c.stagedAccounts[accountNumber] = id
	c.mu.Unlock()
}

// Commit promotes staged ids.
func (c *Cache) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.stagedProfiles {
		c.profiles[k] = v
	}
	for k, v := range c.stagedAccounts {
		c.accounts[k] = v
	}
	clear(c.stagedProfiles)
	clear(c.stagedAccounts)
}

// Rollback drops staged ids.
func (c *Cache) Rollback() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.stagedProfiles)
	clear(c.stagedAccounts)
}

// Len returns the number of committed profile and account ids.
func (c *Cache) Len() (profiles, accounts int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.profiles), len(c.accounts)
}

func (c *Cache) lookup(staged, committed map[string]int64, key string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if id, ok := staged[key]; ok {
		return id, true
	}
	id, ok := committed[key]
	return id, ok
}
