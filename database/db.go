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
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql" // registers "mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"

	"github.com/aaronlmathis/trximport/core"
)

// Package database opens the relational store the import writes to and exposes it
// to the pipeline as a core.TxManager.
//
// This file implements connection opening, pool configuration and transactions.

// Error wraps database errors with context about the operation.
type Error struct {
	Op  string // The operation being performed (e.g., "connect", "begin")
	Err error  // The underlying error
}

// Error returns the error string for Error.
func (e *Error) Error() string {
	return fmt.Sprintf("database %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for Error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Stats holds connection statistics.
type Stats struct {
	ConnectionTime time.Duration // Time spent establishing the connection
	TxBegun        int64         // Transactions started through BeginTx
	Pool           sql.DBStats   // database/sql pool statistics
}

// Options configures the connection.
type Options struct {
	Driver          string        // database/sql driver name
	DSN             string        // Connection string
	ConnMaxLifetime time.Duration // Max connection lifetime
	ConnMaxIdleTime time.Duration // Max idle connection time
	MaxOpenConns    int           // Max open connections
	MaxIdleConns    int           // Max idle connections
	QueryTimeout    time.Duration // Timeout for ping and schema checks
}

// Option represents a configuration function for Options.
type Option func(*Options)

// WithConnectionPool configures the connection pool.
func WithConnectionPool(maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) Option {
	return func(opts *Options) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
		opts.ConnMaxLifetime = maxLifetime
		opts.ConnMaxIdleTime = maxIdleTime
	}
}

// WithQueryTimeout sets the query timeout.
func WithQueryTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.QueryTimeout = timeout
	}
}

func (opts *Options) withDefaults() *Options {
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	if opts.ConnMaxIdleTime == 0 {
		opts.ConnMaxIdleTime = 1 * time.Minute
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	return opts
}

func validateOptions(opts *Options) error {
	if opts.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if _, err := DialectFor(opts.Driver); err != nil {
		return err
	}
	if opts.MaxIdleConns > opts.MaxOpenConns {
		return fmt.Errorf("max idle connections (%d) exceed max open connections (%d)", opts.MaxIdleConns, opts.MaxOpenConns)
	}
	return nil
}

// DB is a pooled connection that implements core.TxManager.
type DB struct {
	db      *sql.DB
	dialect Dialect
	options Options
	stats   Stats
	txBegun atomic.Int64
}

// Open connects to driver/dsn, configures the pool and pings the server.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	options := &Options{Driver: driver, DSN: dsn}
	for _, opt := range opts {
		opt(options)
	}
	options = options.withDefaults()

	if err := validateOptions(options); err != nil {
		return nil, &Error{Op: "validate", Err: err}
	}
	dialect, _ := DialectFor(driver)

	start := time.Now()
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &Error{Op: "connect", Err: fmt.Errorf("failed to open database: %w", err)}
	}

	db.SetMaxOpenConns(options.MaxOpenConns)
	db.SetMaxIdleConns(options.MaxIdleConns)
	db.SetConnMaxLifetime(options.ConnMaxLifetime)
	db.SetConnMaxIdleTime(options.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, options.QueryTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &Error{Op: "connect", Err: fmt.Errorf("failed to ping database: %w", err)}
	}

	return &DB{
		db:      db,
		dialect: dialect,
		options: *options,
		stats:   Stats{ConnectionTime: time.Since(start)},
	}, nil
}

// BeginTx implements the core.TxManager interface.
func (d *DB) BeginTx(ctx context.Context) (core.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &Error{Op: "begin", Err: err}
	}
	d.txBegun.Add(1)
	return tx, nil
}

// Dialect returns the SQL dialect of the connection.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// SQL exposes the underlying pool.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Stats returns a copy of the connection statistics.
func (d *DB) Stats() Stats {
	s := d.stats
	s.TxBegun = d.txBegun.Load()
	s.Pool = d.db.Stats()
	return s
}

// Close closes the pool.
func (d *DB) Close() error {
	return d.db.Close()
}
