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
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aaronlmathis/trximport/core"
	"github.com/aaronlmathis/trximport/writers"
)

// This file implements MongoRunHistory, which reads the run reports stored by
// writers.MongoRunReport. Operators use it to find where a failed run stopped.

// MongoReaderError provides structured error information for MongoDB reader operations
type MongoReaderError struct {
	Op         string // Operation that failed (e.g., "connect", "query", "decode")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoReaderError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo reader %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo reader %s: %v", e.Op, e.Err)
}

func (e *MongoReaderError) Unwrap() error {
	return e.Err
}

// ErrNoRuns is returned when no run report matches a query.
var ErrNoRuns = errors.New("no run reports found")

// MongoReaderOptions configures the run history reader
type MongoReaderOptions struct {
	Database       string        // Database name
	Collection     string        // Collection name
	AuthDatabase   string        // Authentication database
	Username       string        // Authentication username
	Password       string        // Authentication password
	Timeout        time.Duration // Connect and query timeout
	ReadPreference string        // Read preference: primary, secondaryPreferred, etc.
}

// ReaderOptionMongo is a functional option for MongoReaderOptions
type ReaderOptionMongo func(*MongoReaderOptions)

func WithHistoryDatabase(database string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Database = database
	}
}

func WithHistoryCollection(collection string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Collection = collection
	}
}

func WithHistoryAuth(username, password, authDB string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthDatabase = authDB
	}
}

func WithHistoryTimeout(timeout time.Duration) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Timeout = timeout
	}
}

func WithHistoryReadPreference(preference string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.ReadPreference = preference
	}
}

// documentFinder is the part of *mongo.Collection used by MongoRunHistory.
type documentFinder interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// MongoRunHistory queries stored run reports.
type MongoRunHistory struct {
	client     *mongo.Client
	collection documentFinder
	opts       MongoReaderOptions
}

// NewMongoRunHistory connects to uri and returns a history reader.
func NewMongoRunHistory(ctx context.Context, uri string, options ...ReaderOptionMongo) (*MongoRunHistory, error) {
	opts := MongoReaderOptions{
		Database:       "trximport",
		Collection:     "runs",
		Timeout:        10 * time.Second,
		ReadPreference: "primary",
	}
	for _, option := range options {
		option(&opts)
	}
	if uri == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("URI is required")}
	}

	clientOpts, err := buildHistoryClientOptions(uri, opts)
	if err != nil {
		return nil, &MongoReaderError{Op: "build_options", Err: err}
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, &MongoReaderError{Op: "connect", Err: err}
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(connectCtx)
		return nil, &MongoReaderError{Op: "ping", Err: err}
	}

	return &MongoRunHistory{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		opts:       opts,
	}, nil
}

func buildHistoryClientOptions(uri string, opts MongoReaderOptions) (*options.ClientOptions, error) {
	clientOpts := options.Client().ApplyURI(uri)
	if opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(opts.Timeout)
	}

	if opts.ReadPreference != "" {
		mode, err := readpref.ModeFromString(opts.ReadPreference)
		if err != nil {
			return nil, fmt.Errorf("invalid read preference %q: %w", opts.ReadPreference, err)
		}
		rp, err := readpref.New(mode)
		if err != nil {
			return nil, err
		}
		clientOpts.SetReadPreference(rp)
	}

	if opts.Username != "" && opts.Password != "" {
		auth := options.Credential{
			Username:   opts.Username,
			Password:   opts.Password,
			AuthSource: opts.AuthDatabase,
		}
		if auth.AuthSource == "" {
			auth.AuthSource = opts.Database
		}
		clientOpts.SetAuth(auth)
	}
	return clientOpts, nil
}

// Recent returns up to limit reports, newest first. An empty resource matches every run.
// Skip records are not loaded.
func (h *MongoRunHistory) Recent(ctx context.Context, resource string, limit int64) ([]writers.RunReportDocument, error) {
	filter := bson.M{}
	if resource != "" {
		filter["resource"] = resource
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}}).
		SetProjection(bson.M{"skips": 0})
	if limit > 0 {
		findOpts.SetLimit(limit)
	}

	queryCtx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	cursor, err := h.collection.Find(queryCtx, filter, findOpts)
	if err != nil {
		return nil, &MongoReaderError{Op: "query", Collection: h.opts.Collection, Err: err}
	}
	defer cursor.Close(queryCtx)

	var docs []writers.RunReportDocument
	if err := cursor.All(queryCtx, &docs); err != nil {
		return nil, &MongoReaderError{Op: "decode", Collection: h.opts.Collection, Err: err}
	}
	return docs, nil
}

// Last returns the newest report for resource, or ErrNoRuns.
func (h *MongoRunHistory) Last(ctx context.Context, resource string) (writers.RunReportDocument, error) {
	docs, err := h.Recent(ctx, resource, 1)
	if err != nil {
		return writers.RunReportDocument{}, err
	}
	if len(docs) == 0 {
		return writers.RunReportDocument{}, ErrNoRuns
	}
	return docs[0], nil
}

// RestartLine returns the line a manual restart of resource should start at: the line
// after the last committed line of the newest run. It is 0 when that run completed.
func (h *MongoRunHistory) RestartLine(ctx context.Context, resource string) (int, error) {
	doc, err := h.Last(ctx, resource)
	if err != nil {
		return 0, err
	}
	if doc.State != core.StateFailed || doc.LastCommittedLine == 0 {
		return 0, nil
	}
	return doc.LastCommittedLine + 1, nil
}

// Close disconnects the client.
func (h *MongoRunHistory) Close() error {
	if h.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.Timeout)
	defer cancel()
	if err := h.client.Disconnect(ctx); err != nil {
		return &MongoReaderError{Op: "disconnect", Err: err}
	}
	return nil
}
