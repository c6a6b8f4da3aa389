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

package writers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/trximport/core"
)

// This file implements MongoRunReport, which stores one document per run with the
// final counters and the skipped records.

// MongoWriterError provides structured error information for MongoDB report operations
type MongoWriterError struct {
	Op         string // Operation that failed (e.g., "connect", "insert")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoWriterError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo writer %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo writer %s: %v", e.Op, e.Err)
}

func (e *MongoWriterError) Unwrap() error {
	return e.Err
}

// MongoWriterOptions configures the run report
type MongoWriterOptions struct {
	URI          string        // MongoDB connection URI
	Database     string        // Database name
	Collection   string        // Collection name
	Username     string        // Authentication username
	Password     string        // Authentication password
	AuthDatabase string        // Authentication database
	Timeout      time.Duration // Connect and insert timeout
	MaxSkips     int           // Skip records embedded per document (0 = none)
}

// WriterOptionMongo is a functional option for MongoWriterOptions
type WriterOptionMongo func(*MongoWriterOptions)

func WithMongoDatabase(database string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Database = database
	}
}

func WithMongoCollection(collection string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Collection = collection
	}
}

func WithMongoAuth(username, password, authDB string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthDatabase = authDB
	}
}

func WithMongoTimeout(timeout time.Duration) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Timeout = timeout
	}
}

func WithMongoMaxSkips(n int) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.MaxSkips = n
	}
}

// RunReportDocument is the stored shape of a run.
type RunReportDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	RunID             string             `bson:"runId"`
	Resource          string             `bson:"resource"`
	State             core.RunState      `bson:"state"`
	Counters          core.RunCounters   `bson:"counters"`
	StartedAt         time.Time          `bson:"startedAt"`
	EndedAt           time.Time          `bson:"endedAt"`
	DurationMillis    int64              `bson:"durationMillis"`
	LastCommittedLine int                `bson:"lastCommittedLine"`
	Error             string             `bson:"error,omitempty"`
	Skips             []SkipDocument     `bson:"skips"`
	SkipsTruncated    bool               `bson:"skipsTruncated"`
}

// SkipDocument is the stored shape of a skipped record.
type SkipDocument struct {
	Line   int    `bson:"line"`
	Stage  string `bson:"stage"`
	Kind   string `bson:"kind,omitempty"`
	Reason string `bson:"reason"`
	Input  string `bson:"input,omitempty"`
}

// documentInserter is the part of *mongo.Collection used by MongoRunReport.
type documentInserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoRunReport is a run listener inserting a RunReportDocument when a run ends.
type MongoRunReport struct {
	client     *mongo.Client
	collection documentInserter
	opts       MongoWriterOptions
	err        error
	inserted   int64
	mu         sync.Mutex
}

// NewMongoRunReport connects to uri and returns a report writer.
func NewMongoRunReport(ctx context.Context, uri string, options ...WriterOptionMongo) (*MongoRunReport, error) {
	opts := MongoWriterOptions{
		URI:        uri,
		Database:   "trximport",
		Collection: "runs",
		Timeout:    10 * time.Second,
		MaxSkips:   1000,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.URI == "" {
		return nil, &MongoWriterError{Op: "validate", Err: fmt.Errorf("URI is required")}
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, buildClientOptions(opts))
	if err != nil {
		return nil, &MongoWriterError{Op: "connect", Err: err}
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(connectCtx)
		return nil, &MongoWriterError{Op: "ping", Err: err}
	}

	return &MongoRunReport{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		opts:       opts,
	}, nil
}

func buildClientOptions(opts MongoWriterOptions) *options.ClientOptions {
	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(opts.Timeout)
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
	return clientOpts
}

// BeforeRun implements the run listener interface.
func (m *MongoRunReport) BeforeRun(core.RunInfo) {}

// AfterRun stores the outcome.
func (m *MongoRunReport) AfterRun(outcome *core.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	defer cancel()

	doc := NewRunReportDocument(outcome, m.opts.MaxSkips)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		m.err = &MongoWriterError{Op: "insert", Collection: m.opts.Collection, Err: err}
		return
	}
	m.inserted++
}

// NewRunReportDocument converts outcome, embedding at most maxSkips skip records.
func NewRunReportDocument(outcome *core.Outcome, maxSkips int) RunReportDocument {
	doc := RunReportDocument{
		RunID:             outcome.RunID,
		Resource:          outcome.Resource,
		State:             outcome.State,
		Counters:          outcome.Counters,
		StartedAt:         outcome.StartedAt,
		EndedAt:           outcome.EndedAt,
		DurationMillis:    outcome.Duration().Milliseconds(),
		LastCommittedLine: outcome.LastCommittedLine,
		Skips:             make([]SkipDocument, 0, min(len(outcome.Skips), maxSkips)),
	}
	if outcome.Err != nil {
		doc.Error = outcome.Err.Error()
	}
	for i, rec := range outcome.Skips {
		if i >= maxSkips {
			doc.SkipsTruncated = true
			break
		}
		doc.Skips = append(doc.Skips, SkipDocument{
			Line:   rec.Line,
			Stage:  string(rec.Stage),
			Kind:   kindOf(rec.Cause),
			Reason: rec.Reason(),
			Input:  rec.Input,
		})
	}
	return doc
}

// Err returns the last insert failure.
func (m *MongoRunReport) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close disconnects the client.
func (m *MongoRunReport) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	defer cancel()
	if err := m.client.Disconnect(ctx); err != nil {
		return &MongoWriterError{Op: "disconnect", Err: err}
	}
	return nil
}
