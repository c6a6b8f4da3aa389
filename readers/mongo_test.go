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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/trximport/core"
	"github.com/aaronlmathis/trximport/writers"
)

// fakeFinder returns its documents in order and records the last query.
type fakeFinder struct {
	docs    []interface{}
	err     error
	filter  interface{}
	options *options.FindOptions
}

func (f *fakeFinder) Find(_ context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	f.filter = filter
	if len(opts) > 0 {
		f.options = opts[0]
	}
	if f.err != nil {
		return nil, f.err
	}
	return mongo.NewCursorFromDocuments(f.docs, nil, nil)
}

func newHistory(f *fakeFinder) *MongoRunHistory {
	return &MongoRunHistory{collection: f, opts: MongoReaderOptions{Collection: "runs", Timeout: time.Second}}
}

func report(runID string, state core.RunState, lastLine int) writers.RunReportDocument {
	return writers.RunReportDocument{
		RunID:             runID,
		Resource:          "s3://drops/a.txt",
		State:             state,
		Counters:          core.RunCounters{Read: 10, Written: 8},
		StartedAt:         time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC),
		LastCommittedLine: lastLine,
	}
}

func TestMongoRunHistoryRecent(t *testing.T) {
	f := &fakeFinder{docs: []interface{}{report("run-2", core.StateFailed, 201), report("run-1", core.StateCompleted, 500)}}
	h := newHistory(f)

	docs, err := h.Recent(context.Background(), "s3://drops/a.txt", 5)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "run-2", docs[0].RunID)
	assert.Equal(t, core.StateFailed, docs[0].State)
	assert.Equal(t, int64(8), docs[0].Counters.Written)
	assert.Equal(t, bson.M{"resource": "s3://drops/a.txt"}, f.filter)
	require.NotNil(t, f.options)
	require.NotNil(t, f.options.Limit)
	assert.Equal(t, int64(5), *f.options.Limit)
}

func TestMongoRunHistoryAllResources(t *testing.T) {
	f := &fakeFinder{}
	_, err := newHistory(f).Recent(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, f.filter)
	assert.Nil(t, f.options.Limit)
}

func TestMongoRunHistoryRestartLine(t *testing.T) {
	tests := []struct {
		name    string
		docs    []interface{}
		want    int
		wantErr error
	}{
		{name: "failed run", docs: []interface{}{report("run-2", core.StateFailed, 201)}, want: 202},
		{name: "failed before first commit", docs: []interface{}{report("run-2", core.StateFailed, 0)}, want: 0},
		{name: "completed run", docs: []interface{}{report("run-1", core.StateCompleted, 500)}, want: 0},
		{name: "no runs", wantErr: ErrNoRuns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := newHistory(&fakeFinder{docs: tt.docs}).RestartLine(context.Background(), "s3://drops/a.txt")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, line)
		})
	}
}

func TestMongoRunHistoryQueryError(t *testing.T) {
	_, err := newHistory(&fakeFinder{err: errors.New("no primary")}).Recent(context.Background(), "", 1)

	var merr *MongoReaderError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "query", merr.Op)
	assert.Equal(t, "runs", merr.Collection)
}

func TestNewMongoRunHistoryValidation(t *testing.T) {
	_, err := NewMongoRunHistory(context.Background(), "")
	require.Error(t, err)

	_, err = buildHistoryClientOptions("mongodb://localhost:27017", MongoReaderOptions{ReadPreference: "sometimes"})
	require.Error(t, err)
}
