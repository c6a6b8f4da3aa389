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
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/trximport/core"
)

type fakePutter struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.fail {
		return nil, errors.New("access denied")
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestCreateReportFile_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rejects.txt")

	w, err := CreateReportFile(context.Background(), path, nil)
	require.NoError(t, err)
	_, err = io.WriteString(w, "ACC1|x\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ACC1|x\n", string(data))
}

func TestCreateReportFile_S3(t *testing.T) {
	putter := &fakePutter{}

	w, err := CreateReportFile(context.Background(), "s3://reports/run/rejects.txt", putter)
	require.NoError(t, err)
	_, err = io.WriteString(w, "line one\n")
	require.NoError(t, err)
	assert.Empty(t, putter.objects, "nothing is uploaded before Close")

	require.NoError(t, w.Close())
	assert.Equal(t, "line one\n", string(putter.objects["reports/run/rejects.txt"]))

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestCreateReportFile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		location string
		client   ObjectPutter
	}{
		{"no client", "s3://reports/rejects.txt", nil},
		{"no key", "s3://reports", &fakePutter{}},
		{"no bucket", "s3:///rejects.txt", &fakePutter{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateReportFile(context.Background(), tt.location, tt.client)
			assert.Error(t, err)
		})
	}
}

func TestCreateReportFile_UploadFailure(t *testing.T) {
	w, err := CreateReportFile(context.Background(), "s3://reports/rejects.txt", &fakePutter{fail: true})
	require.NoError(t, err)
	err = w.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://reports/rejects.txt")
}

func TestNewSkipReport_S3(t *testing.T) {
	putter := &fakePutter{}

	report, err := NewSkipReport(context.Background(), "s3://reports/skips.parquet", putter)
	require.NoError(t, err)
	uploaded, ok := report.(*UploadedSkipReport)
	require.True(t, ok)

	report.BeforeRun(core.RunInfo{RunID: "run-1"})
	report.OnSkip(core.SkipRecord{Stage: core.StageRead, Line: 3, Cause: core.NewParseError(core.RawLine{Number: 3}, "blank line", nil)})
	report.AfterRun(&core.Outcome{})
	require.NoError(t, report.Close())
	require.NoError(t, report.Close())

	data := putter.objects["reports/skips.parquet"]
	require.NotEmpty(t, data)
	assert.Equal(t, "PAR1", string(data[:4]))

	_, err = os.Stat(uploaded.filename)
	assert.True(t, os.IsNotExist(err), "staged file is removed")
}

func TestNewSkipReport_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skips.parquet")

	report, err := NewSkipReport(context.Background(), path, nil)
	require.NoError(t, err)
	_, ok := report.(*ParquetSkipReport)
	assert.True(t, ok)
	require.NoError(t, report.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
