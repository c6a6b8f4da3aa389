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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/trximport/core"
)

// This file resolves report locations. A report location is either a local path or
// s3://bucket/key; S3 reports are staged locally and uploaded when closed.

// ObjectPutter is the part of *s3.Client used to upload reports.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// IsS3Location reports whether location addresses an S3 object.
func IsS3Location(location string) bool {
	return strings.HasPrefix(location, "s3://")
}

func splitS3Location(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", fmt.Errorf("location %q must be s3://bucket/key", location)
	}
	return u.Host, key, nil
}

// CreateReportFile opens location for writing. Local parent directories are created;
// S3 content is buffered and uploaded by Close. client may be nil for local paths.
func CreateReportFile(ctx context.Context, location string, client ObjectPutter) (io.WriteCloser, error) {
	if !IsS3Location(location) {
		if err := ensureDir(location); err != nil {
			return nil, err
		}
		return os.Create(location)
	}
	if client == nil {
		return nil, fmt.Errorf("report %s: no s3 client configured", location)
	}
	bucket, key, err := splitS3Location(location)
	if err != nil {
		return nil, err
	}
	return &s3WriteCloser{ctx: ctx, client: client, bucket: bucket, key: key}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

type s3WriteCloser struct {
	ctx    context.Context
	client ObjectPutter
	bucket string
	key    string
	buf    bytes.Buffer
	closed bool
}

func (s *s3WriteCloser) Write(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	return s.buf.Write(p)
}

func (s *s3WriteCloser) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return putObject(s.ctx, s.client, s.bucket, s.key, bytes.NewReader(s.buf.Bytes()))
}

func putObject(ctx context.Context, client ObjectPutter, bucket, key string, body io.Reader) error {
	_, err := client.PutObject(context.WithoutCancel(ctx), &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// SkipReport is a closable skip listener.
type SkipReport interface {
	io.Closer
	BeforeRun(info core.RunInfo)
	OnSkip(rec core.SkipRecord)
	AfterRun(outcome *core.Outcome)
	Err() error
}

// UploadedSkipReport is a ParquetSkipReport staged in a temporary file and uploaded
// to S3 when closed.
type UploadedSkipReport struct {
	*ParquetSkipReport
	ctx      context.Context
	client   ObjectPutter
	bucket   string
	key      string
	filename string
	uploaded bool
}

// NewSkipReport creates a Parquet skip report at location, which may be a local path
// or an s3:// location.
func NewSkipReport(ctx context.Context, location string, client ObjectPutter, options ...WriterOption) (SkipReport, error) {
	if !IsS3Location(location) {
		return NewParquetSkipReport(location, options...)
	}
	if client == nil {
		return nil, fmt.Errorf("report %s: no s3 client configured", location)
	}
	bucket, key, err := splitS3Location(location)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "trximport-skips-*.parquet")
	if err != nil {
		return nil, &ParquetWriterError{Op: "open_file", Err: err}
	}
	filename := tmp.Name()
	tmp.Close()

	report, err := NewParquetSkipReport(filename, options...)
	if err != nil {
		os.Remove(filename)
		return nil, err
	}
	return &UploadedSkipReport{
		ParquetSkipReport: report,
		ctx:               ctx,
		client:            client,
		bucket:            bucket,
		key:               key,
		filename:          filename,
	}, nil
}

// Close finalizes the staged file, uploads it and removes it.
func (u *UploadedSkipReport) Close() error {
	if u.uploaded {
		return nil
	}
	u.uploaded = true
	defer os.Remove(u.filename)
	if err := u.ParquetSkipReport.Close(); err != nil {
		return err
	}
	f, err := os.Open(u.filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return putObject(u.ctx, u.client, u.bucket, u.key, f)
}
