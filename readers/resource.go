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
	"io"
	"os"
	"strings"

	"github.com/aaronlmathis/trximport/core"
)

// This file resolves resource locations to streams.

// Opener opens a named input resource.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// ResourceOpener resolves file:, plain path, s3:// and http(s):// locations.
type ResourceOpener struct {
	s3   Opener
	http Opener
}

// ResourceOption configures a ResourceOpener.
type ResourceOption func(*ResourceOpener)

// WithS3Opener enables s3:// locations.
func WithS3Opener(opener Opener) ResourceOption {
	return func(r *ResourceOpener) { r.s3 = opener }
}

// WithHTTPOpener enables http:// and https:// locations.
func WithHTTPOpener(opener Opener) ResourceOption {
	return func(r *ResourceOpener) { r.http = opener }
}

// NewResourceOpener creates a ResourceOpener. Remote schemes resolve only when their opener is configured.
func NewResourceOpener(options ...ResourceOption) *ResourceOpener {
	r := &ResourceOpener{}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Open opens location. Any failure is reported as a core resource error.
func (r *ResourceOpener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if strings.HasPrefix(location, "s3://") {
		if r.s3 == nil {
			return nil, core.NewResourceError(location, errors.New("s3 is not configured"))
		}
		rc, err := r.s3.Open(ctx, location)
		if err != nil {
			return nil, core.NewResourceError(location, err)
		}
		return rc, nil
	}

	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if r.http == nil {
			return nil, core.NewResourceError(location, errors.New("http is not configured"))
		}
		rc, err := r.http.Open(ctx, location)
		if err != nil {
			return nil, core.NewResourceError(location, err)
		}
		return rc, nil
	}

	path := strings.TrimPrefix(location, "file:")
	if path == "" {
		return nil, core.NewResourceError(location, errors.New("empty path"))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, core.NewResourceError(location, err)
	}
	if info.IsDir() {
		return nil, core.NewResourceError(location, fmt.Errorf("%s is a directory", path))
	}

	f, err := os.Open(path) //nolint:gosec // operator supplied input path
	if err != nil {
		return nil, core.NewResourceError(location, err)
	}
	return f, nil
}

// OpenResource opens location with a ResourceOpener built from options.
func OpenResource(ctx context.Context, location string, options ...ResourceOption) (io.ReadCloser, error) {
	return NewResourceOpener(options...).Open(ctx, location)
}
