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
	"net/http"
	"time"
)

// This file implements HTTPOpener, which streams http:// and https:// input resources.
// Only opening the response is retried; once streaming has started, failures surface
// through the line reader.

// HTTPOpenError provides structured error information for HTTP opener operations
type HTTPOpenError struct {
	Op         string // Operation that failed (e.g., "request", "status_check")
	StatusCode int    // HTTP status code if applicable
	URL        string // URL being accessed when error occurred
	Err        error  // Underlying error
}

func (e *HTTPOpenError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("http open %s [%d] %s: %v", e.Op, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("http open %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *HTTPOpenError) Unwrap() error {
	return e.Err
}

// HTTPOpenerOptions configures the HTTP opener
type HTTPOpenerOptions struct {
	Headers       map[string]string // Additional headers
	BearerToken   string            // Sent as Authorization: Bearer
	Username      string            // For basic auth
	Password      string            // For basic auth
	Timeout       time.Duration     // Timeout for establishing the response
	RetryAttempts int               // Number of retry attempts
	RetryDelay    time.Duration     // Base delay between retries
	UserAgent     string            // User agent string
	CustomClient  *http.Client      // Custom HTTP client
}

// OpenerOptionHTTP is a functional option for HTTPOpenerOptions
type OpenerOptionHTTP func(*HTTPOpenerOptions)

func WithHTTPHeaders(headers map[string]string) OpenerOptionHTTP {
	return func(opts *HTTPOpenerOptions) {
		if opts.Headers == nil {
			opts.Headers = make(map[string]string)
		}
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

func WithHTTPBearerToken(token string) OpenerOptionHTTP {
	return func(opts *HTTPOpenerOptions) {
		opts.BearerToken = token
	}
}

func WithHTTPBasicAuth(username, password string) OpenerOptionHTTP {
	return func(opts *HTTPOpenerOptions) {
		opts.Username = username
		opts.Password = password
	}
}

func WithHTTPTimeout(timeout time.Duration) OpenerOptionHTTP {
	return func(opts *HTTPOpenerOptions) {
		opts.Timeout = timeout
	}
}

func WithHTTPRetries(attempts int, delay time.Duration) OpenerOptionHTTP {
	return func(opts *HTTPOpenerOptions) {
		opts.RetryAttempts = attempts
		opts.RetryDelay = delay
	}
}

func WithHTTPUserAgent(agent string) OpenerOptionHTTP {
	return func(opts *HTTPOpenerOptions) {
		opts.UserAgent = agent
	}
}

func WithHTTPClient(client *http.Client) OpenerOptionHTTP {
	return func(opts *HTTPOpenerOptions) {
		opts.CustomClient = client
	}
}

// HTTPOpener opens http(s) resources as streams.
type HTTPOpener struct {
	client *http.Client
	opts   HTTPOpenerOptions
}

// NewHTTPOpener creates an HTTPOpener.
func NewHTTPOpener(options ...OpenerOptionHTTP) *HTTPOpener {
	opts := HTTPOpenerOptions{
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		UserAgent:     "trximport/1.0",
	}
	for _, option := range options {
		option(&opts)
	}

	client := opts.CustomClient
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPOpener{client: client, opts: opts}
}

// Open performs a GET on url and returns the response body.
func (o *HTTPOpener) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	var lastErr error

	for attempt := 0; attempt <= o.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := o.opts.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := o.open(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var httpErr *HTTPOpenError
		if errors.As(err, &httpErr) && httpErr.StatusCode != http.StatusTooManyRequests && httpErr.StatusCode < 500 {
			break
		}
	}

	return nil, lastErr
}

func (o *HTTPOpener) open(ctx context.Context, url string) (io.ReadCloser, error) {
	// The timeout bounds the response headers only; the body is streamed afterwards.
	reqCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(o.opts.Timeout, cancel)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, &HTTPOpenError{Op: "create_request", URL: url, Err: err}
	}

	req.Header.Set("User-Agent", o.opts.UserAgent)
	for k, v := range o.opts.Headers {
		req.Header.Set(k, v)
	}
	switch {
	case o.opts.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+o.opts.BearerToken)
	case o.opts.Username != "":
		req.SetBasicAuth(o.opts.Username, o.opts.Password)
	}

	resp, err := o.client.Do(req)
	timer.Stop()
	if err != nil {
		cancel()
		return nil, &HTTPOpenError{Op: "request", URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, &HTTPOpenError{
			Op:         "status_check",
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
