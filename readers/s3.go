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
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// This file implements S3Opener, which streams input resources stored in Amazon S3
// (or an S3-compatible service) addressed as s3://bucket/key.

// S3ReaderError wraps S3-specific errors with context about the operation.
type S3ReaderError struct {
	Op  string // Operation that failed (e.g., "parse_location", "get_object")
	Err error  // Underlying error
}

// Error returns the error string for S3ReaderError.
func (e *S3ReaderError) Error() string {
	return fmt.Sprintf("s3 reader %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for S3ReaderError.
func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// S3ReaderOptions configures the S3 client used by S3Opener.
type S3ReaderOptions struct {
	Region         string          // AWS region
	Profile        string          // AWS shared config profile
	Credentials    aws.Credentials // Explicit static credentials
	EndpointURL    string          // Custom endpoint for S3-compatible services
	ForcePathStyle bool            // Use path-style addressing
	Timeout        time.Duration   // Timeout for loading configuration
}

// ReaderOptionS3 represents a configuration function for S3ReaderOptions.
type ReaderOptionS3 func(*S3ReaderOptions)

// WithS3Region sets the AWS region.
func WithS3Region(region string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Region = region }
}

// WithS3Profile sets the AWS shared config profile.
func WithS3Profile(profile string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Profile = profile }
}

// WithS3Credentials sets explicit static credentials.
func WithS3Credentials(creds aws.Credentials) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Credentials = creds }
}

// WithS3Endpoint sets a custom S3 endpoint.
func WithS3Endpoint(endpoint string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.EndpointURL = endpoint }
}

// WithS3PathStyle enables path-style addressing.
func WithS3PathStyle(pathStyle bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.ForcePathStyle = pathStyle }
}

// s3GetObjectAPI is the part of *s3.Client used by S3Opener.
type s3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Opener opens s3:// resources as streams.
type S3Opener struct {
	client s3GetObjectAPI
	opts   S3ReaderOptions
}

// NewS3Client creates an S3 client from the default AWS configuration chain
// refined by the given options.
func NewS3Client(ctx context.Context, options ...ReaderOptionS3) (*s3.Client, error) {
	opts := S3ReaderOptions{Timeout: 30 * time.Second}
	for _, option := range options {
		option(&opts)
	}

	cfgCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cfg, err := createAWSConfig(cfgCtx, opts)
	if err != nil {
		return nil, &S3ReaderError{Op: "create_aws_config", Err: err}
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	}), nil
}

// NewS3Opener creates an S3Opener over a client built by NewS3Client.
func NewS3Opener(ctx context.Context, options ...ReaderOptionS3) (*S3Opener, error) {
	client, err := NewS3Client(ctx, options...)
	if err != nil {
		return nil, err
	}
	opts := S3ReaderOptions{}
	for _, option := range options {
		option(&opts)
	}
	return &S3Opener{client: client, opts: opts}, nil
}

// Open streams the object addressed by location (s3://bucket/key).
func (o *S3Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, &S3ReaderError{Op: "parse_location", Err: err}
	}

	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &S3ReaderError{Op: "get_object", Err: fmt.Errorf("failed to get object %s: %w", location, err)}
	}
	return out.Body, nil
}

// ParseS3Location splits s3://bucket/key into its bucket and key.
func ParseS3Location(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("location %q must be s3://bucket/key", location)
	}
	return u.Host, key, nil
}

// createAWSConfig builds the AWS configuration for the given options.
func createAWSConfig(ctx context.Context, opts S3ReaderOptions) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}

	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	// Override with explicit credentials if provided
	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}

	return cfg, nil
}
