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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/aaronlmathis/trximport"
	"github.com/aaronlmathis/trximport/config"
	"github.com/aaronlmathis/trximport/core"
	"github.com/aaronlmathis/trximport/database"
	"github.com/aaronlmathis/trximport/dimension"
	"github.com/aaronlmathis/trximport/filter"
	"github.com/aaronlmathis/trximport/observability"
	"github.com/aaronlmathis/trximport/readers"
	"github.com/aaronlmathis/trximport/transform"
	"github.com/aaronlmathis/trximport/writers"
)

// runImport wires the configured components and executes one run. The returned outcome
// is nil when the run could not start.
func runImport(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*trximport.Outcome, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	report, err := db.CheckSchema(ctx)
	if err != nil {
		return nil, err
	}
	if !report.OK() {
		return nil, fmt.Errorf("database is missing tables: %s", strings.Join(report.Missing(), ", "))
	}

	opener, err := newOpener(ctx, cfg)
	if err != nil {
		return nil, err
	}

	builder := trximport.NewPipeline().
		From(cfg.Import.InputResource).
		WithOpener(opener).
		WithLineReaderOptions(
			readers.WithLinesToSkip(*cfg.Import.LinesToSkip),
			readers.WithMaxLineSize(cfg.Import.MaxLineSize),
		).
		WithLineMapper(readers.NewDelimitedLineMapper(
			readers.WithDelimiter(cfg.Import.Delimiter),
			readers.WithDateLayout(cfg.Import.DateLayout),
			readers.WithTimeLayout(cfg.Import.TimeLayout),
		)).
		WithTxManager(db).
		WithDimensionStore(dimension.NewSQLStore(db.Dialect())).
		WithNormalizerOptions(normalizerOptions(cfg)...).
		To(writers.NewFactWriter(db.Dialect())).
		WithChunkSize(cfg.Import.ChunkSize).
		WithSkipLimit(*cfg.Import.SkipLimit).
		WithStartLine(cfg.Import.StartLine).
		WithPreview(cfg.Import.PreviewLines).
		WithLogger(logger).
		WithListener(observability.NewLoggingListener(logger))

	closers, err := attachReports(ctx, cfg, builder)
	defer func() {
		for _, c := range closers {
			if cerr := c.Close(); cerr != nil {
				logger.Warn("closing report", zap.Error(cerr))
			}
		}
	}()
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		metrics := observability.NewMetricsListener()
		builder.WithListener(metrics)
		srv := observability.NewMetricsServer(cfg.Metrics.Address, metrics.Registry(), logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	pipeline, err := builder.Build()
	if err != nil {
		return nil, err
	}
	return pipeline.Execute(ctx)
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	return database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN,
		database.WithConnectionPool(
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
			cfg.Database.ConnMaxIdleTime,
		),
		database.WithQueryTimeout(cfg.Database.QueryTimeout),
	)
}

// newOpener builds the resource opener. The S3 client is only created for s3:// inputs.
func newOpener(ctx context.Context, cfg *config.Config) (readers.Opener, error) {
	httpOpts := []readers.OpenerOptionHTTP{
		readers.WithHTTPTimeout(cfg.HTTP.Timeout),
		readers.WithHTTPRetries(cfg.HTTP.Retries, cfg.HTTP.RetryDelay),
		readers.WithHTTPUserAgent("trximport/" + version),
	}
	if len(cfg.HTTP.Headers) > 0 {
		httpOpts = append(httpOpts, readers.WithHTTPHeaders(cfg.HTTP.Headers))
	}
	if cfg.HTTP.BearerToken != "" {
		httpOpts = append(httpOpts, readers.WithHTTPBearerToken(cfg.HTTP.BearerToken))
	} else if cfg.HTTP.Username != "" {
		httpOpts = append(httpOpts, readers.WithHTTPBasicAuth(cfg.HTTP.Username, cfg.HTTP.Password))
	}
	opts := []readers.ResourceOption{readers.WithHTTPOpener(readers.NewHTTPOpener(httpOpts...))}

	if strings.HasPrefix(cfg.Import.InputResource, "s3://") {
		s3Opener, err := readers.NewS3Opener(ctx, s3Options(cfg)...)
		if err != nil {
			return nil, core.NewResourceError(cfg.Import.InputResource, err)
		}
		opts = append(opts, readers.WithS3Opener(s3Opener))
	}
	return readers.NewResourceOpener(opts...), nil
}

func s3Options(cfg *config.Config) []readers.ReaderOptionS3 {
	opts := []readers.ReaderOptionS3{readers.WithS3PathStyle(cfg.S3.PathStyle)}
	if cfg.S3.Region != "" {
		opts = append(opts, readers.WithS3Region(cfg.S3.Region))
	}
	if cfg.S3.Profile != "" {
		opts = append(opts, readers.WithS3Profile(cfg.S3.Profile))
	}
	if cfg.S3.Endpoint != "" {
		opts = append(opts, readers.WithS3Endpoint(cfg.S3.Endpoint))
	}
	if cfg.S3.AccessKeyID != "" {
		opts = append(opts, readers.WithS3Credentials(aws.Credentials{
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			SessionToken:    cfg.S3.SessionToken,
		}))
	}
	return opts
}

// normalizerOptions maps the row rules of the import section.
func normalizerOptions(cfg *config.Config) []transform.NormalizerOption {
	var opts []transform.NormalizerOption
	if cfg.Import.UppercaseKeys {
		opts = append(opts, transform.WithTransforms(transform.ToUpper(core.FieldAccountNumber, core.FieldCustomerID)))
	}
	if cfg.Import.MaxDescription > 0 {
		opts = append(opts, transform.WithTransforms(transform.TruncateDescription(cfg.Import.MaxDescription)))
	}
	if len(cfg.Import.ExcludeCustomers) > 0 {
		opts = append(opts, transform.WithFilters(
			filter.Not(filter.In(core.FieldCustomerID, cfg.Import.ExcludeCustomers...)),
		))
	}
	return opts
}

// attachReports registers the configured skip reports and returns what must be closed
// after the run, including on error.
func attachReports(ctx context.Context, cfg *config.Config, builder *trximport.PipelineBuilder) ([]io.Closer, error) {
	var closers []io.Closer

	var client writers.ObjectPutter
	if writers.IsS3Location(cfg.Reports.RejectFile) || writers.IsS3Location(cfg.Reports.SkipReport) {
		c, err := readers.NewS3Client(ctx, s3Options(cfg)...)
		if err != nil {
			return closers, fmt.Errorf("failed to create s3 client for reports: %w", err)
		}
		client = c
	}

	if path := cfg.Reports.RejectFile; path != "" {
		f, err := writers.CreateReportFile(ctx, path, client)
		if err != nil {
			return closers, fmt.Errorf("failed to create reject file: %w", err)
		}
		reject := writers.NewRejectWriter(f, writers.WithComma(rune(cfg.Import.Delimiter[0])))
		builder.WithListener(reject)
		closers = append(closers, reject)
	}

	if path := cfg.Reports.SkipReport; path != "" {
		report, err := writers.NewSkipReport(ctx, path, client)
		if err != nil {
			return closers, err
		}
		builder.WithListener(report)
		closers = append(closers, report)
	}

	if uri := cfg.Reports.MongoURI; uri != "" {
		report, err := writers.NewMongoRunReport(ctx, uri,
			writers.WithMongoDatabase(cfg.Reports.MongoDatabase),
			writers.WithMongoCollection(cfg.Reports.MongoCollection),
			writers.WithMongoMaxSkips(cfg.Reports.MongoMaxSkips),
		)
		if err != nil {
			return closers, err
		}
		builder.WithListener(report)
		closers = append(closers, report)
	}
	return closers, nil
}

// checkDatabase prints which import tables exist and fails when any is missing.
func checkDatabase(ctx context.Context, cfg *config.Config, out io.Writer) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := db.CheckSchema(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "database: %s ok\n", cfg.Database.Driver)
	for _, table := range []string{database.TableUserProfile, database.TableAccount, database.TableTransaction} {
		status := "missing"
		if report.Tables[table] {
			status = "ok"
		}
		fmt.Fprintf(out, "table %s: %s\n", table, status)
	}
	if !report.OK() {
		return errors.New("database is missing import tables")
	}
	return nil
}

func printOutcome(out io.Writer, o *trximport.Outcome) {
	c := o.Counters
	fmt.Fprintf(out, "run %s %s in %s\n", o.RunID, o.State, o.Duration().Round(time.Millisecond))
	fmt.Fprintf(out, "  read=%d written=%d filtered=%d\n", c.Read, c.Written, c.Filtered)
	fmt.Fprintf(out, "  skips read=%d process=%d write=%d\n", c.ReadSkips, c.ProcessSkips, c.WriteSkips)
	fmt.Fprintf(out, "  commits=%d rollbacks=%d last_committed_line=%d\n", c.Commits, c.Rollbacks, o.LastCommittedLine)
	if o.Err != nil {
		fmt.Fprintf(out, "  error: %v\n", o.Err)
	}
}
