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
	"time"

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/trximport/config"
	"github.com/aaronlmathis/trximport/readers"
)

func newSkipsCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "skips <skip-report.parquet>",
		Short: "Print the records of a Parquet skip report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []readers.ReaderOptionParquet
			if runID != "" {
				opts = append(opts, readers.WithRunFilter(runID))
			}
			rows, err := readers.ReadSkipReport(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			printSkipRows(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Only print skips of this run id")
	return cmd
}

func printSkipRows(out io.Writer, rows []readers.SkipReportRow) {
	for _, r := range rows {
		fmt.Fprintf(out, "%s line %d %s", r.RunID, r.Line, r.Stage)
		if r.Kind != "" {
			fmt.Fprintf(out, " [%s]", r.Kind)
		}
		fmt.Fprintf(out, ": %s\n", r.Reason)
		if r.Input != "" {
			fmt.Fprintf(out, "    %s\n", r.Input)
		}
	}
	fmt.Fprintf(out, "%d skipped records\n", len(rows))
}

func newHistoryCmd(ov *overrides) *cobra.Command {
	var (
		resource string
		limit    int64
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs stored in the MongoDB run report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *ov)
			if err != nil {
				return err
			}
			return printHistory(cmd.Context(), cfg, resource, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&resource, "resource", "", "Only list runs of this input resource")
	cmd.Flags().Int64Var(&limit, "limit", 10, "Maximum number of runs to list")
	return cmd
}

func printHistory(ctx context.Context, cfg *config.Config, resource string, limit int64, out io.Writer) error {
	if cfg.Reports.MongoURI == "" {
		return errors.New("reports.mongo_uri is not configured")
	}
	history, err := readers.NewMongoRunHistory(ctx, cfg.Reports.MongoURI,
		readers.WithHistoryDatabase(cfg.Reports.MongoDatabase),
		readers.WithHistoryCollection(cfg.Reports.MongoCollection),
	)
	if err != nil {
		return err
	}
	defer history.Close()

	docs, err := history.Recent(ctx, resource, limit)
	if err != nil {
		return err
	}
	for _, d := range docs {
		fmt.Fprintf(out, "%s %s %-9s written=%d skips=%d last_committed_line=%d %s\n",
			d.StartedAt.Format(time.RFC3339), d.RunID, d.State,
			d.Counters.Written, d.Counters.Skips(), d.LastCommittedLine, d.Resource)
	}

	if resource != "" {
		line, err := history.RestartLine(ctx, resource)
		if err != nil && !errors.Is(err, readers.ErrNoRuns) {
			return err
		}
		if line > 0 {
			fmt.Fprintf(out, "last run failed; restart with --start-line %d\n", line)
		}
	}
	return nil
}
