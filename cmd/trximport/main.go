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

// Command trximport imports a pipe-delimited transaction file into the relational store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/trximport/config"
	"github.com/aaronlmathis/trximport/observability"
)

var version = "0.1.0"

// errRunFailed marks a run that reached the FAILED state; its details are already logged.
var errRunFailed = errors.New("import run failed")

// overrides are command-line values that take precedence over the config file.
type overrides struct {
	configFile string
	input      string
	chunkSize  int
	skipLimit  int64
	startLine  int
	logLevel   string
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var ov overrides

	root := &cobra.Command{
		Use:           "trximport",
		Short:         "Import bank transaction files",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `trximport reads a pipe-delimited transaction file, resolves the account and user
profile of every record, and appends the transactions to the relational store in chunks.
Malformed records are skipped up to the configured skip limit.`,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&ov.configFile, "config", "c", "", "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&ov.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trximport v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run an import",
		Long: `Run an import of the configured input resource.

Example:
  trximport run --config trximport.yaml --input s3://bank-drops/2025-12-01.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, ov)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(loggerConfig(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			outcome, err := runImport(cmd.Context(), cfg, logger)
			if outcome != nil {
				printOutcome(cmd.OutOrStdout(), outcome)
			}
			if err != nil {
				if outcome != nil {
					return fmt.Errorf("%w: %v", errRunFailed, err)
				}
				return err
			}
			return nil
		},
	}
	runCmd.Flags().StringVarP(&ov.input, "input", "i", "", "Input resource (path, file:, s3:// or http(s)://)")
	runCmd.Flags().IntVar(&ov.chunkSize, "chunk-size", 0, "Rows per chunk transaction")
	runCmd.Flags().Int64Var(&ov.skipLimit, "skip-limit", 0, "Skips tolerated before the run fails")
	runCmd.Flags().IntVar(&ov.startLine, "start-line", 0, "Physical line to start reading at")
	root.AddCommand(runCmd)

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Check database connectivity and the import tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, ov)
			if err != nil {
				return err
			}
			return checkDatabase(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	})

	root.AddCommand(newSkipsCmd())
	root.AddCommand(newHistoryCmd(&ov))

	return root
}

// loadConfig reads the config file, when given, and applies flags that were set.
func loadConfig(cmd *cobra.Command, ov overrides) (*config.Config, error) {
	cfg := config.Default()
	if ov.configFile != "" {
		loaded, err := config.Load(ov.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Import.InputResource = ov.input
	}
	if flags.Changed("chunk-size") {
		cfg.Import.ChunkSize = ov.chunkSize
	}
	if flags.Changed("skip-limit") {
		limit := ov.skipLimit
		cfg.Import.SkipLimit = &limit
	}
	if flags.Changed("start-line") {
		cfg.Import.StartLine = ov.startLine
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = ov.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loggerConfig(cfg *config.Config) observability.LoggerConfig {
	return observability.LoggerConfig{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
		Development: cfg.Logging.Development,
		OutputPaths: cfg.Logging.OutputPaths,
	}
}
