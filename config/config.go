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

// Package config loads the importer configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete importer configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Import   ImportConfig   `yaml:"import"`
	S3       S3Config       `yaml:"s3"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Reports  ReportsConfig  `yaml:"reports"`
}

// DatabaseConfig configures the target database.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // postgres, pgx, mysql or sqlite3
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// ImportConfig configures the run.
type ImportConfig struct {
	InputResource    string   `yaml:"input_resource"`
	ChunkSize        int      `yaml:"chunk_size"`
	SkipLimit        *int64   `yaml:"skip_limit"`
	Delimiter        string   `yaml:"delimiter"`
	LinesToSkip      *int     `yaml:"lines_to_skip"`
	DateLayout       string   `yaml:"date_layout"`
	TimeLayout       string   `yaml:"time_layout"`
	PreviewLines     int      `yaml:"preview_lines"`
	StartLine        int      `yaml:"start_line"`
	MaxLineSize      int      `yaml:"max_line_size"`
	ExcludeCustomers []string `yaml:"exclude_customers"`
	UppercaseKeys    bool     `yaml:"uppercase_keys"`
	MaxDescription   int      `yaml:"max_description"`
}

// S3Config configures s3:// input resources.
type S3Config struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// HTTPConfig configures http(s):// input resources.
type HTTPConfig struct {
	Timeout     time.Duration     `yaml:"timeout"`
	Retries     int               `yaml:"retries"`
	RetryDelay  time.Duration     `yaml:"retry_delay"`
	BearerToken string            `yaml:"bearer_token"`
	Username    string            `yaml:"username"` // basic auth, ignored when bearer_token is set
	Password    string            `yaml:"password"`
	Headers     map[string]string `yaml:"headers"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	Development bool     `yaml:"development"`
	OutputPaths []string `yaml:"output_paths"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// ReportsConfig configures the skip reports. Empty paths disable a report.
type ReportsConfig struct {
	RejectFile      string `yaml:"reject_file"`
	SkipReport      string `yaml:"skip_report"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
	MongoMaxSkips   int    `yaml:"mongo_max_skips"`
}

// Load reads path, substitutes ${VAR} references from the environment, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is an operator-supplied flag
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with only defaults set.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = 30 * time.Second
	}

	if c.Import.InputResource == "" {
		c.Import.InputResource = "file:/data/transactions-source.txt"
	}
	if c.Import.ChunkSize == 0 {
		c.Import.ChunkSize = 100
	}
	if c.Import.SkipLimit == nil {
		limit := int64(500)
		c.Import.SkipLimit = &limit
	}
	if c.Import.Delimiter == "" {
		c.Import.Delimiter = "|"
	}
	if c.Import.LinesToSkip == nil {
		one := 1
		c.Import.LinesToSkip = &one
	}
	if c.Import.DateLayout == "" {
		c.Import.DateLayout = "2006-01-02"
	}
	if c.Import.TimeLayout == "" {
		c.Import.TimeLayout = "15:04:05"
	}
	if c.Import.PreviewLines == 0 {
		c.Import.PreviewLines = 10
	}
	if c.Import.MaxLineSize == 0 {
		c.Import.MaxLineSize = 1024 * 1024
	}

	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
	if c.HTTP.Retries == 0 {
		c.HTTP.Retries = 3
	}
	if c.HTTP.RetryDelay == 0 {
		c.HTTP.RetryDelay = time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	if c.Reports.MongoDatabase == "" {
		c.Reports.MongoDatabase = "trximport"
	}
	if c.Reports.MongoCollection == "" {
		c.Reports.MongoCollection = "runs"
	}
	if c.Reports.MongoMaxSkips == 0 {
		c.Reports.MongoMaxSkips = 1000
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres", "pgx", "mysql", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, errors.New("database.max_idle_conns cannot exceed database.max_open_conns"))
	}
	if c.Import.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("import.chunk_size must be positive, got %d", c.Import.ChunkSize))
	}
	if c.Import.SkipLimit != nil && *c.Import.SkipLimit < 0 {
		errs = append(errs, fmt.Errorf("import.skip_limit cannot be negative, got %d", *c.Import.SkipLimit))
	}
	if c.Import.StartLine < 0 {
		errs = append(errs, fmt.Errorf("import.start_line cannot be negative, got %d", c.Import.StartLine))
	}
	if c.Import.LinesToSkip != nil && *c.Import.LinesToSkip < 0 {
		errs = append(errs, errors.New("import.lines_to_skip cannot be negative"))
	}
	if c.Import.MaxDescription < 0 {
		errs = append(errs, errors.New("import.max_description cannot be negative"))
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		errs = append(errs, errors.New("s3.access_key_id and s3.secret_access_key must be set together"))
	}
	if c.Reports.MongoMaxSkips < 0 {
		errs = append(errs, errors.New("reports.mongo_max_skips cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		name, def, hasDefault := strings.Cut(content[start+2:end], ":-")
		value, ok := os.LookupEnv(name)
		if (!ok || value == "") && hasDefault {
			value = def
		}
		b.WriteString(content[:start])
		b.WriteString(value)
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
