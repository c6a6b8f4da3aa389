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

package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aaronlmathis/trximport/core"
)

const namespace = "trximport"

// MetricsListener records run events as Prometheus metrics. Counters are cumulative
// across runs of the same process.
type MetricsListener struct {
	registry  *prometheus.Registry
	records   *prometheus.CounterVec
	skips     *prometheus.CounterVec
	txns      *prometheus.CounterVec
	chunkTime *prometheus.HistogramVec
	runs      *prometheus.CounterVec
	lastLine  prometheus.Gauge
	running   prometheus.Gauge
}

// NewMetricsListener creates a MetricsListener registered on its own registry.
func NewMetricsListener() *MetricsListener {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &MetricsListener{
		registry: reg,
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Records by outcome: read, written or filtered",
			},
			[]string{"outcome"},
		),
		skips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skips_total",
				Help:      "Skipped records by stage",
			},
			[]string{"stage"},
		),
		txns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Chunk transactions by result: commit or rollback",
			},
			[]string{"result"},
		),
		chunkTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chunk_duration_seconds",
				Help:      "Wall time per chunk",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"mode"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished runs by terminal state",
			},
			[]string{"state"},
		),
		lastLine: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_committed_line",
			Help:      "Last physical line committed by the most recent run",
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      "1 while a run is in progress",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *MetricsListener) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsListener) BeforeRun(core.RunInfo) {
	m.running.Set(1)
}

// AfterRun publishes the counters of the finished run.
func (m *MetricsListener) AfterRun(outcome *core.Outcome) {
	c := outcome.Counters
	m.records.WithLabelValues("read").Add(float64(c.Read))
	m.records.WithLabelValues("written").Add(float64(c.Written))
	m.records.WithLabelValues("filtered").Add(float64(c.Filtered))
	m.txns.WithLabelValues("commit").Add(float64(c.Commits))
	m.txns.WithLabelValues("rollback").Add(float64(c.Rollbacks))
	m.runs.WithLabelValues(string(outcome.State)).Inc()
	m.lastLine.Set(float64(outcome.LastCommittedLine))
	m.running.Set(0)
}

func (m *MetricsListener) OnSkip(rec core.SkipRecord) {
	m.skips.WithLabelValues(string(rec.Stage)).Inc()
}

func (m *MetricsListener) AfterChunk(info core.ChunkInfo) {
	mode := "bulk"
	if info.ScanBack {
		mode = "scan_back"
	}
	m.chunkTime.WithLabelValues(mode).Observe(info.Duration.Seconds())
}

// MetricsServer exposes a registry on /metrics.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a server for reg listening on addr.
func NewMetricsServer(addr string, reg *prometheus.Registry, logger *zap.Logger) *MetricsServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the HTTP handler serving /metrics.
func (s *MetricsServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves in a background goroutine until Shutdown.
func (s *MetricsServer) Start() {
	go func() {
		s.logger.Info("metrics server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

// Shutdown stops the server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
