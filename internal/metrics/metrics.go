// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

// Package metrics exposes Prometheus instrumentation for the detection
// and alerting pipeline, served on /metrics next to a liveness probe.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	LoginsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_logins_ingested_total",
			Help: "Normalized login events fetched per ingestion source",
		},
		[]string{"source"},
	)

	IngestionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_ingestion_errors_total",
			Help: "Failed ingestion queries per source",
		},
		[]string{"source"},
	)

	// Detection metrics
	LoginsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buffalogs_logins_processed_total",
			Help: "Login events run through the detection state machine",
		},
	)

	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_alerts_emitted_total",
			Help: "Alerts persisted, by alert name",
		},
		[]string{"name"},
	)

	AlertsFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_alerts_filtered_total",
			Help: "Alerts suppressed by policy, by filter tag",
		},
		[]string{"filter"},
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "buffalogs_detection_window_duration_seconds",
			Help:    "Wall time of one ProcessLogs window",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Dispatch metrics
	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_dispatch_attempts_total",
			Help: "Alert delivery attempts per channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// Task metrics
	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_task_runs_total",
			Help: "Scheduled task executions per task and outcome",
		},
		[]string{"task", "outcome"},
	)

	GCDeletedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffalogs_gc_deleted_rows_total",
			Help: "Rows removed by retention GC, by table",
		},
		[]string{"table"},
	)
)
