// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

// Package tasks implements the scheduled entrypoints of the pipeline:
// ProcessLogs, SendNotifications, CleanModels, ScheduledAlertSummary and
// CheckBlocklistedLogins. Each entrypoint is single-flight per
// (task, execution mode) through the TaskSettings claim, so an external
// scheduler and a manual operator run can never overlap.
package tasks

import (
	"context"
	"time"

	"github.com/buffalogs/buffalogs/internal/alerter"
	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/detection"
	"github.com/buffalogs/buffalogs/internal/ingestion"
	"github.com/buffalogs/buffalogs/internal/metrics"
	"github.com/buffalogs/buffalogs/internal/models"
	"github.com/buffalogs/buffalogs/internal/storage"
)

// Runner wires the pipeline stages behind the scheduled entrypoints.
type Runner struct {
	store      *storage.Store
	cfg        *config.Config
	engine     *detection.Engine
	dispatcher *alerter.Dispatcher
	now        func() time.Time

	// newIngester is swappable in tests.
	newIngester func(cfg *config.IngestionConfig) (ingestion.Ingester, error)
}

// NewRunner builds a runner over the given store and application config.
func NewRunner(store *storage.Store, cfg *config.Config) *Runner {
	return &Runner{
		store:       store,
		cfg:         cfg,
		engine:      detection.NewEngine(store),
		dispatcher:  alerter.NewDispatcher(store, cfg.Files.Alerting),
		now:         time.Now,
		newIngester: ingestion.NewIngester,
	}
}

// runExclusive wraps fn in the single-flight claim for (task, mode). On
// success the watermark end is set to end; on failure or cancellation it
// stays at start so the unfinished window is retried, and the error
// surfaces.
func (r *Runner) runExclusive(
	ctx context.Context,
	task string,
	mode models.ExecutionMode,
	start, end time.Time,
	fn func(ctx context.Context) error,
) error {
	if err := r.store.ClaimTask(ctx, task, mode, start, r.now()); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		// Release with a background context: the claim must clear even
		// when the run was canceled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.store.ReleaseTask(releaseCtx, task, mode, start)
		metrics.TaskRuns.WithLabelValues(task, "error").Inc()
		return err
	}

	if err := r.store.ReleaseTask(ctx, task, mode, end); err != nil {
		return err
	}
	metrics.TaskRuns.WithLabelValues(task, "ok").Inc()
	return nil
}
