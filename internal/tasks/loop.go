// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

// Loop is the built-in scheduler: it ticks the pipeline entrypoints in
// Automatic mode. Operators who prefer an external scheduler (cron,
// systemd timers) can disable it and invoke the same entrypoints through
// the CLI; the single-flight claim keeps both from overlapping.
//
// Loop implements suture.Service.
type Loop struct {
	runner *Runner
}

// NewLoop builds the periodic scheduler over the runner.
func NewLoop(runner *Runner) *Loop {
	return &Loop{runner: runner}
}

// Serve ticks ProcessLogs and SendNotifications every window, and the
// housekeeping tasks daily. Returns when ctx is canceled.
func (l *Loop) Serve(ctx context.Context) error {
	window := l.runner.cfg.Scheduler.WindowLength

	windowTicker := time.NewTicker(window)
	defer windowTicker.Stop()
	dailyTicker := time.NewTicker(24 * time.Hour)
	defer dailyTicker.Stop()

	// First pass immediately so a restart doesn't wait a full window.
	l.runPipeline(ctx)

	var daysSinceWeekly int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-windowTicker.C:
			l.runPipeline(ctx)
		case <-dailyTicker.C:
			l.runTask(ctx, models.TaskCleanModels, func(ctx context.Context) error {
				return l.runner.CleanModels(ctx, models.ExecutionModeAutomatic)
			})
			l.runTask(ctx, models.TaskCheckBlocklistedLogins, func(ctx context.Context) error {
				return l.runner.CheckBlocklistedLogins(ctx, models.ExecutionModeAutomatic)
			})
			l.runTask(ctx, models.TaskAlertSummary, func(ctx context.Context) error {
				return l.runner.ScheduledAlertSummary(ctx, models.ExecutionModeAutomatic, "daily")
			})
			daysSinceWeekly++
			if daysSinceWeekly >= 7 {
				daysSinceWeekly = 0
				l.runTask(ctx, models.TaskAlertSummary, func(ctx context.Context) error {
					return l.runner.ScheduledAlertSummary(ctx, models.ExecutionModeAutomatic, "weekly")
				})
			}
		}
	}
}

func (l *Loop) runPipeline(ctx context.Context) {
	l.runTask(ctx, models.TaskProcessLogs, func(ctx context.Context) error {
		return l.runner.ProcessLogs(ctx, models.ExecutionModeAutomatic)
	})
	l.runTask(ctx, models.TaskSendNotifications, func(ctx context.Context) error {
		return l.runner.SendNotifications(ctx, models.ExecutionModeAutomatic)
	})
}

// runTask logs and absorbs task errors: a failed tick never kills the
// loop, and a busy claim just means another invocation is running.
func (l *Loop) runTask(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	runCtx := logging.ContextWithNewCorrelationID(ctx)
	if err := fn(runCtx); err != nil {
		if errors.Is(err, models.ErrTaskBusy) {
			logging.Ctx(runCtx).Debug().Str("task", name).Msg("task busy, skipping tick")
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.Ctx(runCtx).Error().Err(err).Str("task", name).Msg("task failed")
	}
}

func (l *Loop) String() string { return "task-loop" }
