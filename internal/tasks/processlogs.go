// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/metrics"
	"github.com/buffalogs/buffalogs/internal/models"
)

// ProcessLogs runs the ingestion-and-detection pipeline over the windows
// the watermark is behind by, at most MaxCatchupWindows per invocation.
// A watermark older than RestartThreshold jumps forward to the newest
// full window instead of replaying days of history.
func (r *Runner) ProcessLogs(ctx context.Context, mode models.ExecutionMode) error {
	sched := r.cfg.Scheduler
	now := r.now()
	limit := now.Add(-sched.TrailingGap)

	settings, err := r.store.GetTaskSettings(ctx, models.TaskProcessLogs, mode)
	if err != nil {
		return err
	}

	start := limit.Add(-sched.WindowLength)
	if settings != nil && !settings.EndDate.IsZero() {
		if now.Sub(settings.EndDate) < sched.RestartThreshold {
			start = settings.EndDate
		} else {
			logging.Ctx(ctx).Warn().
				Time("watermark", settings.EndDate).
				Msg("watermark too old, jumping to the newest window")
		}
	}

	for i := 0; i < sched.MaxCatchupWindows; i++ {
		end := start.Add(sched.WindowLength)
		if end.After(limit) {
			break
		}
		if err := r.processWindow(ctx, mode, start, end); err != nil {
			return err
		}
		start = end
	}
	return nil
}

// processWindow ingests and runs detection for one [start, end) window
// under the single-flight claim. An ingestion failure leaves the
// watermark at start so the window is retried next invocation.
func (r *Runner) processWindow(ctx context.Context, mode models.ExecutionMode, start, end time.Time) error {
	return r.runExclusive(ctx, models.TaskProcessLogs, mode, start, end, func(ctx context.Context) error {
		began := time.Now()
		log := logging.Ctx(ctx)

		// Policy and ingestion config are re-read per window so operator
		// edits apply at the next window boundary, not mid-window.
		policy, err := r.store.GetPolicyConfig(ctx)
		if err != nil {
			return err
		}
		icfg, err := config.LoadIngestion(r.cfg.Files.Ingestion)
		if err != nil {
			return err
		}
		ing, err := r.newIngester(icfg)
		if err != nil {
			return err
		}

		users, err := ing.ListUsers(ctx, start, end)
		if err != nil {
			metrics.IngestionErrors.WithLabelValues(ing.Name()).Inc()
			return err
		}

		var logins, alerts int
		for _, username := range users {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			userLogins, err := ing.ListUserLogins(ctx, start, end, username)
			if err != nil {
				if errors.Is(err, models.ErrIngestion) {
					// One user's fetch failing must not sink the window.
					metrics.IngestionErrors.WithLabelValues(ing.Name()).Inc()
					log.Error().Err(err).Str("username", username).Msg("skipping user, ingestion failed")
					continue
				}
				return err
			}
			metrics.LoginsIngested.WithLabelValues(ing.Name()).Add(float64(len(userLogins)))

			emitted, err := r.engine.ProcessUser(ctx, username, userLogins, policy)
			if err != nil {
				return err
			}
			logins += len(userLogins)
			alerts += len(emitted)
			metrics.LoginsProcessed.Add(float64(len(userLogins)))
			for _, a := range emitted {
				metrics.AlertsEmitted.WithLabelValues(string(a.Name)).Inc()
				for _, tag := range a.FilterType {
					metrics.AlertsFiltered.WithLabelValues(string(tag)).Inc()
				}
			}
		}

		metrics.DetectionDuration.Observe(time.Since(began).Seconds())
		log.Info().
			Time("window_start", start).
			Time("window_end", end).
			Int("users", len(users)).
			Int("logins", logins).
			Int("alerts", alerts).
			Msg("window processed")
		return nil
	})
}
