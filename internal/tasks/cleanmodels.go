// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package tasks

import (
	"context"

	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/metrics"
	"github.com/buffalogs/buffalogs/internal/models"
)

// CleanModels deletes rows whose updated timestamp fell behind the
// per-kind retention limits. Idempotent; a rerun deletes nothing new.
func (r *Runner) CleanModels(ctx context.Context, mode models.ExecutionMode) error {
	now := r.now()
	return r.runExclusive(ctx, models.TaskCleanModels, mode, now, now, func(ctx context.Context) error {
		policy, err := r.store.GetPolicyConfig(ctx)
		if err != nil {
			return err
		}
		result, err := r.store.RunGC(ctx, policy, now)
		if err != nil {
			return err
		}
		metrics.GCDeletedRows.WithLabelValues("users").Add(float64(result.Users))
		metrics.GCDeletedRows.WithLabelValues("logins").Add(float64(result.Logins))
		metrics.GCDeletedRows.WithLabelValues("alerts").Add(float64(result.Alerts))
		metrics.GCDeletedRows.WithLabelValues("user_ips").Add(float64(result.UserIPs))
		logging.Ctx(ctx).Info().
			Int64("users", result.Users).
			Int64("logins", result.Logins).
			Int64("alerts", result.Alerts).
			Int64("user_ips", result.UserIPs).
			Msg("retention gc done")
		return nil
	})
}
