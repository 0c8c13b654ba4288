// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package tasks

import (
	"context"

	"github.com/buffalogs/buffalogs/internal/alerter"
	"github.com/buffalogs/buffalogs/internal/models"
)

// SendNotifications runs one dispatch pass over the pending alerts.
func (r *Runner) SendNotifications(ctx context.Context, mode models.ExecutionMode) error {
	start := r.now()
	return r.runExclusive(ctx, models.TaskSendNotifications, mode, start, r.now(), func(ctx context.Context) error {
		return r.dispatcher.Run(ctx)
	})
}

// ScheduledAlertSummary aggregates the last day or week of alerts and
// delivers the report through the active channels. Frequencies other
// than daily or weekly fail fast.
func (r *Runner) ScheduledAlertSummary(ctx context.Context, mode models.ExecutionMode, frequency string) error {
	now := r.now()
	return r.runExclusive(ctx, models.TaskAlertSummary, mode, now, now, func(ctx context.Context) error {
		report, err := alerter.BuildSummary(ctx, r.store, frequency, now)
		if err != nil {
			return err
		}
		return r.dispatcher.DispatchSummary(ctx, report)
	})
}
