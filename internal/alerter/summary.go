// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package alerter

import (
	"context"
	"fmt"
	"time"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
	"github.com/buffalogs/buffalogs/internal/storage"
)

// Summary frequencies accepted by the scheduled summary task.
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// summaryChannel is implemented by channels that can carry a rendered
// (title, body) pair outside the per-alert flow.
type summaryChannel interface {
	SendText(ctx context.Context, title, body string) error
}

// BuildSummary aggregates the alerts created in the reporting period
// ending at now. An unknown frequency is a validation error.
func BuildSummary(ctx context.Context, store *storage.Store, frequency string, now time.Time) (*SummaryReport, error) {
	var span time.Duration
	switch frequency {
	case FrequencyDaily:
		span = 24 * time.Hour
	case FrequencyWeekly:
		span = 7 * 24 * time.Hour
	default:
		return nil, fmt.Errorf("%w: unknown summary frequency %q", models.ErrValidation, frequency)
	}

	start := now.Add(-span)
	alerts, err := store.ListAlertsBetween(ctx, start, now)
	if err != nil {
		return nil, err
	}

	report := &SummaryReport{
		Frequency: frequency,
		Start:     start.UTC().Format("2006-01-02 15:04"),
		End:       now.UTC().Format("2006-01-02 15:04"),
		Total:     len(alerts),
		PerUser:   make(map[string]int),
		PerKind:   make(map[models.AlertKind]int),
	}
	for _, a := range alerts {
		report.PerUser[a.Username]++
		report.PerKind[a.Name]++
	}
	return report, nil
}

// DispatchSummary renders the report with the summary template and sends
// it through every active channel that can carry free-form text.
func (d *Dispatcher) DispatchSummary(ctx context.Context, report *SummaryReport) error {
	cfg, err := config.LoadAlerting(d.path)
	if err != nil {
		return err
	}
	title, body := FormatSummary(report)

	log := logging.Ctx(ctx)
	for _, name := range cfg.ActiveAlerters {
		channel, err := d.newChannel(name, cfg)
		if err != nil {
			log.Error().Err(err).Str("channel", name).Msg("skipping misconfigured alerter channel")
			continue
		}
		sc, ok := channel.(summaryChannel)
		if !ok {
			log.Debug().Str("channel", name).Msg("channel does not support summaries")
			continue
		}
		if err := sc.SendText(ctx, title, body); err != nil {
			log.Error().Err(err).Str("channel", name).Msg("summary delivery failed")
			continue
		}
		log.Info().Str("channel", name).Str("frequency", report.Frequency).Msg("summary delivered")
	}
	return nil
}
