// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package alerter

import (
	"context"
	"time"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/metrics"
	"github.com/buffalogs/buffalogs/internal/storage"
)

// Dispatcher fans pending alerts out to the active channels. It re-reads
// alerting.json on every run so operator edits take effect without a
// restart, and it flips notified_status[channel] only for alerts the
// channel reported delivered.
type Dispatcher struct {
	store *storage.Store
	path  string
	now   func() time.Time

	// newChannel is swappable in tests.
	newChannel func(name string, cfg *config.AlertingConfig) (Channel, error)
}

// NewDispatcher creates a dispatcher over the given store, reading the
// alerting config from path.
func NewDispatcher(store *storage.Store, path string) *Dispatcher {
	return &Dispatcher{
		store:      store,
		path:       path,
		now:        time.Now,
		newChannel: New,
	}
}

// Run executes one dispatch pass. A broken channel config or a channel
// outage is logged and skipped; the run only fails on config-file or
// storage errors, so one bad sink never blocks the others.
func (d *Dispatcher) Run(ctx context.Context) error {
	cfg, err := config.LoadAlerting(d.path)
	if err != nil {
		return err
	}

	log := logging.Ctx(ctx)
	for _, name := range cfg.ActiveAlerters {
		channel, err := d.newChannel(name, cfg)
		if err != nil {
			log.Error().Err(err).Str("channel", name).Msg("skipping misconfigured alerter channel")
			continue
		}

		pending, err := d.store.ListAlertsToNotify(ctx, channel.Name())
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			continue
		}

		delivered, notifyErr := channel.Notify(ctx, pending)
		for _, alert := range delivered {
			if err := d.store.MarkAlertNotified(ctx, alert.ID, channel.Name(), d.now()); err != nil {
				return err
			}
			metrics.DispatchAttempts.WithLabelValues(channel.Name(), "delivered").Inc()
		}
		if notifyErr != nil {
			metrics.DispatchAttempts.WithLabelValues(channel.Name(), "failed").Inc()
			log.Error().Err(notifyErr).
				Str("channel", channel.Name()).
				Int("pending", len(pending)).
				Int("delivered", len(delivered)).
				Msg("alert dispatch incomplete")
			continue
		}
		log.Info().
			Str("channel", channel.Name()).
			Int("delivered", len(delivered)).
			Msg("alerts dispatched")
	}
	return nil
}
