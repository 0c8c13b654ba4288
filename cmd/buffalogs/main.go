// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

// Package main is the entry point for the BuffaLogs daemon.
//
// BuffaLogs ingests authentication events from Elasticsearch, OpenSearch or
// Splunk, runs each user's logins through the anomaly detection state
// machine (impossible travel, new device, new/atypical country, anonymizer
// IPs), escalates user risk scores, and dispatches the resulting alerts to
// the configured notification channels.
//
// # Modes
//
// Without arguments the daemon runs the built-in scheduler and the
// metrics/health HTTP listener under a supervision tree:
//
//	buffalogs
//
// Individual pipeline entrypoints can be invoked one-shot, for operators
// driving BuffaLogs from cron or systemd timers:
//
//	buffalogs task process_logs
//	buffalogs task send_notifications
//	buffalogs task clean_models
//	buffalogs task alert_summary daily|weekly
//	buffalogs task check_blocklisted_logins
//
// One-shot runs use the Manual execution mode; the single-flight claim on
// the TaskSettings row keeps them from overlapping a scheduled run.
//
// # Configuration
//
// The application config is loaded via Koanf v2 with layered sources
// (highest priority wins): BUFFALOGS_* environment variables, config.yaml,
// built-in defaults. The operator-editable ingestion.json and alerting.json
// are re-read at every window, so edits apply without a restart.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/metrics"
	"github.com/buffalogs/buffalogs/internal/models"
	"github.com/buffalogs/buffalogs/internal/storage"
	"github.com/buffalogs/buffalogs/internal/tasks"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		logging.Error().Err(err).Msg("buffalogs exited with error")
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	store, err := storage.Open(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := tasks.NewRunner(store, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(args) > 0 && args[0] == "task" {
		return runManualTask(ctx, runner, args[1:])
	}

	return serve(ctx, cfg, runner)
}

// serve runs the scheduler loop and the metrics listener under a
// supervision tree until a termination signal arrives.
func serve(ctx context.Context, cfg *config.Config, runner *tasks.Runner) error {
	sup := suture.New("buffalogs", suture.Spec{
		EventHook: func(event suture.Event) {
			logging.Warn().
				Str("event", event.String()).
				Msg("supervisor event")
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
	})
	sup.Add(tasks.NewLoop(runner))
	sup.Add(metrics.NewServer(cfg.Server.Host, cfg.Server.Port))

	logging.Info().
		Str("database", cfg.Database.Path).
		Dur("window", cfg.Scheduler.WindowLength).
		Msg("buffalogs starting")

	err := sup.Serve(ctx)
	if err == context.Canceled {
		logging.Info().Msg("buffalogs stopped")
		return nil
	}
	return err
}

// runManualTask executes one entrypoint in Manual mode and exits.
func runManualTask(ctx context.Context, runner *tasks.Runner, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: task name required", models.ErrValidation)
	}
	ctx = logging.ContextWithNewCorrelationID(ctx)

	switch args[0] {
	case "process_logs":
		return runner.ProcessLogs(ctx, models.ExecutionModeManual)
	case "send_notifications":
		return runner.SendNotifications(ctx, models.ExecutionModeManual)
	case "clean_models":
		return runner.CleanModels(ctx, models.ExecutionModeManual)
	case "alert_summary":
		if len(args) < 2 {
			return fmt.Errorf("%w: alert_summary requires a frequency (daily|weekly)", models.ErrValidation)
		}
		return runner.ScheduledAlertSummary(ctx, models.ExecutionModeManual, args[1])
	case "check_blocklisted_logins":
		return runner.CheckBlocklistedLogins(ctx, models.ExecutionModeManual)
	default:
		return fmt.Errorf("%w: unknown task %q", models.ErrValidation, args[0])
	}
}
