// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/buffalogs/buffalogs/internal/models"
)

// GetPolicyConfig returns the singleton policy row, or the defaults when
// the row is absent.
func (s *Store) GetPolicyConfig(ctx context.Context) (models.PolicyConfig, error) {
	var (
		data             string
		created, updated string
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT data, created, updated FROM policy_config WHERE id = ?`,
		models.PolicyConfigID).Scan(&data, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultPolicyConfig(), nil
	}
	if err != nil {
		return models.PolicyConfig{}, fmt.Errorf("%w: policy config: %v", models.ErrStorage, err)
	}

	cfg := models.DefaultPolicyConfig()
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return models.PolicyConfig{}, fmt.Errorf("%w: policy config decode: %v", models.ErrStorage, err)
	}
	cfg.ID = models.PolicyConfigID
	cfg.CreatedAt = decodeTime(created)
	cfg.UpdatedAt = decodeTime(updated)
	return cfg, nil
}

// SavePolicyConfig upserts the singleton policy row.
func (s *Store) SavePolicyConfig(ctx context.Context, cfg models.PolicyConfig, now time.Time) error {
	cfg.ID = models.PolicyConfigID
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: policy config encode: %v", models.ErrStorage, err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO policy_config (id, data, created, updated) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated = excluded.updated`,
		models.PolicyConfigID, string(raw), encodeTime(now), encodeTime(now))
	if err != nil {
		return fmt.Errorf("%w: policy config save: %v", models.ErrStorage, err)
	}
	return nil
}

// staleClaimAge is how long an in-flight claim may sit before another
// worker is allowed to take it over. A claim that old means the holder
// crashed between claim and release.
const staleClaimAge = 2 * time.Hour

// ClaimTask atomically claims the single-flight slot for (task, mode) and
// records the window start. A second worker's claim fails with ErrTaskBusy
// and leaves no side effects, unless the existing claim was taken more
// than staleClaimAge before now, in which case it is taken over.
func (s *Store) ClaimTask(ctx context.Context, task string, mode models.ExecutionMode, windowStart, now time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO task_settings (task_name, execution_mode, start_date, in_flight, claimed_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(task_name, execution_mode) DO UPDATE
			SET start_date = excluded.start_date, in_flight = 1, claimed_at = excluded.claimed_at
			WHERE task_settings.in_flight = 0 OR task_settings.claimed_at < ?`,
		task, mode, encodeTime(windowStart), encodeTime(now), encodeTime(now.Add(-staleClaimAge)))
	if err != nil {
		return fmt.Errorf("%w: claim task: %v", models.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: claim task: %v", models.ErrStorage, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", models.ErrTaskBusy, task, mode)
	}
	return nil
}

// ReleaseTask releases the single-flight claim and records the watermark
// end. On success end is the window end; on failure or cancellation the
// caller passes the window start so the window is retried.
func (s *Store) ReleaseTask(ctx context.Context, task string, mode models.ExecutionMode, end time.Time) error {
	if _, err := s.q.ExecContext(ctx, `
		UPDATE task_settings SET end_date = ?, in_flight = 0
		WHERE task_name = ? AND execution_mode = ?`,
		encodeTime(end), task, mode); err != nil {
		return fmt.Errorf("%w: release task: %v", models.ErrStorage, err)
	}
	return nil
}

// GetTaskSettings returns the watermark row for (task, mode), or nil if
// the task has never run.
func (s *Store) GetTaskSettings(ctx context.Context, task string, mode models.ExecutionMode) (*models.TaskSettings, error) {
	var (
		ts         models.TaskSettings
		start, end string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, task_name, execution_mode, start_date, end_date, in_flight
		FROM task_settings WHERE task_name = ? AND execution_mode = ?`,
		task, mode).Scan(&ts.ID, &ts.TaskName, &ts.ExecutionMode, &start, &end, &ts.InFlight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: task settings: %v", models.ErrStorage, err)
	}
	ts.StartDate = decodeTime(start)
	ts.EndDate = decodeTime(end)
	return &ts, nil
}
