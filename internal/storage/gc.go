// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

// GCResult reports how many rows each retention pass removed.
type GCResult struct {
	Users   int64
	Logins  int64
	Alerts  int64
	UserIPs int64
}

// RunGC deletes rows whose updated timestamp is older than the per-kind
// retention from the policy. User deletion cascades to that user's logins,
// alerts, and IPs; the per-kind deletes then trim stale children of users
// that are themselves still active. Idempotent: a second run with an
// unchanged clock deletes nothing.
func (s *Store) RunGC(ctx context.Context, policy models.PolicyConfig, now time.Time) (GCResult, error) {
	var res GCResult

	cutoff := func(days int) string {
		return encodeTime(now.AddDate(0, 0, -days))
	}

	del := func(query, cutoff string) (int64, error) {
		r, err := s.q.ExecContext(ctx, query, cutoff)
		if err != nil {
			return 0, fmt.Errorf("%w: gc: %v", models.ErrStorage, err)
		}
		n, _ := r.RowsAffected()
		return n, nil
	}

	var err error
	if res.Users, err = del(
		`DELETE FROM users WHERE updated < ?`, cutoff(policy.UserMaxDays)); err != nil {
		return res, err
	}
	if res.Logins, err = del(
		`DELETE FROM logins WHERE updated < ?`, cutoff(policy.LoginMaxDays)); err != nil {
		return res, err
	}
	if res.Alerts, err = del(
		`DELETE FROM alerts WHERE updated < ?`, cutoff(policy.AlertMaxDays)); err != nil {
		return res, err
	}
	if res.UserIPs, err = del(
		`DELETE FROM user_ips WHERE updated < ?`, cutoff(policy.IPMaxDays)); err != nil {
		return res, err
	}

	logging.Ctx(ctx).Info().
		Int64("users", res.Users).
		Int64("logins", res.Logins).
		Int64("alerts", res.Alerts).
		Int64("user_ips", res.UserIPs).
		Msg("retention gc completed")
	return res, nil
}
