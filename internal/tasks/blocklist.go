// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package tasks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/buffalogs/buffalogs/internal/alertfilter"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
	"github.com/buffalogs/buffalogs/internal/risk"
	"github.com/buffalogs/buffalogs/internal/storage"
)

// CheckBlocklistedLogins scans the last 24 hours of stored logins against
// the operator's IP blocklist file and raises an impossible-travel-named
// alert for every hit. Synthesized alerts traverse the same filter and
// risk path as detection alerts.
func (r *Runner) CheckBlocklistedLogins(ctx context.Context, mode models.ExecutionMode) error {
	now := r.now()
	return r.runExclusive(ctx, models.TaskCheckBlocklistedLogins, mode, now, now, func(ctx context.Context) error {
		blocked, err := loadBlocklist(r.cfg.Files.Blocklist)
		if err != nil {
			return err
		}
		if len(blocked) == 0 {
			return nil
		}

		logins, err := r.store.ListLoginsSince(ctx, now.Add(-24*time.Hour))
		if err != nil {
			return err
		}

		policy, err := r.store.GetPolicyConfig(ctx)
		if err != nil {
			return err
		}
		eval := alertfilter.NewEvaluator(policy)

		var raised int
		for _, login := range logins {
			if _, hit := blocked[login.IP]; !hit {
				continue
			}
			if err := r.raiseBlocklistAlert(ctx, eval, login, policy, now); err != nil {
				return err
			}
			raised++
		}
		if raised > 0 {
			logging.Ctx(ctx).Warn().Int("alerts", raised).Msg("blocklisted logins found")
		}
		return nil
	})
}

func (r *Runner) raiseBlocklistAlert(
	ctx context.Context,
	eval *alertfilter.Evaluator,
	login storage.LoginWithUser,
	policy models.PolicyConfig,
	now time.Time,
) error {
	return r.store.WithTx(ctx, func(tx *storage.Store) error {
		user, err := tx.GetUserByUsername(ctx, login.Username)
		if err != nil {
			return err
		}
		if user == nil {
			// Owner was garbage collected between the join and now.
			return nil
		}

		alert := &models.Alert{
			UserID:   user.ID,
			Username: user.Username,
			Name:     models.AlertKindImpTravel,
			Description: fmt.Sprintf(
				"Login from blocklisted IP %s for user %s from %s",
				login.IP, user.Username, login.Country),
			IsVip: policy.IsVip(user.Username),
			LoginRawData: models.LoginRawData{
				Timestamp: login.Timestamp,
				EventID:   login.EventID,
				Index:     login.Index,
				IP:        login.IP,
				Country:   login.Country,
				Latitude:  login.Latitude,
				Longitude: login.Longitude,
				UserAgent: login.UserAgent,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		eval.Apply(alert, user)
		if err := tx.InsertAlert(ctx, alert); err != nil {
			return err
		}
		if alert.IsFiltered {
			return nil
		}
		_, err = risk.Update(ctx, tx, eval, user, alert, policy, now.Add(time.Millisecond))
		return err
	})
}

// loadBlocklist parses the newline-separated IP list. Comments (#) and
// blank lines are skipped; a missing file is an empty blocklist, not an
// error, so a fresh deployment runs clean.
func loadBlocklist(path string) (map[string]struct{}, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: blocklist %s: %v", models.ErrConfig, path, err)
	}
	defer f.Close()

	blocked := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		blocked[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: blocklist %s: %v", models.ErrConfig, path, err)
	}
	return blocked, nil
}
