// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

// Package risk recomputes a user's risk tier when a non-filtered alert is
// inserted, and emits the cascading UserRiskThreshold alert on upward tier
// transitions that cross the configured threshold.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/buffalogs/buffalogs/internal/alertfilter"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
	"github.com/buffalogs/buffalogs/internal/storage"
)

// Update recomputes the tier for user after the insert of trigger. It runs
// inside the same transaction as the triggering alert; createdAt orders the
// derived alert after its trigger within the window.
//
// The derived alert goes through the filter but is terminal: it never
// re-enters risk update, so there is no fixpoint to chase.
func Update(
	ctx context.Context,
	store *storage.Store,
	eval *alertfilter.Evaluator,
	user *models.User,
	trigger *models.Alert,
	policy models.PolicyConfig,
	createdAt time.Time,
) (*models.Alert, error) {
	if trigger.IsFiltered {
		// Filtered alerts must never move the risk score.
		return nil, nil
	}

	n, err := store.CountUserAlertsByKinds(ctx, user.ID, policy.RiskScoreIncrementAlerts)
	if err != nil {
		return nil, err
	}

	prevTier := user.RiskScore
	newTier := models.TierForAlertCount(n)
	if newTier == prevTier {
		return nil, nil
	}

	if err := store.UpdateUserRisk(ctx, user.ID, newTier, createdAt); err != nil {
		return nil, err
	}
	user.RiskScore = newTier

	logging.Ctx(ctx).Info().
		Str("username", user.Username).
		Str("previous", string(prevTier)).
		Str("current", string(newTier)).
		Int("relevant_alerts", n).
		Msg("user risk tier updated")

	if newTier.Level() <= prevTier.Level() {
		return nil, nil
	}
	if newTier.Level() < policy.ThresholdUserRiskAlert.Level() {
		return nil, nil
	}

	derived := &models.Alert{
		UserID:       user.ID,
		Username:     user.Username,
		Name:         models.AlertKindUserRiskThreshold,
		LoginRawData: trigger.LoginRawData,
		Description: fmt.Sprintf(
			"User risk_score increased for user %s, who changed risk_score from %s to %s",
			user.Username, prevTier, newTier),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	eval.Apply(derived, user)

	if err := store.InsertAlert(ctx, derived); err != nil {
		return nil, err
	}
	return derived, nil
}
