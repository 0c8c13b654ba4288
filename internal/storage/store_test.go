// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buffalogs/buffalogs/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetOrCreateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u1, err := s.GetOrCreateUser(ctx, "alice", now)
	require.NoError(t, err)
	require.Equal(t, "alice", u1.Username)
	require.Equal(t, models.RiskTierNoRisk, u1.RiskScore)

	u2, err := s.GetOrCreateUser(ctx, "alice", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, u1.ID, u2.ID)
}

func TestUpsertLoginDeduplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user, err := s.GetOrCreateUser(ctx, "alice", now)
	require.NoError(t, err)

	login := &models.Login{
		UserID:    user.ID,
		EventID:   "ev-1",
		Index:     "cloud",
		IP:        "10.0.0.1",
		Timestamp: now,
		Latitude:  45.0,
		Longitude: 9.0,
		Country:   "Italy",
		UserAgent: "Mozilla/5.0",
	}
	created, err := s.UpsertLogin(ctx, login, now)
	require.NoError(t, err)
	require.True(t, created)

	// Same (user, index, country, agent): updated in place, not duplicated.
	second := *login
	second.EventID = "ev-2"
	second.IP = "10.0.0.2"
	second.Timestamp = now.Add(time.Hour)
	created, err = s.UpsertLogin(ctx, &second, now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, created)

	n, err := s.CountUserLogins(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	latest, err := s.LatestLogin(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "ev-2", latest.EventID)
	require.Equal(t, "10.0.0.2", latest.IP)

	// A different country is a new row.
	third := *login
	third.Country = "Japan"
	created, err = s.UpsertLogin(ctx, &third, now)
	require.NoError(t, err)
	require.True(t, created)

	n, err = s.CountUserLogins(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestUserIPAndFingerprints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user, err := s.GetOrCreateUser(ctx, "bob", now)
	require.NoError(t, err)

	has, err := s.UserHasIP(ctx, user.ID, "10.1.1.1")
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, s.AddUserIP(ctx, user.ID, "10.1.1.1", now))
	require.NoError(t, s.AddUserIP(ctx, user.ID, "10.1.1.1", now.Add(time.Minute)))

	has, err = s.UserHasIP(ctx, user.ID, "10.1.1.1")
	require.NoError(t, err)
	require.True(t, has)

	login := &models.Login{
		UserID: user.ID, Index: "cloud", IP: "10.1.1.1",
		Timestamp: now, Country: "Italy", UserAgent: "ua",
		DeviceFingerprint: "windows-10-desktop-chrome",
	}
	_, err = s.UpsertLogin(ctx, login, now)
	require.NoError(t, err)

	fps, err := s.UserFingerprints(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"windows-10-desktop-chrome"}, fps)
}

func TestAlertNotifiedAtMostOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user, err := s.GetOrCreateUser(ctx, "carol", now)
	require.NoError(t, err)

	alert := &models.Alert{
		UserID:      user.ID,
		Name:        models.AlertKindNewDevice,
		Description: "Login from a new device",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.InsertAlert(ctx, alert))
	require.NotZero(t, alert.ID)

	pending, err := s.ListAlertsToNotify(ctx, "slack")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.MarkAlertNotified(ctx, alert.ID, "slack", now))

	pending, err = s.ListAlertsToNotify(ctx, "slack")
	require.NoError(t, err)
	require.Empty(t, pending)

	// Other channels still see it.
	pending, err = s.ListAlertsToNotify(ctx, "telegram")
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestListAlertsToNotifySkipsFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user, err := s.GetOrCreateUser(ctx, "dave", now)
	require.NoError(t, err)

	filtered := &models.Alert{
		UserID: user.ID, Name: models.AlertKindNewCountry,
		CreatedAt: now, UpdatedAt: now,
	}
	filtered.AddFilter(models.FilterAllowedCountry)
	require.NoError(t, s.InsertAlert(ctx, filtered))

	pending, err := s.ListAlertsToNotify(ctx, "slack")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestClaimTaskSingleFlight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.ClaimTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, now, now)
	require.NoError(t, err)

	// Second claim while in flight fails.
	err = s.ClaimTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, now, now)
	require.ErrorIs(t, err, models.ErrTaskBusy)

	// Manual mode is a separate slot.
	err = s.ClaimTask(ctx, models.TaskProcessLogs, models.ExecutionModeManual, now, now)
	require.NoError(t, err)

	end := now.Add(30 * time.Minute)
	require.NoError(t, s.ReleaseTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, end))

	ts, err := s.GetTaskSettings(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic)
	require.NoError(t, err)
	require.False(t, ts.InFlight)
	require.WithinDuration(t, end, ts.EndDate, time.Second)

	// Released slot can be claimed again.
	err = s.ClaimTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, end, now)
	require.NoError(t, err)
}

func TestClaimTaskTakesOverStaleClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// A worker claims the slot and crashes before releasing.
	err := s.ClaimTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, now, now)
	require.NoError(t, err)

	// Half an hour later the claim is still fresh: busy.
	err = s.ClaimTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, now, now.Add(30*time.Minute))
	require.ErrorIs(t, err, models.ErrTaskBusy)

	// Three hours later the dead claim is taken over.
	err = s.ClaimTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, now, now.Add(3*time.Hour))
	require.NoError(t, err)

	ts, err := s.GetTaskSettings(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic)
	require.NoError(t, err)
	require.True(t, ts.InFlight)
}

func TestLatestLoginOrdersSubSecondTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 2, 26, 17, 8, 33, 0, time.UTC)

	user, err := s.GetOrCreateUser(ctx, "alice", base)
	require.NoError(t, err)

	// A whole-second timestamp and one half a second later. With a
	// variable-width encoding the whole-second row sorts lexically after
	// the fractional one ('Z' > '.') and wins the ORDER BY.
	whole := &models.Login{
		UserID: user.ID, EventID: "ev-whole", Index: "cloud", IP: "10.0.0.1",
		Timestamp: base, Latitude: 45.0, Longitude: 9.0,
		Country: "Italy", UserAgent: "Mozilla/5.0",
	}
	frac := &models.Login{
		UserID: user.ID, EventID: "ev-frac", Index: "cloud", IP: "10.0.0.2",
		Timestamp: base.Add(500 * time.Millisecond), Latitude: 35.6, Longitude: 139.7,
		Country: "Japan", UserAgent: "Mozilla/5.0",
	}
	_, err = s.UpsertLogin(ctx, whole, base)
	require.NoError(t, err)
	_, err = s.UpsertLogin(ctx, frac, frac.Timestamp)
	require.NoError(t, err)

	latest, err := s.LatestLogin(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "ev-frac", latest.EventID)
	require.True(t, latest.Timestamp.After(whole.Timestamp))

	fromJapan, err := s.LatestLoginFromCountry(ctx, user.ID, "Japan")
	require.NoError(t, err)
	require.Equal(t, "ev-frac", fromJapan.EventID)
}

func TestPolicyConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No row yet: defaults.
	p, err := s.GetPolicyConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, models.DefaultPolicyConfig().DistanceAcceptedKm, p.DistanceAcceptedKm)

	p.DistanceAcceptedKm = 250
	p.IgnoredUsers = []string{"svc-.*"}
	require.NoError(t, s.SavePolicyConfig(ctx, p, time.Now().UTC()))

	got, err := s.GetPolicyConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, 250.0, got.DistanceAcceptedKm)
	require.Equal(t, []string{"svc-.*"}, got.IgnoredUsers)
}

func TestRunGC(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -100)

	stale, err := s.GetOrCreateUser(ctx, "stale", old)
	require.NoError(t, err)
	fresh, err := s.GetOrCreateUser(ctx, "fresh", now)
	require.NoError(t, err)

	policy := models.DefaultPolicyConfig()
	res, err := s.RunGC(ctx, policy, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Users)

	gone, err := s.GetUserByUsername(ctx, "stale")
	require.NoError(t, err)
	require.Nil(t, gone)
	kept, err := s.GetUserByUsername(ctx, "fresh")
	require.NoError(t, err)
	require.NotNil(t, kept)
	require.Equal(t, fresh.ID, kept.ID)
	_ = stale

	// Idempotent: a second run deletes nothing.
	res, err = s.RunGC(ctx, policy, now)
	require.NoError(t, err)
	require.Zero(t, res.Users+res.Logins+res.Alerts+res.UserIPs)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.GetOrCreateUser(ctx, "ghost", now); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	u, err := s.GetUserByUsername(ctx, "ghost")
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestUpdateUserRisk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user, err := s.GetOrCreateUser(ctx, "eve", now)
	require.NoError(t, err)

	require.NoError(t, s.UpdateUserRisk(ctx, user.ID, models.RiskTierMedium, now))

	got, err := s.GetUserByUsername(ctx, "eve")
	require.NoError(t, err)
	require.Equal(t, models.RiskTierMedium, got.RiskScore)
}
