// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

// Package detection implements the per-login state machine: it consumes a
// user's normalized logins for one ingestion window in ascending timestamp
// order, mutates the user's login/IP/device history, and emits alerts.
//
// All mutations for one user in one window run inside a single storage
// transaction, so a crash leaves the derived state consistent and
// re-running the window is idempotent.
package detection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/buffalogs/buffalogs/internal/alertfilter"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
	"github.com/buffalogs/buffalogs/internal/risk"
	"github.com/buffalogs/buffalogs/internal/storage"
)

// anonymizerCategory is the intelligence category flagging anonymizer IPs.
const anonymizerCategory = "anonymizer"

// Engine runs detection for one user at a time. It is safe for concurrent
// use across users; within a user the caller must serialize windows.
type Engine struct {
	store *storage.Store
	now   func() time.Time
}

// NewEngine creates a detection engine over the root store.
func NewEngine(store *storage.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// windowClock hands out strictly monotonic created timestamps for the
// alerts of one user-window, so ordering survives storage round-trips.
type windowClock struct {
	base time.Time
	seq  int
}

func (c *windowClock) next() time.Time {
	t := c.base.Add(time.Duration(c.seq) * time.Millisecond)
	c.seq++
	return t
}

// ProcessUser runs the state machine over the user's logins for one
// window and returns the alerts that were persisted (derived risk alerts
// included). Storage errors abort and roll back the whole user-window.
func (e *Engine) ProcessUser(
	ctx context.Context,
	username string,
	logins []models.NormalizedLogin,
	policy models.PolicyConfig,
) ([]*models.Alert, error) {
	if len(logins) == 0 {
		return nil, nil
	}

	sort.SliceStable(logins, func(i, j int) bool {
		return logins[i].Timestamp.Before(logins[j].Timestamp)
	})

	var emitted []*models.Alert
	err := e.store.WithTx(ctx, func(tx *storage.Store) error {
		now := e.now()
		clock := &windowClock{base: now}
		eval := alertfilter.NewEvaluator(policy)

		user, err := tx.GetOrCreateUser(ctx, username, now)
		if err != nil {
			return err
		}

		for i := range logins {
			alerts, err := e.processLogin(ctx, tx, eval, user, &logins[i], policy, clock)
			if err != nil {
				return err
			}
			emitted = append(emitted, alerts...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(emitted) > 0 {
		logging.Ctx(ctx).Info().
			Str("username", username).
			Int("alerts", len(emitted)).
			Msg("detection emitted alerts")
	}
	return emitted, nil
}

// processLogin applies the per-login checks in order. Checks that emit an
// alert do not short-circuit later checks; only the geo guard and the
// first-login-for-index bootstrap do.
func (e *Engine) processLogin(
	ctx context.Context,
	tx *storage.Store,
	eval *alertfilter.Evaluator,
	user *models.User,
	login *models.NormalizedLogin,
	policy models.PolicyConfig,
	clock *windowClock,
) ([]*models.Alert, error) {
	var alerts []*models.Alert

	emit := func(kind models.AlertKind, description string, enrichment *models.TravelEnrichment) error {
		chain, err := e.emitAlert(ctx, tx, eval, user, login, policy, clock, kind, description, enrichment)
		if err != nil {
			return err
		}
		alerts = append(alerts, chain...)
		return nil
	}

	if login.IntelligenceCategory == anonymizerCategory {
		if err := emit(models.AlertKindAnonymousIPLogin,
			fmt.Sprintf("Login from an anonymizer IP %s for user %s", login.IP, user.Username),
			nil); err != nil {
			return nil, err
		}
	}

	// Geo guard: no coordinates, no further checks, login not persisted.
	if login.Latitude == nil || login.Longitude == nil {
		return alerts, nil
	}
	lat, lon := *login.Latitude, *login.Longitude
	fingerprint := Fingerprint(login.UserAgent)

	hasIndex, err := tx.UserHasLoginWithIndex(ctx, user.ID, login.Index)
	if err != nil {
		return nil, err
	}
	if !hasIndex {
		// Bootstrap for a new source bucket: record, never alert.
		if err := e.persistLogin(ctx, tx, user, login, lat, lon, fingerprint); err != nil {
			return nil, err
		}
		if err := tx.AddUserIP(ctx, user.ID, login.IP, e.now()); err != nil {
			return nil, err
		}
		return alerts, nil
	}

	// Device check. Zero known devices means the user predates
	// fingerprinting; skip instead of alerting on everything.
	fingerprints, err := tx.UserFingerprints(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(fingerprints) > 0 && !containsString(fingerprints, fingerprint) {
		if err := emit(models.AlertKindNewDevice,
			fmt.Sprintf("Login from a new device %s for user %s", fingerprint, user.Username),
			nil); err != nil {
			return nil, err
		}
	}

	if err := e.checkCountry(ctx, tx, emit, user, login, policy); err != nil {
		return nil, err
	}

	if err := e.checkImpossibleTravel(ctx, tx, emit, user, login, lat, lon, policy); err != nil {
		return nil, err
	}

	if err := e.persistLogin(ctx, tx, user, login, lat, lon, fingerprint); err != nil {
		return nil, err
	}
	return alerts, nil
}

type emitFunc func(kind models.AlertKind, description string, enrichment *models.TravelEnrichment) error

// checkCountry emits NewCountry for a first sighting and AtypicalCountry
// when the country was last seen too long ago.
func (e *Engine) checkCountry(
	ctx context.Context,
	tx *storage.Store,
	emit emitFunc,
	user *models.User,
	login *models.NormalizedLogin,
	policy models.PolicyConfig,
) error {
	hasCountry, err := tx.UserHasCountry(ctx, user.ID, login.Country)
	if err != nil {
		return err
	}
	if !hasCountry {
		return emit(models.AlertKindNewCountry,
			fmt.Sprintf("Login from new country %s for user %s", login.Country, user.Username),
			nil)
	}

	if policy.AtypicalCountryDays <= 0 {
		return nil
	}
	prev, err := tx.LatestLoginFromCountry(ctx, user.ID, login.Country)
	if err != nil {
		return err
	}
	if prev == nil {
		return nil
	}
	staleAfter := time.Duration(policy.AtypicalCountryDays) * 24 * time.Hour
	if login.Timestamp.Sub(prev.Timestamp) > staleAfter {
		return emit(models.AlertKindAtypicalCountry,
			fmt.Sprintf("Login from atypical country %s for user %s", login.Country, user.Username),
			nil)
	}
	return nil
}

// checkImpossibleTravel runs the travel check for logins from an IP the
// user has never used before. The IP joins the user's set regardless of
// whether the alert fires.
func (e *Engine) checkImpossibleTravel(
	ctx context.Context,
	tx *storage.Store,
	emit emitFunc,
	user *models.User,
	login *models.NormalizedLogin,
	lat, lon float64,
	policy models.PolicyConfig,
) error {
	known, err := tx.UserHasIP(ctx, user.ID, login.IP)
	if err != nil {
		return err
	}
	if known {
		return nil
	}

	prev, err := tx.LatestLogin(ctx, user.ID)
	if err != nil {
		return err
	}
	if prev != nil {
		distanceKm := HaversineDistanceKm(prev.Latitude, prev.Longitude, lat, lon)
		if distanceKm > policy.DistanceAcceptedKm {
			hours := login.Timestamp.Sub(prev.Timestamp).Hours()
			if hours == 0 {
				hours = 0.001
			}
			velocity := distanceKm / hours
			if velocity > policy.VelAcceptedKmH {
				avgSpeed := int(math.Round(velocity))
				enrichment := &models.TravelEnrichment{
					StartCountry: prev.Country,
					StartLat:     prev.Latitude,
					StartLon:     prev.Longitude,
					AvgSpeed:     avgSpeed,
				}
				description := fmt.Sprintf(
					"Impossible travel detected for user %s: login from %s while the previous login was from %s, %.0f Km distance covered at %d Km/h",
					user.Username, login.Country, prev.Country, distanceKm, avgSpeed)
				if err := emit(models.AlertKindImpTravel, description, enrichment); err != nil {
					return err
				}
			}
		}
	}

	return tx.AddUserIP(ctx, user.ID, login.IP, e.now())
}

// emitAlert persists one alert through filter and risk. Returns the alert
// plus any derived UserRiskThreshold alert.
func (e *Engine) emitAlert(
	ctx context.Context,
	tx *storage.Store,
	eval *alertfilter.Evaluator,
	user *models.User,
	login *models.NormalizedLogin,
	policy models.PolicyConfig,
	clock *windowClock,
	kind models.AlertKind,
	description string,
	enrichment *models.TravelEnrichment,
) ([]*models.Alert, error) {
	created := clock.next()
	alert := &models.Alert{
		UserID:       user.ID,
		Username:     user.Username,
		Name:         kind,
		Description:  description,
		IsVip:        policy.IsVip(user.Username),
		LoginRawData: snapshotLogin(login, enrichment),
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	eval.Apply(alert, user)

	if err := tx.InsertAlert(ctx, alert); err != nil {
		return nil, err
	}

	out := []*models.Alert{alert}
	if alert.IsFiltered {
		return out, nil
	}

	derived, err := risk.Update(ctx, tx, eval, user, alert, policy, clock.next())
	if err != nil {
		return nil, err
	}
	if derived != nil {
		out = append(out, derived)
	}
	return out, nil
}

// snapshotLogin freezes the triggering login into the alert payload.
func snapshotLogin(login *models.NormalizedLogin, enrichment *models.TravelEnrichment) models.LoginRawData {
	raw := models.LoginRawData{
		Timestamp:            login.Timestamp,
		EventID:              login.EventID,
		Index:                login.Index,
		IP:                   login.IP,
		Country:              login.Country,
		UserAgent:            login.UserAgent,
		Organization:         login.Organization,
		IntelligenceCategory: login.IntelligenceCategory,
		Buffalogs:            enrichment,
	}
	if login.Latitude != nil {
		raw.Latitude = *login.Latitude
	}
	if login.Longitude != nil {
		raw.Longitude = *login.Longitude
	}
	return raw
}

func (e *Engine) persistLogin(
	ctx context.Context,
	tx *storage.Store,
	user *models.User,
	login *models.NormalizedLogin,
	lat, lon float64,
	fingerprint string,
) error {
	row := &models.Login{
		UserID:            user.ID,
		EventID:           login.EventID,
		Index:             login.Index,
		IP:                login.IP,
		Timestamp:         login.Timestamp,
		Latitude:          lat,
		Longitude:         lon,
		Country:           login.Country,
		UserAgent:         login.UserAgent,
		DeviceFingerprint: fingerprint,
	}
	_, err := tx.UpsertLogin(ctx, row, e.now())
	return err
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
