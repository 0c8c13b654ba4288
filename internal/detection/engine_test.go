// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package detection

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buffalogs/buffalogs/internal/models"
	"github.com/buffalogs/buffalogs/internal/storage"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewEngine(store), store
}

func normLogin(ts time.Time, index, ip, country, ua string, lat, lon float64) models.NormalizedLogin {
	return models.NormalizedLogin{
		Timestamp: ts,
		Index:     index,
		IP:        ip,
		Country:   country,
		UserAgent: ua,
		Latitude:  &lat,
		Longitude: &lon,
	}
}

// seedUser runs a bootstrap window so the user has history: the first
// login for an index records state without alerting.
func seedUser(t *testing.T, e *Engine, username string, login models.NormalizedLogin) {
	t.Helper()
	alerts, err := e.ProcessUser(context.Background(), username, []models.NormalizedLogin{login}, models.DefaultPolicyConfig())
	require.NoError(t, err)
	require.Empty(t, alerts, "bootstrap window must not alert")
}

func TestImpossibleTravel(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	policy := models.DefaultPolicyConfig()
	base := time.Date(2023, 3, 8, 17, 8, 33, 0, time.UTC)

	seedUser(t, e, "alice",
		normLogin(base.Add(-time.Hour), "cloud", "10.0.0.1", "United States", uaChromeWindows, 40.364, -79.86))

	// Same wall second as the previous login: elapsed time substitutes
	// 0.001h, so the velocity is enormous.
	next := normLogin(base.Add(-time.Hour), "cloud", "198.51.100.7", "Sudan", uaChromeWindows, 15.9876, 25.3456)
	alerts, err := e.ProcessUser(ctx, "alice", []models.NormalizedLogin{next}, policy)
	require.NoError(t, err)

	var travel *models.Alert
	for _, a := range alerts {
		if a.Name == models.AlertKindImpTravel {
			travel = a
		}
	}
	require.NotNil(t, travel, "expected an impossible travel alert, got %v", alerts)
	require.Contains(t, travel.Description, "Sudan")
	require.Contains(t, travel.Description, "United States")
	require.Contains(t, travel.Description, "Km/h")
	require.Contains(t, travel.Description, "distance covered at")

	enrichment := travel.LoginRawData.Buffalogs
	require.NotNil(t, enrichment)
	require.Equal(t, "United States", enrichment.StartCountry)
	require.InDelta(t, 40.364, enrichment.StartLat, 0.001)
	require.InDelta(t, -79.86, enrichment.StartLon, 0.001)
	require.Greater(t, enrichment.AvgSpeed, 100000, "0.001h over thousands of km must yield a huge speed")
}

func TestTravelWithinLimitsDoesNotAlert(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	policy := models.DefaultPolicyConfig()
	base := time.Date(2023, 3, 8, 12, 0, 0, 0, time.UTC)

	seedUser(t, e, "alice",
		normLogin(base, "cloud", "10.0.0.1", "Italy", uaChromeWindows, 45.4642, 9.19))

	// Milan to Rome in five hours is ordinary travel.
	next := normLogin(base.Add(5*time.Hour), "cloud", "10.0.0.2", "Italy", uaChromeWindows, 41.9028, 12.4964)
	alerts, err := e.ProcessUser(ctx, "alice", []models.NormalizedLogin{next}, policy)
	require.NoError(t, err)
	for _, a := range alerts {
		require.NotEqual(t, models.AlertKindImpTravel, a.Name)
	}
}

func TestNewCountryThenAtypicalCountry(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	policy := models.DefaultPolicyConfig()
	policy.AtypicalCountryDays = 30
	base := time.Date(2025, 2, 26, 13, 40, 0, 0, time.UTC)

	seedUser(t, e, "bob",
		normLogin(base.Add(-48*time.Hour), "cloud", "10.0.0.1", "Italy", uaChromeWindows, 45.4642, 9.19))

	japan := normLogin(base, "cloud", "10.0.0.2", "Japan", uaChromeWindows, 35.6762, 139.6503)
	alerts, err := e.ProcessUser(ctx, "bob", []models.NormalizedLogin{japan}, policy)
	require.NoError(t, err)
	require.True(t, hasKind(alerts, models.AlertKindNewCountry), "first Japan login must raise NewCountry: %v", alerts)
	require.False(t, hasKind(alerts, models.AlertKindAtypicalCountry))

	// 45 days later, Japan is known but stale.
	later := normLogin(base.Add(45*24*time.Hour), "cloud", "10.0.0.2", "Japan", uaChromeWindows, 35.6762, 139.6503)
	alerts, err = e.ProcessUser(ctx, "bob", []models.NormalizedLogin{later}, policy)
	require.NoError(t, err)
	require.True(t, hasKind(alerts, models.AlertKindAtypicalCountry), "stale country must raise AtypicalCountry: %v", alerts)
	require.False(t, hasKind(alerts, models.AlertKindNewCountry))

	user, err := store.GetUserByUsername(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, user)
}

func TestNewDevice(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	policy := models.DefaultPolicyConfig()
	base := time.Date(2025, 2, 26, 13, 40, 0, 0, time.UTC)

	seedUser(t, e, "carol",
		normLogin(base.Add(-time.Hour), "cloud", "10.0.0.1", "Italy", uaChromeWindows, 45.4642, 9.19))

	phone := normLogin(base, "cloud", "10.0.0.1", "Italy", uaSafariIPhone, 45.4642, 9.19)
	alerts, err := e.ProcessUser(ctx, "carol", []models.NormalizedLogin{phone}, policy)
	require.NoError(t, err)

	var device *models.Alert
	for _, a := range alerts {
		if a.Name == models.AlertKindNewDevice {
			device = a
		}
	}
	require.NotNil(t, device, "expected a NewDevice alert: %v", alerts)
	require.Contains(t, device.Description, "ios-14-mobile-mobilesafari")
}

func TestAnonymizerLogin(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	policy := models.DefaultPolicyConfig()
	base := time.Date(2025, 2, 26, 13, 40, 0, 0, time.UTC)

	seedUser(t, e, "dave",
		normLogin(base.Add(-time.Hour), "cloud", "10.0.0.1", "Italy", uaChromeWindows, 45.4642, 9.19))

	anon := normLogin(base, "cloud", "10.0.0.1", "Italy", uaChromeWindows, 45.4642, 9.19)
	anon.IntelligenceCategory = "anonymizer"
	alerts, err := e.ProcessUser(ctx, "dave", []models.NormalizedLogin{anon}, policy)
	require.NoError(t, err)
	require.True(t, hasKind(alerts, models.AlertKindAnonymousIPLogin), "expected anonymizer alert: %v", alerts)
}

func TestFilteredAlertSkipsRiskUpdate(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	policy := models.DefaultPolicyConfig()
	policy.AllowedCountries = []string{"Japan"}
	base := time.Date(2025, 2, 26, 13, 40, 0, 0, time.UTC)

	seedUser(t, e, "erin",
		normLogin(base.Add(-time.Hour), "cloud", "10.0.0.1", "Italy", uaChromeWindows, 45.4642, 9.19))

	japan := normLogin(base, "cloud", "10.0.0.2", "Japan", uaChromeWindows, 35.6762, 139.6503)
	alerts, err := e.ProcessUser(ctx, "erin", []models.NormalizedLogin{japan}, policy)
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
	for _, a := range alerts {
		require.NotEqual(t, models.AlertKindUserRiskThreshold, a.Name)
		require.True(t, a.IsFiltered, "alert %s should be filtered", a.Name)
		require.Contains(t, a.FilterType, models.FilterAllowedCountry)
	}

	user, err := store.GetUserByUsername(ctx, "erin")
	require.NoError(t, err)
	require.Equal(t, models.RiskTierNoRisk, user.RiskScore, "filtered alerts must not move the risk score")
}

func TestReRunningWindowIsIdempotent(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	policy := models.DefaultPolicyConfig()
	base := time.Date(2025, 2, 26, 13, 40, 0, 0, time.UTC)

	seedUser(t, e, "frank",
		normLogin(base.Add(-time.Hour), "cloud", "10.0.0.1", "Italy", uaChromeWindows, 45.4642, 9.19))

	repeat := normLogin(base, "cloud", "10.0.0.1", "Italy", uaChromeWindows, 45.4642, 9.19)
	first, err := e.ProcessUser(ctx, "frank", []models.NormalizedLogin{repeat}, policy)
	require.NoError(t, err)
	require.Empty(t, first, "known device, country and IP must not alert")

	second, err := e.ProcessUser(ctx, "frank", []models.NormalizedLogin{repeat}, policy)
	require.NoError(t, err)
	require.Empty(t, second)

	user, err := store.GetUserByUsername(ctx, "frank")
	require.NoError(t, err)
	n, err := store.CountUserLogins(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n, "re-run must not duplicate logins")
}

func TestAlertTimestampsMonotonicWithinWindow(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	policy := models.DefaultPolicyConfig()
	base := time.Date(2025, 2, 26, 13, 40, 0, 0, time.UTC)

	seedUser(t, e, "grace",
		normLogin(base.Add(-time.Hour), "cloud", "10.0.0.1", "Italy", uaChromeWindows, 45.4642, 9.19))

	// New device, new country and impossible travel in one login.
	burst := normLogin(base, "cloud", "198.51.100.9", "Japan", uaSafariIPhone, 35.6762, 139.6503)
	alerts, err := e.ProcessUser(ctx, "grace", []models.NormalizedLogin{burst}, policy)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(alerts), 2)
	for i := 1; i < len(alerts); i++ {
		require.True(t, alerts[i].CreatedAt.After(alerts[i-1].CreatedAt),
			"alert %d (%s) not after %d (%s)", i, alerts[i].Name, i-1, alerts[i-1].Name)
	}
}

func TestFirstIndexBootstrapSuppressesAlerts(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	policy := models.DefaultPolicyConfig()
	base := time.Date(2025, 2, 26, 13, 40, 0, 0, time.UTC)

	seedUser(t, e, "heidi",
		normLogin(base.Add(-time.Hour), "cloud", "10.0.0.1", "Italy", uaChromeWindows, 45.4642, 9.19))

	// A different source index bootstraps independently: no alerts even
	// though country and device would be new for that index.
	fw := normLogin(base, "fw-proxy", "203.0.113.5", "Japan", uaSafariIPhone, 35.6762, 139.6503)
	alerts, err := e.ProcessUser(ctx, "heidi", []models.NormalizedLogin{fw}, policy)
	require.NoError(t, err)
	require.Empty(t, alerts)

	user, err := store.GetUserByUsername(ctx, "heidi")
	require.NoError(t, err)
	has, err := store.UserHasIP(ctx, user.ID, "203.0.113.5")
	require.NoError(t, err)
	require.True(t, has, "bootstrap must still record the IP")
}

func hasKind(alerts []*models.Alert, kind models.AlertKind) bool {
	for _, a := range alerts {
		if a.Name == kind {
			return true
		}
	}
	return false
}

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"iphone safari", uaSafariIPhone, "ios-14-mobile-mobilesafari"},
		{"windows chrome", uaChromeWindows, "windows-10-desktop-chrome"},
		{"empty ua", "", "unknownos-unknownosmajor-unknowndevice-unknownbrowser"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fingerprint(tt.ua)
			require.Equal(t, tt.want, got)
			require.Equal(t, strings.ToLower(got), got, "fingerprint must be lowercase")
			require.Equal(t, got, Fingerprint(tt.ua), "fingerprint must be deterministic")
		})
	}
}

func TestDeviceClassFallsBackToParsedFamily(t *testing.T) {
	// Marker-less agents fall through to the parsed device family.
	require.Equal(t, "playstation4",
		deviceClass("Mozilla/5.0 (PlayStation 4 3.11) AppleWebKit/537.73", "PlayStation 4"))

	// Raw-UA markers take priority over the parsed family.
	require.Equal(t, "mobile", deviceClass(uaSafariIPhone, "iPhone"))
	require.Equal(t, "desktop", deviceClass(uaChromeWindows, "Other"))

	// The parser's placeholder still collapses to the unknown class.
	require.Equal(t, "unknowndevice", deviceClass("curl/8.4.0", "Other"))
}

func TestHaversineDistanceKm(t *testing.T) {
	// Milan to Rome is roughly 477 km.
	d := HaversineDistanceKm(45.4642, 9.19, 41.9028, 12.4964)
	require.InDelta(t, 477, d, 10)

	require.Zero(t, HaversineDistanceKm(45.0, 9.0, 45.0, 9.0))
}
