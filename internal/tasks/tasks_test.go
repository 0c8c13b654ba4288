// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/ingestion"
	"github.com/buffalogs/buffalogs/internal/models"
	"github.com/buffalogs/buffalogs/internal/storage"
)

// fakeIngester serves canned windows and records the ranges it was asked
// for.
type fakeIngester struct {
	mu      sync.Mutex
	windows [][2]time.Time
	users   []string
	logins  map[string][]models.NormalizedLogin

	listUsersErr  error
	userLoginsErr map[string]error
}

func (f *fakeIngester) Name() string { return "fake" }

func (f *fakeIngester) ListUsers(_ context.Context, start, end time.Time) ([]string, error) {
	f.mu.Lock()
	f.windows = append(f.windows, [2]time.Time{start, end})
	f.mu.Unlock()
	if f.listUsersErr != nil {
		return nil, f.listUsersErr
	}
	return f.users, nil
}

func (f *fakeIngester) ListUserLogins(_ context.Context, start, end time.Time, username string) ([]models.NormalizedLogin, error) {
	if err := f.userLoginsErr[username]; err != nil {
		return nil, err
	}
	var out []models.NormalizedLogin
	for _, l := range f.logins[username] {
		if !l.Timestamp.Before(start) && l.Timestamp.Before(end) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeIngester) windowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	ingestionPath := filepath.Join(dir, "ingestion.json")
	require.NoError(t, os.WriteFile(ingestionPath, []byte(`{
		"active_ingestion": "elasticsearch",
		"elasticsearch": {"url": "http://unused:9200", "indexes": "cloud-*"}
	}`), 0o600))

	alertingPath := filepath.Join(dir, "alerting.json")
	require.NoError(t, os.WriteFile(alertingPath, []byte(`{"active_alerters": []}`), 0o600))

	return &config.Config{
		Scheduler: config.SchedulerConfig{
			WindowLength:      30 * time.Minute,
			TrailingGap:       time.Minute,
			MaxCatchupWindows: 6,
			RestartThreshold:  24 * time.Hour,
		},
		Files: config.FilesConfig{
			Ingestion: ingestionPath,
			Alerting:  alertingPath,
			Blocklist: filepath.Join(dir, "blocklist.txt"),
		},
	}
}

func testRunner(t *testing.T, fake *fakeIngester) (*Runner, *storage.Store, *time.Time) {
	t.Helper()
	store, err := storage.Open(":memory:", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2025, 2, 26, 13, 40, 0, 0, time.UTC)
	clock := &now

	r := NewRunner(store, testConfig(t))
	r.now = func() time.Time { return *clock }
	r.newIngester = func(*config.IngestionConfig) (ingestion.Ingester, error) {
		return fake, nil
	}
	return r, store, clock
}

func login(username string, ts time.Time, country, ip string) models.NormalizedLogin {
	lat, lon := 45.4642, 9.19
	if country == "Japan" {
		lat, lon = 35.6762, 139.6503
	}
	return models.NormalizedLogin{
		Timestamp: ts,
		Username:  username,
		Index:     "cloud",
		IP:        ip,
		Country:   country,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/110.0",
		Latitude:  &lat,
		Longitude: &lon,
	}
}

func TestProcessLogsFirstRunSingleWindow(t *testing.T) {
	fake := &fakeIngester{users: []string{"alice"}}
	r, store, clock := testRunner(t, fake)
	ctx := context.Background()
	now := *clock

	fake.logins = map[string][]models.NormalizedLogin{
		"alice": {login("alice", now.Add(-10*time.Minute), "Italy", "10.0.0.1")},
	}

	require.NoError(t, r.ProcessLogs(ctx, models.ExecutionModeAutomatic))
	require.Equal(t, 1, fake.windowCount(), "no watermark: exactly one trailing window")

	start, end := fake.windows[0][0], fake.windows[0][1]
	require.Equal(t, 30*time.Minute, end.Sub(start))
	require.Equal(t, now.Add(-time.Minute), end, "window end respects the trailing gap")

	settings, err := store.GetTaskSettings(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic)
	require.NoError(t, err)
	require.NotNil(t, settings)
	require.True(t, settings.EndDate.Equal(end), "watermark = processed window end")

	user, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, user, "ingested login must create the user")
}

func TestProcessLogsCatchesUpBoundedWindows(t *testing.T) {
	fake := &fakeIngester{}
	r, store, clock := testRunner(t, fake)
	ctx := context.Background()
	now := *clock

	// Watermark 5 hours behind: 10 missing windows, capped at 6.
	behind := now.Add(-5 * time.Hour)
	require.NoError(t, store.ClaimTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, behind, now))
	require.NoError(t, store.ReleaseTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, behind))

	require.NoError(t, r.ProcessLogs(ctx, models.ExecutionModeAutomatic))
	require.Equal(t, 6, fake.windowCount())

	// Windows are contiguous from the watermark.
	require.True(t, fake.windows[0][0].Equal(behind))
	for i := 1; i < len(fake.windows); i++ {
		require.True(t, fake.windows[i][0].Equal(fake.windows[i-1][1]))
	}

	// Next invocation resumes where the cap stopped and finishes the lag:
	// 9 full windows fit between the watermark and the trailing gap.
	require.NoError(t, r.ProcessLogs(ctx, models.ExecutionModeAutomatic))
	require.Equal(t, 9, fake.windowCount())
}

func TestProcessLogsStaleWatermarkJumpsForward(t *testing.T) {
	fake := &fakeIngester{}
	r, store, clock := testRunner(t, fake)
	ctx := context.Background()
	now := *clock

	stale := now.Add(-72 * time.Hour)
	require.NoError(t, store.ClaimTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, stale, now))
	require.NoError(t, store.ReleaseTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, stale))

	require.NoError(t, r.ProcessLogs(ctx, models.ExecutionModeAutomatic))
	require.Equal(t, 1, fake.windowCount(), "stale watermark must not replay three days")
	require.True(t, fake.windows[0][1].Equal(now.Add(-time.Minute)),
		"jumped to the newest full window")
}

func TestProcessLogsListUsersFailureKeepsWatermarkRetryable(t *testing.T) {
	fake := &fakeIngester{
		listUsersErr: fmt.Errorf("%w: search timed out", models.ErrIngestion),
	}
	r, store, clock := testRunner(t, fake)
	ctx := context.Background()

	err := r.ProcessLogs(ctx, models.ExecutionModeAutomatic)
	require.ErrorIs(t, err, models.ErrIngestion)
	require.Equal(t, 1, fake.windowCount())
	failedStart, failedEnd := fake.windows[0][0], fake.windows[0][1]

	// The claim is released with the watermark back at the window start,
	// not advanced past the events the failed search never returned.
	settings, err := store.GetTaskSettings(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic)
	require.NoError(t, err)
	require.NotNil(t, settings)
	require.False(t, settings.InFlight)
	require.True(t, settings.EndDate.Equal(failedStart), "watermark must stay at the failed window start")

	// The next invocation retries the exact same window.
	*clock = clock.Add(time.Minute)
	fake.listUsersErr = nil
	require.NoError(t, r.ProcessLogs(ctx, models.ExecutionModeAutomatic))
	require.GreaterOrEqual(t, fake.windowCount(), 2)
	require.True(t, fake.windows[1][0].Equal(failedStart))
	require.True(t, fake.windows[1][1].Equal(failedEnd))
}

func TestProcessLogsSkipsFailingUser(t *testing.T) {
	fake := &fakeIngester{
		users: []string{"alice", "bob"},
		userLoginsErr: map[string]error{
			"alice": fmt.Errorf("%w: scroll expired", models.ErrIngestion),
		},
	}
	r, store, clock := testRunner(t, fake)
	ctx := context.Background()
	now := *clock

	fake.logins = map[string][]models.NormalizedLogin{
		"bob": {login("bob", now.Add(-10*time.Minute), "Italy", "10.0.0.2")},
	}

	require.NoError(t, r.ProcessLogs(ctx, models.ExecutionModeAutomatic),
		"one user's fetch failure must not sink the window")

	bob, err := store.GetUserByUsername(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, bob)
	alice, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, alice, "skipped user leaves no trace")
}

func TestManualAndAutomaticWatermarksAreIndependent(t *testing.T) {
	fake := &fakeIngester{}
	r, store, _ := testRunner(t, fake)
	ctx := context.Background()

	require.NoError(t, r.ProcessLogs(ctx, models.ExecutionModeAutomatic))
	require.NoError(t, r.ProcessLogs(ctx, models.ExecutionModeManual))
	require.Equal(t, 2, fake.windowCount(), "each mode processes its own window")

	auto, err := store.GetTaskSettings(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic)
	require.NoError(t, err)
	manual, err := store.GetTaskSettings(ctx, models.TaskProcessLogs, models.ExecutionModeManual)
	require.NoError(t, err)
	require.NotNil(t, auto)
	require.NotNil(t, manual)
}

func TestRunExclusiveBusy(t *testing.T) {
	fake := &fakeIngester{}
	r, store, clock := testRunner(t, fake)
	ctx := context.Background()
	now := *clock

	// A concurrent holder has the claim.
	require.NoError(t, store.ClaimTask(ctx, models.TaskProcessLogs, models.ExecutionModeAutomatic, now.Add(-time.Hour), now))

	err := r.ProcessLogs(ctx, models.ExecutionModeAutomatic)
	require.ErrorIs(t, err, models.ErrTaskBusy)
	require.Zero(t, fake.windowCount(), "busy claim must prevent ingestion")
}

func TestCleanModels(t *testing.T) {
	fake := &fakeIngester{}
	r, store, clock := testRunner(t, fake)
	ctx := context.Background()
	now := *clock

	// A user idle for 100 days with default retention of 60/90 days.
	old := now.Add(-100 * 24 * time.Hour)
	_, err := store.GetOrCreateUser(ctx, "ghost", old)
	require.NoError(t, err)
	_, err = store.GetOrCreateUser(ctx, "alice", now)
	require.NoError(t, err)

	require.NoError(t, r.CleanModels(ctx, models.ExecutionModeAutomatic))

	ghost, err := store.GetUserByUsername(ctx, "ghost")
	require.NoError(t, err)
	require.Nil(t, ghost)
	alice, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, alice)
}

func TestCheckBlocklistedLogins(t *testing.T) {
	fake := &fakeIngester{users: []string{"alice", "bob"}}
	r, store, clock := testRunner(t, fake)
	ctx := context.Background()
	now := *clock

	fake.logins = map[string][]models.NormalizedLogin{
		"alice": {login("alice", now.Add(-10*time.Minute), "Italy", "203.0.113.66")},
		"bob":   {login("bob", now.Add(-10*time.Minute), "Italy", "10.0.0.2")},
	}
	require.NoError(t, r.ProcessLogs(ctx, models.ExecutionModeAutomatic))

	require.NoError(t, os.WriteFile(r.cfg.Files.Blocklist, []byte(
		"# known bad exit nodes\n\n203.0.113.66\n198.51.100.200\n"), 0o600))

	require.NoError(t, r.CheckBlocklistedLogins(ctx, models.ExecutionModeAutomatic))

	alice, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	alerts, err := store.ListUserAlerts(ctx, alice.ID)
	require.NoError(t, err)

	var found bool
	for _, a := range alerts {
		if a.Name == models.AlertKindImpTravel && a.Description ==
			"Login from blocklisted IP 203.0.113.66 for user alice from Italy" {
			found = true
		}
	}
	require.True(t, found, "blocklisted IP must raise an alert, got %v", alerts)

	bob, err := store.GetUserByUsername(ctx, "bob")
	require.NoError(t, err)
	bobAlerts, err := store.ListUserAlerts(ctx, bob.ID)
	require.NoError(t, err)
	require.Empty(t, bobAlerts, "clean IP must not alert")
}

func TestCheckBlocklistedLoginsMissingFileIsNoop(t *testing.T) {
	fake := &fakeIngester{}
	r, _, _ := testRunner(t, fake)
	require.NoError(t, r.CheckBlocklistedLogins(context.Background(), models.ExecutionModeAutomatic))
}

func TestSendNotificationsWithNoChannels(t *testing.T) {
	fake := &fakeIngester{}
	r, _, _ := testRunner(t, fake)
	require.NoError(t, r.SendNotifications(context.Background(), models.ExecutionModeAutomatic))
}
