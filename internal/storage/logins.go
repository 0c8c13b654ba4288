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

	"github.com/buffalogs/buffalogs/internal/models"
)

const loginSelectColumns = `id, user_id, event_id, source_index, ip, timestamp,
	latitude, longitude, country, user_agent, device_fingerprint, created, updated`

func scanLogin(scanner interface{ Scan(dest ...any) error }) (*models.Login, error) {
	var (
		l                    models.Login
		ts, created, updated string
	)
	err := scanner.Scan(&l.ID, &l.UserID, &l.EventID, &l.Index, &l.IP, &ts,
		&l.Latitude, &l.Longitude, &l.Country, &l.UserAgent, &l.DeviceFingerprint,
		&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan login: %v", models.ErrStorage, err)
	}
	l.Timestamp = decodeTime(ts)
	l.CreatedAt = decodeTime(created)
	l.UpdatedAt = decodeTime(updated)
	return &l, nil
}

// UserHasLoginWithIndex reports whether the user has any login row for the
// given source index. A false answer triggers the first-login-for-index
// bootstrap path in detection.
func (s *Store) UserHasLoginWithIndex(ctx context.Context, userID int64, index string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM logins WHERE user_id = ? AND source_index = ?`,
		userID, index).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: index lookup: %v", models.ErrStorage, err)
	}
	return n > 0, nil
}

// UserHasCountry reports whether the user has any login from country.
func (s *Store) UserHasCountry(ctx context.Context, userID int64, country string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM logins WHERE user_id = ? AND country = ?`,
		userID, country).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: country lookup: %v", models.ErrStorage, err)
	}
	return n > 0, nil
}

// LatestLogin returns the user's most recent login by event timestamp,
// or nil when the user has none.
func (s *Store) LatestLogin(ctx context.Context, userID int64) (*models.Login, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+loginSelectColumns+` FROM logins
		 WHERE user_id = ? ORDER BY timestamp DESC LIMIT 1`, userID)
	return scanLogin(row)
}

// LatestLoginFromCountry returns the user's most recent login from country,
// or nil when there is none.
func (s *Store) LatestLoginFromCountry(ctx context.Context, userID int64, country string) (*models.Login, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+loginSelectColumns+` FROM logins
		 WHERE user_id = ? AND country = ? ORDER BY timestamp DESC LIMIT 1`,
		userID, country)
	return scanLogin(row)
}

// UserFingerprints returns the distinct device fingerprints seen for the
// user. An empty set means the user is still in device bootstrap.
func (s *Store) UserFingerprints(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT DISTINCT device_fingerprint FROM logins
		 WHERE user_id = ? AND device_fingerprint != ''`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: fingerprints: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var fps []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("%w: scan fingerprint: %v", models.ErrStorage, err)
		}
		fps = append(fps, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: fingerprints: %v", models.ErrStorage, err)
	}
	return fps, nil
}

// UpsertLogin applies the login-store update rule: a row matching
// (user, index, country, user_agent) is updated in place, otherwise a new
// row is inserted. Returns true when a new row was created.
func (s *Store) UpsertLogin(ctx context.Context, l *models.Login, now time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE logins SET timestamp = ?, latitude = ?, longitude = ?, ip = ?,
			event_id = ?, device_fingerprint = ?, updated = ?
		WHERE user_id = ? AND source_index = ? AND country = ? AND user_agent = ?`,
		encodeTime(l.Timestamp), l.Latitude, l.Longitude, l.IP,
		l.EventID, l.DeviceFingerprint, encodeTime(now),
		l.UserID, l.Index, l.Country, l.UserAgent)
	if err != nil {
		return false, fmt.Errorf("%w: update login: %v", models.ErrStorage, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return false, nil
	}

	ins, err := s.q.ExecContext(ctx, `
		INSERT INTO logins (user_id, event_id, source_index, ip, timestamp,
			latitude, longitude, country, user_agent, device_fingerprint, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.UserID, l.EventID, l.Index, l.IP, encodeTime(l.Timestamp),
		l.Latitude, l.Longitude, l.Country, l.UserAgent, l.DeviceFingerprint,
		encodeTime(now), encodeTime(now))
	if err != nil {
		return false, fmt.Errorf("%w: insert login: %v", models.ErrStorage, err)
	}
	if id, err := ins.LastInsertId(); err == nil {
		l.ID = id
	}
	return true, nil
}

// CountUserLogins returns the number of login rows for a user.
func (s *Store) CountUserLogins(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM logins WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count logins: %v", models.ErrStorage, err)
	}
	return n, nil
}

// ListLoginsSince returns all logins with event timestamp >= since, joined
// with their usernames. Used by the blocklist task over the last 24 hours.
func (s *Store) ListLoginsSince(ctx context.Context, since time.Time) ([]LoginWithUser, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT l.id, l.user_id, l.event_id, l.source_index, l.ip, l.timestamp,
			l.latitude, l.longitude, l.country, l.user_agent, l.device_fingerprint,
			l.created, l.updated, u.username
		FROM logins l JOIN users u ON u.id = l.user_id
		WHERE l.timestamp >= ? ORDER BY l.timestamp ASC`, encodeTime(since))
	if err != nil {
		return nil, fmt.Errorf("%w: logins since: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var out []LoginWithUser
	for rows.Next() {
		var (
			lu                   LoginWithUser
			ts, created, updated string
		)
		if err := rows.Scan(&lu.ID, &lu.UserID, &lu.EventID, &lu.Index, &lu.IP, &ts,
			&lu.Latitude, &lu.Longitude, &lu.Country, &lu.UserAgent,
			&lu.DeviceFingerprint, &created, &updated, &lu.Username); err != nil {
			return nil, fmt.Errorf("%w: scan login: %v", models.ErrStorage, err)
		}
		lu.Timestamp = decodeTime(ts)
		lu.CreatedAt = decodeTime(created)
		lu.UpdatedAt = decodeTime(updated)
		out = append(out, lu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: logins since: %v", models.ErrStorage, err)
	}
	return out, nil
}

// LoginWithUser is a login row joined with its owner's username.
type LoginWithUser struct {
	models.Login
	Username string
}
