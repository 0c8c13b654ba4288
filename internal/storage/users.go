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

const userSelectColumns = `id, username, risk_score, created, updated`

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u                models.User
		created, updated string
	)
	err := row.Scan(&u.ID, &u.Username, &u.RiskScore, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan user: %v", models.ErrStorage, err)
	}
	u.CreatedAt = decodeTime(created)
	u.UpdatedAt = decodeTime(updated)
	return &u, nil
}

// GetUserByUsername returns the user, or nil if unknown.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+userSelectColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// GetOrCreateUser returns the user for username, creating it on first
// sighting. An existing user's updated timestamp is bumped to now.
func (s *Store) GetOrCreateUser(ctx context.Context, username string, now time.Time) (*models.User, error) {
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u != nil {
		if _, err := s.q.ExecContext(ctx,
			`UPDATE users SET updated = ? WHERE id = ?`, encodeTime(now), u.ID); err != nil {
			return nil, fmt.Errorf("%w: touch user: %v", models.ErrStorage, err)
		}
		u.UpdatedAt = now
		return u, nil
	}

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO users (username, risk_score, created, updated) VALUES (?, ?, ?, ?)`,
		username, models.RiskTierNoRisk, encodeTime(now), encodeTime(now))
	if err != nil {
		return nil, fmt.Errorf("%w: insert user: %v", models.ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: user id: %v", models.ErrStorage, err)
	}
	return &models.User{
		ID:        id,
		Username:  username,
		RiskScore: models.RiskTierNoRisk,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateUserRisk sets the user's risk tier.
func (s *Store) UpdateUserRisk(ctx context.Context, userID int64, tier models.RiskTier, now time.Time) error {
	if _, err := s.q.ExecContext(ctx,
		`UPDATE users SET risk_score = ?, updated = ? WHERE id = ?`,
		tier, encodeTime(now), userID); err != nil {
		return fmt.Errorf("%w: update risk: %v", models.ErrStorage, err)
	}
	return nil
}

// UserHasIP reports whether ip is in the user's seen-IP set.
func (s *Store) UserHasIP(ctx context.Context, userID int64, ip string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM user_ips WHERE user_id = ? AND ip = ?`, userID, ip).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: user ip lookup: %v", models.ErrStorage, err)
	}
	return n > 0, nil
}

// AddUserIP adds ip to the user's seen-IP set. Adding a known IP bumps its
// updated timestamp; membership is additive within retention.
func (s *Store) AddUserIP(ctx context.Context, userID int64, ip string, now time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO user_ips (user_id, ip, created, updated) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, ip) DO UPDATE SET updated = excluded.updated`,
		userID, ip, encodeTime(now), encodeTime(now))
	if err != nil {
		return fmt.Errorf("%w: add user ip: %v", models.ErrStorage, err)
	}
	return nil
}
