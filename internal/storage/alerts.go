// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/buffalogs/buffalogs/internal/models"
)

const alertSelectColumns = `a.id, a.user_id, u.username, a.name, a.login_raw_data,
	a.description, a.is_vip, a.is_filtered, a.filter_type, a.notified_status,
	a.created, a.updated`

const alertFromClause = `FROM alerts a JOIN users u ON u.id = a.user_id`

func scanAlert(scanner interface{ Scan(dest ...any) error }) (*models.Alert, error) {
	var (
		a                             models.Alert
		rawData, filterType, notified string
		created, updated              string
	)
	err := scanner.Scan(&a.ID, &a.UserID, &a.Username, &a.Name, &rawData,
		&a.Description, &a.IsVip, &a.IsFiltered, &filterType, &notified,
		&created, &updated)
	if err != nil {
		return nil, fmt.Errorf("%w: scan alert: %v", models.ErrStorage, err)
	}
	if err := json.Unmarshal([]byte(rawData), &a.LoginRawData); err != nil {
		return nil, fmt.Errorf("%w: alert %d login_raw_data: %v", models.ErrStorage, a.ID, err)
	}
	if err := json.Unmarshal([]byte(filterType), &a.FilterType); err != nil {
		return nil, fmt.Errorf("%w: alert %d filter_type: %v", models.ErrStorage, a.ID, err)
	}
	if err := json.Unmarshal([]byte(notified), &a.NotifiedStatus); err != nil {
		return nil, fmt.Errorf("%w: alert %d notified_status: %v", models.ErrStorage, a.ID, err)
	}
	a.CreatedAt = decodeTime(created)
	a.UpdatedAt = decodeTime(updated)
	return &a, nil
}

// InsertAlert persists a new alert and fills in its ID.
func (s *Store) InsertAlert(ctx context.Context, a *models.Alert) error {
	rawData, err := json.Marshal(a.LoginRawData)
	if err != nil {
		return fmt.Errorf("%w: marshal login_raw_data: %v", models.ErrStorage, err)
	}
	filterType := []byte("[]")
	if len(a.FilterType) > 0 {
		if filterType, err = json.Marshal(a.FilterType); err != nil {
			return fmt.Errorf("%w: marshal filter_type: %v", models.ErrStorage, err)
		}
	}
	notified := []byte("{}")
	if len(a.NotifiedStatus) > 0 {
		if notified, err = json.Marshal(a.NotifiedStatus); err != nil {
			return fmt.Errorf("%w: marshal notified_status: %v", models.ErrStorage, err)
		}
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO alerts (user_id, name, login_raw_data, description,
			is_vip, is_filtered, filter_type, notified_status, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Name, string(rawData), a.Description,
		a.IsVip, a.IsFiltered, string(filterType), string(notified),
		encodeTime(a.CreatedAt), encodeTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("%w: insert alert: %v", models.ErrStorage, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = id
	}
	return nil
}

// MarkAlertNotified sets notified_status[channel] = true for the alert.
// The per-channel flag never transitions back to false.
func (s *Store) MarkAlertNotified(ctx context.Context, alertID int64, channel string, now time.Time) error {
	var notified string
	err := s.q.QueryRowContext(ctx,
		`SELECT notified_status FROM alerts WHERE id = ?`, alertID).Scan(&notified)
	if err != nil {
		return fmt.Errorf("%w: alert %d: %v", models.ErrStorage, alertID, err)
	}
	status := map[string]bool{}
	if err := json.Unmarshal([]byte(notified), &status); err != nil {
		return fmt.Errorf("%w: alert %d notified_status: %v", models.ErrStorage, alertID, err)
	}
	status[channel] = true
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("%w: marshal notified_status: %v", models.ErrStorage, err)
	}
	if _, err := s.q.ExecContext(ctx,
		`UPDATE alerts SET notified_status = ?, updated = ? WHERE id = ?`,
		string(raw), encodeTime(now), alertID); err != nil {
		return fmt.Errorf("%w: mark notified: %v", models.ErrStorage, err)
	}
	return nil
}

// ListAlertsToNotify returns non-filtered alerts whose notified_status for
// channel is false or missing, oldest first.
func (s *Store) ListAlertsToNotify(ctx context.Context, channel string) ([]*models.Alert, error) {
	// json_extract returns NULL for a missing key, which is not TRUE.
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+alertSelectColumns+` `+alertFromClause+`
		WHERE a.is_filtered = 0
		  AND COALESCE(json_extract(a.notified_status, '$."'||?||'"'), 0) = 0
		ORDER BY a.created ASC`, channel)
	if err != nil {
		return nil, fmt.Errorf("%w: alerts to notify: %v", models.ErrStorage, err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// ListAlertsBetween returns alerts created in [start, end), oldest first.
// Summaries aggregate over this.
func (s *Store) ListAlertsBetween(ctx context.Context, start, end time.Time) ([]*models.Alert, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+alertSelectColumns+` `+alertFromClause+`
		WHERE a.created >= ? AND a.created < ?
		ORDER BY a.created ASC`, encodeTime(start), encodeTime(end))
	if err != nil {
		return nil, fmt.Errorf("%w: alerts between: %v", models.ErrStorage, err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// CountUserAlertsByKinds counts the user's alerts whose name is in kinds.
// The risk escalator derives the tier from this count.
func (s *Store) CountUserAlertsByKinds(ctx context.Context, userID int64, kinds []models.AlertKind) (int, error) {
	if len(kinds) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
	args := make([]any, 0, len(kinds)+1)
	args = append(args, userID)
	for _, k := range kinds {
		args = append(args, k)
	}
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM alerts WHERE user_id = ? AND name IN (`+placeholders+`)`,
		args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count alerts: %v", models.ErrStorage, err)
	}
	return n, nil
}

// ListUserAlerts returns all alerts for a user, oldest first.
func (s *Store) ListUserAlerts(ctx context.Context, userID int64) ([]*models.Alert, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+alertSelectColumns+` `+alertFromClause+`
		WHERE a.user_id = ? ORDER BY a.created ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user alerts: %v", models.ErrStorage, err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func collectAlerts(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*models.Alert, error) {
	var out []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate alerts: %v", models.ErrStorage, err)
	}
	return out, nil
}
