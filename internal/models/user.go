// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package models

import "time"

// User is a monitored account. Created on first sighting in an ingestion
// window; UpdatedAt is bumped whenever the user is reprocessed.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	RiskScore RiskTier  `json:"risk_score"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}

// UserIP records a source IP ever seen for a user. Membership gates the
// impossible-travel check; rows are additive within retention.
type UserIP struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}
