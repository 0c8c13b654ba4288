// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package models

import (
	"strings"
	"time"
)

// Login is a durable "seen device/country/source" record for a user.
// The tuple (user, index, country, user_agent) is the deduplication key:
// repeat sightings update the existing row in place.
type Login struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	EventID           string    `json:"event_id"`
	Index             string    `json:"index"`
	IP                string    `json:"ip"`
	Timestamp         time.Time `json:"timestamp"`
	Latitude          float64   `json:"lat"`
	Longitude         float64   `json:"lon"`
	Country           string    `json:"country"`
	UserAgent         string    `json:"user_agent"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	CreatedAt         time.Time `json:"created"`
	UpdatedAt         time.Time `json:"updated"`
}

// NormalizedLogin is the canonical record produced by the ingestion
// adapters after custom-mapping is applied. Latitude and longitude use
// pointers so that "absent" is distinguishable from coordinate zero.
type NormalizedLogin struct {
	Timestamp            time.Time `json:"timestamp"`
	EventID              string    `json:"id"`
	Index                string    `json:"index"`
	IntelligenceCategory string    `json:"intelligence_category,omitempty"`
	Username             string    `json:"username"`
	IP                   string    `json:"ip"`
	UserAgent            string    `json:"agent"`
	Organization         string    `json:"organization,omitempty"`
	Country              string    `json:"country"`
	Latitude             *float64  `json:"lat"`
	Longitude            *float64  `json:"lon"`
}

// Complete reports whether the record carries every field the detection
// engine requires. Incomplete records are dropped at normalization.
func (l *NormalizedLogin) Complete() bool {
	return !l.Timestamp.IsZero() &&
		l.IP != "" &&
		l.Country != "" &&
		l.Latitude != nil &&
		l.Longitude != nil
}

// NormalizeIndex maps a raw source index name to its canonical bucket:
// names beginning with "fw-" collapse to "fw-proxy", anything else keeps
// its first dash-separated segment.
func NormalizeIndex(raw string) string {
	if strings.HasPrefix(raw, "fw-") {
		return "fw-proxy"
	}
	if i := strings.Index(raw, "-"); i > 0 {
		return raw[:i]
	}
	return raw
}
