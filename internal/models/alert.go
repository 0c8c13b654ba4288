// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package models

import "time"

// TravelEnrichment carries the impossible-travel context attached to the
// alert's login snapshot under the "buffalogs" key.
type TravelEnrichment struct {
	StartCountry string  `json:"start_country"`
	StartLat     float64 `json:"start_lat"`
	StartLon     float64 `json:"start_lon"`
	AvgSpeed     int     `json:"avg_speed"`
}

// LoginRawData is the snapshot of the triggering login persisted inside
// an alert. It is self-contained: alerts survive GC of the login rows.
type LoginRawData struct {
	Timestamp            time.Time         `json:"timestamp"`
	EventID              string            `json:"id,omitempty"`
	Index                string            `json:"index"`
	IP                   string            `json:"ip"`
	Country              string            `json:"country"`
	Latitude             float64           `json:"lat"`
	Longitude            float64           `json:"lon"`
	UserAgent            string            `json:"agent,omitempty"`
	Organization         string            `json:"organization,omitempty"`
	IntelligenceCategory string            `json:"intelligence_category,omitempty"`
	Buffalogs            *TravelEnrichment `json:"buffalogs,omitempty"`
}

// Alert is a persisted anomaly for a user, with filter tags and per-channel
// delivery state. NotifiedStatus maps channel name to "delivered"; a missing
// key means the channel has never attempted (or never succeeded) delivery.
type Alert struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Username       string          `json:"user"`
	Name           AlertKind       `json:"name"`
	LoginRawData   LoginRawData    `json:"login_raw_data"`
	Description    string          `json:"description"`
	IsVip          bool            `json:"is_vip"`
	IsFiltered     bool            `json:"is_filtered"`
	FilterType     []FilterTag     `json:"filter_type"`
	NotifiedStatus map[string]bool `json:"notified_status"`
	CreatedAt      time.Time       `json:"created"`
	UpdatedAt      time.Time       `json:"updated"`
}

// Notified reports whether the alert has been delivered on the channel.
func (a *Alert) Notified(channel string) bool {
	return a.NotifiedStatus != nil && a.NotifiedStatus[channel]
}

// MarkNotified records a successful delivery on the channel.
func (a *Alert) MarkNotified(channel string) {
	if a.NotifiedStatus == nil {
		a.NotifiedStatus = make(map[string]bool, 1)
	}
	a.NotifiedStatus[channel] = true
}

// HasFilter reports whether the tag is already attached.
func (a *Alert) HasFilter(tag FilterTag) bool {
	for _, t := range a.FilterType {
		if t == tag {
			return true
		}
	}
	return false
}

// AddFilter attaches a tag (idempotent) and sets IsFiltered.
func (a *Alert) AddFilter(tag FilterTag) {
	if a.HasFilter(tag) {
		return
	}
	a.FilterType = append(a.FilterType, tag)
	a.IsFiltered = true
}
