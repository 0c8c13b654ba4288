// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package models

import "time"

// PolicyConfig is the singleton policy row (id = 1). It is re-read once per
// ingestion window into an immutable value and passed by value through
// Detection, Filter, and Risk so a window never observes a torn update.
// When the row is absent, DefaultPolicyConfig applies.
type PolicyConfig struct {
	ID int64 `json:"id"`

	// Filtering knobs.
	IgnoredUsers        []string    `json:"ignored_users"`
	EnabledUsers        []string    `json:"enabled_users"`
	VipUsers            []string    `json:"vip_users"`
	AlertIsVipOnly      bool        `json:"alert_is_vip_only"`
	AlertMinRiskScore   RiskTier    `json:"alert_minimum_risk_score"`
	IgnoredIPs          []string    `json:"ignored_ips"`
	AllowedCountries    []string    `json:"allowed_countries"`
	IgnoredISPs         []string    `json:"ignored_isps"`
	IgnoreMobileLogins  bool        `json:"ignore_mobile_logins"`
	FilteredAlertsTypes []AlertKind `json:"filtered_alerts_types"`

	// Impossible-travel specific suppression.
	IgnoreImpTravelSameCountry bool        `json:"ignored_impossible_travel_all_same_country"`
	IgnoredImpTravelCouples    [][2]string `json:"ignored_impossible_travel_countries_couples"`

	// Detection thresholds.
	UserLearningPeriodDays int     `json:"user_learning_period"`
	AtypicalCountryDays    int     `json:"atypical_country_days"`
	DistanceAcceptedKm     float64 `json:"distance_accepted"`
	VelAcceptedKmH         float64 `json:"vel_accepted"`

	// Risk escalation.
	RiskScoreIncrementAlerts []AlertKind `json:"risk_score_increment_alerts"`
	ThresholdUserRiskAlert   RiskTier    `json:"threshold_user_risk_alert"`

	// Retention, in days of inactivity per entity kind.
	UserMaxDays  int `json:"user_max_days"`
	LoginMaxDays int `json:"login_max_days"`
	AlertMaxDays int `json:"alert_max_days"`
	IPMaxDays    int `json:"ip_max_days"`

	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}

// PolicyConfigID is the fixed primary key of the singleton row.
const PolicyConfigID = 1

// DefaultPolicyConfig returns the policy applied when no row exists.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		ID:                PolicyConfigID,
		AlertMinRiskScore: RiskTierNoRisk,
		RiskScoreIncrementAlerts: []AlertKind{
			AlertKindNewDevice,
			AlertKindImpTravel,
			AlertKindNewCountry,
			AlertKindAtypicalCountry,
			AlertKindAnonymousIPLogin,
		},
		ThresholdUserRiskAlert: RiskTierMedium,
		UserLearningPeriodDays: 30,
		AtypicalCountryDays:    30,
		DistanceAcceptedKm:     100,
		VelAcceptedKmH:         300,
		UserMaxDays:            60,
		LoginMaxDays:           40,
		AlertMaxDays:           45,
		IPMaxDays:              40,
	}
}

// CountsTowardRisk reports whether alerts of kind k feed the risk escalator.
func (c *PolicyConfig) CountsTowardRisk(k AlertKind) bool {
	for _, kind := range c.RiskScoreIncrementAlerts {
		if kind == k {
			return true
		}
	}
	return false
}

// IsVip reports whether the username is on the VIP list.
func (c *PolicyConfig) IsVip(username string) bool {
	for _, u := range c.VipUsers {
		if u == username {
			return true
		}
	}
	return false
}
