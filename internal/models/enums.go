// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package models

import (
	"fmt"
	"strings"
)

// AlertKind identifies the type of anomaly an alert describes.
// The serialized values are stable and appear verbatim in configuration
// entries (filtered_alerts_types, risk_score_increment_alerts) and in
// channel payloads.
type AlertKind string

const (
	AlertKindNewDevice         AlertKind = "New Device"
	AlertKindImpTravel         AlertKind = "Imp Travel"
	AlertKindNewCountry        AlertKind = "New Country"
	AlertKindAtypicalCountry   AlertKind = "Atypical Country"
	AlertKindAnonymousIPLogin  AlertKind = "Anonymous IP Login"
	AlertKindUserRiskThreshold AlertKind = "User Risk Threshold"
)

// AllAlertKinds lists every alert kind in a stable order.
var AllAlertKinds = []AlertKind{
	AlertKindNewDevice,
	AlertKindImpTravel,
	AlertKindNewCountry,
	AlertKindAtypicalCountry,
	AlertKindAnonymousIPLogin,
	AlertKindUserRiskThreshold,
}

// Valid reports whether k is a known alert kind.
func (k AlertKind) Valid() bool {
	for _, kind := range AllAlertKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// DefaultDescription returns the human-readable template lead for the kind.
func (k AlertKind) DefaultDescription() string {
	switch k {
	case AlertKindNewDevice:
		return "Login from new device"
	case AlertKindImpTravel:
		return "Impossible travel detected"
	case AlertKindNewCountry:
		return "Login from new country"
	case AlertKindAtypicalCountry:
		return "Login from atypical country"
	case AlertKindAnonymousIPLogin:
		return "Login from anonymizer IP"
	case AlertKindUserRiskThreshold:
		return "User risk threshold crossed"
	default:
		return string(k)
	}
}

// RiskTier is the coarse user risk classification derived from alert counts.
// Tiers are ordered; comparisons use the numeric level.
type RiskTier string

const (
	RiskTierNoRisk RiskTier = "No risk"
	RiskTierLow    RiskTier = "Low"
	RiskTierMedium RiskTier = "Medium"
	RiskTierHigh   RiskTier = "High"
)

// Level returns the ordinal of the tier (No risk = 0).
func (t RiskTier) Level() int {
	switch t {
	case RiskTierLow:
		return 1
	case RiskTierMedium:
		return 2
	case RiskTierHigh:
		return 3
	default:
		return 0
	}
}

// TierForAlertCount maps a relevant-alert count to a risk tier.
func TierForAlertCount(n int) RiskTier {
	switch {
	case n <= 0:
		return RiskTierNoRisk
	case n <= 2:
		return RiskTierLow
	case n <= 4:
		return RiskTierMedium
	default:
		return RiskTierHigh
	}
}

// ParseRiskTier accepts either a tier name (case-insensitive, with or
// without the space in "No risk") or an integer in 0..7. Integers above
// the High level saturate to High, matching the external query contract.
func ParseRiskTier(s string) (RiskTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "no risk", "norisk", "no_risk":
		return RiskTierNoRisk, nil
	case "low":
		return RiskTierLow, nil
	case "medium":
		return RiskTierMedium, nil
	case "high":
		return RiskTierHigh, nil
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err == nil {
		if n < 0 || n > 7 {
			return "", fmt.Errorf("%w: risk_score %d out of range 0..7", ErrValidation, n)
		}
		switch {
		case n == 0:
			return RiskTierNoRisk, nil
		case n == 1:
			return RiskTierLow, nil
		case n == 2:
			return RiskTierMedium, nil
		default:
			return RiskTierHigh, nil
		}
	}
	return "", fmt.Errorf("%w: unknown risk_score %q", ErrValidation, s)
}

// ExecutionMode distinguishes operator-triggered runs from scheduled ones.
type ExecutionMode string

const (
	ExecutionModeManual    ExecutionMode = "Manual"
	ExecutionModeAutomatic ExecutionMode = "Automatic"
)

// FilterTag is a closed-set label explaining why an alert was suppressed.
type FilterTag string

const (
	FilterIgnoredUsers          FilterTag = "IgnoredUsersFilter"
	FilterIsVip                 FilterTag = "IsVipFilter"
	FilterAlertMinimumRiskScore FilterTag = "AlertMinimumRiskScoreFilter"
	FilterIgnoredIP             FilterTag = "IgnoredIpFilter"
	FilterAllowedCountry        FilterTag = "AllowedCountryFilter"
	FilterIgnoredISP            FilterTag = "IgnoredIspFilter"
	FilterIsMobile              FilterTag = "IsMobileFilter"
	FilterFilteredAlerts        FilterTag = "FilteredAlertsFilter"
	FilterIgnoredAllSameCountry FilterTag = "IgnoredAllSameCountry"
	FilterIgnoredCountryCouple  FilterTag = "IgnoredCountryCouple"
	FilterUserLearningPeriod    FilterTag = "UserLearningPeriod"
)
