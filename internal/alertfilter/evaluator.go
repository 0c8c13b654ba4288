// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

// Package alertfilter evaluates the suppression policy over freshly
// produced alerts. Evaluation is stateless and additive: every filter runs
// regardless of earlier hits, each hit appends its tag, and is_filtered is
// derived from the tag set. Applying the evaluator twice is a no-op.
package alertfilter

import (
	"net"
	"strings"
	"time"

	"github.com/ua-parser/uap-go/uaparser"

	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

// Evaluator applies the policy snapshot to alerts. Build one per window
// so the pattern cache lives exactly as long as the snapshot.
type Evaluator struct {
	policy models.PolicyConfig
	cache  compiledCache
	ua     *uaparser.Parser
	now    func() time.Time
}

// NewEvaluator builds an evaluator over an immutable policy snapshot.
func NewEvaluator(policy models.PolicyConfig) *Evaluator {
	return &Evaluator{
		policy: policy,
		cache:  make(compiledCache),
		ua:     uaparser.NewFromSaved(),
		now:    time.Now,
	}
}

// Apply decorates the alert with the filter tags it matches and sets
// is_filtered accordingly. user is the alert's owner.
func (e *Evaluator) Apply(alert *models.Alert, user *models.User) {
	e.applyUserFilters(alert, user)
	e.applyLoginFilters(alert)
	e.applyAlertFilters(alert, user)
}

func (e *Evaluator) applyUserFilters(alert *models.Alert, user *models.User) {
	username := alert.Username

	// enabled_users flips the semantics of the ignore list: once an allow
	// list exists, everyone outside it is ignored.
	if len(e.policy.EnabledUsers) > 0 {
		if !e.matchAny(username, e.policy.EnabledUsers) {
			alert.AddFilter(models.FilterIgnoredUsers)
		}
	} else if e.matchAny(username, e.policy.IgnoredUsers) {
		alert.AddFilter(models.FilterIgnoredUsers)
	}

	if e.policy.AlertIsVipOnly && !e.isVip(username) {
		alert.AddFilter(models.FilterIsVip)
	}

	if user != nil {
		if user.RiskScore.Level() < e.policy.AlertMinRiskScore.Level() {
			alert.AddFilter(models.FilterAlertMinimumRiskScore)
		}
		learning := time.Duration(e.policy.UserLearningPeriodDays) * 24 * time.Hour
		if learning > 0 && e.now().Sub(user.CreatedAt) < learning {
			alert.AddFilter(models.FilterUserLearningPeriod)
		}
	}
}

func (e *Evaluator) applyLoginFilters(alert *models.Alert) {
	login := &alert.LoginRawData

	if matchIP(login.IP, e.policy.IgnoredIPs) {
		alert.AddFilter(models.FilterIgnoredIP)
	}
	if containsFold(e.policy.AllowedCountries, login.Country) {
		alert.AddFilter(models.FilterAllowedCountry)
	}
	if login.Organization != "" && containsFold(e.policy.IgnoredISPs, login.Organization) {
		alert.AddFilter(models.FilterIgnoredISP)
	}
	if e.policy.IgnoreMobileLogins && login.UserAgent != "" && e.mobileOS(login.UserAgent) {
		alert.AddFilter(models.FilterIsMobile)
	}
}

func (e *Evaluator) applyAlertFilters(alert *models.Alert, _ *models.User) {
	for _, kind := range e.policy.FilteredAlertsTypes {
		if alert.Name == kind {
			alert.AddFilter(models.FilterFilteredAlerts)
			break
		}
	}

	// Travel-pair suppression applies to impossible travel only.
	if alert.Name == models.AlertKindImpTravel && alert.LoginRawData.Buffalogs != nil {
		start := alert.LoginRawData.Buffalogs.StartCountry
		end := alert.LoginRawData.Country
		if e.policy.IgnoreImpTravelSameCountry && start != "" && start == end {
			alert.AddFilter(models.FilterIgnoredAllSameCountry)
		}
		for _, couple := range e.policy.IgnoredImpTravelCouples {
			if unorderedPairMatch(couple, start, end) {
				alert.AddFilter(models.FilterIgnoredCountryCouple)
				break
			}
		}
	}
}

// matchAny matches username against every entry (exact or safe regex).
func (e *Evaluator) matchAny(username string, entries []string) bool {
	for _, entry := range entries {
		if e.cache.matchEntry(username, entry) {
			return true
		}
	}
	return false
}

// isVip checks vip_users, intersected with enabled_users when the allow
// list is non-empty.
func (e *Evaluator) isVip(username string) bool {
	for _, vip := range e.policy.VipUsers {
		if username != vip {
			continue
		}
		if len(e.policy.EnabledUsers) == 0 {
			return true
		}
		return e.matchAny(username, e.policy.EnabledUsers)
	}
	return false
}

func (e *Evaluator) mobileOS(rawUA string) bool {
	family := strings.ToLower(e.ua.Parse(rawUA).Os.Family)
	switch family {
	case "ios", "android", "windows phone", "blackberry os", "kaios", "firefox os":
		return true
	}
	return false
}

// matchIP matches ip against a list of addresses or CIDR blocks. Invalid
// entries are skipped.
func matchIP(ip string, entries []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			_, cidr, err := net.ParseCIDR(entry)
			if err != nil {
				logging.Warn().Str("entry", entry).Msg("skipping invalid ignored_ips CIDR")
				continue
			}
			if cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if other := net.ParseIP(entry); other != nil && other.Equal(parsed) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

func unorderedPairMatch(couple [2]string, a, b string) bool {
	return (strings.EqualFold(couple[0], a) && strings.EqualFold(couple[1], b)) ||
		(strings.EqualFold(couple[0], b) && strings.EqualFold(couple[1], a))
}
