// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package alerter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/models"
)

// Template selects how an alert (or a group of alerts) renders into a
// (title, description) pair shared by all chat-style channels.
type Template string

const (
	TemplateDefault Template = "default"
	TemplateClubbed Template = "clubbed"
	TemplateSummary Template = "summary"
)

// FormatAlert renders one alert with the default template.
func FormatAlert(a *models.Alert) (title, description string) {
	title = fmt.Sprintf("BuffaLogs Alert: %s for user %s", a.Name, a.Username)
	return title, a.Description
}

// FormatClubbed renders a group of same-kind alerts for one user as a
// single message. Used by channels that group per (user, alert name).
func FormatClubbed(alerts []*models.Alert) (title, description string) {
	if len(alerts) == 1 {
		return FormatAlert(alerts[0])
	}
	first := alerts[0]
	title = fmt.Sprintf("BuffaLogs Alert: %d x %s for user %s",
		len(alerts), first.Name, first.Username)

	var b strings.Builder
	for i, a := range alerts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a.Description)
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// SummaryReport aggregates the alerts of one reporting period.
type SummaryReport struct {
	Frequency string
	Start     string
	End       string
	Total     int
	PerUser   map[string]int
	PerKind   map[models.AlertKind]int
}

// FormatSummary renders a report with the summary template.
func FormatSummary(r *SummaryReport) (title, description string) {
	freq := r.Frequency
	if freq != "" {
		freq = strings.ToUpper(freq[:1]) + freq[1:]
	}
	title = fmt.Sprintf("BuffaLogs %s Alert Summary", freq)

	var b strings.Builder
	fmt.Fprintf(&b, "Period: %s - %s\n", r.Start, r.End)
	fmt.Fprintf(&b, "Total alerts: %d\n", r.Total)

	if len(r.PerKind) > 0 {
		b.WriteString("\nBy alert type:\n")
		for _, kind := range models.AllAlertKinds {
			if n := r.PerKind[kind]; n > 0 {
				fmt.Fprintf(&b, "  %s: %d\n", kind, n)
			}
		}
	}
	if len(r.PerUser) > 0 {
		users := make([]string, 0, len(r.PerUser))
		for u := range r.PerUser {
			users = append(users, u)
		}
		sort.Strings(users)
		b.WriteString("\nBy user:\n")
		for _, u := range users {
			fmt.Fprintf(&b, "  %s: %d\n", u, r.PerUser[u])
		}
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// alertPayload serializes an alert to the canonical JSON object, then
// applies the channel's field whitelists. The login snapshot travels
// under the "login" key on the wire, regardless of how the alert row
// stores it. Empty whitelists keep everything.
func alertPayload(a *models.Alert, opts config.ChannelOptions) (map[string]any, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling alert %d: %v", models.ErrDispatch, a.ID, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: alert %d: %v", models.ErrDispatch, a.ID, err)
	}
	if snapshot, ok := payload["login_raw_data"]; ok {
		delete(payload, "login_raw_data")
		payload["login"] = snapshot
	}

	if len(opts.Fields) > 0 {
		payload = filterKeys(payload, opts.Fields)
	}
	if len(opts.LoginData) > 0 {
		if login, ok := payload["login"].(map[string]any); ok {
			payload["login"] = filterKeys(login, opts.LoginData)
		}
	}
	return payload, nil
}

func filterKeys(m map[string]any, keep []string) map[string]any {
	out := make(map[string]any, len(keep))
	for _, key := range keep {
		if v, ok := m[key]; ok {
			out[key] = v
		}
	}
	return out
}
