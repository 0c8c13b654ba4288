// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package alerter

import (
	"context"
	"fmt"
	"sort"

	"github.com/goccy/go-json"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

type mattermostConfig struct {
	WebhookURL string                `json:"webhook_url"`
	Username   string                `json:"username,omitempty"`
	Options    config.ChannelOptions `json:"options,omitempty"`
}

type mattermostPayload struct {
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`
}

// mattermostChannel groups the window's alerts by (user, alert name) and
// clubs multi-alert groups into one message, so a noisy user produces one
// post instead of a flood. Delivery state stays per alert: every member
// of a delivered group is marked notified.
type mattermostChannel struct {
	cfg    mattermostConfig
	sender *sender
}

func newMattermost(cfg *config.AlertingConfig) (*mattermostChannel, error) {
	var c mattermostConfig
	if err := cfg.ChannelConfig(ChannelMattermost, &c); err != nil {
		return nil, err
	}
	if c.WebhookURL == "" {
		return nil, fmt.Errorf("%w: mattermost: webhook_url is required", models.ErrConfig)
	}
	if c.Username == "" {
		c.Username = "BuffaLogs"
	}
	return &mattermostChannel{cfg: c, sender: newSender(ChannelMattermost)}, nil
}

func (c *mattermostChannel) Name() string { return ChannelMattermost }

func (c *mattermostChannel) Notify(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	type groupKey struct {
		username string
		name     models.AlertKind
	}
	groups := make(map[groupKey][]*models.Alert)
	var order []groupKey
	for _, alert := range alerts {
		key := groupKey{username: alert.Username, name: alert.Name}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], alert)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].username != order[j].username {
			return order[i].username < order[j].username
		}
		return order[i].name < order[j].name
	})

	var delivered []*models.Alert
	for _, key := range order {
		group := groups[key]
		title, description := FormatClubbed(group)
		body, err := json.Marshal(mattermostPayload{
			Username: c.cfg.Username,
			Text:     fmt.Sprintf("**%s**\n%s", title, description),
		})
		if err != nil {
			return delivered, fmt.Errorf("%w: mattermost: %v", models.ErrDispatch, err)
		}
		if err := c.sender.postJSON(ctx, c.cfg.WebhookURL, body, nil); err != nil {
			logging.Ctx(ctx).Error().Err(err).
				Str("username", key.username).
				Str("alert_name", string(key.name)).
				Msg("mattermost delivery failed")
			return delivered, err
		}
		delivered = append(delivered, group...)
	}
	return delivered, nil
}

// SendText delivers a free-form message, used for scheduled summaries.
func (c *mattermostChannel) SendText(ctx context.Context, title, text string) error {
	body, err := json.Marshal(mattermostPayload{
		Username: c.cfg.Username,
		Text:     fmt.Sprintf("**%s**\n%s", title, text),
	})
	if err != nil {
		return fmt.Errorf("%w: mattermost: %v", models.ErrDispatch, err)
	}
	return c.sender.postJSON(ctx, c.cfg.WebhookURL, body, nil)
}
