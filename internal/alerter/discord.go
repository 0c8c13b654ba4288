// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package alerter

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

// Discord embed color, decimal RGB (red).
const discordAlertColor = 16711680

type discordConfig struct {
	WebhookURL string                `json:"webhook_url"`
	Username   string                `json:"username,omitempty"`
	Options    config.ChannelOptions `json:"options,omitempty"`
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color,omitempty"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordChannel struct {
	cfg    discordConfig
	sender *sender
}

func newDiscord(cfg *config.AlertingConfig) (*discordChannel, error) {
	var c discordConfig
	if err := cfg.ChannelConfig(ChannelDiscord, &c); err != nil {
		return nil, err
	}
	if c.WebhookURL == "" {
		return nil, fmt.Errorf("%w: discord: webhook_url is required", models.ErrConfig)
	}
	if c.Username == "" {
		c.Username = "BuffaLogs"
	}
	return &discordChannel{cfg: c, sender: newSender(ChannelDiscord)}, nil
}

func (c *discordChannel) Name() string { return ChannelDiscord }

func (c *discordChannel) Notify(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	var delivered []*models.Alert
	for _, alert := range alerts {
		title, description := FormatAlert(alert)
		body, err := json.Marshal(discordPayload{
			Username: c.cfg.Username,
			Embeds:   []discordEmbed{{Title: title, Description: description, Color: discordAlertColor}},
		})
		if err != nil {
			return delivered, fmt.Errorf("%w: discord: %v", models.ErrDispatch, err)
		}
		if err := c.sender.postJSON(ctx, c.cfg.WebhookURL, body, nil); err != nil {
			logging.Ctx(ctx).Error().Err(err).Int64("alert_id", alert.ID).Msg("discord delivery failed")
			return delivered, err
		}
		delivered = append(delivered, alert)
	}
	return delivered, nil
}

// SendText delivers a free-form message, used for scheduled summaries.
func (c *discordChannel) SendText(ctx context.Context, title, text string) error {
	body, err := json.Marshal(discordPayload{
		Username: c.cfg.Username,
		Embeds:   []discordEmbed{{Title: title, Description: text}},
	})
	if err != nil {
		return fmt.Errorf("%w: discord: %v", models.ErrDispatch, err)
	}
	return c.sender.postJSON(ctx, c.cfg.WebhookURL, body, nil)
}
