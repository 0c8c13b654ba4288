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

type teamsConfig struct {
	WebhookURL string                `json:"webhook_url"`
	Options    config.ChannelOptions `json:"options,omitempty"`
}

// Legacy Office 365 connector MessageCard. Teams still accepts it on
// incoming-webhook URLs.
type teamsMessageCard struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	ThemeColor string `json:"themeColor,omitempty"`
	Summary    string `json:"summary"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

type teamsChannel struct {
	cfg    teamsConfig
	sender *sender
}

func newTeams(cfg *config.AlertingConfig) (*teamsChannel, error) {
	var c teamsConfig
	if err := cfg.ChannelConfig(ChannelTeams, &c); err != nil {
		return nil, err
	}
	if c.WebhookURL == "" {
		return nil, fmt.Errorf("%w: microsoft_teams: webhook_url is required", models.ErrConfig)
	}
	return &teamsChannel{cfg: c, sender: newSender(ChannelTeams)}, nil
}

func (c *teamsChannel) Name() string { return ChannelTeams }

func (c *teamsChannel) Notify(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	var delivered []*models.Alert
	for _, alert := range alerts {
		title, description := FormatAlert(alert)
		body, err := json.Marshal(teamsMessageCard{
			Type:       "MessageCard",
			Context:    "http://schema.org/extensions",
			ThemeColor: "FF0000",
			Summary:    title,
			Title:      title,
			Text:       description,
		})
		if err != nil {
			return delivered, fmt.Errorf("%w: microsoft_teams: %v", models.ErrDispatch, err)
		}
		if err := c.sender.postJSON(ctx, c.cfg.WebhookURL, body, nil); err != nil {
			logging.Ctx(ctx).Error().Err(err).Int64("alert_id", alert.ID).Msg("teams delivery failed")
			return delivered, err
		}
		delivered = append(delivered, alert)
	}
	return delivered, nil
}

// SendText delivers a free-form message, used for scheduled summaries.
func (c *teamsChannel) SendText(ctx context.Context, title, text string) error {
	body, err := json.Marshal(teamsMessageCard{
		Type:    "MessageCard",
		Context: "http://schema.org/extensions",
		Summary: title,
		Title:   title,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("%w: microsoft_teams: %v", models.ErrDispatch, err)
	}
	return c.sender.postJSON(ctx, c.cfg.WebhookURL, body, nil)
}
