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

const slackAlertColor = "#ff0000"

type slackConfig struct {
	WebhookURL string                `json:"webhook_url"`
	Options    config.ChannelOptions `json:"options,omitempty"`
}

type slackAttachment struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

// slackChannel posts one attachment per alert to a Slack incoming webhook.
type slackChannel struct {
	cfg    slackConfig
	sender *sender
}

func newSlack(cfg *config.AlertingConfig) (*slackChannel, error) {
	var c slackConfig
	if err := cfg.ChannelConfig(ChannelSlack, &c); err != nil {
		return nil, err
	}
	if c.WebhookURL == "" {
		return nil, fmt.Errorf("%w: slack: webhook_url is required", models.ErrConfig)
	}
	return &slackChannel{cfg: c, sender: newSender(ChannelSlack)}, nil
}

func (c *slackChannel) Name() string { return ChannelSlack }

func (c *slackChannel) Notify(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	var delivered []*models.Alert
	for _, alert := range alerts {
		title, description := FormatAlert(alert)
		body, err := json.Marshal(slackPayload{
			Attachments: []slackAttachment{{Title: title, Text: description, Color: slackAlertColor}},
		})
		if err != nil {
			return delivered, fmt.Errorf("%w: slack: %v", models.ErrDispatch, err)
		}
		if err := c.sender.postJSON(ctx, c.cfg.WebhookURL, body, nil); err != nil {
			logging.Ctx(ctx).Error().Err(err).Int64("alert_id", alert.ID).Msg("slack delivery failed")
			return delivered, err
		}
		delivered = append(delivered, alert)
	}
	return delivered, nil
}

// SendText delivers a free-form message, used for scheduled summaries.
func (c *slackChannel) SendText(ctx context.Context, title, text string) error {
	body, err := json.Marshal(slackPayload{
		Attachments: []slackAttachment{{Title: title, Text: text, Color: slackAlertColor}},
	})
	if err != nil {
		return fmt.Errorf("%w: slack: %v", models.ErrDispatch, err)
	}
	return c.sender.postJSON(ctx, c.cfg.WebhookURL, body, nil)
}
