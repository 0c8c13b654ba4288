// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package alerter

import (
	"context"
	"fmt"
	"net/url"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

type rocketChatConfig struct {
	WebhookURL string                `json:"webhook_url"`
	Channel    string                `json:"channel,omitempty"`
	Username   string                `json:"username,omitempty"`
	Options    config.ChannelOptions `json:"options,omitempty"`
}

type rocketChatChannel struct {
	cfg    rocketChatConfig
	sender *sender
}

func newRocketChat(cfg *config.AlertingConfig) (*rocketChatChannel, error) {
	var c rocketChatConfig
	if err := cfg.ChannelConfig(ChannelRocketChat, &c); err != nil {
		return nil, err
	}
	if c.WebhookURL == "" {
		return nil, fmt.Errorf("%w: rocketchat: webhook_url is required", models.ErrConfig)
	}
	if c.Username == "" {
		c.Username = "BuffaLogs"
	}
	return &rocketChatChannel{cfg: c, sender: newSender(ChannelRocketChat)}, nil
}

func (c *rocketChatChannel) Name() string { return ChannelRocketChat }

func (c *rocketChatChannel) Notify(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	var delivered []*models.Alert
	for _, alert := range alerts {
		title, description := FormatAlert(alert)
		form := url.Values{}
		form.Set("username", c.cfg.Username)
		if c.cfg.Channel != "" {
			form.Set("channel", c.cfg.Channel)
		}
		form.Set("text", fmt.Sprintf("*%s*\n%s", title, description))

		if err := c.sender.postForm(ctx, c.cfg.WebhookURL, form); err != nil {
			logging.Ctx(ctx).Error().Err(err).Int64("alert_id", alert.ID).Msg("rocketchat delivery failed")
			return delivered, err
		}
		delivered = append(delivered, alert)
	}
	return delivered, nil
}

// SendText delivers a free-form message, used for scheduled summaries.
func (c *rocketChatChannel) SendText(ctx context.Context, title, text string) error {
	form := url.Values{}
	form.Set("username", c.cfg.Username)
	if c.cfg.Channel != "" {
		form.Set("channel", c.cfg.Channel)
	}
	form.Set("text", fmt.Sprintf("*%s*\n%s", title, text))
	return c.sender.postForm(ctx, c.cfg.WebhookURL, form)
}
