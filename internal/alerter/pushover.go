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

const pushoverMessagesURL = "https://api.pushover.net/1/messages.json"

type pushoverConfig struct {
	APIKey  string                `json:"api_key"`
	UserKey string                `json:"user_key"`
	Options config.ChannelOptions `json:"options,omitempty"`
}

type pushoverChannel struct {
	cfg      pushoverConfig
	sender   *sender
	endpoint string
}

func newPushover(cfg *config.AlertingConfig) (*pushoverChannel, error) {
	var c pushoverConfig
	if err := cfg.ChannelConfig(ChannelPushover, &c); err != nil {
		return nil, err
	}
	if c.APIKey == "" || c.UserKey == "" {
		return nil, fmt.Errorf("%w: pushover: api_key and user_key are required", models.ErrConfig)
	}
	return &pushoverChannel{cfg: c, sender: newSender(ChannelPushover), endpoint: pushoverMessagesURL}, nil
}

func (c *pushoverChannel) Name() string { return ChannelPushover }

func (c *pushoverChannel) Notify(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	var delivered []*models.Alert
	for _, alert := range alerts {
		title, description := FormatAlert(alert)
		form := url.Values{}
		form.Set("token", c.cfg.APIKey)
		form.Set("user", c.cfg.UserKey)
		form.Set("title", title)
		form.Set("message", description)

		if err := c.sender.postForm(ctx, c.endpoint, form); err != nil {
			logging.Ctx(ctx).Error().Err(err).Int64("alert_id", alert.ID).Msg("pushover delivery failed")
			return delivered, err
		}
		delivered = append(delivered, alert)
	}
	return delivered, nil
}

// SendText delivers a free-form message, used for scheduled summaries.
func (c *pushoverChannel) SendText(ctx context.Context, title, text string) error {
	form := url.Values{}
	form.Set("token", c.cfg.APIKey)
	form.Set("user", c.cfg.UserKey)
	form.Set("title", title)
	form.Set("message", text)
	return c.sender.postForm(ctx, c.endpoint, form)
}
