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

type googleChatConfig struct {
	WebhookURL string                `json:"webhook_url"`
	Options    config.ChannelOptions `json:"options,omitempty"`
}

// Google Chat card v1 payload, the minimum the webhook accepts.
type googleChatCard struct {
	Header   googleChatHeader    `json:"header"`
	Sections []googleChatSection `json:"sections"`
}

type googleChatHeader struct {
	Title string `json:"title"`
}

type googleChatSection struct {
	Widgets []googleChatWidget `json:"widgets"`
}

type googleChatWidget struct {
	TextParagraph googleChatText `json:"textParagraph"`
}

type googleChatText struct {
	Text string `json:"text"`
}

type googleChatPayload struct {
	Cards []googleChatCard `json:"cards"`
}

type googleChatChannel struct {
	cfg    googleChatConfig
	sender *sender
}

func newGoogleChat(cfg *config.AlertingConfig) (*googleChatChannel, error) {
	var c googleChatConfig
	if err := cfg.ChannelConfig(ChannelGoogleChat, &c); err != nil {
		return nil, err
	}
	if c.WebhookURL == "" {
		return nil, fmt.Errorf("%w: googlechat: webhook_url is required", models.ErrConfig)
	}
	return &googleChatChannel{cfg: c, sender: newSender(ChannelGoogleChat)}, nil
}

func (c *googleChatChannel) Name() string { return ChannelGoogleChat }

func (c *googleChatChannel) Notify(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	var delivered []*models.Alert
	for _, alert := range alerts {
		title, description := FormatAlert(alert)
		body, err := json.Marshal(googleChatPayload{
			Cards: []googleChatCard{{
				Header: googleChatHeader{Title: title},
				Sections: []googleChatSection{{
					Widgets: []googleChatWidget{{TextParagraph: googleChatText{Text: description}}},
				}},
			}},
		})
		if err != nil {
			return delivered, fmt.Errorf("%w: googlechat: %v", models.ErrDispatch, err)
		}
		if err := c.sender.postJSON(ctx, c.cfg.WebhookURL, body, nil); err != nil {
			logging.Ctx(ctx).Error().Err(err).Int64("alert_id", alert.ID).Msg("googlechat delivery failed")
			return delivered, err
		}
		delivered = append(delivered, alert)
	}
	return delivered, nil
}

// SendText delivers a free-form message, used for scheduled summaries.
func (c *googleChatChannel) SendText(ctx context.Context, title, text string) error {
	body, err := json.Marshal(googleChatPayload{
		Cards: []googleChatCard{{
			Header: googleChatHeader{Title: title},
			Sections: []googleChatSection{{
				Widgets: []googleChatWidget{{TextParagraph: googleChatText{Text: text}}},
			}},
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: googlechat: %v", models.ErrDispatch, err)
	}
	return c.sender.postJSON(ctx, c.cfg.WebhookURL, body, nil)
}
