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

const telegramAPIBase = "https://api.telegram.org"

type telegramConfig struct {
	BotToken string                `json:"bot_token"`
	ChatIDs  []string              `json:"chat_ids"`
	Options  config.ChannelOptions `json:"options,omitempty"`
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// telegramChannel sends each alert to every configured chat. An alert is
// delivered only when all chats accepted it; partial sends are retried
// whole on the next run.
type telegramChannel struct {
	cfg     telegramConfig
	sender  *sender
	apiBase string
}

func newTelegram(cfg *config.AlertingConfig) (*telegramChannel, error) {
	var c telegramConfig
	if err := cfg.ChannelConfig(ChannelTelegram, &c); err != nil {
		return nil, err
	}
	if c.BotToken == "" {
		return nil, fmt.Errorf("%w: telegram: bot_token is required", models.ErrConfig)
	}
	if len(c.ChatIDs) == 0 {
		return nil, fmt.Errorf("%w: telegram: chat_ids is required", models.ErrConfig)
	}
	return &telegramChannel{cfg: c, sender: newSender(ChannelTelegram), apiBase: telegramAPIBase}, nil
}

func (c *telegramChannel) Name() string { return ChannelTelegram }

func (c *telegramChannel) Notify(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.cfg.BotToken)

	var delivered []*models.Alert
	for _, alert := range alerts {
		title, description := FormatAlert(alert)
		text := fmt.Sprintf("%s\n\n%s", title, description)

		for _, chatID := range c.cfg.ChatIDs {
			body, err := json.Marshal(telegramMessage{ChatID: chatID, Text: text})
			if err != nil {
				return delivered, fmt.Errorf("%w: telegram: %v", models.ErrDispatch, err)
			}
			if err := c.sender.postJSON(ctx, endpoint, body, nil); err != nil {
				logging.Ctx(ctx).Error().Err(err).
					Int64("alert_id", alert.ID).
					Str("chat_id", chatID).
					Msg("telegram delivery failed")
				return delivered, err
			}
		}
		delivered = append(delivered, alert)
	}
	return delivered, nil
}

// SendText delivers a free-form message to every chat, used for
// scheduled summaries.
func (c *telegramChannel) SendText(ctx context.Context, title, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.cfg.BotToken)
	for _, chatID := range c.cfg.ChatIDs {
		body, err := json.Marshal(telegramMessage{ChatID: chatID, Text: fmt.Sprintf("%s\n\n%s", title, text)})
		if err != nil {
			return fmt.Errorf("%w: telegram: %v", models.ErrDispatch, err)
		}
		if err := c.sender.postJSON(ctx, endpoint, body, nil); err != nil {
			return err
		}
	}
	return nil
}
