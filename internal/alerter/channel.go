// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

// Package alerter implements the notification channels and the
// dispatcher that fans non-filtered alerts out to them.
//
// Channels supported:
//   - Slack, Discord, Google Chat, Mattermost, Rocket.Chat, MS Teams:
//     incoming-webhook JSON POST
//   - Telegram: Bot API sendMessage per chat ID
//   - Pushover: form POST to the messages API
//   - Email: SMTP, one message to the admin list plus one to the user
//   - HTTP request: batched JSON POST to a generic endpoint
//   - Webhook: as HTTP request, authenticated with a signed JWT
//
// Every channel reports which alerts it delivered; the dispatcher flips
// notified_status[channel] only for those, so a channel outage never
// loses alerts and a delivered alert is never re-sent on that channel.
package alerter

import (
	"context"
	"fmt"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/models"
)

// Channel names as they appear in alerting.json and in notified_status.
const (
	ChannelSlack       = "slack"
	ChannelTelegram    = "telegram"
	ChannelDiscord     = "discord"
	ChannelGoogleChat  = "googlechat"
	ChannelMattermost  = "mattermost"
	ChannelRocketChat  = "rocketchat"
	ChannelTeams       = "microsoft_teams"
	ChannelPushover    = "pushover"
	ChannelEmail       = "email"
	ChannelHTTPRequest = "http_request"
	ChannelWebhook     = "webhooks"
)

// Channel delivers alerts to one external sink. Notify returns the subset
// of alerts that were actually delivered; the dispatcher persists delivery
// state only for those, so partial failures are retried on the next run.
type Channel interface {
	Name() string
	Notify(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error)
}

// New builds the named channel from its alerting.json block. An unknown
// name or an invalid block is a config error; the dispatcher logs it and
// skips the channel rather than aborting the run.
func New(name string, cfg *config.AlertingConfig) (Channel, error) {
	switch name {
	case ChannelSlack:
		return newSlack(cfg)
	case ChannelTelegram:
		return newTelegram(cfg)
	case ChannelDiscord:
		return newDiscord(cfg)
	case ChannelGoogleChat:
		return newGoogleChat(cfg)
	case ChannelMattermost:
		return newMattermost(cfg)
	case ChannelRocketChat:
		return newRocketChat(cfg)
	case ChannelTeams:
		return newTeams(cfg)
	case ChannelPushover:
		return newPushover(cfg)
	case ChannelEmail:
		return newEmail(cfg)
	case ChannelHTTPRequest:
		return newHTTPRequest(cfg)
	case ChannelWebhook:
		return newWebhook(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown alerter channel %q", models.ErrConfig, name)
	}
}
