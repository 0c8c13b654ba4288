// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package alerter

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/models"
)

const webhookTokenTTL = 5 * time.Minute

type webhookConfig struct {
	Name         string                `json:"name,omitempty"`
	Endpoint     string                `json:"endpoint"`
	SecretEnvVar string                `json:"secret_key_variable_name"`
	BatchSize    int                   `json:"batch_size,omitempty"`
	Options      config.ChannelOptions `json:"options,omitempty"`
}

// newWebhook builds the JWT-authenticated variant of the HTTP request
// channel: same batched JSON transport, but every batch carries a fresh
// HS256 token signed with a secret read from the environment.
func newWebhook(cfg *config.AlertingConfig) (Channel, error) {
	var c webhookConfig
	if err := cfg.ChannelConfig(ChannelWebhook, &c); err != nil {
		return nil, err
	}
	if c.SecretEnvVar == "" {
		return nil, fmt.Errorf("%w: webhooks: secret_key_variable_name is required", models.ErrConfig)
	}
	secret := os.Getenv(c.SecretEnvVar)
	if secret == "" {
		return nil, fmt.Errorf("%w: webhooks: env var %s is empty", models.ErrConfig, c.SecretEnvVar)
	}

	ch, err := buildHTTPRequest(ChannelWebhook, httpRequestConfig{
		Name:      c.Name,
		Endpoint:  c.Endpoint,
		BatchSize: c.BatchSize,
		Options:   c.Options,
	})
	if err != nil {
		return nil, err
	}
	ch.authFn = func() (string, error) {
		token, err := signWebhookToken(secret, c.Endpoint, time.Now())
		if err != nil {
			return "", err
		}
		return "Bearer " + token, nil
	}
	return ch, nil
}

func signWebhookToken(secret, audience string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    "buffalogs",
		Subject:   "alerts",
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(webhookTokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%w: webhooks: signing token: %v", models.ErrDispatch, err)
	}
	return signed, nil
}
