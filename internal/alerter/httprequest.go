// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package alerter

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/goccy/go-json"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

const defaultBatchSize = 20

type httpRequestConfig struct {
	Name        string                `json:"name,omitempty"`
	Endpoint    string                `json:"endpoint"`
	BatchSize   int                   `json:"batch_size,omitempty"`
	TokenEnvVar string                `json:"token_variable_name,omitempty"`
	Options     config.ChannelOptions `json:"options,omitempty"`
}

// httpRequestChannel POSTs alerts as JSON arrays in batches to a generic
// collector endpoint, optionally with a bearer token read from the
// environment. The whole batch is marked delivered on a 2xx.
type httpRequestChannel struct {
	name   string
	cfg    httpRequestConfig
	sender *sender
	header http.Header

	// authFn, when set, mints a fresh Authorization value per batch.
	// The webhook channel uses it for short-lived JWTs.
	authFn func() (string, error)
}

func newHTTPRequest(cfg *config.AlertingConfig) (*httpRequestChannel, error) {
	var c httpRequestConfig
	if err := cfg.ChannelConfig(ChannelHTTPRequest, &c); err != nil {
		return nil, err
	}
	return buildHTTPRequest(ChannelHTTPRequest, c)
}

func buildHTTPRequest(channelName string, c httpRequestConfig) (*httpRequestChannel, error) {
	if c.Endpoint == "" {
		return nil, fmt.Errorf("%w: %s: endpoint is required", models.ErrConfig, channelName)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	header := http.Header{}
	if c.TokenEnvVar != "" {
		token := os.Getenv(c.TokenEnvVar)
		if token == "" {
			return nil, fmt.Errorf("%w: %s: env var %s is empty", models.ErrConfig, channelName, c.TokenEnvVar)
		}
		header.Set("Authorization", "Bearer "+token)
	}
	return &httpRequestChannel{name: channelName, cfg: c, sender: newSender(channelName), header: header}, nil
}

func (c *httpRequestChannel) Name() string { return c.name }

func (c *httpRequestChannel) Notify(ctx context.Context, alerts []*models.Alert) ([]*models.Alert, error) {
	var delivered []*models.Alert
	for start := 0; start < len(alerts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(alerts) {
			end = len(alerts)
		}
		batch := alerts[start:end]

		payloads := make([]map[string]any, 0, len(batch))
		for _, alert := range batch {
			p, err := alertPayload(alert, c.cfg.Options)
			if err != nil {
				return delivered, err
			}
			payloads = append(payloads, p)
		}
		body, err := json.Marshal(payloads)
		if err != nil {
			return delivered, fmt.Errorf("%w: %s: %v", models.ErrDispatch, c.name, err)
		}

		header := c.header.Clone()
		if header == nil {
			header = http.Header{}
		}
		if c.authFn != nil {
			auth, err := c.authFn()
			if err != nil {
				return delivered, err
			}
			header.Set("Authorization", auth)
		}

		if err := c.sender.postJSON(ctx, c.cfg.Endpoint, body, header); err != nil {
			logging.Ctx(ctx).Error().Err(err).
				Str("channel", c.name).
				Int("batch_size", len(batch)).
				Msg("http request delivery failed")
			return delivered, err
		}
		delivered = append(delivered, batch...)
	}
	return delivered, nil
}
