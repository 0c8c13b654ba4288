// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/buffalogs/buffalogs/internal/models"
)

// AlertingConfig mirrors alerting.json: the list of active channels plus a
// raw config block per channel. Channel blocks stay opaque here; each
// alerter implementation unmarshals its own block so a malformed channel
// only disables that channel.
type AlertingConfig struct {
	ActiveAlerters []string                   `json:"active_alerters"`
	Channels       map[string]json.RawMessage `json:"-"`
}

// ChannelOptions is the shared trailing block of a channel config. Fields
// and LoginData whitelist which alert fields reach the channel payload.
type ChannelOptions struct {
	Fields    []string `json:"fields,omitempty"`
	LoginData []string `json:"login_data,omitempty"`
}

// LoadAlerting reads and validates alerting.json. The dispatcher calls
// this at each run so channel edits apply without restart.
func LoadAlerting(path string) (*AlertingConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", models.ErrConfig, path, err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", models.ErrConfig, path, err)
	}

	cfg := &AlertingConfig{Channels: make(map[string]json.RawMessage)}
	for key, val := range top {
		if key == "active_alerters" {
			if err := json.Unmarshal(val, &cfg.ActiveAlerters); err != nil {
				return nil, fmt.Errorf("%w: active_alerters: %v", models.ErrConfig, err)
			}
			continue
		}
		cfg.Channels[key] = val
	}

	for _, name := range cfg.ActiveAlerters {
		if _, ok := cfg.Channels[name]; !ok {
			return nil, fmt.Errorf("%w: active alerter %q has no config block",
				models.ErrConfig, name)
		}
	}
	return cfg, nil
}

// ChannelConfig unmarshals the named channel block into dst.
func (c *AlertingConfig) ChannelConfig(name string, dst any) error {
	raw, ok := c.Channels[name]
	if !ok {
		return fmt.Errorf("%w: no config block for channel %q", models.ErrConfig, name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: channel %q: %v", models.ErrConfig, name, err)
	}
	return nil
}
