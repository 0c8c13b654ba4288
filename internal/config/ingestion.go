// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/buffalogs/buffalogs/internal/models"
)

// Supported ingestion backends.
const (
	SourceElasticsearch = "elasticsearch"
	SourceOpenSearch    = "opensearch"
	SourceSplunk        = "splunk"
)

// IngestionConfig mirrors ingestion.json: one active backend plus a config
// block per source. The file is written by the query API and re-read per
// window, so edits take effect without a restart.
type IngestionConfig struct {
	ActiveIngestion string                  `json:"active_ingestion"`
	Sources         map[string]SourceConfig `json:"-"`
}

// SourceConfig is the per-backend block of ingestion.json.
type SourceConfig struct {
	URL          string            `json:"url"`
	Username     string            `json:"username,omitempty"`
	Password     string            `json:"password,omitempty"`
	Token        string            `json:"token,omitempty"`
	Timeout      time.Duration     `json:"-"`
	TimeoutSecs  int               `json:"timeout,omitempty"`
	Indexes      string            `json:"indexes"`
	BucketSize   int               `json:"bucket_size"`
	CustomMap    map[string]string `json:"custom_mapping,omitempty"`
	CustomFields map[string]string `json:"__custom_fields__,omitempty"`
}

// DefaultSearchTimeout applies when a source block omits "timeout".
const DefaultSearchTimeout = 30 * time.Second

// LoadIngestion reads and validates ingestion.json.
func LoadIngestion(path string) (*IngestionConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", models.ErrConfig, path, err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", models.ErrConfig, path, err)
	}

	cfg := &IngestionConfig{Sources: make(map[string]SourceConfig)}
	for key, val := range top {
		if key == "active_ingestion" {
			if err := json.Unmarshal(val, &cfg.ActiveIngestion); err != nil {
				return nil, fmt.Errorf("%w: active_ingestion: %v", models.ErrConfig, err)
			}
			continue
		}
		var src SourceConfig
		if err := json.Unmarshal(val, &src); err != nil {
			return nil, fmt.Errorf("%w: source %q: %v", models.ErrConfig, key, err)
		}
		if src.TimeoutSecs > 0 {
			src.Timeout = time.Duration(src.TimeoutSecs) * time.Second
		} else {
			src.Timeout = DefaultSearchTimeout
		}
		if src.BucketSize <= 0 {
			src.BucketSize = 10000
		}
		cfg.Sources[key] = src
	}

	if cfg.ActiveIngestion == "" {
		return nil, fmt.Errorf("%w: %s missing active_ingestion", models.ErrConfig, path)
	}
	if _, ok := cfg.Sources[cfg.ActiveIngestion]; !ok {
		return nil, fmt.Errorf("%w: active_ingestion %q has no config block",
			models.ErrConfig, cfg.ActiveIngestion)
	}
	return cfg, nil
}

// Active returns the configuration block of the active backend.
func (c *IngestionConfig) Active() SourceConfig {
	return c.Sources[c.ActiveIngestion]
}
