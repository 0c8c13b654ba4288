// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/buffalogs/buffalogs/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/nonexistent/config.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Scheduler.WindowLength != 30*time.Minute {
		t.Fatalf("window_length = %v", cfg.Scheduler.WindowLength)
	}
	if cfg.Scheduler.MaxCatchupWindows != 6 {
		t.Fatalf("max_catchup_windows = %d", cfg.Scheduler.MaxCatchupWindows)
	}
	if cfg.Server.Port != 8734 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := writeFile(t, "config.yaml", `
scheduler:
  window_length: 15m
server:
  port: 9000
`)
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("BUFFALOGS_SERVER_PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Scheduler.WindowLength != 15*time.Minute {
		t.Fatalf("file value not applied: %v", cfg.Scheduler.WindowLength)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("env must win over file, port = %d", cfg.Server.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logging:
  level: loud
`)
	t.Setenv(ConfigPathEnvVar, path)

	_, err := Load()
	if !errors.Is(err, models.ErrConfig) {
		t.Fatalf("want ErrConfig, got %v", err)
	}
}

func TestLoadIngestion(t *testing.T) {
	path := writeFile(t, "ingestion.json", `{
		"active_ingestion": "elasticsearch",
		"elasticsearch": {
			"url": "http://es:9200",
			"indexes": "cloud-*,fw-proxy-*",
			"bucket_size": 5000,
			"timeout": 45,
			"custom_mapping": {"event.id": "id"}
		},
		"splunk": {
			"url": "https://splunk:8089",
			"indexes": "main"
		}
	}`)

	cfg, err := LoadIngestion(path)
	if err != nil {
		t.Fatalf("LoadIngestion() = %v", err)
	}
	if cfg.ActiveIngestion != SourceElasticsearch {
		t.Fatalf("active = %q", cfg.ActiveIngestion)
	}
	src := cfg.Active()
	if src.URL != "http://es:9200" {
		t.Fatalf("url = %q", src.URL)
	}
	if src.Timeout != 45*time.Second {
		t.Fatalf("timeout = %v", src.Timeout)
	}
	if src.BucketSize != 5000 {
		t.Fatalf("bucket_size = %d", src.BucketSize)
	}
	if src.CustomMap["event.id"] != "id" {
		t.Fatalf("custom_mapping = %v", src.CustomMap)
	}

	splunk := cfg.Sources[SourceSplunk]
	if splunk.Timeout != DefaultSearchTimeout {
		t.Fatalf("default timeout not applied: %v", splunk.Timeout)
	}
	if splunk.BucketSize != 10000 {
		t.Fatalf("default bucket size not applied: %d", splunk.BucketSize)
	}
}

func TestLoadIngestionErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing active", `{"elasticsearch": {"url": "http://es:9200"}}`},
		{"active without block", `{"active_ingestion": "opensearch"}`},
		{"malformed json", `{"active_ingestion": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "ingestion.json", tt.raw)
			if _, err := LoadIngestion(path); !errors.Is(err, models.ErrConfig) {
				t.Fatalf("want ErrConfig, got %v", err)
			}
		})
	}
}

func TestLoadIngestionMissingFile(t *testing.T) {
	if _, err := LoadIngestion("/nonexistent/ingestion.json"); !errors.Is(err, models.ErrConfig) {
		t.Fatalf("want ErrConfig, got %v", err)
	}
}

func TestLoadAlerting(t *testing.T) {
	path := writeFile(t, "alerting.json", `{
		"active_alerters": ["slack", "webhooks"],
		"slack": {"webhook_url": "https://hooks.slack.com/services/x"},
		"webhooks": {"endpoint": "https://collector", "secret_key_variable_name": "S"},
		"telegram": {"bot_token": "t", "chat_ids": ["1"]}
	}`)

	cfg, err := LoadAlerting(path)
	if err != nil {
		t.Fatalf("LoadAlerting() = %v", err)
	}
	if len(cfg.ActiveAlerters) != 2 {
		t.Fatalf("active = %v", cfg.ActiveAlerters)
	}

	var slack struct {
		WebhookURL string `json:"webhook_url"`
	}
	if err := cfg.ChannelConfig("slack", &slack); err != nil {
		t.Fatalf("ChannelConfig(slack) = %v", err)
	}
	if slack.WebhookURL != "https://hooks.slack.com/services/x" {
		t.Fatalf("webhook_url = %q", slack.WebhookURL)
	}

	// Inactive channels keep their blocks; an unknown block is reachable.
	if err := cfg.ChannelConfig("telegram", &struct{}{}); err != nil {
		t.Fatalf("inactive channel block must load: %v", err)
	}
	if err := cfg.ChannelConfig("discord", &struct{}{}); !errors.Is(err, models.ErrConfig) {
		t.Fatalf("missing block must be ErrConfig, got %v", err)
	}
}

func TestLoadAlertingActiveWithoutBlock(t *testing.T) {
	path := writeFile(t, "alerting.json", `{"active_alerters": ["slack"]}`)
	if _, err := LoadAlerting(path); !errors.Is(err, models.ErrConfig) {
		t.Fatalf("want ErrConfig, got %v", err)
	}
}
