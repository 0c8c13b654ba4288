// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

// Package ingestion pulls authentication events from external log stores
// (Elasticsearch, OpenSearch, Splunk) for a half-open [start, end) window
// and normalizes them to the canonical login record consumed by detection.
//
// Adapters never panic on transport failures: they log, count the failure,
// and return an error wrapping models.ErrIngestion so the task runner can
// leave the window watermark in place for retry.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/models"
)

// Ingester is the capability set every log-store adapter implements.
type Ingester interface {
	// Name returns the backend identifier (elasticsearch, opensearch, splunk).
	Name() string

	// ListUsers returns the usernames with at least one successful
	// authentication start event in [start, end). Empty usernames are
	// excluded; result size is bounded by the configured bucket size.
	ListUsers(ctx context.Context, start, end time.Time) ([]string, error)

	// ListUserLogins returns the user's normalized logins in [start, end),
	// oldest first. Records missing required fields are dropped.
	ListUserLogins(ctx context.Context, start, end time.Time, username string) ([]models.NormalizedLogin, error)
}

// NewIngester constructs the adapter for the active backend in cfg.
func NewIngester(cfg *config.IngestionConfig) (Ingester, error) {
	src := cfg.Active()
	switch cfg.ActiveIngestion {
	case config.SourceElasticsearch:
		return NewElasticsearchIngester(src)
	case config.SourceOpenSearch:
		return NewOpenSearchIngester(src)
	case config.SourceSplunk:
		return NewSplunkIngester(src)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", models.ErrIngestion, cfg.ActiveIngestion)
	}
}
