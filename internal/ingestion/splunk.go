// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

// SplunkIngester pulls authentication events through the Splunk REST
// search export endpoint. Results stream back as newline-delimited JSON.
type SplunkIngester struct {
	client  *http.Client
	src     config.SourceConfig
	mapping map[string]string
}

// NewSplunkIngester builds the adapter from the source block of
// ingestion.json.
func NewSplunkIngester(src config.SourceConfig) (*SplunkIngester, error) {
	if src.URL == "" {
		return nil, fmt.Errorf("%w: splunk url missing", models.ErrIngestion)
	}
	mapping := mergeMapping(splunkDefaults(src.CustomMap))
	return &SplunkIngester{
		client:  &http.Client{Timeout: src.Timeout},
		src:     src,
		mapping: mapping,
	}, nil
}

// splunkDefaults overlays Splunk's flattened result fields on top of the
// operator's custom mapping. Splunk reports event time as _time and the
// bucket as index.
func splunkDefaults(custom map[string]string) map[string]string {
	m := map[string]string{
		"_time": fieldTimestamp,
		"index": fieldIndex,
		"_cd":   fieldID,
	}
	for k, v := range custom {
		m[k] = v
	}
	return m
}

// Name returns the backend identifier.
func (s *SplunkIngester) Name() string { return config.SourceSplunk }

const exportPath = "/services/search/v2/jobs/export"

// export runs a search through the export endpoint and returns the raw
// result objects.
func (s *SplunkIngester) export(ctx context.Context, search string, start, end time.Time) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.src.Timeout)
	defer cancel()

	form := url.Values{
		"search":        {search},
		"output_mode":   {"json"},
		"earliest_time": {start.UTC().Format(time.RFC3339)},
		"latest_time":   {end.UTC().Format(time.RFC3339)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.src.URL, "/")+exportPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: splunk request: %v", models.ErrIngestion, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.src.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.src.Token)
	} else {
		req.SetBasicAuth(s.src.Username, s.src.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: splunk export: %v", models.ErrIngestion, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: splunk %d: %s", models.ErrIngestion, resp.StatusCode, body)
	}

	var results []map[string]any
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var envelope struct {
			Result map[string]any `json:"result"`
		}
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			logging.Ctx(ctx).Debug().Msg("skipping malformed splunk result line")
			continue
		}
		if envelope.Result != nil {
			results = append(results, envelope.Result)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading splunk stream: %v", models.ErrIngestion, err)
	}
	return results, nil
}

// baseSearch is the shared SPL prefix selecting successful authentication
// start events in the configured indexes.
func (s *SplunkIngester) baseSearch() string {
	return fmt.Sprintf(
		`search index=%s "event.category"=authentication "event.outcome"=success "event.type"=start`,
		s.src.Indexes)
}

// ListUsers returns usernames with successful authentications in the window.
func (s *SplunkIngester) ListUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	search := s.baseSearch() +
		fmt.Sprintf(` "user.name"=* | stats count by "user.name" | head %d`, s.src.BucketSize)

	results, err := s.export(ctx, search, start, end)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("splunk list_users failed")
		return nil, err
	}

	users := make([]string, 0, len(results))
	for _, r := range results {
		if name := asString(r["user.name"]); name != "" {
			users = append(users, name)
		}
	}
	return users, nil
}

// ListUserLogins returns the user's normalized logins, oldest first.
func (s *SplunkIngester) ListUserLogins(ctx context.Context, start, end time.Time, username string) ([]models.NormalizedLogin, error) {
	search := s.baseSearch() +
		fmt.Sprintf(` "user.name"=%q "source.ip"=* | sort 0 +_time | head %d`,
			username, s.src.BucketSize)

	results, err := s.export(ctx, search, start, end)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("username", username).
			Msg("splunk list_user_logins failed")
		return nil, err
	}

	logins := make([]models.NormalizedLogin, 0, len(results))
	for _, r := range results {
		rawIndex := asString(r["index"])
		eventID := asString(r["_cd"])
		if login := normalizeDoc(r, s.mapping, eventID, rawIndex); login != nil {
			logins = append(logins, *login)
		}
	}
	return logins, nil
}
