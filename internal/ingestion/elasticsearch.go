// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/goccy/go-json"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

// ElasticsearchIngester pulls authentication events from Elasticsearch.
type ElasticsearchIngester struct {
	client  *elasticsearch.Client
	src     config.SourceConfig
	mapping map[string]string
}

// NewElasticsearchIngester builds the adapter from the source block of
// ingestion.json.
func NewElasticsearchIngester(src config.SourceConfig) (*ElasticsearchIngester, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{src.URL},
		Username:  src.Username,
		Password:  src.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: elasticsearch client: %v", models.ErrIngestion, err)
	}
	return &ElasticsearchIngester{
		client:  client,
		src:     src,
		mapping: mergeMapping(src.CustomMap),
	}, nil
}

// Name returns the backend identifier.
func (e *ElasticsearchIngester) Name() string { return config.SourceElasticsearch }

// authFilters are the shared query filters: successful authentication
// start events bounded to [start, end).
func authFilters(start, end time.Time) []map[string]any {
	return []map[string]any{
		{"term": map[string]any{"event.category": "authentication"}},
		{"term": map[string]any{"event.outcome": "success"}},
		{"term": map[string]any{"event.type": "start"}},
		{"range": map[string]any{"@timestamp": map[string]any{
			"gte": start.UTC().Format(time.RFC3339),
			"lt":  end.UTC().Format(time.RFC3339),
		}}},
	}
}

// esSearchResponse is the subset of the search envelope the adapter reads.
type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Index  string         `json:"_index"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		Users struct {
			Buckets []struct {
				Key string `json:"key"`
			} `json:"buckets"`
		} `json:"users"`
	} `json:"aggregations"`
}

func (e *ElasticsearchIngester) search(ctx context.Context, query map[string]any) (*esSearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.src.Timeout)
	defer cancel()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("%w: encoding query: %v", models.ErrIngestion, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.src.Indexes),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: elasticsearch search: %v", models.ErrIngestion, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return nil, fmt.Errorf("%w: elasticsearch %s: %s", models.ErrIngestion, res.Status(), body)
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", models.ErrIngestion, err)
	}
	return &parsed, nil
}

// ListUsers returns usernames with successful authentications in the window.
func (e *ElasticsearchIngester) ListUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	query := map[string]any{
		"size":  0,
		"query": map[string]any{"bool": map[string]any{"filter": authFilters(start, end)}},
		"aggs": map[string]any{
			"users": map[string]any{
				"terms": map[string]any{
					"field": "user.name",
					"size":  e.src.BucketSize,
				},
			},
		},
	}

	res, err := e.search(ctx, query)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("elasticsearch list_users failed")
		return nil, err
	}

	users := make([]string, 0, len(res.Aggregations.Users.Buckets))
	for _, b := range res.Aggregations.Users.Buckets {
		if b.Key != "" {
			users = append(users, b.Key)
		}
	}
	return users, nil
}

// ListUserLogins returns the user's normalized logins, oldest first.
func (e *ElasticsearchIngester) ListUserLogins(ctx context.Context, start, end time.Time, username string) ([]models.NormalizedLogin, error) {
	filters := append(authFilters(start, end),
		map[string]any{"term": map[string]any{"user.name": username}},
		map[string]any{"exists": map[string]any{"field": "source.ip"}},
	)
	query := map[string]any{
		"size":  e.src.BucketSize,
		"query": map[string]any{"bool": map[string]any{"filter": filters}},
		"sort":  []map[string]any{{"@timestamp": map[string]any{"order": "asc"}}},
	}

	res, err := e.search(ctx, query)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("username", username).
			Msg("elasticsearch list_user_logins failed")
		return nil, err
	}

	logins := make([]models.NormalizedLogin, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		if login := normalizeDoc(hit.Source, e.mapping, hit.ID, hit.Index); login != nil {
			logins = append(logins, *login)
		}
	}
	return logins, nil
}
