// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/buffalogs/buffalogs/internal/config"
	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

// OpenSearchIngester pulls authentication events from OpenSearch. The
// query shapes match the Elasticsearch adapter; only the client differs.
type OpenSearchIngester struct {
	client  *opensearchapi.Client
	src     config.SourceConfig
	mapping map[string]string
}

// NewOpenSearchIngester builds the adapter from the source block of
// ingestion.json.
func NewOpenSearchIngester(src config.SourceConfig) (*OpenSearchIngester, error) {
	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: []string{src.URL},
			Username:  src.Username,
			Password:  src.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opensearch client: %v", models.ErrIngestion, err)
	}
	return &OpenSearchIngester{
		client:  client,
		src:     src,
		mapping: mergeMapping(src.CustomMap),
	}, nil
}

// Name returns the backend identifier.
func (o *OpenSearchIngester) Name() string { return config.SourceOpenSearch }

func (o *OpenSearchIngester) search(ctx context.Context, query map[string]any) (*opensearchapi.SearchResp, error) {
	ctx, cancel := context.WithTimeout(ctx, o.src.Timeout)
	defer cancel()

	raw, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding query: %v", models.ErrIngestion, err)
	}

	res, err := o.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: strings.Split(o.src.Indexes, ","),
		Body:    strings.NewReader(string(raw)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opensearch search: %v", models.ErrIngestion, err)
	}
	return res, nil
}

// ListUsers returns usernames with successful authentications in the window.
func (o *OpenSearchIngester) ListUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	query := map[string]any{
		"size":  0,
		"query": map[string]any{"bool": map[string]any{"filter": authFilters(start, end)}},
		"aggs": map[string]any{
			"users": map[string]any{
				"terms": map[string]any{
					"field": "user.name",
					"size":  o.src.BucketSize,
				},
			},
		},
	}

	res, err := o.search(ctx, query)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("opensearch list_users failed")
		return nil, err
	}

	var aggs struct {
		Users struct {
			Buckets []struct {
				Key string `json:"key"`
			} `json:"buckets"`
		} `json:"users"`
	}
	if len(res.Aggregations) > 0 {
		if err := json.Unmarshal(res.Aggregations, &aggs); err != nil {
			return nil, fmt.Errorf("%w: malformed aggregations: %v", models.ErrIngestion, err)
		}
	}

	users := make([]string, 0, len(aggs.Users.Buckets))
	for _, b := range aggs.Users.Buckets {
		if b.Key != "" {
			users = append(users, b.Key)
		}
	}
	return users, nil
}

// ListUserLogins returns the user's normalized logins, oldest first.
func (o *OpenSearchIngester) ListUserLogins(ctx context.Context, start, end time.Time, username string) ([]models.NormalizedLogin, error) {
	filters := append(authFilters(start, end),
		map[string]any{"term": map[string]any{"user.name": username}},
		map[string]any{"exists": map[string]any{"field": "source.ip"}},
	)
	query := map[string]any{
		"size":  o.src.BucketSize,
		"query": map[string]any{"bool": map[string]any{"filter": filters}},
		"sort":  []map[string]any{{"@timestamp": map[string]any{"order": "asc"}}},
	}

	res, err := o.search(ctx, query)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("username", username).
			Msg("opensearch list_user_logins failed")
		return nil, err
	}

	logins := make([]models.NormalizedLogin, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		var doc map[string]any
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			logging.Ctx(ctx).Debug().Str("event_id", hit.ID).Msg("skipping malformed hit")
			continue
		}
		if login := normalizeDoc(doc, o.mapping, hit.ID, hit.Index); login != nil {
			logins = append(logins, *login)
		}
	}
	return logins, nil
}
