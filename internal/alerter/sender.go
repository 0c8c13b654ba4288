// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package alerter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

const (
	senderTimeout     = 30 * time.Second
	retryBaseInterval = 2 * time.Second
	maxSendAttempts   = 5
)

// sender is the shared HTTP transport for webhook-style channels: rate
// limited, circuit broken, retried with exponential backoff on transient
// failures. A non-429 4xx is terminal for the run; the alert stays
// unnotified so a config fix can pick it up later.
type sender struct {
	channel string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[int]
}

func newSender(channel string) *sender {
	settings := gobreaker.Settings{
		Name:     channel,
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("channel", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("alerter circuit breaker state change")
		},
	}
	return &sender{
		channel: channel,
		client:  &http.Client{Timeout: senderTimeout},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		breaker: gobreaker.NewCircuitBreaker[int](settings),
	}
}

// postJSON delivers a JSON payload, retrying transient failures.
func (s *sender) postJSON(ctx context.Context, endpoint string, body []byte, header http.Header) error {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")
	return s.post(ctx, endpoint, body, header)
}

// postForm delivers an URL-encoded form, retrying transient failures.
func (s *sender) postForm(ctx context.Context, endpoint string, form url.Values) error {
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.post(ctx, endpoint, []byte(form.Encode()), header)
}

func (s *sender) post(ctx context.Context, endpoint string, body []byte, header http.Header) error {
	operation := func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", models.ErrDispatch, err))
		}
		_, err := s.breaker.Execute(func() (int, error) {
			return 0, s.attempt(ctx, endpoint, body, header)
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			// The breaker is shedding load; stop retrying this run.
			return backoff.Permanent(fmt.Errorf("%w: circuit open for %s", models.ErrDispatch, s.channel))
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryBaseInterval
	policy.RandomizationFactor = 0.2

	return backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, maxSendAttempts-1), ctx))
}

// attempt performs one HTTP round trip and classifies the outcome.
func (s *sender) attempt(ctx context.Context, endpoint string, body []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: building request: %v", models.ErrDispatch, err))
	}
	for key, vals := range header {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Connection errors are transient.
		return fmt.Errorf("%w: %s: %v", models.ErrDispatch, s.channel, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("%w: %s returned %d: %s",
		models.ErrDispatch, s.channel, resp.StatusCode, strings.TrimSpace(string(snippet)))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return err
	}
	return backoff.Permanent(err)
}
