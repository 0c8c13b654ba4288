// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestGenerateCorrelationID(t *testing.T) {
	id := GenerateCorrelationID()
	if len(id) != 8 {
		t.Fatalf("len = %d, want 8", len(id))
	}
	if id == GenerateCorrelationID() {
		t.Fatal("two IDs collided")
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "abcd1234")
	if got := CorrelationIDFromContext(ctx); got != "abcd1234" {
		t.Fatalf("got %q", got)
	}
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Fatalf("bare context should have no ID, got %q", got)
	}
}

func TestContextWithNewCorrelationID(t *testing.T) {
	ctx := ContextWithNewCorrelationID(context.Background())
	if CorrelationIDFromContext(ctx) == "" {
		t.Fatal("no ID attached")
	}
}

func TestCtxAttachesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger()
	SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { SetLogger(prev) })

	ctx := ContextWithCorrelationID(context.Background(), "deadbeef")
	Ctx(ctx).Info().Msg("hello")

	if out := buf.String(); !strings.Contains(out, `"correlation_id":"deadbeef"`) {
		t.Fatalf("log line missing correlation id: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
