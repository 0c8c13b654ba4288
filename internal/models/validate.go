// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package models

import (
	"fmt"
	"strings"
	"time"
)

// Validation helpers shared with external query consumers. The core and
// the read-only query API apply the same rules, so both live here.

// timeLayouts are the accepted ISO-8601 shapes, tried in order. Naive
// values (no zone) are interpreted in the server's local timezone.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. The returned time is always
// zone-aware: naive inputs get the local zone attached.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrValidation)
	}
	for i, layout := range timeLayouts {
		var (
			t   time.Time
			err error
		)
		if i < 2 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", ErrValidation, s)
}

// ParseTimeRange parses a [start, end) pair and checks ordering.
func ParseTimeRange(start, end string) (time.Time, time.Time, error) {
	s, err := ParseTimestamp(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e, err := ParseTimestamp(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !s.Before(e) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %s not before end %s", ErrValidation, s, e)
	}
	return s, e, nil
}

// ParseNotified parses the external "notified" query parameter.
func ParseNotified(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: notified must be \"true\" or \"false\", got %q", ErrValidation, s)
}
