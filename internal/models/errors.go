// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package models

import "errors"

// Error kinds for classification with errors.Is. Components wrap these with
// fmt.Errorf("...: %w", ...) so callers can branch on the kind without
// inspecting message text.
var (
	// ErrConfig marks a missing or invalid configuration file or key.
	// Fatal to the affected component.
	ErrConfig = errors.New("config error")

	// ErrIngestion marks transport, timeout, auth, or malformed-response
	// failures from a log store. Recovered locally by adapters.
	ErrIngestion = errors.New("ingestion error")

	// ErrStorage marks a transactional failure. The enclosing window rolls
	// back and the error propagates to the task runner.
	ErrStorage = errors.New("storage error")

	// ErrDispatch marks a delivery failure to a notification channel.
	ErrDispatch = errors.New("dispatch error")

	// ErrPolicy marks a dangerous regex, unknown country code, or invalid
	// CIDR in policy configuration. The offending entry is skipped.
	ErrPolicy = errors.New("policy error")

	// ErrValidation marks bad query input from an external caller.
	ErrValidation = errors.New("validation error")

	// ErrTaskBusy signals that another worker holds the single-flight claim
	// for a scheduled task. The invocation aborts without side effects.
	ErrTaskBusy = errors.New("task already in flight")
)
