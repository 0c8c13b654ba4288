// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package models

import "time"

// Task names of the scheduled entrypoints. An external scheduler invokes
// each by name; the single-flight claim lives on the TaskSettings row.
const (
	TaskProcessLogs            = "ProcessLogs"
	TaskSendNotifications      = "SendNotifications"
	TaskCleanModels            = "CleanModels"
	TaskAlertSummary           = "ScheduledAlertSummary"
	TaskCheckBlocklistedLogins = "CheckBlocklistedLogins"
)

// TaskSettings is the per-(task, mode) watermark row. StartDate/EndDate
// bracket the last processed window; a row whose InFlight flag is set marks
// an active worker, and the UNIQUE(task_name, execution_mode) constraint
// makes the claim race-free.
type TaskSettings struct {
	ID            int64         `json:"id"`
	TaskName      string        `json:"task_name"`
	ExecutionMode ExecutionMode `json:"execution_mode"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       time.Time     `json:"end_date"`
	InFlight      bool          `json:"in_flight"`
}
