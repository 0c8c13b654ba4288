// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

// Package models defines the persistent entities of the detection pipeline
// (User, Login, Alert, UserIP, PolicyConfig, TaskSettings), the enumerations
// with stable serialized values, the shared error kinds, and the validation
// helpers shared with external query consumers.
//
// Entities are plain records; all persistence goes through the storage
// package. Enum comparisons are exact-string on the serialized form.
package models
