// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package ingestion

import (
	"strconv"
	"strings"
	"time"

	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

// Canonical field names of the normalized login record. custom_mapping in
// ingestion.json maps source-specific key paths onto these.
const (
	fieldTimestamp    = "timestamp"
	fieldID           = "id"
	fieldIndex        = "index"
	fieldIntelligence = "intelligence_category"
	fieldUsername     = "username"
	fieldIP           = "ip"
	fieldAgent        = "agent"
	fieldOrganization = "organization"
	fieldCountry      = "country"
	fieldLat          = "lat"
	fieldLon          = "lon"
)

// defaultECSMapping maps ECS document paths to canonical fields. It covers
// Elasticsearch and OpenSearch out of the box; Splunk installs usually
// need a custom_mapping because field names are flattened.
func defaultECSMapping() map[string]string {
	return map[string]string{
		"@timestamp":                   fieldTimestamp,
		"user.name":                    fieldUsername,
		"source.ip":                    fieldIP,
		"user_agent.original":          fieldAgent,
		"source.as.organization.name":  fieldOrganization,
		"source.geo.country_name":      fieldCountry,
		"source.geo.location.lat":      fieldLat,
		"source.geo.location.lon":      fieldLon,
		"source.intelligence_category": fieldIntelligence,
	}
}

// mergeMapping overlays the operator's custom_mapping on the defaults.
// Custom entries win on conflict.
func mergeMapping(custom map[string]string) map[string]string {
	m := defaultECSMapping()
	for k, v := range custom {
		m[k] = v
	}
	return m
}

// lookupPath resolves a dotted path inside a nested document. A segment
// that is present verbatim (Splunk-style flattened keys) takes priority
// over descending.
func lookupPath(doc map[string]any, path string) (any, bool) {
	if v, ok := doc[path]; ok {
		return v, true
	}
	segments := strings.Split(path, ".")
	var cur any = doc
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case int:
		return float64(f), true
	case string:
		parsed, err := strconv.ParseFloat(f, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

// eventTimeLayouts are the timestamp shapes seen across backends.
var eventTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05",
}

func parseEventTime(s string) (time.Time, bool) {
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeDoc maps one raw source document onto the canonical record.
// eventID and rawIndex come from the hit envelope rather than the source
// body. Returns nil when a required field is missing: such records are
// dropped, not errored, because a single malformed event must not sink
// the window.
func normalizeDoc(doc map[string]any, mapping map[string]string, eventID, rawIndex string) *models.NormalizedLogin {
	out := &models.NormalizedLogin{
		EventID: eventID,
		Index:   models.NormalizeIndex(rawIndex),
	}

	for srcPath, canonical := range mapping {
		v, ok := lookupPath(doc, srcPath)
		if !ok {
			continue
		}
		switch canonical {
		case fieldTimestamp:
			if t, ok := parseEventTime(asString(v)); ok {
				out.Timestamp = t
			}
		case fieldID:
			out.EventID = asString(v)
		case fieldIndex:
			out.Index = models.NormalizeIndex(asString(v))
		case fieldIntelligence:
			out.IntelligenceCategory = asString(v)
		case fieldUsername:
			out.Username = asString(v)
		case fieldIP:
			out.IP = asString(v)
		case fieldAgent:
			out.UserAgent = asString(v)
		case fieldOrganization:
			out.Organization = asString(v)
		case fieldCountry:
			out.Country = asString(v)
		case fieldLat:
			if f, ok := asFloat(v); ok {
				lat := f
				out.Latitude = &lat
			}
		case fieldLon:
			if f, ok := asFloat(v); ok {
				lon := f
				out.Longitude = &lon
			}
		}
	}

	if !out.Complete() {
		logging.Debug().
			Str("event_id", eventID).
			Str("username", out.Username).
			Msg("dropping incomplete login record")
		return nil
	}
	return out
}
