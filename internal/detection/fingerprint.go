// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package detection

import (
	"strings"
	"sync"

	"github.com/ua-parser/uap-go/uaparser"
)

// Fingerprint fallbacks when the user agent gives nothing usable.
const (
	unknownOS        = "unknownos"
	unknownOSMajor   = "unknownosmajor"
	unknownDevice    = "unknowndevice"
	unknownBrowser   = "unknownbrowser"
	deviceClassPhone = "mobile"
	deviceClassTab   = "tablet"
	deviceClassDesk  = "desktop"
)

var (
	parserOnce sync.Once
	parser     *uaparser.Parser
)

func uaParser() *uaparser.Parser {
	parserOnce.Do(func() {
		parser = uaparser.NewFromSaved()
	})
	return parser
}

// desktopMarkers in a raw user agent force the desktop device class.
var desktopMarkers = []string{"x11", "win64", "wow64", "x86_64", "macintosh"}

// Fingerprint derives the deterministic device fingerprint for a raw user
// agent: os_family-os_major-device_class-browser_family, lowercased, with
// all whitespace stripped.
func Fingerprint(rawUA string) string {
	client := uaParser().Parse(rawUA)

	osFamily := normalizeComponent(client.Os.Family, unknownOS)
	osMajor := normalizeComponent(client.Os.Major, unknownOSMajor)
	browser := normalizeComponent(client.UserAgent.Family, unknownBrowser)
	device := deviceClass(rawUA, client.Device.Family)

	return osFamily + "-" + osMajor + "-" + device + "-" + browser
}

// deviceClass classifies the device from raw UA markers. Marker checks
// run in priority order so "Mobile Safari" on an iPad still counts as
// tablet. When no marker matches, the parser's device family is the
// fallback before giving up.
func deviceClass(rawUA, parsedFamily string) string {
	ua := strings.ToLower(rawUA)
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return deviceClassTab
	}
	if strings.Contains(ua, "mobile") {
		return deviceClassPhone
	}
	for _, marker := range desktopMarkers {
		if strings.Contains(ua, marker) {
			return deviceClassDesk
		}
	}
	return normalizeComponent(parsedFamily, unknownDevice)
}

// normalizeComponent lowercases and strips whitespace; empty and the
// parser's "Other" placeholder collapse to the fallback.
func normalizeComponent(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "other") {
		return fallback
	}
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}
