// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

package alertfilter

import (
	"regexp"
	"strings"
	"time"

	"github.com/buffalogs/buffalogs/internal/logging"
)

// Bounds for policy regex entries. Anything outside is treated as
// dangerous and skipped silently: no match, no error.
const (
	maxPatternLength    = 100
	maxMetaCharacters   = 50
	matchWallClockLimit = 100 * time.Millisecond
)

var regexMetaChars = ".^$*+?()[]{}|\\"

// compiledCache memoizes validated patterns for the lifetime of a policy
// snapshot. The evaluator is rebuilt per window, so the cache never holds
// stale entries.
type compiledCache map[string]*regexp.Regexp

// SafePattern reports whether a policy entry may run as a regex. It
// rejects over-long patterns, metacharacter floods, nested quantifiers,
// and anything the engine cannot parse.
func SafePattern(pattern string) bool {
	if len(pattern) > maxPatternLength {
		return false
	}
	meta := 0
	for _, r := range pattern {
		if strings.ContainsRune(regexMetaChars, r) {
			meta++
		}
	}
	if meta > maxMetaCharacters {
		return false
	}
	if hasNestedQuantifier(pattern) {
		return false
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return false
	}
	return true
}

// hasNestedQuantifier detects the classic catastrophic shapes: a
// quantified group whose body itself carries a quantifier ((a+)+, (\w+)+b,
// (a*)*) or a quantified alternation with overlapping branches ((a|a)*,
// (a|ab)*).
func hasNestedQuantifier(pattern string) bool {
	runes := []rune(pattern)
	type group struct {
		start         int
		hasQuantifier bool
		hasAlt        bool
	}
	var stack []group

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\\':
			i++ // skip escaped rune
		case '(':
			stack = append(stack, group{start: i})
		case '*', '+', '{':
			if len(stack) > 0 {
				stack[len(stack)-1].hasQuantifier = true
			}
		case '|':
			if len(stack) > 0 {
				stack[len(stack)-1].hasAlt = true
			}
		case ')':
			if len(stack) == 0 {
				continue
			}
			g := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			quantified := i+1 < len(runes) &&
				(runes[i+1] == '*' || runes[i+1] == '+' || runes[i+1] == '{')
			if !quantified {
				// The inner quantifier still poisons the enclosing group.
				if len(stack) > 0 && g.hasQuantifier {
					stack[len(stack)-1].hasQuantifier = true
				}
				continue
			}
			if g.hasQuantifier {
				return true
			}
			if g.hasAlt && overlappingAlternatives(string(runes[g.start+1:i])) {
				return true
			}
			if len(stack) > 0 {
				// A quantified group is itself a quantifier for its parent.
				stack[len(stack)-1].hasQuantifier = true
			}
		}
	}
	return false
}

// overlappingAlternatives reports whether any two branches of an
// alternation share a first literal, the precondition for (a|ab)* blowups.
func overlappingAlternatives(body string) bool {
	branches := strings.Split(body, "|")
	seen := make(map[byte]bool, len(branches))
	for _, b := range branches {
		if b == "" {
			continue
		}
		first := b[0]
		if seen[first] {
			return true
		}
		seen[first] = true
	}
	return false
}

// matchEntry matches username against one ignored_users/enabled_users
// entry: exact match first, then a guarded regex when the entry is safe.
// Dangerous or invalid patterns never match.
func (c compiledCache) matchEntry(username, entry string) bool {
	if username == entry {
		return true
	}
	re, ok := c[entry]
	if !ok {
		if !SafePattern(entry) {
			logging.Warn().Str("pattern", entry).Msg("skipping unsafe policy pattern")
			c[entry] = nil
			return false
		}
		re = regexp.MustCompile(entry)
		c[entry] = re
	}
	if re == nil {
		return false
	}
	return matchWithBudget(re, username)
}

// matchWithBudget runs the match under a wall-clock budget. A match that
// exceeds the budget counts as no match.
func matchWithBudget(re *regexp.Regexp, s string) bool {
	done := make(chan bool, 1)
	go func() { done <- re.MatchString(s) }()
	select {
	case matched := <-done:
		return matched
	case <-time.After(matchWallClockLimit):
		logging.Warn().Str("pattern", re.String()).Msg("policy regex exceeded time budget")
		return false
	}
}
