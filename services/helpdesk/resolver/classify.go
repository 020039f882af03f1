// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/AleutianAI/helpdesk/services/helpdesk/config"
	"github.com/AleutianAI/helpdesk/services/helpdesk/fuzzy"
)

// =============================================================================
// Gibberish
// =============================================================================

// IsHardGibberish reports input that can never be a question: fewer than two
// runes after trimming, or no letter, digit, underscore or space at all.
func IsHardGibberish(query string) bool {
	text := strings.TrimSpace(query)
	if utf8.RuneCountInString(text) < 2 {
		return true
	}
	for _, r := range text {
		if isWordRune(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// IsSoftGibberish reports input with fewer than three distinct runes, or
// where more than half of the whitespace-separated tokens are not purely
// alphabetic. "password?", "Wi-Fi" and "404" are all non-alphabetic tokens;
// exactly half is not gibberish.
func IsSoftGibberish(query string) bool {
	text := strings.TrimSpace(query)

	distinct := make(map[rune]struct{}, 8)
	for _, r := range text {
		distinct[r] = struct{}{}
		if len(distinct) >= 3 {
			break
		}
	}
	if len(distinct) < 3 {
		return true
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return true
	}
	nonWords := 0
	for _, tok := range tokens {
		if !isWordToken(tok) {
			nonWords++
		}
	}
	return nonWords*2 > len(tokens)
}

// IsGibberish combines both checks.
func IsGibberish(query string) bool {
	return IsHardGibberish(query) || IsSoftGibberish(query)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// isWordToken reports whether every rune of tok is a letter.
func isWordToken(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// =============================================================================
// Greetings
// =============================================================================

// MatchGreeting returns the first greeting whose phrase scores above
// threshold against the lowercased query. Phrases are compared on word
// boundaries with fuzzy.WordPartialRatio.
func MatchGreeting(table *config.GreetingTable, query string, threshold int) (config.Greeting, bool) {
	if table == nil {
		return config.Greeting{}, false
	}
	text := strings.ToLower(strings.TrimSpace(query))
	if text == "" {
		return config.Greeting{}, false
	}
	for _, g := range table.Greetings {
		if fuzzy.WordPartialRatio(g.Phrase, text) > threshold {
			return g, true
		}
	}
	return config.Greeting{}, false
}
