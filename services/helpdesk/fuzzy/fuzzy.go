// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fuzzy implements the 0-100 string similarity ratios used to match
// helpdesk queries against knowledge-base questions and greeting phrases.
//
// All ratios are built on the insertion/deletion edit distance, where a
// substitution costs 2. The normalized form is
//
//	ratio = 100 * (len(a) + len(b) - indel(a, b)) / (len(a) + len(b))
//
// which equals 100 * 2*LCS / (len(a)+len(b)). Lengths are counted in runes.
package fuzzy

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Scorer compares two strings and returns a similarity in [0, 100].
type Scorer func(a, b string) int

// Match is one scored choice returned by ExtractTop.
type Match struct {
	// Index is the position of the choice in the input slice.
	Index int

	// Choice is the unprocessed choice string.
	Choice string

	// Score is the scorer output in [0, 100].
	Score int
}

// =============================================================================
// Normalization
// =============================================================================

// FullProcess lowercases s, replaces every rune that is not a letter, digit
// or underscore with a space, collapses runs of whitespace and trims.
//
//	FullProcess("How do I reset my VPN password?") == "how do i reset my vpn password"
func FullProcess(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// SortedTokens returns the processed tokens of s sorted and joined by a
// single space. Callers that compare one string against many can compute
// this once and use Ratio directly.
func SortedTokens(s string) string {
	tokens := strings.Fields(FullProcess(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// =============================================================================
// Ratios
// =============================================================================

// Ratio returns the normalized InDel similarity of a and b. Two empty
// strings score 0, matching the no-information case.
func Ratio(a, b string) int {
	return ratioRunes([]rune(a), []rune(b))
}

// PartialRatio returns the best Ratio between the shorter string and every
// window of the same rune length in the longer string.
//
//	PartialRatio("vpn", "reset my vpn password") == 100
func PartialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == len(rb) {
		return ratioRunes(ra, rb)
	}

	best := 0
	for start := 0; start+len(ra) <= len(rb); start++ {
		score := ratioRunes(ra, rb[start:start+len(ra)])
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

// WordPartialRatio compares phrase against every run of consecutive words in
// text that has as many words as phrase, and returns the best Ratio. Both
// inputs are passed through FullProcess. When text has fewer words than
// phrase the whole processed text is compared.
//
// Unlike PartialRatio, windows never start or end inside a word, so a short
// phrase such as "hi" does not match the middle of "which". Phrase words of
// ShortWordLen runes or fewer must equal their window word exactly, so "hey"
// does not match "they" and "how are you" does not match "how are your".
func WordPartialRatio(phrase, text string) int {
	p := FullProcess(phrase)
	t := FullProcess(text)
	if p == "" || t == "" {
		return 0
	}

	pWords := strings.Fields(p)
	tWords := strings.Fields(t)
	if len(tWords) < len(pWords) {
		return Ratio(p, t)
	}

	best := 0
	for start := 0; start+len(pWords) <= len(tWords); start++ {
		window := tWords[start : start+len(pWords)]
		if !shortWordsEqual(pWords, window) {
			continue
		}
		score := Ratio(p, strings.Join(window, " "))
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

// ShortWordLen is the longest phrase word WordPartialRatio requires to match
// exactly.
const ShortWordLen = 3

func shortWordsEqual(phrase, window []string) bool {
	for i, w := range phrase {
		if utf8.RuneCountInString(w) <= ShortWordLen && w != window[i] {
			return false
		}
	}
	return true
}

// TokenSortRatio compares the sorted, processed tokens of a and b, so word
// order does not affect the score.
//
//	TokenSortRatio("password vpn reset", "reset vpn password") == 100
func TokenSortRatio(a, b string) int {
	sa, sb := SortedTokens(a), SortedTokens(b)
	if sa == "" || sb == "" {
		return 0
	}
	return Ratio(sa, sb)
}

// =============================================================================
// Extraction
// =============================================================================

// ExtractTop scores query against every choice and returns the best limit
// matches by descending score. Ties keep input order. A limit <= 0 returns
// every choice.
func ExtractTop(query string, choices []string, scorer Scorer, limit int) []Match {
	if scorer == nil {
		scorer = TokenSortRatio
	}
	matches := make([]Match, len(choices))
	for i, c := range choices {
		matches[i] = Match{Index: i, Choice: c, Score: scorer(query, c)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// ExtractOne returns the single best match. ok is false when choices is empty.
func ExtractOne(query string, choices []string, scorer Scorer) (Match, bool) {
	top := ExtractTop(query, choices, scorer, 1)
	if len(top) == 0 {
		return Match{}, false
	}
	return top[0], true
}

// =============================================================================
// Helpers
// =============================================================================

func ratioRunes(a, b []rune) int {
	total := len(a) + len(b)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dist := indelDistance(a, b)
	return int(math.Round(100 * float64(total-dist) / float64(total)))
}

// indelDistance is the edit distance with insertions and deletions only.
// A substitution is modelled as one deletion plus one insertion.
func indelDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Two rows instead of the full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
