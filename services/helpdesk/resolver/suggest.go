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
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// suggestion is a knowledge-base question close to an unmatched query.
type suggestion struct {
	row        int
	question   string
	similarity float64
}

// suggest returns up to limit questions whose normalized Levenshtein
// similarity to query is at least minSimilarity, best first.
//
// # Description
//
// Used only after fuzzy and semantic search both miss, to offer "did you
// mean" prompts. Similarity is 1 - distance/max(len), computed on the
// processed forms so case and punctuation do not count. Duplicate question
// text appears once.
//
// # Inputs
//
//   - query: Processed query (fuzzy.FullProcess).
//   - questions: Processed questions, indexed by row.
//   - display: Original question text, indexed by row.
func suggest(query string, questions, display []string, limit int, minSimilarity float64) []suggestion {
	if limit <= 0 || query == "" {
		return nil
	}
	qLen := utf8.RuneCountInString(query)

	var out []suggestion
	seen := make(map[string]bool)
	for row, q := range questions {
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true

		longest := max(qLen, utf8.RuneCountInString(q))
		dist := levenshtein.ComputeDistance(query, q)
		sim := 1 - float64(dist)/float64(longest)
		if sim < minSimilarity {
			continue
		}
		out = append(out, suggestion{row: row, question: display[row], similarity: sim})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].similarity > out[j].similarity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
