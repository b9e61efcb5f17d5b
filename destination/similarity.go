// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package destination

import "strings"

const (
	// exactContainmentScore is below 1 because the surrounding text of the
	// haystack is ignored.
	exactContainmentScore = 0.95
	fuzzyContainmentScale = 0.9
)

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)), measured in
// runes and floored at 0. Identical strings score 1; if either string is
// empty the score is 0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	if a == b {
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))

	return max(0, 1-float64(levenshtein(ra, rb))/float64(longest))
}

// levenshtein computes the single-rune insert/delete/substitute distance.
func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i

		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// Containment scores how well needle appears inside haystack. A verbatim
// occurrence scores 0.95. Otherwise the best Similarity of a same-length
// token window of haystack against needle is returned, scaled by 0.9. A
// needle with more tokens than haystack scores 0.
func Containment(haystack, needle string) float64 {
	if haystack == "" || needle == "" {
		return 0
	}

	if strings.Contains(haystack, needle) {
		return exactContainmentScore
	}

	hayTokens := strings.Fields(haystack)
	needleTokens := strings.Fields(needle)

	if len(needleTokens) == 0 || len(needleTokens) > len(hayTokens) {
		return 0
	}

	best := 0.0

	if len(needleTokens) == 1 {
		for _, token := range hayTokens {
			best = max(best, Similarity(token, needleTokens[0]))
		}

		return best * fuzzyContainmentScale
	}

	joined := strings.Join(needleTokens, " ")
	for start := 0; start+len(needleTokens) <= len(hayTokens); start++ {
		window := strings.Join(hayTokens[start:start+len(needleTokens)], " ")
		best = max(best, Similarity(window, joined))
	}

	return best * fuzzyContainmentScale
}
