// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package destination

import "strings"

// Tokenize splits normalized text on whitespace, discarding empty tokens.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// GenerateSpans returns every contiguous run of 1..maxLength tokens, joined
// by single spaces, ordered by length and then by start offset. Repeated
// tokens yield repeated spans.
func GenerateSpans(tokens []string, maxLength int) []string {
	maxLength = min(maxLength, len(tokens))
	if maxLength <= 0 {
		return nil
	}

	count := 0
	for n := 1; n <= maxLength; n++ {
		count += len(tokens) - n + 1
	}

	spans := make([]string, 0, count)

	for n := 1; n <= maxLength; n++ {
		for start := 0; start+n <= len(tokens); start++ {
			spans = append(spans, strings.Join(tokens[start:start+n], " "))
		}
	}

	return spans
}
