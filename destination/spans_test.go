// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package destination

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestGenerateSpans(t *testing.T) {
	tests := []struct {
		name      string
		tokens    []string
		maxLength int
		expected  []string
	}{
		{
			name:      "ordered by length then offset",
			tokens:    []string{"a", "b", "c"},
			maxLength: 2,
			expected:  []string{"a", "b", "c", "a b", "b c"},
		},
		{
			name:      "max longer than tokens",
			tokens:    []string{"دار", "النعيم"},
			maxLength: 4,
			expected:  []string{"دار", "النعيم", "دار النعيم"},
		},
		{
			name:      "duplicates kept",
			tokens:    []string{"x", "x"},
			maxLength: 2,
			expected:  []string{"x", "x", "x x"},
		},
		{
			name:      "no tokens",
			tokens:    nil,
			maxLength: 4,
			expected:  nil,
		},
		{
			name:      "zero length",
			tokens:    []string{"a"},
			maxLength: 0,
			expected:  nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.expected, GenerateSpans(tc.tokens, tc.maxLength)); diff != "" {
				t.Errorf("GenerateSpans() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerateSpansCount(t *testing.T) {
	tokens := []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7"}

	for n := 0; n <= len(tokens); n++ {
		for m := 1; m <= 5; m++ {
			expected := 0
			for k := 1; k <= min(m, n); k++ {
				expected += n - k + 1
			}

			assert.Len(t, GenerateSpans(tokens[:n], m), expected, "n=%d m=%d", n, m)
		}
	}
}
