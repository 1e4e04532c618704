// Package similarity provides the lexical matcher used for skill
// deduplication. Scores are used only as threshold comparators, never for
// ranking.
package similarity

import "strings"

// DefaultThreshold is the minimum score at which two skill contents are
// treated as the same lesson.
const DefaultThreshold = 0.85

// Score returns the lexical similarity of a and b in [0, 1]. It is
// case-insensitive, symmetric, and reflexive. The metric is the longest
// common subsequence ratio: 2*LCS(a,b) / (len(a)+len(b)).
func Score(a, b string) float64 {
	if a == b {
		return 1
	}

	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	return 2 * float64(lcsLength(ra, rb)) / float64(len(ra)+len(rb))
}

// lcsLength computes the longest common subsequence length with a two-row
// dynamic program, keeping memory linear in the shorter string.
func lcsLength(a, b []rune) int {
	if len(b) > len(a) {
		a, b = b, a
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
