package util

import "strings"

// SimilarityRatio returns 1 - d/(len(a)+len(b)) where d is the edit distance
// with unit insert/delete and substitution cost 2, computed case-insensitively
// over runes. Two empty strings are identical.
func SimilarityRatio(a, b string) float64 {
	ra := []rune(FoldKey(strings.TrimSpace(a)))
	rb := []rune(FoldKey(strings.TrimSpace(b)))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return float64(total-indelDistance(ra, rb)) / float64(total)
}

func indelDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			sub := prev[j-1]
			if a[i-1] != b[j-1] {
				sub += 2
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
