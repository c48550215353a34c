package scoring

import (
	"slices"
	"unicode/utf8"
)

// Validate reports whether the learner's cut positions equal the expected
// ones. A cut position is a rune index into the glued (space-free) string at
// which a new word begins. Order and duplicates are irrelevant; there is no
// partial credit.
func Validate(expected, candidate []int) bool {
	return slices.Equal(canonicalCuts(expected), canonicalCuts(candidate))
}

// CutsFromSegments returns the cut positions that split the concatenation of
// words back into words. Empty words contribute nothing.
func CutsFromSegments(words []string) []int {
	cuts := make([]int, 0, len(words))
	pos := 0
	for _, w := range words {
		n := utf8.RuneCountInString(w)
		if n == 0 {
			continue
		}
		if pos > 0 {
			cuts = append(cuts, pos)
		}
		pos += n
	}
	return cuts
}

// ApplyCuts splits glued at the given rune positions. Positions outside
// (0, len) are ignored.
func ApplyCuts(glued string, cuts []int) []string {
	r := []rune(glued)
	if len(r) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(cuts)+1)
	start := 0
	for _, c := range canonicalCuts(cuts) {
		if c <= 0 || c >= len(r) {
			continue
		}
		out = append(out, string(r[start:c]))
		start = c
	}
	return append(out, string(r[start:]))
}

func canonicalCuts(cuts []int) []int {
	c := slices.Clone(cuts)
	slices.Sort(c)
	return slices.Compact(c)
}
