package scoring

import "strings"

// Similarity values assigned by the first matching rule of [Similarity].
const (
	SimExact     = 1.0
	SimSubstring = 0.9
	SimPrefix    = 0.8
	SimSuffix    = 0.7

	// affixLen is the number of leading/trailing runes compared by the
	// prefix and suffix rules. Both tokens must be at least this long.
	affixLen = 3

	// maxLenDiff is the largest rune length difference for which the
	// positional mismatch rule is evaluated.
	maxLenDiff = 2

	// mismatchFloor is the exclusive lower bound a positional mismatch
	// similarity must exceed to count; anything at or below scores 0.
	mismatchFloor = 0.5
)

// Similarity compares two already-normalised tokens and returns a value in
// [0, 1]. The rules are evaluated in order and the first one that applies
// wins:
//
//  1. equal → 1.0
//  2. one contains the other → 0.9
//  3. same first three runes (both at least three long) → 0.8
//  4. same last three runes (both at least three long) → 0.7
//  5. rune lengths within two: 1 − (positional mismatches + length
//     difference) / longer length, kept only when > 0.5
//  6. otherwise 0
//
// Empty tokens never match anything, including each other.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return SimExact
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return SimSubstring
	}

	ra, rb := []rune(a), []rune(b)
	if len(ra) >= affixLen && len(rb) >= affixLen {
		if string(ra[:affixLen]) == string(rb[:affixLen]) {
			return SimPrefix
		}
		if string(ra[len(ra)-affixLen:]) == string(rb[len(rb)-affixLen:]) {
			return SimSuffix
		}
	}

	diff := len(ra) - len(rb)
	if diff < 0 {
		diff = -diff
	}
	if diff > maxLenDiff {
		return 0
	}

	shorter, longer := len(ra), len(rb)
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	mismatches := diff
	for i := 0; i < shorter; i++ {
		if ra[i] != rb[i] {
			mismatches++
		}
	}
	sim := 1 - float64(mismatches)/float64(longer)
	if sim > mismatchFloor {
		return sim
	}
	return 0
}
