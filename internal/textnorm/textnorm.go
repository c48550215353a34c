// Package textnorm canonicalises tokens for lookup and comparison.
//
// Every component that keys on a token (personal recordings, the clip cache,
// the scorer) must go through [Normalize]. Two call sites that normalise
// differently silently stop matching each other.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// edgePunct is the set of characters stripped from either end of a token.
// Apostrophes are included so that bracketing quotes ('mot') are removed, but
// an apostrophe between two letters (l'école, aujourd'hui) is never at an edge
// after trimming and therefore survives.
const edgePunct = ".,;:!?¡¿…-–—_()[]{}<>/\\|\"'`´‘’‚“”„«»‹›*#@&%+=~^"

// Normalize lowercases s, trims surrounding whitespace and strips any leading
// or trailing run of punctuation and quote characters. Internal apostrophes
// are preserved. Normalize is total, deterministic and idempotent.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	// A Caser is stateful, so each call gets its own.
	s = cases.Fold().String(s)
	s = strings.TrimFunc(s, isEdge)
	// Case folding can decompose certain runes; recompose so keys stay stable.
	return norm.NFC.String(s)
}

func isEdge(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(edgePunct, r)
}

// Tokens splits text on whitespace and returns the normalised form of every
// field that does not normalise to the empty string.
func Tokens(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if n := Normalize(f); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// NormalizeAll normalises every element of tokens, dropping empty results.
// The returned slice maps result positions back to input positions via idx.
func NormalizeAll(tokens []string) (normalized []string, idx []int) {
	normalized = make([]string, 0, len(tokens))
	idx = make([]int, 0, len(tokens))
	for i, t := range tokens {
		if n := Normalize(t); n != "" {
			normalized = append(normalized, n)
			idx = append(idx, i)
		}
	}
	return normalized, idx
}

// Glue removes every whitespace rune from s. Segmentation exercises present
// the glued form and ask the learner to place the word boundaries back.
func Glue(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
