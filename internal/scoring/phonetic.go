package scoring

import (
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nearMisses reports unmatched expected tokens whose Double Metaphone codes
// overlap with those of an unmatched candidate token. In positional mode only
// the token sitting in the same slot is considered; in free mode each
// leftover candidate may explain at most one expected token.
func nearMisses(exp []string, expIdx []int, cand []string, candIdx []int, match []int, usedCand []bool, mode Mode) []NearMiss {
	var out []NearMiss

	if mode == ModePositional {
		for ei := range exp {
			if match[ei] >= 0 || cand[ei] == "" {
				continue
			}
			if codesOverlap(codesFor(exp[ei]), codesFor(cand[ei])) {
				out = append(out, NearMiss{
					ExpectedIndex:  expIdx[ei],
					CandidateIndex: candIdx[ei],
					Expected:       exp[ei],
					Heard:          cand[ei],
				})
			}
		}
		return out
	}

	claimed := make([]bool, len(cand))
	for ei := range exp {
		if match[ei] >= 0 {
			continue
		}
		ec := codesFor(exp[ei])
		if len(ec) == 0 {
			continue
		}
		for ci := range cand {
			if usedCand[ci] || claimed[ci] {
				continue
			}
			if codesOverlap(ec, codesFor(cand[ci])) {
				claimed[ci] = true
				out = append(out, NearMiss{
					ExpectedIndex:  expIdx[ei],
					CandidateIndex: candIdx[ci],
					Expected:       exp[ei],
					Heard:          cand[ci],
				})
				break
			}
		}
	}
	return out
}

// codesFor returns the non-empty Double Metaphone codes of token after
// diacritics are removed (the encoder only knows the Latin base letters).
func codesFor(token string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(stripMarks(token))
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap reports whether a and b share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
