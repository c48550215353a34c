// Package scoring grades a learner's answer against the expected token
// sequence.
//
// Two modes are supported. [ModeFree] is order tolerant and noise tolerant:
// it is meant for speech recognition output, which may drop, insert or
// reorder filler words. Each candidate token greedily claims the best unused
// expected token. [ModePositional] compares index by index with exact
// (normalised) equality and is used when the exercise grades the order itself.
//
// [Validate] handles segmentation exercises, where the learner marks word
// boundaries in a glued string.
//
// A [Scorer] is read-only after construction and safe for concurrent use.
package scoring

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MrWong99/lisible/internal/textnorm"
)

// ErrInvalidMode is returned by [Scorer.Score] when mode is neither
// [ModeFree] nor [ModePositional].
var ErrInvalidMode = errors.New("scoring: invalid mode")

// Mode selects the alignment strategy.
type Mode string

const (
	ModeFree       Mode = "free"
	ModePositional Mode = "positional"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeFree || m == ModePositional
}

// Tier is the aggregate quality classification of a result.
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierFair      Tier = "fair"
	TierPartial   Tier = "partial"
	TierNone      Tier = "none"
)

// Correctness classifies a single expected token.
type Correctness string

const (
	CorrectExact Correctness = "exact"
	CorrectClose Correctness = "close"
	CorrectLoose Correctness = "loose"
	Missing      Correctness = "missing"
)

// Thresholds holds the cut-offs used for matching and tier classification.
// The zero value is not useful; start from [DefaultThresholds].
type Thresholds struct {
	// MinMatch is the lowest similarity a free-mode pair may have. Default: 0.5.
	MinMatch float64 `yaml:"min_match" json:"min_match"`

	// GoodBand is the similarity at or above which a pair counts towards the
	// good proportion and is reported as [CorrectClose]. Default: 0.7.
	GoodBand float64 `yaml:"good_band" json:"good_band"`

	// Excellent is the exact-match proportion required for [TierExcellent].
	// Default: 0.90.
	Excellent float64 `yaml:"excellent" json:"excellent"`

	// Good is the good-band proportion required for [TierGood]. Default: 0.80.
	Good float64 `yaml:"good" json:"good"`

	// Fair is the any-match proportion required for [TierFair]. Default: 0.60.
	Fair float64 `yaml:"fair" json:"fair"`
}

// DefaultThresholds returns the thresholds the exercises were calibrated with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinMatch:  0.5,
		GoodBand:  0.7,
		Excellent: 0.90,
		Good:      0.80,
		Fair:      0.60,
	}
}

// Validate checks that all thresholds lie in (0, 1].
func (t Thresholds) Validate() error {
	var errs []error
	check := func(name string, v float64) {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range (0, 1]", name, v))
		}
	}
	check("min_match", t.MinMatch)
	check("good_band", t.GoodBand)
	check("excellent", t.Excellent)
	check("good", t.Good)
	check("fair", t.Fair)
	if t.GoodBand < t.MinMatch {
		errs = append(errs, fmt.Errorf("good_band %.2f must not be below min_match %.2f", t.GoodBand, t.MinMatch))
	}
	return errors.Join(errs...)
}

// Pair links an expected token to the candidate token that matched it.
// Indices refer to the caller's original slices.
type Pair struct {
	ExpectedIndex  int     `json:"expected_index"`
	CandidateIndex int     `json:"candidate_index"`
	Score          float64 `json:"score"`
}

// TokenResult is the verdict for one expected token.
type TokenResult struct {
	ExpectedIndex int         `json:"expected_index"`
	Token         string      `json:"token"`
	Correctness   Correctness `json:"correctness"`

	// CandidateIndex is the matched candidate index, or -1.
	CandidateIndex int     `json:"candidate_index"`
	Score          float64 `json:"score"`
}

// NearMiss is an unmatched expected token that sounds like an unmatched
// candidate token. It is informational and never changes the tier.
type NearMiss struct {
	ExpectedIndex  int    `json:"expected_index"`
	CandidateIndex int    `json:"candidate_index"`
	Expected       string `json:"expected"`
	Heard          string `json:"heard"`
}

// Stats summarises a result.
type Stats struct {
	Expected  int `json:"expected"`
	Candidate int `json:"candidate"`
	Exact     int `json:"exact"`
	Good      int `json:"good"`
	Matched   int `json:"matched"`

	ExactRatio float64 `json:"exact_ratio"`
	GoodRatio  float64 `json:"good_ratio"`
	MatchRatio float64 `json:"match_ratio"`

	// Score is the sum of pair scores divided by the expected count.
	Score float64 `json:"score"`

	UnmatchedCandidates []int      `json:"unmatched_candidates"`
	NearMisses          []NearMiss `json:"near_misses,omitempty"`
}

// Result is the outcome of one grading call.
type Result struct {
	Mode   Mode          `json:"mode"`
	Pairs  []Pair        `json:"pairs"`
	Tokens []TokenResult `json:"tokens"`
	Tier   Tier          `json:"tier"`
	Stats  Stats         `json:"stats"`
}

// Option configures a [Scorer].
type Option func(*Scorer)

// WithThresholds replaces the default thresholds.
func WithThresholds(t Thresholds) Option {
	return func(s *Scorer) {
		s.th = t
	}
}

// WithoutNearMisses disables the phonetic near-miss diagnostics.
func WithoutNearMisses() Option {
	return func(s *Scorer) {
		s.nearMisses = false
	}
}

// Scorer grades answers. Create one with [New].
type Scorer struct {
	th         Thresholds
	nearMisses bool
}

// New returns a Scorer using [DefaultThresholds] unless overridden.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		th:         DefaultThresholds(),
		nearMisses: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Thresholds returns the thresholds the scorer was built with.
func (s *Scorer) Thresholds() Thresholds { return s.th }

// Score aligns candidate against expected in the given mode. Tokens that
// normalise to the empty string are ignored. An empty expected list yields
// [TierNone] without error. The only error is [ErrInvalidMode].
func (s *Scorer) Score(expected, candidate []string, mode Mode) (Result, error) {
	switch mode {
	case ModeFree:
		return s.scoreFree(expected, candidate), nil
	case ModePositional:
		return s.scorePositional(expected, candidate), nil
	default:
		return Result{Mode: mode, Tier: TierNone}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

func (s *Scorer) scoreFree(expected, candidate []string) Result {
	exp, expIdx := textnorm.NormalizeAll(expected)
	cand, candIdx := textnorm.NormalizeAll(candidate)

	usedExp := make([]bool, len(exp))
	match := make([]int, len(exp)) // expected position -> candidate position
	scores := make([]float64, len(exp))
	for i := range match {
		match[i] = -1
	}
	usedCand := make([]bool, len(cand))

	for ci, c := range cand {
		best, bestScore := -1, 0.0
		for ei, e := range exp {
			if usedExp[ei] {
				continue
			}
			// Strictly greater keeps the lowest expected index on ties.
			if sim := Similarity(c, e); sim >= s.th.MinMatch && sim > bestScore {
				best, bestScore = ei, sim
			}
		}
		if best < 0 {
			continue
		}
		usedExp[best] = true
		usedCand[ci] = true
		match[best] = ci
		scores[best] = bestScore
	}

	res := s.assemble(ModeFree, exp, expIdx, cand, candIdx, match, scores, usedCand)
	res.Tier = s.tier(res.Stats)
	return res
}

func (s *Scorer) scorePositional(expected, candidate []string) Result {
	exp, expIdx := textnorm.NormalizeAll(expected)

	// Slots are addressed by the caller's original index so that an empty
	// slot in the candidate does not shift the tokens after it.
	cand := make([]string, len(exp))
	candIdx := make([]int, len(exp))
	match := make([]int, len(exp))
	scores := make([]float64, len(exp))
	usedCand := make([]bool, len(exp))
	for ei, orig := range expIdx {
		candIdx[ei] = orig
		match[ei] = -1
		if orig < len(candidate) {
			cand[ei] = textnorm.Normalize(candidate[orig])
		}
		if cand[ei] != "" && cand[ei] == exp[ei] {
			match[ei] = ei
			scores[ei] = SimExact
			usedCand[ei] = true
		}
	}

	res := s.assemble(ModePositional, exp, expIdx, cand, candIdx, match, scores, usedCand)
	res.Stats.Candidate = countNonEmpty(candidate)

	// Candidate tokens beyond the expected slots, or sitting in a slot whose
	// expected token was empty, are unmatched as well.
	inSlot := make(map[int]bool, len(expIdx))
	for _, orig := range expIdx {
		inSlot[orig] = true
	}
	for i, c := range candidate {
		if !inSlot[i] && textnorm.Normalize(c) != "" {
			res.Stats.UnmatchedCandidates = append(res.Stats.UnmatchedCandidates, i)
		}
	}
	slices.Sort(res.Stats.UnmatchedCandidates)

	res.Tier = s.tier(res.Stats)
	return res
}

// assemble builds pairs, per-token verdicts and stats. match maps expected
// positions to candidate positions (or -1) within the normalised slices.
func (s *Scorer) assemble(mode Mode, exp []string, expIdx []int, cand []string, candIdx []int, match []int, scores []float64, usedCand []bool) Result {
	res := Result{
		Mode:   mode,
		Pairs:  []Pair{},
		Tokens: make([]TokenResult, 0, len(exp)),
	}
	st := Stats{
		Expected:            len(exp),
		Candidate:           len(cand),
		UnmatchedCandidates: []int{},
	}

	var total float64
	for ei, e := range exp {
		tr := TokenResult{
			ExpectedIndex:  expIdx[ei],
			Token:          e,
			Correctness:    Missing,
			CandidateIndex: -1,
		}
		if ci := match[ei]; ci >= 0 {
			sc := scores[ei]
			res.Pairs = append(res.Pairs, Pair{
				ExpectedIndex:  expIdx[ei],
				CandidateIndex: candIdx[ci],
				Score:          sc,
			})
			tr.CandidateIndex = candIdx[ci]
			tr.Score = sc
			total += sc
			st.Matched++
			switch {
			case sc >= SimExact:
				st.Exact++
				st.Good++
				tr.Correctness = CorrectExact
			case sc >= s.th.GoodBand:
				st.Good++
				tr.Correctness = CorrectClose
			default:
				tr.Correctness = CorrectLoose
			}
		}
		res.Tokens = append(res.Tokens, tr)
	}

	for ci := range cand {
		if !usedCand[ci] && cand[ci] != "" {
			st.UnmatchedCandidates = append(st.UnmatchedCandidates, candIdx[ci])
		}
	}

	if st.Expected > 0 {
		n := float64(st.Expected)
		st.ExactRatio = float64(st.Exact) / n
		st.GoodRatio = float64(st.Good) / n
		st.MatchRatio = float64(st.Matched) / n
		st.Score = total / n
	}
	if s.nearMisses {
		st.NearMisses = nearMisses(exp, expIdx, cand, candIdx, match, usedCand, mode)
	}
	res.Stats = st
	return res
}

func (s *Scorer) tier(st Stats) Tier {
	switch {
	case st.Expected == 0 || st.Matched == 0:
		return TierNone
	case st.ExactRatio >= s.th.Excellent:
		return TierExcellent
	case st.GoodRatio >= s.th.Good:
		return TierGood
	case st.MatchRatio >= s.th.Fair:
		return TierFair
	default:
		return TierPartial
	}
}

func countNonEmpty(tokens []string) int {
	n := 0
	for _, t := range tokens {
		if textnorm.Normalize(t) != "" {
			n++
		}
	}
	return n
}
