package scoring_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/lisible/internal/scoring"
)

func TestScore_FreeModeCloseWordIsGoodNotExcellent(t *testing.T) {
	t.Parallel()

	s := scoring.New()
	res, err := s.Score([]string{"le", "chat", "noir"}, []string{"le", "chah", "noir"}, scoring.ModeFree)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Tier != scoring.TierGood {
		t.Errorf("Tier = %q, want %q", res.Tier, scoring.TierGood)
	}
	if len(res.Pairs) != 3 {
		t.Fatalf("len(Pairs) = %d, want 3", len(res.Pairs))
	}
	chat := res.Tokens[1]
	if chat.CandidateIndex != 1 || chat.Score < 0.7 {
		t.Errorf("expected token %q matched candidate %d with score %v, want candidate 1 with score >= 0.7",
			chat.Token, chat.CandidateIndex, chat.Score)
	}
	if chat.Correctness != scoring.CorrectClose {
		t.Errorf("Correctness = %q, want %q", chat.Correctness, scoring.CorrectClose)
	}
	if res.Stats.Exact != 2 || res.Stats.Good != 3 || res.Stats.Matched != 3 {
		t.Errorf("Stats = %+v, want exact=2 good=3 matched=3", res.Stats)
	}
	if want := (1 + 0.8 + 1) / 3; math.Abs(res.Stats.Score-want) > 1e-9 {
		t.Errorf("Stats.Score = %v, want %v", res.Stats.Score, want)
	}
}

func TestScore_FreeModeToleratesReordering(t *testing.T) {
	t.Parallel()

	s := scoring.New()
	res, err := s.Score([]string{"le", "petit", "chat"}, []string{"chat", "le", "petit"}, scoring.ModeFree)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Tier != scoring.TierExcellent {
		t.Errorf("Tier = %q, want %q", res.Tier, scoring.TierExcellent)
	}
}

func TestScore_FreeModeTiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		expected  []string
		candidate []string
		want      scoring.Tier
	}{
		{"excellent", []string{"un", "deux", "trois"}, []string{"un", "deux", "trois"}, scoring.TierExcellent},
		{"fair", []string{"un", "deux", "trois", "quatre", "cinq"}, []string{"un", "deux", "trois"}, scoring.TierFair},
		{"partial", []string{"un", "deux", "trois"}, []string{"un"}, scoring.TierPartial},
		{"none", []string{"un"}, []string{"zzz"}, scoring.TierNone},
		{"empty candidate", []string{"un"}, nil, scoring.TierNone},
		{"empty expected", nil, []string{"un"}, scoring.TierNone},
	}
	s := scoring.New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res, err := s.Score(tc.expected, tc.candidate, scoring.ModeFree)
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if res.Tier != tc.want {
				t.Errorf("Tier = %q, want %q (stats %+v)", res.Tier, tc.want, res.Stats)
			}
		})
	}
}

func TestScore_FreeModeExpectedTokenUsedOnce(t *testing.T) {
	t.Parallel()

	res, err := scoring.New().Score([]string{"le"}, []string{"le", "le"}, scoring.ModeFree)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(res.Pairs) != 1 {
		t.Fatalf("len(Pairs) = %d, want 1", len(res.Pairs))
	}
	if !slices.Equal(res.Stats.UnmatchedCandidates, []int{1}) {
		t.Errorf("UnmatchedCandidates = %v, want [1]", res.Stats.UnmatchedCandidates)
	}
}

func TestScore_SkipsPunctuationOnlyTokens(t *testing.T) {
	t.Parallel()

	res, err := scoring.New().Score([]string{"Le", "chat."}, []string{"le", "!!", "chat"}, scoring.ModeFree)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Tier != scoring.TierExcellent {
		t.Errorf("Tier = %q, want excellent", res.Tier)
	}
	if len(res.Stats.UnmatchedCandidates) != 0 {
		t.Errorf("UnmatchedCandidates = %v, want none", res.Stats.UnmatchedCandidates)
	}
	if got := res.Pairs[1].CandidateIndex; got != 2 {
		t.Errorf("Pairs[1].CandidateIndex = %d, want original index 2", got)
	}
}

func TestScore_PositionalModeIsStrict(t *testing.T) {
	t.Parallel()

	res, err := scoring.New().Score([]string{"le", "chat", "noir"}, []string{"chat", "le", "noir"}, scoring.ModePositional)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Stats.Matched != 1 || res.Stats.Expected != 3 {
		t.Fatalf("Stats = %+v, want 1 of 3 correct", res.Stats)
	}
	if math.Abs(res.Stats.MatchRatio-1.0/3) > 1e-9 {
		t.Errorf("MatchRatio = %v, want 1/3", res.Stats.MatchRatio)
	}
	if res.Tier != scoring.TierPartial {
		t.Errorf("Tier = %q, want %q", res.Tier, scoring.TierPartial)
	}
	wantCorrectness := []scoring.Correctness{scoring.Missing, scoring.Missing, scoring.CorrectExact}
	for i, tr := range res.Tokens {
		if tr.Correctness != wantCorrectness[i] {
			t.Errorf("Tokens[%d].Correctness = %q, want %q", i, tr.Correctness, wantCorrectness[i])
		}
	}
	if !slices.Equal(res.Stats.UnmatchedCandidates, []int{0, 1}) {
		t.Errorf("UnmatchedCandidates = %v, want [0 1]", res.Stats.UnmatchedCandidates)
	}
}

func TestScore_PositionalModeIgnoresFuzzySimilarity(t *testing.T) {
	t.Parallel()

	res, err := scoring.New().Score([]string{"chat"}, []string{"chats"}, scoring.ModePositional)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Stats.Matched != 0 || res.Tier != scoring.TierNone {
		t.Errorf("got matched=%d tier=%q, want 0 and none", res.Stats.Matched, res.Tier)
	}
}

func TestScore_PositionalModeEmptySlotDoesNotShift(t *testing.T) {
	t.Parallel()

	res, err := scoring.New().Score([]string{"un", "deux", "trois"}, []string{"un", "", "trois", "quatre"}, scoring.ModePositional)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Stats.Matched != 2 {
		t.Errorf("Matched = %d, want 2", res.Stats.Matched)
	}
	if !slices.Equal(res.Stats.UnmatchedCandidates, []int{3}) {
		t.Errorf("UnmatchedCandidates = %v, want [3]", res.Stats.UnmatchedCandidates)
	}
	if res.Stats.Candidate != 3 {
		t.Errorf("Candidate = %d, want 3", res.Stats.Candidate)
	}
}

func TestScore_InvalidMode(t *testing.T) {
	t.Parallel()

	res, err := scoring.New().Score([]string{"a"}, []string{"a"}, scoring.Mode("fuzzy"))
	if !errors.Is(err, scoring.ErrInvalidMode) {
		t.Fatalf("err = %v, want ErrInvalidMode", err)
	}
	if res.Tier != scoring.TierNone {
		t.Errorf("Tier = %q, want none", res.Tier)
	}
}

func TestScore_PhoneticNearMiss(t *testing.T) {
	t.Parallel()

	res, err := scoring.New().Score([]string{"phil"}, []string{"fil"}, scoring.ModeFree)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Tier != scoring.TierNone {
		t.Errorf("Tier = %q, want none (near misses never change the tier)", res.Tier)
	}
	if len(res.Stats.NearMisses) != 1 {
		t.Fatalf("NearMisses = %+v, want one", res.Stats.NearMisses)
	}
	if nm := res.Stats.NearMisses[0]; nm.Expected != "phil" || nm.Heard != "fil" {
		t.Errorf("NearMiss = %+v", nm)
	}

	quiet, _ := scoring.New(scoring.WithoutNearMisses()).Score([]string{"phil"}, []string{"fil"}, scoring.ModeFree)
	if len(quiet.Stats.NearMisses) != 0 {
		t.Errorf("NearMisses with WithoutNearMisses = %+v, want none", quiet.Stats.NearMisses)
	}
}

func TestScore_CustomThresholds(t *testing.T) {
	t.Parallel()

	th := scoring.DefaultThresholds()
	th.Excellent = 0.6
	s := scoring.New(scoring.WithThresholds(th))
	res, err := s.Score([]string{"le", "chat", "noir"}, []string{"le", "chah", "noir"}, scoring.ModeFree)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Tier != scoring.TierExcellent {
		t.Errorf("Tier = %q, want excellent with lowered threshold", res.Tier)
	}
}

func TestThresholds_Validate(t *testing.T) {
	t.Parallel()

	if err := scoring.DefaultThresholds().Validate(); err != nil {
		t.Errorf("DefaultThresholds().Validate() = %v, want nil", err)
	}
	bad := scoring.DefaultThresholds()
	bad.Fair = 0
	bad.GoodBand = 0.4
	if err := bad.Validate(); err == nil {
		t.Error("Validate() = nil, want error for zero fair and good_band below min_match")
	}
}
