package domain

import "testing"

func TestScoreCompleteHotLead(t *testing.T) {
	score := Score(ScoreInput{
		BudgetRange:        "€2m+",
		Timeframe:          "immediate",
		IntakeComplete:     true,
		LocationPreference: []string{"marbella", "estepona"},
		PropertyType:       "villa",
		PropertyPurpose:    "residence",
		BedroomsDesired:    "4",
		SeaViewImportance:  "essential",
	})
	if score != 100 {
		t.Fatalf("expected capped score 100, got %d", score)
	}
	if SegmentFor(score) != SegmentHot {
		t.Fatalf("expected Hot segment, got %s", SegmentFor(score))
	}
}

func TestScoreEmptyPayloadGetsBaseline(t *testing.T) {
	// Unknown budget and timeframe still score their base points.
	score := Score(ScoreInput{})
	if score != 20 {
		t.Fatalf("expected baseline score 20, got %d", score)
	}
	if SegmentFor(score) != SegmentCold {
		t.Fatalf("expected Cold segment, got %s", SegmentFor(score))
	}
}

func TestScoreBudgetTiers(t *testing.T) {
	cases := []struct {
		budget string
		want   int
	}{
		{"€2,000,000 - €3,000,000", 30},
		{"€1,000,000 - €1,500,000", 25},
		{"500k - 750k", 20},
		{"300k - 400k", 15},
		{"under 300", 10},
		{"", 10},
		// Range labels spanning two tiers score the upper bound.
		{"1m-2m", 30},
		{"500k-1m", 25},
	}
	for _, tc := range cases {
		got := Score(ScoreInput{BudgetRange: tc.budget}) - Score(ScoreInput{}) + 10
		if got != tc.want {
			t.Fatalf("budget %q: expected %d points, got %d", tc.budget, tc.want, got)
		}
	}
}

func TestScoreCriteriaRounding(t *testing.T) {
	// One criterion is worth 2.5 points, rounded half up.
	base := Score(ScoreInput{})
	withOne := Score(ScoreInput{PropertyType: "villa"})
	if withOne-base != 3 {
		t.Fatalf("expected 3 points for one criterion, got %d", withOne-base)
	}
	withTwo := Score(ScoreInput{PropertyType: "villa", PropertyPurpose: "investment"})
	if withTwo-base != 5 {
		t.Fatalf("expected 5 points for two criteria, got %d", withTwo-base)
	}
}

func TestSegmentBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  Segment
	}{
		{100, SegmentHot},
		{80, SegmentHot},
		{79, SegmentWarm},
		{60, SegmentWarm},
		{59, SegmentCool},
		{40, SegmentCool},
		{39, SegmentCold},
		{0, SegmentCold},
	}
	for _, tc := range cases {
		if got := SegmentFor(tc.score); got != tc.want {
			t.Fatalf("score %d: expected %s, got %s", tc.score, tc.want, got)
		}
	}
}
