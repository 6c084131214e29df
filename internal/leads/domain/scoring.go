package domain

import "strings"

// ScoreInput carries the intake answers that feed the lead score. Fields
// beyond the routing attributes (intake progress, location preferences,
// property criteria) are scored at ingestion and not persisted.
type ScoreInput struct {
	BudgetRange        string
	Timeframe          string
	IntakeComplete     bool
	QuestionsAnswered  int
	LocationPreference []string
	PropertyType       string
	PropertyPurpose    string
	BedroomsDesired    string
	SeaViewImportance  string
}

// Score computes the 0-100 lead score: budget weight 30, timeframe 25,
// intake completion 20, location specificity 15, criteria completeness 10.
func Score(in ScoreInput) int {
	score := 0

	budget := strings.ToLower(in.BudgetRange)
	switch {
	case strings.Contains(budget, "2m"), strings.Contains(budget, "2,000,000"), strings.Contains(budget, "€2"):
		score += 30
	case strings.Contains(budget, "1m"), strings.Contains(budget, "1,000,000"), strings.Contains(budget, "€1"):
		score += 25
	case strings.Contains(budget, "500k"), strings.Contains(budget, "500,000"):
		score += 20
	case strings.Contains(budget, "300k"), strings.Contains(budget, "300,000"):
		score += 15
	default:
		score += 10
	}

	timeframe := strings.ToLower(in.Timeframe)
	switch {
	case strings.Contains(timeframe, "6_month"), strings.Contains(timeframe, "immediate"):
		score += 25
	case strings.Contains(timeframe, "1_year"), strings.Contains(timeframe, "12_month"):
		score += 20
	case strings.Contains(timeframe, "2_year"):
		score += 15
	default:
		score += 5
	}

	switch {
	case in.IntakeComplete:
		score += 20
	case in.QuestionsAnswered >= 3:
		score += 15
	case in.QuestionsAnswered >= 1:
		score += 10
	}

	switch {
	case len(in.LocationPreference) >= 2:
		score += 15
	case len(in.LocationPreference) == 1:
		score += 10
	default:
		score += 5
	}

	// Each answered property criterion is worth 2.5 points. Integer math:
	// count*5/2 matches the rounded original for 0-4 criteria.
	criteria := 0
	if in.PropertyType != "" {
		criteria++
	}
	if in.PropertyPurpose != "" {
		criteria++
	}
	if in.BedroomsDesired != "" {
		criteria++
	}
	if in.SeaViewImportance != "" {
		criteria++
	}
	score += (criteria*5 + 1) / 2

	if score > 100 {
		score = 100
	}
	return score
}

// SegmentFor maps a score to its segment bucket.
func SegmentFor(score int) Segment {
	switch {
	case score >= 80:
		return SegmentHot
	case score >= 60:
		return SegmentWarm
	case score >= 40:
		return SegmentCool
	default:
		return SegmentCold
	}
}
