package domain

import (
	"math"
	"regexp"
	"strconv"
)

// ProbabilitySource records which rule produced a probability.
type ProbabilitySource string

const (
	SourceExplicitPercentage ProbabilitySource = "explicit_percentage"
	SourceKeywordHeuristic   ProbabilitySource = "keyword_heuristic"
	SourceSuppliedNumeric    ProbabilitySource = "supplied_numeric"
	SourceDefault            ProbabilitySource = "default"
)

// DefaultProbability applies when nothing in the input indicates a value.
const DefaultProbability = 0.30

var (
	// explicitPercentRe matches "72% chance", "15% probability", etc. The
	// number must be a whole integer, so "100.5%" is not read as "5%".
	explicitPercentRe = regexp.MustCompile(`(?i)(?:^|[^\d.])(\d+)%\s+(?:chance|probability|likelihood|risk)`)

	// keywordTiers are checked in order; the first tier with a hit wins.
	// Only the start of each phrase is anchored, so "extremely" counts as
	// "extreme" while "unlikely" does not count as "likely".
	keywordTiers = []struct {
		re    *regexp.Regexp
		value float64
	}{
		{regexp.MustCompile(`(?i)\b(?:high risk|severe|extreme|very likely)`), 0.85},
		{regexp.MustCompile(`(?i)\b(?:moderate risk|likely|possible)`), 0.50},
		{regexp.MustCompile(`(?i)\b(?:low risk|unlikely|minimal)`), 0.15},
	}
)

// ProbabilityEstimate is a normalized probability and where it came from.
type ProbabilityEstimate struct {
	Value  float64           `json:"value"`
	Source ProbabilitySource `json:"source"`
}

// EstimateProbability derives the probability for an input. Raw text goes
// through the explicit-percentage and keyword rules; a structured payload
// uses its numeric field directly and never touches the text rules.
func EstimateProbability(in AnalysisInput) ProbabilityEstimate {
	if in.Payload != nil {
		if in.Payload.Probability != nil {
			return ProbabilityEstimate{Value: Clamp(*in.Payload.Probability), Source: SourceSuppliedNumeric}
		}
		return ProbabilityEstimate{Value: DefaultProbability, Source: SourceDefault}
	}
	return EstimateFromText(in.Text)
}

// EstimateFromText applies the text rules: explicit percentage, then keyword
// tiers, then the default.
func EstimateFromText(text string) ProbabilityEstimate {
	if m := explicitPercentRe.FindStringSubmatch(text); m != nil {
		// Digits only, so the parse cannot fail short of overflowing to +Inf,
		// which Clamp caps at 1.
		pct, _ := strconv.ParseFloat(m[1], 64)
		return ProbabilityEstimate{Value: Clamp(pct / 100), Source: SourceExplicitPercentage}
	}
	for _, tier := range keywordTiers {
		if tier.re.MatchString(text) {
			return ProbabilityEstimate{Value: tier.value, Source: SourceKeywordHeuristic}
		}
	}
	return ProbabilityEstimate{Value: DefaultProbability, Source: SourceDefault}
}

// Clamp bounds p to [0,1]. NaN maps to 0.
func Clamp(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
