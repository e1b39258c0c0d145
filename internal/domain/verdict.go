package domain

import "math"

// DetectionThreshold is the probability at or above which an otherwise
// inconclusive analysis counts as a detection.
const DetectionThreshold = 0.50

// Verdict is the final structured answer for one analysis.
type Verdict struct {
	FireDetected      bool    `json:"fire_detected"`
	Probability       float64 `json:"probability"`
	ConfidencePercent int     `json:"confidence_percent"`
}

// ResolveVerdict combines the interpretation stages under a fixed
// precedence:
//
//  1. a supplied fireDetected is used verbatim;
//  2. with any cue or conclusion present, fire is detected iff heat was
//     observed or the conclusion asserts fire (smoke and vegetation only
//     corroborate);
//  3. a fully inconclusive input falls back to the probability threshold.
//
// Confidence is derived from the probability regardless of which rule
// decided detection.
func ResolveVerdict(flags SignalFlags, conclusion ConclusionSignal, estimate ProbabilityEstimate, supplied *bool) Verdict {
	p := Clamp(estimate.Value)

	var detected bool
	switch {
	case supplied != nil:
		detected = *supplied
	case flags.Any() || conclusion.Present:
		detected = flags.HasHeat || conclusion.AssertsFire
	default:
		detected = p >= DetectionThreshold
	}

	return Verdict{
		FireDetected:      detected,
		Probability:       p,
		ConfidencePercent: int(math.Round(p * 100)),
	}
}

// Interpretation is everything derived from one AnalysisInput.
type Interpretation struct {
	Observations []Observation       `json:"observations"`
	Signals      SignalFlags         `json:"signals"`
	Conclusion   ConclusionSignal    `json:"conclusion"`
	Estimate     ProbabilityEstimate `json:"estimate"`
	Verdict      Verdict             `json:"verdict"`
}

// Interpret runs the whole engine over one input. It never fails: empty or
// partial inputs resolve to placeholder observations and default values.
func Interpret(in AnalysisInput) Interpretation {
	var (
		obs      []Observation
		supplied *bool
	)
	if in.Payload != nil {
		obs = ObservationsFromPayload(in.Payload.Observations)
		supplied = in.Payload.FireDetected
	} else {
		obs = ParseObservations(in.Text)
	}

	flags := ExtractSignals(obs)
	conclusion, flags := AnalyzeConclusion(obs, flags)
	estimate := EstimateProbability(in)

	return Interpretation{
		Observations: obs,
		Signals:      flags,
		Conclusion:   conclusion,
		Estimate:     estimate,
		Verdict:      ResolveVerdict(flags, conclusion, estimate, supplied),
	}
}
