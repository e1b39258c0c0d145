package domain

import "strings"

const (
	locationLabel   = "location:"
	conclusionLabel = "conclusion:"
)

var (
	conclusionAssertions = []string{"fire detected", "active fire"}
	conclusionDenials    = []string{"no fire detected", "no active fire"}
)

// ConclusionSignal describes the analysis' explicit concluding statement.
type ConclusionSignal struct {
	Present     bool `json:"present"`
	AssertsFire bool `json:"asserts_fire"`
}

// FindConclusion returns the first observation labeled "Conclusion:".
func FindConclusion(obs []Observation) (Observation, bool) {
	return findLabeled(obs, conclusionLabel)
}

// FindLocation returns the first observation labeled "Location:".
func FindLocation(obs []Observation) (Observation, bool) {
	return findLabeled(obs, locationLabel)
}

func findLabeled(obs []Observation, label string) (Observation, bool) {
	for _, o := range obs {
		if o.hasLabel(label) {
			return o, true
		}
	}
	return Observation{}, false
}

// AnalyzeConclusion reads the conclusion and reconciles it with the signal
// flags. A conclusion that denies fire is authoritative: the returned flags
// have smoke and heat cleared. The given flags are not modified.
func AnalyzeConclusion(obs []Observation, flags SignalFlags) (ConclusionSignal, SignalFlags) {
	o, ok := FindConclusion(obs)
	if !ok {
		return ConclusionSignal{}, flags
	}

	text := strings.ToLower(o.Text)
	signal := ConclusionSignal{
		Present:     true,
		AssertsFire: containsAny(text, conclusionAssertions),
	}
	if containsAny(text, conclusionDenials) {
		signal.AssertsFire = false
		flags.HasSmoke = false
		flags.HasHeat = false
	}
	return signal, flags
}
