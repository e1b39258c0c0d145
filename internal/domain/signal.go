package domain

import "strings"

// SignalFlags are the boolean domain cues found in a set of observations.
// A cue that is never mentioned is false, not unknown.
type SignalFlags struct {
	HasSmoke              bool `json:"has_smoke"`
	HasHeat               bool `json:"has_heat"`
	HasVegetationDistress bool `json:"has_vegetation_distress"`
}

// Any reports whether at least one cue is set.
func (f SignalFlags) Any() bool {
	return f.HasSmoke || f.HasHeat || f.HasVegetationDistress
}

// Matcher inspects one observation's text. mentioned reports whether the
// category appears at all; value is what the text asserts about it.
type Matcher func(text string) (mentioned, value bool)

var (
	smokeNegations     = []string{"no smoke", "no visible smoke", "absence of smoke"}
	heatNegations      = []string{"no active burning", "no heat", "no fire"}
	heatCues           = []string{"heat zone", "fire:"}
	vegetationDistress = []string{"burn", "scorch", "damage", "distress"}
)

const (
	smokeCue      = "smoke:"
	vegetationCue = "vegetation:"
)

// signalRules binds each matcher to the flag it decides.
var signalRules = []struct {
	match Matcher
	set   func(*SignalFlags, bool)
}{
	{MatchSmoke, func(f *SignalFlags, v bool) { f.HasSmoke = v }},
	{MatchHeat, func(f *SignalFlags, v bool) { f.HasHeat = v }},
	{MatchVegetationDistress, func(f *SignalFlags, v bool) { f.HasVegetationDistress = v }},
}

// MatchSmoke detects a "smoke:" observation unless it negates smoke.
func MatchSmoke(text string) (mentioned, value bool) {
	t := strings.ToLower(text)
	if !strings.Contains(t, smokeCue) {
		return false, false
	}
	return true, !containsAny(t, smokeNegations)
}

// MatchHeat detects a heat zone or "fire:" observation unless it negates
// burning.
func MatchHeat(text string) (mentioned, value bool) {
	t := strings.ToLower(text)
	if !containsAny(t, heatCues) {
		return false, false
	}
	return true, !containsAny(t, heatNegations)
}

// MatchVegetationDistress detects a "vegetation:" observation; it only
// counts as distress when burn or damage wording is present.
func MatchVegetationDistress(text string) (mentioned, value bool) {
	t := strings.ToLower(text)
	if !strings.Contains(t, vegetationCue) {
		return false, false
	}
	return true, containsAny(t, vegetationDistress)
}

// ExtractSignals scans observations in order. Categories are independent and
// the last observation that mentions a category decides it.
func ExtractSignals(obs []Observation) SignalFlags {
	var flags SignalFlags
	for _, o := range obs {
		for _, rule := range signalRules {
			if mentioned, v := rule.match(o.Text); mentioned {
				rule.set(&flags, v)
			}
		}
	}
	return flags
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
