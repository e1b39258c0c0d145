// Package domain interprets satellite fire-analysis output.
//
// # Input Shapes
//
// The upstream image-analysis service answers with either free-form text or
// a loosely structured JSON payload:
//
//	"• Smoke: thin plume drifting east\n• Heat Zone: active burning on ridge\n..."
//
//	{"fire_detected": true, "fire_probability": 0.8, "observations": ["...", {"text": "..."}]}
//
// Both observation shapes (bare strings and {"text": ...} objects) are folded
// into [ObservationInput] at the decoding boundary, so nothing past
// [DecodeAnalysis] has to care which one arrived.
//
// # Observations
//
// Text is split into observations by bullet lines ("•", "*", "-" followed by
// whitespace). Text without bullets falls back to the first four sentences.
// An input that yields nothing produces a single placeholder observation.
// Observations may carry a label ("Smoke: thin plume"), and two labels are
// special:
//
//	Location:    rendered first in the report
//	Conclusion:  rendered last, and authoritative when it denies fire
//
// # Signals
//
// Three boolean cues are scanned case-insensitively per observation:
//
//	smoke       "smoke:"                    negated by "no smoke", "no visible smoke", "absence of smoke"
//	heat        "heat zone" or "fire:"      negated by "no active burning", "no heat", "no fire"
//	vegetation  "vegetation:"               true only with "burn", "scorch", "damage", "distress"
//
// A cue that is never mentioned is false. When several observations mention
// the same cue, the last one wins.
//
// # Probability
//
// In priority order: an explicit "<n>% chance|probability|likelihood|risk"
// phrase, then keyword tiers (0.85 high, 0.50 moderate, 0.15 low), then the
// 0.30 default. A structured payload never goes through the text heuristics:
// its numeric probability is used as-is (clamped), or the default when absent.
//
// # Verdict Precedence
//
//  1. A supplied fire_detected boolean is taken verbatim.
//  2. Otherwise, if any cue or a conclusion is present, fire is detected iff
//     heat was observed or the conclusion asserts fire.
//  3. Otherwise the input is inconclusive and fire is detected iff the
//     probability is at least 0.50.
//
// Confidence is always round(probability * 100).
//
// # Reports
//
// [BuildReport] renders a verdict into Location, body and Conclusion blocks,
// always in that order. [Report.ExportText] is the canonical plain-text
// export; identical inputs produce byte-identical output.
package domain
