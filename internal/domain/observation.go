package domain

import (
	"regexp"
	"strings"
)

// PlaceholderObservation stands in when no observation could be extracted.
const PlaceholderObservation = "No specific observations available"

// maxSentenceObservations caps observations taken from unbulleted text.
const maxSentenceObservations = 4

var (
	// bulletRe matches a bullet line ("• ", "* ", "- ") and captures its body.
	bulletRe = regexp.MustCompile(`^\s*[•*-]\s+(.*)$`)

	// sentenceEndRe splits prose on sentence-terminal punctuation.
	sentenceEndRe = regexp.MustCompile(`[.!?]+`)
)

// Observation is one discrete piece of extracted analysis text. Order is the
// position in which it was extracted.
type Observation struct {
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// Split separates a "label: content" observation on its first colon.
// Unlabeled text returns ok=false and the trimmed text as content.
func (o Observation) Split() (label, content string, ok bool) {
	before, after, found := strings.Cut(o.Text, ":")
	label = strings.TrimSpace(before)
	if !found || label == "" {
		return "", strings.TrimSpace(o.Text), false
	}
	return label, strings.TrimSpace(after), true
}

// hasLabel reports whether the observation starts with the given label,
// which must include its trailing colon.
func (o Observation) hasLabel(label string) bool {
	text := strings.TrimSpace(o.Text)
	return len(text) >= len(label) && strings.EqualFold(text[:len(label)], label)
}

// content returns the text after the given label prefix.
func (o Observation) content(label string) string {
	return strings.TrimSpace(strings.TrimSpace(o.Text)[len(label):])
}

// ParseObservations splits raw analysis text into ordered observations.
// Bullet lines win; otherwise the first sentences are used; otherwise a single
// placeholder is returned. The result is never empty.
func ParseObservations(text string) []Observation {
	if obs := parseBullets(text); len(obs) > 0 {
		return obs
	}
	if obs := parseSentences(text); len(obs) > 0 {
		return obs
	}
	return placeholderObservations()
}

// ObservationsFromPayload normalizes structured payload observations. A
// leading bullet marker is stripped so both upstream shapes render alike.
func ObservationsFromPayload(items []ObservationInput) []Observation {
	out := make([]Observation, 0, len(items))
	for _, item := range items {
		text := strings.TrimSpace(item.Text)
		if m := bulletRe.FindStringSubmatch(text); m != nil {
			text = strings.TrimSpace(m[1])
		}
		if text == "" {
			continue
		}
		out = append(out, Observation{Text: text, Order: len(out)})
	}
	if len(out) == 0 {
		return placeholderObservations()
	}
	return out
}

func parseBullets(text string) []Observation {
	var out []Observation
	for _, line := range strings.Split(text, "\n") {
		m := bulletRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		body := strings.TrimSpace(m[1])
		if body == "" {
			continue
		}
		out = append(out, Observation{Text: body, Order: len(out)})
	}
	return out
}

func parseSentences(text string) []Observation {
	var out []Observation
	for _, s := range sentenceEndRe.Split(text, -1) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			continue
		}
		out = append(out, Observation{Text: s, Order: len(out)})
		if len(out) == maxSentenceObservations {
			break
		}
	}
	return out
}

func placeholderObservations() []Observation {
	return []Observation{{Text: PlaceholderObservation, Order: 0}}
}
