package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ObservationInput is one upstream observation. It arrives either as a bare
// JSON string or as an object with a "text" field.
type ObservationInput struct {
	Text string
}

// UnmarshalJSON accepts both "..." and {"text": "..."}.
func (o *ObservationInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Text = s
		return nil
	}

	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("observation must be a string or an object with a text field: %w", err)
	}
	o.Text = obj.Text
	return nil
}

// MarshalJSON always writes the bare string form.
func (o ObservationInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Text)
}

// StructuredPayload is the loosely structured upstream answer. Every field is
// optional; missing fields fall back to defaults during interpretation.
type StructuredPayload struct {
	FireDetected *bool
	Probability  *float64
	Observations []ObservationInput
}

// wirePayload lists the JSON spellings seen from upstream: the camelCase
// contract plus the snake_case keys of the analyze endpoint.
type wirePayload struct {
	Text            *string            `json:"text"`
	FireDetected    *bool              `json:"fireDetected"`
	FireDetectedAlt *bool              `json:"fire_detected"`
	Probability     *float64           `json:"probability"`
	FireProbability *float64           `json:"fire_probability"`
	Observations    []ObservationInput `json:"observations"`
}

func (w wirePayload) payload() StructuredPayload {
	p := StructuredPayload{
		FireDetected: w.FireDetected,
		Probability:  w.Probability,
		Observations: w.Observations,
	}
	if p.FireDetected == nil {
		p.FireDetected = w.FireDetectedAlt
	}
	if p.Probability == nil {
		p.Probability = w.FireProbability
	}
	return p
}

func (w wirePayload) hasStructuredFields() bool {
	return w.FireDetected != nil || w.FireDetectedAlt != nil ||
		w.Probability != nil || w.FireProbability != nil ||
		w.Observations != nil
}

// UnmarshalJSON decodes any of the accepted key spellings.
func (p *StructuredPayload) UnmarshalJSON(data []byte) error {
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = w.payload()
	return nil
}

// MarshalJSON writes the camelCase contract form.
func (p StructuredPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		FireDetected *bool              `json:"fireDetected,omitempty"`
		Probability  *float64           `json:"probability,omitempty"`
		Observations []ObservationInput `json:"observations,omitempty"`
	}{p.FireDetected, p.Probability, p.Observations})
}

// AnalysisInput is exactly one of: raw analysis text, or a structured payload.
type AnalysisInput struct {
	Text    string
	Payload *StructuredPayload
}

// TextInput wraps free-form analysis text.
func TextInput(text string) AnalysisInput {
	return AnalysisInput{Text: text}
}

// PayloadInput wraps a structured payload.
func PayloadInput(p StructuredPayload) AnalysisInput {
	return AnalysisInput{Payload: &p}
}

// IsStructured reports whether the input carries a structured payload.
func (in AnalysisInput) IsStructured() bool {
	return in.Payload != nil
}

// DecodeAnalysis turns an upstream message body into an AnalysisInput.
// Bodies that start with "{" must be valid JSON: an object with only a "text"
// key is raw text, anything else is a structured payload. Every other body is
// raw analysis text, including the empty body.
func DecodeAnalysis(data []byte) (AnalysisInput, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return TextInput(string(data)), nil
	}

	var w wirePayload
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return AnalysisInput{}, fmt.Errorf("decode analysis payload: %w", err)
	}
	if w.Text != nil && !w.hasStructuredFields() {
		return TextInput(*w.Text), nil
	}
	return PayloadInput(w.payload()), nil
}
