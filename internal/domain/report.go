package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// UnknownLocation is rendered when neither the observations nor the
	// caller name a location.
	UnknownLocation = "Unknown location"

	ReportTitle  = "SATELLITE IMAGE FIRE DETECTION REPORT"
	ReportFooter = "Generated by California Fire Prediction System"

	reportDateLayout = "2006-01-02"

	fireConclusion   = "Based on the satellite imagery analysis, active fire detected in the observed area. Immediate attention is recommended."
	noFireConclusion = "Based on the satellite imagery analysis, no significant fire activity detected in the observed area."
)

// SectionKind identifies a block of the rendered report.
type SectionKind string

const (
	SectionLocation    SectionKind = "location"
	SectionObservation SectionKind = "observation"
	SectionConclusion  SectionKind = "conclusion"
)

// ReportEntry is one body line. Label is empty for unlabeled text.
type ReportEntry struct {
	Label   string `json:"label,omitempty"`
	Content string `json:"content"`
}

// Section is one block in render order.
type Section struct {
	Kind    SectionKind `json:"kind"`
	Label   string      `json:"label,omitempty"`
	Content string      `json:"content"`
}

// Report is the canonical display form of a verdict and its observations.
// It is derived on demand and never stored.
type Report struct {
	FireDetected      bool          `json:"fire_detected"`
	ConfidencePercent int           `json:"confidence_percent"`
	Location          string        `json:"location"`
	Body              []ReportEntry `json:"body"`
	Conclusion        string        `json:"conclusion"`
	Date              string        `json:"date"`
}

// BuildReport renders a verdict. The location comes from a "Location:"
// observation, else the given location, else UnknownLocation. Labeled
// location and conclusion observations never appear in the body.
func BuildReport(v Verdict, obs []Observation, date time.Time, location string) Report {
	r := Report{
		FireDetected:      v.FireDetected,
		ConfidencePercent: v.ConfidencePercent,
		Location:          reportLocation(obs, location),
		Conclusion:        reportConclusion(obs, v.FireDetected),
		Date:              date.Format(reportDateLayout),
		Body:              make([]ReportEntry, 0, len(obs)),
	}

	for _, o := range obs {
		if o.hasLabel(locationLabel) || o.hasLabel(conclusionLabel) {
			continue
		}
		label, content, _ := o.Split()
		r.Body = append(r.Body, ReportEntry{Label: label, Content: content})
	}
	return r
}

func reportLocation(obs []Observation, fallback string) string {
	if o, ok := FindLocation(obs); ok {
		if loc := o.content(locationLabel); loc != "" {
			return loc
		}
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return UnknownLocation
}

func reportConclusion(obs []Observation, fireDetected bool) string {
	if o, ok := FindConclusion(obs); ok {
		if c := o.content(conclusionLabel); c != "" {
			return c
		}
	}
	if fireDetected {
		return fireConclusion
	}
	return noFireConclusion
}

// Sections lists the report blocks in render order: location, body,
// conclusion.
func (r Report) Sections() []Section {
	out := make([]Section, 0, len(r.Body)+2)
	out = append(out, Section{Kind: SectionLocation, Content: r.Location})
	for _, e := range r.Body {
		out = append(out, Section{Kind: SectionObservation, Label: e.Label, Content: e.Content})
	}
	return append(out, Section{Kind: SectionConclusion, Content: r.Conclusion})
}

// Status is the detection badge text.
func (r Report) Status() string {
	if r.FireDetected {
		return "FIRE DETECTED"
	}
	return "NO FIRE DETECTED"
}

// ExportText renders the downloadable plain-text report.
func (r Report) ExportText() string {
	var b strings.Builder

	b.WriteString(ReportTitle + "\n")
	b.WriteString(strings.Repeat("=", len(ReportTitle)) + "\n\n")

	fmt.Fprintf(&b, "DETECTION STATUS: %s\n", r.Status())
	fmt.Fprintf(&b, "Confidence: %d%%\n\n", r.ConfidencePercent)

	b.WriteString("LOCATION:\n")
	b.WriteString(r.Location + "\n\n")

	b.WriteString("ANALYSIS DETAILS:\n")
	for _, e := range r.Body {
		switch {
		case e.Label == "":
			fmt.Fprintf(&b, "- %s\n", e.Content)
		case e.Content == "":
			fmt.Fprintf(&b, "- %s:\n", e.Label)
		default:
			fmt.Fprintf(&b, "- %s: %s\n", e.Label, e.Content)
		}
	}
	b.WriteString("\n")

	b.WriteString("CONCLUSION:\n")
	b.WriteString(r.Conclusion + "\n\n")

	fmt.Fprintf(&b, "Analysis Date: %s\n\n", r.Date)
	b.WriteString(ReportFooter + "\n")

	return b.String()
}

// ExportFilename is the download name for a report dated date.
func ExportFilename(date time.Time) string {
	return "fire-detection-report-" + date.Format(reportDateLayout) + ".txt"
}

// Filename is the download name for this report.
func (r Report) Filename() string {
	return "fire-detection-report-" + r.Date + ".txt"
}
