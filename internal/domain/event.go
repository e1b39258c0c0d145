package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Header keys carried on pipeline messages.
const (
	HeaderLocation     = "location"
	HeaderFireDetected = "fire_detected"
	HeaderProcessedAt  = "processed_at"
)

// RawAnalysis represents an unprocessed upstream analysis from the source
// topic. Value holds either raw analysis text or a JSON payload.
type RawAnalysis struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Location returns the caller-supplied location header, if any.
func (r RawAnalysis) Location() string {
	return strings.TrimSpace(r.Headers[HeaderLocation])
}

// VerdictEvent is the interpreted form of one analysis, destined for the
// sink topic and returned by the analysis endpoints.
type VerdictEvent struct {
	ID                string            `json:"id"`
	SourceID          string            `json:"source_id,omitempty"`
	Location          string            `json:"location,omitempty"`
	FireDetected      bool              `json:"fire_detected"`
	Probability       float64           `json:"fire_probability"`
	ConfidencePercent int               `json:"confidence_percent"`
	ProbabilitySource ProbabilitySource `json:"probability_source"`
	Signals           SignalFlags       `json:"signals"`
	Conclusion        ConclusionSignal  `json:"conclusion"`
	Observations      []string          `json:"observations"`
	Report            Report            `json:"report"`
	ProcessedAt       time.Time         `json:"processed_at"`
}

// NewVerdictEvent builds the event for an interpretation. The report is
// dated and the event stamped with the package clock.
func NewVerdictEvent(sourceID, location string, it Interpretation) VerdictEvent {
	now := clock.Now().UTC()
	report := BuildReport(it.Verdict, it.Observations, now, location)

	texts := make([]string, len(it.Observations))
	for i, o := range it.Observations {
		texts[i] = o.Text
	}

	return VerdictEvent{
		ID:                generateID(sourceID, report.Location, texts, it.Verdict),
		SourceID:          sourceID,
		Location:          report.Location,
		FireDetected:      it.Verdict.FireDetected,
		Probability:       it.Verdict.Probability,
		ConfidencePercent: it.Verdict.ConfidencePercent,
		ProbabilitySource: it.Estimate.Source,
		Signals:           it.Signals,
		Conclusion:        it.Conclusion,
		Observations:      texts,
		Report:            report,
		ProcessedAt:       now,
	}
}

// Verdict returns the verdict the event carries.
func (e VerdictEvent) Verdict() Verdict {
	return Verdict{
		FireDetected:      e.FireDetected,
		Probability:       e.Probability,
		ConfidencePercent: e.ConfidencePercent,
	}
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// SerializeVerdictEvent encodes an event for the sink topic, keyed by its
// source ID so verdicts for one image land on one partition.
func SerializeVerdictEvent(e VerdictEvent) (OutputEvent, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize verdict event: %w", err)
	}
	key := e.SourceID
	if key == "" {
		key = e.ID
	}
	return OutputEvent{
		Key:   []byte(key),
		Value: value,
		Headers: map[string]string{
			HeaderFireDetected: strconv.FormatBool(e.FireDetected),
			HeaderProcessedAt:  e.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}

// verdictNamespace scopes the name-based verdict IDs.
var verdictNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:satellite-fire-service:verdict"))

// generateID produces a deterministic (UUIDv5) ID so replaying the same
// analysis yields the same event ID. Any change to the verdict or the
// resolved location yields a different ID.
func generateID(sourceID, location string, observations []string, v Verdict) string {
	name := strings.Join([]string{
		sourceID,
		location,
		strings.Join(observations, "\x00"),
		strconv.FormatBool(v.FireDetected),
		strconv.FormatFloat(v.Probability, 'g', -1, 64),
	}, "\x00")
	return "verdict-" + uuid.NewSHA1(verdictNamespace, []byte(name)).String()
}
