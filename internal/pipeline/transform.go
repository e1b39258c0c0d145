package pipeline

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/satellite-fire-service/internal/domain"
	"github.com/couchcryptid/satellite-fire-service/internal/observability"
)

// VerdictTransformer implements Transformer by running the interpretation
// engine over each upstream analysis, with optional location geocoding.
type VerdictTransformer struct {
	geocoder domain.Geocoder
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewTransformer creates a VerdictTransformer. Pass a nil geocoder to keep
// locations exactly as supplied.
func NewTransformer(geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics) *VerdictTransformer {
	return &VerdictTransformer{
		geocoder: geocoder,
		logger:   logger,
		metrics:  metrics,
	}
}

// Transform decodes the analysis, interprets it, and serializes the verdict.
// The only error is a malformed JSON payload (a poison pill); every other
// input produces a verdict.
func (t *VerdictTransformer) Transform(ctx context.Context, raw domain.RawAnalysis) (domain.OutputEvent, error) {
	in, err := domain.DecodeAnalysis(raw.Value)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	location := domain.ResolveLocation(ctx, raw.Location(), t.geocoder, t.logger)
	it := domain.Interpret(in)
	event := domain.NewVerdictEvent(string(raw.Key), location, it)

	t.metrics.Verdicts.WithLabelValues(strconv.FormatBool(event.FireDetected)).Inc()
	t.metrics.ProbabilitySources.WithLabelValues(string(event.ProbabilitySource)).Inc()

	return domain.SerializeVerdictEvent(event)
}
