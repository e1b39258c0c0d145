// Package analysis is the application service behind the upload and analyze
// endpoints. It stores uploads, asks the image analyzer for analysis text,
// falls back to a canned analysis when the analyzer is unavailable or
// unhelpful, and runs the interpretation engine over the result.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/couchcryptid/satellite-fire-service/internal/domain"
	"github.com/couchcryptid/satellite-fire-service/internal/observability"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrEmptyUpload     = errors.New("empty upload")
	ErrTooLarge        = errors.New("upload too large")
)

// Analysis methods, reported in results and metrics.
const (
	MethodAI       = "ai"
	MethodFallback = "fallback"
	MethodDirect   = "direct"
)

const (
	defaultUploadTTL = time.Hour
	fallbackProb     = 0.35
	minAnalysisLen   = 20
	noTerrainSummary = "Terrain analysis not available in basic mode"
)

// AllowedExtensions lists the accepted image file extensions.
var AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff"}

var fallbackObservations = []string{
	"Analysis performed using basic image processing",
	"Full AI analysis not available",
	"Consider vegetation and weather conditions in your area",
}

var terrainTerms = []string{"terrain", "vegetation", "landscape", "forest"}

// Publisher receives serialized verdict events. The Kafka writer satisfies it.
type Publisher interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Options wires the optional collaborators. A nil Analyzer means every
// analysis uses the fallback; nil Geocoder and Publisher disable those steps.
type Options struct {
	Analyzer  domain.ImageAnalyzer
	Geocoder  domain.Geocoder
	Publisher Publisher
	UploadTTL time.Duration
	MaxBytes  int64
}

// Result is the analyze/interpret response. The verdict event fields are
// inlined at the top level.
type Result struct {
	domain.VerdictEvent
	Status          string `json:"status"`
	FileID          string `json:"file_id,omitempty"`
	Method          string `json:"method"`
	TerrainAnalysis string `json:"terrain_analysis,omitempty"`
	FullAnalysis    string `json:"full_analysis,omitempty"`
}

// Service holds uploaded images and the latest verdict per image. Both
// stores expire entries after the upload TTL. Safe for concurrent use.
type Service struct {
	images    *gocache.Cache
	results   *gocache.Cache
	analyzer  domain.ImageAnalyzer
	geocoder  domain.Geocoder
	publisher Publisher
	maxBytes  int64
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewService creates the analysis service.
func NewService(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Service {
	ttl := opts.UploadTTL
	if ttl <= 0 {
		ttl = defaultUploadTTL
	}
	return &Service{
		images:    gocache.New(ttl, 2*ttl),
		results:   gocache.New(ttl, 2*ttl),
		analyzer:  opts.Analyzer,
		geocoder:  opts.Geocoder,
		publisher: opts.Publisher,
		maxBytes:  opts.MaxBytes,
		metrics:   metrics,
		logger:    logger,
	}
}

// Upload validates and stores an image, returning it with its new file ID.
func (s *Service) Upload(_ context.Context, filename, contentType string, data []byte) (domain.Image, error) {
	if err := s.validateUpload(filename, contentType, data); err != nil {
		s.metrics.Uploads.WithLabelValues("rejected").Inc()
		s.logger.Warn("upload rejected", "filename", filename, "content_type", contentType, "error", err)
		return domain.Image{}, err
	}

	img := domain.Image{
		ID:          uuid.NewString(),
		Filename:    filepath.Base(filename),
		ContentType: contentType,
		Data:        data,
		UploadedAt:  domain.Now().UTC(),
	}
	s.images.SetDefault(img.ID, img)
	s.metrics.Uploads.WithLabelValues("accepted").Inc()
	s.logger.Info("image uploaded", "file_id", img.ID, "filename", img.Filename, "bytes", len(data))
	return img, nil
}

func (s *Service) validateUpload(filename, contentType string, data []byte) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !isAllowedExtension(ext) {
		return fmt.Errorf("%w %q: allowed types: %s", ErrInvalidFileType, ext, strings.Join(AllowedExtensions, ", "))
	}
	if !isImageContentType(contentType) {
		return fmt.Errorf("%w: content type %q", ErrInvalidFileType, contentType)
	}
	if len(data) == 0 {
		return ErrEmptyUpload
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, len(data), s.maxBytes)
	}
	return nil
}

func isAllowedExtension(ext string) bool {
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// isImageContentType accepts image/* plus the generic types browsers send
// for TIFF files.
func isImageContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct == "" || ct == "application/octet-stream" || strings.HasPrefix(ct, "image/")
}

// Analyze runs the analyzer over an uploaded image and interprets its answer.
// Analyzer failures never fail the call: they degrade to the fallback
// analysis.
func (s *Service) Analyze(ctx context.Context, fileID, location string) (Result, error) {
	v, ok := s.images.Get(fileID)
	if !ok {
		return Result{}, fmt.Errorf("image %q: %w", fileID, ErrNotFound)
	}
	img := v.(domain.Image)

	resolved := domain.ResolveLocation(ctx, location, s.geocoder, s.logger)

	var (
		in      domain.AnalysisInput
		method  string
		text    string
		terrain string
	)
	if raw, ok := s.runAnalyzer(ctx, img, resolved); ok {
		in, method, text = domain.TextInput(raw), MethodAI, raw
		terrain = terrainSummary(raw)
	} else {
		in, method = fallbackInput(), MethodFallback
		text = strings.Join(fallbackObservations, "\n")
		terrain = noTerrainSummary
	}

	res := s.interpret(img.ID, in, resolved, method)
	res.TerrainAnalysis = terrain
	res.FullAnalysis = text

	s.results.SetDefault(img.ID, res)
	s.publish(ctx, res.VerdictEvent)

	s.logger.Info("analysis complete",
		"file_id", img.ID,
		"method", method,
		"fire_detected", res.FireDetected,
		"fire_probability", res.Probability,
	)
	return res, nil
}

// runAnalyzer returns the analyzer's text, or false when the fallback
// should be used instead.
func (s *Service) runAnalyzer(ctx context.Context, img domain.Image, location string) (string, bool) {
	if s.analyzer == nil {
		s.logger.Warn("image analyzer not configured, using fallback analysis", "file_id", img.ID)
		return "", false
	}
	text, err := s.analyzer.AnalyzeImage(ctx, img, location)
	if err != nil {
		s.logger.Error("image analysis failed, using fallback analysis", "file_id", img.ID, "error", err)
		return "", false
	}
	if IsUnsatisfactory(text) {
		s.logger.Warn("unsatisfactory analysis response, using fallback analysis", "file_id", img.ID, "length", len(text))
		return "", false
	}
	return text, true
}

// Interpret runs the engine directly over caller-supplied analysis text or
// payload. Nothing is stored or published.
func (s *Service) Interpret(ctx context.Context, in domain.AnalysisInput, location string) Result {
	resolved := domain.ResolveLocation(ctx, location, s.geocoder, s.logger)
	res := s.interpret("", in, resolved, MethodDirect)
	if !in.IsStructured() {
		res.FullAnalysis = in.Text
	}
	return res
}

func (s *Service) interpret(fileID string, in domain.AnalysisInput, location, method string) Result {
	it := domain.Interpret(in)
	event := domain.NewVerdictEvent(fileID, location, it)

	s.metrics.Analyses.WithLabelValues(method).Inc()
	s.metrics.Verdicts.WithLabelValues(strconv.FormatBool(event.FireDetected)).Inc()
	s.metrics.ProbabilitySources.WithLabelValues(string(event.ProbabilitySource)).Inc()

	return Result{
		VerdictEvent: event,
		Status:       "success",
		FileID:       fileID,
		Method:       method,
	}
}

func (s *Service) publish(ctx context.Context, event domain.VerdictEvent) {
	if s.publisher == nil {
		return
	}
	out, err := domain.SerializeVerdictEvent(event)
	if err != nil {
		s.logger.Error("serialize verdict event", "id", event.ID, "error", err)
		return
	}
	if err := s.publisher.LoadBatch(ctx, []domain.OutputEvent{out}); err != nil {
		s.logger.Warn("publish verdict event", "id", event.ID, "error", err)
	}
}

// Result returns the latest analysis of an uploaded image.
func (s *Service) Result(fileID string) (Result, error) {
	v, ok := s.results.Get(fileID)
	if !ok {
		return Result{}, fmt.Errorf("analysis for %q: %w", fileID, ErrNotFound)
	}
	return v.(Result), nil
}

// Report returns the exportable report of the latest analysis of an image.
func (s *Service) Report(fileID string) (domain.Report, error) {
	res, err := s.Result(fileID)
	if err != nil {
		return domain.Report{}, err
	}
	return res.Report, nil
}

// CheckReadiness always succeeds: the service has no external dependency it
// cannot degrade around.
func (s *Service) CheckReadiness(_ context.Context) error {
	return nil
}

// IsUnsatisfactory reports whether analyzer text looks like a refusal or is
// too short to interpret.
func IsUnsatisfactory(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "sorry") ||
		strings.Contains(lower, "cannot") ||
		len(strings.TrimSpace(text)) < minAnalysisLen
}

func fallbackInput() domain.AnalysisInput {
	p := fallbackProb
	obs := make([]domain.ObservationInput, len(fallbackObservations))
	for i, text := range fallbackObservations {
		obs[i] = domain.ObservationInput{Text: text}
	}
	return domain.PayloadInput(domain.StructuredPayload{
		Probability:  &p,
		Observations: obs,
	})
}

// terrainSummary joins the analysis lines that talk about terrain.
func terrainSummary(text string) string {
	var parts []string
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		for _, term := range terrainTerms {
			if strings.Contains(lower, term) {
				parts = append(parts, strings.TrimSpace(line))
				break
			}
		}
	}
	return strings.Join(parts, " ")
}
