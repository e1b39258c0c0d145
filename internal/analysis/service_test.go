package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/satellite-fire-service/internal/domain"
	"github.com/couchcryptid/satellite-fire-service/internal/observability"
)

const aiAnalysis = `Fire probability: 82% chance of fire
- Location: Paradise, Butte County
- Smoke: dense plume drifting east
- Heat Zone: active burning along the ridge
- Vegetation: dry chaparral and forest on steep terrain
- Conclusion: Fire detected`

// --- mocks ---

type stubAnalyzer struct {
	text  string
	err   error
	calls int
	loc   string
}

func (a *stubAnalyzer) AnalyzeImage(_ context.Context, _ domain.Image, location string) (string, error) {
	a.calls++
	a.loc = location
	return a.text, a.err
}

type stubGeocoder struct {
	result domain.GeocodingResult
}

func (g *stubGeocoder) ForwardGeocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	return g.result, nil
}

func (g *stubGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	return g.result, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutputEvent
	err    error
}

func (p *recordingPublisher) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(opts Options) *Service {
	return NewService(opts, observability.NewMetricsForTesting(), discardLogger())
}

func fixClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, 1, 8, 15, 4, 5, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(clockwork.NewRealClock()) })
}

func upload(t *testing.T, s *Service) domain.Image {
	t.Helper()
	img, err := s.Upload(context.Background(), "paradise.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	return img
}

// --- Upload ---

func TestUpload_Accepts(t *testing.T) {
	s := newTestService(Options{})

	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.tif", "e.TIFF"} {
		img, err := s.Upload(context.Background(), name, "image/jpeg", []byte("x"))
		require.NoError(t, err, name)
		assert.Len(t, img.ID, 36)
		assert.Equal(t, name, img.Filename)
	}
}

func TestUpload_Rejects(t *testing.T) {
	s := newTestService(Options{MaxBytes: 4})

	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		want        error
	}{
		{"gif extension", "x.gif", "image/gif", []byte("x"), ErrInvalidFileType},
		{"no extension", "image", "image/png", []byte("x"), ErrInvalidFileType},
		{"text content type", "x.png", "text/plain", []byte("x"), ErrInvalidFileType},
		{"empty body", "x.png", "image/png", nil, ErrEmptyUpload},
		{"too large", "x.png", "image/png", []byte("12345"), ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Upload(context.Background(), tt.filename, tt.contentType, tt.data)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpload_OctetStreamAllowed(t *testing.T) {
	s := newTestService(Options{})
	_, err := s.Upload(context.Background(), "scene.tif", "application/octet-stream", []byte("x"))
	require.NoError(t, err)
}

// --- Analyze ---

func TestAnalyze_UnknownFile(t *testing.T) {
	s := newTestService(Options{})
	_, err := s.Analyze(context.Background(), "missing", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAnalyze_AIResponse(t *testing.T) {
	fixClock(t)
	analyzer := &stubAnalyzer{text: aiAnalysis}
	pub := &recordingPublisher{}
	s := newTestService(Options{Analyzer: analyzer, Publisher: pub})
	img := upload(t, s)

	res, err := s.Analyze(context.Background(), img.ID, "")
	require.NoError(t, err)

	assert.Equal(t, MethodAI, res.Method)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, img.ID, res.FileID)
	assert.Equal(t, img.ID, res.SourceID)
	assert.True(t, res.FireDetected)
	assert.Equal(t, 0.82, res.Probability)
	assert.Equal(t, 82, res.ConfidencePercent)
	assert.Equal(t, domain.SourceExplicitPercentage, res.ProbabilitySource)
	assert.Equal(t, "Paradise, Butte County", res.Location)
	assert.Equal(t, aiAnalysis, res.FullAnalysis)
	assert.Equal(t, "- Vegetation: dry chaparral and forest on steep terrain", res.TerrainAnalysis)
	assert.Equal(t, "2025-01-08", res.Report.Date)

	require.Len(t, pub.events, 1)
	assert.Equal(t, img.ID, string(pub.events[0].Key))
	assert.Equal(t, "true", pub.events[0].Headers[domain.HeaderFireDetected])
}

func TestAnalyze_FallbackCases(t *testing.T) {
	tests := []struct {
		name     string
		analyzer domain.ImageAnalyzer
	}{
		{"no analyzer", nil},
		{"analyzer error", &stubAnalyzer{err: errors.New("rate limited")}},
		{"refusal", &stubAnalyzer{text: "I'm sorry, I can't help with identifying this image."}},
		{"cannot", &stubAnalyzer{text: "The model cannot determine anything from this image."}},
		{"too short", &stubAnalyzer{text: "Fire: maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(Options{Analyzer: tt.analyzer})
			img := upload(t, s)

			res, err := s.Analyze(context.Background(), img.ID, "Malibu")
			require.NoError(t, err)

			assert.Equal(t, MethodFallback, res.Method)
			assert.False(t, res.FireDetected)
			assert.Equal(t, 0.35, res.Probability)
			assert.Equal(t, 35, res.ConfidencePercent)
			assert.Equal(t, domain.SourceSuppliedNumeric, res.ProbabilitySource)
			assert.Equal(t, fallbackObservations, res.Observations)
			assert.Equal(t, "Malibu", res.Location)
			assert.Equal(t, noTerrainSummary, res.TerrainAnalysis)
		})
	}
}

func TestAnalyze_GeocodesLocation(t *testing.T) {
	analyzer := &stubAnalyzer{text: "- Smoke: none visible\n- Conclusion: No fire detected in image"}
	geo := &stubGeocoder{result: domain.GeocodingResult{FormattedAddress: "Paradise, California, United States"}}
	s := newTestService(Options{Analyzer: analyzer, Geocoder: geo})
	img := upload(t, s)

	res, err := s.Analyze(context.Background(), img.ID, "39.7596,-121.6219")
	require.NoError(t, err)

	assert.Equal(t, "Paradise, California, United States", analyzer.loc)
	assert.Equal(t, "Paradise, California, United States", res.Location)
	assert.False(t, res.FireDetected)
}

func TestAnalyze_PublishErrorDoesNotFail(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	s := newTestService(Options{Analyzer: &stubAnalyzer{text: aiAnalysis}, Publisher: pub})
	img := upload(t, s)

	_, err := s.Analyze(context.Background(), img.ID, "")
	require.NoError(t, err)
	assert.Len(t, pub.events, 1)
}

// --- Report / Result ---

func TestReport(t *testing.T) {
	fixClock(t)
	s := newTestService(Options{Analyzer: &stubAnalyzer{text: aiAnalysis}})
	img := upload(t, s)

	_, err := s.Report(img.ID)
	require.ErrorIs(t, err, ErrNotFound, "no report before analysis")

	res, err := s.Analyze(context.Background(), img.ID, "")
	require.NoError(t, err)

	report, err := s.Report(img.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Report, report)
	assert.Equal(t, "fire-detection-report-2025-01-08.txt", report.Filename())
	assert.True(t, strings.HasPrefix(report.ExportText(), domain.ReportTitle))
}

func TestReport_ReanalysisReplaces(t *testing.T) {
	analyzer := &stubAnalyzer{text: aiAnalysis}
	s := newTestService(Options{Analyzer: analyzer})
	img := upload(t, s)

	_, err := s.Analyze(context.Background(), img.ID, "")
	require.NoError(t, err)

	analyzer.err = errors.New("down")
	_, err = s.Analyze(context.Background(), img.ID, "")
	require.NoError(t, err)

	res, err := s.Result(img.ID)
	require.NoError(t, err)
	assert.Equal(t, MethodFallback, res.Method)
}

func TestUploadTTLExpiry(t *testing.T) {
	s := newTestService(Options{UploadTTL: 20 * time.Millisecond})
	img := upload(t, s)

	time.Sleep(40 * time.Millisecond)
	_, err := s.Analyze(context.Background(), img.ID, "")
	require.ErrorIs(t, err, ErrNotFound)
}

// --- Interpret ---

func TestInterpret_Text(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestService(Options{Publisher: pub})

	res := s.Interpret(context.Background(), domain.TextInput("Severe risk of wildfire in the canyon."), "")
	assert.Equal(t, MethodDirect, res.Method)
	assert.Empty(t, res.FileID)
	assert.Equal(t, 0.85, res.Probability)
	assert.Equal(t, domain.SourceKeywordHeuristic, res.ProbabilitySource)
	assert.Equal(t, "Severe risk of wildfire in the canyon.", res.FullAnalysis)
	assert.Empty(t, pub.events, "interpret never publishes")
}

func TestInterpret_Payload(t *testing.T) {
	fire := true
	p := 0.91
	in := domain.PayloadInput(domain.StructuredPayload{
		FireDetected: &fire,
		Probability:  &p,
		Observations: []domain.ObservationInput{{Text: "Heat Zone: hotspot cluster"}},
	})

	s := newTestService(Options{})
	res := s.Interpret(context.Background(), in, "Ventura")
	assert.True(t, res.FireDetected)
	assert.Equal(t, 91, res.ConfidencePercent)
	assert.Equal(t, "Ventura", res.Location)
	assert.Empty(t, res.FullAnalysis)
}

func TestResult_JSONShape(t *testing.T) {
	s := newTestService(Options{})
	img := upload(t, s)
	res, err := s.Analyze(context.Background(), img.ID, "")
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	for _, key := range []string{"status", "file_id", "method", "fire_detected", "fire_probability", "observations", "location", "report"} {
		assert.Contains(t, body, key)
	}

	// The response is itself a valid structured payload for the engine.
	in, err := domain.DecodeAnalysis(data)
	require.NoError(t, err)
	require.True(t, in.IsStructured())
	assert.Equal(t, res.Verdict(), domain.Interpret(in).Verdict)
}

func TestIsUnsatisfactory(t *testing.T) {
	assert.True(t, IsUnsatisfactory(""))
	assert.True(t, IsUnsatisfactory("too short"))
	assert.True(t, IsUnsatisfactory("Sorry, this image is too blurry to analyze properly."))
	assert.True(t, IsUnsatisfactory("I CANNOT analyze satellite images of that region today."))
	assert.False(t, IsUnsatisfactory(aiAnalysis))
}
