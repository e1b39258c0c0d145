package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/satellite-fire-service/internal/domain"
	"github.com/couchcryptid/satellite-fire-service/internal/observability"
	"github.com/couchcryptid/satellite-fire-service/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawAnalysis
	index   atomic.Int64
	err     error
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawAnalysis, error) {
	if m.err != nil {
		return nil, m.err
	}
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockTransformer struct {
	err error
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawAnalysis) (domain.OutputEvent, error) {
	if m.err != nil {
		return domain.OutputEvent{}, m.err
	}
	return domain.OutputEvent{Key: raw.Key, Value: raw.Value}, nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.OutputEvent
	err    error
	calls  int
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) snapshot() []domain.OutputEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutputEvent(nil), m.loaded...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawAnalysis(key, value string) domain.RawAnalysis {
	return domain.RawAnalysis{Key: []byte(key), Value: []byte(value), Topic: "satellite-analyses"}
}

// --- pipeline tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := rawAnalysis("img-1", "• Heat Zone: active burning")

	ext := &mockExtractor{batches: [][]domain.RawAnalysis{{raw}}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	loaded := ldr.snapshot()
	require.Len(t, loaded, 1)
	assert.Equal(t, raw.Value, loaded[0].Value)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.snapshot())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_TransformErrorCommitsAndSkips(t *testing.T) {
	var commits atomic.Int32
	raw := rawAnalysis("img-2", "{broken")
	raw.Commit = func(_ context.Context) error {
		commits.Add(1)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawAnalysis{{raw}}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{err: errors.New("bad data")}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.snapshot())
	assert.Equal(t, int32(1), commits.Load())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_CommitsAfterLoad(t *testing.T) {
	var committed atomic.Bool
	raw := rawAnalysis("img-3", "Smoke: haze")
	raw.Commit = func(_ context.Context) error {
		committed.Store(true)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawAnalysis{{raw}}}
	p := pipeline.New(ext, &mockTransformer{}, &mockLoader{}, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.True(t, committed.Load())
}

func TestPipeline_Run_LoadErrorDoesNotCommit(t *testing.T) {
	var committed atomic.Bool
	raw := rawAnalysis("img-4", "Smoke: haze")
	raw.Commit = func(_ context.Context) error {
		committed.Store(true)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawAnalysis{{raw}}}
	ldr := &mockLoader{err: errors.New("broker down")}
	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.False(t, committed.Load())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ExtractErrorBacksOff(t *testing.T) {
	ext := &mockExtractor{err: errors.New("kafka unavailable")}
	p := pipeline.New(ext, &mockTransformer{}, &mockLoader{}, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, p.Run(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

// --- transformer tests ---

func TestVerdictTransformer_Transform(t *testing.T) {
	fixedTime := time.Date(2025, time.January, 8, 17, 45, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixedTime))
	t.Cleanup(func() {
		domain.SetClock(nil)
	})

	tfm := pipeline.NewTransformer(nil, discardLogger(), observability.NewMetricsForTesting())

	raw := rawAnalysis("img-5", "• Smoke: dense plume\n• Heat Zone: active burning observed\n• Conclusion: Active fire detected")
	raw.Headers = map[string]string{domain.HeaderLocation: "Altadena, CA"}

	out, err := tfm.Transform(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("img-5"), out.Key)
	assert.Equal(t, "true", out.Headers[domain.HeaderFireDetected])
	assert.Equal(t, "2025-01-08T17:45:00Z", out.Headers[domain.HeaderProcessedAt])

	var event domain.VerdictEvent
	require.NoError(t, json.Unmarshal(out.Value, &event))

	type verdictSummary struct {
		SourceID     string
		Location     string
		FireDetected bool
		Confidence   int
		Conclusion   string
	}
	expected := verdictSummary{
		SourceID:     "img-5",
		Location:     "Altadena, CA",
		FireDetected: true,
		Confidence:   30,
		Conclusion:   "Active fire detected",
	}
	actual := verdictSummary{
		SourceID:     event.SourceID,
		Location:     event.Location,
		FireDetected: event.FireDetected,
		Confidence:   event.ConfidencePercent,
		Conclusion:   event.Report.Conclusion,
	}
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Fatalf("verdict mismatch (-want +got):\n%s", diff)
	}
}

func TestVerdictTransformer_PoisonPill(t *testing.T) {
	tfm := pipeline.NewTransformer(nil, discardLogger(), observability.NewMetricsForTesting())

	_, err := tfm.Transform(context.Background(), rawAnalysis("img-6", `{"fire_detected": tr`))
	assert.Error(t, err)
}

func TestVerdictTransformer_StructuredPayload(t *testing.T) {
	tfm := pipeline.NewTransformer(nil, discardLogger(), observability.NewMetricsForTesting())

	out, err := tfm.Transform(context.Background(), rawAnalysis("img-7", `{"fire_probability": 0.62, "observations": [{"text": "Clouds: scattered"}]}`))
	require.NoError(t, err)

	var event domain.VerdictEvent
	require.NoError(t, json.Unmarshal(out.Value, &event))
	assert.True(t, event.FireDetected)
	assert.Equal(t, 62, event.ConfidencePercent)
	assert.Equal(t, domain.SourceSuppliedNumeric, event.ProbabilitySource)
	assert.Equal(t, domain.UnknownLocation, event.Location)
}
