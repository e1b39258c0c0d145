package openai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/satellite-fire-service/internal/domain"
	"github.com/couchcryptid/satellite-fire-service/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testImage() domain.Image {
	return domain.Image{
		ID:          "file-1",
		Filename:    "paradise.png",
		ContentType: "image/png",
		Data:        []byte{0x89, 'P', 'N', 'G'},
	}
}

// fakeOpenAI answers chat completions with content and hands each decoded
// request to inspect.
func fakeOpenAI(t *testing.T, content string, inspect func(goopenai.ChatCompletionRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req goopenai.ChatCompletionRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if inspect != nil {
			inspect(req)
		}

		resp := goopenai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: req.Model,
			Choices: []goopenai.ChatCompletionChoice{
				{
					Message: goopenai.ChatCompletionMessage{
						Role:    goopenai.ChatMessageRoleAssistant,
						Content: content,
					},
					FinishReason: goopenai.FinishReasonStop,
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestAnalyzer(t *testing.T, baseURL string) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, observability.NewMetricsForTesting(), discardLogger())
	require.NoError(t, err)
	return a
}

func TestNewAnalyzer_RequiresAPIKey(t *testing.T) {
	_, err := NewAnalyzer(Config{}, observability.NewMetricsForTesting(), discardLogger())
	require.Error(t, err)
}

func TestAnalyzeImage_Success(t *testing.T) {
	var captured goopenai.ChatCompletionRequest
	srv := fakeOpenAI(t, "  - Smoke: light plume\n- Conclusion: Fire detected  ", func(req goopenai.ChatCompletionRequest) {
		captured = req
	})
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL)
	text, err := a.AnalyzeImage(context.Background(), testImage(), "Paradise, CA")
	require.NoError(t, err)
	assert.Equal(t, "- Smoke: light plume\n- Conclusion: Fire detected", text)

	assert.Equal(t, goopenai.GPT4oMini, captured.Model)
	assert.Equal(t, 800, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, goopenai.ChatMessageRoleSystem, captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[0].Content, "wildfire risk assessment")

	parts := captured.Messages[1].MultiContent
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].Text, "Analyze this satellite image of Paradise, CA")
	assert.Contains(t, parts[0].Text, "Conclusion:")
	require.NotNil(t, parts[1].ImageURL)
	assert.Equal(t, "data:image/png;base64,iVBORw==", parts[1].ImageURL.URL)
}

func TestAnalyzeImage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL)
	_, err := a.AnalyzeImage(context.Background(), testImage(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai chat completion")
}

func TestAnalyzeImage_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","choices":[]}`))
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv.URL)
	_, err := a.AnalyzeImage(context.Background(), testImage(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestUserPrompt(t *testing.T) {
	assert.True(t, strings.HasPrefix(userPrompt(""), "Analyze this satellite image for wildfire risk factors."))
	assert.True(t, strings.HasPrefix(userPrompt("Malibu"), "Analyze this satellite image of Malibu for wildfire risk factors."))
	for _, label := range []string{"Smoke:", "Heat Zone:", "Vegetation:", "Location:"} {
		assert.Contains(t, userPrompt(""), label)
	}
}

func TestDataURI(t *testing.T) {
	tests := []struct {
		name string
		img  domain.Image
		want string
	}{
		{"content type", domain.Image{Filename: "a.bin", ContentType: "image/tiff", Data: []byte("x")}, "data:image/tiff;base64,eA=="},
		{"jpg extension", domain.Image{Filename: "A.JPG", ContentType: "application/octet-stream", Data: []byte("x")}, "data:image/jpeg;base64,eA=="},
		{"empty content type", domain.Image{Filename: "b.png", Data: []byte("x")}, "data:image/png;base64,eA=="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dataURI(tt.img))
		})
	}
}
