package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/satellite-fire-service/internal/domain"
	"github.com/couchcryptid/satellite-fire-service/internal/observability"
)

const (
	defaultModel     = goopenai.GPT4oMini
	defaultMaxTokens = 800
	defaultTimeout   = 60 * time.Second

	systemPrompt = "You are an expert in analyzing satellite imagery for wildfire risk assessment. " +
		"Analyze the provided satellite image and estimate the probability of wildfire risk based on " +
		"visible vegetation dryness, terrain features, apparent burn scars, smoke, or active fires. " +
		"Focus only on wildfire-relevant features."
)

// Config holds the settings for the vision analyzer.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	RatePerSec float64
}

// Analyzer asks an OpenAI vision model to describe wildfire cues in an image.
// It implements domain.ImageAnalyzer.
type Analyzer struct {
	client  *goopenai.Client
	limiter *rate.Limiter
	model   string
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewAnalyzer creates an analyzer. An API key is required.
func NewAnalyzer(cfg Config, metrics *observability.Metrics, logger *slog.Logger) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}

	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	return &Analyzer{
		client:  goopenai.NewClientWithConfig(clientConfig),
		limiter: rate.NewLimiter(limit, 1),
		model:   model,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// AnalyzeImage returns the model's free-form analysis text for img.
func (a *Analyzer) AnalyzeImage(ctx context.Context, img domain.Image, location string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("openai rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	text, err := a.complete(ctx, img, location)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	a.metrics.AnalyzerDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		a.logger.Warn("openai analysis failed", "file_id", img.ID, "error", err)
		return "", err
	}
	return text, nil
}

func (a *Analyzer) complete(ctx context.Context, img domain.Image, location string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: a.model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role: goopenai.ChatMessageRoleUser,
				MultiContent: []goopenai.ChatMessagePart{
					{
						Type: goopenai.ChatMessagePartTypeText,
						Text: userPrompt(location),
					},
					{
						Type: goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{
							URL:    dataURI(img),
							Detail: goopenai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		MaxTokens: defaultMaxTokens,
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func userPrompt(location string) string {
	var b strings.Builder
	b.WriteString("Analyze this satellite image")
	if location != "" {
		b.WriteString(" of ")
		b.WriteString(location)
	}
	b.WriteString(" for wildfire risk factors. Provide:\n")
	b.WriteString("1. An estimated fire probability as a percentage (for example \"35% chance of fire\")\n")
	b.WriteString("2. Key observations as bullet points, each starting with one of: Smoke:, Heat Zone:, Vegetation:, Location:\n")
	b.WriteString("3. Terrain analysis relevant to fire spread\n")
	b.WriteString("Finish with a single line starting with \"Conclusion:\" stating whether fire is detected.")
	return b.String()
}

// dataURI inlines the image as base64. The subtype comes from the content
// type when it names an image, else from the file extension.
func dataURI(img domain.Image) string {
	subtype := strings.TrimPrefix(img.ContentType, "image/")
	if subtype == img.ContentType || subtype == "" {
		subtype = strings.TrimPrefix(strings.ToLower(filepath.Ext(img.Filename)), ".")
		if subtype == "jpg" {
			subtype = "jpeg"
		}
	}
	return "data:image/" + subtype + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
