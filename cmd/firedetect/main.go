package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/satellite-fire-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/satellite-fire-service/internal/adapter/kafka"
	"github.com/couchcryptid/satellite-fire-service/internal/adapter/mapbox"
	"github.com/couchcryptid/satellite-fire-service/internal/adapter/openai"
	"github.com/couchcryptid/satellite-fire-service/internal/analysis"
	"github.com/couchcryptid/satellite-fire-service/internal/config"
	"github.com/couchcryptid/satellite-fire-service/internal/domain"
	"github.com/couchcryptid/satellite-fire-service/internal/observability"
	"github.com/couchcryptid/satellite-fire-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Geocoder is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheTTL, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_ttl", cfg.MapboxCacheTTL, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	// Without an API key every analysis takes the fallback path.
	var analyzer domain.ImageAnalyzer
	if cfg.OpenAIAPIKey != "" {
		a, err := openai.NewAnalyzer(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			Timeout:    cfg.OpenAITimeout,
			RatePerSec: cfg.OpenAIRatePerSec,
		}, metrics, logger)
		if err != nil {
			logger.Error("failed to create analyzer", "error", err)
			os.Exit(1)
		}
		analyzer = a
		logger.Info("vision analyzer enabled", "model", cfg.OpenAIModel)
	} else {
		logger.Warn("OPENAI_API_KEY not set, using fallback analysis")
	}

	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
		p      *pipeline.Pipeline
	)
	opts := analysis.Options{
		Analyzer:  analyzer,
		Geocoder:  geocoder,
		UploadTTL: cfg.UploadTTL,
		MaxBytes:  cfg.UploadMaxBytes,
	}
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(geocoder, logger, metrics)
		p = pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)
		opts.Publisher = writer
		logger.Info("kafka pipeline enabled", "source", cfg.KafkaSourceTopic, "sink", cfg.KafkaSinkTopic)
	}

	svc := analysis.NewService(opts, metrics, logger)

	var srv *httpadapter.Server
	if p != nil {
		srv = httpadapter.NewServer(cfg.HTTPAddr, svc, p, cfg.UploadMaxBytes, logger)
	} else {
		srv = httpadapter.NewServer(cfg.HTTPAddr, svc, svc, cfg.UploadMaxBytes, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if p != nil {
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
