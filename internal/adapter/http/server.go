package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/satellite-fire-service/internal/analysis"
	"github.com/couchcryptid/satellite-fire-service/internal/domain"
)

const (
	// multipartOverhead is allowed on top of the image size for form framing.
	multipartOverhead = 1 << 20
	maxMemory         = 32 << 20
	maxInterpretBytes = 1 << 20
)

// AnalysisService is the application service the API routes delegate to.
type AnalysisService interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (domain.Image, error)
	Analyze(ctx context.Context, fileID, location string) (analysis.Result, error)
	Interpret(ctx context.Context, in domain.AnalysisInput, location string) analysis.Result
	Report(fileID string) (domain.Report, error)
}

// Server exposes the satellite analysis API plus health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        AnalysisService
	maxUpload  int64
	logger     *slog.Logger
}

// NewServer creates the HTTP server. maxUpload bounds the uploaded image
// size; zero disables the bound.
func NewServer(addr string, svc AnalysisService, ready sharedobs.ReadinessChecker, maxUpload int64, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		svc:       svc,
		maxUpload: maxUpload,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/satellite/upload", s.handleUpload)
	mux.HandleFunc("POST /api/satellite/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/satellite/interpret", s.handleInterpret)
	mux.HandleFunc("GET /api/satellite/report/{file_id}", s.handleReport)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(true),
	)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           recovery(cors(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      2 * time.Minute, // analysis waits on the vision model
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type uploadResponse struct {
	Status   string `json:"status"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, requestError(err, "missing multipart field \"file\""))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	img, err := s.svc.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sharedobs.WriteJSON(w, http.StatusOK, uploadResponse{
		Status:   "success",
		FileID:   img.ID,
		Filename: img.Filename,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.writeError(w, r, requestError(err, "invalid form"))
		return
	}
	fileID := r.FormValue("file_id")
	if fileID == "" {
		s.writeError(w, r, requestError(nil, "file_id is required"))
		return
	}

	res, err := s.svc.Analyze(r.Context(), fileID, r.FormValue("location"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

// handleInterpret accepts raw analysis text or a JSON payload. The optional
// location comes from the query string.
func (s *Server) handleInterpret(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInterpretBytes))
	if err != nil {
		s.writeError(w, r, requestError(err, "read body"))
		return
	}

	in, err := domain.DecodeAnalysis(body)
	if err != nil {
		s.writeError(w, r, requestError(err, "invalid analysis payload"))
		return
	}

	res := s.svc.Interpret(r.Context(), in, r.URL.Query().Get("location"))
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Report(r.PathValue("file_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename()))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, report.ExportText())
}

// errBadRequest marks malformed requests.
var errBadRequest = errors.New("bad request")

func requestError(err error, msg string) error {
	if err == nil {
		return fmt.Errorf("%w: %s", errBadRequest, msg)
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: request body exceeds %d bytes", analysis.ErrTooLarge, maxErr.Limit)
	}
	return fmt.Errorf("%w: %s: %v", errBadRequest, msg, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, analysis.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, analysis.ErrInvalidFileType),
		errors.Is(err, analysis.ErrEmptyUpload),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
