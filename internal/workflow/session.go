// Package workflow is the client side of the fire-detection flow: upload an
// image, request its analysis, display the verdict, and export the report.
//
// A Session runs one request at a time. A request issued while another is
// in flight fails immediately with ErrBusy; nothing is queued.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/satellite-fire-service/internal/adapter/upstream"
	"github.com/couchcryptid/satellite-fire-service/internal/domain"
)

var (
	ErrBusy         = errors.New("a request is already in progress")
	ErrNoUpload     = errors.New("no image uploaded")
	ErrNoVerdict    = errors.New("no verdict to export")
	ErrStaleBinding = errors.New("verdict was replaced before export")
)

// State is the session's position in the workflow.
type State int

const (
	StateIdle State = iota
	StateUploaded
	StateAnalyzing
	StateDisplayed
	StateExported
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploaded:
		return "uploaded"
	case StateAnalyzing:
		return "analyzing"
	case StateDisplayed:
		return "displayed"
	case StateExported:
		return "exported"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Backend is the remote service. upstream.Client implements it.
type Backend interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
	Analyze(ctx context.Context, fileID, location string) (upstream.Analysis, error)
}

// Session drives one user's workflow.
type Session struct {
	backend Backend
	display *Display
	logger  *slog.Logger

	busy atomic.Bool

	mu     sync.Mutex
	state  State
	fileID string
}

// NewSession creates an idle session.
func NewSession(backend Backend, display *Display, logger *slog.Logger) *Session {
	return &Session{
		backend: backend,
		display: display,
		logger:  logger,
	}
}

func (s *Session) acquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

func (s *Session) release() {
	s.busy.Store(false)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FileID returns the uploaded file's ID, or "" before any upload.
func (s *Session) FileID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileID
}

// Upload sends an image. Success moves to Uploaded and discards any
// displayed verdict; failure leaves the session unchanged.
func (s *Session) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	if !s.acquire() {
		return "", ErrBusy
	}
	defer s.release()

	fileID, err := s.backend.Upload(ctx, filepath.Base(filename), data)
	if err != nil {
		return "", err
	}

	s.display.Clear()
	s.mu.Lock()
	s.state = StateUploaded
	s.fileID = fileID
	s.mu.Unlock()

	s.logger.Info("image uploaded", "file_id", fileID, "filename", filename)
	return fileID, nil
}

// Analyze requests analysis of the uploaded image, interprets the answer and
// displays it. The returned binding exports the displayed report.
func (s *Session) Analyze(ctx context.Context, location string) (*Binding, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()

	s.mu.Lock()
	fileID, prev := s.fileID, s.state
	if fileID == "" {
		s.mu.Unlock()
		return nil, ErrNoUpload
	}
	s.state = StateAnalyzing
	s.mu.Unlock()

	a, err := s.backend.Analyze(ctx, fileID, location)
	if err != nil {
		s.mu.Lock()
		s.state = prev
		s.mu.Unlock()
		return nil, err
	}

	shownLocation := a.Location
	if shownLocation == "" {
		shownLocation = location
	}
	b := s.display.Show(domain.Interpret(a.Input), shownLocation)

	s.mu.Lock()
	s.state = StateDisplayed
	s.mu.Unlock()

	v := b.Verdict()
	s.logger.Info("verdict displayed",
		"file_id", fileID,
		"fire_detected", v.FireDetected,
		"confidence_percent", v.ConfidencePercent,
	)
	return b, nil
}

// Export writes the currently displayed report.
func (s *Session) Export(ctx context.Context) (string, error) {
	b := s.display.Current()
	if b == nil {
		return "", ErrNoVerdict
	}
	path, err := b.Export(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.state = StateExported
	s.mu.Unlock()

	s.logger.Info("report exported", "path", path)
	return path, nil
}
