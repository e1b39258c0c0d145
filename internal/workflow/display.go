package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/couchcryptid/satellite-fire-service/internal/domain"
)

// Sink stores an exported report under name and returns where it went.
type Sink interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// FileSink writes exports into a directory of fs.
type FileSink struct {
	fs  afero.Fs
	dir string
}

// NewFileSink creates a sink writing into dir. A nil fs means the OS
// filesystem.
func NewFileSink(fs afero.Fs, dir string) *FileSink {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileSink{fs: fs, dir: dir}
}

func (s *FileSink) Write(_ context.Context, name string, data []byte) (string, error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Binding ties one displayed verdict to its export. Only the binding most
// recently shown by its Display can export.
type Binding struct {
	display        *Display
	Interpretation domain.Interpretation
	Report         domain.Report
}

// Verdict returns the bound verdict.
func (b *Binding) Verdict() domain.Verdict {
	return b.Interpretation.Verdict
}

// Display owns the single export slot. Showing a verdict atomically
// replaces the slot; bindings from earlier shows go stale.
type Display struct {
	current atomic.Pointer[Binding]

	// mu orders exports against replacements so an export never writes a
	// report that was replaced mid-call.
	mu   sync.Mutex
	sink Sink
}

// NewDisplay creates a display exporting to sink.
func NewDisplay(sink Sink) *Display {
	return &Display{sink: sink}
}

// Show renders an interpretation, dated by the package clock, and binds it
// for export.
func (d *Display) Show(it domain.Interpretation, location string) *Binding {
	b := &Binding{
		display:        d,
		Interpretation: it,
		Report:         domain.BuildReport(it.Verdict, it.Observations, domain.Now(), location),
	}

	d.mu.Lock()
	d.current.Store(b)
	d.mu.Unlock()
	return b
}

// Current returns the live binding, or nil when nothing is displayed.
func (d *Display) Current() *Binding {
	return d.current.Load()
}

// Clear drops the live binding.
func (d *Display) Clear() {
	d.mu.Lock()
	d.current.Store(nil)
	d.mu.Unlock()
}

// Export writes the binding's report through the display's sink. A binding
// that is no longer current returns ErrStaleBinding and writes nothing.
func (b *Binding) Export(ctx context.Context) (string, error) {
	d := b.display
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current.Load() != b {
		return "", ErrStaleBinding
	}
	return d.sink.Write(ctx, b.Report.Filename(), []byte(b.Report.ExportText()))
}
