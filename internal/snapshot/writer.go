package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

const tempPattern = ".snapshot-*.tmp"

// Writer publishes snapshots with write-temp-then-rename, so readers see
// either the previous file or the new one, never a partial write.
type Writer struct {
	fs     afero.Fs
	path   string
	logger logger.Logger
	now    func() time.Time
}

// NewWriter creates a writer for path on fs.
func NewWriter(fs afero.Fs, path string, log logger.Logger) *Writer {
	return &Writer{
		fs:     fs,
		path:   filepath.Clean(path),
		logger: log,
		now:    time.Now,
	}
}

// Path returns the snapshot location.
func (w *Writer) Path() string { return w.path }

// Write renders and atomically replaces the snapshot.
// Errors wrap domain.ErrSnapshotIO.
func (w *Writer) Write(entries []domain.MappingEntry, state domain.ServiceState) error {
	snap := Build(entries, state, w.now())
	data, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSnapshotIO, err)
	}

	if err := w.replace(data); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSnapshotIO, err)
	}

	w.logger.Debug("snapshot published",
		logger.String("path", w.path),
		logger.String("generation", snap.Generation),
		logger.Int("aliases", len(snap.ExtraDomains)),
		logger.Bool("disabled", snap.Disabled()))

	return nil
}

func (w *Writer) replace(data []byte) (err error) {
	dir := filepath.Dir(w.path)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := afero.TempFile(w.fs, dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = w.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := w.fs.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := w.fs.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Exists reports whether a snapshot file is present.
func (w *Writer) Exists() (bool, error) {
	_, err := w.fs.Stat(w.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// DirWritable probes the snapshot directory by creating and removing a temp file.
func (w *Writer) DirWritable() error {
	dir := filepath.Dir(w.path)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot directory %s: %w", dir, err)
	}
	f, err := afero.TempFile(w.fs, dir, tempPattern)
	if err != nil {
		return fmt.Errorf("snapshot directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	if err := w.fs.Remove(name); err != nil {
		return fmt.Errorf("failed to remove probe file %s: %w", name, err)
	}
	return nil
}
