package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

// Provider hands the current snapshot to the early router.
// Current returns domain.ErrSnapshotMissing or domain.ErrCorruptSnapshot
// (wrapped) when no usable snapshot exists.
type Provider interface {
	Current() (*Snapshot, error)
}

// Load reads and parses the snapshot at path.
func Load(fs afero.Fs, path string) (*Snapshot, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSnapshotMissing
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptSnapshot, err)
	}
	return Parse(data)
}

// FileProvider reads the file on every call. No caching, no locks.
type FileProvider struct {
	fs   afero.Fs
	path string
}

func NewFileProvider(fs afero.Fs, path string) *FileProvider {
	return &FileProvider{fs: fs, path: filepath.Clean(path)}
}

func (p *FileProvider) Current() (*Snapshot, error) {
	return Load(p.fs, p.path)
}

// WatchProvider caches the parsed snapshot and reloads it when fsnotify
// reports a change to the file. It watches the parent directory because
// the writer replaces the file by rename.
type WatchProvider struct {
	path    string
	fs      afero.Fs
	logger  logger.Logger
	watcher *fsnotify.Watcher

	mu   sync.RWMutex
	snap *Snapshot
	err  error

	done chan struct{}
}

// NewWatchProvider loads the snapshot once and starts watching path on the OS filesystem.
func NewWatchProvider(path string, log logger.Logger) (*WatchProvider, error) {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	fs := afero.NewOsFs()

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch snapshot directory: %w", err)
	}

	p := &WatchProvider{
		path:    path,
		fs:      fs,
		logger:  log,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	p.reload()

	go p.loop()

	return p, nil
}

func (p *WatchProvider) Current() (*Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap, p.err
}

// Close stops the watcher.
func (p *WatchProvider) Close() error {
	err := p.watcher.Close()
	<-p.done
	return err
}

func (p *WatchProvider) reload() {
	snap, err := Load(p.fs, p.path)

	p.mu.Lock()
	p.snap, p.err = snap, err
	p.mu.Unlock()

	switch {
	case err == nil:
		p.logger.Debug("snapshot reloaded", logger.String("generation", snap.Generation))
	case errors.Is(err, domain.ErrSnapshotMissing):
		p.logger.Debug("snapshot not present", logger.String("path", p.path))
	default:
		p.logger.Warn("snapshot reload failed", logger.String("path", p.path), logger.Error(err))
	}
}

func (p *WatchProvider) loop() {
	defer close(p.done)
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				p.reload()
			}

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("snapshot watcher error", logger.Error(err))
		}
	}
}
