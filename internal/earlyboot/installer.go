package earlyboot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

// BootstrapConfig is the part of the site's bootstrap file that enables
// the early boot phase.
type BootstrapConfig struct {
	EarlyBoot         bool   `toml:"early_boot"`
	EarlyBootSnapshot string `toml:"early_boot_snapshot"`
}

// InstallResult tells what Install did.
type InstallResult int

const (
	// AlreadyPresent means the file already configures early_boot and was left alone.
	AlreadyPresent InstallResult = iota
	// Patched means the opt-in lines were added.
	Patched
)

func (r InstallResult) String() string {
	if r == Patched {
		return "patched"
	}
	return "already_present"
}

var earlyBootKey = regexp.MustCompile(`(?m)^\s*early_boot(_snapshot)?\s*=`)

// Installer opts the site into the early boot phase by editing its
// bootstrap config, once.
type Installer struct {
	fs           afero.Fs
	path         string
	snapshotPath string
	logger       logger.Logger
}

func NewInstaller(fs afero.Fs, path, snapshotPath string, log logger.Logger) *Installer {
	return &Installer{
		fs:           fs,
		path:         filepath.Clean(path),
		snapshotPath: snapshotPath,
		logger:       log,
	}
}

// Path returns the bootstrap config path.
func (i *Installer) Path() string { return i.path }

// Read decodes the bootstrap config. A missing file yields a zero config.
func (i *Installer) Read() (BootstrapConfig, error) {
	var cfg BootstrapConfig

	data, err := afero.ReadFile(i.fs, i.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read bootstrap config: %w", err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode bootstrap config %s: %w", i.path, err)
	}
	return cfg, nil
}

// Installed reports whether the bootstrap config sets early_boot = true.
func (i *Installer) Installed() (bool, error) {
	cfg, err := i.Read()
	if err != nil {
		return false, err
	}
	return cfg.EarlyBoot, nil
}

// Install adds the early boot opt-in at the top of the bootstrap config,
// creating the file if needed. A file that already sets either key is never
// touched again.
func (i *Installer) Install() (InstallResult, error) {
	data, err := afero.ReadFile(i.fs, i.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return AlreadyPresent, fmt.Errorf("failed to read bootstrap config: %w", err)
	}

	if earlyBootKey.Match(data) {
		i.logger.Info("early boot already configured, leaving bootstrap config alone",
			logger.String("path", i.path))
		return AlreadyPresent, nil
	}

	// Never append to a file we cannot parse.
	var existing map[string]any
	if _, err := toml.Decode(string(data), &existing); err != nil {
		return AlreadyPresent, fmt.Errorf("refusing to patch invalid bootstrap config %s: %w", i.path, err)
	}

	header := fmt.Sprintf("early_boot = true\nearly_boot_snapshot = %s\n\n", strconv.Quote(i.snapshotPath))
	patched := append([]byte(header), data...)

	if err := i.write(patched); err != nil {
		return AlreadyPresent, err
	}

	ok, err := i.Installed()
	if err != nil {
		return Patched, fmt.Errorf("bootstrap config unreadable after patch: %w", err)
	}
	if !ok {
		return Patched, fmt.Errorf("bootstrap config %s does not enable early_boot after patch", i.path)
	}

	i.logger.Info("early boot enabled in bootstrap config", logger.String("path", i.path))
	return Patched, nil
}

func (i *Installer) write(data []byte) (err error) {
	mode := os.FileMode(0o644)
	if info, statErr := i.fs.Stat(i.path); statErr == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(i.path)
	if err := i.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bootstrap config dir: %w", err)
	}

	tmp, err := afero.TempFile(i.fs, dir, ".bootstrap-*.tmp")
	if err != nil {
		return fmt.Errorf("bootstrap config not writable: %w", err)
	}
	defer func() {
		if err != nil {
			_ = i.fs.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write bootstrap config: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close bootstrap config: %w", err)
	}
	if err = i.fs.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("failed to chmod bootstrap config: %w", err)
	}
	if err = i.fs.Rename(tmp.Name(), i.path); err != nil {
		return fmt.Errorf("failed to replace bootstrap config: %w", err)
	}
	return nil
}
