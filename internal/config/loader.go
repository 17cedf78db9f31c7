package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	appDir   = "gleam"
	fileName = "config.yaml"
)

// DefaultPath returns ~/.config/gleam/config.yaml or the platform equivalent.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: unable to determine config directory: %w", err)
	}
	return filepath.Join(base, appDir, fileName), nil
}

// Loader reads and writes configuration files on an afero filesystem.
type Loader struct {
	fs afero.Fs
}

// NewLoader creates a loader. A nil fs means the OS filesystem.
func NewLoader(fsys afero.Fs) *Loader {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Loader{fs: fsys}
}

// Load reads path over the defaults. A missing file yields the defaults, not an error.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.Path = path

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to its Path, creating the directory when needed.
func (l *Loader) Save(cfg *Config) error {
	if cfg.Path == "" {
		path, err := DefaultPath()
		if err != nil {
			return err
		}
		cfg.Path = path
	}

	dir := filepath.Dir(cfg.Path)
	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(l.fs, cfg.Path, data, 0o644); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", cfg.Path, err)
	}
	return nil
}
