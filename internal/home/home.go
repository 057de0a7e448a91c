// Package home resolves the folio state directory: config file and the
// docling model cache.
package home

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultDirName = ".folio"
	// EnvVar overrides the default location when no path is given.
	EnvVar = "FOLIO_HOME"

	// CacheDirName is mounted into the docling container for model weights.
	CacheDirName   = "docling-cache"
	ConfigFileName = "config.yaml"
)

// Dir is a resolved home directory. Nothing is created until EnsureExists.
type Dir struct {
	path string
}

// New resolves path, then $FOLIO_HOME, then ~/.folio. A leading "~/" is
// expanded and the result made absolute.
func New(path string) (*Dir, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		path = filepath.Join("~", DefaultDirName)
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(userHome, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return &Dir{path: abs}, nil
}

func (d *Dir) Path() string       { return d.path }
func (d *Dir) CachePath() string  { return filepath.Join(d.path, CacheDirName) }
func (d *Dir) ConfigPath() string { return filepath.Join(d.path, ConfigFileName) }

// EnsureExists creates the home and cache directories.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.CachePath(), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", d.CachePath(), err)
	}
	return nil
}

// ConfigExists reports whether config.yaml is present. Errors other than
// absence count as present so that loading surfaces them.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return !errors.Is(err, fs.ErrNotExist)
}
