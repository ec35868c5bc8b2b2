// Package local stores uploaded images on the filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/angelmondragon/spoolhub-backend/pkg/config"
	"github.com/angelmondragon/spoolhub-backend/pkg/storage"
)

// Store writes images under a root directory and hands out locators under a public path.
type Store struct {
	root       string
	publicPath string
	now        func() time.Time
}

// New prepares the root directory.
func New(cfg config.StorageConfig) (*Store, error) {
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, errors.New("local storage dir is required")
	}
	root, err := filepath.Abs(cfg.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("resolving storage dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	public := "/" + strings.Trim(cfg.PublicPath, "/")
	return &Store{root: root, publicPath: public, now: time.Now}, nil
}

// Save writes data and returns its public locator.
func (s *Store) Save(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &storage.Error{Op: "save", Err: err}
	}
	name := storage.ObjectName(s.now(), data, ext)
	full := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", &storage.Error{Op: "save", Err: err}
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", &storage.Error{Op: "save", Err: err}
	}
	return path.Join(s.publicPath, name), nil
}

// Read loads the bytes behind a locator returned by Save.
func (s *Store) Read(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &storage.Error{Op: "read", Locator: locator, Err: err}
	}
	full, err := s.resolve(locator)
	if err != nil {
		return nil, &storage.Error{Op: "read", Locator: locator, Err: err}
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, &storage.Error{Op: "read", Locator: locator, Err: err}
	}
	return data, nil
}

func (s *Store) resolve(locator string) (string, error) {
	prefix := s.publicPath + "/"
	if !strings.HasPrefix(locator, prefix) {
		return "", fmt.Errorf("locator outside %s", s.publicPath)
	}
	rel := path.Clean(strings.TrimPrefix(locator, prefix))
	if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return "", errors.New("locator escapes storage root")
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}
