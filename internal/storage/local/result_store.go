// Package local implements a filesystem result store: one JSON document per key.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Config captures the parameters for the local filesystem result store.
type Config struct {
	// BaseDir is the root directory where records will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ResultStore writes records to <BaseDir>/<key>.json.
type ResultStore struct {
	baseDir string
}

// New creates a new local filesystem-backed result store.
func New(cfg Config) (*ResultStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Fail at startup rather than on the first write.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &ResultStore{baseDir: cfg.BaseDir}, nil
}

// Put writes record as indented JSON and returns a file:// URI. The write goes through a temp file and rename so
// readers never see a partial document.
func (s *ResultStore) Put(_ context.Context, key string, record scrape.Record) (string, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(s.baseDir, ".record-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}

// Get reads the record stored under key.
func (s *ResultStore) Get(_ context.Context, key string) (scrape.Record, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return scrape.Record{}, err
	}
	// #nosec G304 -- path is confined to baseDir by s.path.
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return scrape.Record{}, fmt.Errorf("get %s: %w", key, scrape.ErrNotFound)
		}
		return scrape.Record{}, fmt.Errorf("read record: %w", err)
	}
	var record scrape.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return scrape.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}

func (s *ResultStore) path(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	fullPath := filepath.Join(s.baseDir, key+".json")

	// Clean the path and verify it's within baseDir to prevent path traversal.
	cleanBaseDir := filepath.Clean(s.baseDir)
	cleanFullPath := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFullPath, cleanBaseDir+string(filepath.Separator)) ||
		filepath.Dir(cleanFullPath) != cleanBaseDir {
		return "", fmt.Errorf("path traversal detected")
	}
	return cleanFullPath, nil
}
