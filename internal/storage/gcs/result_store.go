// Package gcs provides a ResultStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "results".
	Prefix string
}

// ResultStore writes records as JSON objects to a configured GCS bucket.
type ResultStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed result store.
func New(client *storage.Client, cfg Config) (*ResultStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ResultStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Put uploads record to <prefix>/<key>.json and returns a gs:// URI.
func (s *ResultStore) Put(ctx context.Context, key string, record scrape.Record) (string, error) {
	name, err := s.objectName(key)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// Get downloads and decodes the record stored under key.
func (s *ResultStore) Get(ctx context.Context, key string) (scrape.Record, error) {
	name, err := s.objectName(key)
	if err != nil {
		return scrape.Record{}, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return scrape.Record{}, fmt.Errorf("get %s: %w", key, scrape.ErrNotFound)
		}
		return scrape.Record{}, fmt.Errorf("open object: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		return scrape.Record{}, fmt.Errorf("read object: %w", err)
	}
	var record scrape.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return scrape.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}

func (s *ResultStore) objectName(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	if strings.Contains(key, "/") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	if s.prefix == "" {
		return key + ".json", nil
	}
	return path.Join(s.prefix, key+".json"), nil
}
