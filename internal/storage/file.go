package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pfrederiksen/stuwo-offers/internal/logger"
	"github.com/pfrederiksen/stuwo-offers/internal/offer"
)

// DefaultCachePath is relative to the working directory
const DefaultCachePath = "offers_cache.json"

// FileStore keeps the offers as a JSON array in a single file
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store. A leading ~/ is expanded. Nothing
// is created on disk until the first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = DefaultCachePath
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	return &FileStore{path: path}, nil
}

// Location returns the cache file path
func (s *FileStore) Location() string {
	return s.path
}

// Load reads the cache file. A missing file is not an error.
func (s *FileStore) Load(ctx context.Context) ([]*offer.Offer, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			// No previous run, start from an empty list
			return make([]*offer.Offer, 0), false, nil
		}
		return nil, false, fmt.Errorf("reading cache: %w", err)
	}

	offers, err := decodeOffers(data)
	if err != nil {
		return nil, true, fmt.Errorf("parsing cache %s: %w", s.path, err)
	}
	return offers, true, nil
}

// Save writes offers to a temporary file next to the cache and renames it into
// place, so a crash never leaves a half-written cache behind.
func (s *FileStore) Save(ctx context.Context, offers []*offer.Offer) error {
	start := time.Now()

	data, err := encodeOffers(offers)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing cache: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting cache permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing cache: %w", err)
	}

	logger.RecordTiming("store.save", time.Since(start))
	return nil
}

// Close is a no-op for files
func (s *FileStore) Close() error {
	return nil
}
