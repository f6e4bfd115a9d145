package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/docrag/logging"
	"github.com/itish2003/docrag/models"
)

// cacheRecord is the on-disk form of the document cache.
type cacheRecord struct {
	Location  string            `json:"location"`
	CreatedAt time.Time         `json:"created_at"`
	Documents []models.Document `json:"documents"`
}

// DocumentCache stores every document extracted from one folder as a single
// record, so a restart does not pay for extraction again.
type DocumentCache struct {
	path string
	mu   sync.Mutex
	log  *logrus.Entry
}

// NewDocumentCache uses path for the record.
func NewDocumentCache(path string) *DocumentCache {
	return &DocumentCache{path: path, log: logging.Component("CACHE")}
}

// Path returns the record location.
func (c *DocumentCache) Path() string { return c.path }

// LoadOrBuild returns the cached documents, or calls build and caches its
// result. A record that cannot be decoded yields models.ErrCacheCorrupt and
// build is not called. A record written for another location is replaced.
func (c *DocumentCache) LoadOrBuild(ctx context.Context, location string, build func(context.Context) ([]models.Document, error)) ([]models.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	switch {
	case err == nil:
		var rec cacheRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrCacheCorrupt, c.path, err)
		}
		if sameLocation(rec.Location, location) {
			c.log.WithFields(logrus.Fields{"path": c.path, "documents": len(rec.Documents)}).Info("cached documents found, loading from disk")
			return rec.Documents, nil
		}
		c.log.WithFields(logrus.Fields{
			"path":     c.path,
			"cached":   rec.Location,
			"location": location,
		}).Warn("document cache belongs to another location, rebuilding")
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("could not read document cache: %w", err)
	}

	c.log.WithField("location", location).Info("no cache found, processing documents")
	docs, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.write(cacheRecord{Location: location, CreatedAt: time.Now().UTC(), Documents: docs}); err != nil {
		return nil, err
	}
	c.log.WithField("documents", len(docs)).Info("documents processed and cached")
	return docs, nil
}

func sameLocation(a, b string) bool {
	if a == b {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// Invalidate removes the record. A missing record is not an error.
func (c *DocumentCache) Invalidate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not remove document cache: %w", err)
	}
	return nil
}

func (c *DocumentCache) write(rec cacheRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("could not encode document cache: %w", err)
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create cache directory: %w", err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(c.path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not write document cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not move document cache into place: %w", err)
	}
	return nil
}
