package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/docrag/logging"
	"github.com/itish2003/docrag/models"
)

// DefaultWatchDebounce coalesces the burst of events editors emit per save.
const DefaultWatchDebounce = 500 * time.Millisecond

// FolderIndexer loads a whole folder through the document cache and keeps
// the index in step with it.
type FolderIndexer struct {
	extractor *Extractor
	cache     *DocumentCache
	chunker   *Chunker
	index     *IndexManager
	ingest    *IngestService
	debounce  time.Duration
	log       *logrus.Entry
	watchLog  *logrus.Entry
}

// NewFolderIndexer creates a new indexing service.
func NewFolderIndexer(extractor *Extractor, cache *DocumentCache, chunker *Chunker, index *IndexManager, ingest *IngestService) *FolderIndexer {
	return &FolderIndexer{
		extractor: extractor,
		cache:     cache,
		chunker:   chunker,
		index:     index,
		ingest:    ingest,
		debounce:  DefaultWatchDebounce,
		log:       logging.Component("INDEXER"),
		watchLog:  logging.Component("WATCHER"),
	}
}

// SetDebounce changes the watcher quiet period.
func (s *FolderIndexer) SetDebounce(d time.Duration) { s.debounce = d }

// LoadDocuments returns every document in dir, from the cache when present.
// Files that fail to extract are logged and skipped.
func (s *FolderIndexer) LoadDocuments(ctx context.Context, dir string) ([]models.Document, error) {
	return s.cache.LoadOrBuild(ctx, dir, func(ctx context.Context) ([]models.Document, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("could not list %s: %w", dir, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && IsSupportedFile(e.Name()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		var docs []models.Document
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(dir, name)
			s.log.WithField("file", path).Info("loading file")
			fileDocs, err := s.extractor.ExtractFile(ctx, path)
			if err != nil {
				s.log.WithError(err).WithField("file", path).Error("failed to process file")
				continue
			}
			docs = append(docs, fileDocs...)
		}
		return docs, nil
	})
}

// IndexFolder loads dir and opens the index, creating it from the folder's
// documents when none exists yet. An existing index is used as is.
func (s *FolderIndexer) IndexFolder(ctx context.Context, dir string) (*IngestResult, error) {
	s.log.WithField("dir", dir).Info("starting directory scan")
	docs, err := s.LoadDocuments(ctx, dir)
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunker.Split(docs)
	if err != nil {
		return nil, err
	}
	h, err := s.index.OpenOrCreate(ctx, chunks)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"documents": len(docs), "chunks": len(chunks), "created": h.Created()}).Info("directory scan finished")
	return &IngestResult{Documents: len(docs), Chunks: len(chunks), Created: h.Created()}, nil
}

// StartWatch watches dir and returns once the watch is active. Any change
// to a supported file invalidates the cache; created or written files are
// ingested into the index. The returned channel closes when ctx ends.
func (s *FolderIndexer) StartWatch(ctx context.Context, dir string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to add path to watcher: %w", err)
	}
	s.watchLog.WithField("dir", dir).Info("watching directory")

	done := make(chan struct{})
	ready := make(chan string)
	var (
		mu      sync.Mutex
		pending = map[string]*time.Timer{}
	)
	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok {
			t.Reset(s.debounce)
			return
		}
		pending[path] = time.AfterFunc(s.debounce, func() {
			mu.Lock()
			delete(pending, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	go func() {
		defer close(done)
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !IsSupportedFile(event.Name) {
					continue
				}
				s.watchLog.WithField("event", event.String()).Debug("watcher event")

				if err := s.cache.Invalidate(); err != nil {
					s.watchLog.WithError(err).Warn("could not invalidate document cache")
				}
				switch {
				case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
					schedule(event.Name)
				case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
					// The index is append-only; earlier entries stay searchable.
					s.watchLog.WithField("file", event.Name).Info("file removed; cache invalidated")
				}

			case path := <-ready:
				s.watchLog.WithField("file", path).Info("file modified/created, indexing")
				if _, err := s.ingest.IngestFile(ctx, path); err != nil {
					s.watchLog.WithError(err).WithField("file", path).Error("failed to process file")
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.watchLog.WithError(err).Error("watcher error")

			case <-ctx.Done():
				s.watchLog.Info("context cancelled, shutting down watcher")
				return
			}
		}
	}()
	return done, nil
}

// WatchDirectory runs the watcher until ctx is cancelled.
func (s *FolderIndexer) WatchDirectory(ctx context.Context, dir string) error {
	done, err := s.StartWatch(ctx, dir)
	if err != nil {
		return err
	}
	<-done
	return nil
}
