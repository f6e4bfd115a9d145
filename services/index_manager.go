package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/docrag/logging"
	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/providers"
	"github.com/itish2003/docrag/vectorstore"
)

// DefaultEmbedBatchSize is used when the manager is built with a
// non-positive batch size.
const DefaultEmbedBatchSize = 64

// Handle is an opened index.
type Handle struct {
	created bool
}

// Created reports whether the handle came from building a new index rather
// than loading a persisted one.
func (h *Handle) Created() bool { return h != nil && h.created }

// IndexManager owns the persisted vector index. Writes to the store are
// serialized; embedding happens outside the writer lock, and queries search
// whatever snapshot the store holds when they start.
type IndexManager struct {
	store     vectorstore.Storage
	embedder  providers.Embedder
	batchSize int
	writeMu   sync.Mutex
	openMu    sync.Mutex
	opened    atomic.Bool
	log       *logrus.Entry
}

// NewIndexManager builds a manager over store.
func NewIndexManager(store vectorstore.Storage, embedder providers.Embedder, batchSize int) *IndexManager {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	return &IndexManager{
		store:     store,
		embedder:  embedder,
		batchSize: batchSize,
		log:       logging.Component("INDEXER"),
	}
}

// Open loads the persisted index once; later calls reuse it. It returns
// models.ErrIndexNotFound on a first run and models.ErrIndexCorrupt when the
// data cannot be read.
func (m *IndexManager) Open(ctx context.Context) (*Handle, error) {
	if err := m.open(ctx); err != nil {
		return nil, err
	}
	return &Handle{}, nil
}

// open never waits on writeMu, so readers are not held up by an ingestion.
func (m *IndexManager) open(ctx context.Context) error {
	if m.opened.Load() {
		return nil
	}
	m.openMu.Lock()
	defer m.openMu.Unlock()
	if m.opened.Load() {
		return nil
	}
	if err := m.store.Open(ctx); err != nil {
		return err
	}
	m.opened.Store(true)
	return nil
}

// OpenOrCreate loads the persisted index, ignoring chunks, or builds a new
// one from chunks when none exists.
func (m *IndexManager) OpenOrCreate(ctx context.Context, chunks []models.Chunk) (*Handle, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	err := m.open(ctx)
	if err == nil {
		m.log.WithField("location", m.store.Location()).Info("loaded existing index")
		return &Handle{}, nil
	}
	if !errors.Is(err, models.ErrIndexNotFound) {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, models.ErrEmptyIndex
	}

	entries, err := m.embed(ctx, chunks, 0)
	if err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, entries); err != nil {
		return nil, fmt.Errorf("could not create index: %w", err)
	}
	m.opened.Store(true)
	m.log.WithFields(logrus.Fields{
		"location": m.store.Location(),
		"entries":  len(entries),
	}).Info("created new index")
	return &Handle{created: true}, nil
}

// Append embeds chunks and adds them after the existing entries. Nothing is
// de-duplicated: appending the same chunks twice stores them twice.
func (m *IndexManager) Append(ctx context.Context, h *Handle, chunks []models.Chunk) error {
	if h == nil {
		return models.ErrIndexNotFound
	}
	if len(chunks) == 0 {
		return nil
	}

	entries, err := m.embed(ctx, chunks, 0)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next, err := m.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("could not read index size: %w", err)
	}
	for i := range entries {
		entries[i].Seq = int64(next + i)
	}
	if err := m.store.Append(ctx, entries); err != nil {
		return fmt.Errorf("could not append to index: %w", err)
	}
	m.log.WithField("entries", len(entries)).Info("appended to index")
	return nil
}

// Index adds chunks to the index, creating it if needed. Chunks used to
// create the index are not appended a second time.
func (m *IndexManager) Index(ctx context.Context, chunks []models.Chunk) (*Handle, error) {
	h, err := m.OpenOrCreate(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if h.Created() {
		return h, nil
	}
	if err := m.Append(ctx, h, chunks); err != nil {
		return nil, err
	}
	return h, nil
}

// Query returns at most k chunks, best first. Equal scores keep insertion order.
func (m *IndexManager) Query(ctx context.Context, h *Handle, question string, k int) ([]models.ScoredChunk, error) {
	if h == nil {
		return nil, models.ErrIndexNotFound
	}
	if k <= 0 {
		return nil, nil
	}

	vecs, err := m.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("could not embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one question", len(vecs))
	}

	matches, err := m.store.Snapshot().Search(ctx, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("could not search index: %w", err)
	}
	vectorstore.SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}

	out := make([]models.ScoredChunk, len(matches))
	for i, match := range matches {
		out[i] = models.ScoredChunk{Chunk: match.Entry.Chunk, Score: match.Score}
	}
	return out, nil
}

// Stats reports the size and location of the index.
func (m *IndexManager) Stats(ctx context.Context) (models.IndexStats, error) {
	stats := models.IndexStats{Backend: m.store.Backend(), Location: m.store.Location()}
	n, err := m.store.Count(ctx)
	if err != nil {
		if errors.Is(err, models.ErrIndexNotFound) {
			return stats, nil
		}
		return stats, err
	}
	stats.Entries = n
	return stats, nil
}

// Close releases the underlying store.
func (m *IndexManager) Close() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.openMu.Lock()
	defer m.openMu.Unlock()
	m.opened.Store(false)
	return m.store.Close()
}

func (m *IndexManager) embed(ctx context.Context, chunks []models.Chunk, firstSeq int64) ([]vectorstore.Entry, error) {
	entries := make([]vectorstore.Entry, 0, len(chunks))
	for start := 0; start < len(chunks); start += m.batchSize {
		end := min(start+m.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		vecs, err := m.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("could not embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(texts))
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, fmt.Errorf("embedder returned an empty vector for chunk %d", start+i)
			}
			entries = append(entries, vectorstore.Entry{
				ID:     uuid.NewString(),
				Seq:    firstSeq + int64(len(entries)),
				Chunk:  chunks[start+i],
				Vector: v,
			})
		}
		m.log.WithFields(logrus.Fields{"done": end, "total": len(chunks)}).Debug("embedded batch")
	}
	return entries, nil
}
