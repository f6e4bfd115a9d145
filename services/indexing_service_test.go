package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/docrag/providers/providertest"
	"github.com/itish2003/docrag/vectorstore/memory"
)

type folderFixture struct {
	indexer *FolderIndexer
	index   *IndexManager
	cache   *DocumentCache
	emb     *providertest.HashEmbedder
	desc    *providertest.Describer
}

func newFolderFixture(t *testing.T) *folderFixture {
	t.Helper()
	chunker, err := NewChunker(200, 20)
	require.NoError(t, err)

	emb := &providertest.HashEmbedder{}
	desc := &providertest.Describer{Fail: map[string]bool{"unreadable": true}}
	extractor := NewExtractor(fakePDF{}, desc, 2, 0)
	index := NewIndexManager(memory.NewStorage(), emb, 16)
	cache := NewDocumentCache(filepath.Join(t.TempDir(), "processed_docs.cache"))
	ingest := NewIngestService(extractor, chunker, index, t.TempDir())

	fi := NewFolderIndexer(extractor, cache, chunker, index, ingest)
	fi.SetDebounce(20 * time.Millisecond)
	return &folderFixture{indexer: fi, index: index, cache: cache, emb: emb, desc: desc}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestIndexFolderUsesCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha document")
	writeFile(t, dir, "scan.png", "sign text")
	writeFile(t, dir, "broken.jpg", "unreadable")
	writeFile(t, dir, "ignored.csv", "x,y")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	f := newFolderFixture(t)
	res, err := f.indexer.IndexFolder(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)
	assert.True(t, res.Created)
	assert.FileExists(t, f.cache.Path())
	assert.Equal(t, 2, f.desc.Calls)

	// Loading again hits the cache: no more vision calls.
	docs, err := f.indexer.LoadDocuments(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, 2, f.desc.Calls)

	// An existing index is opened, not extended.
	res, err = f.indexer.IndexFolder(ctx, dir)
	require.NoError(t, err)
	assert.False(t, res.Created)
	stats, err := f.index.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
}

func TestWatchIngestsNewFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()
	writeFile(t, dir, "seed.txt", "seed document")

	f := newFolderFixture(t)
	_, err := f.indexer.IndexFolder(ctx, dir)
	require.NoError(t, err)

	done, err := f.indexer.StartWatch(ctx, dir)
	require.NoError(t, err)

	writeFile(t, dir, "later.md", "a document added while watching")
	writeFile(t, dir, "notes.csv", "not supported")

	assert.Eventually(t, func() bool {
		stats, err := f.index.Stats(context.Background())
		return err == nil && stats.Entries == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.NoFileExists(t, f.cache.Path(), "any change invalidates the whole-folder cache")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
