// Package sqlite persists the vector index in a single SQLite file and serves
// queries from an in-memory snapshot of it.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/vectorstore"
)

// FileName is the database file created inside the index directory.
const FileName = "index.db"

// formatVersion is stored in PRAGMA user_version.
const formatVersion = 1

const schema = `
CREATE TABLE entries (
    seq         INTEGER PRIMARY KEY,
    id          TEXT NOT NULL UNIQUE,
    chunk_index INTEGER NOT NULL,
    text        TEXT NOT NULL,
    metadata    TEXT NOT NULL,
    vector      BLOB NOT NULL
);`

const insertEntry = `INSERT INTO entries (seq, id, chunk_index, text, metadata, vector) VALUES (?, ?, ?, ?, ?, ?)`

type row struct {
	Seq        int64  `db:"seq"`
	ID         string `db:"id"`
	ChunkIndex int    `db:"chunk_index"`
	Text       string `db:"text"`
	Metadata   string `db:"metadata"`
	Vector     []byte `db:"vector"`
}

// Storage is a SQLite-backed index rooted at a directory.
type Storage struct {
	dir string

	mu   sync.RWMutex
	db   *sqlx.DB
	snap *vectorstore.Snapshot
}

var _ vectorstore.Storage = (*Storage)(nil)

// NewStorage returns a store for the index directory dir. Nothing is touched
// on disk until Open or Create.
func NewStorage(dir string) *Storage {
	return &Storage{dir: dir}
}

func (s *Storage) Backend() string  { return "sqlite" }
func (s *Storage) Location() string { return s.dir }

func (s *Storage) path() string { return filepath.Join(s.dir, FileName) }

// Open loads the whole index into memory.
func (s *Storage) Open(ctx context.Context) error {
	if _, err := os.Stat(s.path()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.ErrIndexNotFound
		}
		return fmt.Errorf("could not stat index: %w", err)
	}

	db, err := sqlx.Open("sqlite", s.path())
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexCorrupt, err)
	}
	snap, err := load(ctx, db)
	if err != nil {
		db.Close()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		s.db.Close()
	}
	s.db, s.snap = db, snap
	return nil
}

// Create builds a fresh database next to the target and renames it into
// place, so a crash never leaves a half-written index behind.
func (s *Storage) Create(ctx context.Context, entries []vectorstore.Entry) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("could not create index directory: %w", err)
	}
	tmp := filepath.Join(s.dir, fmt.Sprintf(".%s.%s.tmp", FileName, uuid.NewString()))
	defer os.Remove(tmp)

	if err := build(ctx, tmp, entries); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("could not move index into place: %w", err)
	}
	return s.Open(ctx)
}

func build(ctx context.Context, path string, entries []vectorstore.Entry) error {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("could not create index database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("could not create index schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", formatVersion)); err != nil {
		return fmt.Errorf("could not stamp index version: %w", err)
	}
	return insert(ctx, db, entries)
}

// Append inserts entries in one transaction and publishes a new snapshot
// only after the commit succeeded.
func (s *Storage) Append(ctx context.Context, entries []vectorstore.Entry) error {
	s.mu.RLock()
	db, snap := s.db, s.snap
	s.mu.RUnlock()
	if db == nil {
		return models.ErrIndexNotFound
	}

	if err := insert(ctx, db, entries); err != nil {
		return err
	}

	next := snap.With(entries)
	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()
	return nil
}

func insert(ctx context.Context, db *sqlx.DB, entries []vectorstore.Entry) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin index transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, insertEntry)
	if err != nil {
		return fmt.Errorf("could not prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		meta, err := json.Marshal(e.Chunk.Metadata)
		if err != nil {
			return fmt.Errorf("could not encode metadata for entry %d: %w", e.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, e.Seq, e.ID, e.Chunk.Index, e.Chunk.Text, string(meta), encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("could not insert entry %d: %w", e.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit index transaction: %w", err)
	}
	return nil
}

func load(ctx context.Context, db *sqlx.DB) (*vectorstore.Snapshot, error) {
	var version int
	if err := db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexCorrupt, err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", models.ErrIndexCorrupt, version, formatVersion)
	}

	var rows []row
	if err := db.SelectContext(ctx, &rows, "SELECT seq, id, chunk_index, text, metadata, vector FROM entries ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexCorrupt, err)
	}

	entries := make([]vectorstore.Entry, len(rows))
	for i, r := range rows {
		var meta models.Metadata
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("%w: entry %d metadata: %v", models.ErrIndexCorrupt, r.Seq, err)
		}
		vec, err := decodeVector(r.Vector)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", models.ErrIndexCorrupt, r.Seq, err)
		}
		entries[i] = vectorstore.Entry{
			ID:     r.ID,
			Seq:    r.Seq,
			Chunk:  models.Chunk{Text: r.Text, Index: r.ChunkIndex, Metadata: meta},
			Vector: vec,
		}
	}
	return vectorstore.NewSnapshot(entries), nil
}

func (s *Storage) Snapshot() vectorstore.Searcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		if err := s.Open(ctx); err != nil {
			return 0, err
		}
		s.mu.RLock()
		db = s.db
		s.mu.RUnlock()
	}
	var n int
	if err := db.GetContext(ctx, &n, "SELECT COUNT(*) FROM entries"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("could not count entries: %w", err)
	}
	return n, nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db, s.snap = nil, nil
	return err
}

// Vectors are stored as little-endian float32.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob has %d bytes, not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
