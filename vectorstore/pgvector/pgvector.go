// Package pgvector stores the vector index in PostgreSQL with the pgvector
// extension.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/vectorstore"
)

var validTable = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Storage is a pgvector-backed index. One table per index name.
type Storage struct {
	db    *sqlx.DB
	table string
}

var _ vectorstore.Storage = (*Storage)(nil)

// Connect opens the database and pings it.
func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewStorage uses table for the index. The name is interpolated into SQL,
// so it must be a plain identifier.
func NewStorage(db *sqlx.DB, table string) (*Storage, error) {
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", models.ErrConfiguration, table)
	}
	return &Storage{db: db, table: table}, nil
}

func (s *Storage) Backend() string  { return "pgvector" }
func (s *Storage) Location() string { return s.table }

// Open treats a missing or empty table as no index.
func (s *Storage) Open(ctx context.Context) error {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT to_regclass($1) IS NOT NULL`, s.table); err != nil {
		return fmt.Errorf("could not look up table %s: %w", s.table, err)
	}
	if !exists {
		return models.ErrIndexNotFound
	}
	n, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrIndexNotFound
	}
	return nil
}

func (s *Storage) Create(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return models.ErrEmptyIndex
	}
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("could not enable pgvector: %w", err)
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			"seq"        BIGINT PRIMARY KEY,
			"id"         UUID NOT NULL UNIQUE,
			"chunkIndex" INTEGER NOT NULL,
			"content"    TEXT NOT NULL,
			"metadata"   JSONB NOT NULL,
			"embedding"  vector(%d) NOT NULL
		)`, s.table, len(entries[0].Vector))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("could not create table %s: %w", s.table, err)
	}
	return s.Append(ctx, entries)
}

// Append inserts all entries in one transaction.
func (s *Storage) Append(ctx context.Context, entries []vectorstore.Entry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s ("seq", "id", "chunkIndex", "content", "metadata", "embedding")
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.table)

	for _, e := range entries {
		meta, err := json.Marshal(e.Chunk.Metadata)
		if err != nil {
			return fmt.Errorf("could not encode metadata for entry %d: %w", e.Seq, err)
		}
		_, err = tx.ExecContext(ctx, query,
			e.Seq,
			e.ID,
			e.Chunk.Index,
			e.Chunk.Text,
			string(meta),
			pgvector.NewVector(e.Vector),
		)
		if err != nil {
			return fmt.Errorf("could not insert entry %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Snapshot() vectorstore.Searcher { return s }

// Search ranks by cosine distance; equal distances fall back to seq.
func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT
			"id",
			"seq",
			"chunkIndex",
			"content",
			"metadata",
			1 - ("embedding" <=> $1) AS similarity
		FROM %s
		ORDER BY "embedding" <=> $1, "seq"
		LIMIT $2
	`, s.table)

	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vectorstore.Match
	for rows.Next() {
		var (
			m    vectorstore.Match
			meta []byte
		)
		if err := rows.Scan(&m.Entry.ID, &m.Entry.Seq, &m.Entry.Chunk.Index, &m.Entry.Chunk.Text, &meta, &m.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &m.Entry.Chunk.Metadata); err != nil {
			return nil, fmt.Errorf("could not decode metadata for entry %d: %w", m.Entry.Seq, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	vectorstore.SortMatches(out)
	return out, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)); err != nil {
		return 0, countErr(s.table, err)
	}
	return n, nil
}

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

func countErr(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: table %s does not exist", models.ErrIndexNotFound, table)
	}
	return fmt.Errorf("could not count rows in %s: %w", table, err)
}

func (s *Storage) Close() error {
	return s.db.Close()
}
