package pgvector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/docrag/models"
)

func TestNewStorageRejectsUnsafeTableNames(t *testing.T) {
	tests := []struct {
		table string
		ok    bool
	}{
		{"documents", true},
		{"doc_chunks_2", true},
		{"_private", true},
		{"2fast", false},
		{"docs; DROP TABLE users", false},
		{`"quoted"`, false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			_, err := NewStorage(nil, tt.table)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, models.ErrConfiguration)
			}
		})
	}
}

func TestCountErr(t *testing.T) {
	missing := fmt.Errorf("query: %w", &pgconn.PgError{Code: "42P01", Message: `relation "documents" does not exist`})
	assert.ErrorIs(t, countErr("documents", missing), models.ErrIndexNotFound)

	denied := &pgconn.PgError{Code: "42501", Message: "permission denied"}
	assert.NotErrorIs(t, countErr("documents", denied), models.ErrIndexNotFound)
	assert.NotErrorIs(t, countErr("documents", errors.New("conn reset")), models.ErrIndexNotFound)
}

// Runs against a live database when TEST_DATABASE_URL is set.
func TestCountMissingTable(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := Connect(dsn)
	require.NoError(t, err)
	s, err := NewStorage(db, "docrag_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Count(context.Background())
	assert.ErrorIs(t, err, models.ErrIndexNotFound)
}
