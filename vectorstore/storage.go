// Package vectorstore defines the persistence contract behind the vector index
// and the brute-force cosine search shared by the local backends.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/itish2003/docrag/models"
)

// Entry is one indexed chunk.
type Entry struct {
	ID     string
	Seq    int64
	Chunk  models.Chunk
	Vector []float32
}

// Match is a search hit. Entry.Vector may be nil for remote backends.
type Match struct {
	Entry Entry
	Score float64
}

// Searcher answers nearest-neighbour queries.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
}

// Storage persists entries for one named index.
//
// Open reports models.ErrIndexNotFound when nothing was persisted yet and
// models.ErrIndexCorrupt when the persisted data cannot be read. Create is
// only called when Open reported ErrIndexNotFound. Snapshot returns a view
// that is not affected by later appends.
type Storage interface {
	Backend() string
	Location() string
	Open(ctx context.Context) error
	Create(ctx context.Context, entries []Entry) error
	Append(ctx context.Context, entries []Entry) error
	Snapshot() Searcher
	Count(ctx context.Context) (int, error)
	Close() error
}

// Snapshot is an immutable in-memory set of entries.
type Snapshot struct {
	entries []Entry
	norms   []float64
}

// NewSnapshot indexes entries. The slice is owned by the snapshot afterwards.
func NewSnapshot(entries []Entry) *Snapshot {
	s := &Snapshot{entries: entries, norms: make([]float64, len(entries))}
	for i, e := range entries {
		s.norms[i] = norm(e.Vector)
	}
	return s
}

// With returns a new snapshot holding s's entries followed by more.
// s is left untouched, so readers holding it keep a stable view.
func (s *Snapshot) With(more []Entry) *Snapshot {
	var base []Entry
	var norms []float64
	if s != nil {
		base, norms = s.entries, s.norms
	}
	entries := make([]Entry, 0, len(base)+len(more))
	entries = append(entries, base...)
	entries = append(entries, more...)

	out := &Snapshot{entries: entries, norms: make([]float64, 0, len(entries))}
	out.norms = append(out.norms, norms...)
	for _, e := range more {
		out.norms = append(out.norms, norm(e.Vector))
	}
	return out
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Search scores every entry by cosine similarity and returns the best k.
func (s *Snapshot) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if s == nil || k <= 0 {
		return nil, nil
	}
	qn := norm(vector)
	matches := make([]Match, 0, len(s.entries))
	for i, e := range s.entries {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(e.Vector) != len(vector) {
			return nil, fmt.Errorf("vector dimension mismatch: index has %d, query has %d", len(e.Vector), len(vector))
		}
		var score float64
		if qn > 0 && s.norms[i] > 0 {
			score = dot(e.Vector, vector) / (qn * s.norms[i])
		}
		matches = append(matches, Match{Entry: e, Score: score})
	}
	SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// SortMatches orders matches by descending score; equal scores keep
// insertion order (lower Seq first).
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Entry.Seq < matches[j].Entry.Seq
	})
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
