// Package qdrant stores the vector index in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/vectorstore"
)

const (
	payloadText  = "text"
	payloadSeq   = "seq"
	payloadIndex = "index"
	metaPrefix   = "meta."
)

// Config locates the server and collection.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
}

// Storage is a Qdrant-backed index. Search goes to the server, so Snapshot
// returns the store itself.
type Storage struct {
	client     *qdrant.Client
	collection string
	location   string
}

var _ vectorstore.Storage = (*Storage)(nil)

// NewStorage dials Qdrant. Defaults to localhost:6334.
func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create qdrant client: %w", err)
	}
	return &Storage{
		client:     client,
		collection: cfg.Collection,
		location:   fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Collection),
	}, nil
}

func (s *Storage) Backend() string  { return "qdrant" }
func (s *Storage) Location() string { return s.location }

// Open treats a missing or empty collection as no index.
func (s *Storage) Open(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("could not check qdrant collection: %w", err)
	}
	if !exists {
		return models.ErrIndexNotFound
	}
	n, err := s.count(ctx)
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
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("could not check qdrant collection: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(len(entries[0].Vector)),
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	return s.Append(ctx, entries)
}

func (s *Storage) Append(ctx context.Context, entries []vectorstore.Entry) error {
	pts := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		payload := map[string]any{
			payloadText:  e.Chunk.Text,
			payloadSeq:   e.Seq,
			payloadIndex: int64(e.Chunk.Index),
		}
		for k, v := range e.Chunk.Metadata {
			payload[metaPrefix+k] = v
		}
		pts[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(e.ID),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         pts,
	})
	if err != nil {
		return fmt.Errorf("could not upsert %d points: %w", len(pts), err)
	}
	return nil
}

func (s *Storage) Snapshot() vectorstore.Searcher { return s }

func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	limit := uint64(k)
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Limit:          &limit,
		Query:          qdrant.NewQuery(vector...),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	out := make([]vectorstore.Match, 0, len(resp))
	for _, r := range resp {
		e := fromPayload(r.Payload)
		if r.Id != nil {
			if u, ok := r.Id.PointIdOptions.(*qdrant.PointId_Uuid); ok {
				e.ID = u.Uuid
			}
		}
		out = append(out, vectorstore.Match{Entry: e, Score: float64(r.Score)})
	}
	vectorstore.SortMatches(out)
	return out, nil
}

func fromPayload(payload map[string]*qdrant.Value) vectorstore.Entry {
	var e vectorstore.Entry
	meta := models.Metadata{}
	for key, v := range payload {
		switch {
		case key == payloadText:
			e.Chunk.Text = v.GetStringValue()
		case key == payloadSeq:
			e.Seq = v.GetIntegerValue()
		case key == payloadIndex:
			e.Chunk.Index = int(v.GetIntegerValue())
		case strings.HasPrefix(key, metaPrefix):
			meta[strings.TrimPrefix(key, metaPrefix)] = v.GetStringValue()
		}
	}
	e.Chunk.Metadata = meta
	return e
}

// Count returns models.ErrIndexNotFound until the collection exists.
func (s *Storage) Count(ctx context.Context) (int, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("could not check qdrant collection: %w", err)
	}
	if !exists {
		return 0, models.ErrIndexNotFound
	}
	return s.count(ctx)
}

func (s *Storage) count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, countErr(err)
	}
	return int(n), nil
}

// countErr maps a collection dropped between calls to models.ErrIndexNotFound.
func countErr(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %v", models.ErrIndexNotFound, err)
	}
	return fmt.Errorf("could not count qdrant points: %w", err)
}

func (s *Storage) Close() error {
	return s.client.Close()
}
