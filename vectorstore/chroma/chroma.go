// Package chroma stores the vector index in a Chroma collection.
package chroma

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/docrag/logging"
	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/vectorstore"
)

const (
	metaSeq   = "_seq"
	metaIndex = "_chunk_index"
)

// Storage is a Chroma-backed index.
type Storage struct {
	client   chromago.Client
	name     string
	location string
	log      *logrus.Entry

	mu         sync.Mutex
	collection chromago.Collection
}

var _ vectorstore.Storage = (*Storage)(nil)

// NewStorage connects to the Chroma server at baseURL.
func NewStorage(baseURL, collection string) (*Storage, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	return &Storage{
		client:   client,
		name:     collection,
		location: baseURL + "/" + collection,
		log:      logging.Component("CHROMA"),
	}, nil
}

func (s *Storage) Backend() string  { return "chroma" }
func (s *Storage) Location() string { return s.location }

func (s *Storage) getCollection(ctx context.Context) (chromago.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collection != nil {
		return s.collection, nil
	}
	col, err := s.client.GetOrCreateCollection(ctx, s.name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "docrag document chunks"),
				chromago.NewStringAttribute("created_by", "docrag"),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %q: %w", s.name, err)
	}
	s.collection = col
	return col, nil
}

// Open treats an empty collection as no index.
func (s *Storage) Open(ctx context.Context) error {
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
	return s.Append(ctx, entries)
}

func (s *Storage) Append(ctx context.Context, entries []vectorstore.Entry) error {
	col, err := s.getCollection(ctx)
	if err != nil {
		return err
	}

	ids := make([]chromago.DocumentID, len(entries))
	texts := make([]string, len(entries))
	embs := make([]embeddings.Embedding, len(entries))
	metas := make([]chromago.DocumentMetadata, len(entries))
	for i, e := range entries {
		ids[i] = chromago.DocumentID(e.ID)
		texts[i] = e.Chunk.Text
		embs[i] = embeddings.NewEmbeddingFromFloat32(e.Vector)

		attrs := []*chromago.MetaAttribute{
			chromago.NewIntAttribute(metaSeq, e.Seq),
			chromago.NewIntAttribute(metaIndex, int64(e.Chunk.Index)),
		}
		for k, v := range e.Chunk.Metadata {
			attrs = append(attrs, chromago.NewStringAttribute(k, v))
		}
		metas[i] = chromago.NewDocumentMetadata(attrs...)
	}

	err = col.Add(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(embs...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("failed to add %d records to chromadb: %w", len(entries), err)
	}
	return nil
}

func (s *Storage) Snapshot() vectorstore.Searcher { return s }

// Search converts Chroma's distances to similarities with 1/(1+d), so that
// larger is better like the other backends.
func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	col, err := s.getCollection(ctx)
	if err != nil {
		return nil, err
	}
	results, err := col.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	documentGroups := results.GetDocumentsGroups()
	if len(documentGroups) == 0 {
		return nil, nil
	}
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()
	idGroups := results.GetIDGroups()

	out := make([]vectorstore.Match, 0, len(documentGroups[0]))
	for i, doc := range documentGroups[0] {
		var e vectorstore.Entry
		e.Chunk.Text = doc.ContentString()
		if len(idGroups) > 0 && i < len(idGroups[0]) {
			e.ID = string(idGroups[0][i])
		}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) && metadataGroups[0][i] != nil {
			s.decodeMetadata(metadataGroups[0][i], &e)
		}
		var score float64
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			score = 1 / (1 + float64(distanceGroups[0][i]))
		}
		out = append(out, vectorstore.Match{Entry: e, Score: score})
	}
	vectorstore.SortMatches(out)
	return out, nil
}

// decodeMetadata goes through JSON because DocumentMetadata does not expose
// its attributes as a plain map.
func (s *Storage) decodeMetadata(md chromago.DocumentMetadata, e *vectorstore.Entry) {
	raw, err := json.Marshal(md)
	if err != nil {
		s.log.WithError(err).Warn("could not marshal metadata")
		return
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		s.log.WithError(err).Warn("could not unmarshal metadata")
		return
	}
	applyMetadata(m, e)
}

func applyMetadata(m map[string]any, e *vectorstore.Entry) {
	meta := models.Metadata{}
	for k, v := range m {
		switch k {
		case metaSeq:
			e.Seq = toInt64(v)
		case metaIndex:
			e.Chunk.Index = int(toInt64(v))
		default:
			switch x := v.(type) {
			case string:
				meta[k] = x
			default:
				meta[k] = fmt.Sprint(x)
			}
		}
	}
	e.Chunk.Metadata = meta
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case int64:
		return x
	case json.Number:
		n, _ := x.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	}
	return 0
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	col, err := s.getCollection(ctx)
	if err != nil {
		return 0, err
	}
	n, err := col.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count items in collection: %w", err)
	}
	return int(n), nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}
