package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/itish2003/docrag/logging"
	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/providers"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 4

// Answer is the result of one retrieval-augmented question.
type Answer struct {
	Answer  string
	Sources []string
	Chunks  []models.ScoredChunk
}

// RAGService answers questions from the indexed documents.
type RAGService interface {
	Answer(ctx context.Context, question string) (*Answer, error)
	Stats(ctx context.Context) (models.IndexStats, error)
}

// ragServiceImpl holds the dependencies it needs to do its job.
type ragServiceImpl struct {
	index     *IndexManager
	generator providers.Generator
	topK      int
	log       *logrus.Entry
}

// NewRAGService creates a stateless answerer. Each question is independent.
func NewRAGService(index *IndexManager, generator providers.Generator, topK int) RAGService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &ragServiceImpl{
		index:     index,
		generator: generator,
		topK:      topK,
		log:       logging.Component("SERVICE"),
	}
}

// Answer retrieves the best chunks and asks the generator. Retrieval
// failures wrap models.ErrRetrieval; generator failures wrap
// models.ErrGeneration.
func (r *ragServiceImpl) Answer(ctx context.Context, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", models.ErrInvalidInput)
	}
	r.log.WithField("question", question).Info("answering question")

	h, err := r.index.Open(ctx)
	if err != nil {
		return nil, err
	}

	chunks, err := r.index.Query(ctx, h, question, r.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrRetrieval, err)
	}
	r.log.WithField("chunks", len(chunks)).Debug("retrieved chunks")

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk.Text
	}

	answer, err := r.generator.Generate(ctx, strings.Join(texts, "\n\n"), question)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}

	return &Answer{
		Answer:  answer,
		Sources: uniqueSources(chunks),
		Chunks:  chunks,
	}, nil
}

func (r *ragServiceImpl) Stats(ctx context.Context) (models.IndexStats, error) {
	return r.index.Stats(ctx)
}

func uniqueSources(chunks []models.ScoredChunk) []string {
	seen := make(map[string]bool, len(chunks))
	var out []string
	for _, c := range chunks {
		src := c.Chunk.Source()
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}
