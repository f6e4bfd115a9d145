package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/providers/providertest"
	"github.com/itish2003/docrag/vectorstore/memory"
)

func newTestRAG(t *testing.T, gen *providertest.Generator, emb *providertest.HashEmbedder) (*IndexManager, RAGService) {
	t.Helper()
	m := NewIndexManager(memory.NewStorage(), emb, 8)
	return m, NewRAGService(m, gen, 0)
}

func TestAnswerBeforeIngest(t *testing.T) {
	_, svc := newTestRAG(t, &providertest.Generator{}, &providertest.HashEmbedder{})
	_, err := svc.Answer(context.Background(), "anything?")
	assert.ErrorIs(t, err, models.ErrIndexNotFound)
}

func TestAnswerEmptyQuestion(t *testing.T) {
	_, svc := newTestRAG(t, &providertest.Generator{}, &providertest.HashEmbedder{})
	_, err := svc.Answer(context.Background(), "  ")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestAnswerUsesTopChunks(t *testing.T) {
	ctx := context.Background()
	gen := &providertest.Generator{Answer: "Paris"}
	m, svc := newTestRAG(t, gen, &providertest.HashEmbedder{})

	chunks := append(
		textChunks("france.txt", "the capital of france is paris", "france is in europe"),
		textChunks("misc.txt", "bananas are yellow", "the moon orbits the earth", "paris hosts the louvre", "dogs bark")...,
	)
	_, err := m.Index(ctx, chunks)
	require.NoError(t, err)

	ans, err := svc.Answer(ctx, "what is the capital of france?")
	require.NoError(t, err)

	assert.Equal(t, "Paris", ans.Answer)
	require.Len(t, ans.Chunks, DefaultTopK)
	assert.Equal(t, "the capital of france is paris", ans.Chunks[0].Chunk.Text)
	assert.Equal(t, "france.txt", ans.Sources[0])
	assert.Len(t, ans.Sources, 2)

	assert.Equal(t, "what is the capital of france?", gen.LastQuestion)
	parts := strings.Split(gen.LastContext, "\n\n")
	require.Len(t, parts, DefaultTopK)
	assert.Equal(t, ans.Chunks[0].Chunk.Text, parts[0])
}

func TestAnswerGenerationFailure(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("model overloaded")
	m, svc := newTestRAG(t, &providertest.Generator{Err: cause}, &providertest.HashEmbedder{})
	_, err := m.Index(ctx, textChunks("a.txt", "something"))
	require.NoError(t, err)

	_, err = svc.Answer(ctx, "what?")
	assert.ErrorIs(t, err, models.ErrGeneration)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, models.ErrRetrieval)
}

func TestAnswerRetrievalFailure(t *testing.T) {
	ctx := context.Background()
	emb := &providertest.HashEmbedder{}
	m, svc := newTestRAG(t, &providertest.Generator{Answer: "x"}, emb)
	_, err := m.Index(ctx, textChunks("a.txt", "something"))
	require.NoError(t, err)

	emb.Err = errors.New("embedding quota")
	_, err = svc.Answer(ctx, "what?")
	assert.ErrorIs(t, err, models.ErrRetrieval)
	assert.NotErrorIs(t, err, models.ErrGeneration)
}

// gatedEmbedder blocks any batch containing a text with the given marker
// until release is closed.
type gatedEmbedder struct {
	providertest.HashEmbedder
	marker  string
	entered chan struct{}
	release chan struct{}
}

func (e *gatedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, e.marker) {
			close(e.entered)
			<-e.release
			break
		}
	}
	return e.HashEmbedder.Embed(ctx, texts)
}

func TestAnswerDuringSlowAppend(t *testing.T) {
	ctx := context.Background()
	emb := &gatedEmbedder{marker: "gated", entered: make(chan struct{}), release: make(chan struct{})}
	m := NewIndexManager(memory.NewStorage(), emb, 8)
	svc := NewRAGService(m, &providertest.Generator{Answer: "ok"}, 4)

	_, err := m.Index(ctx, textChunks("seed.txt", "alpha document"))
	require.NoError(t, err)

	appended := make(chan error, 1)
	go func() {
		_, err := m.Index(ctx, textChunks("late.txt", "gated alpha text"))
		appended <- err
	}()
	<-emb.entered

	answered := make(chan *Answer, 1)
	go func() {
		ans, err := svc.Answer(ctx, "alpha")
		assert.NoError(t, err)
		answered <- ans
	}()

	select {
	case ans := <-answered:
		require.NotNil(t, ans)
		assert.Equal(t, []string{"seed.txt"}, ans.Sources, "the pending append is not visible yet")
	case <-time.After(2 * time.Second):
		t.Fatal("Answer waited for the in-flight append")
	}

	close(emb.release)
	require.NoError(t, <-appended)
	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
}
