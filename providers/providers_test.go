package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingDescriber struct{}

func (blockingDescriber) DescribeImage(ctx context.Context, _ []byte) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, promptContext, question string) (string, error) {
	return question + "|" + promptContext, nil
}

func TestLimiter_TimeoutBoundsEachCall(t *testing.T) {
	l := NewLimiter(100, 1, 20*time.Millisecond)
	d := LimitDescriber(blockingDescriber{}, l)

	start := time.Now()
	_, err := d.DescribeImage(context.Background(), []byte{1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimiter_CancelledContext(t *testing.T) {
	l := NewLimiter(0.001, 1, time.Second)
	g := LimitGenerator(echoGenerator{}, l)

	// The first call consumes the only token.
	_, err := g.Generate(context.Background(), "ctx", "q")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, "ctx", "q")
	assert.Error(t, err)
}

func TestLimitGenerator_PassesThrough(t *testing.T) {
	g := LimitGenerator(echoGenerator{}, NewLimiter(100, 10, time.Second))
	out, err := g.Generate(context.Background(), "context", "question")
	require.NoError(t, err)
	assert.Equal(t, "question|context", out)
}

func TestQAPrompt(t *testing.T) {
	out, err := QAPrompt("Paris is the capital of France.", "What is the capital of France?")
	require.NoError(t, err)
	assert.Contains(t, out, "Paris is the capital of France.")
	assert.Contains(t, out, "Question: What is the capital of France?")
	assert.Contains(t, out, "Helpful Answer:")
}

func TestImageMIME(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

	assert.Equal(t, "image/png", ImageMIME(png))
	assert.Equal(t, "image/jpeg", ImageMIME(jpeg))
	assert.Equal(t, "image/png", ImageMIME([]byte("plain text")))
}
