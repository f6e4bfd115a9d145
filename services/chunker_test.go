package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/docrag/models"
)

func reconstruct(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		sb.WriteString(string([]rune(c)[overlap:]))
	}
	return sb.String()
}

func TestNewChunkerRejectsBadWindows(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap)
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestSplitRepeatedSentences(t *testing.T) {
	c, err := NewChunker(500, 50)
	require.NoError(t, err)

	text := strings.Repeat("Hello world. ", 100)
	chunks := c.SplitText(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, 494, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 492, utf8.RuneCountInString(chunks[1]))
	assert.Equal(t, 414, utf8.RuneCountInString(chunks[2]))
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		assert.Equal(t, string(prev[len(prev)-50:]), string([]rune(chunks[i])[:50]))
	}
	assert.Equal(t, text, reconstruct(chunks, 50))
}

func TestSplitReconstructs(t *testing.T) {
	inputs := map[string]string{
		"paragraphs": strings.Repeat("First paragraph line.\nSecond line of it.\n\n", 40),
		"no separators": strings.Repeat("x", 1234),
		"japanese": strings.Repeat("これはテストの文です。日本語の文章を分割します。", 30),
		"mixed": strings.Repeat("Word ", 97) + "\n" + strings.Repeat("Tail! ", 80),
		"short": "tiny",
	}
	for name, text := range inputs {
		t.Run(name, func(t *testing.T) {
			c, err := NewChunker(120, 20)
			require.NoError(t, err)
			chunks := c.SplitText(text)
			require.NotEmpty(t, chunks)
			for _, ch := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(ch), 120)
			}
			assert.Equal(t, text, reconstruct(chunks, 20))
		})
	}
}

func TestSplitPrefersParagraphs(t *testing.T) {
	c, err := NewChunker(50, 5)
	require.NoError(t, err)

	text := strings.Repeat("a", 30) + "\n\n" + strings.Repeat("b b. ", 10)
	chunks := c.SplitText(text)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0], "\n\n"))
}

func TestSplitIgnoresLowerHalfSeparators(t *testing.T) {
	c, err := NewChunker(40, 4)
	require.NoError(t, err)

	text := "ab\n\n" + strings.Repeat("c", 60)
	chunks := c.SplitText(text)
	assert.Equal(t, 40, utf8.RuneCountInString(chunks[0]))
}

func TestSplitCopiesMetadata(t *testing.T) {
	c, err := NewChunker(20, 5)
	require.NoError(t, err)

	docs := []models.Document{
		{Content: strings.Repeat("one two three ", 5), Metadata: models.Metadata{models.MetaSource: "a.txt"}},
		{Content: "short doc", Metadata: models.Metadata{models.MetaSource: "b.txt"}},
	}
	chunks, err := c.Split(docs)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	last := chunks[len(chunks)-1]
	assert.Equal(t, "b.txt", last.Source())
	assert.Equal(t, 0, last.Index)
	assert.Equal(t, 1, chunks[1].Index)

	chunks[0].Metadata["source"] = "mutated"
	assert.Equal(t, "a.txt", docs[0].Metadata.Source())
	assert.Equal(t, "a.txt", chunks[1].Source())
}

func TestSplitEmpty(t *testing.T) {
	c, err := NewChunker(10, 2)
	require.NoError(t, err)
	assert.Empty(t, c.SplitText(""))
}
