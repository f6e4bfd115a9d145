package chroma

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/vectorstore"
)

func TestApplyMetadata(t *testing.T) {
	var e vectorstore.Entry
	applyMetadata(map[string]any{
		metaSeq:   float64(12),
		metaIndex: float64(3),
		"source":  "a.pdf",
		"page":    "2",
	}, &e)

	assert.Equal(t, int64(12), e.Seq)
	assert.Equal(t, 3, e.Chunk.Index)
	assert.Equal(t, models.Metadata{"source": "a.pdf", "page": "2"}, e.Chunk.Metadata)
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{float64(4), 4},
		{int64(5), 5},
		{"6", 6},
		{nil, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toInt64(tt.in))
	}
}
