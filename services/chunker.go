package services

import (
	"fmt"

	"github.com/itish2003/docrag/models"
)

// separatorLevels are tried in order; the first level with a usable cut wins.
var separatorLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", "。"},
	{" "},
}

// Chunker splits documents into overlapping windows measured in runes.
type Chunker struct {
	size       int
	overlap    int
	separators [][][]rune
}

// NewChunker validates the window policy. overlap must be smaller than size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk size %d, overlap %d", models.ErrConfiguration, size, overlap)
	}
	levels := make([][][]rune, len(separatorLevels))
	for i, level := range separatorLevels {
		for _, sep := range level {
			levels[i] = append(levels[i], []rune(sep))
		}
	}
	return &Chunker{size: size, overlap: overlap, separators: levels}, nil
}

// Size returns the maximum chunk length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of runes adjacent chunks share.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every document in order. Each chunk carries a copy of its
// parent's metadata and its position within that parent.
func (c *Chunker) Split(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, doc := range docs {
		for i, text := range c.SplitText(doc.Content) {
			chunks = append(chunks, models.Chunk{
				Text:     text,
				Index:    i,
				Metadata: doc.Metadata.Clone(),
			})
		}
	}
	return chunks, nil
}

// SplitText returns the windows of text. Joining chunk 0 with every later
// chunk minus its first Overlap() runes gives back text exactly.
func (c *Chunker) SplitText(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var out []string
	start := 0
	for {
		if len(runes)-start <= c.size {
			out = append(out, string(runes[start:]))
			return out
		}
		end := c.cut(runes, start)
		out = append(out, string(runes[start:end]))
		start = end - c.overlap
	}
}

// cut picks the end of the window starting at start. Semantic cuts are only
// taken in the upper half of the window and must leave room for the overlap.
func (c *Chunker) cut(runes []rune, start int) int {
	hi := start + c.size
	lo := max(start+c.overlap+1, start+c.size/2)

	for _, level := range c.separators {
		best := -1
		for _, sep := range level {
			if end := lastCut(runes, sep, lo, hi); end > best {
				best = end
			}
		}
		if best >= 0 {
			return best
		}
	}
	return hi
}

// lastCut returns the largest position p in [lo, hi] such that sep ends at p,
// or -1.
func lastCut(runes, sep []rune, lo, hi int) int {
	for p := hi; p >= lo; p-- {
		i := p - len(sep)
		if i < 0 {
			break
		}
		if hasPrefixAt(runes, sep, i) {
			return p
		}
	}
	return -1
}

func hasPrefixAt(runes, sep []rune, i int) bool {
	if i+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}
