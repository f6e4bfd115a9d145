// Package providertest holds deterministic capability fakes for tests.
package providertest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// Dim is the vector size produced by HashEmbedder.
const Dim = 64

// HashEmbedder is a bag-of-words embedder: each lower-cased word is hashed
// into one of Dim buckets and the result is L2-normalised. Identical texts
// always get identical vectors.
type HashEmbedder struct {
	mu    sync.Mutex
	Calls int
	Texts int
	Err   error
}

// Embed implements providers.Embedder.
func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.Calls++
	e.Texts += len(texts)
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

// Vector returns the HashEmbedder vector for text.
func Vector(text string) []float32 {
	v := make([]float32, Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%Dim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// ErrOCR is returned by Describer for images listed in Fail.
var ErrOCR = errors.New("vision model rejected image")

// Describer returns "text of <image bytes>" unless the image is listed in
// Fail, or Block is set, in which case it waits for the context to end.
type Describer struct {
	mu    sync.Mutex
	Fail  map[string]bool
	Block map[string]bool
	Calls int
}

// DescribeImage implements providers.ImageDescriber.
func (d *Describer) DescribeImage(ctx context.Context, image []byte) (string, error) {
	d.mu.Lock()
	d.Calls++
	d.mu.Unlock()

	key := string(image)
	if d.Block[key] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if d.Fail[key] {
		return "", ErrOCR
	}
	return "text of " + key, nil
}

// Generator records the last prompt and answers with Answer, or fails with Err.
type Generator struct {
	mu           sync.Mutex
	Answer       string
	Err          error
	LastContext  string
	LastQuestion string
}

// Generate implements providers.Generator.
func (g *Generator) Generate(_ context.Context, promptContext, question string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.LastContext = promptContext
	g.LastQuestion = question
	if g.Err != nil {
		return "", g.Err
	}
	return g.Answer, nil
}
