package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedOneCallPerText(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		prompts = append(prompts, req.Prompt)
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{float32(len(req.Prompt)), 1}})
	}))
	defer srv.Close()

	c := New(srv.Client(), Config{BaseURL: srv.URL + "/", EmbeddingModel: "nomic-embed-text"})
	vecs, err := c.Embed(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "bbb"}, prompts)
	assert.Equal(t, [][]float32{{1, 1}, {3, 1}}, vecs)
}

func TestEmbedNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.Client(), Config{BaseURL: srv.URL})
	_, err := c.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-200 status: 404")
}

func TestGenerateSendsSystemPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.NotEmpty(t, req.System)
		assert.Contains(t, req.Prompt, "the sky is green")
		assert.Contains(t, req.Prompt, "Question: what colour is the sky?")
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "green"})
	}))
	defer srv.Close()

	c := New(srv.Client(), Config{BaseURL: srv.URL, ChatModel: "llama3"})
	answer, err := c.Generate(context.Background(), "the sky is green", "what colour is the sky?")
	require.NoError(t, err)
	assert.Equal(t, "green", answer)
}

func TestDescribeImageSendsBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Images, 1)
		assert.Equal(t, "aGk=", req.Images[0])
		assert.Equal(t, "describe", req.Prompt)
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "a greeting"})
	}))
	defer srv.Close()

	c := New(srv.Client(), Config{BaseURL: srv.URL, VisionModel: "llava", VisionPrompt: "describe"})
	out, err := c.DescribeImage(context.Background(), []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "a greeting", out)
}
