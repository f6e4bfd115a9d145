// Package ollama talks to a local Ollama server over its HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/itish2003/docrag/providers"
)

// DefaultBaseURL is where a stock Ollama install listens.
const DefaultBaseURL = "http://localhost:11434"

var (
	_ providers.Embedder       = (*Client)(nil)
	_ providers.ImageDescriber = (*Client)(nil)
	_ providers.Generator      = (*Client)(nil)
)

// embedRequest is the body of POST /api/embeddings.
type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embedResponse carries a single embedding.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	System string   `json:"system,omitempty"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Config selects the server and models.
type Config struct {
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	VisionModel    string
	VisionPrompt   string
}

// Client is an Ollama HTTP client.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// New returns a client using httpClient, or http.DefaultClient when nil.
func New(httpClient *http.Client, cfg Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{httpClient: httpClient, cfg: cfg}
}

// Embed issues one embeddings call per text; the API has no batch form.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, t := range texts {
		var resp embedResponse
		if err := c.post(ctx, "/api/embeddings", embedRequest{Model: c.cfg.EmbeddingModel, Prompt: t}, &resp); err != nil {
			return nil, fmt.Errorf("could not embed text %d: %w", i, err)
		}
		if len(resp.Embedding) == 0 {
			return nil, fmt.Errorf("ollama returned an empty embedding for text %d", i)
		}
		out = append(out, resp.Embedding)
	}
	return out, nil
}

// DescribeImage runs the vision prompt on a multimodal model.
func (c *Client) DescribeImage(ctx context.Context, image []byte) (string, error) {
	var resp generateResponse
	err := c.post(ctx, "/api/generate", generateRequest{
		Model:  c.cfg.VisionModel,
		Prompt: c.cfg.VisionPrompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("ollama vision call failed: %w", err)
	}
	return resp.Response, nil
}

// Generate answers question from promptContext with the retrieval QA prompt.
func (c *Client) Generate(ctx context.Context, promptContext, question string) (string, error) {
	prompt, err := providers.QAPrompt(promptContext, question)
	if err != nil {
		return "", err
	}
	var resp generateResponse
	err = c.post(ctx, "/api/generate", generateRequest{
		Model:  c.cfg.ChatModel,
		Prompt: prompt,
		System: providers.SystemPrompt,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("ollama generate call failed: %w", err)
	}
	return resp.Response, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create ollama http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call ollama api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama api returned non-200 status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return nil
}
