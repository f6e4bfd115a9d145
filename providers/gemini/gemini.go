// Package gemini implements the model capabilities on Google Gemini.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/itish2003/docrag/providers"
)

var (
	_ providers.Embedder       = (*Client)(nil)
	_ providers.ImageDescriber = (*Client)(nil)
	_ providers.Generator      = (*Client)(nil)
)

// Config selects the models used for each capability.
type Config struct {
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	VisionModel    string
	VisionPrompt   string
}

// Client wraps a genai client.
type Client struct {
	client *genai.Client
	cfg    Config
}

// New connects to the Gemini API.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: could not create client: %w", err)
	}
	return &Client{client: client, cfg: cfg}, nil
}

// Embed embeds all texts in a single request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbeddingModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed call failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

// DescribeImage sends the image inline with the vision prompt.
func (c *Client) DescribeImage(ctx context.Context, image []byte) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(c.cfg.VisionPrompt),
		genai.NewPartFromBytes(image, providers.ImageMIME(image)),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.VisionModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini vision call failed: %w", err)
	}
	return responseText(resp)
}

// Generate answers question from promptContext with the retrieval QA prompt.
func (c *Client) Generate(ctx context.Context, promptContext, question string) (string, error) {
	prompt, err := providers.QAPrompt(promptContext, question)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.ChatModel, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(),
	})
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	return responseText(resp)
}

func systemInstruction() *genai.Content {
	contents := genai.Text(providers.SystemPrompt)
	if len(contents) == 0 {
		return nil
	}
	return contents[0]
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return sb.String(), nil
}
