// Package openai implements the model capabilities on the OpenAI API (or any
// OpenAI-compatible endpoint).
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/itish2003/docrag/providers"
)

var (
	_ providers.Embedder       = (*Client)(nil)
	_ providers.ImageDescriber = (*Client)(nil)
	_ providers.Generator      = (*Client)(nil)
)

// Config selects the endpoint and models.
type Config struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	VisionModel    string
	VisionPrompt   string
	MaxTokens      int
}

// Client wraps a go-openai client.
type Client struct {
	client *openai.Client
	cfg    Config
}

// New creates a client. BaseURL is optional.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: OPENAI_API_KEY is not set")
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Client{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

// Embed embeds all texts in one batch request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// DescribeImage sends the image as a base64 data URI alongside the vision prompt.
func (c *Client) DescribeImage(ctx context.Context, image []byte) (string, error) {
	uri := fmt.Sprintf("data:%s;base64,%s", providers.ImageMIME(image), base64.StdEncoding.EncodeToString(image))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.cfg.VisionModel,
		MaxTokens: c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: c.cfg.VisionPrompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    uri,
						Detail: openai.ImageURLDetailAuto,
					}},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai vision call failed: %w", err)
	}
	return firstChoice(resp)
}

// Generate answers question from promptContext with the retrieval QA prompt.
func (c *Client) Generate(ctx context.Context, promptContext, question string) (string, error) {
	prompt, err := providers.QAPrompt(promptContext, question)
	if err != nil {
		return "", err
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: providers.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat call failed: %w", err)
	}
	return firstChoice(resp)
}

func firstChoice(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
