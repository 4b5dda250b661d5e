// Package ai implements the content-generation collaborator over the
// OpenRouter chat completion API.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"storyforge/server/internal/config"
)

const (
	defaultModel          = "openai/gpt-4o-mini"
	defaultEmbeddingModel = "openai/text-embedding-3-small"

	// High temperature for narrative variety; numeric balance is
	// enforced by engine policy, not by the model.
	defaultTemperature = 1.1
	defaultMaxTokens   = 1200
)

// OpenRouterClient is a thin wrapper over the OpenAI-compatible
// OpenRouter endpoint. It satisfies interfaces.ContentGenerator.
type OpenRouterClient struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
}

func NewOpenRouterClient(cfg config.OpenRouterConfig) *OpenRouterClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	c := &OpenRouterClient{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    float32(cfg.Temperature),
		maxTokens:      cfg.MaxTokens,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = defaultEmbeddingModel
	}
	if c.temperature == 0 {
		c.temperature = defaultTemperature
	}
	if c.maxTokens == 0 {
		c.maxTokens = defaultMaxTokens
	}
	return c
}

// Generate requests a single JSON-object chat completion.
func (c *OpenRouterClient) Generate(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	return []byte(resp.Choices[0].Message.Content), nil
}

// Embed returns the embedding vector for one text.
func (c *OpenRouterClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

// IsRetryable reports whether an error is worth another attempt:
// rate limits, server-side failures, and transport timeouts. Auth and
// request errors are permanent.
func (c *OpenRouterClient) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "rate limit")
}
