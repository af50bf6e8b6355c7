// Package openai adapts any OpenAI-compatible chat completions and
// embeddings API. The generation side runs a single attempt per call; the
// router above it owns retries and fallback.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ragline/ragline/internal/core/domain"
	"github.com/ragline/ragline/internal/infrastructure/llm"
	"github.com/ragline/ragline/internal/infrastructure/resilience"
)

type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	name      string
	transport *llm.Transport
	executor  *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	return &Client{
		name:      cfg.Name,
		transport: llm.NewTransport(cfg.Name, cfg.BaseURL, cfg.APIKey, cfg.Timeout),
		executor:  executor,
	}
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, llm.Classify)
}

func (c *Client) executeOnce(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.ExecuteOnce(ctx, operation, fn, llm.Classify)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Name() string {
	return g.client.name
}

func (g *Generator) EstimateCost(promptTokens int, entry domain.RouteEntry, answerTokens int) float64 {
	return entry.EstimateCost(promptTokens, answerTokens)
}

func (g *Generator) Generate(ctx context.Context, entry domain.RouteEntry, prompt string, maxTokens int) (*domain.Generation, error) {
	request := chatRequest{
		Model:    entry.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if maxTokens > 0 {
		request.MaxTokens = maxTokens
	}

	var response chatResponse
	err := g.client.executeOnce(ctx, g.client.name+"_generate", func(callCtx context.Context) error {
		return g.client.transport.PostJSON(callCtx, "/v1/chat/completions", request, &response, "chat_completion")
	})
	if err != nil {
		return nil, llm.WrapTemporary(g.client.name+" generate", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("%s chat completion returned no choices", g.client.name)
	}
	return &domain.Generation{
		Text:         strings.TrimSpace(response.Choices[0].Message.Content),
		PromptTokens: response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
	}, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, model, text string) ([]float32, error) {
	request := embedRequest{Model: model, Input: []string{text}}

	var response embedResponse
	err := e.client.execute(ctx, e.client.name+"_embed", func(callCtx context.Context) error {
		return e.client.transport.PostJSON(callCtx, "/v1/embeddings", request, &response, "embed")
	})
	if err != nil {
		return nil, llm.WrapTemporary(e.client.name+" embed", err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("%s embeddings returned no vectors", e.client.name)
	}
	return response.Data[0].Embedding, nil
}
