// Package ollama adapts a local Ollama instance as a generation and
// embedding backend. Token counts come straight from Ollama's eval counters.
package ollama

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
	Timeout time.Duration
}

type Client struct {
	name      string
	transport *llm.Transport
	executor  *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.Name == "" {
		cfg.Name = "ollama"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &Client{
		name:      cfg.Name,
		transport: llm.NewTransport(cfg.Name, cfg.BaseURL, "", cfg.Timeout),
		executor:  executor,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
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
	request := generateRequest{
		Model:  entry.Model,
		Prompt: prompt,
	}
	if maxTokens > 0 {
		request.Options = map[string]any{"num_predict": maxTokens}
	}

	var response generateResponse
	call := func(callCtx context.Context) error {
		return g.client.transport.PostJSON(callCtx, "/api/generate", request, &response, "generate")
	}
	var err error
	if g.client.executor != nil {
		err = g.client.executor.ExecuteOnce(ctx, g.client.name+"_generate", call, llm.Classify)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, llm.WrapTemporary(g.client.name+" generate", err)
	}
	return &domain.Generation{
		Text:         strings.TrimSpace(response.Response),
		PromptTokens: response.PromptEvalCount,
		OutputTokens: response.EvalCount,
	}, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
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
	call := func(callCtx context.Context) error {
		return e.client.transport.PostJSON(callCtx, "/api/embed", request, &response, "embed")
	}
	var err error
	if e.client.executor != nil {
		err = e.client.executor.Execute(ctx, e.client.name+"_embed", call, llm.Classify)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, llm.WrapTemporary(e.client.name+" embed", err)
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("%s embeddings returned no vectors", e.client.name)
	}
	return response.Embeddings[0], nil
}
