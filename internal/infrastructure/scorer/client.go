// Package scorer adapts an HTTP cross-encoder service as the second-pass
// relevance signal. The service scores (query, passage) pairs jointly, which
// is what makes it worth a network call over the fused order.
package scorer

import (
	"context"
	"fmt"
	"time"

	"github.com/ragline/ragline/internal/infrastructure/llm"
	"github.com/ragline/ragline/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	model     string
	transport *llm.Transport
	executor  *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-reranker-v2-m3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		model:     cfg.Model,
		transport: llm.NewTransport("scorer", cfg.BaseURL, cfg.APIKey, cfg.Timeout),
		executor:  executor,
	}
}

type rerankRequest struct {
	Model string      `json:"model"`
	Pairs [][2]string `json:"pairs"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Score returns one relevance score per passage, in input order.
func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	pairs := make([][2]string, len(passages))
	for i, passage := range passages {
		pairs[i] = [2]string{query, passage}
	}
	request := rerankRequest{Model: c.model, Pairs: pairs}

	var response rerankResponse
	call := func(callCtx context.Context) error {
		return c.transport.PostJSON(callCtx, "/rerank", request, &response, "rerank")
	}
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "scorer_rerank", call, llm.Classify)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, llm.WrapTemporary("scorer rerank", err)
	}
	if len(response.Scores) != len(passages) {
		return nil, fmt.Errorf("scorer returned %d scores for %d passages", len(response.Scores), len(passages))
	}
	return response.Scores, nil
}
