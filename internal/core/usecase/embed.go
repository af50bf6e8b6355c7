package usecase

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/ragline/ragline/internal/core/domain"
	"github.com/ragline/ragline/internal/core/ports"
)

// EmbeddingLimits bounds a single embedding call.
type EmbeddingLimits struct {
	Model          string
	MaxInputTokens int
	Timeout        time.Duration
}

// EmbeddingClient turns query text into a vector, caching results keyed by
// the normalized text and model so repeated queries never hit the provider
// twice.
type EmbeddingClient struct {
	provider ports.EmbeddingProvider
	cache    ports.EmbeddingCache
	limits   EmbeddingLimits
}

func NewEmbeddingClient(provider ports.EmbeddingProvider, cache ports.EmbeddingCache, limits EmbeddingLimits) *EmbeddingClient {
	if limits.Model == "" {
		limits.Model = "nomic-embed-text"
	}
	if limits.MaxInputTokens <= 0 {
		limits.MaxInputTokens = 512
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 10 * time.Second
	}
	return &EmbeddingClient{
		provider: provider,
		cache:    cache,
		limits:   limits,
	}
}

// Embed returns the vector for text. Input is normalized and bounded to the
// input token ceiling, cut on word boundaries. Cache failures degrade to a
// miss, never to a request failure.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	normalized := domain.NormalizeText(text)
	if normalized == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed text", fmt.Errorf("text is empty"))
	}
	bounded, _ := domain.TruncateTokens(normalized, c.limits.MaxInputTokens)
	key := c.cacheKey(bounded)

	if c.cache != nil {
		if vector, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			return vector, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.limits.Timeout)
	defer cancel()

	vector, err := c.provider.Embed(callCtx, c.limits.Model, bounded)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed text", err)
	}
	if len(vector) == 0 {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed text", fmt.Errorf("provider returned empty vector"))
	}

	if c.cache != nil {
		_ = c.cache.Put(ctx, key, vector)
	}
	return vector, nil
}

func (c *EmbeddingClient) cacheKey(normalized string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(c.limits.Model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(normalized))
	return "emb:" + c.limits.Model + ":" + strconv.FormatUint(h.Sum64(), 16)
}
