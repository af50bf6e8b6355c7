package ports

import (
	"context"

	"github.com/ragline/ragline/internal/core/domain"
)

// ChunkStore is the read-only query surface of the external document index.
// Both searches are tenant-scoped at the store; a chunk that belongs to a
// different tenant must never come back.
type ChunkStore interface {
	VectorSearch(ctx context.Context, tenantID string, vector []float32, k int) ([]domain.ChunkMatch, error)
	LexicalSearch(ctx context.Context, tenantID, text string, k int) ([]domain.ChunkMatch, error)
	GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error)
}

// EmbeddingProvider turns text into a fixed-dimension vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// GenerationProvider is one model backend the router can call. EstimateCost
// must be callable without network I/O.
type GenerationProvider interface {
	Name() string
	EstimateCost(promptTokens int, entry domain.RouteEntry, answerTokens int) float64
	Generate(ctx context.Context, entry domain.RouteEntry, prompt string, maxTokens int) (*domain.Generation, error)
}

// RelevanceScorer is the second-pass signal used for re-ranking. Scores are
// returned in input order, one per passage.
type RelevanceScorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// ConversationStore reads and appends conversation history. Appends only;
// history is never rewritten from here.
type ConversationStore interface {
	History(ctx context.Context, tenantID, conversationID string, limit int) ([]domain.ConversationTurn, error)
	AppendTurn(ctx context.Context, turn domain.ConversationTurn) error
}

// MeterSink receives generation attempt records. Delivery is best effort and
// must never fail the request that produced the record.
type MeterSink interface {
	Publish(ctx context.Context, record domain.AttemptRecord) error
}

// EmbeddingCache stores vectors keyed by normalized text and model. A miss
// is (nil, false, nil); writes are idempotent upserts.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Put(ctx context.Context, key string, vector []float32) error
}
