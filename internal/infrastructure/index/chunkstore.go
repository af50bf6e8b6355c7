// Package index composes the chunk index's two search sides into the single
// store the retriever queries: dense search on the vector index, lexical
// search on either postgres full text or the vector index's sparse vectors,
// and chunk loads from postgres.
package index

import (
	"context"
	"fmt"

	"github.com/ragline/ragline/internal/core/domain"
)

type VectorSearcher interface {
	Search(ctx context.Context, tenantID string, vector []float32, k int) ([]domain.ChunkMatch, error)
}

type LexicalSearcher interface {
	LexicalSearch(ctx context.Context, tenantID, text string, k int) ([]domain.ChunkMatch, error)
}

type ChunkLoader interface {
	GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error)
}

type Store struct {
	vector  VectorSearcher
	lexical LexicalSearcher
	chunks  ChunkLoader
}

func NewStore(vector VectorSearcher, lexical LexicalSearcher, chunks ChunkLoader) (*Store, error) {
	if vector == nil || lexical == nil || chunks == nil {
		return nil, fmt.Errorf("index store requires vector, lexical and chunk backends")
	}
	return &Store{
		vector:  vector,
		lexical: lexical,
		chunks:  chunks,
	}, nil
}

func (s *Store) VectorSearch(ctx context.Context, tenantID string, vector []float32, k int) ([]domain.ChunkMatch, error) {
	return s.vector.Search(ctx, tenantID, vector, k)
}

func (s *Store) LexicalSearch(ctx context.Context, tenantID, text string, k int) ([]domain.ChunkMatch, error) {
	return s.lexical.LexicalSearch(ctx, tenantID, text, k)
}

func (s *Store) GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	return s.chunks.GetChunk(ctx, chunkID)
}

type SparseSearcher interface {
	SparseSearch(ctx context.Context, tenantID, text string, k int) ([]domain.ChunkMatch, error)
}

// SparseLexical runs lexical search over the vector index's sparse vectors
// instead of postgres full text.
type SparseLexical struct {
	searcher SparseSearcher
}

func NewSparseLexical(searcher SparseSearcher) *SparseLexical {
	return &SparseLexical{searcher: searcher}
}

func (a *SparseLexical) LexicalSearch(ctx context.Context, tenantID, text string, k int) ([]domain.ChunkMatch, error) {
	return a.searcher.SparseSearch(ctx, tenantID, text, k)
}
