package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ragline/ragline/internal/core/domain"
)

type chunkStoreFake struct {
	vectorMatches  []domain.ChunkMatch
	lexicalMatches []domain.ChunkMatch
	vectorErr      error
	lexicalErr     error
	chunks         map[string]*domain.Chunk
	getErr         error
	vectorCalls    int
	lexicalCalls   int
}

func (f *chunkStoreFake) VectorSearch(_ context.Context, _ string, _ []float32, _ int) ([]domain.ChunkMatch, error) {
	f.vectorCalls++
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vectorMatches, nil
}

func (f *chunkStoreFake) LexicalSearch(_ context.Context, _ string, _ string, _ int) ([]domain.ChunkMatch, error) {
	f.lexicalCalls++
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return f.lexicalMatches, nil
}

func (f *chunkStoreFake) GetChunk(_ context.Context, chunkID string) (*domain.Chunk, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	chunk, ok := f.chunks[chunkID]
	if !ok {
		return nil, domain.WrapError(domain.ErrChunkNotFound, "get chunk", errors.New(chunkID))
	}
	return chunk, nil
}

var retrieveNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func storedChunk(id, tenant string, trust float64) *domain.Chunk {
	return &domain.Chunk{
		ID:         id,
		DocumentID: "doc-" + id,
		TenantID:   tenant,
		Text:       "indexed text for " + id,
		CreatedAt:  retrieveNow.Add(-time.Hour),
		Trust:      trust,
	}
}

func fixedNowRetriever(store *chunkStoreFake, limits RetrieverLimits) *HybridRetriever {
	retriever := NewHybridRetriever(store, limits)
	retriever.now = func() time.Time { return retrieveNow }
	return retriever
}

func TestHybridRetrieverFusesUnionAndScores(t *testing.T) {
	store := &chunkStoreFake{
		vectorMatches:  []domain.ChunkMatch{{ChunkID: "c1", Score: 0.8}, {ChunkID: "c2", Score: 0.5}},
		lexicalMatches: []domain.ChunkMatch{{ChunkID: "c2", Score: 1.0}, {ChunkID: "c3", Score: 0.5}},
		chunks: map[string]*domain.Chunk{
			"c1": storedChunk("c1", "tenant-1", 0.5),
			"c2": storedChunk("c2", "tenant-1", 0.9),
			"c3": storedChunk("c3", "tenant-1", 0.1),
		},
	}
	retriever := fixedNowRetriever(store, RetrieverLimits{})

	set, err := retriever.Retrieve(context.Background(), []float32{0.1}, "query", "tenant-1", 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if set.Degraded {
		t.Fatalf("expected non-degraded result when both sub-queries succeed")
	}
	if len(set.Candidates) != 3 {
		t.Fatalf("expected union of 3 candidates, got %d", len(set.Candidates))
	}

	if set.Candidates[0].Chunk.ID != "c2" || set.Candidates[1].Chunk.ID != "c1" || set.Candidates[2].Chunk.ID != "c3" {
		t.Fatalf("unexpected order: %s %s %s",
			set.Candidates[0].Chunk.ID, set.Candidates[1].Chunk.ID, set.Candidates[2].Chunk.ID)
	}

	merged := set.Candidates[0]
	if merged.VectorScore != 0.5 || merged.LexicalRank != 1.0 {
		t.Fatalf("expected merged signals for c2, got vector=%v lexical=%v", merged.VectorScore, merged.LexicalRank)
	}
	wantFused := 0.7*0.5 + 0.2*1.0 + 0.05*1.0 + 0.05*0.9
	if math.Abs(merged.Fused-wantFused) > 1e-9 {
		t.Fatalf("fused score mismatch: got %v want %v", merged.Fused, wantFused)
	}
}

func TestHybridRetrieverExcludesExpiredChunks(t *testing.T) {
	expired := storedChunk("c1", "tenant-1", 0.9)
	expired.CreatedAt = retrieveNow.Add(-48 * time.Hour)
	expired.TTL = 24 * time.Hour

	store := &chunkStoreFake{
		lexicalMatches: []domain.ChunkMatch{{ChunkID: "c1", Score: 1.0}, {ChunkID: "c2", Score: 0.5}},
		chunks: map[string]*domain.Chunk{
			"c1": expired,
			"c2": storedChunk("c2", "tenant-1", 0.5),
		},
	}
	retriever := fixedNowRetriever(store, RetrieverLimits{})

	set, err := retriever.Retrieve(context.Background(), nil, "query", "tenant-1", 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for _, candidate := range set.Candidates {
		if candidate.Chunk.ID == "c1" {
			t.Fatalf("expired chunk must be excluded from results")
		}
	}
	if len(set.Candidates) != 1 {
		t.Fatalf("expected 1 candidate after expiry filter, got %d", len(set.Candidates))
	}
}

func TestHybridRetrieverTenantViolationAborts(t *testing.T) {
	store := &chunkStoreFake{
		lexicalMatches: []domain.ChunkMatch{{ChunkID: "c1", Score: 1.0}},
		chunks:         map[string]*domain.Chunk{"c1": storedChunk("c1", "tenant-other", 0.5)},
	}
	retriever := fixedNowRetriever(store, RetrieverLimits{})

	_, err := retriever.Retrieve(context.Background(), nil, "query", "tenant-1", 10)
	if !domain.IsKind(err, domain.ErrTenantViolation) {
		t.Fatalf("expected tenant violation, got %v", err)
	}
}

func TestHybridRetrieverLexicalOnlyWithoutVector(t *testing.T) {
	store := &chunkStoreFake{
		lexicalMatches: []domain.ChunkMatch{{ChunkID: "c1", Score: 1.0}},
		chunks:         map[string]*domain.Chunk{"c1": storedChunk("c1", "tenant-1", 0.5)},
	}
	retriever := fixedNowRetriever(store, RetrieverLimits{})

	set, err := retriever.Retrieve(context.Background(), nil, "query", "tenant-1", 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !set.Degraded {
		t.Fatalf("expected degraded result without a query vector")
	}
	if store.vectorCalls != 0 {
		t.Fatalf("vector search must not run without a vector, got %d calls", store.vectorCalls)
	}
	if set.Candidates[0].VectorScore != 0 {
		t.Fatalf("expected zero vector score on the lexical-only path")
	}
}

func TestHybridRetrieverDegradesOnVectorStoreError(t *testing.T) {
	store := &chunkStoreFake{
		vectorErr:      errors.New("vector store down"),
		lexicalMatches: []domain.ChunkMatch{{ChunkID: "c1", Score: 1.0}},
		chunks:         map[string]*domain.Chunk{"c1": storedChunk("c1", "tenant-1", 0.5)},
	}
	retriever := fixedNowRetriever(store, RetrieverLimits{})

	set, err := retriever.Retrieve(context.Background(), []float32{0.1}, "query", "tenant-1", 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !set.Degraded {
		t.Fatalf("expected degraded result after vector sub-query failure")
	}
	if len(set.Candidates) != 1 || set.Candidates[0].Chunk.ID != "c1" {
		t.Fatalf("expected lexical candidates to survive")
	}
}

func TestHybridRetrieverFailsWhenBothSidesFail(t *testing.T) {
	store := &chunkStoreFake{
		vectorErr:  errors.New("vector down"),
		lexicalErr: errors.New("lexical down"),
	}
	retriever := fixedNowRetriever(store, RetrieverLimits{})

	_, err := retriever.Retrieve(context.Background(), []float32{0.1}, "query", "tenant-1", 10)
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected retrieval unavailable, got %v", err)
	}
}

func TestHybridRetrieverSkipsVanishedChunks(t *testing.T) {
	store := &chunkStoreFake{
		lexicalMatches: []domain.ChunkMatch{{ChunkID: "gone", Score: 1.0}, {ChunkID: "c2", Score: 0.4}},
		chunks:         map[string]*domain.Chunk{"c2": storedChunk("c2", "tenant-1", 0.5)},
	}
	retriever := fixedNowRetriever(store, RetrieverLimits{})

	set, err := retriever.Retrieve(context.Background(), nil, "query", "tenant-1", 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(set.Candidates) != 1 || set.Candidates[0].Chunk.ID != "c2" {
		t.Fatalf("expected index entries without a chunk to be skipped")
	}
}

func TestHybridRetrieverTrimsToK(t *testing.T) {
	store := &chunkStoreFake{
		lexicalMatches: []domain.ChunkMatch{
			{ChunkID: "c1", Score: 1.0},
			{ChunkID: "c2", Score: 0.9},
			{ChunkID: "c3", Score: 0.8},
		},
		chunks: map[string]*domain.Chunk{
			"c1": storedChunk("c1", "tenant-1", 0.5),
			"c2": storedChunk("c2", "tenant-1", 0.5),
			"c3": storedChunk("c3", "tenant-1", 0.5),
		},
	}
	retriever := fixedNowRetriever(store, RetrieverLimits{})

	set, err := retriever.Retrieve(context.Background(), nil, "query", "tenant-1", 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(set.Candidates) != 2 {
		t.Fatalf("expected results trimmed to k=2, got %d", len(set.Candidates))
	}
}

func TestSortCandidatesTieBreaks(t *testing.T) {
	candidates := []domain.RetrievalCandidate{
		{Chunk: domain.Chunk{ID: "b"}, Fused: 0.5, Trust: 0.5},
		{Chunk: domain.Chunk{ID: "a"}, Fused: 0.5, Trust: 0.5},
		{Chunk: domain.Chunk{ID: "c"}, Fused: 0.5, Trust: 0.9},
		{Chunk: domain.Chunk{ID: "d"}, Fused: 0.8, Trust: 0.1},
	}
	sortCandidates(candidates)

	got := []string{candidates[0].Chunk.ID, candidates[1].Chunk.ID, candidates[2].Chunk.ID, candidates[3].Chunk.ID}
	want := []string{"d", "c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}
}
