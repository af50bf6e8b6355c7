package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ragline/ragline/internal/core/domain"
	"github.com/ragline/ragline/internal/core/ports"
)

// RetrieverLimits bounds one hybrid retrieval pass.
type RetrieverLimits struct {
	TopK            int
	SubQueryTimeout time.Duration
}

// HybridRetriever runs the vector and lexical sub-queries concurrently and
// fuses their hits into one deterministically ordered candidate list. Either
// sub-query may fail on its own; only both failing fails the call.
type HybridRetriever struct {
	store  ports.ChunkStore
	limits RetrieverLimits
	now    func() time.Time
}

func NewHybridRetriever(store ports.ChunkStore, limits RetrieverLimits) *HybridRetriever {
	if limits.TopK <= 0 {
		limits.TopK = 20
	}
	if limits.SubQueryTimeout <= 0 {
		limits.SubQueryTimeout = 5 * time.Second
	}
	return &HybridRetriever{
		store:  store,
		limits: limits,
		now:    time.Now,
	}
}

// Retrieve returns the top k fused candidates for the query, scoped to the
// tenant. A nil query vector means the vector side is unavailable and the
// call degrades to lexical-only. Expired chunks never come back.
func (r *HybridRetriever) Retrieve(ctx context.Context, queryVector []float32, queryText, tenantID string, k int) (*domain.RetrievalSet, error) {
	if tenantID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve candidates", fmt.Errorf("tenant id is required"))
	}
	if k <= 0 {
		k = r.limits.TopK
	}

	var (
		vectorMatches  []domain.ChunkMatch
		lexicalMatches []domain.ChunkMatch
		vectorErr      error
		lexicalErr     error
	)

	var wg sync.WaitGroup
	if len(queryVector) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subCtx, cancel := context.WithTimeout(ctx, r.limits.SubQueryTimeout)
			defer cancel()
			vectorMatches, vectorErr = r.store.VectorSearch(subCtx, tenantID, queryVector, k)
		}()
	} else {
		vectorErr = domain.ErrEmbeddingUnavailable
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		subCtx, cancel := context.WithTimeout(ctx, r.limits.SubQueryTimeout)
		defer cancel()
		lexicalMatches, lexicalErr = r.store.LexicalSearch(subCtx, tenantID, queryText, k)
	}()
	wg.Wait()

	if vectorErr != nil && lexicalErr != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "retrieve candidates", errors.Join(vectorErr, lexicalErr))
	}
	degraded := vectorErr != nil || lexicalErr != nil

	candidates, err := r.scoreMatches(ctx, tenantID, vectorMatches, lexicalMatches)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return &domain.RetrievalSet{Candidates: candidates, Degraded: degraded}, nil
}

type signalPair struct {
	vector  float64
	lexical float64
}

// scoreMatches merges the two hit lists by chunk id, loads each chunk once,
// enforces tenant isolation and the TTL hard filter, and computes the fused
// score.
func (r *HybridRetriever) scoreMatches(ctx context.Context, tenantID string, vectorMatches, lexicalMatches []domain.ChunkMatch) ([]domain.RetrievalCandidate, error) {
	signals := make(map[string]signalPair, len(vectorMatches)+len(lexicalMatches))
	order := make([]string, 0, len(vectorMatches)+len(lexicalMatches))

	for _, match := range vectorMatches {
		if _, seen := signals[match.ChunkID]; !seen {
			order = append(order, match.ChunkID)
		}
		pair := signals[match.ChunkID]
		pair.vector = clampUnit(match.Score)
		signals[match.ChunkID] = pair
	}
	for _, match := range lexicalMatches {
		if _, seen := signals[match.ChunkID]; !seen {
			order = append(order, match.ChunkID)
		}
		pair := signals[match.ChunkID]
		pair.lexical = clampUnit(match.Score)
		signals[match.ChunkID] = pair
	}

	now := r.now()
	candidates := make([]domain.RetrievalCandidate, 0, len(order))
	for _, chunkID := range order {
		chunk, err := r.store.GetChunk(ctx, chunkID)
		if err != nil {
			if domain.IsKind(err, domain.ErrChunkNotFound) {
				continue
			}
			return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "load chunk", err)
		}
		if chunk.TenantID != tenantID {
			return nil, domain.WrapError(domain.ErrTenantViolation, "load chunk",
				fmt.Errorf("chunk %s belongs to tenant %s, caller is %s", chunk.ID, chunk.TenantID, tenantID))
		}

		freshness, expired := domain.Freshness(chunk.CreatedAt, chunk.TTL, now)
		if expired {
			continue
		}

		pair := signals[chunkID]
		trust := clampUnit(chunk.Trust)
		candidates = append(candidates, domain.RetrievalCandidate{
			Chunk:       *chunk,
			VectorScore: pair.vector,
			LexicalRank: pair.lexical,
			Freshness:   freshness,
			Trust:       trust,
			Fused:       domain.FuseScores(pair.vector, pair.lexical, freshness, trust),
		})
	}
	return candidates, nil
}

// sortCandidates orders by fused score descending, breaking ties by trust
// descending and finally chunk id so equal inputs always produce the same
// order.
func sortCandidates(candidates []domain.RetrievalCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Fused != candidates[j].Fused {
			return candidates[i].Fused > candidates[j].Fused
		}
		if candidates[i].Trust != candidates[j].Trust {
			return candidates[i].Trust > candidates[j].Trust
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
