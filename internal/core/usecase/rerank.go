package usecase

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/ragline/ragline/internal/core/domain"
	"github.com/ragline/ragline/internal/core/ports"
)

// RerankLimits bounds the second-pass scoring call.
type RerankLimits struct {
	CandidateMultiple int
	Timeout           time.Duration
}

// Reranker refines the fused order of the top candidates with a second,
// costlier relevance signal. It only ever reorders and truncates its input:
// no candidate is introduced and none excluded by the freshness filter can
// come back. A nil scorer disables the pass; scorer failure falls back to
// the fused order and marks the result degraded.
type Reranker struct {
	scorer ports.RelevanceScorer
	limits RerankLimits
}

func NewReranker(scorer ports.RelevanceScorer, limits RerankLimits) *Reranker {
	if limits.CandidateMultiple <= 1 {
		limits.CandidateMultiple = 3
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 8 * time.Second
	}
	return &Reranker{scorer: scorer, limits: limits}
}

func (r *Reranker) Rerank(ctx context.Context, queryText string, candidates []domain.RetrievalCandidate, limit int) ([]domain.ScoredResult, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	if limit <= 0 {
		limit = 5
	}

	headN := limit * r.limits.CandidateMultiple
	if headN > len(candidates) {
		headN = len(candidates)
	}
	head := make([]domain.RetrievalCandidate, headN)
	copy(head, candidates[:headN])

	if r.scorer == nil {
		return fusedOrderResults(head, limit), false
	}

	scoreCtx, cancel := context.WithTimeout(ctx, r.limits.Timeout)
	defer cancel()

	passages := make([]string, len(head))
	for i, candidate := range head {
		passages[i] = candidate.Chunk.Text
	}
	scores, err := r.scorer.Score(scoreCtx, queryText, passages)
	if err != nil || len(scores) != len(head) {
		return fusedOrderResults(head, limit), true
	}

	results := make([]domain.ScoredResult, len(head))
	for i, candidate := range head {
		results[i] = domain.ScoredResult{Candidate: candidate, RerankScore: scores[i]}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RerankScore != results[j].RerankScore {
			return results[i].RerankScore > results[j].RerankScore
		}
		if results[i].Candidate.Fused != results[j].Candidate.Fused {
			return results[i].Candidate.Fused > results[j].Candidate.Fused
		}
		return results[i].Candidate.Chunk.ID < results[j].Candidate.Chunk.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, false
}

// fusedOrderResults keeps the incoming fused order, which is already sorted,
// and reuses the fused score as the rerank score.
func fusedOrderResults(head []domain.RetrievalCandidate, limit int) []domain.ScoredResult {
	if len(head) > limit {
		head = head[:limit]
	}
	results := make([]domain.ScoredResult, len(head))
	for i, candidate := range head {
		results[i] = domain.ScoredResult{
			Candidate:   candidate,
			RerankScore: candidate.Fused,
			Rank:        i + 1,
		}
	}
	return results
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
