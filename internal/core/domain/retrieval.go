package domain

// RetrievalCandidate is a chunk surfaced for one query, carrying the signals
// that went into its fused score. Candidates live for a single query
// execution and are discarded with the response.
type RetrievalCandidate struct {
	Chunk       Chunk   `json:"chunk"`
	VectorScore float64 `json:"vector_score"`
	LexicalRank float64 `json:"lexical_rank"`
	Freshness   float64 `json:"freshness"`
	Trust       float64 `json:"trust"`
	Fused       float64 `json:"fused"`
}

// ScoredResult is a retrieval candidate after the second-pass relevance
// scoring, with its final rank position.
type ScoredResult struct {
	Candidate   RetrievalCandidate `json:"candidate"`
	RerankScore float64            `json:"rerank_score"`
	Rank        int                `json:"rank"`
}

// RetrievalSet is the outcome of hybrid retrieval. Degraded marks result
// sets produced by the lexical-only path after a vector-side failure.
type RetrievalSet struct {
	Candidates []RetrievalCandidate `json:"candidates"`
	Degraded   bool                 `json:"degraded"`
}
