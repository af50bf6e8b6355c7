package domain

import "time"

// Fusion weights for combining retrieval signals into a single rank score.
const (
	WeightVector    = 0.7
	WeightLexical   = 0.2
	WeightFreshness = 0.05
	WeightTrust     = 0.05

	freshnessFloor = 0.1
)

// Freshness scores how recent a chunk is relative to its TTL. Chunks without
// a TTL are always fully fresh. Past the TTL the chunk is expired and must be
// dropped from results, which the second return value signals. Inside the TTL
// the score decays linearly from 1.0 down to a floor of 0.1.
func Freshness(createdAt time.Time, ttl time.Duration, now time.Time) (float64, bool) {
	if ttl <= 0 {
		return 1.0, false
	}
	elapsed := now.Sub(createdAt)
	if elapsed > ttl {
		return 0, true
	}
	score := 1.0 - (float64(elapsed)/float64(ttl))*0.9
	if score < freshnessFloor {
		score = freshnessFloor
	}
	return score, false
}

// FuseScores combines the four retrieval signals into the fused rank score.
// All inputs are expected in [0, 1].
func FuseScores(vectorScore, lexicalRank, freshness, trust float64) float64 {
	return vectorScore*WeightVector +
		lexicalRank*WeightLexical +
		freshness*WeightFreshness +
		trust*WeightTrust
}
