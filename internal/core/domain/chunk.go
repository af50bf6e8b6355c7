package domain

import "time"

// Chunk is an indexed unit of document text. It is owned by the ingestion
// side; everything here treats it as read-only.
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	TenantID   string        `json:"tenant_id"`
	Text       string        `json:"text"`
	Embedding  []float32     `json:"embedding,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	TTL        time.Duration `json:"ttl,omitempty"`
	Trust      float64       `json:"trust"`
}

// Expired reports whether the chunk's TTL has elapsed. A zero TTL means the
// chunk never expires.
func (c Chunk) Expired(now time.Time) bool {
	if c.TTL <= 0 {
		return false
	}
	return now.After(c.CreatedAt.Add(c.TTL))
}

// ChunkMatch is one hit from a vector or lexical search: a chunk id plus the
// store's score for it, normalized to [0, 1].
type ChunkMatch struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}
