package domain

// Citation binds a span of the generated answer to the source chunk that
// supports it. Offsets are byte positions into the answer text. A citation
// may only name a chunk that was part of the context for that turn.
type Citation struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	ChunkID    string  `json:"chunk_id"`
	Confidence float64 `json:"confidence"`
}
