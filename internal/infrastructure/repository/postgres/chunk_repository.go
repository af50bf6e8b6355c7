// Package postgres holds the relational adapters: the lexical side of the
// chunk index and the conversation store. The chunks table is written by the
// ingestion pipeline; this package only reads it.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ragline/ragline/internal/core/domain"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// LexicalSearch runs a full-text query over the tenant's chunks. Hits come
// back in relevance order with scores already rank-normalized to (0, 1] so
// they can go straight into fusion.
func (r *ChunkRepository) LexicalSearch(ctx context.Context, tenantID, text string, k int) ([]domain.ChunkMatch, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id
FROM chunks
WHERE tenant_id = $1
  AND to_tsvector('english', text) @@ plainto_tsquery('english', $2)
ORDER BY ts_rank(to_tsvector('english', text), plainto_tsquery('english', $2)) DESC, id ASC
LIMIT $3
`, tenantID, text, k)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChunkMatch, 0, k)
	for rows.Next() {
		var chunkID string
		if err := rows.Scan(&chunkID); err != nil {
			return nil, fmt.Errorf("scan lexical hit: %w", err)
		}
		out = append(out, domain.ChunkMatch{
			ChunkID: chunkID,
			Score:   1.0 / float64(1+len(out)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lexical hits: %w", err)
	}
	return out, nil
}

// GetChunk loads one chunk's metadata and text. The embedding itself lives
// in the vector index and is not fetched here.
func (r *ChunkRepository) GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, tenant_id, text, created_at, COALESCE(ttl_seconds, 0), trust
FROM chunks
WHERE id = $1
`, chunkID)

	var chunk domain.Chunk
	var ttlSeconds int64
	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.TenantID,
		&chunk.Text,
		&chunk.CreatedAt,
		&ttlSeconds,
		&chunk.Trust,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChunkNotFound, "get chunk", fmt.Errorf("id=%s", chunkID))
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	chunk.TTL = time.Duration(ttlSeconds) * time.Second
	return &chunk, nil
}
