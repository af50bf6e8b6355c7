package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ragline/ragline/internal/core/domain"
)

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api instances.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS conversation_turns (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	citations JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_turns_lookup
	ON conversation_turns(tenant_id, conversation_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// History returns the most recent turns of a conversation in chronological
// order, scoped to the tenant.
func (r *ConversationRepository) History(ctx context.Context, tenantID, conversationID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, conversation_id, role, text, citations, created_at
FROM conversation_turns
WHERE tenant_id = $1 AND conversation_id = $2
ORDER BY created_at DESC
LIMIT $3
`, tenantID, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConversationTurn, 0, limit)
	for rows.Next() {
		var turn domain.ConversationTurn
		var role string
		var citationsRaw []byte
		if err := rows.Scan(
			&turn.ID,
			&turn.TenantID,
			&turn.ConversationID,
			&role,
			&turn.Text,
			&citationsRaw,
			&turn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history turn: %w", err)
		}
		turn.Role = domain.Role(role)
		if len(citationsRaw) > 0 {
			if err := json.Unmarshal(citationsRaw, &turn.Citations); err != nil {
				return nil, fmt.Errorf("unmarshal citations: %w", err)
			}
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// AppendTurn persists one turn. History is append-only; nothing here updates
// or deletes existing rows.
func (r *ConversationRepository) AppendTurn(ctx context.Context, turn domain.ConversationTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	citations := turn.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO conversation_turns (id, tenant_id, conversation_id, role, text, citations, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, turn.ID, turn.TenantID, turn.ConversationID, string(turn.Role), turn.Text, citationsJSON, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}
