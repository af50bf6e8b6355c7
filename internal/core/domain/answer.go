package domain

import (
	"fmt"
	"strings"
)

// AnswerRequest is the single inbound operation of the core. CostCeiling is
// the caller's spend limit in account currency for this one request; zero
// means no ceiling.
type AnswerRequest struct {
	Query          string        `json:"query"`
	ConversationID string        `json:"conversation_id"`
	TenantID       string        `json:"tenant_id"`
	Budget         ContextBudget `json:"budget"`
	Route          ProviderRoute `json:"route"`
	CostCeiling    float64       `json:"cost_ceiling,omitempty"`
}

func (r AnswerRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: query must not be empty", ErrInvalidInput)
	}
	if r.TenantID == "" {
		return fmt.Errorf("%w: tenant id must not be empty", ErrInvalidInput)
	}
	if err := r.Budget.Validate(); err != nil {
		return err
	}
	if len(r.Route.Entries) == 0 {
		return fmt.Errorf("%w: provider route must not be empty", ErrInvalidInput)
	}
	if r.CostCeiling < 0 {
		return fmt.Errorf("%w: cost ceiling must not be negative", ErrInvalidInput)
	}
	return nil
}

// AnswerResult is what the caller receives for a successful request.
// Degraded marks answers produced on a reduced-quality path, such as
// lexical-only retrieval or the pre-rerank ordering. ContextTruncated marks
// answers whose prompt lost text to the token budget, for quality auditing.
type AnswerResult struct {
	Text             string     `json:"text"`
	Citations        []Citation `json:"citations"`
	ProviderUsed     string     `json:"provider_used"`
	Cost             float64    `json:"cost"`
	Degraded         bool       `json:"degraded"`
	ContextTruncated bool       `json:"context_truncated,omitempty"`
}
