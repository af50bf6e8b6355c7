package domain

import "fmt"

// ContextBudget caps every segment of the assembled prompt. The segment caps
// plus the system reserve must fit inside MaxContextTokens, which is the
// model's context window.
type ContextBudget struct {
	MaxContextTokens    int `json:"max_context_tokens"`
	MaxHistoryTokens    int `json:"max_history_tokens"`
	MaxPassageTokens    int `json:"max_passage_tokens"`
	MaxAnswerTokens     int `json:"max_answer_tokens"`
	SystemReserveTokens int `json:"system_reserve_tokens"`
}

func (b ContextBudget) Validate() error {
	if b.MaxContextTokens <= 0 {
		return fmt.Errorf("%w: max context tokens must be positive", ErrInvalidInput)
	}
	if b.MaxHistoryTokens < 0 || b.MaxPassageTokens < 0 || b.SystemReserveTokens < 0 {
		return fmt.Errorf("%w: token caps must not be negative", ErrInvalidInput)
	}
	if b.MaxAnswerTokens <= 0 {
		return fmt.Errorf("%w: max answer tokens must be positive", ErrInvalidInput)
	}
	allocated := b.SystemReserveTokens + b.MaxHistoryTokens + b.MaxPassageTokens
	if allocated > b.MaxContextTokens {
		return fmt.Errorf("%w: allocated segments (%d tokens) exceed context window (%d tokens)",
			ErrInvalidInput, allocated, b.MaxContextTokens)
	}
	return nil
}

// PromptContext is the assembled prompt for one generation call. Prompt is
// the exact rendered text; assembling the same inputs twice yields the same
// bytes. ChunkIDs lists the chunks whose text is present, in rank order.
// Truncated marks prompts where passage text had to be cut to fit.
type PromptContext struct {
	Prompt      string   `json:"prompt"`
	TokenCount  int      `json:"token_count"`
	ChunkIDs    []string `json:"chunk_ids"`
	Truncated   bool     `json:"truncated"`
	HistoryUsed int      `json:"history_used"`
}
