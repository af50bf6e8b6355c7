package domain

import "time"

type AttemptOutcome string

const (
	AttemptSucceeded AttemptOutcome = "succeeded"
	AttemptFailed    AttemptOutcome = "failed"
)

// AttemptRecord is one generation call, successful or not, published to the
// metering sink for cost and latency accounting. Recording is fire and
// forget; a lost record never fails the user-facing request.
type AttemptRecord struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	Outcome      AttemptOutcome `json:"outcome"`
	Error        string         `json:"error,omitempty"`
	LatencyMS    int64          `json:"latency_ms"`
	Cost         float64        `json:"cost"`
	PromptTokens int            `json:"prompt_tokens"`
	OutputTokens int            `json:"output_tokens"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Generation is a provider's raw output for one call. Token counts come from
// the provider's usage accounting when available and stay zero otherwise.
type Generation struct {
	Text         string `json:"text"`
	PromptTokens int    `json:"prompt_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// GenerationResult is the routed outcome: which provider answered and what
// the call actually cost.
type GenerationResult struct {
	Text         string  `json:"text"`
	ProviderUsed string  `json:"provider_used"`
	Model        string  `json:"model"`
	Cost         float64 `json:"cost"`
	PromptTokens int     `json:"prompt_tokens"`
	OutputTokens int     `json:"output_tokens"`
}
