package domain

import (
	"fmt"
	"sort"
)

// RouteEntry is one generation option: a provider/model pair with its cost
// and output ceiling. Lower Priority values are tried first.
type RouteEntry struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	CostPerToken float64 `json:"cost_per_token"`
	MaxTokens    int     `json:"max_tokens"`
	Priority     int     `json:"priority"`
}

// AnswerAllowance caps the requested output tokens at the entry's own limit.
func (e RouteEntry) AnswerAllowance(requested int) int {
	if e.MaxTokens > 0 && requested > e.MaxTokens {
		return e.MaxTokens
	}
	return requested
}

// EstimateCost projects the spend for a call through this entry before it is
// made: prompt tokens plus the full answer allowance, priced per token.
func (e RouteEntry) EstimateCost(promptTokens, answerTokens int) float64 {
	return float64(promptTokens+e.AnswerAllowance(answerTokens)) * e.CostPerToken
}

// ProviderRoute is the ordered list of generation options for a request.
// Entries are kept sorted by priority; the order is total, so two entries
// never share a priority.
type ProviderRoute struct {
	Entries []RouteEntry `json:"entries"`
}

func NewProviderRoute(entries []RouteEntry) (ProviderRoute, error) {
	if len(entries) == 0 {
		return ProviderRoute{}, fmt.Errorf("%w: provider route must not be empty", ErrInvalidInput)
	}
	sorted := make([]RouteEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	for i, entry := range sorted {
		if entry.Provider == "" || entry.Model == "" {
			return ProviderRoute{}, fmt.Errorf("%w: route entry %d missing provider or model", ErrInvalidInput, i)
		}
		if entry.CostPerToken < 0 {
			return ProviderRoute{}, fmt.Errorf("%w: route entry %d has negative cost per token", ErrInvalidInput, i)
		}
		if i > 0 && sorted[i-1].Priority == entry.Priority {
			return ProviderRoute{}, fmt.Errorf("%w: duplicate route priority %d", ErrInvalidInput, entry.Priority)
		}
	}
	return ProviderRoute{Entries: sorted}, nil
}
