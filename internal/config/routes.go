package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ragline/ragline/internal/core/domain"
)

type routeFile struct {
	Entries []routeFileEntry `yaml:"entries"`
}

type routeFileEntry struct {
	Provider     string  `yaml:"provider"`
	Model        string  `yaml:"model"`
	CostPerToken float64 `yaml:"cost_per_token"`
	MaxTokens    int     `yaml:"max_tokens"`
	Priority     int     `yaml:"priority"`
}

// LoadRoute reads the provider route table the API falls back to when a
// request carries no route of its own. An empty path yields a single-entry
// route pointing at the local Ollama backend.
func (c Config) LoadRoute() (domain.ProviderRoute, error) {
	if c.RouteFile == "" {
		return domain.NewProviderRoute([]domain.RouteEntry{
			{Provider: "ollama", Model: "llama3.1:8b", CostPerToken: 0, MaxTokens: 2048, Priority: 1},
		})
	}

	raw, err := os.ReadFile(c.RouteFile)
	if err != nil {
		return domain.ProviderRoute{}, fmt.Errorf("read route file: %w", err)
	}

	var file routeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.ProviderRoute{}, fmt.Errorf("parse route file: %w", err)
	}

	entries := make([]domain.RouteEntry, 0, len(file.Entries))
	for _, e := range file.Entries {
		entries = append(entries, domain.RouteEntry{
			Provider:     e.Provider,
			Model:        e.Model,
			CostPerToken: e.CostPerToken,
			MaxTokens:    e.MaxTokens,
			Priority:     e.Priority,
		})
	}

	route, err := domain.NewProviderRoute(entries)
	if err != nil {
		return domain.ProviderRoute{}, fmt.Errorf("route file %s: %w", c.RouteFile, err)
	}
	return route, nil
}

// DefaultBudget is the context budget applied to requests that do not carry
// their own.
func (c Config) DefaultBudget() domain.ContextBudget {
	return domain.ContextBudget{
		MaxContextTokens:    c.BudgetContextTokens,
		MaxHistoryTokens:    c.BudgetHistoryTokens,
		MaxPassageTokens:    c.BudgetPassageTokens,
		MaxAnswerTokens:     c.BudgetAnswerTokens,
		SystemReserveTokens: c.BudgetSystemReserveTokens,
	}
}
