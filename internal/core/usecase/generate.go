package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/core/domain"
	"github.com/ragline/ragline/internal/core/ports"
)

// RouterLimits bounds provider calls and the per-provider retry policy.
type RouterLimits struct {
	CallTimeout         time.Duration
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
}

// GenerationRequest carries one routed generation call.
type GenerationRequest struct {
	Prompt       string
	PromptTokens int
	AnswerTokens int
	TenantID     string
	Route        domain.ProviderRoute
	CostCeiling  float64
}

// GenerationRouter walks the provider route in priority order. Transient
// failures retry the same provider with backoff; anything else falls through
// to the next entry, and an entry left behind is never revisited. The spend
// ceiling is checked against the estimate before any provider is called.
// Every provider call is reported to the metering sink.
type GenerationRouter struct {
	providers map[string]ports.GenerationProvider
	meter     ports.MeterSink
	limits    RouterLimits
}

func NewGenerationRouter(providers []ports.GenerationProvider, meter ports.MeterSink, limits RouterLimits) *GenerationRouter {
	if limits.CallTimeout <= 0 {
		limits.CallTimeout = 30 * time.Second
	}
	if limits.RetryMaxAttempts <= 0 {
		limits.RetryMaxAttempts = 3
	}
	if limits.RetryInitialBackoff <= 0 {
		limits.RetryInitialBackoff = 100 * time.Millisecond
	}
	if limits.RetryMaxBackoff <= 0 {
		limits.RetryMaxBackoff = 400 * time.Millisecond
	}
	if limits.RetryMultiplier <= 1 {
		limits.RetryMultiplier = 2.0
	}

	byName := make(map[string]ports.GenerationProvider, len(providers))
	for _, provider := range providers {
		if provider != nil {
			byName[provider.Name()] = provider
		}
	}
	return &GenerationRouter{
		providers: byName,
		meter:     meter,
		limits:    limits,
	}
}

func (r *GenerationRouter) Generate(ctx context.Context, req GenerationRequest) (*domain.GenerationResult, error) {
	if len(req.Route.Entries) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "route generation", fmt.Errorf("provider route is empty"))
	}

	var lastErr error
	for _, entry := range req.Route.Entries {
		provider, ok := r.providers[entry.Provider]
		if !ok {
			lastErr = fmt.Errorf("no provider registered for %q", entry.Provider)
			continue
		}

		estimate := provider.EstimateCost(req.PromptTokens, entry, req.AnswerTokens)
		if req.CostCeiling > 0 && estimate > req.CostCeiling {
			return nil, domain.WrapError(domain.ErrBudgetExceeded, "route generation",
				fmt.Errorf("estimated cost %.6f exceeds ceiling %.6f for provider %s", estimate, req.CostCeiling, entry.Provider))
		}

		result, err := r.callWithRetry(ctx, provider, entry, req)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("route generation: %w", ctx.Err())
		}
		lastErr = err
	}
	return nil, domain.WrapError(domain.ErrGenerationUnavailable, "route generation", lastErr)
}

// callWithRetry drives the attempts against one route entry. It returns the
// first success or the final error once the entry is given up on.
func (r *GenerationRouter) callWithRetry(ctx context.Context, provider ports.GenerationProvider, entry domain.RouteEntry, req GenerationRequest) (*domain.GenerationResult, error) {
	maxTokens := entry.AnswerAllowance(req.AnswerTokens)
	backoff := r.limits.RetryInitialBackoff

	var lastErr error
	for attempt := 1; attempt <= r.limits.RetryMaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.limits.CallTimeout)
		start := time.Now()
		generation, err := provider.Generate(callCtx, entry, req.Prompt, maxTokens)
		latency := time.Since(start)
		cancel()

		if err == nil && (generation == nil || generation.Text == "") {
			err = fmt.Errorf("provider %s returned an empty completion", entry.Provider)
		}
		if err == nil {
			result := r.resolveUsage(entry, req, generation)
			r.publishAttempt(ctx, entry, req.TenantID, domain.AttemptSucceeded, "", latency, result.Cost, result.PromptTokens, result.OutputTokens)
			return result, nil
		}

		r.publishAttempt(ctx, entry, req.TenantID, domain.AttemptFailed, err.Error(), latency, 0, req.PromptTokens, 0)
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !transientGenerationError(err) || attempt == r.limits.RetryMaxAttempts {
			break
		}
		if sleepErr := sleepBackoff(ctx, backoff); sleepErr != nil {
			return nil, sleepErr
		}
		backoff = nextBackoff(backoff, r.limits.RetryMultiplier, r.limits.RetryMaxBackoff)
	}
	return nil, lastErr
}

// resolveUsage prefers the provider's own token accounting and falls back to
// local estimates when it is absent.
func (r *GenerationRouter) resolveUsage(entry domain.RouteEntry, req GenerationRequest, generation *domain.Generation) *domain.GenerationResult {
	promptTokens := generation.PromptTokens
	if promptTokens <= 0 {
		promptTokens = req.PromptTokens
	}
	outputTokens := generation.OutputTokens
	if outputTokens <= 0 {
		outputTokens = domain.EstimateTokens(generation.Text)
	}
	return &domain.GenerationResult{
		Text:         generation.Text,
		ProviderUsed: entry.Provider,
		Model:        entry.Model,
		Cost:         float64(promptTokens+outputTokens) * entry.CostPerToken,
		PromptTokens: promptTokens,
		OutputTokens: outputTokens,
	}
}

// publishAttempt records one provider call with the metering sink. Delivery
// failures are dropped: accounting must never fail the answer.
func (r *GenerationRouter) publishAttempt(ctx context.Context, entry domain.RouteEntry, tenantID string, outcome domain.AttemptOutcome, errText string, latency time.Duration, cost float64, promptTokens, outputTokens int) {
	if r.meter == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	_ = r.meter.Publish(publishCtx, domain.AttemptRecord{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Provider:     entry.Provider,
		Model:        entry.Model,
		Outcome:      outcome,
		Error:        errText,
		LatencyMS:    latency.Milliseconds(),
		Cost:         cost,
		PromptTokens: promptTokens,
		OutputTokens: outputTokens,
		CreatedAt:    time.Now().UTC(),
	})
}

func transientGenerationError(err error) bool {
	return domain.IsKind(err, domain.ErrTemporary) || errors.Is(err, context.DeadlineExceeded)
}

func sleepBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > max {
		return max
	}
	return next
}
