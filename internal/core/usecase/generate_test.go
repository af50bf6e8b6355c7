package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ragline/ragline/internal/core/domain"
	"github.com/ragline/ragline/internal/core/ports"
)

type providerFake struct {
	name      string
	calls     int
	failures  int
	transient bool
	empty     bool
	text      string
	usage     *domain.Generation
	callLog   *[]string
}

func (p *providerFake) Name() string { return p.name }

func (p *providerFake) EstimateCost(promptTokens int, entry domain.RouteEntry, answerTokens int) float64 {
	return entry.EstimateCost(promptTokens, answerTokens)
}

func (p *providerFake) Generate(ctx context.Context, entry domain.RouteEntry, prompt string, maxTokens int) (*domain.Generation, error) {
	p.calls++
	if p.callLog != nil {
		*p.callLog = append(*p.callLog, p.name)
	}
	if p.calls <= p.failures {
		if p.transient {
			return nil, domain.WrapError(domain.ErrTemporary, "generate", errors.New("upstream overloaded"))
		}
		return nil, errors.New("model rejected the request")
	}
	if p.empty {
		return &domain.Generation{}, nil
	}
	if p.usage != nil {
		return p.usage, nil
	}
	return &domain.Generation{Text: p.text}, nil
}

type meterFake struct {
	records []domain.AttemptRecord
	err     error
}

func (m *meterFake) Publish(ctx context.Context, record domain.AttemptRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

func fastRouterLimits() RouterLimits {
	return RouterLimits{
		CallTimeout:         time.Second,
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
	}
}

func twoProviderRoute() domain.ProviderRoute {
	route, err := domain.NewProviderRoute([]domain.RouteEntry{
		{Provider: "primary", Model: "large", CostPerToken: 0.001, Priority: 1},
		{Provider: "fallback", Model: "small", CostPerToken: 0.0002, Priority: 2},
	})
	if err != nil {
		panic(fmt.Sprintf("route fixture: %v", err))
	}
	return route
}

func generationRequest(route domain.ProviderRoute) GenerationRequest {
	return GenerationRequest{
		Prompt:       "Question:\nwhat is the retention policy",
		PromptTokens: 10,
		AnswerTokens: 100,
		TenantID:     "tenant-1",
		Route:        route,
	}
}

func TestGenerationRouterFallsBackAndNeverRevisits(t *testing.T) {
	var callLog []string
	primary := &providerFake{name: "primary", failures: 5, callLog: &callLog}
	fallback := &providerFake{name: "fallback", text: "fallback answer", callLog: &callLog}
	router := NewGenerationRouter([]ports.GenerationProvider{primary, fallback}, &meterFake{}, fastRouterLimits())

	result, err := router.Generate(context.Background(), generationRequest(twoProviderRoute()))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.ProviderUsed != "fallback" {
		t.Fatalf("expected the fallback provider, got %s", result.ProviderUsed)
	}
	want := []string{"primary", "fallback"}
	if len(callLog) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, callLog)
	}
	for i := range want {
		if callLog[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, callLog)
		}
	}
}

func TestGenerationRouterRetriesTransientFailures(t *testing.T) {
	var callLog []string
	primary := &providerFake{name: "primary", failures: 1, transient: true, text: "primary answer", callLog: &callLog}
	fallback := &providerFake{name: "fallback", text: "fallback answer", callLog: &callLog}
	router := NewGenerationRouter([]ports.GenerationProvider{primary, fallback}, &meterFake{}, fastRouterLimits())

	result, err := router.Generate(context.Background(), generationRequest(twoProviderRoute()))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.ProviderUsed != "primary" {
		t.Fatalf("expected the primary provider after a retry, got %s", result.ProviderUsed)
	}
	if primary.calls != 2 {
		t.Fatalf("expected 2 attempts against primary, got %d", primary.calls)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback must stay untouched when primary recovers, got %d calls", fallback.calls)
	}
}

func TestGenerationRouterExhaustsRetriesThenFallsBack(t *testing.T) {
	var callLog []string
	primary := &providerFake{name: "primary", failures: 5, transient: true, callLog: &callLog}
	fallback := &providerFake{name: "fallback", text: "fallback answer", callLog: &callLog}
	router := NewGenerationRouter([]ports.GenerationProvider{primary, fallback}, &meterFake{}, fastRouterLimits())

	result, err := router.Generate(context.Background(), generationRequest(twoProviderRoute()))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.ProviderUsed != "fallback" {
		t.Fatalf("expected the fallback provider, got %s", result.ProviderUsed)
	}
	if primary.calls != 2 {
		t.Fatalf("expected the retry budget to cap primary at 2 attempts, got %d", primary.calls)
	}
}

func TestGenerationRouterBudgetExceededBeforeAnyCall(t *testing.T) {
	primary := &providerFake{name: "primary", text: "primary answer"}
	fallback := &providerFake{name: "fallback", text: "fallback answer"}
	meter := &meterFake{}
	router := NewGenerationRouter([]ports.GenerationProvider{primary, fallback}, meter, fastRouterLimits())

	req := generationRequest(twoProviderRoute())
	req.CostCeiling = 0.01

	_, err := router.Generate(context.Background(), req)
	if !domain.IsKind(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}
	if primary.calls != 0 || fallback.calls != 0 {
		t.Fatalf("no provider may be called once the ceiling is hit, got %d/%d calls", primary.calls, fallback.calls)
	}
	if len(meter.records) != 0 {
		t.Fatalf("expected no attempt records, got %d", len(meter.records))
	}
}

func TestGenerationRouterAllProvidersExhausted(t *testing.T) {
	primary := &providerFake{name: "primary", failures: 5}
	fallback := &providerFake{name: "fallback", failures: 5}
	meter := &meterFake{}
	router := NewGenerationRouter([]ports.GenerationProvider{primary, fallback}, meter, fastRouterLimits())

	_, err := router.Generate(context.Background(), generationRequest(twoProviderRoute()))
	if !domain.IsKind(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("expected generation unavailable, got %v", err)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("non-transient failures must not retry, got %d/%d calls", primary.calls, fallback.calls)
	}
	if len(meter.records) != 2 {
		t.Fatalf("expected 2 failed attempt records, got %d", len(meter.records))
	}
	for _, record := range meter.records {
		if record.Outcome != domain.AttemptFailed {
			t.Fatalf("expected failed outcome, got %s", record.Outcome)
		}
	}
}

func TestGenerationRouterPublishesAttemptRecords(t *testing.T) {
	primary := &providerFake{name: "primary", failures: 1, transient: true, text: "primary answer"}
	meter := &meterFake{}
	router := NewGenerationRouter([]ports.GenerationProvider{primary}, meter, fastRouterLimits())

	route, err := domain.NewProviderRoute([]domain.RouteEntry{
		{Provider: "primary", Model: "large", CostPerToken: 0.001, Priority: 1},
	})
	if err != nil {
		t.Fatalf("route fixture: %v", err)
	}
	result, err := router.Generate(context.Background(), generationRequest(route))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(meter.records) != 2 {
		t.Fatalf("expected one failed and one succeeded record, got %d", len(meter.records))
	}
	failed, succeeded := meter.records[0], meter.records[1]
	if failed.Outcome != domain.AttemptFailed || failed.Error == "" {
		t.Fatalf("expected a failed record with the error text, got %+v", failed)
	}
	if succeeded.Outcome != domain.AttemptSucceeded {
		t.Fatalf("expected a succeeded record, got %+v", succeeded)
	}
	if succeeded.TenantID != "tenant-1" || succeeded.Provider != "primary" || succeeded.Model != "large" {
		t.Fatalf("record is missing attribution: %+v", succeeded)
	}
	if succeeded.Cost <= 0 {
		t.Fatalf("expected a positive cost on success, got %f", succeeded.Cost)
	}
	if succeeded.Cost != result.Cost {
		t.Fatalf("record cost %f disagrees with result cost %f", succeeded.Cost, result.Cost)
	}
}

func TestGenerationRouterMeterFailureDoesNotFailRequest(t *testing.T) {
	primary := &providerFake{name: "primary", text: "primary answer"}
	meter := &meterFake{err: errors.New("meter sink down")}
	router := NewGenerationRouter([]ports.GenerationProvider{primary}, meter, fastRouterLimits())

	result, err := router.Generate(context.Background(), generationRequest(twoProviderRoute()))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Text != "primary answer" {
		t.Fatalf("expected the completion despite the metering failure, got %q", result.Text)
	}
}

func TestGenerationRouterSkipsUnknownProvider(t *testing.T) {
	var callLog []string
	fallback := &providerFake{name: "fallback", text: "fallback answer", callLog: &callLog}
	router := NewGenerationRouter([]ports.GenerationProvider{fallback}, &meterFake{}, fastRouterLimits())

	route, err := domain.NewProviderRoute([]domain.RouteEntry{
		{Provider: "ghost", Model: "unknown", CostPerToken: 0.001, Priority: 1},
		{Provider: "fallback", Model: "small", CostPerToken: 0.0002, Priority: 2},
	})
	if err != nil {
		t.Fatalf("route fixture: %v", err)
	}
	result, err := router.Generate(context.Background(), generationRequest(route))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.ProviderUsed != "fallback" {
		t.Fatalf("expected the registered provider, got %s", result.ProviderUsed)
	}
	if len(callLog) != 1 {
		t.Fatalf("expected a single provider call, got %v", callLog)
	}
}

func TestGenerationRouterEmptyCompletionFallsBack(t *testing.T) {
	primary := &providerFake{name: "primary", empty: true}
	fallback := &providerFake{name: "fallback", text: "fallback answer"}
	router := NewGenerationRouter([]ports.GenerationProvider{primary, fallback}, &meterFake{}, fastRouterLimits())

	result, err := router.Generate(context.Background(), generationRequest(twoProviderRoute()))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.ProviderUsed != "fallback" {
		t.Fatalf("an empty completion must count as a failure, got provider %s", result.ProviderUsed)
	}
}

func TestGenerationRouterCostAccounting(t *testing.T) {
	primary := &providerFake{name: "primary", text: "one two three four"}
	router := NewGenerationRouter([]ports.GenerationProvider{primary}, &meterFake{}, fastRouterLimits())

	result, err := router.Generate(context.Background(), generationRequest(twoProviderRoute()))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.PromptTokens != 10 || result.OutputTokens != 4 {
		t.Fatalf("expected estimated usage 10/4, got %d/%d", result.PromptTokens, result.OutputTokens)
	}
	if want := 14 * 0.001; math.Abs(result.Cost-want) > 1e-9 {
		t.Fatalf("expected cost %f, got %f", want, result.Cost)
	}
}

func TestGenerationRouterPrefersProviderUsage(t *testing.T) {
	primary := &providerFake{name: "primary", usage: &domain.Generation{
		Text:         "counted answer",
		PromptTokens: 50,
		OutputTokens: 7,
	}}
	router := NewGenerationRouter([]ports.GenerationProvider{primary}, &meterFake{}, fastRouterLimits())

	result, err := router.Generate(context.Background(), generationRequest(twoProviderRoute()))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.PromptTokens != 50 || result.OutputTokens != 7 {
		t.Fatalf("expected the provider's own usage, got %d/%d", result.PromptTokens, result.OutputTokens)
	}
	if want := 57 * 0.001; math.Abs(result.Cost-want) > 1e-9 {
		t.Fatalf("expected cost %f, got %f", want, result.Cost)
	}
}

func TestGenerationRouterEmptyRoute(t *testing.T) {
	router := NewGenerationRouter(nil, &meterFake{}, fastRouterLimits())
	_, err := router.Generate(context.Background(), GenerationRequest{Prompt: "q", PromptTokens: 1})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for an empty route, got %v", err)
	}
}
