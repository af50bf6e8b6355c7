package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/core/domain"
	"github.com/ragline/ragline/internal/core/ports"
)

// AnswerLimits bounds one answer pipeline run.
type AnswerLimits struct {
	RetrieveTopK int
	RerankLimit  int
	HistoryTurns int
}

// AnswerUseCase runs the full pipeline for one question: embed, retrieve,
// rerank, assemble, generate, cite, then persist the exchange. Stages run
// strictly in that order; no stage starts on partial output of the one
// before it.
type AnswerUseCase struct {
	embedder      *EmbeddingClient
	retriever     *HybridRetriever
	reranker      *Reranker
	assembler     *ContextAssembler
	router        *GenerationRouter
	citations     *CitationBinder
	conversations ports.ConversationStore
	limits        AnswerLimits
}

func NewAnswerUseCase(
	embedder *EmbeddingClient,
	retriever *HybridRetriever,
	reranker *Reranker,
	assembler *ContextAssembler,
	router *GenerationRouter,
	citations *CitationBinder,
	conversations ports.ConversationStore,
	limits AnswerLimits,
) *AnswerUseCase {
	if limits.RetrieveTopK <= 0 {
		limits.RetrieveTopK = 20
	}
	if limits.RerankLimit <= 0 {
		limits.RerankLimit = 5
	}
	if limits.HistoryTurns <= 0 {
		limits.HistoryTurns = 12
	}
	return &AnswerUseCase{
		embedder:      embedder,
		retriever:     retriever,
		reranker:      reranker,
		assembler:     assembler,
		router:        router,
		citations:     citations,
		conversations: conversations,
		limits:        limits,
	}
}

// Answer resolves one question. The caller gets either a complete result,
// possibly flagged degraded, or one of the named error kinds. Conversation
// turns are appended only after generation has succeeded.
func (uc *AnswerUseCase) Answer(ctx context.Context, req domain.AnswerRequest) (*domain.AnswerResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	queryVector, err := uc.embedder.Embed(ctx, req.Query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed query: %w", ctx.Err())
		}
		// Vector side is down; retrieval carries on lexical-only.
		queryVector = nil
	}

	set, err := uc.retriever.Retrieve(ctx, queryVector, req.Query, req.TenantID, uc.limits.RetrieveTopK)
	if err != nil {
		return nil, err
	}
	degraded := set.Degraded

	results, rerankDegraded := uc.reranker.Rerank(ctx, req.Query, set.Candidates, uc.limits.RerankLimit)
	degraded = degraded || rerankDegraded

	history, historyDegraded := uc.loadHistory(ctx, req)
	degraded = degraded || historyDegraded

	userTurn := domain.ConversationTurn{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		ConversationID: req.ConversationID,
		Role:           domain.RoleUser,
		Text:           req.Query,
		CreatedAt:      time.Now().UTC(),
	}
	promptCtx, err := uc.assembler.Assemble(append(history, userTurn), results, req.Budget)
	if err != nil {
		return nil, err
	}

	generation, err := uc.router.Generate(ctx, GenerationRequest{
		Prompt:       promptCtx.Prompt,
		PromptTokens: promptCtx.TokenCount,
		AnswerTokens: req.Budget.MaxAnswerTokens,
		TenantID:     req.TenantID,
		Route:        req.Route,
		CostCeiling:  req.CostCeiling,
	})
	if err != nil {
		return nil, err
	}

	included := filterResultsByChunkID(results, promptCtx.ChunkIDs)
	citations := uc.citations.Bind(generation.Text, included)
	if err := validateCitations(citations, promptCtx.ChunkIDs); err != nil {
		return nil, err
	}

	uc.appendTurns(ctx, req, userTurn, generation.Text, citations)

	return &domain.AnswerResult{
		Text:             generation.Text,
		Citations:        citations,
		ProviderUsed:     generation.ProviderUsed,
		Cost:             generation.Cost,
		Degraded:         degraded,
		ContextTruncated: promptCtx.Truncated,
	}, nil
}

// loadHistory fetches recent turns for the conversation. A store failure
// degrades the answer to history-less instead of failing it.
func (uc *AnswerUseCase) loadHistory(ctx context.Context, req domain.AnswerRequest) ([]domain.ConversationTurn, bool) {
	if req.ConversationID == "" || uc.conversations == nil {
		return nil, false
	}
	history, err := uc.conversations.History(ctx, req.TenantID, req.ConversationID, uc.limits.HistoryTurns)
	if err != nil {
		return nil, true
	}
	return history, false
}

// appendTurns persists the exchange once the answer exists. Appends are best
// effort: the answer is already paid for and is returned regardless.
func (uc *AnswerUseCase) appendTurns(ctx context.Context, req domain.AnswerRequest, userTurn domain.ConversationTurn, answerText string, citations []domain.Citation) {
	if req.ConversationID == "" || uc.conversations == nil {
		return
	}
	if err := uc.conversations.AppendTurn(ctx, userTurn); err != nil {
		return
	}
	_ = uc.conversations.AppendTurn(ctx, domain.ConversationTurn{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		ConversationID: req.ConversationID,
		Role:           domain.RoleAssistant,
		Text:           answerText,
		Citations:      citations,
		CreatedAt:      time.Now().UTC(),
	})
}

func filterResultsByChunkID(results []domain.ScoredResult, chunkIDs []string) []domain.ScoredResult {
	allowed := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		allowed[id] = struct{}{}
	}
	out := make([]domain.ScoredResult, 0, len(chunkIDs))
	for _, result := range results {
		if _, ok := allowed[result.Candidate.Chunk.ID]; ok {
			out = append(out, result)
		}
	}
	return out
}

// validateCitations enforces that every citation points inside the context
// the model was shown. A violation is a programming error and aborts the
// request.
func validateCitations(citations []domain.Citation, chunkIDs []string) error {
	allowed := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		allowed[id] = struct{}{}
	}
	for _, citation := range citations {
		if _, ok := allowed[citation.ChunkID]; !ok {
			return domain.WrapError(domain.ErrCitationOutOfContext, "bind citations",
				fmt.Errorf("citation references chunk %s outside the assembled context", citation.ChunkID))
		}
	}
	return nil
}
