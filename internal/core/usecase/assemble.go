package usecase

import (
	"fmt"
	"strings"

	"github.com/ragline/ragline/internal/core/domain"
)

const defaultSystemPrompt = `Answer the user question only from the context passages below.
If the context is insufficient, say it directly.`

// ContextAssembler renders the final prompt under a hard token budget.
// Rendering is pure: the same history, results and budget always produce the
// same bytes. The question is the final user turn of the supplied history.
type ContextAssembler struct {
	systemPrompt string
}

func NewContextAssembler(systemPrompt string) *ContextAssembler {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &ContextAssembler{systemPrompt: systemPrompt}
}

// Assemble builds the prompt: system instructions, then as many recent past
// turns as the history share allows (oldest dropped first), the question,
// then passages in rank order (lowest dropped first). If nothing but a cut
// of the top passage fits, the passage text is truncated on a word boundary
// instead of dropped, and the truncation is recorded.
func (a *ContextAssembler) Assemble(history []domain.ConversationTurn, results []domain.ScoredResult, budget domain.ContextBudget) (*domain.PromptContext, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}
	question, past, err := splitQuestion(history)
	if err != nil {
		return nil, err
	}

	available := budget.MaxContextTokens
	truncated := false
	blocks := make([]string, 0, 4)

	systemAllow := minInt(budget.SystemReserveTokens, available)
	systemText, cut := domain.TruncateTokens(a.systemPrompt, systemAllow)
	truncated = truncated || cut
	if systemText != "" {
		blocks = append(blocks, systemText)
		available -= domain.EstimateTokens(systemText)
	}

	historyAllow := minInt(budget.MaxHistoryTokens, available)
	questionBlock, questionTokens, cut, err := renderQuestion(question, historyAllow)
	if err != nil {
		return nil, err
	}
	truncated = truncated || cut
	available -= questionTokens
	historyAllow -= questionTokens

	conversationBlock, conversationTokens, historyUsed := renderConversation(past, historyAllow)
	if conversationBlock != "" {
		blocks = append(blocks, conversationBlock)
		available -= conversationTokens
	}
	blocks = append(blocks, questionBlock)

	passageAllow := minInt(budget.MaxPassageTokens, available)
	passagesBlock, passageTokens, chunkIDs, cut, err := renderPassages(results, passageAllow)
	if err != nil {
		return nil, err
	}
	truncated = truncated || cut
	if passagesBlock != "" {
		blocks = append(blocks, passagesBlock)
		available -= passageTokens
	}

	prompt := strings.Join(blocks, "\n\n")
	return &domain.PromptContext{
		Prompt:      prompt,
		TokenCount:  domain.EstimateTokens(prompt),
		ChunkIDs:    chunkIDs,
		Truncated:   truncated,
		HistoryUsed: historyUsed,
	}, nil
}

// splitQuestion peels the question off the end of the history. The caller
// supplies the not-yet-persisted current user turn as the last element.
func splitQuestion(history []domain.ConversationTurn) (domain.ConversationTurn, []domain.ConversationTurn, error) {
	if len(history) == 0 {
		return domain.ConversationTurn{}, nil, domain.WrapError(domain.ErrInvalidInput, "assemble context",
			fmt.Errorf("history must include the current user turn"))
	}
	last := history[len(history)-1]
	if last.Role != domain.RoleUser || strings.TrimSpace(last.Text) == "" {
		return domain.ConversationTurn{}, nil, domain.WrapError(domain.ErrInvalidInput, "assemble context",
			fmt.Errorf("history must end with a non-empty user turn"))
	}
	return last, history[:len(history)-1], nil
}

func renderQuestion(question domain.ConversationTurn, allow int) (string, int, bool, error) {
	const headerTokens = 1
	if allow-headerTokens < 1 {
		return "", 0, false, domain.WrapError(domain.ErrContextTooLarge, "assemble context",
			fmt.Errorf("history budget cannot fit the question"))
	}
	text, cut := domain.TruncateTokens(question.Text, allow-headerTokens)
	block := "Question:\n" + text
	return block, headerTokens + domain.EstimateTokens(text), cut, nil
}

// renderConversation picks past turns newest first until the allowance runs
// out, then renders them back in chronological order.
func renderConversation(past []domain.ConversationTurn, allow int) (string, int, int) {
	const headerTokens = 3
	if len(past) == 0 || allow <= headerTokens {
		return "", 0, 0
	}

	room := allow - headerTokens
	lines := make([]string, 0, len(past))
	used := 0
	for i := len(past) - 1; i >= 0; i-- {
		turn := past[i]
		text := domain.NormalizeText(turn.Text)
		if text == "" {
			continue
		}
		line := string(turn.Role) + ": " + text
		lineTokens := domain.EstimateTokens(line)
		if lineTokens > room {
			break
		}
		lines = append(lines, line)
		room -= lineTokens
		used += lineTokens
	}
	if len(lines) == 0 {
		return "", 0, 0
	}

	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	block := "Conversation so far:\n" + strings.Join(lines, "\n")
	return block, headerTokens + used, len(lines)
}

// renderPassages includes results in rank order while they fit. The top
// passage is never dropped outright: when it alone exceeds the allowance its
// text is cut on a word boundary.
func renderPassages(results []domain.ScoredResult, allow int) (string, int, []string, bool, error) {
	if len(results) == 0 {
		return "", 0, nil, false, nil
	}
	const headerTokens = 1
	room := allow - headerTokens

	parts := make([]string, 0, len(results))
	chunkIDs := make([]string, 0, len(results))
	used := 0
	truncated := false
	for i, result := range results {
		chunk := result.Candidate.Chunk
		passageHeader := fmt.Sprintf("[%d] source=%s", i+1, chunk.DocumentID)
		passageHeaderTokens := domain.EstimateTokens(passageHeader)
		text := domain.NormalizeText(chunk.Text)
		textTokens := domain.EstimateTokens(text)

		if passageHeaderTokens+textTokens > room {
			if i > 0 {
				break
			}
			textAllow := room - passageHeaderTokens
			if textAllow < 1 {
				return "", 0, nil, false, domain.WrapError(domain.ErrContextTooLarge, "assemble context",
					fmt.Errorf("passage budget cannot fit the top passage"))
			}
			text, _ = domain.TruncateTokens(text, textAllow)
			textTokens = domain.EstimateTokens(text)
			truncated = true
		}

		parts = append(parts, passageHeader+"\n"+text)
		chunkIDs = append(chunkIDs, chunk.ID)
		used += passageHeaderTokens + textTokens
		room -= passageHeaderTokens + textTokens
		if truncated {
			break
		}
	}

	block := "Context:\n" + strings.Join(parts, "\n\n")
	return block, headerTokens + used, chunkIDs, truncated, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
