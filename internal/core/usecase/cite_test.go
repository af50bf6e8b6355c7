package usecase

import (
	"math"
	"testing"

	"github.com/ragline/ragline/internal/core/domain"
)

func TestCitationBinderBindsSentences(t *testing.T) {
	binder := NewCitationBinder(CitationLimits{})
	results := []domain.ScoredResult{
		passageResult("c1", "doc-1", "the quick brown fox jumps", 1),
		passageResult("c2", "doc-2", "rivers flow to the sea", 2),
	}
	answer := "The quick brown fox jumps. Nothing relevant here at all."

	citations := binder.Bind(answer, results)
	if len(citations) != 1 {
		t.Fatalf("expected one citation, got %d", len(citations))
	}
	citation := citations[0]
	if citation.ChunkID != "c1" {
		t.Fatalf("expected chunk c1, got %s", citation.ChunkID)
	}
	if got := answer[citation.Start:citation.End]; got != "The quick brown fox jumps." {
		t.Fatalf("citation span points at %q", got)
	}
	if math.Abs(citation.Confidence-1.0) > 1e-9 {
		t.Fatalf("expected full overlap confidence, got %f", citation.Confidence)
	}
}

func TestCitationBinderConfidenceThreshold(t *testing.T) {
	results := []domain.ScoredResult{
		passageResult("c1", "doc-1", "alpha beta gamma zeta eta", 1),
	}
	answer := "alpha beta gamma delta epsilon."

	strict := NewCitationBinder(CitationLimits{MinConfidence: 0.9})
	if citations := strict.Bind(answer, results); len(citations) != 0 {
		t.Fatalf("expected no citations below the threshold, got %d", len(citations))
	}

	relaxed := NewCitationBinder(CitationLimits{MinConfidence: 0.5})
	citations := relaxed.Bind(answer, results)
	if len(citations) != 1 {
		t.Fatalf("expected one citation, got %d", len(citations))
	}
	if math.Abs(citations[0].Confidence-0.6) > 1e-9 {
		t.Fatalf("expected confidence 0.6, got %f", citations[0].Confidence)
	}
}

func TestCitationBinderOnlyCitesProvidedChunks(t *testing.T) {
	binder := NewCitationBinder(CitationLimits{})
	results := []domain.ScoredResult{
		passageResult("c1", "doc-1", "retention policy keeps records ninety days", 1),
		passageResult("c2", "doc-2", "backups rotate weekly across sites", 2),
	}
	answer := "Retention policy keeps records ninety days. Backups rotate weekly across sites."

	allowed := map[string]bool{"c1": true, "c2": true}
	citations := binder.Bind(answer, results)
	if len(citations) != 2 {
		t.Fatalf("expected two citations, got %d", len(citations))
	}
	lastStart := -1
	for _, citation := range citations {
		if !allowed[citation.ChunkID] {
			t.Fatalf("citation references chunk %s outside the result set", citation.ChunkID)
		}
		if citation.Start <= lastStart {
			t.Fatalf("citations must come back in answer order")
		}
		lastStart = citation.Start
	}
}

func TestCitationBinderPrefersHigherRankedChunkOnTies(t *testing.T) {
	binder := NewCitationBinder(CitationLimits{})
	results := []domain.ScoredResult{
		passageResult("c1", "doc-1", "identical passage text here", 1),
		passageResult("c2", "doc-2", "identical passage text here", 2),
	}

	citations := binder.Bind("Identical passage text here.", results)
	if len(citations) != 1 {
		t.Fatalf("expected one citation, got %d", len(citations))
	}
	if citations[0].ChunkID != "c1" {
		t.Fatalf("ties must resolve to the higher-ranked chunk, got %s", citations[0].ChunkID)
	}
}

func TestCitationBinderEmptyInputs(t *testing.T) {
	binder := NewCitationBinder(CitationLimits{})
	if citations := binder.Bind("", []domain.ScoredResult{passageResult("c1", "doc-1", "text", 1)}); citations != nil {
		t.Fatalf("expected no citations for an empty answer, got %v", citations)
	}
	if citations := binder.Bind("some answer.", nil); citations != nil {
		t.Fatalf("expected no citations without results, got %v", citations)
	}
}

func TestSplitSentencesOffsets(t *testing.T) {
	text := "One two. Three!\nFour"
	spans := splitSentences(text)
	want := []string{"One two.", "Three!", "Four"}
	if len(spans) != len(want) {
		t.Fatalf("expected %d spans, got %d", len(want), len(spans))
	}
	for i, span := range spans {
		if got := text[span.start:span.end]; got != want[i] {
			t.Fatalf("span %d is %q, want %q", i, got, want[i])
		}
	}
}
