package usecase

import (
	"unicode"
	"unicode/utf8"

	"github.com/ragline/ragline/internal/core/domain"
)

// CitationLimits tunes citation binding. MinConfidence is the overlap share
// a chunk must clear before a span is cited; below it the span stays
// uncited.
type CitationLimits struct {
	MinConfidence float64
}

// CitationBinder maps sentences of the generated answer back to the chunks
// the model was shown, by token overlap. It never looks beyond the result
// set it is handed.
type CitationBinder struct {
	limits CitationLimits
}

func NewCitationBinder(limits CitationLimits) *CitationBinder {
	if limits.MinConfidence <= 0 {
		limits.MinConfidence = 0.25
	}
	return &CitationBinder{limits: limits}
}

func (b *CitationBinder) Bind(answerText string, results []domain.ScoredResult) []domain.Citation {
	if answerText == "" || len(results) == 0 {
		return nil
	}

	chunkTokens := make([]map[string]struct{}, len(results))
	for i, result := range results {
		chunkTokens[i] = toTokenSet(result.Candidate.Chunk.Text)
	}

	spans := splitSentences(answerText)
	citations := make([]domain.Citation, 0, len(spans))
	for _, span := range spans {
		spanTokens := toTokenSet(answerText[span.start:span.end])
		if len(spanTokens) == 0 {
			continue
		}

		best := -1
		bestScore := 0.0
		for i := range results {
			score := tokenOverlap(spanTokens, chunkTokens[i])
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 || bestScore < b.limits.MinConfidence {
			continue
		}
		citations = append(citations, domain.Citation{
			Start:      span.start,
			End:        span.end,
			ChunkID:    results[best].Candidate.Chunk.ID,
			Confidence: bestScore,
		})
	}
	return citations
}

type answerSpan struct {
	start int
	end   int
}

// splitSentences cuts the answer into sentence spans with byte offsets.
// Sentence punctuation stays inside its span; newlines separate spans
// without being included.
func splitSentences(text string) []answerSpan {
	spans := make([]answerSpan, 0, 8)
	start := -1
	for i, r := range text {
		terminator := r == '.' || r == '!' || r == '?' || r == '\n'
		if !terminator {
			if start < 0 && !unicode.IsSpace(r) {
				start = i
			}
			continue
		}
		if start < 0 {
			continue
		}
		end := i
		if r != '\n' {
			end = i + utf8.RuneLen(r)
		}
		spans = append(spans, answerSpan{start: start, end: end})
		start = -1
	}
	if start >= 0 {
		spans = append(spans, answerSpan{start: start, end: len(text)})
	}
	return spans
}
