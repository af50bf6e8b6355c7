package domain

import "strings"

// EstimateTokens approximates the token count of a text as its whitespace
// separated word count. Good enough for budgeting; exact tokenizer counts
// stay provider-side.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

// TruncateTokens cuts text down to at most max tokens, always on a word
// boundary, and reports whether anything was cut. Text that already fits is
// returned untouched.
func TruncateTokens(text string, max int) (string, bool) {
	if max <= 0 {
		return "", text != ""
	}
	fields := strings.Fields(text)
	if len(fields) <= max {
		return text, false
	}
	return strings.Join(fields[:max], " "), true
}

// NormalizeText collapses runs of whitespace to single spaces, preserving
// case. Cache keys are built over this form so formatting differences do not
// defeat the embedding cache.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
