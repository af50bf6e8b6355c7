package httpadapter

import (
	"errors"
	"net/http"
	"testing"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/core/domain"
)

func TestAnswerMapsErrorKindsToStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		kind error
		want int
	}{
		{"invalid input", domain.ErrInvalidInput, http.StatusBadRequest},
		{"budget exceeded", domain.ErrBudgetExceeded, http.StatusPaymentRequired},
		{"context too large", domain.ErrContextTooLarge, http.StatusRequestEntityTooLarge},
		{"embedding unavailable", domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable},
		{"retrieval unavailable", domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable},
		{"generation unavailable", domain.ErrGenerationUnavailable, http.StatusServiceUnavailable},
		{"tenant violation", domain.ErrTenantViolation, http.StatusInternalServerError},
		{"citation out of context", domain.ErrCitationOutOfContext, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &answerFake{err: domain.WrapError(tc.kind, "answer", errors.New("boom"))}
			handler := newTestHandler(t, config.Config{}, fake)

			res := postAnswer(t, handler, map[string]any{
				"query":     "what is raft",
				"tenant_id": "tenant-1",
			})
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestAnswerNeverLeaksARawStatus(t *testing.T) {
	fake := &answerFake{err: errors.New("driver: bad connection")}
	handler := newTestHandler(t, config.Config{}, fake)

	res := postAnswer(t, handler, map[string]any{
		"query":     "what is raft",
		"tenant_id": "tenant-1",
	})
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for an unclassified error, got %d", res.Code)
	}
	if res.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected a json error body, got %q", res.Header().Get("Content-Type"))
	}
}
