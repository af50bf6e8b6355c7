package httpadapter

import (
	"net/http"

	"github.com/ragline/ragline/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrBudgetExceeded):
		return http.StatusPaymentRequired
	case domain.IsKind(err, domain.ErrChunkNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrContextTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrEmbeddingUnavailable),
		domain.IsKind(err, domain.ErrRetrievalUnavailable),
		domain.IsKind(err, domain.ErrGenerationUnavailable),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		// Tenant and citation violations are programming errors; they land
		// here on purpose.
		return http.StatusInternalServerError
	}
}

func errorKindLabel(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrBudgetExceeded):
		return "budget_exceeded"
	case domain.IsKind(err, domain.ErrContextTooLarge):
		return "context_too_large"
	case domain.IsKind(err, domain.ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case domain.IsKind(err, domain.ErrRetrievalUnavailable):
		return "retrieval_unavailable"
	case domain.IsKind(err, domain.ErrGenerationUnavailable):
		return "generation_unavailable"
	case domain.IsKind(err, domain.ErrTenantViolation):
		return "tenant_violation"
	case domain.IsKind(err, domain.ErrCitationOutOfContext):
		return "citation_out_of_context"
	default:
		return "internal"
	}
}
