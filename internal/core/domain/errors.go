package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrRetrievalUnavailable  = errors.New("retrieval unavailable")
	ErrBudgetExceeded        = errors.New("budget exceeded")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrContextTooLarge       = errors.New("context too large")
	ErrTenantViolation       = errors.New("tenant isolation violation")
	ErrCitationOutOfContext  = errors.New("citation outside assembled context")
	ErrChunkNotFound         = errors.New("chunk not found")
	ErrTemporary             = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
