package ports

import (
	"context"

	"github.com/ragline/ragline/internal/core/domain"
)

// AnswerService is the single operation this core exposes to the rest of
// the platform.
type AnswerService interface {
	Answer(ctx context.Context, req domain.AnswerRequest) (*domain.AnswerResult, error)
}
