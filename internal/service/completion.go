package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/code-runner/internal/apperror"
	"github.com/sakif/code-runner/internal/model"
	"github.com/sakif/code-runner/internal/provider"
	"github.com/sakif/code-runner/internal/repository"
)

// Completer produces a completion for a prompt. *provider.Gateway is the
// production implementation.
type Completer interface {
	Complete(ctx context.Context, req provider.CompletionRequest) provider.Result
}

// CompletionService forwards prompts to the provider gateway and records the
// outcome.
type CompletionService struct {
	gateway Completer
	rec     recorder
	logger  *slog.Logger
}

// NewCompletionService creates a CompletionService. runs may be nil.
func NewCompletionService(gateway Completer, runs repository.RunRepository, logger *slog.Logger) *CompletionService {
	return &CompletionService{
		gateway: gateway,
		rec:     recorder{runs: runs, logger: logger},
		logger:  logger,
	}
}

// Complete returns the model's text or a diagnostic. Backend failures are
// part of the Result; the only error is an oversized prompt.
func (s *CompletionService) Complete(ctx context.Context, req provider.CompletionRequest) (provider.Result, error) {
	if len(req.Prompt) > MaxPromptLength {
		return provider.Result{}, apperror.ValidationFailed("prompt",
			fmt.Sprintf("prompt must be %d characters or less", MaxPromptLength))
	}

	start := time.Now()
	res := s.gateway.Complete(ctx, req)
	elapsed := time.Since(start)

	s.logger.Info("completion finished",
		slog.String("mode", string(req.Mode)),
		slog.String("preference", string(req.Preference)),
		slog.String("provider", string(res.Provider)),
		slog.String("failure", string(res.FailureReason)),
		slog.Duration("duration", elapsed),
	)

	s.rec.record(ctx, &model.Run{
		Kind:       model.KindComplete,
		Mode:       string(req.Mode),
		Provider:   string(res.Provider),
		Failure:    string(res.FailureReason),
		CodeSize:   len(req.Prompt),
		DurationMS: elapsed.Milliseconds(),
	})
	return res, nil
}
