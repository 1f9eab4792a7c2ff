package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/code-runner/internal/apperror"
	"github.com/sakif/code-runner/internal/executor"
	"github.com/sakif/code-runner/internal/model"
	"github.com/sakif/code-runner/internal/repository"
)

// ExecutionService validates execution requests, hands them to the engine
// and records the outcome.
type ExecutionService struct {
	exec   executor.Executor
	rec    recorder
	logger *slog.Logger
}

// NewExecutionService creates an ExecutionService. runs may be nil.
func NewExecutionService(exec executor.Executor, runs repository.RunRepository, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{
		exec:   exec,
		rec:    recorder{runs: runs, logger: logger},
		logger: logger,
	}
}

// Execute runs req. Unsupported languages, timeouts and faults in the
// submitted code are reported in the result, not as errors. Empty code is
// run like any other script. An error means the request was oversized or the
// server itself failed.
func (s *ExecutionService) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	if len(req.Code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}

	res, err := s.exec.Execute(ctx, req)
	if err != nil {
		s.logger.Error("execution failed",
			slog.String("language", req.Language),
			slog.Bool("session", req.UseSession),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("executing code: %w", err)
	}

	s.logger.Info("code executed",
		slog.String("language", req.Language),
		slog.Bool("session", req.UseSession),
		slog.Int("exitCode", res.ExitCode),
		slog.Bool("faulted", res.Faulted),
		slog.Duration("duration", res.Duration),
	)

	s.rec.record(ctx, &model.Run{
		Kind:       model.KindExecute,
		Language:   req.Language,
		Session:    req.UseSession,
		ExitCode:   res.ExitCode,
		Faulted:    res.Faulted,
		CodeSize:   len(req.Code),
		DurationMS: res.Duration.Milliseconds(),
	})
	return res, nil
}
