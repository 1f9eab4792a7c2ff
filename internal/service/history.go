package service

import (
	"context"
	"strings"

	"github.com/sakif/code-runner/internal/apperror"
	"github.com/sakif/code-runner/internal/model"
	"github.com/sakif/code-runner/internal/repository"
)

// HistoryService reads recorded runs.
type HistoryService struct {
	runs repository.RunRepository
}

// NewHistoryService creates a HistoryService. A nil repository means history
// is disabled and every call returns apperror.ErrUnavailable.
func NewHistoryService(runs repository.RunRepository) *HistoryService {
	return &HistoryService{runs: runs}
}

// List returns recent runs, newest first. kind may be empty, "execute" or
// "complete".
func (s *HistoryService) List(ctx context.Context, kind string, limit, offset int) ([]model.Run, error) {
	if s.runs == nil {
		return nil, apperror.Unavailable("run history")
	}

	k := model.RunKind(strings.ToLower(strings.TrimSpace(kind)))
	switch k {
	case "", model.KindExecute, model.KindComplete:
	default:
		return nil, apperror.ValidationFailed("kind", "kind must be execute or complete")
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.runs.List(ctx, repository.ListOptions{Limit: limit, Offset: offset, Kind: k})
}

// GetByID returns one run.
func (s *HistoryService) GetByID(ctx context.Context, id string) (*model.Run, error) {
	if s.runs == nil {
		return nil, apperror.Unavailable("run history")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "run ID is required")
	}
	return s.runs.GetByID(ctx, id)
}
