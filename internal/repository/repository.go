package repository

import (
	"context"

	"github.com/sakif/code-runner/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
	// Kind filters by endpoint. Empty means all kinds.
	Kind model.RunKind
}

// RunRepository stores request history.
type RunRepository interface {
	Create(ctx context.Context, run *model.Run) error
	GetByID(ctx context.Context, id string) (*model.Run, error)
	List(ctx context.Context, opts ListOptions) ([]model.Run, error)
}
