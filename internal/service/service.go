// Package service contains the business logic layer of the application.
//
// THE THREE LAYERS:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, dispatches, records history
//	Engine / Gateway / Repo  → runs code, talks to LLM backends, stores runs
//
// Services accept plain Go values and return domain errors from apperror.
// They never see an *http.Request, so the same rules apply to every caller.
//
// HISTORY IS BEST-EFFORT:
// Every service takes a repository.RunRepository that may be nil. A nil
// repository disables history; a failing one is logged and otherwise ignored.
// Recording a run must never change what the caller gets back.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/code-runner/internal/model"
	"github.com/sakif/code-runner/internal/repository"
)

// Validation limits.
const (
	MaxCodeLength    = 100000 // ~100KB of code
	MaxPromptLength  = 32000
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// recordTimeout bounds a history write. It is detached from the request so a
// client that hangs up right after the response still gets its run recorded.
const recordTimeout = 2 * time.Second

// recorder writes history entries for the services.
type recorder struct {
	runs   repository.RunRepository
	logger *slog.Logger
}

func (r recorder) record(ctx context.Context, run *model.Run) {
	if r.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := r.runs.Create(ctx, run); err != nil {
		r.logger.Error("failed to record run",
			slog.String("kind", string(run.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
