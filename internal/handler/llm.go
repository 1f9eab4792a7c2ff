package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/code-runner/internal/provider"
)

// Completer is the slice of service.CompletionService the handler needs.
type Completer interface {
	Complete(ctx context.Context, req provider.CompletionRequest) (provider.Result, error)
}

// CompletionHandler handles prompt completion requests.
type CompletionHandler struct {
	svc    Completer
	logger *slog.Logger
}

// NewCompletionHandler creates a new CompletionHandler.
func NewCompletionHandler(svc Completer, logger *slog.Logger) *CompletionHandler {
	return &CompletionHandler{svc: svc, logger: logger}
}

// CompletionResponse is the /llm payload. Output holds either the model's
// text or a diagnostic; Provider is set only when a backend answered.
type CompletionResponse struct {
	Output   string `json:"output"`
	Provider string `json:"provider,omitempty"`
}

// HandleComplete answers {mode, prompt, provider, ...} with {output}.
func (h *CompletionHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	var req provider.CompletionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid completion request body", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	res, err := h.svc.Complete(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CompletionResponse{
		Output:   res.Text,
		Provider: string(res.Provider),
	})
}
