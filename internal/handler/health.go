package handler

import (
	"context"
	"net/http"

	"github.com/sakif/code-runner/internal/executor"
	"github.com/sakif/code-runner/internal/provider"
)

// BackendStatus reports LLM backend availability.
type BackendStatus interface {
	Status(ctx context.Context) provider.Status
}

// SessionController exposes the persistent session's lifecycle.
type SessionController interface {
	SessionState() executor.SessionState
	Restart() error
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Ollama  bool   `json:"ollama"`
	OpenAI  bool   `json:"openai"`
	Session string `json:"session"`
}

// HealthHandler serves liveness and session control endpoints.
type HealthHandler struct {
	backends BackendStatus
	session  SessionController
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(backends BackendStatus, session SessionController) *HealthHandler {
	return &HealthHandler{backends: backends, session: session}
}

// HandleHealth reports whether Ollama answered a probe, whether an OpenAI key
// is configured, and the session state. It never starts a session.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.backends.Status(r.Context())
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Ollama:  st.LocalAvailable,
		OpenAI:  st.RemoteConfigured,
		Session: h.session.SessionState().String(),
	})
}

// HandleRestartSession discards the persistent session and its namespace.
// The next session call starts a fresh interpreter.
func (h *HealthHandler) HandleRestartSession(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Restart(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarted"})
}
