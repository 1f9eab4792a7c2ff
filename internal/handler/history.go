package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/code-runner/internal/model"
)

// HistoryReader is the slice of service.HistoryService the handler needs.
type HistoryReader interface {
	List(ctx context.Context, kind string, limit, offset int) ([]model.Run, error)
	GetByID(ctx context.Context, id string) (*model.Run, error)
}

// HistoryHandler serves recorded runs.
type HistoryHandler struct {
	svc HistoryReader
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(svc HistoryReader) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

// HandleList handles GET /api/history?kind=&limit=&offset=.
// Unparseable numbers fall back to the service defaults.
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	runs, err := h.svc.List(r.Context(), q.Get("kind"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleGetByID handles GET /api/history/{id}.
func (h *HistoryHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
