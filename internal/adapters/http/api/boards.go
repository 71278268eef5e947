package api

import (
	"context"
	"net/http"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/types"
	"github.com/go-chi/chi/v5"
)

// BoardsDependencies lists and describes configured boards.
type BoardsDependencies interface {
	Boards(ctx context.Context) []types.Board
	Board(ctx context.Context, boardID string) (types.Board, error)
}

// BoardsHandler handles board listing requests.
type BoardsHandler struct {
	deps BoardsDependencies
}

// NewBoardsHandler creates a new boards handler.
func NewBoardsHandler(deps BoardsDependencies) *BoardsHandler {
	return &BoardsHandler{deps: deps}
}

// HandleList handles GET /boards.
func (h *BoardsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Boards(r.Context()))
}

// HandleGet handles GET /boards/{boardID}.
func (h *BoardsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	b, err := h.deps.Board(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
