package api

import (
	"context"
	"net/http"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/types"
	"github.com/go-chi/chi/v5"
)

// RefreshDependencies triggers an immediate refresh of a board.
type RefreshDependencies interface {
	Refresh(ctx context.Context, boardID string) error
}

// RefreshHandler handles refresh requests.
type RefreshHandler struct {
	deps RefreshDependencies
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(deps RefreshDependencies) *RefreshHandler {
	return &RefreshHandler{deps: deps}
}

// HandleRefresh handles POST /boards/{boardID}/refresh. The refresh runs
// asynchronously; clients observe the result through the leaderboard.
func (h *RefreshHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")
	if err := h.deps.Refresh(r.Context(), boardID); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.RefreshResponse{Status: "accepted", BoardID: boardID})
}
