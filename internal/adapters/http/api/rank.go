package api

import (
	"context"
	"net/http"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/types"
	"github.com/go-chi/chi/v5"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, boardID, participantID string) (model.RankedEntry, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /boards/{boardID}/rank/{participantID}.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	entry, err := h.deps.Rank(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "participantID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewEntry(entry))
}
