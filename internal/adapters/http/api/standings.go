package api

import (
	"context"
	"net/http"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/scoring"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/types"
	"github.com/go-chi/chi/v5"
)

// StandingsDependencies defines the interface for contest breakdowns.
type StandingsDependencies interface {
	Standings(ctx context.Context, boardID string) ([]scoring.Standing, error)
}

// StandingsHandler serves the per-game breakdown of contest boards.
type StandingsHandler struct {
	deps StandingsDependencies
}

// NewStandingsHandler creates a new standings handler.
func NewStandingsHandler(deps StandingsDependencies) *StandingsHandler {
	return &StandingsHandler{deps: deps}
}

// HandleGetStandings handles GET /boards/{boardID}/standings.
func (h *StandingsHandler) HandleGetStandings(w http.ResponseWriter, r *http.Request) {
	standings, err := h.deps.Standings(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewStandings(standings))
}
