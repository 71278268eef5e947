package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bauman-code-tournament/leaderboard/internal/adapters/export"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/types"
	"github.com/go-chi/chi/v5"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, boardID string) (model.Snapshot, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /boards/{boardID}/leaderboard?limit=N.
// Without a limit the page holds up to maxLimit entries; larger limits are
// capped.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := h.maxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request",
				fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		limit = min(n, h.maxLimit)
	}

	snap, err := h.deps.Leaderboard(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewLeaderboard(snap, limit))
}

// HandleExport handles GET /boards/{boardID}/export.xlsx.
func (h *LeaderboardHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")
	snap, err := h.deps.Leaderboard(r.Context(), boardID)
	if err != nil {
		writeFailure(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, snap); err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s-%d.xlsx"`, boardID, snap.Sequence))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
