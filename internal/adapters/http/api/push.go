package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/adapters/feed"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/dedupe"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/types"
	"github.com/bauman-code-tournament/leaderboard/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxPushBody = 4 << 20

// PushDependencies defines the interface for batch ingestion. Deduplication
// happens in the handler; Enqueue hands accepted batches to the workers.
type PushDependencies interface {
	dedupe.Deduper
	Board(ctx context.Context, boardID string) (types.Board, error)
	Enqueue(ctx context.Context, b model.Batch) error
}

// pushRequest mirrors the OpenAPI schema for POST /boards/{boardID}/metrics.
type pushRequest struct {
	BatchID string            `json:"batch_id"`
	Metrics []feed.WireMetric `json:"metrics"`
}

func (p pushRequest) validate() error {
	if p.Metrics == nil {
		return fmt.Errorf("%w: missing metrics", ErrBadRequest)
	}
	return nil
}

// PushHandler handles metric batch pushes.
type PushHandler struct {
	deps PushDependencies
}

// NewPushHandler creates a new push handler.
func NewPushHandler(deps PushDependencies) *PushHandler {
	return &PushHandler{deps: deps}
}

// HandlePush handles POST /boards/{boardID}/metrics. A batch without an id
// is assigned one and is never treated as a duplicate.
func (h *PushHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")
	if _, err := h.deps.Board(r.Context(), boardID); err != nil {
		metrics.RecordPush("rejected")
		writeFailure(w, err)
		return
	}

	var req pushRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody)).Decode(&req); err != nil {
		metrics.RecordPush("rejected")
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		metrics.RecordPush("rejected")
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	req.BatchID = strings.TrimSpace(req.BatchID)
	if req.BatchID == "" {
		req.BatchID = uuid.NewString()
	}

	// Idempotency check - mark as seen first
	key := dedupe.Key(boardID, req.BatchID)
	if h.deps.SeenAndRecord(r.Context(), key) {
		metrics.RecordPush("duplicate")
		writeJSON(w, http.StatusOK, types.PushResponse{Status: "duplicate", BatchID: req.BatchID, Duplicate: true})
		return
	}

	batch := model.Batch{
		BatchID:    req.BatchID,
		BoardID:    boardID,
		Metrics:    feed.FromWire(req.Metrics),
		ReceivedAt: time.Now().UTC(),
	}
	if err := h.deps.Enqueue(r.Context(), batch); err != nil {
		// Rollback the "seen" status since enqueue failed
		h.deps.Unrecord(r.Context(), key)
		metrics.RecordPush("rejected")
		writeFailure(w, err)
		return
	}
	metrics.RecordPush("accepted")
	writeJSON(w, http.StatusAccepted, types.PushResponse{Status: "accepted", BatchID: req.BatchID})
}
