package feedsim

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/bauman-code-tournament/leaderboard/internal/adapters/feed"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/types"
)

// FeedServer serves mock result feeds for boards configured with the http
// source. Every GET advances that board's walk by one step.
type FeedServer struct {
	sources map[string]*feed.MockSource
	order   []string
}

// NewFeedServer creates a server with one mock feed per board. Board i is
// seeded with seed+i.
func NewFeedServer(boards []string, seed int64, teams int, errorRate float64) *FeedServer {
	s := &FeedServer{sources: make(map[string]*feed.MockSource, len(boards))}
	for i, id := range boards {
		if _, dup := s.sources[id]; dup {
			continue
		}
		s.sources[id] = feed.NewMockSource(seed+int64(i), feed.WithMockTeams(teams), feed.WithMockErrorRate(errorRate))
		s.order = append(s.order, id)
	}
	return s
}

// Routes builds the router: GET /feeds lists boards, GET /feeds/{boardID}
// returns the next feed as a JSON array of metrics.
func (s *FeedServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/feeds", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, slices.Clone(s.order))
	})
	r.Get("/feeds/{boardID}", s.handleFeed)
	return r
}

func (s *FeedServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	src, ok := s.sources[chi.URLParam(r, "boardID")]
	if !ok {
		writeJSON(w, http.StatusNotFound, types.ErrorResponse{Code: "board_not_found", Message: "unknown feed"})
		return
	}
	metrics, err := src.Fetch(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{Code: "unavailable", Message: err.Error()})
		return
	}
	wire := make([]feed.WireMetric, 0, len(metrics))
	for _, m := range metrics {
		wire = append(wire, feed.ToWire(m))
	}
	writeJSON(w, http.StatusOK, wire)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
