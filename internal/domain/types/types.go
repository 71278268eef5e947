// Package types contains the JSON shapes served by the HTTP API.
package types

import (
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/scoring"
)

// Entry is one leaderboard row.
type Entry struct {
	Rank          int      `json:"rank"`
	ParticipantID string   `json:"participant_id"`
	DisplayName   string   `json:"display_name"`
	Score         float64  `json:"score"`
	ErrorState    string   `json:"error_state,omitempty"`
	PreviousRank  *int     `json:"previous_rank,omitempty"`
	RankDelta     *int     `json:"rank_delta,omitempty"`
	PreviousScore *float64 `json:"previous_score,omitempty"`
	ScoreDelta    *float64 `json:"score_delta,omitempty"`
	Movement      string   `json:"movement"`
	Podium        bool     `json:"podium"`
}

// NewEntry converts a ranked entry into its API shape.
func NewEntry(e model.RankedEntry) Entry {
	return Entry{
		Rank:          e.Rank,
		ParticipantID: e.ParticipantID,
		DisplayName:   e.DisplayName,
		Score:         e.Score,
		ErrorState:    e.ErrorState,
		PreviousRank:  e.PreviousRank,
		RankDelta:     e.RankDelta,
		PreviousScore: e.PreviousScore,
		ScoreDelta:    e.ScoreDelta,
		Movement:      string(e.Movement()),
		Podium:        e.Podium(),
	}
}

// Leaderboard is the response of GET /boards/{id}/leaderboard.
type Leaderboard struct {
	BoardID     string    `json:"board_id"`
	Sequence    uint64    `json:"sequence"`
	GeneratedAt time.Time `json:"generated_at"`
	Stale       bool      `json:"stale"`
	LastError   string    `json:"last_error,omitempty"`
	Total       int       `json:"total"`
	Errors      int       `json:"errors"`
	Entries     []Entry   `json:"entries"`
}

// NewLeaderboard renders the first limit entries of s. A limit below one
// renders every entry.
func NewLeaderboard(s model.Snapshot, limit int) Leaderboard {
	top := s.Entries
	if limit > 0 {
		top = s.Top(limit)
	}
	entries := make([]Entry, 0, len(top))
	for _, e := range top {
		entries = append(entries, NewEntry(e))
	}
	return Leaderboard{
		BoardID:     s.BoardID,
		Sequence:    s.Sequence,
		GeneratedAt: s.GeneratedAt,
		Stale:       s.Stale,
		LastError:   s.LastError,
		Total:       s.Len(),
		Errors:      s.ErrorEntries(),
		Entries:     entries,
	}
}

// GameResult is a team's outcome in one game of a contest.
type GameResult struct {
	GameID   string  `json:"game_id"`
	GameName string  `json:"game_name"`
	Points   float64 `json:"points"`
	Rank     int     `json:"rank,omitempty"`
	Error    bool    `json:"error"`
	Present  bool    `json:"present"`
}

// Standing is one row of GET /boards/{id}/standings.
type Standing struct {
	ParticipantID string       `json:"participant_id"`
	DisplayName   string       `json:"display_name"`
	Total         float64      `json:"total"`
	ErrorState    string       `json:"error_state,omitempty"`
	Results       []GameResult `json:"results"`
}

// NewStandings converts contest standings into their API shape, keeping order.
func NewStandings(in []scoring.Standing) []Standing {
	out := make([]Standing, 0, len(in))
	for _, st := range in {
		results := make([]GameResult, 0, len(st.Results))
		for _, r := range st.Results {
			results = append(results, GameResult{
				GameID:   r.GameID,
				GameName: r.GameName,
				Points:   r.Points,
				Rank:     r.Rank,
				Error:    r.HasError,
				Present:  r.Present,
			})
		}
		out = append(out, Standing{
			ParticipantID: st.ParticipantID,
			DisplayName:   st.DisplayName,
			Total:         st.Total,
			ErrorState:    st.ErrorState,
			Results:       results,
		})
	}
	return out
}

// Board summarizes one configured board.
type Board struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Source      string     `json:"source"`
	State       string     `json:"state"`
	Sequence    uint64     `json:"sequence"`
	Entries     int        `json:"entries"`
	Stale       bool       `json:"stale"`
	LastError   string     `json:"last_error,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// PushResponse acknowledges a pushed batch.
type PushResponse struct {
	Status    string `json:"status"`
	BatchID   string `json:"batch_id"`
	Duplicate bool   `json:"duplicate"`
}

// RefreshResponse acknowledges a refresh request.
type RefreshResponse struct {
	Status  string `json:"status"`
	BoardID string `json:"board_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stats is the response of GET /stats.
type Stats struct {
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Boards        int       `json:"boards"`
	QueueLength   int       `json:"queue_length"`
	QueueCapacity int       `json:"queue_capacity"`
	DedupeSize    int       `json:"dedupe_size"`
	Workers       int       `json:"workers"`
	Dispatched    int64     `json:"batches_dispatched"`
	Failed        int64     `json:"batches_failed"`
	Accepted      int64     `json:"batches_accepted"`
	Duplicates    int64     `json:"batches_duplicate"`
}
