// Package scoring aggregates per-game leaderboards into contest standings.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
)

// ErrorStateNoValidResults marks a team whose every submitted game errored.
const ErrorStateNoValidResults = "no_valid_results"

const defaultGameWeight = 1.0

// Static errors for contest configuration.
var (
	ErrNoGames       = errors.New("contest has no games")
	ErrDuplicateGame = errors.New("duplicate game id")
	ErrInvalidGame   = errors.New("invalid game definition")
	ErrNotContest    = errors.New("board is not a contest")
)

// Game is one task of a contest.
type Game struct {
	ID        string
	Name      string
	MaxPoints float64 // caps the points a game can award; 0 means uncapped
	Weight    float64 // multiplier applied after capping; 0 means the default
}

// GameResult is a team's outcome in one game.
type GameResult struct {
	GameID   string
	GameName string
	Points   float64
	Rank     int
	HasError bool
	Present  bool // false when the team has no entry on that game board
}

// Standing is a team's aggregated contest result.
type Standing struct {
	ParticipantID string
	DisplayName   string
	Total         float64
	ErrorState    string
	Results       []GameResult // one per game, in contest order
}

// Option applies a configuration option to the ContestScorer.
type Option func(*ContestScorer)

// WithDefaultWeight sets the weight of games configured without one.
func WithDefaultWeight(w float64) Option {
	return func(s *ContestScorer) {
		if w > 0 {
			s.defaultWeight = w
		}
	}
}

// ContestScorer turns game leaderboards into contest standings.
type ContestScorer struct {
	games         []Game
	defaultWeight float64
}

// NewContestScorer validates games and creates a scorer.
func NewContestScorer(games []Game, opts ...Option) (*ContestScorer, error) {
	if len(games) == 0 {
		return nil, ErrNoGames
	}
	s := &ContestScorer{defaultWeight: defaultGameWeight}
	for _, opt := range opts {
		opt(s)
	}

	seen := make(map[string]bool, len(games))
	for _, g := range games {
		switch {
		case g.ID == "":
			return nil, fmt.Errorf("%w: empty id", ErrInvalidGame)
		case g.MaxPoints < 0 || g.Weight < 0:
			return nil, fmt.Errorf("%w: %s has negative limits", ErrInvalidGame, g.ID)
		case seen[g.ID]:
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGame, g.ID)
		}
		seen[g.ID] = true
		if g.Weight == 0 {
			g.Weight = s.defaultWeight
		}
		if g.Name == "" {
			g.Name = g.ID
		}
		s.games = append(s.games, g)
	}
	return s, nil
}

// Games returns the contest games in order.
func (s *ContestScorer) Games() []Game { return slices.Clone(s.games) }

// Points converts one game entry into contest points. Errored entries and
// negative scores contribute nothing.
func (s *ContestScorer) Points(g Game, e model.RankedEntry) float64 {
	if e.HasError() || math.IsNaN(e.Score) {
		return 0
	}
	p := math.Max(0, e.Score)
	if g.MaxPoints > 0 {
		p = math.Min(p, g.MaxPoints)
	}
	return p * g.Weight
}

// Aggregate builds standings from the latest snapshot entries of each game,
// keyed by game id. Games without entries count as not attempted. The
// result is ordered by participant id; ranking is left to the engine.
func (s *ContestScorer) Aggregate(boards map[string][]model.RankedEntry) []Standing {
	byID := make(map[string]*Standing)
	errored := make(map[string]int)
	present := make(map[string]int)

	for gi, g := range s.games {
		for _, e := range boards[g.ID] {
			st, ok := byID[e.ParticipantID]
			if !ok {
				st = &Standing{ParticipantID: e.ParticipantID, Results: s.emptyResults()}
				byID[e.ParticipantID] = st
			}
			if st.DisplayName == "" {
				st.DisplayName = e.DisplayName
			}
			points := s.Points(g, e)
			st.Results[gi] = GameResult{
				GameID:   g.ID,
				GameName: g.Name,
				Points:   points,
				Rank:     e.Rank,
				HasError: e.HasError(),
				Present:  true,
			}
			st.Total += points
			present[e.ParticipantID]++
			if e.HasError() {
				errored[e.ParticipantID]++
			}
		}
	}

	out := make([]Standing, 0, len(byID))
	for id, st := range byID {
		if present[id] > 0 && errored[id] == present[id] {
			st.ErrorState = ErrorStateNoValidResults
		}
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b Standing) int {
		return strings.Compare(a.ParticipantID, b.ParticipantID)
	})
	return out
}

func (s *ContestScorer) emptyResults() []GameResult {
	res := make([]GameResult, len(s.games))
	for i, g := range s.games {
		res[i] = GameResult{GameID: g.ID, GameName: g.Name}
	}
	return res
}

// Metrics converts standings into a feed for the ranking engine, so contest
// boards follow the same ordering rules as game boards.
func Metrics(standings []Standing) []model.ParticipantMetric {
	out := make([]model.ParticipantMetric, 0, len(standings))
	for _, st := range standings {
		out = append(out, model.ParticipantMetric{
			ParticipantID: st.ParticipantID,
			DisplayName:   st.DisplayName,
			Score:         st.Total,
			ErrorState:    st.ErrorState,
		})
	}
	return out
}
