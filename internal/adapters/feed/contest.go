package feed

import (
	"context"
	"errors"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/scoring"
)

// SnapshotReader reads the latest published snapshot of a board.
type SnapshotReader interface {
	Latest(ctx context.Context, boardID string) (model.Snapshot, error)
}

// ContestSource feeds a contest board by aggregating the latest snapshots
// of its game boards.
type ContestSource struct {
	scorer *scoring.ContestScorer
	reader SnapshotReader
}

// NewContestSource creates a source over the scorer's games.
func NewContestSource(scorer *scoring.ContestScorer, reader SnapshotReader) *ContestSource {
	return &ContestSource{scorer: scorer, reader: reader}
}

// Name identifies the source in logs and metrics.
func (s *ContestSource) Name() string { return "contest" }

// Standings aggregates the current game snapshots. Games that have not
// produced a snapshot yet are treated as not attempted; if none has, the
// feed is unavailable.
func (s *ContestSource) Standings(ctx context.Context) ([]scoring.Standing, error) {
	boards := make(map[string][]model.RankedEntry)
	var lastErr error
	for _, g := range s.scorer.Games() {
		snap, err := s.reader.Latest(ctx, g.ID)
		if err != nil {
			lastErr = err
			continue
		}
		boards[g.ID] = snap.Entries
	}
	if len(boards) == 0 {
		return nil, unavailable(s.Name(), errors.Join(ErrNoGameSnapshots, lastErr))
	}
	return s.scorer.Aggregate(boards), nil
}

// Fetch returns the contest standings as ranking input.
func (s *ContestSource) Fetch(ctx context.Context) ([]model.ParticipantMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(s.Name(), err)
	}
	standings, err := s.Standings(ctx)
	if err != nil {
		return nil, err
	}
	return scoring.Metrics(standings), nil
}
