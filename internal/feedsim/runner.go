package feedsim

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/ranking"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/types"
	"github.com/bauman-code-tournament/leaderboard/pkg/logger"
)

// Runner timing constants.
const (
	maxPushAttempts   = 5
	rateLimitBackoff  = 250 * time.Millisecond
	verifyPollEvery   = 100 * time.Millisecond
	verifyPollTimeout = 10 * time.Second
)

type counters struct {
	rounds, submitted, accepted, duplicate, rateLimited, failed atomic.Int64
	verified                                                    atomic.Int64
}

// Run pushes cfg.Rounds batches to every board concurrently and, when
// cfg.Verify is set, checks each final leaderboard against a local ranking
// of the last accepted batch.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	stats := Stats{StartTime: time.Now()}
	if err := cfg.Validate(); err != nil {
		return stats, err
	}
	log := logger.Get().Named("feedsim")
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting feed simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Any("boards", cfg.Boards),
		logger.Int("teams", cfg.Teams),
		logger.Int("rounds", cfg.Rounds),
		logger.Duration("interval", cfg.Interval))

	if err := client.Health(ctx); err != nil {
		return stats, err
	}

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	for i, boardID := range cfg.Boards {
		gen := NewGenerator(cfg.Seed+int64(i), cfg.Teams, cfg.ErrorRate, cfg.ReplayRate)
		g.Go(func() error {
			expected, err := feedBoard(gctx, client, cfg, boardID, gen, &c)
			if err != nil {
				return fmt.Errorf("board %s: %w", boardID, err)
			}
			if !cfg.Verify || expected == nil {
				return nil
			}
			if err := verifyBoard(gctx, client, cfg, boardID, expected); err != nil {
				return fmt.Errorf("board %s: %w", boardID, err)
			}
			c.verified.Add(1)
			log.Info(gctx, "leaderboard verified", logger.String("board", boardID))
			return nil
		})
	}
	err := g.Wait()

	stats.Rounds = c.rounds.Load()
	stats.Submitted = c.submitted.Load()
	stats.Accepted = c.accepted.Load()
	stats.Duplicate = c.duplicate.Load()
	stats.RateLimited = c.rateLimited.Load()
	stats.Failed = c.failed.Load()
	stats.Verified = int(c.verified.Load())
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	log.Info(ctx, "feed simulation finished",
		logger.Int64("submitted", stats.Submitted),
		logger.Int64("accepted", stats.Accepted),
		logger.Int64("duplicate", stats.Duplicate),
		logger.Int64("rateLimited", stats.RateLimited),
		logger.Int64("failed", stats.Failed),
		logger.Int("verified", stats.Verified),
		logger.Duration("duration", stats.Duration))
	return stats, err
}

// feedBoard runs the rounds of one board and returns the last feed the
// service accepted.
func feedBoard(ctx context.Context, client *Client, cfg Config, boardID string, gen *Generator, c *counters) ([]model.ParticipantMetric, error) {
	var expected []model.ParticipantMetric
	for round := range cfg.Rounds {
		batch, replay, err := gen.Next(ctx)
		if err != nil {
			return expected, err
		}
		c.rounds.Add(1)

		result, err := pushWithRetry(ctx, client, boardID, batch, c)
		switch result {
		case ResultAccepted:
			c.accepted.Add(1)
			if !replay {
				expected = gen.LastFeed()
			}
		case ResultDuplicate:
			c.duplicate.Add(1)
		default:
			c.failed.Add(1)
			logger.Get().Named("feedsim").Warn(ctx, "push failed",
				logger.String("board", boardID),
				logger.Int("round", round),
				logger.String("batch_id", batch.BatchID),
				logger.Error(err))
		}
		if ctx.Err() != nil {
			return expected, ctx.Err()
		}

		if round < cfg.Rounds-1 && cfg.Interval > 0 {
			select {
			case <-ctx.Done():
				return expected, ctx.Err()
			case <-time.After(cfg.Interval):
			}
		}
	}
	return expected, nil
}

func pushWithRetry(ctx context.Context, client *Client, boardID string, b Batch, c *counters) (string, error) {
	for attempt := 1; ; attempt++ {
		c.submitted.Add(1)
		result, err := client.Push(ctx, boardID, b)
		if result != ResultRateLimited {
			return result, err
		}
		c.rateLimited.Add(1)
		if attempt == maxPushAttempts {
			return ResultFailed, fmt.Errorf("rate limited %d times", attempt)
		}
		select {
		case <-ctx.Done():
			return ResultFailed, ctx.Err()
		case <-time.After(time.Duration(attempt) * rateLimitBackoff):
		}
	}
}

// verifyBoard polls the leaderboard until it reflects expected. Pushes are
// applied asynchronously, so the first reads may still show older batches.
func verifyBoard(ctx context.Context, client *Client, cfg Config, boardID string, expected []model.ParticipantMetric) error {
	tieBreak, err := ranking.TieBreakByName(cfg.TieBreak)
	if err != nil {
		return err
	}
	want, err := ranking.New(ranking.WithTieBreak(tieBreak)).Rank(expected, nil)
	if err != nil {
		return fmt.Errorf("rank expected feed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, verifyPollTimeout)
	defer cancel()
	ticker := time.NewTicker(verifyPollEvery)
	defer ticker.Stop()

	var lastErr error
	for {
		lb, err := client.Leaderboard(ctx, boardID, len(want))
		if err == nil {
			err = Compare(want, lb)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return lastErr
		case <-ticker.C:
		}
	}
}

// Compare checks that lb lists want in order. A leaderboard capped by the
// server page limit is compared on its returned prefix.
func Compare(want []model.RankedEntry, lb types.Leaderboard) error {
	if lb.Total != len(want) {
		return fmt.Errorf("%w: %d entries, want %d", ErrMismatch, lb.Total, len(want))
	}
	if len(lb.Entries) > len(want) {
		return fmt.Errorf("%w: page has %d entries, want at most %d", ErrMismatch, len(lb.Entries), len(want))
	}
	for i, got := range lb.Entries {
		w := want[i]
		if got.ParticipantID != w.ParticipantID || got.Rank != w.Rank || got.ErrorState != w.ErrorState {
			return fmt.Errorf("%w: position %d is %s (rank %d), want %s (rank %d)",
				ErrMismatch, i, got.ParticipantID, got.Rank, w.ParticipantID, w.Rank)
		}
		if !w.HasError() && got.Score != w.Score {
			return fmt.Errorf("%w: %s scored %v, want %v", ErrMismatch, w.ParticipantID, got.Score, w.Score)
		}
	}
	return nil
}
