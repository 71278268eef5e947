// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/adapters/feed"
	"github.com/bauman-code-tournament/leaderboard/internal/adapters/mq/queue"
	"github.com/bauman-code-tournament/leaderboard/internal/adapters/mq/worker"
	"github.com/bauman-code-tournament/leaderboard/internal/adapters/repository"
	"github.com/bauman-code-tournament/leaderboard/internal/config"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/dedupe"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/ranking"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/scoring"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/types"
	"github.com/bauman-code-tournament/leaderboard/internal/refresh"
	"github.com/bauman-code-tournament/leaderboard/pkg/logger"
	"github.com/bauman-code-tournament/leaderboard/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// board is one configured leaderboard and the refresher that maintains it.
type board struct {
	def       config.Board
	refresher *refresh.Refresher
	contest   *feed.ContestSource
}

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	cfg *config.Config

	// Core components
	store   *repository.SnapshotStore
	engine  *ranking.Engine
	deduper *dedupe.InMemoryDeduper
	queue   *queue.InMemoryQueue
	pool    *worker.Pool
	boards  map[string]*board
	order   []string

	sourceOverrides map[string]refresh.Source
	now             func() time.Time

	// State
	running    atomic.Bool
	startedAt  atomic.Pointer[time.Time]
	accepted   atomic.Int64
	duplicates atomic.Int64

	logger logger.Logger
}

// New builds every component described by cfg. Nothing runs until Run.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:             cfg,
		boards:          make(map[string]*board, len(cfg.Boards)),
		sourceOverrides: make(map[string]refresh.Source),
		now:             time.Now,
		logger:          logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	tieBreak, err := ranking.TieBreakByName(cfg.TieBreak)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	s.engine = ranking.New(ranking.WithTieBreak(tieBreak))
	s.store = repository.NewSnapshotStore(repository.WithMaxLimit(cfg.MaxLeaderboardLimit))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	s.pool = worker.NewPool(cfg.WorkerCount, s.queue, s)

	for _, def := range cfg.Boards {
		if err := s.store.Register(def.ID); err != nil {
			return nil, fmt.Errorf("register board %s: %w", def.ID, err)
		}
		b, err := s.newBoard(def)
		if err != nil {
			return nil, err
		}
		s.boards[def.ID] = b
		s.order = append(s.order, def.ID)
	}
	metrics.UpdateStoreBoards(len(s.order))
	return s, nil
}

func (s *Service) newBoard(def config.Board) (*board, error) {
	b := &board{def: def}
	opts := []refresh.Option{
		refresh.WithInterval(s.cfg.IntervalFor(def)),
		refresh.WithFetchTimeout(s.cfg.FetchTimeout),
		refresh.WithPublisher(s.store),
		refresh.WithEngine(s.engine),
		refresh.WithClock(s.now),
	}

	switch def.Kind {
	case config.KindContest:
		games := make([]scoring.Game, 0, len(def.Games))
		for _, id := range def.Games {
			game, _ := s.cfg.Board(id)
			games = append(games, scoring.Game{
				ID:        id,
				Name:      game.Name,
				MaxPoints: game.MaxPoints,
				Weight:    def.Weights[id],
			})
		}
		scorer, err := scoring.NewContestScorer(games)
		if err != nil {
			return nil, fmt.Errorf("contest %s: %w", def.ID, err)
		}
		b.contest = feed.NewContestSource(scorer, s.store)
		opts = append(opts, refresh.WithSource(b.contest))
	default:
		if src := s.sourceFor(def); src != nil {
			opts = append(opts, refresh.WithSource(src))
		}
	}

	b.refresher = refresh.New(def.ID, opts...)
	return b, nil
}

func (s *Service) sourceFor(def config.Board) refresh.Source {
	if src, ok := s.sourceOverrides[def.ID]; ok {
		return src
	}
	switch def.Source {
	case config.SourceMock:
		var opts []feed.MockOption
		if def.Teams > 0 {
			opts = append(opts, feed.WithMockTeams(def.Teams))
		}
		return feed.NewMockSource(def.Seed, opts...)
	case config.SourceFile:
		return feed.NewFileSource(def.Path)
	case config.SourceHTTP:
		return feed.NewHTTPSource(def.URL)
	default:
		return nil
	}
}

// Run starts every refresher and the push workers, and blocks until ctx is
// done or a loop fails. Queued pushes are drained before the refreshers stop.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	started := s.now()
	s.startedAt.Store(&started)

	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	g, gctx := errgroup.WithContext(base)

	for _, id := range s.order {
		b := s.boards[id]
		g.Go(func() error {
			if err := b.refresher.Run(gctx); err != nil {
				return fmt.Errorf("board %s: %w", id, err)
			}
			return nil
		})
		if b.contest != nil {
			g.Go(func() error {
				s.followGames(gctx, b)
				return nil
			})
		}
	}
	s.pool.Start(gctx)

	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("boards", len(s.order)),
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
	)

	select {
	case <-ctx.Done():
	case <-gctx.Done():
	}

	s.logger.Info(ctx, "stopping leaderboard service...")
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer stop()
	poolErr := s.pool.Shutdown(shutdownCtx)
	cancel()
	err := errors.Join(g.Wait(), poolErr)
	s.logger.Info(ctx, "leaderboard service stopped")
	return err
}

// followGames refreshes a contest board whenever one of its game boards
// publishes a new snapshot.
func (s *Service) followGames(ctx context.Context, contest *board) {
	updates := make(chan struct{}, 1)
	for _, id := range contest.def.Games {
		ch, unsubscribe := s.boards[id].refresher.Subscribe(1)
		go func() {
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-ch:
					if !ok {
						return
					}
					select {
					case updates <- struct{}{}:
					default:
					}
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := contest.refresher.Refresh(ctx); err != nil && !errors.Is(err, refresh.ErrStopped) && ctx.Err() == nil {
				s.logger.Warn(ctx, "contest refresh failed",
					logger.String("board", contest.def.ID), logger.Error(err))
			}
		}
	}
}

func (s *Service) lookup(boardID string) (*board, error) {
	b, ok := s.boards[boardID]
	if !ok {
		return nil, fmt.Errorf("board %q: %w", boardID, repository.ErrBoardNotFound)
	}
	return b, nil
}

// Leaderboard returns the latest published snapshot of a board.
func (s *Service) Leaderboard(ctx context.Context, boardID string) (model.Snapshot, error) {
	return s.store.Latest(ctx, boardID)
}

// Rank returns a participant's entry in the latest snapshot of a board.
func (s *Service) Rank(ctx context.Context, boardID, participantID string) (model.RankedEntry, error) {
	return s.store.Rank(ctx, boardID, participantID)
}

// Standings returns the per-game breakdown of a contest board, ordered like
// its latest snapshot. Teams the snapshot does not list yet come last.
func (s *Service) Standings(ctx context.Context, boardID string) ([]scoring.Standing, error) {
	b, err := s.lookup(boardID)
	if err != nil {
		return nil, err
	}
	if b.contest == nil {
		return nil, fmt.Errorf("board %q: %w", boardID, scoring.ErrNotContest)
	}
	standings, err := b.contest.Standings(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Latest(ctx, boardID)
	if err != nil {
		return standings, nil
	}
	ranks := make(map[string]int, snap.Len())
	for _, e := range snap.Entries {
		ranks[e.ParticipantID] = e.Rank
	}
	rankOf := func(id string) int {
		if r, ok := ranks[id]; ok {
			return r
		}
		return math.MaxInt
	}
	slices.SortStableFunc(standings, func(a, b scoring.Standing) int {
		return cmp.Compare(rankOf(a.ParticipantID), rankOf(b.ParticipantID))
	})
	return standings, nil
}

// Boards describes every configured board in configuration order.
func (s *Service) Boards(_ context.Context) []types.Board {
	out := make([]types.Board, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.describe(s.boards[id]))
	}
	return out
}

// Board describes one board.
func (s *Service) Board(_ context.Context, boardID string) (types.Board, error) {
	b, err := s.lookup(boardID)
	if err != nil {
		return types.Board{}, err
	}
	return s.describe(b), nil
}

func (s *Service) describe(b *board) types.Board {
	st := b.refresher.Status()
	out := types.Board{
		ID:        b.def.ID,
		Name:      b.def.Name,
		Kind:      b.def.Kind,
		Source:    b.def.Source,
		State:     st.State.String(),
		LastError: st.LastError,
	}
	if b.contest != nil {
		out.Source = b.contest.Name()
	}
	if snap := st.Snapshot; snap != nil {
		at := snap.GeneratedAt
		out.Sequence = snap.Sequence
		out.Entries = snap.Len()
		out.Stale = snap.Stale
		out.GeneratedAt = &at
	}
	return out
}

// Subscribe streams the snapshots of a board.
func (s *Service) Subscribe(boardID string, buffer int) (<-chan model.Snapshot, func(), error) {
	b, err := s.lookup(boardID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := b.refresher.Subscribe(buffer)
	return ch, cancel, nil
}

// SeenAndRecord atomically checks if a batch key was seen and records it if
// not. Returns true if the batch was already seen.
func (s *Service) SeenAndRecord(ctx context.Context, key string) bool {
	seen := s.deduper.SeenAndRecord(ctx, key)
	if seen {
		s.duplicates.Add(1)
	}
	return seen
}

// Unrecord removes a batch key from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, key string) {
	s.deduper.Unrecord(ctx, key)
}

// Size returns the current number of remembered batch keys.
func (s *Service) Size() int {
	return s.deduper.Size()
}

// Enqueue hands a batch to the push workers.
func (s *Service) Enqueue(ctx context.Context, b model.Batch) error {
	if _, err := s.lookup(b.BoardID); err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, b); err != nil {
		return fmt.Errorf("enqueue batch %s: %w", b.BatchID, err)
	}
	s.accepted.Add(1)
	s.logger.Debug(ctx, "batch enqueued",
		logger.String("batch_id", b.BatchID),
		logger.String("board", b.BoardID),
		logger.Int("metrics", len(b.Metrics)))
	return nil
}

// Push applies a feed to a board. The worker pool calls it for queued batches.
func (s *Service) Push(ctx context.Context, boardID string, feed []model.ParticipantMetric) error {
	b, err := s.lookup(boardID)
	if err != nil {
		return err
	}
	return b.refresher.Push(ctx, feed)
}

// Refresh asks a polled board to fetch now. It also recovers a board whose
// first load failed.
func (s *Service) Refresh(ctx context.Context, boardID string) error {
	b, err := s.lookup(boardID)
	if err != nil {
		return err
	}
	return b.refresher.Refresh(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() types.Stats {
	pool := s.pool.Stats()
	stats := types.Stats{
		Boards:        len(s.order),
		QueueLength:   s.queue.Len(),
		QueueCapacity: s.queue.Capacity(),
		DedupeSize:    s.deduper.Size(),
		Workers:       pool.Workers,
		Dispatched:    pool.Dispatched,
		Failed:        pool.Failed,
		Accepted:      s.accepted.Load(),
		Duplicates:    s.duplicates.Load(),
	}
	if started := s.startedAt.Load(); started != nil {
		stats.StartedAt = *started
		stats.UptimeSeconds = s.now().Sub(*started).Seconds()
	}
	return stats
}
