package repository

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/pkg/metrics"
)

const defaultMaxLimit = 1000

// published is an immutable snapshot plus a participant index for O(1) rank
// lookups. It is replaced as a whole, never modified.
type published struct {
	snap  model.Snapshot
	index map[string]int
}

type board struct {
	current atomic.Pointer[published]
}

// SnapshotStore keeps the latest snapshot of every board. Reads are lock-free
// loads of the published pointer; the mutex only guards the board registry.
type SnapshotStore struct {
	mu           sync.RWMutex
	boards       map[string]*board
	order        []string
	maxLimit     int
	autoRegister bool
}

var _ Store = (*SnapshotStore)(nil)

// NewSnapshotStore constructs an empty store.
func NewSnapshotStore(opts ...Option) *SnapshotStore {
	s := &SnapshotStore{
		boards:   make(map[string]*board),
		maxLimit: defaultMaxLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a board. Publishing to an unregistered board fails unless
// the store was built WithAutoRegister.
func (s *SnapshotStore) Register(boardID string) error {
	if boardID == "" {
		return ErrEmptyBoardID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.boards[boardID]; ok {
		return ErrBoardExists
	}
	s.addLocked(boardID)
	return nil
}

func (s *SnapshotStore) addLocked(boardID string) *board {
	b := &board{}
	s.boards[boardID] = b
	s.order = append(s.order, boardID)
	metrics.UpdateStoreBoards(len(s.order))
	return b
}

func (s *SnapshotStore) lookup(boardID string, create bool) (*board, error) {
	s.mu.RLock()
	b, ok := s.boards[boardID]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}
	if !create || boardID == "" {
		return nil, ErrBoardNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.boards[boardID]; ok {
		return b, nil
	}
	return s.addLocked(boardID), nil
}

// Publish stores snap as the board's current snapshot. A snapshot with a
// lower sequence than the stored one is rejected; an equal sequence replaces
// it, which is how a stale flag is applied to the same ranking.
func (s *SnapshotStore) Publish(_ context.Context, snap model.Snapshot) error {
	b, err := s.lookup(snap.BoardID, s.autoRegister)
	if err != nil {
		return err
	}

	snap.Entries = slices.Clone(snap.Entries)
	next := &published{snap: snap, index: make(map[string]int, len(snap.Entries))}
	for i, e := range snap.Entries {
		next.index[e.ParticipantID] = i
	}

	for {
		cur := b.current.Load()
		if cur != nil && snap.Sequence < cur.snap.Sequence {
			return ErrOutdatedSnapshot
		}
		if b.current.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

func (s *SnapshotStore) load(boardID string) (*published, error) {
	b, err := s.lookup(boardID, false)
	if err != nil {
		return nil, err
	}
	p := b.current.Load()
	if p == nil {
		return nil, ErrNoSnapshot
	}
	return p, nil
}

// Latest returns the board's current snapshot. Its entries must be treated
// as read-only.
func (s *SnapshotStore) Latest(_ context.Context, boardID string) (model.Snapshot, error) {
	start := time.Now()
	defer observe("latest", start)

	p, err := s.load(boardID)
	if err != nil {
		return model.Snapshot{}, err
	}
	return p.snap, nil
}

// TopN returns a copy of at most n leading entries, capped by the store's
// maximum limit.
func (s *SnapshotStore) TopN(_ context.Context, boardID string, n int) ([]model.RankedEntry, error) {
	start := time.Now()
	defer observe("top_n", start)

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	p, err := s.load(boardID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(p.snap.Top(min(n, s.maxLimit))), nil
}

// Rank returns the entry of a single participant.
func (s *SnapshotStore) Rank(_ context.Context, boardID, participantID string) (model.RankedEntry, error) {
	start := time.Now()
	defer observe("rank", start)

	p, err := s.load(boardID)
	if err != nil {
		return model.RankedEntry{}, err
	}
	i, ok := p.index[participantID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.RankedEntry{}, ErrNotFound
	}
	return p.snap.Entries[i], nil
}

// Count returns the number of entries in the board's snapshot, zero if
// nothing was published yet.
func (s *SnapshotStore) Count(_ context.Context, boardID string) (int, error) {
	p, err := s.load(boardID)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return p.snap.Len(), nil
}

// Boards lists registered boards in registration order.
func (s *SnapshotStore) Boards() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreQueryLatency(op, float64(time.Since(start).Microseconds())/1000)
}
