// Package refresh drives a leaderboard view through its fetch-and-rank cycle.
package refresh

import (
	"fmt"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/ranking"
)

// State is the lifecycle state of a leaderboard view.
type State int

// View states.
const (
	StateIdle       State = iota // no data yet
	StateLoading                 // first fetch in flight
	StateReady                   // snapshot available
	StateRefreshing              // fetch in flight while the last snapshot is shown
	StateError                   // first fetch failed; waits for an explicit retry
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateRefreshing:
		return "refreshing"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// View owns the displayed snapshot of a single board. It is not safe for
// concurrent use; a Refresher serializes every call in its owner goroutine.
//
// Every started fetch receives a monotonically increasing request sequence.
// Only the result carrying the latest issued sequence is applied.
type View struct {
	boardID string
	engine  *ranking.Engine

	state    State
	reqSeq   uint64
	pending  bool
	snapshot *model.Snapshot
	lastErr  error
}

// NewView creates an idle view for boardID. A nil engine uses the default.
func NewView(boardID string, engine *ranking.Engine) *View {
	if engine == nil {
		engine = ranking.New()
	}
	return &View{boardID: boardID, engine: engine}
}

// State returns the current state.
func (v *View) State() State { return v.state }

// Snapshot returns the displayed snapshot, if any.
func (v *View) Snapshot() (model.Snapshot, bool) {
	if v.snapshot == nil {
		return model.Snapshot{}, false
	}
	return *v.snapshot, true
}

// Err returns the error of the last failed fetch, cleared by a successful one.
func (v *View) Err() error { return v.lastErr }

// Begin starts a fetch and returns its sequence. A fetch already in flight is
// superseded. A view in error state only restarts through Retry.
func (v *View) Begin() (uint64, bool) {
	switch v.state {
	case StateIdle:
		v.state = StateLoading
	case StateReady:
		v.state = StateRefreshing
	case StateLoading, StateRefreshing:
	default:
		return 0, false
	}
	return v.issue(), true
}

// Retry is Begin that also leaves the error state.
func (v *View) Retry() (uint64, bool) {
	if v.state == StateError {
		v.state = StateLoading
		return v.issue(), true
	}
	return v.Begin()
}

func (v *View) issue() uint64 {
	v.reqSeq++
	v.pending = true
	return v.reqSeq
}

// Complete applies fetched metrics for seq. The displayed snapshot becomes
// the engine's previous input and is replaced as a whole. A ranking contract
// violation is handled like a failed fetch and returned.
func (v *View) Complete(seq uint64, metrics []model.ParticipantMetric, now time.Time) (model.Snapshot, error) {
	if err := v.accept(seq); err != nil {
		return model.Snapshot{}, err
	}

	var previous []model.RankedEntry
	var sequence uint64 = 1
	if v.snapshot != nil {
		previous = v.snapshot.Entries
		sequence = v.snapshot.Sequence + 1
	}

	entries, err := v.engine.Rank(metrics, previous)
	if err != nil {
		v.fail(err)
		return model.Snapshot{}, fmt.Errorf("rank board %s: %w", v.boardID, err)
	}

	v.snapshot = &model.Snapshot{
		BoardID:     v.boardID,
		Sequence:    sequence,
		GeneratedAt: now,
		Entries:     entries,
	}
	v.state = StateReady
	v.lastErr = nil
	v.pending = false
	return *v.snapshot, nil
}

// Fail records a failed fetch for seq. The first load moves to the error
// state; a refresh keeps the last good snapshot, marked stale.
func (v *View) Fail(seq uint64, err error) error {
	if acceptErr := v.accept(seq); acceptErr != nil {
		return acceptErr
	}
	v.fail(err)
	return nil
}

func (v *View) fail(err error) {
	v.pending = false
	v.lastErr = err
	switch v.state {
	case StateLoading:
		v.state = StateError
	case StateRefreshing:
		v.state = StateReady
		stale := v.snapshot.MarkStale(err.Error())
		v.snapshot = &stale
	}
}

func (v *View) accept(seq uint64) error {
	switch {
	case v.state == StateClosed:
		return ErrViewClosed
	case !v.pending || seq != v.reqSeq:
		return ErrStaleResponse
	}
	return nil
}

// Close tears the view down. Every later result is discarded.
func (v *View) Close() {
	v.state = StateClosed
	v.pending = false
}
