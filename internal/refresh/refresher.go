package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/ranking"
	"github.com/bauman-code-tournament/leaderboard/pkg/logger"
	"github.com/bauman-code-tournament/leaderboard/pkg/metrics"
)

// Default refresher configuration constants.
const (
	defaultInterval     = 10 * time.Second
	defaultFetchTimeout = 5 * time.Second
	defaultSubBuffer    = 1
)

// Source supplies the metric feed for one refresh cycle.
type Source interface {
	Fetch(ctx context.Context) ([]model.ParticipantMetric, error)
}

// Publisher receives every snapshot the refresher produces.
type Publisher interface {
	Publish(ctx context.Context, snap model.Snapshot) error
}

// Status is a point-in-time copy of a view, safe to read from any goroutine.
type Status struct {
	BoardID   string
	State     State
	Snapshot  *model.Snapshot
	LastError string
}

type commandKind int

const (
	cmdPush commandKind = iota
	cmdRefresh
)

type command struct {
	kind    commandKind
	metrics []model.ParticipantMetric
	reply   chan error
}

type fetchResult struct {
	seq  uint64
	data []model.ParticipantMetric
	err  error
}

type subscriber struct {
	ch chan model.Snapshot
}

// Refresher periodically fetches a board's metrics and ranks them. A single
// goroutine, the one running Run, owns the view; everything else talks to
// it through channels or reads the published Status.
type Refresher struct {
	boardID      string
	interval     time.Duration
	fetchTimeout time.Duration
	source       Source
	sourceName   string
	publisher    Publisher
	engine       *ranking.Engine
	logger       logger.Logger
	now          func() time.Time

	view     *View
	inFlight bool
	// pending is set by a Refresh that arrived while a fetch was in flight.
	pending bool

	inbox    chan command
	results  chan fetchResult
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	running  atomic.Bool

	status atomic.Pointer[Status]

	subsMu     sync.Mutex
	subs       map[uint64]*subscriber
	nextSubID  uint64
	subsClosed bool
}

// New creates a refresher for boardID.
func New(boardID string, opts ...Option) *Refresher {
	r := &Refresher{
		boardID:      boardID,
		interval:     defaultInterval,
		fetchTimeout: defaultFetchTimeout,
		engine:       ranking.New(),
		logger:       logger.Get().Named("refresher"),
		now:          time.Now,
		inbox:        make(chan command),
		results:      make(chan fetchResult, 1),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
		subs:         make(map[uint64]*subscriber),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.String("board", boardID))
	r.view = NewView(boardID, r.engine)
	r.sourceName = "push"
	if n, ok := r.source.(interface{ Name() string }); ok {
		r.sourceName = n.Name()
	}
	r.storeStatus()
	return r
}

// BoardID returns the board this refresher serves.
func (r *Refresher) BoardID() string { return r.boardID }

// Interval returns the configured refresh interval.
func (r *Refresher) Interval() time.Duration { return r.interval }

// Status returns the latest published view status.
func (r *Refresher) Status() Status { return *r.status.Load() }

// State returns the current view state.
func (r *Refresher) State() State { return r.status.Load().State }

// Snapshot returns the displayed snapshot, if any.
func (r *Refresher) Snapshot() (model.Snapshot, bool) {
	s := r.status.Load()
	if s.Snapshot == nil {
		return model.Snapshot{}, false
	}
	return *s.Snapshot, true
}

// Run drives the refresh loop until ctx is cancelled or Stop is called.
// On return the view is closed and results still in flight are dropped.
func (r *Refresher) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer r.shutdown(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info(ctx, "refresher started",
		logger.Duration("interval", r.interval),
		logger.String("feed", r.sourceName))

	if r.source != nil {
		if err := r.poll(ctx, false); err != nil {
			r.logger.Warn(ctx, "initial fetch not started", logger.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stopCh:
			return nil
		case <-ticker.C:
			// one fetch at a time; a failed first load waits for Refresh
			if r.source == nil || r.inFlight || r.view.State() == StateError {
				continue
			}
			if err := r.poll(ctx, false); err != nil {
				r.logger.Warn(ctx, "tick fetch not started", logger.Error(err))
			}
		case res := <-r.results:
			r.inFlight = false
			r.applyFetch(ctx, res)
			if r.pending {
				r.pending = false
				if err := r.poll(ctx, true); err != nil {
					r.logger.Warn(ctx, "pending refresh not started", logger.Error(err))
				}
			}
		case cmd := <-r.inbox:
			cmd.reply <- r.handle(ctx, cmd)
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Done is closed once Run has returned.
func (r *Refresher) Done() <-chan struct{} { return r.done }

// Push ranks an externally supplied feed immediately. Any fetch in flight
// is superseded and its result discarded.
func (r *Refresher) Push(ctx context.Context, feed []model.ParticipantMetric) error {
	return r.send(ctx, command{kind: cmdPush, metrics: feed})
}

// Refresh starts a fetch now. It is the only way out of the error state.
// While a fetch is in flight the new one starts as soon as that result is
// applied; several such requests collapse into one fetch.
func (r *Refresher) Refresh(ctx context.Context) error {
	return r.send(ctx, command{kind: cmdRefresh})
}

func (r *Refresher) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case r.inbox <- cmd:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel receiving every new snapshot, starting with the
// current one. A slow subscriber only ever misses intermediate snapshots; the
// newest always replaces an undelivered older one.
func (r *Refresher) Subscribe(buffer int) (<-chan model.Snapshot, func()) {
	if buffer < defaultSubBuffer {
		buffer = defaultSubBuffer
	}
	sub := &subscriber{ch: make(chan model.Snapshot, buffer)}

	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	if r.subsClosed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := r.nextSubID
	r.nextSubID++
	r.subs[id] = sub
	if snap, ok := r.Snapshot(); ok {
		sub.ch <- snap
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.subsMu.Lock()
			defer r.subsMu.Unlock()
			if _, ok := r.subs[id]; ok {
				delete(r.subs, id)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

func (r *Refresher) handle(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdPush:
		seq, ok := r.view.Retry()
		if !ok {
			return ErrViewClosed
		}
		return r.apply(ctx, seq, cmd.metrics)
	case cmdRefresh:
		metrics.RecordRefreshRetry(r.boardID)
		if r.source == nil {
			return ErrNoSource
		}
		if r.inFlight {
			// the fetch in flight may predate the data this refresh asks for
			r.pending = true
			return nil
		}
		return r.poll(ctx, true)
	default:
		return nil
	}
}

// poll starts an asynchronous fetch. The fetch is the only suspension point
// of a cycle; its result comes back through r.results.
func (r *Refresher) poll(ctx context.Context, retry bool) error {
	var (
		seq uint64
		ok  bool
	)
	if retry {
		seq, ok = r.view.Retry()
	} else {
		seq, ok = r.view.Begin()
	}
	if !ok {
		return ErrViewClosed
	}
	r.inFlight = true
	r.sync(ctx, false)

	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	go func() {
		defer cancel()
		start := time.Now()
		data, err := r.source.Fetch(fetchCtx)
		metrics.RecordFeedFetch(r.sourceName, float64(time.Since(start).Nanoseconds())/1e6, err != nil)
		select {
		case r.results <- fetchResult{seq: seq, data: data, err: err}:
		case <-r.done:
		}
	}()
	return nil
}

func (r *Refresher) applyFetch(ctx context.Context, res fetchResult) {
	if res.err == nil {
		_ = r.apply(ctx, res.seq, res.data)
		return
	}
	err := r.view.Fail(res.seq, res.err)
	switch {
	case errors.Is(err, ErrStaleResponse):
		metrics.RecordStaleResponse(r.boardID)
		r.logger.Debug(ctx, "stale fetch failure discarded", logger.Uint64("seq", res.seq))
		return
	case err != nil:
		return
	}
	metrics.RecordErrorByComponent("refresher", "fetch")
	r.logger.Warn(ctx, "fetch failed",
		logger.Error(res.err),
		logger.String("state", r.view.State().String()))
	r.sync(ctx, true)
}

func (r *Refresher) apply(ctx context.Context, seq uint64, data []model.ParticipantMetric) error {
	start := time.Now()
	snap, err := r.view.Complete(seq, data, r.now())
	switch {
	case errors.Is(err, ErrStaleResponse):
		metrics.RecordStaleResponse(r.boardID)
		r.logger.Debug(ctx, "stale fetch result discarded", logger.Uint64("seq", seq))
		return err
	case errors.Is(err, ErrViewClosed):
		return err
	case err != nil:
		if errors.Is(err, ranking.ErrDuplicateParticipant) {
			metrics.RecordDuplicateRejection(r.boardID)
		}
		metrics.RecordErrorByComponent("refresher", "rank")
		r.logger.Error(ctx, "feed rejected", logger.Error(err))
		r.sync(ctx, true)
		return err
	}

	metrics.RecordIngestLatency(r.boardID, float64(time.Since(start).Nanoseconds())/1e6)
	metrics.RecordSnapshotPublished(r.boardID, snap.Len(), snap.ErrorEntries(), float64(snap.GeneratedAt.Unix()))
	r.logger.Debug(ctx, "snapshot ranked",
		logger.Uint64("sequence", snap.Sequence),
		logger.Int("entries", snap.Len()))
	r.sync(ctx, true)
	return nil
}

// sync publishes the view status and, when the snapshot changed, hands it
// to the publisher and subscribers.
func (r *Refresher) sync(ctx context.Context, snapshotChanged bool) {
	r.storeStatus()
	status := r.status.Load()
	if err := metrics.UpdateViewState(r.boardID, status.State.String()); err != nil {
		r.logger.Debug(ctx, "view state not exported", logger.Error(err))
	}
	if !snapshotChanged || status.Snapshot == nil {
		return
	}
	snap := *status.Snapshot
	metrics.UpdateViewStale(r.boardID, snap.Stale)
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, snap); err != nil {
			r.logger.Error(ctx, "publish snapshot failed", logger.Error(err))
		}
	}
	r.fanout(snap)
}

func (r *Refresher) storeStatus() {
	st := &Status{BoardID: r.boardID, State: r.view.State()}
	if snap, ok := r.view.Snapshot(); ok {
		st.Snapshot = &snap
	}
	if err := r.view.Err(); err != nil {
		st.LastError = err.Error()
	}
	r.status.Store(st)
}

func (r *Refresher) fanout(snap model.Snapshot) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, sub := range r.subs {
		select {
		case sub.ch <- snap:
			continue
		default:
		}
		// latest wins: evict the oldest undelivered snapshot
		select {
		case <-sub.ch:
			metrics.RecordSubscriberDrop(r.boardID)
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}

func (r *Refresher) shutdown(ctx context.Context) {
	r.view.Close()
	r.storeStatus()
	if err := metrics.UpdateViewState(r.boardID, StateClosed.String()); err != nil {
		r.logger.Debug(ctx, "view state not exported", logger.Error(err))
	}
	close(r.done)

	r.subsMu.Lock()
	r.subsClosed = true
	for id, sub := range r.subs {
		delete(r.subs, id)
		close(sub.ch)
	}
	r.subsMu.Unlock()
	r.logger.Info(ctx, "refresher stopped")
}
