package refresh_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/refresh"
	"github.com/bauman-code-tournament/leaderboard/pkg/logger"
)

const waitFor = 2 * time.Second

// funcSource adapts a function to refresh.Source and counts calls.
type funcSource struct {
	calls atomic.Int32
	fetch func(ctx context.Context, call int) ([]model.ParticipantMetric, error)
}

func (s *funcSource) Fetch(ctx context.Context) ([]model.ParticipantMetric, error) {
	return s.fetch(ctx, int(s.calls.Add(1)))
}

func (s *funcSource) Name() string { return "func" }

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []model.Snapshot
}

func (p *recordingPublisher) Publish(_ context.Context, snap model.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func receive(ch <-chan model.Snapshot) (model.Snapshot, bool) {
	select {
	case snap, ok := <-ch:
		return snap, ok
	case <-time.After(waitFor):
		return model.Snapshot{}, false
	}
}

func start(r *refresh.Refresher) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	return cancel, errCh
}

func TestRefresherPush(t *testing.T) {
	Convey("Given a push-only refresher with a publisher and a subscriber", t, func() {
		pub := &recordingPublisher{}
		r := refresh.New("push", refresh.WithPublisher(pub), refresh.WithClock(func() time.Time { return t0 }))
		cancel, errCh := start(r)
		defer cancel()

		updates, unsubscribe := r.Subscribe(4)
		defer unsubscribe()

		Convey("When two feeds are pushed", func() {
			So(r.Push(context.Background(), feedOne), ShouldBeNil)
			So(r.Push(context.Background(), feedTwo), ShouldBeNil)

			Convey("Then subscribers see both snapshots in order", func() {
				first, ok := receive(updates)
				So(ok, ShouldBeTrue)
				second, ok := receive(updates)
				So(ok, ShouldBeTrue)
				So(first.Sequence, ShouldEqual, 1)
				So(second.Sequence, ShouldEqual, 2)
				So(*second.Entries[0].RankDelta, ShouldEqual, 1)
			})

			Convey("Then the publisher and status hold the latest snapshot", func() {
				So(pub.count(), ShouldEqual, 2)
				So(r.State(), ShouldEqual, refresh.StateReady)
				snap, ok := r.Snapshot()
				So(ok, ShouldBeTrue)
				So(snap.GeneratedAt, ShouldEqual, t0)
				So(snap.Sequence, ShouldEqual, 2)
			})
		})

		Convey("When a malformed feed is pushed", func() {
			So(r.Push(context.Background(), feedOne), ShouldBeNil)
			err := r.Push(context.Background(), feedDupe)

			Convey("Then the push fails and the last snapshot is kept stale", func() {
				So(err, ShouldNotBeNil)
				snap, ok := r.Snapshot()
				So(ok, ShouldBeTrue)
				So(snap.Stale, ShouldBeTrue)
				So(snap.Sequence, ShouldEqual, 1)
			})
		})

		Convey("When refresh is requested without a source", func() {
			So(r.Refresh(context.Background()), ShouldEqual, refresh.ErrNoSource)
		})

		Convey("When the refresher stops", func() {
			r.Stop()
			So(<-errCh, ShouldBeNil)

			Convey("Then pushes fail and subscriptions are closed", func() {
				So(r.Push(context.Background(), feedOne), ShouldEqual, refresh.ErrStopped)
				_, ok := <-updates
				So(ok, ShouldBeFalse)
				So(r.State(), ShouldEqual, refresh.StateClosed)

				late, _ := r.Subscribe(1)
				_, ok = <-late
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestRefresherPolling(t *testing.T) {
	Convey("Given a refresher polling a healthy source", t, func() {
		src := &funcSource{fetch: func(_ context.Context, call int) ([]model.ParticipantMetric, error) {
			return []model.ParticipantMetric{
				{ParticipantID: "a", Score: float64(call)},
				{ParticipantID: "b", Score: 2},
			}, nil
		}}
		r := refresh.New("poll", refresh.WithSource(src), refresh.WithInterval(10*time.Millisecond))
		cancel, _ := start(r)
		defer cancel()

		Convey("Then snapshots keep advancing on the timer", func() {
			So(eventually(func() bool {
				snap, ok := r.Snapshot()
				return ok && snap.Sequence >= 3
			}), ShouldBeTrue)
			So(r.Status().LastError, ShouldBeEmpty)
		})
	})

	Convey("Given a source whose first fetch fails", t, func() {
		src := &funcSource{fetch: func(_ context.Context, call int) ([]model.ParticipantMetric, error) {
			if call == 1 {
				return nil, errFeed
			}
			return feedOne, nil
		}}
		r := refresh.New("failing", refresh.WithSource(src), refresh.WithInterval(10*time.Millisecond))
		cancel, _ := start(r)
		defer cancel()

		Convey("Then the view stays in error until an explicit refresh", func() {
			So(eventually(func() bool { return r.State() == refresh.StateError }), ShouldBeTrue)
			So(r.Status().LastError, ShouldEqual, "feed down")

			time.Sleep(50 * time.Millisecond)
			So(src.calls.Load(), ShouldEqual, 1)

			So(r.Refresh(context.Background()), ShouldBeNil)
			So(eventually(func() bool { return r.State() == refresh.StateReady }), ShouldBeTrue)
			snap, _ := r.Snapshot()
			So(snap.Entries, ShouldHaveLength, 2)
		})
	})

	Convey("Given a source that fails after the first load", t, func() {
		src := &funcSource{fetch: func(_ context.Context, call int) ([]model.ParticipantMetric, error) {
			if call > 1 {
				return nil, errFeed
			}
			return feedOne, nil
		}}
		r := refresh.New("flaky", refresh.WithSource(src), refresh.WithInterval(10*time.Millisecond))
		cancel, _ := start(r)
		defer cancel()

		Convey("Then the last good snapshot is shown stale", func() {
			So(eventually(func() bool {
				snap, ok := r.Snapshot()
				return ok && snap.Stale
			}), ShouldBeTrue)
			snap, _ := r.Snapshot()
			So(snap.Sequence, ShouldEqual, 1)
			So(snap.LastError, ShouldEqual, "feed down")
			So(r.State(), ShouldNotEqual, refresh.StateError)
		})
	})
}

func TestRefresherStaleFetchDiscarded(t *testing.T) {
	Convey("Given a fetch that is still in flight", t, func() {
		release := make(chan struct{})
		src := &funcSource{fetch: func(ctx context.Context, _ int) ([]model.ParticipantMetric, error) {
			select {
			case <-release:
				return feedTwo, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}}
		r := refresh.New("guarded", refresh.WithSource(src), refresh.WithInterval(time.Hour), refresh.WithFetchTimeout(time.Minute))
		cancel, _ := start(r)
		defer cancel()
		So(eventually(func() bool { return src.calls.Load() == 1 }), ShouldBeTrue)

		Convey("When a push lands before the fetch returns", func() {
			So(r.Push(context.Background(), feedOne), ShouldBeNil)
			pushed, _ := r.Snapshot()
			close(release)
			time.Sleep(50 * time.Millisecond)

			Convey("Then the late fetch result does not overwrite the pushed snapshot", func() {
				snap, ok := r.Snapshot()
				So(ok, ShouldBeTrue)
				So(cmp.Diff(pushed, snap), ShouldBeEmpty)
				So(r.State(), ShouldEqual, refresh.StateReady)
			})
		})
	})
}

func TestRefresherRefreshDuringFetch(t *testing.T) {
	Convey("Given a fetch that is still in flight", t, func() {
		release := make(chan struct{})
		src := &funcSource{fetch: func(ctx context.Context, call int) ([]model.ParticipantMetric, error) {
			if call == 1 {
				select {
				case <-release:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return []model.ParticipantMetric{{ParticipantID: "a", Score: float64(call)}}, nil
		}}
		r := refresh.New("catchup", refresh.WithSource(src), refresh.WithInterval(time.Hour), refresh.WithFetchTimeout(time.Minute))
		cancel, _ := start(r)
		defer cancel()
		So(eventually(func() bool { return src.calls.Load() == 1 }), ShouldBeTrue)

		Convey("When refresh is requested twice before it returns", func() {
			So(r.Refresh(context.Background()), ShouldBeNil)
			So(r.Refresh(context.Background()), ShouldBeNil)
			So(src.calls.Load(), ShouldEqual, 1)
			close(release)

			Convey("Then one more fetch runs after the first result", func() {
				So(eventually(func() bool {
					snap, ok := r.Snapshot()
					return ok && snap.Sequence == 2 && snap.Entries[0].Score == 2
				}), ShouldBeTrue)
				time.Sleep(50 * time.Millisecond)
				So(src.calls.Load(), ShouldEqual, 2)
				So(r.State(), ShouldEqual, refresh.StateReady)
			})
		})
	})
}

func TestRefresherSlowSubscriber(t *testing.T) {
	Convey("Given a subscriber that never reads", t, func() {
		r := refresh.New("slow")
		cancel, _ := start(r)
		defer cancel()
		updates, unsubscribe := r.Subscribe(1)
		defer unsubscribe()

		Convey("When several snapshots are produced", func() {
			So(r.Push(context.Background(), feedOne), ShouldBeNil)
			So(r.Push(context.Background(), feedTwo), ShouldBeNil)
			So(r.Push(context.Background(), feedOne), ShouldBeNil)

			Convey("Then only the newest one is waiting", func() {
				snap, ok := receive(updates)
				So(ok, ShouldBeTrue)
				So(snap.Sequence, ShouldEqual, 3)
			})
		})
	})

	Convey("Given a refresher that already has a snapshot", t, func() {
		r := refresh.New("late")
		cancel, _ := start(r)
		defer cancel()
		So(r.Push(context.Background(), feedOne), ShouldBeNil)

		Convey("Then a new subscriber receives it immediately", func() {
			updates, unsubscribe := r.Subscribe(0)
			snap, ok := receive(updates)
			So(ok, ShouldBeTrue)
			So(snap.Sequence, ShouldEqual, 1)

			unsubscribe()
			unsubscribe()
			_, ok = <-updates
			So(ok, ShouldBeFalse)
		})
	})
}

// lockedBuffer is a bytes.Buffer safe for the refresher goroutine to write.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRefresherLogFields(t *testing.T) {
	Convey("Given a refresher logging JSON", t, func() {
		out := &lockedBuffer{}
		So(logger.Init(logger.WithFormat(logger.FormatJSON), logger.WithOutput(out)), ShouldBeNil)
		defer func() { _ = logger.Init() }()

		src := &funcSource{fetch: func(context.Context, int) ([]model.ParticipantMetric, error) { return feedOne, nil }}
		r := refresh.New("logged", refresh.WithSource(src), refresh.WithInterval(time.Hour), refresh.WithLogger(logger.Get()))
		cancel, errCh := start(r)
		So(eventually(func() bool { return r.State() == refresh.StateReady }), ShouldBeTrue)
		cancel()
		So(<-errCh, ShouldBeNil)

		Convey("Then the feed name does not collide with the caller location", func() {
			var line map[string]any
			for _, raw := range strings.Split(strings.TrimSpace(out.String()), "\n") {
				if strings.Contains(raw, "refresher started") {
					So(json.Unmarshal([]byte(raw), &line), ShouldBeNil)
					So(strings.Count(raw, `"source":`), ShouldEqual, 1)
				}
			}
			So(line, ShouldNotBeNil)
			So(line["feed"], ShouldEqual, "func")
			So(line["source"], ShouldContainSubstring, "refresher.go")
		})
	})
}

func TestRefresherRunTwice(t *testing.T) {
	Convey("Given a running refresher", t, func() {
		r := refresh.New("twice")
		cancel, errCh := start(r)
		So(eventually(func() bool {
			return r.Push(context.Background(), feedOne) == nil
		}), ShouldBeTrue)

		Convey("Then a second Run is rejected", func() {
			So(r.Run(context.Background()), ShouldEqual, refresh.ErrRunning)
			cancel()
			So(<-errCh, ShouldBeNil)
			<-r.Done()
		})
	})
}
