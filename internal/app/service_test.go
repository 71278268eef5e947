package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	service "github.com/bauman-code-tournament/leaderboard/internal/app"
	"github.com/bauman-code-tournament/leaderboard/internal/adapters/mq/queue"
	"github.com/bauman-code-tournament/leaderboard/internal/adapters/repository"
	"github.com/bauman-code-tournament/leaderboard/internal/config"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/scoring"
	"github.com/bauman-code-tournament/leaderboard/internal/refresh"
	"github.com/bauman-code-tournament/leaderboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// scriptedSource serves whatever feed the test last set.
type scriptedSource struct {
	mu    sync.Mutex
	feed  []model.ParticipantMetric
	calls int
}

func (s *scriptedSource) set(feed ...model.ParticipantMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed = feed
}

func (s *scriptedSource) Fetch(_ context.Context) ([]model.ParticipantMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return append([]model.ParticipantMetric(nil), s.feed...), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qualifier.yaml")
	writeFeed(t, path, `
metrics:
  - {participant_id: t1, display_name: Owls, score: 10}
  - {participant_id: t2, display_name: Foxes, score: 20}
  - {participant_id: t3, display_name: Crows, error: compilation_error}
`)

	cfg := config.New()
	cfg.WorkerCount = 2
	cfg.QueueSize = 16
	cfg.RefreshInterval = time.Hour
	cfg.ContestRefreshInterval = 20 * time.Millisecond
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.Boards = []config.Board{
		{ID: "qualifier", Source: config.SourceFile, Path: path},
		{ID: "round", Name: "Round 1"},
		{ID: "bonus", Source: config.SourceMock},
		{ID: "overall", Kind: config.KindContest, Games: []string{"round", "bonus"}},
	}
	return cfg
}

func writeFeed(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func hasSnapshot(svc *service.Service, boardID string, minSeq uint64) func() bool {
	return func() bool {
		snap, err := svc.Leaderboard(context.Background(), boardID)
		return err == nil && snap.Sequence >= minSeq
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a valid configuration", t, func() {
		svc, err := service.New(testConfig(t))
		So(err, ShouldBeNil)

		Convey("Then every board is described in configuration order", func() {
			boards := svc.Boards(context.Background())
			So(boards, ShouldHaveLength, 4)
			So(boards[0].ID, ShouldEqual, "qualifier")
			So(boards[0].Source, ShouldEqual, config.SourceFile)
			So(boards[1].Name, ShouldEqual, "Round 1")
			So(boards[1].Source, ShouldEqual, config.SourcePush)
			So(boards[3].Kind, ShouldEqual, config.KindContest)
			So(boards[3].Source, ShouldEqual, "contest")
			for _, b := range boards {
				So(b.State, ShouldEqual, "idle")
				So(b.GeneratedAt, ShouldBeNil)
			}
		})

		Convey("Then nothing is readable before Run", func() {
			_, err := svc.Leaderboard(context.Background(), "round")
			So(errors.Is(err, repository.ErrNoSnapshot), ShouldBeTrue)

			_, err = svc.Board(context.Background(), "nope")
			So(errors.Is(err, repository.ErrBoardNotFound), ShouldBeTrue)

			stats := svc.GetStats()
			So(stats.Boards, ShouldEqual, 4)
			So(stats.QueueCapacity, ShouldEqual, 16)
			So(stats.StartedAt.IsZero(), ShouldBeTrue)
		})
	})

	Convey("Given an invalid configuration", t, func() {
		cfg := testConfig(t)
		cfg.Boards = append(cfg.Boards, config.Board{ID: "round"})

		_, err := service.New(cfg)
		So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
	})
}

func TestService_Run(t *testing.T) {
	Convey("Given a running service", t, func() {
		cfg := testConfig(t)
		bonus := &scriptedSource{}
		bonus.set(
			model.ParticipantMetric{ParticipantID: "t1", DisplayName: "Owls", Score: 10},
			model.ParticipantMetric{ParticipantID: "t2", DisplayName: "Foxes", Score: 40},
		)
		svc, err := service.New(cfg, service.WithSource("bonus", bonus))
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		runErr := make(chan error, 1)
		go func() { runErr <- svc.Run(ctx) }()
		defer cancel()

		So(eventually(hasSnapshot(svc, "qualifier", 1)), ShouldBeTrue)

		Convey("Then a second Run is refused", func() {
			So(svc.Run(ctx), ShouldEqual, service.ErrAlreadyRunning)
		})

		Convey("Then polled boards publish ranked snapshots", func() {
			snap, err := svc.Leaderboard(ctx, "qualifier")
			So(err, ShouldBeNil)
			So(snap.Entries, ShouldHaveLength, 3)
			So(snap.Entries[0].ParticipantID, ShouldEqual, "t2")
			So(snap.Entries[2].ErrorState, ShouldEqual, "compilation_error")

			b, err := svc.Board(ctx, "qualifier")
			So(err, ShouldBeNil)
			So(b.State, ShouldEqual, "ready")
			So(b.Entries, ShouldEqual, 3)
			So(b.GeneratedAt, ShouldNotBeNil)
			So(svc.GetStats().StartedAt.IsZero(), ShouldBeFalse)
		})

		Convey("Then a manual refresh re-reads the source", func() {
			writeFeed(t, cfg.Boards[0].Path, `
- {participant_id: t1, display_name: Owls, score: 50}
- {participant_id: t2, display_name: Foxes, score: 20}
`)
			So(svc.Refresh(ctx, "qualifier"), ShouldBeNil)
			So(eventually(hasSnapshot(svc, "qualifier", 2)), ShouldBeTrue)

			entry, err := svc.Rank(ctx, "qualifier", "t1")
			So(err, ShouldBeNil)
			So(entry.Rank, ShouldEqual, 1)
			So(*entry.PreviousRank, ShouldEqual, 2)
			So(entry.Movement(), ShouldEqual, model.MovementUp)
		})

		Convey("Then push boards cannot be refreshed", func() {
			err := svc.Refresh(ctx, "round")
			So(errors.Is(err, refresh.ErrNoSource), ShouldBeTrue)

			err = svc.Refresh(ctx, "nope")
			So(errors.Is(err, repository.ErrBoardNotFound), ShouldBeTrue)
		})

		Convey("When a batch is enqueued for a push board", func() {
			batch := model.Batch{
				BatchID: "b-1",
				BoardID: "round",
				Metrics: []model.ParticipantMetric{
					{ParticipantID: "t1", DisplayName: "Owls", Score: 50},
					{ParticipantID: "t2", DisplayName: "Foxes", Score: 30},
				},
				ReceivedAt: time.Now(),
			}
			So(svc.SeenAndRecord(ctx, "round/b-1"), ShouldBeFalse)
			So(svc.Enqueue(ctx, batch), ShouldBeNil)

			Convey("Then the workers publish it", func() {
				So(eventually(hasSnapshot(svc, "round", 1)), ShouldBeTrue)
				snap, err := svc.Leaderboard(ctx, "round")
				So(err, ShouldBeNil)
				So(snap.Entries[0].ParticipantID, ShouldEqual, "t1")
				So(snap.Entries[0].Score, ShouldEqual, 50)

				stats := svc.GetStats()
				So(stats.Accepted, ShouldEqual, 1)
				So(stats.Workers, ShouldEqual, 2)
				So(eventually(func() bool { return svc.GetStats().Dispatched == 1 }), ShouldBeTrue)
			})

			Convey("Then a repeated batch id is reported as seen", func() {
				So(svc.SeenAndRecord(ctx, "round/b-1"), ShouldBeTrue)
				So(svc.GetStats().Duplicates, ShouldEqual, 1)
				So(svc.Size(), ShouldEqual, 1)

				svc.Unrecord(ctx, "round/b-1")
				So(svc.Size(), ShouldEqual, 0)
			})

			Convey("Then subscribers receive the current snapshot", func() {
				So(eventually(hasSnapshot(svc, "round", 1)), ShouldBeTrue)
				ch, unsubscribe, err := svc.Subscribe("round", 1)
				So(err, ShouldBeNil)
				defer unsubscribe()

				select {
				case snap := <-ch:
					So(snap.BoardID, ShouldEqual, "round")
				case <-time.After(time.Second):
					So("no snapshot delivered", ShouldBeEmpty)
				}
			})

			Convey("Then the contest board aggregates both games", func() {
				total := func() bool {
					_ = svc.Refresh(ctx, "overall")
					snap, err := svc.Leaderboard(ctx, "overall")
					return err == nil && snap.Len() == 2 && snap.Entries[0].Score == 70
				}
				So(eventually(total), ShouldBeTrue)

				snap, err := svc.Leaderboard(ctx, "overall")
				So(err, ShouldBeNil)
				So(snap.Entries[0].ParticipantID, ShouldEqual, "t2")
				So(snap.Entries[1].Score, ShouldEqual, 60)

				standings, err := svc.Standings(ctx, "overall")
				So(err, ShouldBeNil)
				So(standings, ShouldHaveLength, 2)
				So(standings[0].ParticipantID, ShouldEqual, "t2")
				So(standings[0].Results, ShouldHaveLength, 2)
				So(standings[0].Results[0].Points, ShouldEqual, 30)
				So(standings[0].Results[1].Points, ShouldEqual, 40)
			})
		})

		Convey("Then standings are only served for contests", func() {
			_, err := svc.Standings(ctx, "round")
			So(errors.Is(err, scoring.ErrNotContest), ShouldBeTrue)
		})

		Convey("Then batches for unknown boards are refused", func() {
			err := svc.Enqueue(ctx, model.Batch{BatchID: "x", BoardID: "nope"})
			So(errors.Is(err, repository.ErrBoardNotFound), ShouldBeTrue)
			So(svc.GetStats().Accepted, ShouldEqual, 0)
		})

		Convey("When the context is cancelled", func() {
			cancel()

			select {
			case err := <-runErr:
				So(err, ShouldBeNil)
			case <-time.After(5 * time.Second):
				So("service did not stop", ShouldBeEmpty)
			}

			Convey("Then the queue refuses new batches", func() {
				err := svc.Enqueue(context.Background(), model.Batch{BatchID: "late", BoardID: "round"})
				So(errors.Is(err, queue.ErrClosed), ShouldBeTrue)
			})

			Convey("Then boards report closed views but keep their snapshots", func() {
				b, err := svc.Board(context.Background(), "qualifier")
				So(err, ShouldBeNil)
				So(b.State, ShouldEqual, "closed")

				_, err = svc.Leaderboard(context.Background(), "qualifier")
				So(err, ShouldBeNil)
			})
		})
	})
}
