package refresh_test

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/ranking"
	"github.com/bauman-code-tournament/leaderboard/internal/refresh"
)

var (
	t0       = time.Date(2024, 4, 12, 10, 0, 0, 0, time.UTC)
	errFeed  = errors.New("feed down")
	feedOne  = []model.ParticipantMetric{{ParticipantID: "a", Score: 10}, {ParticipantID: "b", Score: 20}}
	feedTwo  = []model.ParticipantMetric{{ParticipantID: "a", Score: 30}, {ParticipantID: "b", Score: 20}}
	feedDupe = []model.ParticipantMetric{{ParticipantID: "a", Score: 1}, {ParticipantID: "a", Score: 2}}
)

func TestViewLifecycle(t *testing.T) {
	Convey("Given a new view", t, func() {
		v := refresh.NewView("main", nil)

		Convey("Then it starts idle without a snapshot", func() {
			So(v.State(), ShouldEqual, refresh.StateIdle)
			_, ok := v.Snapshot()
			So(ok, ShouldBeFalse)
		})

		Convey("When the first fetch completes", func() {
			seq, ok := v.Begin()
			So(ok, ShouldBeTrue)
			So(v.State(), ShouldEqual, refresh.StateLoading)

			snap, err := v.Complete(seq, feedOne, t0)

			Convey("Then the view is ready with sequence 1", func() {
				So(err, ShouldBeNil)
				So(v.State(), ShouldEqual, refresh.StateReady)
				So(snap.Sequence, ShouldEqual, 1)
				So(snap.BoardID, ShouldEqual, "main")
				So(snap.GeneratedAt, ShouldEqual, t0)
				So(snap.Entries[0].ParticipantID, ShouldEqual, "b")
			})

			Convey("And a refresh uses the displayed snapshot as previous", func() {
				seq, ok := v.Begin()
				So(ok, ShouldBeTrue)
				So(v.State(), ShouldEqual, refresh.StateRefreshing)

				snap, err := v.Complete(seq, feedTwo, t0.Add(time.Second))
				So(err, ShouldBeNil)
				So(snap.Sequence, ShouldEqual, 2)
				So(snap.Entries[0].ParticipantID, ShouldEqual, "a")
				So(*snap.Entries[0].RankDelta, ShouldEqual, 1)
				So(*snap.Entries[0].ScoreDelta, ShouldEqual, 20)
			})
		})
	})
}

func TestViewFailures(t *testing.T) {
	Convey("Given a view loading its first snapshot", t, func() {
		v := refresh.NewView("main", nil)
		seq, _ := v.Begin()

		Convey("When the fetch fails", func() {
			So(v.Fail(seq, errFeed), ShouldBeNil)

			Convey("Then the view enters the error state", func() {
				So(v.State(), ShouldEqual, refresh.StateError)
				So(v.Err(), ShouldEqual, errFeed)
			})

			Convey("Then Begin does not leave the error state", func() {
				_, ok := v.Begin()
				So(ok, ShouldBeFalse)
				So(v.State(), ShouldEqual, refresh.StateError)
			})

			Convey("Then Retry restarts loading", func() {
				seq, ok := v.Retry()
				So(ok, ShouldBeTrue)
				So(v.State(), ShouldEqual, refresh.StateLoading)

				_, err := v.Complete(seq, feedOne, t0)
				So(err, ShouldBeNil)
				So(v.State(), ShouldEqual, refresh.StateReady)
				So(v.Err(), ShouldBeNil)
			})
		})
	})

	Convey("Given a ready view that is refreshing", t, func() {
		v := refresh.NewView("main", nil)
		seq, _ := v.Begin()
		_, err := v.Complete(seq, feedOne, t0)
		So(err, ShouldBeNil)
		seq, _ = v.Begin()

		Convey("When the refresh fails", func() {
			So(v.Fail(seq, errFeed), ShouldBeNil)

			Convey("Then the last good snapshot stays, marked stale", func() {
				So(v.State(), ShouldEqual, refresh.StateReady)
				snap, ok := v.Snapshot()
				So(ok, ShouldBeTrue)
				So(snap.Stale, ShouldBeTrue)
				So(snap.LastError, ShouldEqual, "feed down")
				So(snap.Sequence, ShouldEqual, 1)
				So(snap.Entries, ShouldHaveLength, 2)
			})

			Convey("And the next success clears the stale flag", func() {
				seq, _ := v.Begin()
				snap, err := v.Complete(seq, feedTwo, t0)
				So(err, ShouldBeNil)
				So(snap.Stale, ShouldBeFalse)
				So(snap.LastError, ShouldBeEmpty)
			})
		})

		Convey("When the feed violates the ranking contract", func() {
			_, err := v.Complete(seq, feedDupe, t0)

			Convey("Then it is treated as a failed fetch", func() {
				So(errors.Is(err, ranking.ErrDuplicateParticipant), ShouldBeTrue)
				So(v.State(), ShouldEqual, refresh.StateReady)
				snap, _ := v.Snapshot()
				So(snap.Stale, ShouldBeTrue)
			})
		})
	})
}

func TestViewStaleResponseGuard(t *testing.T) {
	Convey("Given two overlapping fetches", t, func() {
		v := refresh.NewView("main", nil)
		first, _ := v.Begin()
		second, _ := v.Begin()

		Convey("Then the sequence increases", func() {
			So(second, ShouldBeGreaterThan, first)
		})

		Convey("When the older response arrives", func() {
			_, err := v.Complete(first, feedOne, t0)

			Convey("Then it is discarded", func() {
				So(err, ShouldEqual, refresh.ErrStaleResponse)
				So(v.State(), ShouldEqual, refresh.StateLoading)
				So(v.Fail(first, errFeed), ShouldEqual, refresh.ErrStaleResponse)
			})
		})

		Convey("When the newer response is applied twice", func() {
			_, err := v.Complete(second, feedOne, t0)
			So(err, ShouldBeNil)
			_, err = v.Complete(second, feedTwo, t0)

			Convey("Then the duplicate is discarded", func() {
				So(err, ShouldEqual, refresh.ErrStaleResponse)
				snap, _ := v.Snapshot()
				So(snap.Sequence, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a closed view with a fetch in flight", t, func() {
		v := refresh.NewView("main", nil)
		seq, _ := v.Begin()
		v.Close()

		Convey("Then late results are discarded", func() {
			_, err := v.Complete(seq, feedOne, t0)
			So(err, ShouldEqual, refresh.ErrViewClosed)
			So(v.Fail(seq, errFeed), ShouldEqual, refresh.ErrViewClosed)
			_, ok := v.Begin()
			So(ok, ShouldBeFalse)
			_, ok = v.Retry()
			So(ok, ShouldBeFalse)
			So(v.State().String(), ShouldEqual, "closed")
		})
	})
}
