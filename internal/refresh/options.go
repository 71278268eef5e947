package refresh

import (
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/ranking"
	"github.com/bauman-code-tournament/leaderboard/pkg/logger"
)

// Option configures a Refresher.
type Option func(*Refresher)

// WithInterval sets the periodic refresh interval.
func WithInterval(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithFetchTimeout bounds a single Source.Fetch call.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithSource sets the polled metric source. Without one the board is fed
// only through Push.
func WithSource(src Source) Option {
	return func(r *Refresher) {
		r.source = src
	}
}

// WithPublisher sets where every new snapshot is published.
func WithPublisher(p Publisher) Option {
	return func(r *Refresher) {
		r.publisher = p
	}
}

// WithEngine sets the ranking engine used by the view.
func WithEngine(e *ranking.Engine) Option {
	return func(r *Refresher) {
		if e != nil {
			r.engine = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Refresher) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}
