package worker

import (
	"time"

	"github.com/bauman-code-tournament/leaderboard/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDispatchTimeout bounds a single dispatch.
func WithDispatchTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.dispatchTimeout = d
		}
	}
}

func withResult(fn ResultFunc) Option {
	return func(w *InMemoryWorker) {
		w.onResult = fn
	}
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithResultHook observes every dispatched batch.
func WithResultHook(fn ResultFunc) PoolOption {
	return func(p *Pool) {
		p.onResult = fn
	}
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
