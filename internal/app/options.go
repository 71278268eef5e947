package service

import (
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/refresh"
	"github.com/bauman-code-tournament/leaderboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSource replaces the configured source of a game board.
func WithSource(boardID string, src refresh.Source) Option {
	return func(s *Service) {
		s.sourceOverrides[boardID] = src
	}
}

// WithClock overrides the time source used for snapshots and uptime.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
