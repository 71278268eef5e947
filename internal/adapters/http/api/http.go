// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bauman-code-tournament/leaderboard/internal/adapters/feed"
	"github.com/bauman-code-tournament/leaderboard/internal/adapters/http/swagger"
	"github.com/bauman-code-tournament/leaderboard/internal/adapters/mq/queue"
	"github.com/bauman-code-tournament/leaderboard/internal/adapters/repository"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/scoring"
	"github.com/bauman-code-tournament/leaderboard/internal/refresh"
	"github.com/bauman-code-tournament/leaderboard/pkg/logger"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

const defaultMaxLimit = 1000

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	LeaderboardDependencies
	RankDependencies
	StandingsDependencies
	BoardsDependencies
	PushDependencies
	RefreshDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	boardsHandler      *BoardsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	standingsHandler   *StandingsHandler
	pushHandler        *PushHandler
	refreshHandler     *RefreshHandler

	maxLimit  int
	pushRate  rate.Limit
	pushBurst int
	logger    logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxLimit caps the leaderboard page size.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithPushRateLimit limits metric pushes per client IP. A non-positive rate
// disables the limiter.
func WithPushRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.pushRate = rate.Limit(perSecond)
		s.pushBurst = max(burst, 1)
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		maxLimit: defaultMaxLimit,
		logger:   logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.boardsHandler = NewBoardsHandler(deps)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit)
	s.rankHandler = NewRankHandler(deps)
	s.standingsHandler = NewStandingsHandler(deps)
	s.pushHandler = NewPushHandler(deps)
	s.refreshHandler = NewRefreshHandler(deps)
	return s
}

// Routes builds the chi router serving every endpoint.
func (s *Server) Routes(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Route("/boards", func(r chi.Router) {
		r.Get("/", s.boardsHandler.HandleList)
		r.Route("/{boardID}", func(r chi.Router) {
			r.Get("/", s.boardsHandler.HandleGet)
			r.Get("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
			r.Get("/export.xlsx", s.leaderboardHandler.HandleExport)
			r.Get("/rank/{participantID}", s.rankHandler.HandleGetRank)
			r.Get("/standings", s.standingsHandler.HandleGetStandings)
			r.Post("/refresh", s.refreshHandler.HandleRefresh)
			r.With(s.pushLimiter(ctx)).Post("/metrics", s.pushHandler.HandlePush)
		})
	})

	swagger.Register(r)

	s.logger.Info(ctx, "routes registered",
		logger.Int("max_limit", s.maxLimit),
		logger.Float64("push_rate", float64(s.pushRate)))
	return r
}

// pushLimiter builds the per-IP push limiter; its cleanup stops with ctx.
func (s *Server) pushLimiter(ctx context.Context) func(http.Handler) http.Handler {
	if s.pushRate <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := NewIPRateLimiter(s.pushRate, s.pushBurst)
	go limiter.RunCleanup(ctx, cleanupInterval, maxIdleAge)
	return RateLimitMiddleware(limiter)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Get().Named("api").Error(context.Background(), "encode response failed", logger.Error(err))
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Code: "internal_error", Message: "response could not be encoded"})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure translates upstream errors to a status code and error code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrBoardNotFound):
		return http.StatusNotFound, "board_not_found"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrNoSnapshot), errors.Is(err, feed.ErrNoGameSnapshots):
		return http.StatusServiceUnavailable, "not_ready"
	case errors.Is(err, refresh.ErrNoSource):
		return http.StatusConflict, "no_source"
	case errors.Is(err, scoring.ErrNotContest):
		return http.StatusConflict, "not_contest"
	case errors.Is(err, queue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, refresh.ErrStopped), errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
