// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/ranking"
)

// Board kinds.
const (
	KindGame    = "game"
	KindContest = "contest"
)

// Game board sources.
const (
	SourcePush = "push"
	SourceMock = "mock"
	SourceFile = "file"
	SourceHTTP = "http"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// MaxLeaderboardLimit caps GET /boards/{id}/leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// RefreshInterval is the default poll interval of game boards.
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	// ContestRefreshInterval is the default poll interval of contest boards.
	ContestRefreshInterval time.Duration `koanf:"contest_refresh_interval"`

	// FetchTimeout bounds one feed fetch.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// TieBreak names the secondary ordering key for equal scores.
	TieBreak string `koanf:"tie_break"`

	// QueueSize bounds the in-memory push queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of push dispatch workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the remembered batch ids; 0 keeps every id.
	DedupeSize int `koanf:"dedupe_size"`

	// PushRateLimit is the allowed pushes per second per client IP; 0 disables it.
	PushRateLimit float64 `koanf:"push_rate_limit"`
	PushRateBurst int     `koanf:"push_rate_burst"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	Boards []Board `koanf:"boards"`
}

// Board defines one leaderboard.
type Board struct {
	ID   string `koanf:"id"`
	Name string `koanf:"name"`
	Kind string `koanf:"kind"`

	// Game boards.
	Source    string  `koanf:"source"`
	Path      string  `koanf:"path"`
	URL       string  `koanf:"url"`
	Seed      int64   `koanf:"seed"`
	Teams     int     `koanf:"teams"`
	MaxPoints float64 `koanf:"max_points"`

	// Contest boards.
	Games   []string           `koanf:"games"`
	Weights map[string]float64 `koanf:"weights"`

	// Interval overrides the default poll interval of the board kind.
	Interval time.Duration `koanf:"interval"`
}

// New creates a Config with defaults: two simulated games, a push board and
// a contest over all three.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		MaxLeaderboardLimit:    100,
		RefreshInterval:        10 * time.Second,
		ContestRefreshInterval: 30 * time.Second,
		FetchTimeout:           5 * time.Second,
		TieBreak:               ranking.TieBreakParticipantID,
		QueueSize:              1024,
		WorkerCount:            runtime.NumCPU(),
		DedupeSize:             100_000,
		PushRateLimit:          20,
		PushRateBurst:          40,
		ShutdownTimeout:        30 * time.Second,
		Boards: []Board{
			{ID: "algorithms", Name: "Algorithms", Kind: KindGame, Source: SourceMock, Seed: 1, Teams: 12, MaxPoints: 1500},
			{ID: "systems", Name: "Systems", Kind: KindGame, Source: SourceMock, Seed: 2, Teams: 12, MaxPoints: 1500},
			{ID: "live", Name: "Live Round", Kind: KindGame, Source: SourcePush},
			{ID: "overall", Name: "Overall", Kind: KindContest, Games: []string{"algorithms", "systems", "live"}},
		},
	}
}

// Normalize fills per-board defaults.
func (c *Config) Normalize() {
	for i := range c.Boards {
		b := &c.Boards[i]
		b.ID = strings.TrimSpace(b.ID)
		if b.Kind == "" {
			b.Kind = KindGame
		}
		if b.Kind == KindGame && b.Source == "" {
			b.Source = SourcePush
		}
		if b.Name == "" {
			b.Name = b.ID
		}
	}
}

// Board returns the board definition with the given id.
func (c *Config) Board(id string) (Board, bool) {
	i := slices.IndexFunc(c.Boards, func(b Board) bool { return b.ID == id })
	if i < 0 {
		return Board{}, false
	}
	return c.Boards[i], true
}

// IntervalFor returns the effective poll interval of b.
func (c *Config) IntervalFor(b Board) time.Duration {
	switch {
	case b.Interval > 0:
		return b.Interval
	case b.Kind == KindContest:
		return c.ContestRefreshInterval
	default:
		return c.RefreshInterval
	}
}

// Validate reports every problem found in c.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Addr) == "" {
		add("addr must not be empty")
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.LogLevel)) {
		add("unknown log_level %q", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		add("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.MaxLeaderboardLimit < 1 {
		add("max_leaderboard_limit must be positive")
	}
	if c.RefreshInterval <= 0 || c.ContestRefreshInterval <= 0 {
		add("refresh intervals must be positive")
	}
	if c.FetchTimeout <= 0 {
		add("fetch_timeout must be positive")
	}
	if _, err := ranking.TieBreakByName(c.TieBreak); err != nil {
		add("%v", err)
	}
	if c.QueueSize < 1 || c.WorkerCount < 1 {
		add("queue_size and worker_count must be positive")
	}
	if c.DedupeSize < 0 {
		add("dedupe_size must not be negative")
	}
	if c.PushRateLimit < 0 || (c.PushRateLimit > 0 && c.PushRateBurst < 1) {
		add("push_rate_limit needs a positive push_rate_burst")
	}

	problems = append(problems, c.validateBoards()...)
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateBoards() []string {
	var problems []string
	if len(c.Boards) == 0 {
		return []string{"at least one board is required"}
	}

	kinds := make(map[string]string, len(c.Boards))
	for _, b := range c.Boards {
		switch {
		case b.ID == "":
			problems = append(problems, "board id must not be empty")
			continue
		case strings.ContainsAny(b.ID, "/ ?#"):
			problems = append(problems, fmt.Sprintf("board %q: id must be a single path segment", b.ID))
		}
		if _, dup := kinds[b.ID]; dup {
			problems = append(problems, fmt.Sprintf("board %q: duplicate id", b.ID))
		}
		kinds[b.ID] = b.Kind
		if b.Interval < 0 {
			problems = append(problems, fmt.Sprintf("board %q: interval must not be negative", b.ID))
		}
	}

	for _, b := range c.Boards {
		if b.ID == "" {
			continue
		}
		switch b.Kind {
		case KindGame:
			switch b.Source {
			case SourcePush, SourceMock:
			case SourceFile:
				if b.Path == "" {
					problems = append(problems, fmt.Sprintf("board %q: file source needs a path", b.ID))
				}
			case SourceHTTP:
				if b.URL == "" {
					problems = append(problems, fmt.Sprintf("board %q: http source needs a url", b.ID))
				}
			default:
				problems = append(problems, fmt.Sprintf("board %q: unknown source %q", b.ID, b.Source))
			}
		case KindContest:
			if len(b.Games) == 0 {
				problems = append(problems, fmt.Sprintf("board %q: contest needs games", b.ID))
			}
			for _, g := range b.Games {
				if kind, ok := kinds[g]; !ok || kind != KindGame {
					problems = append(problems, fmt.Sprintf("board %q: game %q is not a game board", b.ID, g))
				}
			}
		default:
			problems = append(problems, fmt.Sprintf("board %q: unknown kind %q", b.ID, b.Kind))
		}
	}
	return problems
}
