// Package feedsim simulates contest judges: it pushes result batches to a
// running leaderboard service and serves mock feeds for polled boards.
package feedsim

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/ranking"
)

// Default simulation settings.
const (
	DefaultBaseURL  = "http://localhost:9080"
	DefaultTeams    = 12
	DefaultRounds   = 20
	DefaultInterval = 500 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// Config holds the settings of one push run.
type Config struct {
	BaseURL    string        // service base URL
	Boards     []string      // push boards to feed, one goroutine each
	Teams      int           // teams per board
	Rounds     int           // batches per board
	Interval   time.Duration // pause between rounds of one board
	Timeout    time.Duration // HTTP request timeout
	Seed       int64         // base seed; board i uses Seed+i
	ErrorRate  float64       // chance a team fails a round
	ReplayRate float64       // chance a round re-sends the previous batch
	TieBreak   string        // tie-break the service is configured with
	Verify     bool          // compare final leaderboards with a local ranking
}

// DefaultConfig returns a Config for a local service with one live board.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Boards:    []string{"live"},
		Teams:     DefaultTeams,
		Rounds:    DefaultRounds,
		Interval:  DefaultInterval,
		Timeout:   DefaultTimeout,
		Seed:      1,
		ErrorRate: 0.05,
		TieBreak:  ranking.TieBreakParticipantID,
		Verify:    true,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil || u.Scheme == "" || u.Host == "":
		return fmt.Errorf("%w: base url %q", ErrInvalidConfig, c.BaseURL)
	case len(c.Boards) == 0:
		return fmt.Errorf("%w: no boards", ErrInvalidConfig)
	case c.Teams < 1 || c.Rounds < 1:
		return fmt.Errorf("%w: teams and rounds must be positive", ErrInvalidConfig)
	case c.Interval < 0 || c.Timeout <= 0:
		return fmt.Errorf("%w: interval must not be negative and timeout must be positive", ErrInvalidConfig)
	case c.ErrorRate < 0 || c.ErrorRate > 1 || c.ReplayRate < 0 || c.ReplayRate > 1:
		return fmt.Errorf("%w: rates must be within [0, 1]", ErrInvalidConfig)
	}
	for _, b := range c.Boards {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("%w: empty board id", ErrInvalidConfig)
		}
	}
	if _, err := ranking.TieBreakByName(c.TieBreak); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Stats summarizes a push run.
type Stats struct {
	Rounds      int64
	Submitted   int64
	Accepted    int64
	Duplicate   int64
	RateLimited int64
	Failed      int64
	Verified    int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}
