package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
)

// Default mock feed parameters.
const (
	defaultMockTeams     = 8
	defaultMockStep      = 15
	defaultMockMinScore  = 600
	defaultMockMaxScore  = 1300
	defaultMockErrorRate = 0.05
)

// Error states produced by the mock feed.
const (
	ErrorStateCompilation = "compilation_error"
	ErrorStateRuntime     = "runtime_error"
)

// MockOption configures a MockSource.
type MockOption func(*MockSource)

// WithMockTeams sets the number of simulated teams.
func WithMockTeams(n int) MockOption {
	return func(s *MockSource) {
		if n > 0 {
			s.teams = n
		}
	}
}

// WithMockStep sets the maximum score change per fetch.
func WithMockStep(step int) MockOption {
	return func(s *MockSource) {
		if step > 0 {
			s.step = step
		}
	}
}

// WithMockErrorRate sets the chance that a team fails a given cycle.
func WithMockErrorRate(rate float64) MockOption {
	return func(s *MockSource) {
		if rate >= 0 && rate <= 1 {
			s.errorRate = rate
		}
	}
}

type mockTeam struct {
	id    string
	name  string
	score int
	state string
}

// MockSource is a deterministic random walk over a fixed set of teams. Two
// sources built with the same seed and options yield identical feeds.
type MockSource struct {
	mu        sync.Mutex
	faker     *gofakeit.Faker
	teams     int
	step      int
	errorRate float64
	roster    []mockTeam
}

// NewMockSource creates a mock feed seeded with seed.
func NewMockSource(seed int64, opts ...MockOption) *MockSource {
	s := &MockSource{
		faker:     gofakeit.New(uint64(seed)),
		teams:     defaultMockTeams,
		step:      defaultMockStep,
		errorRate: defaultMockErrorRate,
	}
	for _, opt := range opts {
		opt(s)
	}

	seen := make(map[string]bool, s.teams)
	s.roster = make([]mockTeam, 0, s.teams)
	for i := range s.teams {
		name := TeamName(s.faker)
		for seen[name] {
			name = fmt.Sprintf("%s %d", name, i+1)
		}
		seen[name] = true
		s.roster = append(s.roster, mockTeam{
			id:    fmt.Sprintf("team-%02d", i+1),
			name:  name,
			score: s.faker.Number(defaultMockMinScore, defaultMockMaxScore),
		})
	}
	return s
}

// TeamName generates a contest-style team name.
func TeamName(f *gofakeit.Faker) string {
	adj := f.Adjective()
	noun := f.Animal()
	if adj == "" || noun == "" {
		return f.Company()
	}
	return strings.ToUpper(adj[:1]) + adj[1:] + " " + strings.ToUpper(noun[:1]) + noun[1:]
}

// Name identifies the source in logs and metrics.
func (s *MockSource) Name() string { return "mock" }

// Fetch advances the walk by one step and returns the new feed.
func (s *MockSource) Fetch(ctx context.Context) ([]model.ParticipantMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(s.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ParticipantMetric, 0, len(s.roster))
	for i := range s.roster {
		t := &s.roster[i]
		switch {
		case t.state != "":
			// failing teams resubmit about every other cycle
			if s.faker.Bool() {
				t.state = ""
			}
		case s.faker.Float64() < s.errorRate:
			t.state = ErrorStateCompilation
			if s.faker.Bool() {
				t.state = ErrorStateRuntime
			}
		default:
			t.score = max(0, t.score+s.faker.Number(-s.step, s.step))
		}

		m := model.ParticipantMetric{
			ParticipantID: t.id,
			DisplayName:   t.name,
			Score:         float64(t.score),
			ErrorState:    t.state,
		}
		if t.state != "" {
			m.Score = 0
		}
		out = append(out, m)
	}
	return out, nil
}
