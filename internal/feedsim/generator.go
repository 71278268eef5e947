package feedsim

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/bauman-code-tournament/leaderboard/internal/adapters/feed"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
)

// Batch is the body of one POST /boards/{id}/metrics request.
type Batch struct {
	BatchID string            `json:"batch_id"`
	Metrics []feed.WireMetric `json:"metrics"`
}

// Generator produces successive result batches for one board. Scores follow
// the mock feed walk, so a seed always yields the same results.
type Generator struct {
	source     *feed.MockSource
	faker      *gofakeit.Faker
	replayRate float64

	last     Batch
	lastFeed []model.ParticipantMetric
}

// NewGenerator creates a generator for teams teams.
func NewGenerator(seed int64, teams int, errorRate, replayRate float64) *Generator {
	return &Generator{
		source:     feed.NewMockSource(seed, feed.WithMockTeams(teams), feed.WithMockErrorRate(errorRate)),
		faker:      gofakeit.New(uint64(seed)),
		replayRate: replayRate,
	}
}

// Next returns the next batch. With probability replayRate it returns the
// previous batch again, under the same batch id; replay reports that case.
func (g *Generator) Next(ctx context.Context) (b Batch, replay bool, err error) {
	if g.last.BatchID != "" && g.replayRate > 0 && g.faker.Float64() < g.replayRate {
		return g.last, true, nil
	}
	metrics, err := g.source.Fetch(ctx)
	if err != nil {
		return Batch{}, false, fmt.Errorf("generate batch: %w", err)
	}
	wire := make([]feed.WireMetric, 0, len(metrics))
	for _, m := range metrics {
		wire = append(wire, feed.ToWire(m))
	}
	g.last = Batch{BatchID: uuid.NewString(), Metrics: wire}
	g.lastFeed = metrics
	return g.last, false, nil
}

// LastFeed returns the metrics of the last new batch.
func (g *Generator) LastFeed() []model.ParticipantMetric {
	return append([]model.ParticipantMetric(nil), g.lastFeed...)
}
