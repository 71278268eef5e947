package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/ranking"
	"github.com/bauman-code-tournament/leaderboard/internal/domain/scoring"
)

func TestMockSourceDeterministic(t *testing.T) {
	a := NewMockSource(42, WithMockTeams(6), WithMockErrorRate(0.2))
	b := NewMockSource(42, WithMockTeams(6), WithMockErrorRate(0.2))

	for range 20 {
		fa, err := a.Fetch(context.Background())
		require.NoError(t, err)
		fb, err := b.Fetch(context.Background())
		require.NoError(t, err)
		require.Equal(t, fa, fb)
		require.Len(t, fa, 6)

		_, err = ranking.Rank(fa, nil)
		require.NoError(t, err, "mock feed must satisfy the ranking contract")
		for _, m := range fa {
			assert.GreaterOrEqual(t, m.Score, 0.0)
			if m.HasError() {
				assert.Zero(t, m.Score)
				assert.Contains(t, []string{ErrorStateCompilation, ErrorStateRuntime}, m.ErrorState)
			}
		}
	}
}

func TestMockSourceWalkIsBounded(t *testing.T) {
	s := NewMockSource(7, WithMockTeams(3), WithMockStep(5), WithMockErrorRate(0))
	prev, err := s.Fetch(context.Background())
	require.NoError(t, err)

	for range 10 {
		next, err := s.Fetch(context.Background())
		require.NoError(t, err)
		for i := range next {
			assert.Equal(t, prev[i].ParticipantID, next[i].ParticipantID)
			assert.Equal(t, prev[i].DisplayName, next[i].DisplayName)
			assert.InDelta(t, prev[i].Score, next[i].Score, 5)
		}
		prev = next
	}
}

func TestMockSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockSource(1).Fetch(ctx)
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    []model.ParticipantMetric
	}{
		{
			name: "document with metrics key",
			content: `metrics:
  - participant_id: "1"
    display_name: Code Warriors
    score: 1250
  - participant_id: "2"
    display_name: Binary Beasts
    error: compilation_error
`,
			want: []model.ParticipantMetric{
				{ParticipantID: "1", DisplayName: "Code Warriors", Score: 1250},
				{ParticipantID: "2", DisplayName: "Binary Beasts", ErrorState: "compilation_error"},
			},
		},
		{
			name:    "bare json list",
			content: `[{"participant_id":"1","score":10},{"participant_id":"2","score":null},{"participant_id":"3","score":"abc"}]`,
			want: []model.ParticipantMetric{
				{ParticipantID: "1", Score: 10},
				{ParticipantID: "2", ErrorState: model.ErrorStateMissingScore},
				{ParticipantID: "3", ErrorState: model.ErrorStateInvalidScore},
			},
		},
		{
			name:    "empty file",
			content: "",
			want:    []model.ParticipantMetric{},
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, filepath.Base(t.Name())+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			got, err := NewFileSource(path).Fetch(context.Background())
			require.NoError(t, err, "case %d", i)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := NewFileSource(filepath.Join(dir, "absent.yaml")).Fetch(context.Background())
		var unavailable *FeedUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, "file", unavailable.Source)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("metrics: [\n  - {"), 0o600))
		_, err := NewFileSource(path).Fetch(context.Background())
		assert.ErrorIs(t, err, ErrFeedUnavailable)
	})
}

func TestHTTPSource(t *testing.T) {
	t.Run("decodes a healthy feed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"participant_id":"1","score":5},{"participant_id":"2","score":9}]`))
		}))
		defer srv.Close()

		got, err := NewHTTPSource(srv.URL, WithHeader("X-Api-Key", "secret")).Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 9.0, got[1].Score)
	})

	t.Run("non-200 is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "judge down", http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewHTTPSource(srv.URL).Fetch(context.Background())
		assert.ErrorIs(t, err, ErrFeedUnavailable)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("timeout is unavailable", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-block:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(block)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := NewHTTPSource(srv.URL, WithHTTPClient(srv.Client())).Fetch(ctx)
		assert.ErrorIs(t, err, ErrFeedUnavailable)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

type fakeReader map[string]model.Snapshot

var errNoSnap = errors.New("no snapshot")

func (f fakeReader) Latest(_ context.Context, boardID string) (model.Snapshot, error) {
	snap, ok := f[boardID]
	if !ok {
		return model.Snapshot{}, errNoSnap
	}
	return snap, nil
}

func TestContestSource(t *testing.T) {
	scorer, err := scoring.NewContestScorer([]scoring.Game{
		{ID: "g1", MaxPoints: 100},
		{ID: "g2", MaxPoints: 100},
	})
	require.NoError(t, err)

	t.Run("aggregates available games", func(t *testing.T) {
		reader := fakeReader{
			"g1": {Entries: []model.RankedEntry{
				{ParticipantID: "a", DisplayName: "Alpha", Score: 80, Rank: 1},
				{ParticipantID: "b", DisplayName: "Beta", Score: 70, Rank: 2},
			}},
		}
		src := NewContestSource(scorer, reader)
		got, err := src.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []model.ParticipantMetric{
			{ParticipantID: "a", DisplayName: "Alpha", Score: 80},
			{ParticipantID: "b", DisplayName: "Beta", Score: 70},
		}, got)

		standings, err := src.Standings(context.Background())
		require.NoError(t, err)
		assert.False(t, standings[0].Results[1].Present)
	})

	t.Run("no game snapshots yet", func(t *testing.T) {
		_, err := NewContestSource(scorer, fakeReader{}).Fetch(context.Background())
		assert.ErrorIs(t, err, ErrFeedUnavailable)
		assert.ErrorIs(t, err, ErrNoGameSnapshots)
		assert.ErrorIs(t, err, errNoSnap)
	})
}
