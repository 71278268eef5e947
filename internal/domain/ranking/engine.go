// Package ranking turns a raw metric feed into an ordered, annotated leaderboard.
//
// The engine is pure: the previous snapshot is passed in explicitly, inputs are
// never mutated, and identical arguments always produce identical output.
package ranking

import (
	"cmp"
	"math"
	"slices"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
)

// Engine ranks metric feeds. The zero value is not usable; use New.
type Engine struct {
	tieBreak TieBreakKey
}

// New creates an Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{tieBreak: TieBreakByParticipantID}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = New()

// Rank ranks current with the default engine.
func Rank(current []model.ParticipantMetric, previous []model.RankedEntry) ([]model.RankedEntry, error) {
	return defaultEngine.Rank(current, previous)
}

type candidate struct {
	metric model.ParticipantMetric
	key    string
}

// Rank orders current and annotates each entry with deltas against previous.
// Entries with an error state rank strictly after every valid entry. A
// duplicate or empty participant id fails the whole call with no output.
func (e *Engine) Rank(current []model.ParticipantMetric, previous []model.RankedEntry) ([]model.RankedEntry, error) {
	if err := validate(current); err != nil {
		return nil, err
	}

	valid := make([]candidate, 0, len(current))
	var errored []candidate
	for _, m := range current {
		m = normalize(m)
		c := candidate{metric: m, key: e.tieBreak(m)}
		if m.HasError() {
			errored = append(errored, c)
		} else {
			valid = append(valid, c)
		}
	}

	slices.SortFunc(valid, func(a, b candidate) int {
		if c := cmp.Compare(b.metric.Score, a.metric.Score); c != 0 {
			return c
		}
		return byKey(a, b)
	})
	slices.SortFunc(errored, byKey)

	prev := indexPrevious(previous)
	out := make([]model.RankedEntry, 0, len(current))
	for _, c := range slices.Concat(valid, errored) {
		entry := model.RankedEntry{
			ParticipantID: c.metric.ParticipantID,
			DisplayName:   c.metric.DisplayName,
			Score:         c.metric.Score,
			ErrorState:    c.metric.ErrorState,
			Rank:          len(out) + 1,
		}
		if p, ok := prev[entry.ParticipantID]; ok {
			annotate(&entry, p)
		}
		out = append(out, entry)
	}
	return out, nil
}

func byKey(a, b candidate) int {
	if c := cmp.Compare(a.key, b.key); c != 0 {
		return c
	}
	return cmp.Compare(a.metric.ParticipantID, b.metric.ParticipantID)
}

func validate(current []model.ParticipantMetric) error {
	seen := make(map[string]int, len(current))
	for i, m := range current {
		if m.ParticipantID == "" {
			return ErrEmptyParticipantID
		}
		if first, ok := seen[m.ParticipantID]; ok {
			return &DuplicateParticipantError{ParticipantID: m.ParticipantID, First: first, Second: i}
		}
		seen[m.ParticipantID] = i
	}
	return nil
}

// normalize zeroes a non-finite score. The entry keeps its own error state
// or becomes invalid_score.
func normalize(m model.ParticipantMetric) model.ParticipantMetric {
	if !math.IsNaN(m.Score) && !math.IsInf(m.Score, 0) {
		return m
	}
	m.Score = 0
	if !m.HasError() {
		m.ErrorState = model.ErrorStateInvalidScore
	}
	return m
}

// indexPrevious maps participant id to its previous entry. The first
// occurrence wins if previous is itself malformed.
func indexPrevious(previous []model.RankedEntry) map[string]model.RankedEntry {
	idx := make(map[string]model.RankedEntry, len(previous))
	for _, p := range previous {
		if _, ok := idx[p.ParticipantID]; !ok {
			idx[p.ParticipantID] = p
		}
	}
	return idx
}

func annotate(entry *model.RankedEntry, prev model.RankedEntry) {
	prevRank := prev.Rank
	rankDelta := prev.Rank - entry.Rank
	entry.PreviousRank = &prevRank
	entry.RankDelta = &rankDelta

	if prev.HasError() {
		return
	}
	prevScore := prev.Score
	entry.PreviousScore = &prevScore
	if entry.HasError() {
		return
	}
	scoreDelta := entry.Score - prev.Score
	entry.ScoreDelta = &scoreDelta
}
