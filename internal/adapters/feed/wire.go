// Package feed provides metric sources for leaderboard refreshers.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
)

// WireScore is a score as it appears in JSON or YAML feeds. A missing or
// null score and an unparseable one are kept apart so each row can be
// turned into the matching error state instead of failing the batch.
type WireScore struct {
	Value float64
	Set   bool // present and not null
	Valid bool // parsed as a number
}

// Score returns a set, valid WireScore.
func Score(v float64) WireScore { return WireScore{Value: v, Set: true, Valid: true} }

// UnmarshalJSON accepts numbers and finite numeric strings.
func (s *WireScore) UnmarshalJSON(b []byte) error {
	*s = WireScore{}
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s.Set = true
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		s.Value, s.Valid = f, true
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		s.parse(str)
	}
	return nil
}

// parse keeps finite numbers only; NaN and infinities count as invalid.
func (s *WireScore) parse(raw string) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return
	}
	s.Value, s.Valid = f, true
}

// MarshalJSON writes null for an unset or invalid score.
func (s WireScore) MarshalJSON() ([]byte, error) {
	if !s.Set || !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// UnmarshalYAML accepts finite numeric scalars.
func (s *WireScore) UnmarshalYAML(n *yaml.Node) error {
	*s = WireScore{}
	if n.Kind != yaml.ScalarNode {
		s.Set = true
		return nil
	}
	if n.Tag == "!!null" {
		return nil
	}
	s.Set = true
	s.parse(n.Value)
	return nil
}

// WireMetric is the serialized form of a participant metric.
type WireMetric struct {
	ParticipantID string    `json:"participant_id" yaml:"participant_id"`
	DisplayName   string    `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Score         WireScore `json:"score" yaml:"score"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Metric converts w into a domain metric. A row without an explicit error
// gets missing_score or invalid_score when its score is unusable.
func (w WireMetric) Metric() model.ParticipantMetric {
	m := model.ParticipantMetric{
		ParticipantID: strings.TrimSpace(w.ParticipantID),
		DisplayName:   w.DisplayName,
		Score:         w.Score.Value,
		ErrorState:    w.Error,
	}
	if m.ErrorState == "" {
		switch {
		case !w.Score.Set:
			m.ErrorState = model.ErrorStateMissingScore
		case !w.Score.Valid:
			m.ErrorState = model.ErrorStateInvalidScore
		}
	}
	return m
}

// ToWire converts a domain metric to its serialized form.
func ToWire(m model.ParticipantMetric) WireMetric {
	return WireMetric{
		ParticipantID: m.ParticipantID,
		DisplayName:   m.DisplayName,
		Score:         Score(m.Score),
		Error:         m.ErrorState,
	}
}

// FromWire converts a batch of wire metrics.
func FromWire(in []WireMetric) []model.ParticipantMetric {
	out := make([]model.ParticipantMetric, 0, len(in))
	for _, w := range in {
		out = append(out, w.Metric())
	}
	return out
}

// DecodeWireMetrics reads a JSON array of wire metrics.
func DecodeWireMetrics(r io.Reader) ([]model.ParticipantMetric, error) {
	var wire []WireMetric
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return FromWire(wire), nil
}
