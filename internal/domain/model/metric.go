// Package model contains domain models passed between layers.
package model

import "time"

// Well-known error states assigned to malformed feed rows. They rank like any
// other error state: after every participant with a valid score.
const (
	ErrorStateMissingScore = "missing_score"
	ErrorStateInvalidScore = "invalid_score"
)

// ParticipantMetric is the raw input for one participant in one refresh cycle.
type ParticipantMetric struct {
	ParticipantID string  // stable opaque id, never reused
	DisplayName   string  // label only, not part of identity
	Score         float64 // ignored for ranking when ErrorState is set
	ErrorState    string  // non-empty voids the score, e.g. "compilation_error"
}

// HasError reports whether the metric's score is void for this cycle.
func (m ParticipantMetric) HasError() bool { return m.ErrorState != "" }

// Batch is a pushed metric feed travelling through the ingestion queue.
type Batch struct {
	BatchID    string
	BoardID    string
	Metrics    []ParticipantMetric
	ReceivedAt time.Time
}
