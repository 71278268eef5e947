package model

import "time"

// Movement describes how an entry moved relative to the previous snapshot.
type Movement string

// Movement values.
const (
	MovementNew  Movement = "new"
	MovementUp   Movement = "up"
	MovementDown Movement = "down"
	MovementSame Movement = "same"
)

// podiumSize is the number of top ranks highlighted on the display.
const podiumSize = 3

// RankedEntry is one row of a snapshot. Delta fields are nil when there is
// nothing to compare against; they are never zero-filled.
type RankedEntry struct {
	ParticipantID string
	DisplayName   string
	Score         float64
	ErrorState    string
	Rank          int

	PreviousRank  *int
	RankDelta     *int // PreviousRank - Rank, positive = moved up
	PreviousScore *float64
	ScoreDelta    *float64 // nil whenever either side is in error state
}

// HasError reports whether the entry's score is void.
func (e RankedEntry) HasError() bool { return e.ErrorState != "" }

// Movement classifies the rank change against the previous snapshot.
func (e RankedEntry) Movement() Movement {
	switch {
	case e.RankDelta == nil:
		return MovementNew
	case *e.RankDelta > 0:
		return MovementUp
	case *e.RankDelta < 0:
		return MovementDown
	default:
		return MovementSame
	}
}

// Podium reports whether the entry holds one of the top ranks with a valid score.
func (e RankedEntry) Podium() bool {
	return !e.HasError() && e.Rank >= 1 && e.Rank <= podiumSize
}

// Snapshot is one immutable, fully ranked output for a single refresh cycle.
// Entries are ordered by ascending rank and must not be modified once published.
type Snapshot struct {
	BoardID     string
	Sequence    uint64
	GeneratedAt time.Time
	Entries     []RankedEntry

	// Stale is set when the latest refresh failed and Entries are the last good result.
	Stale     bool
	LastError string
}

// Len returns the number of ranked entries.
func (s Snapshot) Len() int { return len(s.Entries) }

// ErrorEntries counts entries in error state.
func (s Snapshot) ErrorEntries() int {
	n := 0
	for _, e := range s.Entries {
		if e.HasError() {
			n++
		}
	}
	return n
}

// Top returns at most n leading entries. The returned slice shares storage
// with the snapshot and must be treated as read-only.
func (s Snapshot) Top(n int) []RankedEntry {
	if n < 0 || n >= len(s.Entries) {
		return s.Entries
	}
	return s.Entries[:n]
}

// MarkStale returns a copy of s flagged as stale with the given error message.
func (s Snapshot) MarkStale(errMsg string) Snapshot {
	s.Stale = true
	s.LastError = errMsg
	return s
}
