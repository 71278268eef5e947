package ranking

import (
	"fmt"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
)

// TieBreakKey returns the key used to order participants with equal scores,
// and to order the error group. Participant id is always the final tie-break.
type TieBreakKey func(model.ParticipantMetric) string

// TieBreakByParticipantID orders ties by participant id.
func TieBreakByParticipantID(m model.ParticipantMetric) string { return m.ParticipantID }

// TieBreakByDisplayName orders ties by display name.
func TieBreakByDisplayName(m model.ParticipantMetric) string { return m.DisplayName }

// Tie-break names accepted by TieBreakByName.
const (
	TieBreakParticipantID = "participant_id"
	TieBreakDisplayName   = "display_name"
)

// TieBreakByName resolves a configured tie-break name.
func TieBreakByName(name string) (TieBreakKey, error) {
	switch name {
	case "", TieBreakParticipantID:
		return TieBreakByParticipantID, nil
	case TieBreakDisplayName:
		return TieBreakByDisplayName, nil
	default:
		return nil, fmt.Errorf("unknown tie-break %q", name)
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithTieBreak sets the tie-break key. A nil key keeps the default.
func WithTieBreak(key TieBreakKey) Option {
	return func(e *Engine) {
		if key != nil {
			e.tieBreak = key
		}
	}
}
