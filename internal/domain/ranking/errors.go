package ranking

import (
	"errors"
	"fmt"
)

// Static errors for ranking contract violations.
var (
	ErrDuplicateParticipant = errors.New("duplicate participant id in feed")
	ErrEmptyParticipantID   = errors.New("participant id is empty")
)

// DuplicateParticipantError reports a participant id seen more than once in a
// single feed cycle.
type DuplicateParticipantError struct {
	ParticipantID string
	First         int // index of the first occurrence
	Second        int // index of the offending occurrence
}

func (e *DuplicateParticipantError) Error() string {
	return fmt.Sprintf("duplicate participant %q at positions %d and %d", e.ParticipantID, e.First, e.Second)
}

// Is matches ErrDuplicateParticipant.
func (e *DuplicateParticipantError) Is(target error) bool {
	return target == ErrDuplicateParticipant
}
