package feed

import (
	"errors"
	"fmt"
)

// Static errors for metric sources.
var (
	ErrFeedUnavailable = errors.New("metric feed unavailable")
	ErrNoGameSnapshots = errors.New("no game board has a snapshot yet")
)

// FeedUnavailableError wraps a failure at the fetch boundary. It is
// recoverable: the caller keeps showing the last good snapshot.
type FeedUnavailableError struct {
	Source string
	Err    error
}

func (e *FeedUnavailableError) Error() string {
	return fmt.Sprintf("feed %s unavailable: %v", e.Source, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FeedUnavailableError) Unwrap() error { return e.Err }

// Is matches ErrFeedUnavailable.
func (e *FeedUnavailableError) Is(target error) bool { return target == ErrFeedUnavailable }

func unavailable(source string, err error) error {
	return &FeedUnavailableError{Source: source, Err: err}
}
