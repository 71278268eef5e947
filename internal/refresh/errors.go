package refresh

import "errors"

// Static errors for the refresh lifecycle.
var (
	ErrStaleResponse = errors.New("stale refresh response discarded")
	ErrViewClosed    = errors.New("leaderboard view is closed")
	ErrNoSource      = errors.New("board has no pollable source")
	ErrStopped       = errors.New("refresher is not running")
	ErrRunning       = errors.New("refresher is already running")
)
